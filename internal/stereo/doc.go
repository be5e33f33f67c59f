// Package stereo implements the inverse sensor model for stereo vision
// mapping: it converts pixel correspondences between a left and right camera
// image into evidence rays, probabilistic 3D cones that encode a likely
// occupied point and the free space swept between the camera and that point.
//
// Coordinate convention throughout: X=right, Y=forward, Z=up, millimetres.
package stereo
