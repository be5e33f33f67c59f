package stereo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vertex is a 3D point in millimetres.
type Vertex struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vertex) Add(o Vertex) Vertex {
	return Vertex{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vertex) Sub(o Vertex) Vertex {
	return Vertex{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vertex) Scale(s float64) Vertex {
	return Vertex{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vertex) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the Euclidean distance between v and o.
func (v Vertex) DistanceTo(o Vertex) float64 {
	return v.Sub(o).Norm()
}

// Midpoint returns the point halfway between v and o.
func (v Vertex) Midpoint(o Vertex) Vertex {
	return Vertex{(v.X + o.X) / 2, (v.Y + o.Y) / 2, (v.Z + o.Z) / 2}
}

// Pose is a rigid transform: rotation about the origin (pan about Z, then
// tilt about X, then roll about Y) followed by translation. Poses are
// immutable values, created per observation or per hypothesis.
type Pose struct {
	X, Y, Z float64 // translation, mm

	Pan, Tilt, Roll float64 // radians
}

// IdentityPose returns the reference pose: no rotation, no translation.
func IdentityPose() Pose {
	return Pose{}
}

// rotationMatrix composes the 3x3 rotation R = Rroll * Rtilt * Rpan so that
// applying R to a vertex rotates it by pan, then tilt, then roll.
func (p Pose) rotationMatrix() *mat.Dense {
	cp, sp := math.Cos(p.Pan), math.Sin(p.Pan)
	ct, st := math.Cos(p.Tilt), math.Sin(p.Tilt)
	cr, sr := math.Cos(p.Roll), math.Sin(p.Roll)

	// Pan: rotation about Z (heading), counter-clockwise seen from above.
	rPan := mat.NewDense(3, 3, []float64{
		cp, -sp, 0,
		sp, cp, 0,
		0, 0, 1,
	})
	// Tilt: rotation about X; positive tilt pitches the forward axis up.
	rTilt := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, ct, -st,
		0, st, ct,
	})
	// Roll: rotation about Y (the forward axis).
	rRoll := mat.NewDense(3, 3, []float64{
		cr, 0, sr,
		0, 1, 0,
		-sr, 0, cr,
	})

	var rt, r mat.Dense
	rt.Mul(rTilt, rPan)
	r.Mul(rRoll, &rt)
	return &r
}

// Apply rotates v about the origin and then translates it.
func (p Pose) Apply(v Vertex) Vertex {
	out := p.ApplyAll([]Vertex{v})
	return out[0]
}

// ApplyAll transforms a vertex set, computing the rotation matrix once.
// The input slice is not modified.
func (p Pose) ApplyAll(vs []Vertex) []Vertex {
	r := p.rotationMatrix()
	out := make([]Vertex, len(vs))
	for i, v := range vs {
		out[i] = Vertex{
			X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z + p.X,
			Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z + p.Y,
			Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z + p.Z,
		}
	}
	return out
}

// Position returns the translation component as a Vertex.
func (p Pose) Position() Vertex {
	return Vertex{p.X, p.Y, p.Z}
}

// DistanceTo returns the Euclidean distance between the positions of two
// poses, in millimetres. Orientation is ignored; this is the displacement
// compared against the localisation radius.
func (p Pose) DistanceTo(o Pose) float64 {
	return p.Position().DistanceTo(o.Position())
}
