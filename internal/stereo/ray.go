package stereo

// Vertex roles within an EvidenceRay. The ordering is load-bearing: End is
// the best-estimate occupied point, Start the near (camera-side) boundary,
// Left and Right the lateral uncertainty bounds at the cone's wide end.
const (
	VertexStart = iota
	VertexEnd
	VertexLeft
	VertexRight
	rayVertexCount
)

// EvidenceRay is the probabilistic record produced for one stereo
// correspondence: an uncertainty cone of four vertices from the camera
// toward the measured point, plus the estimated distance, a visualisation
// colour and the originating camera. It is created once per correspondence
// and immutable after construction except for whole-ray rigid transforms.
type EvidenceRay struct {
	Vertices [rayVertexCount]Vertex
	LengthMM float64
	Colour   [3]uint8
	CameraID int

	// Lookup keys into the RayModel, fixed at creation.
	disparityPx float64
	pixelRow    int
}

// Start returns the near, camera-side boundary vertex.
func (r *EvidenceRay) Start() Vertex { return r.Vertices[VertexStart] }

// End returns the best-estimate occupied point.
func (r *EvidenceRay) End() Vertex { return r.Vertices[VertexEnd] }

// Left returns the lateral uncertainty bound on the camera's left.
func (r *EvidenceRay) Left() Vertex { return r.Vertices[VertexLeft] }

// Right returns the lateral uncertainty bound on the camera's right.
func (r *EvidenceRay) Right() Vertex { return r.Vertices[VertexRight] }

// DisparityPx returns the pixel disparity the ray was built from.
func (r *EvidenceRay) DisparityPx() float64 { return r.disparityPx }

// PixelRow returns the image row the ray was built from.
func (r *EvidenceRay) PixelRow() int { return r.pixelRow }

// TranslateRotate applies rotation (pan, then tilt, then roll) about the
// origin followed by translation to all four vertices, preserving their
// start/end/left/right identity. This is the ray's only mutator.
func (r *EvidenceRay) TranslateRotate(pose Pose) {
	out := pose.ApplyAll(r.Vertices[:])
	copy(r.Vertices[:], out)
}

// Clone returns an independent copy of the ray. Used by the
// multi-hypothesis grid so each hypothesis can re-anchor the ray to its own
// pose without sharing state.
func (r *EvidenceRay) Clone() *EvidenceRay {
	c := *r
	return &c
}
