package grid

import (
	"bytes"
	"testing"
)

func TestShow_Deterministic(t *testing.T) {
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)
	for i := 0; i < 5; i++ {
		g.Insert(ray, model, leftCam, rightCam, false)
	}

	const w, h = 120, 120
	a := make([]uint8, w*h*3)
	b := make([]uint8, w*h*3)
	if err := g.Show(a, w, h, true); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if err := g.Show(b, w, h, true); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical grid state rendered differently")
	}
}

func TestShow_ReflectsInsertions(t *testing.T) {
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const w, h = 120, 120
	before := make([]uint8, w*h*3)
	if err := g.Show(before, w, h, false); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)
	for i := 0; i < 5; i++ {
		g.Insert(ray, model, leftCam, rightCam, false)
	}

	after := make([]uint8, w*h*3)
	if err := g.Show(after, w, h, false); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if bytes.Equal(before, after) {
		t.Error("top-down projection unchanged after insertions")
	}

	front := make([]uint8, w*h*3)
	if err := g.ShowFront(front, w, h, false); err != nil {
		t.Fatalf("ShowFront failed: %v", err)
	}
	if bytes.Equal(front, before) {
		t.Error("frontal projection unchanged after insertions")
	}
}

func TestShow_HighlightUsesRayColour(t *testing.T) {
	g, err := New(testGridConfig(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15) // colour 200,30,30
	for i := 0; i < 10; i++ {
		g.Insert(ray, model, leftCam, rightCam, false)
	}

	const w, h = 240, 240
	buf := make([]uint8, w*h*3)
	if err := g.Show(buf, w, h, true); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	// Some pixel must carry the evidence colour (red-dominant).
	found := false
	for off := 0; off < len(buf); off += 3 {
		if buf[off] > buf[off+1]+50 && buf[off] > buf[off+2]+50 {
			found = true
			break
		}
	}
	if !found {
		t.Error("no pixel carries the inserted evidence colour")
	}
}

func TestShow_BufferErrors(t *testing.T) {
	g, err := New(testGridConfig(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := g.Show(make([]uint8, 10), 100, 100, false); err == nil {
		t.Error("expected error for undersized buffer")
	}
	if err := g.ShowFront(make([]uint8, 300), 0, 100, false); err == nil {
		t.Error("expected error for zero width")
	}
}
