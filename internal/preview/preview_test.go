package preview

import (
	"bytes"
	"image/png"
	"testing"

	"space-arena/internal/arena"
	"space-arena/internal/arena/physics"
)

type fakeSource struct{}

func (fakeSource) WorldSize() (float64, float64) { return 400, 200 }

func (fakeSource) StaticSnapshot() []arena.BodySnapshot {
	return []arena.BodySnapshot{{ID: "sun", Kind: arena.KindStatic, State: physics.State{PosX: 100, PosY: 100, Size: 40}}}
}

func (fakeSource) DynamicSnapshot() []arena.BodySnapshot {
	return []arena.BodySnapshot{
		{ID: "p", Kind: arena.KindPlayer, State: physics.State{PosX: 300, PosY: 50, Size: 20}},
		{ID: "r", Kind: arena.KindDynamic, State: physics.State{PosX: 350, PosY: 150, Size: 10}},
	}
}

func (fakeSource) GridOccupancy() (int, int, float64, []int) {
	return 4, 2, 100, []int{0, 0, 0, 1, 0, 0, 0, 1}
}

// TestRenderDimensions tests the aspect ratio is preserved
func TestRenderDimensions(t *testing.T) {
	r, err := NewRenderer(200)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	img, err := r.Render(CaptureScene(fakeSource{}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("Expected 200x100, got %dx%d", b.Dx(), b.Dy())
	}

	// the static at (100,100) world is (50,50) in the image
	if r, _, _, _ := img.At(50, 50).RGBA(); r>>8 < 200 {
		t.Errorf("Expected the static body colour at (50,50), got red=%d", r>>8)
	}
}

// TestEncodePNG tests the PNG output decodes
func TestEncodePNG(t *testing.T) {
	r, _ := NewRenderer(120)

	var buf bytes.Buffer
	if err := r.EncodePNG(&buf, CaptureScene(fakeSource{})); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 120 {
		t.Errorf("Expected width 120, got %d", img.Bounds().Dx())
	}
}

// TestRenderRejectsBadInput tests validation
func TestRenderRejectsBadInput(t *testing.T) {
	if _, err := NewRenderer(0); err == nil {
		t.Error("Expected an error for width 0")
	}
	r, _ := NewRenderer(100)
	if _, err := r.Render(Scene{}); err == nil {
		t.Error("Expected an error for an empty world")
	}
}
