package annotation

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/menta2k/face-annotator/pkg/geometry"
)

// newTestRecord builds an in-memory record with n boxes labelled id0..idN
func newTestRecord(width, height, n int) *Record {
	rec := &Record{
		ImageWidth:  width,
		ImageHeight: height,
		doc:         NewObject(),
		opts:        newOptions(nil),
	}
	for i := 0; i < n; i++ {
		f := float64(i)
		rec.boxes = append(rec.boxes, geometry.Rect(f, f, f+10, f+10))
		rec.identities = append(rec.identities, "id"+string(rune('0'+i)))
	}
	return rec
}

func TestAddBox(t *testing.T) {
	rec := newTestRecord(800, 600, 2)

	idx := rec.AddBox()
	if idx != 2 {
		t.Errorf("Expected index 2, got %d", idx)
	}
	if rec.Len() != 3 {
		t.Fatalf("Expected 3 boxes, got %d", rec.Len())
	}

	box, _ := rec.Box(idx)
	want := geometry.BoundingBox{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	if box != want {
		t.Errorf("Expected %v, got %v", want, box)
	}
	if id, _ := rec.Identity(idx); id != DefaultPlaceholder {
		t.Errorf("Expected placeholder label, got %q", id)
	}
	if !rec.Modified() {
		t.Error("AddBox should mark the record modified")
	}
}

func TestAddBoxCustomPlaceholder(t *testing.T) {
	rec := newTestRecord(800, 600, 0)
	rec.opts = newOptions([]Option{WithPlaceholder("unknown")})

	idx := rec.AddBox()
	if id, _ := rec.Identity(idx); id != "unknown" {
		t.Errorf("Expected custom placeholder, got %q", id)
	}
}

func TestAddNormalizedBox(t *testing.T) {
	rec := newTestRecord(1000, 500, 0)

	idx := rec.AddNormalizedBox(geometry.Normalized{X0: 0.1, Y0: 0.2, X1: 0.3, Y1: 0.4}, "")
	box, _ := rec.Box(idx)
	if !boxNear(box, geometry.Rect(100, 100, 300, 200)) {
		t.Errorf("Unexpected box %v", box)
	}
	if id, _ := rec.Identity(idx); id != DefaultPlaceholder {
		t.Errorf("Empty label should become the placeholder, got %q", id)
	}
}

func TestDeleteBox(t *testing.T) {
	rec := newTestRecord(800, 600, 4)
	before := rec.Boxes()

	if err := rec.DeleteBox(1); err != nil {
		t.Fatalf("DeleteBox failed: %v", err)
	}

	if rec.Len() != 3 {
		t.Fatalf("Expected 3 boxes, got %d", rec.Len())
	}
	wantBoxes := []geometry.BoundingBox{before[0], before[2], before[3]}
	wantIDs := []string{"id0", "id2", "id3"}
	for i := range wantBoxes {
		b, _ := rec.Box(i)
		id, _ := rec.Identity(i)
		if b != wantBoxes[i] || id != wantIDs[i] {
			t.Errorf("Position %d: expected %v/%s, got %v/%s", i, wantBoxes[i], wantIDs[i], b, id)
		}
	}
}

func TestSetBoxToFullImage(t *testing.T) {
	rec := newTestRecord(800, 600, 1)

	if err := rec.SetBoxToFullImage(0); err != nil {
		t.Fatalf("SetBoxToFullImage failed: %v", err)
	}
	box, _ := rec.Box(0)
	want := geometry.BoundingBox{{X: 0, Y: 0}, {X: 800, Y: 0}, {X: 800, Y: 600}, {X: 0, Y: 600}}
	if box != want {
		t.Errorf("Expected %v, got %v", want, box)
	}
	if id, _ := rec.Identity(0); id != "id0" {
		t.Errorf("Identity should be untouched, got %q", id)
	}
}

func TestReplaceAndRelabel(t *testing.T) {
	rec := newTestRecord(800, 600, 2)

	if err := rec.ReplaceBox(1, geometry.Rect(5, 6, 7, 8)); err != nil {
		t.Fatal(err)
	}
	if err := rec.Relabel(1, "Alice"); err != nil {
		t.Fatal(err)
	}
	box, _ := rec.Box(1)
	id, _ := rec.Identity(1)
	if box != geometry.Rect(5, 6, 7, 8) || id != "Alice" {
		t.Errorf("Unexpected box %v / identity %q", box, id)
	}
}

func TestIndexErrors(t *testing.T) {
	rec := newTestRecord(800, 600, 2)
	snapshot := rec.Boxes()

	for _, idx := range []int{-1, 2, 100} {
		if err := rec.DeleteBox(idx); !errors.Is(err, ErrIndex) {
			t.Errorf("DeleteBox(%d): expected ErrIndex, got %v", idx, err)
		}
		if err := rec.SetBoxToFullImage(idx); !errors.Is(err, ErrIndex) {
			t.Errorf("SetBoxToFullImage(%d): expected ErrIndex, got %v", idx, err)
		}
		if err := rec.Relabel(idx, "x"); !errors.Is(err, ErrIndex) {
			t.Errorf("Relabel(%d): expected ErrIndex, got %v", idx, err)
		}
		if err := rec.ReplaceBox(idx, geometry.DefaultBox()); !errors.Is(err, ErrIndex) {
			t.Errorf("ReplaceBox(%d): expected ErrIndex, got %v", idx, err)
		}
		if _, err := rec.Box(idx); !errors.Is(err, ErrIndex) {
			t.Errorf("Box(%d): expected ErrIndex, got %v", idx, err)
		}
	}

	if rec.Modified() {
		t.Error("Failed mutations must not mark the record modified")
	}
	for i, b := range rec.Boxes() {
		if b != snapshot[i] {
			t.Errorf("Box %d changed after failed mutations", i)
		}
	}

	empty := newTestRecord(800, 600, 0)
	if err := empty.DeleteBox(0); !errors.Is(err, ErrIndex) {
		t.Errorf("Expected ErrIndex on empty record, got %v", err)
	}
}

func TestLengthInvariant(t *testing.T) {
	rec := newTestRecord(640, 480, 3)
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 500; step++ {
		n := rec.Len()
		switch rng.Intn(4) {
		case 0:
			rec.AddBox()
		case 1:
			_ = rec.DeleteBox(rng.Intn(n + 1))
		case 2:
			_ = rec.Relabel(rng.Intn(n+1), "label")
		case 3:
			_ = rec.SetBoxToFullImage(rng.Intn(n + 1))
		}
		if len(rec.Boxes()) != len(rec.Identities()) {
			t.Fatalf("step %d: %d boxes vs %d identities", step, len(rec.Boxes()), len(rec.Identities()))
		}
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	rec := newTestRecord(100, 100, 1)

	boxes := rec.Boxes()
	boxes[0] = geometry.FullImage(1, 1)
	ids := rec.Identities()
	ids[0] = "mutated"

	if b, _ := rec.Box(0); b == geometry.FullImage(1, 1) {
		t.Error("Boxes() must return a copy")
	}
	if id, _ := rec.Identity(0); id == "mutated" {
		t.Error("Identities() must return a copy")
	}
}
