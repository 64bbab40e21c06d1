package annotation

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/face-annotator/pkg/geometry"
)

func TestSaveRoundTrip(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !rec.Refined || rec.Modified() {
		t.Errorf("After save: refined=%v modified=%v", rec.Refined, rec.Modified())
	}

	doc := readDoc(t, rec.SidecarPath())
	raw, ok := dig(doc, "object_info", "face", "result", "bboxes").([]any)
	if !ok || len(raw) != 1 {
		t.Fatalf("Unexpected bboxes %v", dig(doc, "object_info", "face", "result", "bboxes"))
	}
	want := []float64{0.1, 0.2, 0.3, 0.4}
	for i, v := range raw[0].([]any) {
		if !near(v.(float64), want[i]) {
			t.Errorf("bbox[%d] = %v, want %v", i, v, want[i])
		}
	}
	if r := dig(doc, "dataset_info", "attributes", "answer_refined"); r != true {
		t.Errorf("Expected answer_refined true, got %v", r)
	}

	again, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	box, _ := again.Box(0)
	if !boxNear(box, geometry.BoundingBox{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 300, Y: 200}, {X: 100, Y: 200}}) {
		t.Errorf("Unexpected reloaded box %v", box)
	}
	if !again.Refined {
		t.Error("Reloaded record should be refined")
	}
}

func TestSavePreservesPassthrough(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	rec.AddBox()
	labeled := rec.AddBox()
	if err := rec.Relabel(labeled, "Ünïcode & <friends>"); err != nil {
		t.Fatal(err)
	}
	if err := rec.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _ := os.ReadFile(rec.SidecarPath())
	text := string(data)

	// Top-level and nested key order survive
	order := []string{`"dataset_info"`, `"image_info"`, `"object_info"`, `"zzz_extra"`}
	last := -1
	for _, k := range order {
		i := strings.Index(text, k)
		if i <= last {
			t.Errorf("Key %s out of order", k)
		}
		last = i
	}
	imageInfo := text[strings.Index(text, `"image_info"`):]
	if strings.Index(imageInfo, `"attributes"`) > strings.Index(imageInfo, `"image_name"`) {
		t.Error("image_info keys were reordered")
	}

	doc := readDoc(t, rec.SidecarPath())
	if v := dig(doc, "dataset_info", "attributes", "reviewer"); v != "kim" {
		t.Errorf("Unknown attribute lost, got %v", v)
	}
	if v := dig(doc, "object_info", "face", "algorithm", "name"); v != "retinaface" {
		t.Errorf("Algorithm lost, got %v", v)
	}
	if v, _ := dig(doc, "object_info", "face", "result", "ages").([]any); len(v) != 1 {
		t.Errorf("Ages lost, got %v", v)
	}
	if v := dig(doc, "zzz_extra", "keep"); v != true {
		t.Errorf("Extra key lost, got %v", v)
	}

	// Raw UTF-8, no HTML escaping, 4-space indentation
	for _, s := range []string{"홍길동", "Ünïcode & <friends>", DefaultPlaceholder, "\n    \"dataset_info\": {"} {
		if !strings.Contains(text, s) {
			t.Errorf("Expected sidecar to contain %q", s)
		}
	}
	if strings.Contains(text, `\u`) {
		t.Error("Sidecar should not contain escape sequences")
	}
}

func TestSaveWritesBackup(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.DeleteBox(0); err != nil {
		t.Fatal(err)
	}
	if err := rec.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	backup, err := os.ReadFile(rec.SidecarPath() + "~")
	if err != nil {
		t.Fatalf("Backup missing: %v", err)
	}
	if string(backup) != sampleSidecar {
		t.Error("Backup should hold the pre-save content")
	}

	// Second save overwrites the backup with the first save's output
	first, _ := os.ReadFile(rec.SidecarPath())
	if err := rec.Save(); err != nil {
		t.Fatal(err)
	}
	backup, _ = os.ReadFile(rec.BackupPath())
	if !bytes.Equal(backup, first) {
		t.Error("Backup should be replaced on every save")
	}
}

func TestSaveBackupSuffix(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img, WithBackupSuffix(".bak"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(rec.SidecarPath() + ".bak"); err != nil {
		t.Errorf("Expected .bak backup: %v", err)
	}
}

func TestSaveBackupFailureLeavesSidecar(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	// A directory where the backup file should go makes the copy fail
	if err := os.Mkdir(rec.BackupPath(), 0o755); err != nil {
		t.Fatal(err)
	}

	rec.AddBox()
	err = rec.Save()
	if !errors.Is(err, ErrBackup) {
		t.Fatalf("Expected ErrBackup, got %v", err)
	}

	data, _ := os.ReadFile(rec.SidecarPath())
	if string(data) != sampleSidecar {
		t.Error("Sidecar must be byte-identical after a failed backup")
	}
	if rec.Refined || !rec.Modified() {
		t.Errorf("Record state should be unchanged: refined=%v modified=%v", rec.Refined, rec.Modified())
	}
}

func TestSaveWriteFailureLeavesSidecar(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}

	orig := writeFile
	writeFile = func(string, []byte, os.FileMode) error { return errors.New("no space left on device") }
	defer func() { writeFile = orig }()

	rec.AddBox()
	if err := rec.Save(); !errors.Is(err, ErrWrite) {
		t.Fatalf("Expected ErrWrite, got %v", err)
	}

	data, _ := os.ReadFile(rec.SidecarPath())
	if string(data) != sampleSidecar {
		t.Error("Sidecar must be intact after a failed write")
	}
	if _, err := os.Stat(rec.BackupPath()); err != nil {
		t.Errorf("Backup should exist as recovery point: %v", err)
	}
	if rec.Refined {
		t.Error("Refined must not flip on a failed save")
	}
}

func TestSaveAfterSidecarRemoved(t *testing.T) {
	img := writeSidecar(t, sampleSidecar)
	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(rec.SidecarPath()); err != nil {
		t.Fatal(err)
	}

	if err := rec.Save(); err != nil {
		t.Fatalf("Save should recreate a removed sidecar: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(img), "face.json")); err != nil {
		t.Errorf("Sidecar not written: %v", err)
	}
}

func TestNoOpSaveMarksRefined(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.png")
	writeImage(t, img, 20, 10, 512)

	rec, err := LoadOrCreate(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Save(); err != nil {
		t.Fatal(err)
	}
	doc := readDoc(t, rec.SidecarPath())
	if r := dig(doc, "dataset_info", "attributes", "answer_refined"); r != true {
		t.Errorf("Expected answer_refined true after no-op save, got %v", r)
	}
}
