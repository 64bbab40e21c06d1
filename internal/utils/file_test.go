package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSidecarPath(t *testing.T) {
	tests := map[string]string{
		"/data/faces/a.jpg":      "/data/faces/a.json",
		"/data/faces/a.b.PNG":    "/data/faces/a.b.json",
		"/data/faces/noext":      "/data/faces/noext.json",
		"relative/dir/face.webp": "relative/dir/face.json",
	}
	for in, want := range tests {
		if got := SidecarPath(in); got != want {
			t.Errorf("SidecarPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBackupPath(t *testing.T) {
	if got := BackupPath("/x/a.json", ""); got != "/x/a.json~" {
		t.Errorf("Expected default suffix, got %q", got)
	}
	if got := BackupPath("/x/a.json", ".bak"); got != "/x/a.json.bak" {
		t.Errorf("Expected custom suffix, got %q", got)
	}
}

func TestNaturalSort(t *testing.T) {
	in := []string{"img10.jpg", "img2.jpg", "IMG1.jpg", "img2b.jpg", "a/img3.png", "img02.jpg"}
	NaturalSort(in)

	want := []string{"a/img3.png", "IMG1.jpg", "img2.jpg", "img02.jpg", "img2b.jpg", "img10.jpg"}
	if !reflect.DeepEqual(in, want) {
		t.Errorf("Expected %v, got %v", want, in)
	}
}

func TestNaturalLessLongNumbers(t *testing.T) {
	a := "frame_99999999999999999999999.jpg"
	b := "frame_100000000000000000000000.jpg"
	if !NaturalLess(a, b) {
		t.Error("Expected shorter digit run to sort first")
	}
	if NaturalLess(b, a) {
		t.Error("Comparison should not be symmetric")
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"p10.jpg", "p2.png", "p1.json", "notes.txt", filepath.Join("nested", "p3.JPG")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}

	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		names = append(names, filepath.ToSlash(rel))
	}
	want := []string{"nested/p3.JPG", "p2.png", "p10.jpg"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected %v, got %v", want, names)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dst := filepath.Join(dir, "a.json~")
	if err := os.WriteFile(src, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("stale content that is longer"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != `{"a":1}` {
		t.Errorf("Unexpected copy content %q", got)
	}

	if err := CopyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("Expected error copying a missing file")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "second" {
		t.Errorf("Expected second, got %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected temp files to be cleaned up, found %d entries", len(entries))
	}

	if err := WriteFileAtomic(filepath.Join(dir, "missing", "x.json"), []byte("x"), 0o644); err == nil {
		t.Error("Expected error writing into a missing directory")
	}
}

func TestReadTextFileStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bom.txt")
	content := "홍길동\nAlice\n"
	if err := os.WriteFile(path, append([]byte("\xef\xbb\xbf"), content...), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadTextFile(path)
	if err != nil {
		t.Fatalf("ReadTextFile failed: %v", err)
	}
	if !bytes.Equal(got, []byte(content)) {
		t.Errorf("Expected %q, got %q", content, got)
	}

	plain := filepath.Join(dir, "plain.txt")
	_ = os.WriteFile(plain, []byte(content), 0o644)
	got, _ = ReadTextFile(plain)
	if string(got) != content {
		t.Errorf("Plain file changed on read: %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(" a/b:c? "); got != "a_b_c_" {
		t.Errorf("Unexpected sanitized name %q", got)
	}
	if got := SanitizeFilename("김철수"); got != "김철수" {
		t.Errorf("Non-ASCII names should pass through, got %q", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	if got := FormatFileSize(512); got != "512 B" {
		t.Errorf("Unexpected %q", got)
	}
	if got := FormatFileSize(204800); !strings.HasPrefix(got, "200.0 K") {
		t.Errorf("Unexpected %q", got)
	}
}
