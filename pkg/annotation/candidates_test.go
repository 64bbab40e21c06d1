package annotation

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_cand_list.txt")
	content := "\xef\xbb\xbf홍길동\r\nAlice\n alice \n\nBob"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCandidates(path)
	if err != nil {
		t.Fatalf("LoadCandidates failed: %v", err)
	}
	want := []string{"홍길동", "Alice", " alice ", "", "Bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if _, err := LoadCandidates(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing list")
	}
}

func TestCheckAgainstCandidates(t *testing.T) {
	rec := newTestRecord(100, 100, 0)
	for _, label := range []string{"Alice", "alice", " Alice", "홍길동", "Bob"} {
		if err := rec.Relabel(rec.AddBox(), label); err != nil {
			t.Fatal(err)
		}
	}

	got := rec.CheckAgainstCandidates([]string{"Alice", "홍길동"})
	want := []bool{true, false, false, true, false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if unknown := rec.Unknown([]string{"Alice", "홍길동"}); !reflect.DeepEqual(unknown, []int{1, 2, 4}) {
		t.Errorf("Unexpected unknown indices %v", unknown)
	}

	if got := rec.CheckAgainstCandidates(nil); !reflect.DeepEqual(got, []bool{false, false, false, false, false}) {
		t.Errorf("Empty candidate list should flag every identity, got %v", got)
	}
}

func TestCandidateChoices(t *testing.T) {
	list := []string{"Alice", "Bob"}

	choices, ok := CandidateChoices(list, "Bob")
	if !ok || !reflect.DeepEqual(choices, list) {
		t.Errorf("Known label: got %v, %v", choices, ok)
	}

	choices, ok = CandidateChoices(list, "Carol")
	if ok {
		t.Error("Expected unknown label to be reported")
	}
	if !reflect.DeepEqual(choices, []string{"Carol", "Alice", "Bob"}) {
		t.Errorf("Unknown label should be prepended, got %v", choices)
	}
	if len(list) != 2 {
		t.Error("Input list must not be modified")
	}
}
