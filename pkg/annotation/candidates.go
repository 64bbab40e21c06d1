package annotation

import (
	"bufio"
	"fmt"
	"os"

	"github.com/menta2k/face-annotator/internal/utils"
)

// LoadCandidates reads the known identity labels, one per line. The file is
// read on every call; nothing is cached. Lines are kept as they are apart
// from the line terminator.
func LoadCandidates(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candidate list: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(utils.NewTextReader(f))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candidate list: %w", err)
	}
	return out, nil
}

// CheckAgainstCandidates reports, per identity, whether it appears in the
// candidate list. Matching is exact: no case folding, no trimming.
func (r *Record) CheckAgainstCandidates(candidates []string) []bool {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c] = struct{}{}
	}
	out := make([]bool, len(r.identities))
	for i, id := range r.identities {
		_, out[i] = known[id]
	}
	return out
}

// Unknown returns the indices whose identity is not a candidate
func (r *Record) Unknown(candidates []string) []int {
	var idx []int
	for i, ok := range r.CheckAgainstCandidates(candidates) {
		if !ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// CandidateChoices returns the labels offered for a box. When current is not
// a candidate it is put first so the box keeps its label selectable, and
// false is returned.
func CandidateChoices(candidates []string, current string) ([]string, bool) {
	for _, c := range candidates {
		if c == current {
			return append([]string(nil), candidates...), true
		}
	}
	out := make([]string, 0, len(candidates)+1)
	out = append(out, current)
	out = append(out, candidates...)
	return out, false
}
