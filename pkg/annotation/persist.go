package annotation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/menta2k/face-annotator/internal/utils"
)

// Save marks the record refined and writes it back to its sidecar.
//
// The previous sidecar is copied to BackupPath first; if that copy fails
// nothing is written. The new content goes through a temp file and a
// rename so a failed write leaves the previous sidecar in place. On any
// failure the in-memory record is left as it was before the call.
func (r *Record) Save() error {
	doc := r.doc.Clone()
	if err := doc.SetPath(true, pathRefined...); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	raw := make([][]float64, len(r.boxes))
	for i, n := range r.Normalized() {
		raw[i] = n.Slice()
	}
	if err := doc.SetPath(raw, pathBBoxes...); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := doc.SetPath(append([]string{}, r.identities...), pathIDs...); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("%w: encode sidecar: %v", ErrWrite, err)
	}

	backup := r.BackupPath()
	if err := utils.CopyFile(r.sidecar, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || utils.FileExists(r.sidecar) {
			return fmt.Errorf("%w: copy %s to %s: %v", ErrBackup, r.sidecar, backup, err)
		}
		r.opts.logger.Warn("sidecar vanished before save, skipping backup", "path", r.sidecar)
	}

	perm := os.FileMode(0o644)
	if st, err := os.Stat(r.sidecar); err == nil {
		perm = st.Mode().Perm()
	}
	if err := writeFile(r.sidecar, data, perm); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, r.sidecar, err)
	}

	r.doc = doc
	r.Refined = true
	r.modified = false
	r.opts.logger.Info("saved sidecar", "path", r.sidecar, "boxes", len(r.boxes), "backup", backup)
	return nil
}
