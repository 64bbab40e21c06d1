package annotation

import (
	"github.com/menta2k/face-annotator/pkg/geometry"
)

// AddBox appends the default box with the placeholder label and returns its
// index
func (r *Record) AddBox() int {
	return r.appendBox(geometry.DefaultBox(), r.opts.placeholder)
}

// AddNormalizedBox appends a box given as fractions of the image size. An
// empty label gets the placeholder.
func (r *Record) AddNormalizedBox(n geometry.Normalized, label string) int {
	if label == "" {
		label = r.opts.placeholder
	}
	return r.appendBox(geometry.FromNormalized(n, r.ImageWidth, r.ImageHeight), label)
}

func (r *Record) appendBox(b geometry.BoundingBox, label string) int {
	r.boxes = append(r.boxes, b)
	r.identities = append(r.identities, label)
	r.modified = true
	return len(r.boxes) - 1
}

// DeleteBox removes the box and identity at i
func (r *Record) DeleteBox(i int) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.boxes = append(r.boxes[:i], r.boxes[i+1:]...)
	r.identities = append(r.identities[:i], r.identities[i+1:]...)
	r.modified = true
	return nil
}

// ReplaceBox sets the box at i, keeping its identity
func (r *Record) ReplaceBox(i int, b geometry.BoundingBox) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.boxes[i] = b
	r.modified = true
	return nil
}

// SetBoxToFullImage stretches the box at i over the whole image
func (r *Record) SetBoxToFullImage(i int) error {
	return r.ReplaceBox(i, geometry.FullImage(r.ImageWidth, r.ImageHeight))
}

// Relabel sets the identity at i
func (r *Record) Relabel(i int, label string) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.identities[i] = label
	r.modified = true
	return nil
}
