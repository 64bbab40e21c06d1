// Package geometry holds the pixel and normalized representations of face
// bounding boxes and the conversions between them.
//
// Boxes are stored in absolute pixel coordinates as four corners in the
// order top-left, top-right, bottom-right, bottom-left. Sidecar files store
// them normalized to the image size as [x0, y0, x1, y1] with every value in
// [0,1]. Converting back and forth is exact only for coordinates that are
// multiples of 1/width and 1/height; anything else is subject to float
// rounding.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is an absolute pixel position
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is a quadrilateral given by its four corners:
// top-left, top-right, bottom-right, bottom-left
type BoundingBox [4]Point

// Normalized is a box expressed as fractions of the image width and height
type Normalized struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// DefaultSize is the edge length in pixels of a freshly added box
const DefaultSize = 100

// Rect builds an axis-aligned box from its edges
func Rect(left, top, right, bottom float64) BoundingBox {
	return BoundingBox{
		{X: left, Y: top},
		{X: right, Y: top},
		{X: right, Y: bottom},
		{X: left, Y: bottom},
	}
}

// DefaultBox returns the box placed by "add box": a DefaultSize square
// anchored at the image origin
func DefaultBox() BoundingBox {
	return Rect(0, 0, DefaultSize, DefaultSize)
}

// FullImage returns a box covering an image of the given size
func FullImage(width, height int) BoundingBox {
	return Rect(0, 0, float64(width), float64(height))
}

// Bounds returns the axis-aligned extent of the box. Corners dragged past
// each other still produce left <= right and top <= bottom.
func (b BoundingBox) Bounds() (left, top, right, bottom float64) {
	left, top = b[0].X, b[0].Y
	right, bottom = b[0].X, b[0].Y
	for _, p := range b[1:] {
		left = math.Min(left, p.X)
		right = math.Max(right, p.X)
		top = math.Min(top, p.Y)
		bottom = math.Max(bottom, p.Y)
	}
	return left, top, right, bottom
}

// Width of the box extent in pixels
func (b BoundingBox) Width() float64 {
	l, _, r, _ := b.Bounds()
	return r - l
}

// Height of the box extent in pixels
func (b BoundingBox) Height() float64 {
	_, t, _, bt := b.Bounds()
	return bt - t
}

// Rectangle rounds the box extent to an integer pixel rectangle
func (b BoundingBox) Rectangle() image.Rectangle {
	l, t, r, bt := b.Bounds()
	return image.Rect(
		int(math.Round(l)), int(math.Round(t)),
		int(math.Round(r)), int(math.Round(bt)),
	)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%g,%g) (%g,%g) (%g,%g) (%g,%g)",
		b[0].X, b[0].Y, b[1].X, b[1].Y, b[2].X, b[2].Y, b[3].X, b[3].Y)
}

// ToNormalized maps a pixel box onto fractions of the image size.
// width and height must be positive.
func ToNormalized(b BoundingBox, width, height int) Normalized {
	l, t, r, bt := b.Bounds()
	fw, fh := float64(width), float64(height)
	return Normalized{
		X0: l / fw,
		Y0: t / fh,
		X1: r / fw,
		Y1: bt / fh,
	}
}

// FromNormalized is the inverse of ToNormalized
func FromNormalized(n Normalized, width, height int) BoundingBox {
	fw, fh := float64(width), float64(height)
	return Rect(n.X0*fw, n.Y0*fh, n.X1*fw, n.Y1*fh)
}

// Slice returns the sidecar form [x0, y0, x1, y1]
func (n Normalized) Slice() []float64 {
	return []float64{n.X0, n.Y0, n.X1, n.Y1}
}

// FromSlice parses the sidecar form [x0, y0, x1, y1]
func FromSlice(v []float64) (Normalized, error) {
	if len(v) != 4 {
		return Normalized{}, fmt.Errorf("normalized box needs 4 values, got %d", len(v))
	}
	return Normalized{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}, nil
}

// Clamp limits every coordinate to [0,1] and orders the edges
func (n Normalized) Clamp() Normalized {
	out := Normalized{
		X0: clamp(math.Min(n.X0, n.X1), 0, 1),
		Y0: clamp(math.Min(n.Y0, n.Y1), 0, 1),
		X1: clamp(math.Max(n.X0, n.X1), 0, 1),
		Y1: clamp(math.Max(n.Y0, n.Y1), 0, 1),
	}
	return out
}

// Empty reports whether the box has no area
func (n Normalized) Empty() bool {
	return n.X1 <= n.X0 || n.Y1 <= n.Y0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
