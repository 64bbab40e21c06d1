package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/face-annotator/pkg/geometry"
)

// Box colors used by CreateOverlay
var (
	ColorKnown    = color.NRGBA{0, 255, 0, 255}   // identity in candidate list
	ColorUnknown  = color.NRGBA{255, 204, 0, 255} // identity missing from candidate list
	ColorSelected = color.NRGBA{255, 0, 0, 255}   // currently selected box
)

// Processor handles image output operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// OverlayBox is one box to draw
type OverlayBox struct {
	Box      geometry.BoundingBox
	Known    bool
	Selected bool
}

// Crop is one face cut out of an image
type Crop struct {
	Index    int
	Identity string
	Image    image.Image
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CropBox cuts a pixel box out of img. padding grows the box by that
// fraction of its size on every side. With targetWidth and targetHeight set
// the crop is filled to exactly that size.
func (p *Processor) CropBox(img image.Image, box geometry.BoundingBox, padding float64, targetWidth, targetHeight int) (image.Image, error) {
	bounds := img.Bounds()

	l, t, r, b := box.Bounds()
	if padding > 0 {
		padX := (r - l) * padding
		padY := (b - t) * padding
		l, r = l-padX, r+padX
		t, b = t-padY, b+padY
	}

	rect := image.Rect(
		int(math.Floor(l))+bounds.Min.X, int(math.Floor(t))+bounds.Min.Y,
		int(math.Ceil(r))+bounds.Min.X, int(math.Ceil(b))+bounds.Min.Y,
	).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle for box %v", box)
	}

	cropped := imaging.Crop(img, rect)

	if targetWidth > 0 && targetHeight > 0 {
		cropped = imaging.Fill(cropped, targetWidth, targetHeight, imaging.Center, imaging.Lanczos)
	}

	return cropped, nil
}

// CropFaces cuts every box out of img. Boxes that fall outside the image are
// skipped and reported in the returned error list.
func (p *Processor) CropFaces(img image.Image, boxes []geometry.BoundingBox, identities []string, padding float64, size int) ([]Crop, []error) {
	var crops []Crop
	var errs []error
	for i, box := range boxes {
		c, err := p.CropBox(img, box, padding, size, size)
		if err != nil {
			errs = append(errs, fmt.Errorf("box %d: %w", i, err))
			continue
		}
		id := ""
		if i < len(identities) {
			id = identities[i]
		}
		crops = append(crops, Crop{Index: i, Identity: id, Image: c})
	}
	return crops, errs
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateOverlay draws boxes over a copy of img
func (p *Processor) CreateOverlay(img image.Image, boxes []OverlayBox) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	// Selected box last so it stays on top
	for _, selectedPass := range []bool{false, true} {
		for _, ob := range boxes {
			if ob.Selected != selectedPass {
				continue
			}
			c := ColorUnknown
			switch {
			case ob.Selected:
				c = ColorSelected
			case ob.Known:
				c = ColorKnown
			}
			drawBox(nrgba, ob.Box, c, stroke)
		}
	}

	return nrgba
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boxToPixels(box geometry.BoundingBox, w, h int) (int, int, int, int) {
	rect := box.Rectangle().Intersect(image.Rect(0, 0, w, h))
	x0, y0, x1, y1 := rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, box geometry.BoundingBox, color color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(box, img.Bounds().Dx(), img.Bounds().Dy())
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, color)
		drawHLine(img, y1-1-s, x0, x1, color)
		drawVLine(img, x0+s, y0, y1, color)
		drawVLine(img, x1-1-s, y0, y1, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
