// Package imageinfo reads image dimensions and file sizes for new sidecars
package imageinfo

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned for images whose format is not accepted
var ErrUnsupported = errors.New("unsupported image format")

// Info describes an image file on disk
type Info struct {
	Path   string
	Width  int
	Height int
	Size   int64
	Format string
}

// AspectRatio returns width / height
func (i Info) AspectRatio() float64 {
	if i.Height == 0 {
		return 0
	}
	return float64(i.Width) / float64(i.Height)
}

// Config holds the accepted formats and minimum dimensions
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// Prober reads image headers
type Prober struct {
	config Config
}

// DefaultFormats are the formats the editor accepts
var DefaultFormats = []string{"jpeg", "png", "webp", "bmp", "tiff", "gif"}

// New creates a Prober with default configuration
func New() *Prober {
	return &Prober{
		config: Config{
			SupportedFormats: DefaultFormats,
			MinImageSize:     1,
		},
	}
}

// NewWithConfig creates a Prober with custom configuration
func NewWithConfig(config Config) *Prober {
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultFormats
	}
	return &Prober{config: config}
}

// Probe reads width, height and byte size without decoding pixel data
func (p *Prober) Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat image file: %w", err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}

	cfg, format, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		// chai2010/webp understands extended WebP headers the x/image
		// decoder rejects
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return Info{}, fmt.Errorf("failed to decode image header: %w", err)
		}
		wcfg, werr := webp.DecodeConfig(f)
		if werr != nil {
			return Info{}, fmt.Errorf("failed to decode image header: %w", err)
		}
		cfg, format = wcfg, "webp"
	}

	if !p.isFormatSupported(format) {
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}

	info := Info{
		Path:   path,
		Width:  cfg.Width,
		Height: cfg.Height,
		Size:   st.Size(),
		Format: format,
	}
	if err := p.Validate(info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// Validate checks the dimensions against the configured minimum
func (p *Prober) Validate(info Info) error {
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", info.Width, info.Height)
	}
	if info.Width < p.config.MinImageSize || info.Height < p.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			info.Width, info.Height, p.config.MinImageSize)
	}
	return nil
}

// LoadImage decodes the full image. EXIF orientation is not applied so the
// pixel grid matches the probed dimensions stored in the sidecar.
func (p *Prober) LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, fmt.Errorf("failed to open image file: %w", ferr)
		}
		defer f.Close()
		if wimg, werr := webp.Decode(f); werr == nil {
			return wimg, nil
		}
	}
	return nil, fmt.Errorf("failed to decode image: %w", err)
}

func (p *Prober) isFormatSupported(format string) bool {
	for _, supported := range p.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
		if strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg") {
			return true
		}
	}
	return false
}

var defaultProber = New()

// Probe reads image metadata with the default configuration
func Probe(path string) (Info, error) {
	return defaultProber.Probe(path)
}

// LoadImage decodes an image with the default configuration
func LoadImage(path string) (image.Image, error) {
	return defaultProber.LoadImage(path)
}
