// Package annotation manages the JSON sidecar stored next to every face
// image: creating it on first access, loading boxes and identity labels,
// editing them in memory and writing them back with a backup copy.
//
// A Record keeps the whole sidecar document. Only the image attributes,
// the refined flag, the box list and the identity list are interpreted;
// every other key (algorithm metadata, dataset information, embeddings,
// ages, genders, unknown keys) is written back unchanged and in order.
package annotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/face-annotator/internal/utils"
	"github.com/menta2k/face-annotator/pkg/geometry"
	"github.com/menta2k/face-annotator/pkg/imageinfo"
)

// DefaultPlaceholder is the label given to boxes added by hand
const DefaultPlaceholder = "--추가해주세요--"

// DefaultDescription is written to dataset_info of new sidecars
const DefaultDescription = "FACE-ID DATASET"

// Schema keys
const (
	keyDatasetInfo   = "dataset_info"
	keyImageInfo     = "image_info"
	keyObjectInfo    = "object_info"
	keyAttributes    = "attributes"
	keyAnswerRefined = "answer_refined"
	keyFace          = "face"
	keyAlgorithm     = "algorithm"
	keyResult        = "result"
	keyBBoxes        = "bboxes"
	keyIDs           = "ids"
	keyLegacy        = "annotations"
)

var (
	pathRefined   = []string{keyDatasetInfo, keyAttributes, keyAnswerRefined}
	pathBBoxes    = []string{keyObjectInfo, keyFace, keyResult, keyBBoxes}
	pathIDs       = []string{keyObjectInfo, keyFace, keyResult, keyIDs}
	pathAlgorithm = []string{keyObjectInfo, keyFace, keyAlgorithm}
)

// Record is the in-memory form of one image's sidecar
type Record struct {
	ImagePath   string
	ImageWidth  int
	ImageHeight int
	ImageSize   int64
	Refined     bool

	sidecar    string
	doc        *Object
	boxes      []geometry.BoundingBox
	identities []string
	modified   bool
	opts       options
}

type options struct {
	now          func() time.Time
	logger       *slog.Logger
	placeholder  string
	backupSuffix string
	description  string
	prober       *imageinfo.Prober
}

// Option configures LoadOrCreate and Migrate
type Option func(*options)

// WithClock sets the clock used for creation timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPlaceholder sets the label used by AddBox
func WithPlaceholder(label string) Option {
	return func(o *options) { o.placeholder = label }
}

// WithBackupSuffix sets the suffix appended to the sidecar path for backups
func WithBackupSuffix(suffix string) Option {
	return func(o *options) {
		if suffix != "" {
			o.backupSuffix = suffix
		}
	}
}

// WithDatasetDescription sets dataset_info.description for new sidecars
func WithDatasetDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithProber sets the image prober used when a sidecar has to be created
func WithProber(p *imageinfo.Prober) Option {
	return func(o *options) {
		if p != nil {
			o.prober = p
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		placeholder:  DefaultPlaceholder,
		backupSuffix: "~",
		description:  DefaultDescription,
		prober:       imageinfo.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LoadOrCreate returns the record for an image. A missing sidecar is
// created from the image's own dimensions and written immediately.
func LoadOrCreate(imagePath string, opts ...Option) (*Record, error) {
	o := newOptions(opts)
	if abs, err := filepath.Abs(imagePath); err == nil {
		imagePath = abs
	}
	sidecar := utils.SidecarPath(imagePath)

	data, err := utils.ReadTextFile(sidecar)
	switch {
	case err == nil:
		r, err := parseRecord(imagePath, sidecar, data, o)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("loaded sidecar", "path", sidecar, "boxes", len(r.boxes), "refined", r.Refined)
		return r, nil
	case errors.Is(err, fs.ErrNotExist):
		return create(imagePath, sidecar, o)
	default:
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, sidecar, err)
	}
}

// Reload discards in-memory edits and reads the sidecar again
func (r *Record) Reload() error {
	data, err := utils.ReadTextFile(r.sidecar)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrParse, r.sidecar, err)
	}
	fresh, err := parseRecord(r.ImagePath, r.sidecar, data, r.opts)
	if err != nil {
		return err
	}
	*r = *fresh
	return nil
}

func create(imagePath, sidecar string, o options) (*Record, error) {
	info, err := o.prober.Probe(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageRead, imagePath, err)
	}

	doc, err := defaultDocument(info, o)
	if err != nil {
		return nil, fmt.Errorf("%w: build default sidecar: %v", ErrWrite, err)
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode sidecar: %v", ErrWrite, err)
	}
	if err := writeFile(sidecar, data, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWrite, sidecar, err)
	}
	o.logger.Info("created sidecar", "path", sidecar, "width", info.Width, "height", info.Height)

	return &Record{
		ImagePath:   imagePath,
		ImageWidth:  info.Width,
		ImageHeight: info.Height,
		ImageSize:   info.Size,
		sidecar:     sidecar,
		doc:         doc,
		boxes:       []geometry.BoundingBox{},
		identities:  []string{},
		opts:        o,
	}, nil
}

func defaultDocument(info imageinfo.Info, o options) (*Object, error) {
	attrs := NewObject()
	if err := attrs.Set(keyAnswerRefined, false); err != nil {
		return nil, err
	}
	dataset, err := buildObject(
		"description", o.description,
		"version", "1.0",
		"date_created", o.now().UTC().Format(time.RFC3339),
		keyAttributes, attrs,
	)
	if err != nil {
		return nil, err
	}

	imgAttrs, err := buildObject(
		"image_width", info.Width,
		"image_height", info.Height,
		"image_size", info.Size,
		"image_path", info.Path,
	)
	if err != nil {
		return nil, err
	}
	imageInfo, err := buildObject(
		"image_name", filepath.Base(info.Path),
		keyAttributes, imgAttrs,
	)
	if err != nil {
		return nil, err
	}

	algorithm, err := buildObject("name", "", "model", "")
	if err != nil {
		return nil, err
	}
	result, err := buildObject(
		keyBBoxes, [][]float64{},
		keyIDs, []string{},
		"embeddings", []any{},
		"ages", []any{},
		"genders", []any{},
	)
	if err != nil {
		return nil, err
	}
	face, err := buildObject(keyAlgorithm, algorithm, keyResult, result)
	if err != nil {
		return nil, err
	}
	objectInfo, err := buildObject(keyFace, face)
	if err != nil {
		return nil, err
	}

	return buildObject(
		keyDatasetInfo, dataset,
		keyImageInfo, imageInfo,
		keyObjectInfo, objectInfo,
	)
}

// buildObject builds an ordered object from alternating keys and values
func buildObject(kv ...any) (*Object, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("odd number of key/value arguments")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("key %v is not a string", kv[i])
		}
		if err := o.Set(key, kv[i+1]); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// sidecarView picks the fields this package interprets
type sidecarView struct {
	DatasetInfo *struct {
		Attributes *struct {
			AnswerRefined *bool `json:"answer_refined"`
		} `json:"attributes"`
	} `json:"dataset_info"`
	ImageInfo *struct {
		Attributes *struct {
			ImageWidth  *int   `json:"image_width"`
			ImageHeight *int   `json:"image_height"`
			ImageSize   int64  `json:"image_size"`
			ImagePath   string `json:"image_path"`
		} `json:"attributes"`
	} `json:"image_info"`
	ObjectInfo *struct {
		Face *struct {
			Result *struct {
				BBoxes *[][]float64 `json:"bboxes"`
				IDs    *[]string    `json:"ids"`
			} `json:"result"`
		} `json:"face"`
	} `json:"object_info"`
}

func parseRecord(imagePath, sidecar string, data []byte, o options) (*Record, error) {
	doc := NewObject()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, sidecar, err)
	}
	if doc.Has(keyLegacy) && !doc.Has(keyObjectInfo) {
		return nil, fmt.Errorf("%w: %s", ErrLegacySchema, sidecar)
	}

	var view sidecarView
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&view); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, sidecar, err)
	}

	if view.ImageInfo == nil || view.ImageInfo.Attributes == nil ||
		view.ImageInfo.Attributes.ImageWidth == nil || view.ImageInfo.Attributes.ImageHeight == nil {
		return nil, fmt.Errorf("%w: %s: missing image_info.attributes.image_width/image_height", ErrParse, sidecar)
	}
	attrs := view.ImageInfo.Attributes
	if *attrs.ImageWidth <= 0 || *attrs.ImageHeight <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid image size %dx%d", ErrParse, sidecar, *attrs.ImageWidth, *attrs.ImageHeight)
	}
	if view.ObjectInfo == nil || view.ObjectInfo.Face == nil || view.ObjectInfo.Face.Result == nil ||
		view.ObjectInfo.Face.Result.BBoxes == nil || view.ObjectInfo.Face.Result.IDs == nil {
		return nil, fmt.Errorf("%w: %s: missing object_info.face.result.bboxes/ids", ErrParse, sidecar)
	}
	rawBoxes := *view.ObjectInfo.Face.Result.BBoxes
	ids := *view.ObjectInfo.Face.Result.IDs
	if len(rawBoxes) != len(ids) {
		return nil, fmt.Errorf("%w: %s: %d boxes but %d ids", ErrParse, sidecar, len(rawBoxes), len(ids))
	}

	boxes := make([]geometry.BoundingBox, 0, len(rawBoxes))
	for i, raw := range rawBoxes {
		n, err := geometry.FromSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: box %d: %v", ErrParse, sidecar, i, err)
		}
		boxes = append(boxes, geometry.FromNormalized(n, *attrs.ImageWidth, *attrs.ImageHeight))
	}

	refined := false
	if view.DatasetInfo != nil && view.DatasetInfo.Attributes != nil && view.DatasetInfo.Attributes.AnswerRefined != nil {
		refined = *view.DatasetInfo.Attributes.AnswerRefined
	}

	return &Record{
		ImagePath:   imagePath,
		ImageWidth:  *attrs.ImageWidth,
		ImageHeight: *attrs.ImageHeight,
		ImageSize:   attrs.ImageSize,
		Refined:     refined,
		sidecar:     sidecar,
		doc:         doc,
		boxes:       boxes,
		identities:  append([]string{}, ids...),
		opts:        o,
	}, nil
}

// SidecarPath returns the JSON file backing the record
func (r *Record) SidecarPath() string { return r.sidecar }

// BackupPath returns where Save copies the previous sidecar
func (r *Record) BackupPath() string {
	return utils.BackupPath(r.sidecar, r.opts.backupSuffix)
}

// Placeholder returns the label AddBox assigns
func (r *Record) Placeholder() string { return r.opts.placeholder }

// Modified reports whether the record has edits that are not on disk
func (r *Record) Modified() bool { return r.modified }

// Len returns the number of boxes (and identities)
func (r *Record) Len() int { return len(r.boxes) }

// Box returns the box at i
func (r *Record) Box(i int) (geometry.BoundingBox, error) {
	if err := r.checkIndex(i); err != nil {
		return geometry.BoundingBox{}, err
	}
	return r.boxes[i], nil
}

// Identity returns the label at i
func (r *Record) Identity(i int) (string, error) {
	if err := r.checkIndex(i); err != nil {
		return "", err
	}
	return r.identities[i], nil
}

// Boxes returns a copy of the box list
func (r *Record) Boxes() []geometry.BoundingBox {
	return append([]geometry.BoundingBox(nil), r.boxes...)
}

// Identities returns a copy of the identity list
func (r *Record) Identities() []string {
	return append([]string(nil), r.identities...)
}

// Normalized returns the boxes as stored in the sidecar
func (r *Record) Normalized() []geometry.Normalized {
	out := make([]geometry.Normalized, len(r.boxes))
	for i, b := range r.boxes {
		out[i] = geometry.ToNormalized(b, r.ImageWidth, r.ImageHeight)
	}
	return out
}

// Algorithm returns the raw object_info.face.algorithm value
func (r *Record) Algorithm() (json.RawMessage, bool) {
	return r.doc.GetPath(pathAlgorithm...)
}

// SetAlgorithm replaces object_info.face.algorithm
func (r *Record) SetAlgorithm(v any) error {
	if err := r.doc.SetPath(v, pathAlgorithm...); err != nil {
		return fmt.Errorf("set algorithm: %w", err)
	}
	r.modified = true
	return nil
}

func (r *Record) checkIndex(i int) error {
	if i < 0 || i >= len(r.boxes) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndex, i, len(r.boxes))
	}
	return nil
}

// writeFile is replaced in tests to simulate I/O failures
var writeFile = func(path string, data []byte, perm os.FileMode) error {
	return utils.WriteFileAtomic(path, data, perm)
}
