package annotation

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/menta2k/face-annotator/internal/utils"
	"github.com/menta2k/face-annotator/pkg/geometry"
)

// legacyAnnotations is the "annotations" section of the old layout, where
// boxes are pixel corner lists and labels live under "text"
type legacyAnnotations struct {
	ID         string            `json:"id"`
	ImageName  string            `json:"image_name"`
	BBoxes     []json.RawMessage `json:"bboxes"`
	Text       []string          `json:"text"`
	Attributes json.RawMessage   `json:"attributes"`
}

type legacyAttributes struct {
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
}

// IsLegacy reports whether the sidecar of an image uses the old layout
func IsLegacy(imagePath string) (bool, error) {
	data, err := utils.ReadTextFile(utils.SidecarPath(imagePath))
	if err != nil {
		return false, err
	}
	doc := NewObject()
	if err := json.Unmarshal(data, doc); err != nil {
		return false, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return doc.Has(keyLegacy) && !doc.Has(keyObjectInfo), nil
}

// Migrate rewrites an old-layout sidecar in the canonical layout and returns
// the loaded record. The old file is kept at the backup path. Top-level
// keys other than "info" and "annotations" are carried over.
func Migrate(imagePath string, opts ...Option) (*Record, error) {
	o := newOptions(opts)
	if abs, err := filepath.Abs(imagePath); err == nil {
		imagePath = abs
	}
	sidecar := utils.SidecarPath(imagePath)

	data, err := utils.ReadTextFile(sidecar)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, sidecar, err)
	}
	old := NewObject()
	if err := json.Unmarshal(data, old); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, sidecar, err)
	}
	if old.Has(keyObjectInfo) || !old.Has(keyLegacy) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCanonical, sidecar)
	}

	doc, err := convertLegacy(old, imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, sidecar, err)
	}
	out, err := encodeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode sidecar: %v", ErrWrite, err)
	}

	backup := utils.BackupPath(sidecar, o.backupSuffix)
	if err := utils.CopyFile(sidecar, backup); err != nil {
		return nil, fmt.Errorf("%w: copy %s to %s: %v", ErrBackup, sidecar, backup, err)
	}
	if err := writeFile(sidecar, out, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWrite, sidecar, err)
	}
	o.logger.Info("migrated legacy sidecar", "path", sidecar, "backup", backup)

	return parseRecord(imagePath, sidecar, out, o)
}

func convertLegacy(old *Object, imagePath string) (*Object, error) {
	var ann legacyAnnotations
	raw, _ := old.Get(keyLegacy)
	if err := json.Unmarshal(raw, &ann); err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}
	var attrs legacyAttributes
	if len(ann.Attributes) == 0 {
		return nil, fmt.Errorf("annotations.attributes missing")
	}
	if err := json.Unmarshal(ann.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("annotations.attributes: %w", err)
	}
	if attrs.ImageWidth <= 0 || attrs.ImageHeight <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", attrs.ImageWidth, attrs.ImageHeight)
	}
	if len(ann.BBoxes) != len(ann.Text) {
		return nil, fmt.Errorf("%d boxes but %d labels", len(ann.BBoxes), len(ann.Text))
	}

	bboxes := make([][]float64, 0, len(ann.BBoxes))
	for i, rb := range ann.BBoxes {
		box, err := parseLegacyBox(rb)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		bboxes = append(bboxes, geometry.ToNormalized(box, attrs.ImageWidth, attrs.ImageHeight).Slice())
	}

	dataset := NewObject()
	if old.Has("info") {
		var err error
		if dataset, err = old.Object("info"); err != nil {
			return nil, err
		}
	}
	if !dataset.Has(keyAttributes) {
		if err := dataset.SetPath(false, keyAttributes, keyAnswerRefined); err != nil {
			return nil, err
		}
	}

	name := ann.ImageName
	if name == "" {
		name = filepath.Base(imagePath)
	}
	imageInfo, err := buildObject("image_name", name, keyAttributes, ann.Attributes)
	if err != nil {
		return nil, err
	}
	algorithm, err := buildObject("name", "", "model", "")
	if err != nil {
		return nil, err
	}
	ids := ann.Text
	if ids == nil {
		ids = []string{}
	}
	result, err := buildObject(
		keyBBoxes, bboxes,
		keyIDs, ids,
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

	doc, err := buildObject(
		keyDatasetInfo, dataset,
		keyImageInfo, imageInfo,
		keyObjectInfo, objectInfo,
	)
	if err != nil {
		return nil, err
	}
	for _, k := range old.Keys() {
		if k == "info" || k == keyLegacy || doc.Has(k) {
			continue
		}
		v, _ := old.Get(k)
		doc.SetRaw(k, v)
	}
	return doc, nil
}

// parseLegacyBox accepts [[x,y],[x,y],[x,y],[x,y]] and the flattened
// [x0,y0,x1,y1,x2,y2,x3,y3] the old editor wrote on save
func parseLegacyBox(raw json.RawMessage) (geometry.BoundingBox, error) {
	var pairs [][]float64
	if err := json.Unmarshal(raw, &pairs); err == nil {
		if len(pairs) != 4 {
			return geometry.BoundingBox{}, fmt.Errorf("expected 4 points, got %d", len(pairs))
		}
		var box geometry.BoundingBox
		for i, p := range pairs {
			if len(p) != 2 {
				return geometry.BoundingBox{}, fmt.Errorf("point %d has %d values", i, len(p))
			}
			box[i] = geometry.Point{X: p[0], Y: p[1]}
		}
		return box, nil
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return geometry.BoundingBox{}, fmt.Errorf("unrecognized box %s", raw)
	}
	if len(flat) != 8 {
		return geometry.BoundingBox{}, fmt.Errorf("expected 8 values, got %d", len(flat))
	}
	var box geometry.BoundingBox
	for i := range box {
		box[i] = geometry.Point{X: flat[2*i], Y: flat[2*i+1]}
	}
	return box, nil
}
