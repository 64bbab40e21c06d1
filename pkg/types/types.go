package types

// Face is one face reported by a vision model. Box holds normalized
// [x0, y0, x1, y1] corner coordinates in the [0,1] range.
type Face struct {
	Box        [4]float64 `json:"box"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
}

// FaceResult contains the complete face detection result from the vision model
type FaceResult struct {
	Faces       []Face `json:"faces"`
	Description string `json:"description"`
}

// Algorithm describes what produced a set of suggested boxes. It is stored in
// the sidecar under object_info.face.algorithm.
type Algorithm struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// RenderConfig defines how overlay and crop images are written
type RenderConfig struct {
	Format      string
	Quality     int
	Lossless    bool
	CropPadding float64
	CropSize    int
}
