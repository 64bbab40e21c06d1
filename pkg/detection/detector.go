package detection

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/face-annotator/pkg/client"
	"github.com/menta2k/face-annotator/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt is the default prompt for face localization
const DefaultPrompt = `You are a face locator.

Return JSON only:
{
  "faces": [
    {"box": [0.0, 0.0, 0.0, 0.0], "label": "", "confidence": 0.0}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- "box" is [x0, y0, x1, y1]: left, top, right, bottom of one face.
- All coordinates are normalized to [0,1] (NOT pixels).
- One entry per visible human face. The box covers forehead to chin and ear to ear.
- Leave "label" empty. Do not guess real identities.
- If no face is visible, return {"faces": [], "description": "no faces"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// DefaultMinConfidence drops faces the model itself is unsure about. A face
// with no reported confidence (0) is kept.
const DefaultMinConfidence = 0.3

// minSide is the smallest normalized width/height kept after clamping
const minSide = 0.005

// Detector handles face detection using vision models
type Detector struct {
	client        client.VisionClient
	minConfidence float64
	prompt        string
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client, minConfidence: DefaultMinConfidence, prompt: DefaultPrompt}
}

// SetMinConfidence changes the confidence cutoff
func (d *Detector) SetMinConfidence(v float64) {
	d.minConfidence = v
}

// SetPrompt replaces the detection prompt
func (d *Detector) SetPrompt(prompt string) {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	d.prompt = prompt
}

// DetectFaces analyzes an image and returns the faces it contains
func (d *Detector) DetectFaces(ctx context.Context, model, imageB64 string) (*types.FaceResult, error) {
	result, err := d.client.DetectFaces(ctx, model, d.prompt, imageB64)
	if err != nil {
		return nil, fmt.Errorf("detect faces with %s: %w", model, err)
	}

	return d.validateAndAdjustResult(result), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// validateAndAdjustResult clamps boxes, drops unusable faces and cleans labels
func (d *Detector) validateAndAdjustResult(result *types.FaceResult) *types.FaceResult {
	out := &types.FaceResult{
		Description: strings.TrimSpace(result.Description),
		Faces:       make([]types.Face, 0, len(result.Faces)),
	}

	for _, f := range result.Faces {
		if f.Confidence > 0 && f.Confidence < d.minConfidence {
			continue
		}
		box, ok := normalizeBox(f.Box)
		if !ok {
			continue
		}
		out.Faces = append(out.Faces, types.Face{
			Box:        box,
			Label:      normalizeLabel(f.Label),
			Confidence: clamp(f.Confidence, 0, 1),
		})
	}

	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox orders the corners and clamps them to [0,1]. Boxes that
// collapse below minSide are rejected.
func normalizeBox(b [4]float64) ([4]float64, bool) {
	x0, x1 := math.Min(b[0], b[2]), math.Max(b[0], b[2])
	y0, y1 := math.Min(b[1], b[3]), math.Max(b[1], b[3])

	out := [4]float64{clamp(x0, 0, 1), clamp(y0, 0, 1), clamp(x1, 0, 1), clamp(y1, 0, 1)}
	if out[2]-out[0] < minSide || out[3]-out[1] < minSide {
		return out, false
	}
	return out, true
}

// normalizeLabel drops the placeholder words models put in for unknown people
func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	switch strings.ToLower(label) {
	case "none", "unknown", "person", "face", "n/a":
		return ""
	}
	return label
}
