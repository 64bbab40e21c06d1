package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/face-annotator/pkg/types"
)

// ErrNoJSON is returned when a model reply holds no usable JSON
var ErrNoJSON = errors.New("no JSON found in model response")

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseFaceResult parses the JSON reply of a vision model. Both
// {"faces": [...]} and a bare array of faces are accepted.
func ParseFaceResult(raw string) (*types.FaceResult, error) {
	raw = SanitizeModelJSON(raw)

	switch {
	case strings.HasPrefix(raw, "{"):
		var result types.FaceResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		return &result, nil
	case strings.HasPrefix(raw, "["):
		var faces []types.Face
		if err := json.Unmarshal([]byte(raw), &faces); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		return &types.FaceResult{Faces: faces}, nil
	default:
		return nil, ErrNoJSON
	}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = raw[i+3:]
		if j := strings.Index(raw, "\n"); j >= 0 {
			raw = raw[j+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...} or [...]
	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		if end := strings.LastIndex(raw, "]"); end > arr {
			raw = raw[arr : end+1]
		}
	} else if obj >= 0 {
		if end := strings.LastIndex(raw, "}"); end > obj {
			raw = raw[obj : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
