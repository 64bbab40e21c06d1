package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Editor   EditorConfig   `json:"editor"`
	Images   ImagesConfig   `json:"images"`
	Render   RenderConfig   `json:"render"`
	Detector DetectorConfig `json:"detector"`
	Journal  JournalConfig  `json:"journal"`
}

// EditorConfig holds configuration for annotation editing
type EditorConfig struct {
	Placeholder        string `json:"placeholder"`
	BackupSuffix       string `json:"backup_suffix"`
	SaveOnNavigate     bool   `json:"save_on_navigate"`
	CandidatesPath     string `json:"candidates_path"`
	DatasetDescription string `json:"dataset_description"`
}

// ImagesConfig holds configuration for image probing
type ImagesConfig struct {
	SupportedFormats []string `json:"supported_formats"`
	MinImageSize     int      `json:"min_image_size"`
}

// RenderConfig holds configuration for overlay and crop output
type RenderConfig struct {
	Format      string  `json:"format"`
	Quality     int     `json:"quality"`
	Lossless    bool    `json:"lossless"`
	CropPadding float64 `json:"crop_padding"`
	CropSize    int     `json:"crop_size"`
}

// DetectorConfig holds configuration for model pre-annotation
type DetectorConfig struct {
	Backend       string  `json:"backend"`
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
	SendFormat    string  `json:"send_format"`
	SendMaxDim    int     `json:"send_max_dim"`
	SendQuality   int     `json:"send_quality"`
}

// JournalConfig holds configuration for the review journal
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			Placeholder:        "--추가해주세요--",
			BackupSuffix:       "~",
			SaveOnNavigate:     true,
			CandidatesPath:     "id_cand_list.txt",
			DatasetDescription: "FACE-ID DATASET",
		},
		Images: ImagesConfig{
			SupportedFormats: []string{"jpeg", "png", "webp", "bmp", "tiff", "gif"},
			MinImageSize:     1,
		},
		Render: RenderConfig{
			Format:      "jpg",
			Quality:     90,
			Lossless:    false,
			CropPadding: 0.2,
			CropSize:    224,
		},
		Detector: DetectorConfig{
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "qwen2.5vl:7b",
			MinConfidence: 0.3,
			SendFormat:    "jpg",
			SendMaxDim:    1024,
			SendQuality:   85,
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    filepath.Join(configDir(), "journal.db"),
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename if it exists and returns the defaults otherwise
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFromFile(filename)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Editor.Placeholder) == "" {
		return fmt.Errorf("editor.placeholder cannot be empty")
	}

	if c.Editor.BackupSuffix == "" || strings.ContainsAny(c.Editor.BackupSuffix, `/\`) {
		return fmt.Errorf("editor.backup_suffix must be a non-empty file name suffix")
	}

	if len(c.Images.SupportedFormats) == 0 {
		return fmt.Errorf("images.supported_formats cannot be empty")
	}

	if c.Images.MinImageSize < 1 {
		return fmt.Errorf("images.min_image_size must be positive")
	}

	switch strings.ToLower(c.Render.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("render.format must be jpg, png or webp")
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	if c.Render.CropPadding < 0 || c.Render.CropPadding > 1 {
		return fmt.Errorf("render.crop_padding must be between 0 and 1")
	}

	if c.Render.CropSize < 0 {
		return fmt.Errorf("render.crop_size cannot be negative")
	}

	switch c.Detector.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("detector.backend must be ollama or llamacpp")
	}

	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be between 0 and 1")
	}

	if c.Detector.SendQuality < 1 || c.Detector.SendQuality > 100 {
		return fmt.Errorf("detector.send_quality must be between 1 and 100")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "face-annotator")
}
