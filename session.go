package faceannotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"github.com/menta2k/face-annotator/internal/config"
	"github.com/menta2k/face-annotator/internal/journal"
	"github.com/menta2k/face-annotator/internal/utils"
	"github.com/menta2k/face-annotator/pkg/annotation"
	"github.com/menta2k/face-annotator/pkg/geometry"
	"github.com/menta2k/face-annotator/pkg/imageinfo"
	"github.com/menta2k/face-annotator/pkg/processing"
	"github.com/menta2k/face-annotator/pkg/types"
)

var (
	// ErrNoImages is returned when a directory holds no supported images
	ErrNoImages = errors.New("no images found")
	// ErrOutOfRange is returned for an image index outside the list
	ErrOutOfRange = errors.New("image index out of range")
	// ErrNoRecord is returned when no image has been opened
	ErrNoRecord = errors.New("no image loaded")
	// ErrNoSelection is returned by box operations with nothing selected
	ErrNoSelection = errors.New("no box selected")
	// ErrNotDirectory is returned by Scan for a path that is not a directory
	ErrNotDirectory = errors.New("not a directory")
)

// AlgorithmName is written to object_info.face.algorithm.name by Suggest
const AlgorithmName = "vision-llm"

// FaceDetector suggests face boxes for a base64 encoded image
type FaceDetector interface {
	DetectFaces(ctx context.Context, model, imageB64 string) (*types.FaceResult, error)
}

// EditorSession holds the image list and the record being edited. It is not
// safe for concurrent use.
type EditorSession struct {
	config    *config.Config
	logger    *slog.Logger
	journal   *journal.Journal
	prober    *imageinfo.Prober
	processor *processing.Processor

	candidatesPath string

	images   []string
	index    int
	record   *annotation.Record
	selected int
}

// New creates a session. A nil config uses the defaults.
func New(cfg *config.Config) *EditorSession {
	if cfg == nil {
		cfg = config.Default()
	}
	return &EditorSession{
		config: cfg,
		logger: slog.New(slog.DiscardHandler),
		prober: imageinfo.NewWithConfig(imageinfo.Config{
			SupportedFormats: cfg.Images.SupportedFormats,
			MinImageSize:     cfg.Images.MinImageSize,
		}),
		processor:      processing.NewProcessor(),
		candidatesPath: cfg.Editor.CandidatesPath,
		index:          -1,
		selected:       -1,
	}
}

// SetLogger sets the logger used by the session and its records
func (s *EditorSession) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	s.logger = l
}

// SetJournal makes Save append an entry to j
func (s *EditorSession) SetJournal(j *journal.Journal) {
	s.journal = j
}

// SetCandidatesPath changes the identity candidate list file
func (s *EditorSession) SetCandidatesPath(path string) {
	s.candidatesPath = path
}

// CandidatesPath returns the identity candidate list file
func (s *EditorSession) CandidatesPath() string {
	return s.candidatesPath
}

// Config returns the session configuration
func (s *EditorSession) Config() *config.Config {
	return s.config
}

func (s *EditorSession) recordOptions() []annotation.Option {
	return []annotation.Option{
		annotation.WithLogger(s.logger),
		annotation.WithPlaceholder(s.config.Editor.Placeholder),
		annotation.WithBackupSuffix(s.config.Editor.BackupSuffix),
		annotation.WithDatasetDescription(s.config.Editor.DatasetDescription),
		annotation.WithProber(s.prober),
	}
}

// Open lists the images under dir and makes the first one current
func (s *EditorSession) Open(dir string) error {
	if err := s.Scan(dir); err != nil {
		return err
	}
	return s.Goto(0)
}

// Scan lists the images under dir without loading any of them. Use Goto to
// make one current.
func (s *EditorSession) Scan(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	if !utils.DirExists(abs) {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	images, err := utils.ListImageFiles(abs)
	if err != nil {
		return fmt.Errorf("list images in %s: %w", dir, err)
	}
	if len(images) == 0 {
		return fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	if err := s.leave(); err != nil {
		return err
	}
	s.images = images
	s.index = -1
	s.record = nil
	s.selected = -1
	return nil
}

// OpenImage starts a session on a single image
func (s *EditorSession) OpenImage(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	return s.reset([]string{abs})
}

func (s *EditorSession) reset(images []string) error {
	if err := s.leave(); err != nil {
		return err
	}
	rec, err := annotation.LoadOrCreate(images[0], s.recordOptions()...)
	if err != nil {
		return err
	}
	s.images = images
	s.setCurrent(0, rec)
	return nil
}

// Images returns the image list in navigation order
func (s *EditorSession) Images() []string {
	return append([]string(nil), s.images...)
}

// Current returns the record of the current image, or nil before Open
func (s *EditorSession) Current() *annotation.Record {
	return s.record
}

// CurrentImage returns the path of the current image
func (s *EditorSession) CurrentImage() string {
	if s.index < 0 {
		return ""
	}
	return s.images[s.index]
}

// CurrentIndex returns the 0-based position of the current image, or -1
func (s *EditorSession) CurrentIndex() int {
	return s.index
}

// Next moves to the following image. It does nothing on the last image.
func (s *EditorSession) Next() error {
	if s.index < 0 || s.index >= len(s.images)-1 {
		return nil
	}
	return s.Goto(s.index + 1)
}

// Prev moves to the preceding image. It does nothing on the first image.
func (s *EditorSession) Prev() error {
	if s.index <= 0 {
		return nil
	}
	return s.Goto(s.index - 1)
}

// Goto makes image i current. With save_on_navigate the current record is
// saved first and a failed save keeps the session where it is.
func (s *EditorSession) Goto(i int) error {
	if i < 0 || i >= len(s.images) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, i, len(s.images))
	}
	if i == s.index {
		return nil
	}
	if err := s.leave(); err != nil {
		return err
	}

	rec, err := annotation.LoadOrCreate(s.images[i], s.recordOptions()...)
	if err != nil {
		return err
	}
	s.setCurrent(i, rec)
	return nil
}

// leave applies the save-before-navigate policy to the current record
func (s *EditorSession) leave() error {
	if s.record == nil || !s.record.Modified() {
		return nil
	}
	if !s.config.Editor.SaveOnNavigate {
		s.logger.Warn("discarding unsaved changes", "image", s.record.ImagePath)
		return nil
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("save before leaving %s: %w", s.record.ImagePath, err)
	}
	return nil
}

func (s *EditorSession) setCurrent(i int, rec *annotation.Record) {
	s.index = i
	s.record = rec
	s.selected = -1
	if rec.Len() > 0 {
		s.selected = 0
	}
	s.logger.Debug("image loaded", "index", i, "image", rec.ImagePath, "boxes", rec.Len())
}

// SelectBox makes box i the target of the box operations
func (s *EditorSession) SelectBox(i int) error {
	if s.record == nil {
		return ErrNoRecord
	}
	if i < 0 || i >= s.record.Len() {
		return fmt.Errorf("%w: box %d not in [0,%d)", annotation.ErrIndex, i, s.record.Len())
	}
	s.selected = i
	return nil
}

// SelectedBox returns the selected box index. ok is false when nothing is
// selected.
func (s *EditorSession) SelectedBox() (int, bool) {
	if s.record == nil || s.selected < 0 || s.selected >= s.record.Len() {
		return 0, false
	}
	return s.selected, true
}

func (s *EditorSession) requireSelection() (int, error) {
	if s.record == nil {
		return 0, ErrNoRecord
	}
	i, ok := s.SelectedBox()
	if !ok {
		return 0, ErrNoSelection
	}
	return i, nil
}

// AddBox appends a default box labeled with the placeholder and selects it
func (s *EditorSession) AddBox() (int, error) {
	if s.record == nil {
		return 0, ErrNoRecord
	}
	i := s.record.AddBox()
	s.selected = i
	return i, nil
}

// DeleteSelected removes the selected box. The selection stays on the same
// index, moves to the new last box, or clears when no box is left.
func (s *EditorSession) DeleteSelected() error {
	i, err := s.requireSelection()
	if err != nil {
		return err
	}
	if err := s.record.DeleteBox(i); err != nil {
		return err
	}
	switch n := s.record.Len(); {
	case n == 0:
		s.selected = -1
	case i >= n:
		s.selected = n - 1
	}
	return nil
}

// FullImageSelected stretches the selected box over the whole image
func (s *EditorSession) FullImageSelected() error {
	i, err := s.requireSelection()
	if err != nil {
		return err
	}
	return s.record.SetBoxToFullImage(i)
}

// RelabelSelected sets the identity of the selected box
func (s *EditorSession) RelabelSelected(label string) error {
	i, err := s.requireSelection()
	if err != nil {
		return err
	}
	return s.record.Relabel(i, label)
}

// ReplaceSelected sets the geometry of the selected box
func (s *EditorSession) ReplaceSelected(box geometry.BoundingBox) error {
	i, err := s.requireSelection()
	if err != nil {
		return err
	}
	return s.record.ReplaceBox(i, box)
}

// Candidates reads the identity candidate list from disk
func (s *EditorSession) Candidates() ([]string, error) {
	if s.candidatesPath == "" {
		return nil, errors.New("no candidate list configured")
	}
	return annotation.LoadCandidates(s.candidatesPath)
}

// CheckCandidates reports for each box whether its identity is in the
// candidate list
func (s *EditorSession) CheckCandidates() ([]bool, error) {
	if s.record == nil {
		return nil, ErrNoRecord
	}
	candidates, err := s.Candidates()
	if err != nil {
		return nil, err
	}
	return s.record.CheckAgainstCandidates(candidates), nil
}

// Choices returns the labels offered for the selected box. An identity not
// in the candidate list is put first and ok is false.
func (s *EditorSession) Choices() (choices []string, ok bool, err error) {
	i, err := s.requireSelection()
	if err != nil {
		return nil, false, err
	}
	candidates, err := s.Candidates()
	if err != nil {
		return nil, false, err
	}
	current, err := s.record.Identity(i)
	if err != nil {
		return nil, false, err
	}
	choices, ok = annotation.CandidateChoices(candidates, current)
	return choices, ok, nil
}

// Save writes the current record and logs it to the journal if one is set.
// Journal failures are logged and do not fail the save.
func (s *EditorSession) Save() error {
	if s.record == nil {
		return ErrNoRecord
	}
	if err := s.record.Save(); err != nil {
		return err
	}
	if s.journal != nil {
		s.recordJournal()
	}
	return nil
}

func (s *EditorSession) recordJournal() {
	entry := journal.Entry{
		ImagePath: s.record.ImagePath,
		Sidecar:   s.record.SidecarPath(),
		Boxes:     s.record.Len(),
		Algorithm: s.algorithmName(),
	}
	if candidates, err := s.Candidates(); err == nil {
		entry.Unknown = len(s.record.Unknown(candidates))
	} else {
		s.logger.Debug("journal entry without candidate check", "error", err)
	}
	if _, err := s.journal.Record(context.Background(), entry); err != nil {
		s.logger.Warn("journal write failed", "path", s.journal.Path(), "error", err)
	}
}

func (s *EditorSession) algorithmName() string {
	raw, ok := s.record.Algorithm()
	if !ok {
		return ""
	}
	var alg types.Algorithm
	if err := json.Unmarshal(raw, &alg); err != nil || alg.Model == "" {
		return alg.Name
	}
	if alg.Backend != "" {
		return alg.Backend + "/" + alg.Model
	}
	return alg.Model
}

// Suggest asks detector for faces in the current image and appends them as
// boxes. It returns how many boxes were added. The first new box is selected.
func (s *EditorSession) Suggest(ctx context.Context, detector FaceDetector, model string) (int, error) {
	if s.record == nil {
		return 0, ErrNoRecord
	}
	img, err := s.prober.LoadImage(s.record.ImagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", annotation.ErrImageRead, err)
	}

	det := s.config.Detector
	imgB64, err := s.processor.PrepareImageForModel(img, det.SendFormat, det.SendMaxDim, det.SendQuality)
	if err != nil {
		return 0, fmt.Errorf("prepare image for model: %w", err)
	}

	result, err := detector.DetectFaces(ctx, model, imgB64)
	if err != nil {
		return 0, err
	}
	if len(result.Faces) == 0 {
		s.logger.Info("no faces suggested", "image", s.record.ImagePath, "model", model)
		return 0, nil
	}

	first := -1
	for _, f := range result.Faces {
		i := s.record.AddNormalizedBox(geometry.Normalized{X0: f.Box[0], Y0: f.Box[1], X1: f.Box[2], Y1: f.Box[3]}, f.Label)
		if first < 0 {
			first = i
		}
	}
	if err := s.record.SetAlgorithm(types.Algorithm{Name: AlgorithmName, Backend: det.Backend, Model: model}); err != nil {
		return 0, err
	}
	s.selected = first

	s.logger.Info("faces suggested", "image", s.record.ImagePath, "model", model, "count", len(result.Faces))
	return len(result.Faces), nil
}

// Overlay draws the current boxes over the image. Known identities are
// green, unknown ones gold and the selected box red. Without a readable
// candidate list every identity counts as unknown.
func (s *EditorSession) Overlay() (image.Image, error) {
	if s.record == nil {
		return nil, ErrNoRecord
	}
	img, err := s.prober.LoadImage(s.record.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", annotation.ErrImageRead, err)
	}

	known, err := s.CheckCandidates()
	if err != nil {
		s.logger.Warn("candidate list unavailable", "path", s.candidatesPath, "error", err)
		known = make([]bool, s.record.Len())
	}
	selected, hasSelection := s.SelectedBox()

	boxes := make([]processing.OverlayBox, 0, s.record.Len())
	for i, b := range s.record.Boxes() {
		boxes = append(boxes, processing.OverlayBox{
			Box:      b,
			Known:    known[i],
			Selected: hasSelection && i == selected,
		})
	}
	return s.processor.CreateOverlay(img, boxes), nil
}

// Crops cuts every face of the current image out using the render settings
func (s *EditorSession) Crops() ([]processing.Crop, error) {
	if s.record == nil {
		return nil, ErrNoRecord
	}
	img, err := s.prober.LoadImage(s.record.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", annotation.ErrImageRead, err)
	}

	r := s.config.Render
	crops, errs := s.processor.CropFaces(img, s.record.Boxes(), s.record.Identities(), r.CropPadding, r.CropSize)
	for _, err := range errs {
		s.logger.Warn("crop skipped", "image", s.record.ImagePath, "error", err)
	}
	return crops, nil
}

// ImageStatus summarizes one image of a directory
type ImageStatus struct {
	Path       string
	HasSidecar bool
	Boxes      int
	Refined    bool
	Err        error
}

// Status reports the annotation state of every image in the session without
// creating missing sidecars
func (s *EditorSession) Status() []ImageStatus {
	out := make([]ImageStatus, 0, len(s.images))
	for i, path := range s.images {
		st := ImageStatus{Path: path}
		if i == s.index && s.record != nil {
			st.HasSidecar = true
			st.Boxes = s.record.Len()
			st.Refined = s.record.Refined
			out = append(out, st)
			continue
		}
		if !utils.FileExists(utils.SidecarPath(path)) {
			out = append(out, st)
			continue
		}
		st.HasSidecar = true
		rec, err := annotation.LoadOrCreate(path, s.recordOptions()...)
		if err != nil {
			st.Err = err
		} else {
			st.Boxes = rec.Len()
			st.Refined = rec.Refined
		}
		out = append(out, st)
	}
	return out
}

// Processor returns the image processor used for overlays and crops
func (s *EditorSession) Processor() *processing.Processor {
	return s.processor
}
