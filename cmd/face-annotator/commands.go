package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	faceannotator "github.com/menta2k/face-annotator"
	"github.com/menta2k/face-annotator/internal/journal"
	"github.com/menta2k/face-annotator/internal/utils"
	"github.com/menta2k/face-annotator/pkg/annotation"
	"github.com/menta2k/face-annotator/pkg/client"
	"github.com/menta2k/face-annotator/pkg/detection"
	"github.com/menta2k/face-annotator/pkg/geometry"
	"github.com/menta2k/face-annotator/pkg/llamacpp"
	"github.com/menta2k/face-annotator/pkg/ollama"
)

// explain adds a hint to errors a user can fix
func explain(err error) error {
	if errors.Is(err, annotation.ErrLegacySchema) {
		return fmt.Errorf("%w (run the migrate command first)", err)
	}
	return err
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// boxFlags parses -image and -box shared by the per-box commands
type boxFlags struct {
	image string
	box   int
}

func (b *boxFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.image, "image", "", "image path")
	fs.IntVar(&b.box, "box", -1, "box index as printed by show")
}

func (b *boxFlags) open(e *env) (*faceannotator.EditorSession, error) {
	s, err := e.session(b.image)
	if err != nil {
		return nil, err
	}
	if err := s.SelectBox(b.box); err != nil {
		return nil, err
	}
	return s, nil
}

func printRecord(s *faceannotator.EditorSession) {
	rec := s.Current()
	fmt.Printf("image:   %s\n", rec.ImagePath)
	fmt.Printf("sidecar: %s\n", rec.SidecarPath())
	fmt.Printf("size:    %dx%d, %s\n", rec.ImageWidth, rec.ImageHeight, utils.FormatFileSize(rec.ImageSize))
	fmt.Printf("refined: %v\n", rec.Refined)
	fmt.Printf("boxes:   %d\n", rec.Len())
}

func runInit(e *env, args []string) error {
	fs := newFlagSet("init")
	image := fs.String("image", "", "image path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}
	printRecord(s)
	return nil
}

func runShow(e *env, args []string) error {
	fs := newFlagSet("show")
	image := fs.String("image", "", "image path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}
	printRecord(s)

	known, err := s.CheckCandidates()
	if err != nil {
		e.logger.Debug("candidate check skipped", "error", err)
	}

	rec := s.Current()
	normalized := rec.Normalized()
	for i, b := range rec.Boxes() {
		id, _ := rec.Identity(i)
		flagText := ""
		if known != nil && !known[i] {
			flagText = "  (not in candidate list)"
		}
		n := normalized[i]
		fmt.Printf("%3d  %-28s  [%.4f %.4f %.4f %.4f]  %q%s\n", i, b, n.X0, n.Y0, n.X1, n.Y1, id, flagText)
	}
	return nil
}

func runAdd(e *env, args []string) error {
	fs := newFlagSet("add")
	image := fs.String("image", "", "image path")
	label := fs.String("label", "", "identity for the new box (default: placeholder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}
	i, err := s.AddBox()
	if err != nil {
		return err
	}
	if *label != "" {
		if err := s.RelabelSelected(*label); err != nil {
			return err
		}
	}
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Printf("added box %d\n", i)
	return nil
}

func runDelete(e *env, args []string) error {
	var b boxFlags
	fs := newFlagSet("delete")
	b.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := b.open(e)
	if err != nil {
		return err
	}
	if err := s.DeleteSelected(); err != nil {
		return err
	}
	return s.Save()
}

func runFull(e *env, args []string) error {
	var b boxFlags
	fs := newFlagSet("full")
	b.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := b.open(e)
	if err != nil {
		return err
	}
	if err := s.FullImageSelected(); err != nil {
		return err
	}
	return s.Save()
}

func runRelabel(e *env, args []string) error {
	var b boxFlags
	fs := newFlagSet("relabel")
	b.register(fs)
	label := fs.String("label", "", "new identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := b.open(e)
	if err != nil {
		return err
	}
	if err := s.RelabelSelected(*label); err != nil {
		return err
	}
	if _, ok, err := s.Choices(); err == nil && !ok {
		e.logger.Warn("identity is not in the candidate list", "label", *label, "list", s.CandidatesPath())
	}
	return s.Save()
}

func runSetBox(e *env, args []string) error {
	var b boxFlags
	fs := newFlagSet("setbox")
	b.register(fs)
	rect := fs.String("rect", "", "pixel rectangle x0,y0,x1,y1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	box, err := parseRect(*rect)
	if err != nil {
		return err
	}
	s, err := b.open(e)
	if err != nil {
		return err
	}
	if err := s.ReplaceSelected(box); err != nil {
		return err
	}
	return s.Save()
}

// parseRect reads "x0,y0,x1,y1" in pixels
func parseRect(v string) (geometry.BoundingBox, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return geometry.BoundingBox{}, fmt.Errorf("invalid -rect %q: want x0,y0,x1,y1", v)
	}
	var f [4]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.BoundingBox{}, fmt.Errorf("invalid -rect %q: %w", v, err)
		}
		f[i] = n
	}
	return geometry.Rect(f[0], f[1], f[2], f[3]), nil
}

func runCheck(e *env, args []string) error {
	fs := newFlagSet("check")
	image := fs.String("image", "", "image path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}
	known, err := s.CheckCandidates()
	if err != nil {
		return err
	}

	unknown := 0
	for i, ok := range known {
		if ok {
			continue
		}
		id, _ := s.Current().Identity(i)
		fmt.Printf("%3d  %q\n", i, id)
		unknown++
	}
	if unknown > 0 {
		return exitCode(1)
	}
	return nil
}

func runStatus(e *env, args []string) error {
	fs := newFlagSet("status")
	dir := fs.String("dir", ".", "image directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := faceannotator.New(e.cfg)
	s.SetLogger(e.logger)
	if err := s.Scan(*dir); err != nil {
		return err
	}

	var refined, boxes int
	for i, st := range s.Status() {
		state := "new"
		switch {
		case st.Err != nil:
			state = "error: " + st.Err.Error()
		case st.Refined:
			state = "refined"
			refined++
		case st.HasSidecar:
			state = "draft"
		}
		boxes += st.Boxes
		fmt.Printf("%4d  %-40s  %3d boxes  %s\n", i+1, st.Path, st.Boxes, state)
	}
	fmt.Printf("%d images, %d refined, %d boxes\n", len(s.Images()), refined, boxes)
	return nil
}

func runRender(e *env, args []string) error {
	fs := newFlagSet("render")
	image := fs.String("image", "", "image path")
	out := fs.String("out", "", "output file (default: <image>_boxes.<format> in the working directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}

	r := e.cfg.Render
	path := *out
	if path == "" {
		path = utils.GenerateOutputFilename(s.CurrentImage(), ".", "", "_boxes", r.Format)
	}
	format := utils.GetFileExtension(path)
	if format == "" {
		format = r.Format
	}

	overlay, err := s.Overlay()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := s.Processor().SaveImage(overlay, path, format, r.Quality, r.Lossless); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	e.logger.Info("wrote overlay", "path", path)
	return nil
}

func runCrops(e *env, args []string) error {
	fs := newFlagSet("crops")
	image := fs.String("image", "", "image path")
	out := fs.String("out", "crops", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.session(*image)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(*out); err != nil {
		return err
	}

	crops, err := s.Crops()
	if err != nil {
		return err
	}
	r := e.cfg.Render
	for _, c := range crops {
		id := utils.SanitizeFilename(c.Identity)
		if id == "" {
			id = "unnamed"
		}
		path := utils.GenerateOutputFilename(s.CurrentImage(), *out, "", fmt.Sprintf("_%03d_%s", c.Index, id), r.Format)
		if err := s.Processor().SaveImage(c.Image, path, r.Format, r.Quality, r.Lossless); err != nil {
			e.logger.Warn("crop save failed", "path", path, "error", err)
			continue
		}
		e.logger.Info("wrote crop", "path", path, "identity", c.Identity)
	}
	return nil
}

func runSuggest(e *env, args []string) error {
	det := e.cfg.Detector
	fs := newFlagSet("suggest")
	image := fs.String("image", "", "image path")
	fs.StringVar(&det.Backend, "backend", det.Backend, "backend to use: ollama or llamacpp")
	fs.StringVar(&det.URL, "url", det.URL, "server URL")
	fs.StringVar(&det.Model, "model", det.Model, "model name")
	fs.Float64Var(&det.MinConfidence, "min-confidence", det.MinConfidence, "drop faces reported below this confidence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e.cfg.Detector = det

	var visionClient client.VisionClient
	var err error
	switch det.Backend {
	case "ollama":
		visionClient, err = ollama.NewClient(det.URL)
		if err != nil {
			return fmt.Errorf("failed to create Ollama client: %w", err)
		}
	case "llamacpp":
		visionClient, err = llamacpp.NewClient(det.URL)
		if err != nil {
			return fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", det.Backend)
	}

	detector := detection.NewDetector(visionClient)
	detector.SetMinConfidence(det.MinConfidence)

	s, err := e.session(*image)
	if err != nil {
		return err
	}
	n, err := s.Suggest(context.Background(), detector, det.Model)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("no faces found")
		return nil
	}
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Printf("added %d boxes\n", n)
	return nil
}

func runMigrate(e *env, args []string) error {
	fs := newFlagSet("migrate")
	image := fs.String("image", "", "image path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return fmt.Errorf("-image is required")
	}

	rec, err := annotation.Migrate(*image,
		annotation.WithLogger(e.logger),
		annotation.WithBackupSuffix(e.cfg.Editor.BackupSuffix),
	)
	if errors.Is(err, annotation.ErrAlreadyCanonical) {
		fmt.Println("already in the current format")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("migrated %s (%d boxes), previous file kept as %s\n", rec.SidecarPath(), rec.Len(), rec.BackupPath())
	return nil
}

func runJournal(e *env, args []string) error {
	fs := newFlagSet("journal")
	image := fs.String("image", "", "only show saves of this image")
	limit := fs.Int("limit", 50, "maximum entries, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if e.journal == nil {
		return fmt.Errorf("journal disabled (use -journal or set journal.enabled)")
	}

	ctx := context.Background()
	var entries []journal.Entry
	if *image != "" {
		abs, err := filepath.Abs(*image)
		if err != nil {
			return err
		}
		list, err := e.journal.ForImage(ctx, abs)
		if err != nil {
			return err
		}
		entries = list
	} else {
		list, err := e.journal.List(ctx, *limit)
		if err != nil {
			return err
		}
		entries = list
	}

	for _, en := range entries {
		fmt.Printf("%5d  %s  %-40s  %3d boxes  %3d unknown  %s\n",
			en.ID, en.SavedAt.Local().Format("2006-01-02 15:04:05"), en.ImagePath, en.Boxes, en.Unknown, en.Algorithm)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no saves recorded")
	}
	return nil
}
