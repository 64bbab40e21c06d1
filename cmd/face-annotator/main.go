package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"

	faceannotator "github.com/menta2k/face-annotator"
	"github.com/menta2k/face-annotator/internal/config"
	"github.com/menta2k/face-annotator/internal/journal"
)

// env is shared by every command
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Journal
}

type command struct {
	name    string
	usage   string
	run     func(e *env, args []string) error
	journal bool // command writes sidecars and should be journaled
}

var commands = []command{
	{name: "init", usage: "-image P", run: runInit, journal: true},
	{name: "show", usage: "-image P", run: runShow},
	{name: "add", usage: "-image P [-label L]", run: runAdd, journal: true},
	{name: "delete", usage: "-image P -box I", run: runDelete, journal: true},
	{name: "full", usage: "-image P -box I", run: runFull, journal: true},
	{name: "relabel", usage: "-image P -box I -label L", run: runRelabel, journal: true},
	{name: "setbox", usage: "-image P -box I -rect x0,y0,x1,y1", run: runSetBox, journal: true},
	{name: "check", usage: "-image P", run: runCheck},
	{name: "status", usage: "-dir D", run: runStatus},
	{name: "render", usage: "-image P [-out F]", run: runRender},
	{name: "crops", usage: "-image P [-out D]", run: runCrops},
	{name: "suggest", usage: "-image P [-backend ollama|llamacpp] [-url U] [-model M]", run: runSuggest, journal: true},
	{name: "migrate", usage: "-image P", run: runMigrate},
	{name: "journal", usage: "[-image P] [-limit N]", run: runJournal, journal: true},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: %s [global flags] <command> [flags]\n\nglobal flags:\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
	fmt.Fprintf(out, "\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.usage)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var configPath, candidates string
	var verbose, useJournal bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file")
	flag.StringVar(&candidates, "candidates", "", "identity candidate list (overrides config)")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.BoolVar(&useJournal, "journal", false, "record saves in the review journal (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		return 2
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if candidates != "" {
		cfg.Editor.CandidatesPath = candidates
	}
	if useJournal {
		cfg.Journal.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config %s: %v", configPath, err)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		usage()
		log.Fatalf("Unknown command: %s", name)
	}

	e := &env{cfg: cfg, logger: logger}
	if cmd.journal && cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		e.journal = j
	}

	if err := cmd.run(e, args); err != nil {
		if code, ok := err.(exitCode); ok {
			return int(code)
		}
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		logger.Error(name+" failed", "error", err)
		return 1
	}
	return 0
}

// exitCode ends the program with a status but no error message
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

// session opens a single-image session
func (e *env) session(imagePath string) (*faceannotator.EditorSession, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("-image is required")
	}
	s := faceannotator.New(e.cfg)
	s.SetLogger(e.logger)
	if e.journal != nil {
		s.SetJournal(e.journal)
	}
	if err := s.OpenImage(imagePath); err != nil {
		return nil, explain(err)
	}
	return s, nil
}
