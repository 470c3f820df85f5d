package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"hls-assembler/internal/platform/logger"
	"hls-assembler/internal/platform/metrics"
)

// Stage is a step of one playlist run. Runs move through the stages in
// declaration order and never skip one.
type Stage string

const (
	StageParsing    Stage = "parsing"
	StageParsed     Stage = "parsed"
	StageLocating   Stage = "locating"
	StageFetching   Stage = "fetching"
	StageStored     Stage = "stored"
	StageAssembling Stage = "assembling"
	StageAssembled  Stage = "assembled"
	StageCleanedUp  Stage = "cleaned_up"
)

// ErrInvalidUnit is returned for units with a missing or unusable name or address.
var ErrInvalidUnit = errors.New("invalid unit")

// Unit is one playlist to turn into an artifact.
type Unit struct {
	LogicalName     string `json:"logical_name"`
	PlaylistAddress string `json:"playlist_address"`
}

// Validate checks that the logical name is a plain file name without
// surrounding spaces and the playlist address is an absolute http(s) URL.
func (u Unit) Validate() error {
	name := u.LogicalName
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: logical name is empty", ErrInvalidUnit)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: logical name %q has leading or trailing spaces", ErrInvalidUnit, name)
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: logical name %q is not a plain file name", ErrInvalidUnit, u.LogicalName)
	}
	if u.PlaylistAddress == "" {
		return fmt.Errorf("%w: playlist address is empty", ErrInvalidUnit)
	}
	addr, err := url.Parse(u.PlaylistAddress)
	if err != nil {
		return fmt.Errorf("%w: playlist address: %v", ErrInvalidUnit, err)
	}
	if (addr.Scheme != "http" && addr.Scheme != "https") || addr.Host == "" {
		return fmt.Errorf("%w: playlist address %q is not an http(s) URL", ErrInvalidUnit, u.PlaylistAddress)
	}
	return nil
}

// StageError records the stage in which a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "" if err carries none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// ScratchDir holds one sub-directory of segments per run.
	ScratchDir string
	// OutputDir receives the artifacts.
	OutputDir string
	// HeaderLines is passed to the Parser.
	HeaderLines int
	// Concurrency caps the in-flight segment fetches of one run.
	Concurrency int
}

// Engine runs the parse, locate, fetch, store and assemble steps for one
// playlist at a time. An Engine has no per-run state; concurrent Runs with
// distinct keys are independent.
type Engine struct {
	cfg       EngineConfig
	fetcher   *Fetcher
	playlists *Fetcher
	parser    *Parser
	scheduler *Scheduler
	assembler *Assembler
	log       *slog.Logger
}

// NewEngine wires an Engine around fetcher. Playlists are downloaded through
// fetcher.WithUnknownLength(). log and m may be nil.
func NewEngine(cfg EngineConfig, fetcher *Fetcher, log *slog.Logger, m *metrics.Metrics) *Engine {
	log = logger.OrDiscard(log)
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		playlists: fetcher.WithUnknownLength(),
		parser:    NewParser(cfg.HeaderLines),
		scheduler: NewScheduler(fetcher, cfg.Concurrency, log),
		assembler: NewAssembler(log, m),
		log:       log,
	}
}

// ScratchPath returns the scratch directory used for the run identified by key.
func (e *Engine) ScratchPath(key string) string {
	return filepath.Join(e.cfg.ScratchDir, key)
}

// Run processes unit. key names the run's scratch directory and must be
// unique among concurrent runs; an empty key uses the logical name. observe,
// if non-nil, is called on entering each stage. Errors are *StageError
// values wrapping the typed errors of this package. When fetching or
// assembly fails the scratch directory is left in place and no artifact is
// written.
func (e *Engine) Run(ctx context.Context, key string, unit Unit, observe func(Stage)) (Artifact, error) {
	if err := unit.Validate(); err != nil {
		return Artifact{}, &StageError{Stage: StageParsing, Err: err}
	}
	if key == "" {
		key = unit.LogicalName
	}
	if observe == nil {
		observe = func(Stage) {}
	}
	log := e.log.With(slog.String("logical_name", unit.LogicalName), slog.String("run", key))
	start := time.Now()

	fail := func(stage Stage, err error) (Artifact, error) {
		log.Error("run failed",
			slog.String("stage", string(stage)),
			slog.String("kind", Kind(err)),
			slog.String("error", err.Error()))
		return Artifact{}, &StageError{Stage: stage, Err: err}
	}

	observe(StageParsing)
	raw, err := e.playlists.Fetch(ctx, unit.PlaylistAddress)
	if err != nil {
		return fail(StageParsing, fmt.Errorf("download playlist: %w", err))
	}
	pl, err := e.parser.Parse(unit.PlaylistAddress, raw)
	if err != nil {
		return fail(StageParsing, err)
	}
	observe(StageParsed)
	log.Info("playlist parsed", slog.Int("segments", pl.Len()))

	observe(StageLocating)
	segs, err := ResolveAll(pl)
	if err != nil {
		return fail(StageLocating, err)
	}

	observe(StageFetching)
	store := NewDirStore(e.ScratchPath(key), pl.Len())
	if _, err := e.scheduler.FetchAll(ctx, segs, store); err != nil {
		return fail(StageFetching, err)
	}
	observe(StageStored)

	observe(StageAssembling)
	out := filepath.Join(e.cfg.OutputDir, unit.LogicalName+pl.Ext())
	art, err := e.assembler.Assemble(ctx, store, out)
	if err != nil {
		return fail(StageAssembling, err)
	}
	observe(StageAssembled)

	if art.CleanupErr == nil {
		observe(StageCleanedUp)
	}
	log.Info("run complete",
		slog.String("artifact", art.Path),
		slog.Int64("size", art.Size),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return art, nil
}
