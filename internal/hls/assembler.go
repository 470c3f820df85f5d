package hls

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"hls-assembler/internal/platform/logger"
	"hls-assembler/internal/platform/metrics"

	"github.com/google/renameio/v2"
	"github.com/zeebo/blake3"
)

// Artifact is the single file produced from one playlist.
type Artifact struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Segments int    `json:"segments"`
	// Digest is the hex BLAKE3 hash of the file contents.
	Digest string `json:"digest"`

	// CleanupErr is set when the artifact was committed but the segment
	// store could not be cleared. The artifact is still valid.
	CleanupErr error `json:"-"`
}

// Assembler concatenates stored segments into an artifact.
type Assembler struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewAssembler returns an Assembler. log and m may be nil.
func NewAssembler(log *slog.Logger, m *metrics.Metrics) *Assembler {
	return &Assembler{log: logger.OrDiscard(log), metrics: m}
}

// Assemble writes the segments of store, in ascending index order, to
// outputPath. The bytes go to a pending file that only replaces outputPath
// once everything was written, so a failure never leaves partial output
// visible. After the commit the store is cleared; a failure to clear is
// reported in Artifact.CleanupErr rather than as an error.
func (a *Assembler) Assemble(ctx context.Context, store SegmentStore, outputPath string) (Artifact, error) {
	segments, err := store.GetInOrder()
	if err != nil {
		if errors.Is(err, ErrIncompleteStore) {
			return Artifact{}, err
		}
		return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "read segments", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "create output dir", Err: err}
	}

	pending, err := renameio.NewPendingFile(outputPath, renameio.WithPermissions(0o644))
	if err != nil {
		return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "create pending file", Err: err}
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			a.log.Debug("cleanup pending artifact", slog.String("path", outputPath), slog.String("error", err.Error()))
		}
	}()

	hasher := blake3.New()
	w := io.MultiWriter(pending, hasher)

	art := Artifact{Name: filepath.Base(outputPath), Path: outputPath}
	for data, err := range segments {
		if cerr := ctx.Err(); cerr != nil {
			return Artifact{}, cerr
		}
		if err != nil {
			if errors.Is(err, ErrIncompleteStore) {
				return Artifact{}, err
			}
			return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "read segment", Err: err}
		}
		n, err := w.Write(data)
		art.Size += int64(n)
		if err != nil {
			return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "write", Err: err}
		}
		art.Segments++
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return Artifact{}, &AssemblyIOError{Path: outputPath, Op: "commit", Err: err}
	}
	art.Digest = hex.EncodeToString(hasher.Sum(nil))
	a.metrics.AddArtifactBytes(art.Size)

	a.log.Info("artifact written",
		slog.String("path", outputPath),
		slog.Int("segments", art.Segments),
		slog.Int64("size", art.Size),
		slog.String("digest", art.Digest))

	if err := store.Clear(); err != nil {
		art.CleanupErr = err
		a.log.Warn("segment store cleanup failed", slog.String("path", outputPath), slog.String("error", err.Error()))
	}
	return art, nil
}
