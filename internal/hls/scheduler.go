package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"hls-assembler/internal/platform/logger"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default number of segment fetches in flight per playlist.
const DefaultConcurrency = 25

// SegmentFetcher fetches the bytes at one address. *Fetcher implements it.
type SegmentFetcher interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// Sink receives segment bytes as soon as a fetch succeeds. SegmentStore implementations satisfy it.
type Sink interface {
	Put(index int, data []byte) error
}

// FetchResult is the outcome of one segment fetch. Exactly one of Err and
// the payload is set. With a Sink the payload lives in the sink, Stored is
// true and Bytes is nil.
type FetchResult struct {
	Ref    SegmentRef
	Bytes  []byte
	Size   int
	Stored bool
	Err    error
}

// Scheduler runs one playlist's batch of fetches with bounded parallelism.
type Scheduler struct {
	fetcher     SegmentFetcher
	concurrency int
	log         *slog.Logger
}

// NewScheduler returns a Scheduler allowing concurrency fetches in flight.
// Values below 1 use DefaultConcurrency.
func NewScheduler(f SegmentFetcher, concurrency int, log *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{fetcher: f, concurrency: concurrency, log: logger.OrDiscard(log)}
}

// FetchAll fetches every segment and returns only after all dispatched
// fetches have finished. On success the result map holds exactly one entry
// per segment index. If any fetch fails, outstanding fetches are cancelled,
// segments not yet started are skipped, and the error is a
// *BatchFetchFailedError listing the failed indices; the partial result map
// is returned alongside for diagnosis. sink may be nil.
func (s *Scheduler) FetchAll(ctx context.Context, segs []ResolvedSegment, sink Sink) (map[int]FetchResult, error) {
	if err := checkIndices(segs); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]FetchResult, len(segs))
	dispatched := make([]bool, len(segs))
	abandoned := make([]bool, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, seg := range segs {
		if gctx.Err() != nil {
			break
		}
		dispatched[i] = true
		g.Go(func() error {
			res := s.fetchOne(gctx, seg, sink)
			results[i] = res
			if res.Err == nil {
				return nil
			}
			if isCancellation(gctx, res.Err) {
				abandoned[i] = true
				return nil
			}
			return res.Err
		})
	}
	werr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[int]FetchResult, len(segs))
	var failed []int
	cancelled := 0
	for i := range segs {
		if !dispatched[i] {
			cancelled++
			continue
		}
		res := results[i]
		out[res.Ref.Index] = res
		if res.Err == nil {
			continue
		}
		if abandoned[i] {
			cancelled++
		} else {
			failed = append(failed, res.Ref.Index)
		}
	}

	if len(failed) > 0 {
		slices.Sort(failed)
		s.log.Error("segment batch failed",
			slog.Int("segments", len(segs)),
			slog.Int("failed", len(failed)),
			slog.Int("cancelled", cancelled),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return out, &BatchFetchFailedError{FailedIndices: failed, Cancelled: cancelled, First: werr}
	}

	s.log.Info("segment batch fetched",
		slog.Int("segments", len(segs)),
		slog.Int("concurrency", s.concurrency),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, nil
}

func (s *Scheduler) fetchOne(ctx context.Context, seg ResolvedSegment, sink Sink) FetchResult {
	res := FetchResult{Ref: seg.SegmentRef}
	data, err := s.fetcher.Fetch(ctx, seg.Address)
	if err != nil {
		res.Err = err
		return res
	}
	res.Size = len(data)
	if sink == nil {
		res.Bytes = data
		return res
	}
	if err := sink.Put(seg.Index, data); err != nil {
		res.Err = fmt.Errorf("store segment %d: %w", seg.Index, err)
		return res
	}
	res.Stored = true
	return res
}

// isCancellation reports whether err is the group cancelling a fetch rather
// than the fetch failing on its own. A fetch that ran out of attempts is a
// failure even when its last attempt timed out.
func isCancellation(gctx context.Context, err error) bool {
	if gctx.Err() == nil || errors.Is(err, ErrFetchFailed) {
		return false
	}
	return errors.Is(err, context.Canceled)
}

func checkIndices(segs []ResolvedSegment) error {
	seen := make([]bool, len(segs))
	for _, seg := range segs {
		if seg.Index < 0 || seg.Index >= len(segs) {
			return fmt.Errorf("segment index %d out of range [0,%d)", seg.Index, len(segs))
		}
		if seen[seg.Index] {
			return fmt.Errorf("duplicate segment index %d", seg.Index)
		}
		seen[seg.Index] = true
	}
	return nil
}
