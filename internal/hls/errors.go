package hls

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPlaylist is returned when playlist bytes lack the expected
	// header or metadata/name structure. The playlist must be abandoned.
	ErrMalformedPlaylist = errors.New("malformed playlist")

	// ErrMalformedLocation is returned when a playlist address has no path
	// separator to derive a segment directory from.
	ErrMalformedLocation = errors.New("malformed playlist location")

	// ErrFetchFailed is returned when a single fetch exhausts its retries.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrBatchFetchFailed is returned when one or more segments of a playlist
	// could not be fetched.
	ErrBatchFetchFailed = errors.New("batch fetch failed")

	// ErrIncompleteStore is returned when the store is read while indices are missing.
	ErrIncompleteStore = errors.New("incomplete segment store")

	// ErrAssemblyIO is returned when writing the artifact fails.
	ErrAssemblyIO = errors.New("assembly i/o error")
)

// MalformedPlaylistError describes where parsing stopped. Line is 1-based
// within the non-blank lines, 0 when the problem is not tied to a line.
type MalformedPlaylistError struct {
	Line   int
	Reason string
}

func (e *MalformedPlaylistError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed playlist: line %d: %s", e.Line, e.Reason)
	}
	return "malformed playlist: " + e.Reason
}

func (e *MalformedPlaylistError) Is(target error) bool { return target == ErrMalformedPlaylist }

// FetchFailedError carries the last observation of a fetch that ran out of attempts.
// LastStatus is 0 and LastLength -1 when no response was received.
type FetchFailedError struct {
	Address    string
	Attempts   int
	LastStatus int
	LastLength int64
	Err        error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts (status %d, length %d): %v",
		e.Address, e.Attempts, e.LastStatus, e.LastLength, e.Err)
}

func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

func (e *FetchFailedError) Unwrap() error { return e.Err }

// BatchFetchFailedError lists the playlist indices whose fetch failed.
// Cancelled counts segments abandoned after the first failure.
type BatchFetchFailedError struct {
	FailedIndices []int
	Cancelled     int
	First         error
}

func (e *BatchFetchFailedError) Error() string {
	idx := make([]string, len(e.FailedIndices))
	for i, n := range e.FailedIndices {
		idx[i] = fmt.Sprint(n)
	}
	msg := fmt.Sprintf("batch fetch failed: segments [%s] failed, %d cancelled",
		strings.Join(idx, ","), e.Cancelled)
	if e.First != nil {
		msg += ": " + e.First.Error()
	}
	return msg
}

func (e *BatchFetchFailedError) Is(target error) bool { return target == ErrBatchFetchFailed }

func (e *BatchFetchFailedError) Unwrap() error { return e.First }

// IncompleteStoreError lists the indices missing from a store.
type IncompleteStoreError struct {
	Expected int
	Missing  []int
}

func (e *IncompleteStoreError) Error() string {
	if len(e.Missing) == 0 {
		return "incomplete segment store"
	}
	return fmt.Sprintf("incomplete segment store: %d of %d segments missing (first missing index %d)",
		len(e.Missing), e.Expected, e.Missing[0])
}

func (e *IncompleteStoreError) Is(target error) bool { return target == ErrIncompleteStore }

// AssemblyIOError wraps an I/O failure while producing an artifact.
type AssemblyIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *AssemblyIOError) Error() string {
	return fmt.Sprintf("assemble %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *AssemblyIOError) Is(target error) bool { return target == ErrAssemblyIO }

func (e *AssemblyIOError) Unwrap() error { return e.Err }

// Error kinds reported to callers of a run.
const (
	KindMalformedPlaylist = "MalformedPlaylist"
	KindMalformedLocation = "MalformedLocation"
	KindInvalidUnit       = "InvalidUnit"
	KindFetchFailed       = "FetchFailed"
	KindBatchFetchFailed  = "BatchFetchFailed"
	KindIncompleteStore   = "IncompleteStore"
	KindAssemblyIO        = "AssemblyIO"
	KindCanceled          = "Canceled"
	KindInternal          = "Internal"
)

// Kind classifies err into one of the Kind constants, or "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedPlaylist):
		return KindMalformedPlaylist
	case errors.Is(err, ErrMalformedLocation):
		return KindMalformedLocation
	case errors.Is(err, ErrInvalidUnit):
		return KindInvalidUnit
	case errors.Is(err, ErrBatchFetchFailed):
		return KindBatchFetchFailed
	case errors.Is(err, ErrFetchFailed):
		return KindFetchFailed
	case errors.Is(err, ErrIncompleteStore):
		return KindIncompleteStore
	case errors.Is(err, ErrAssemblyIO):
		return KindAssemblyIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
