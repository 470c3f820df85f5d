package orchestrator

import (
	"time"

	"hls-assembler/internal/hls"
)

// JobID uniquely identifies one submitted unit of work.
type JobID string

// Job-level stages around the engine's own stages.
const (
	// StagePending is a job accepted but not yet started.
	StagePending hls.Stage = "pending"
	// StageFailed is the terminal state of a job whose run returned an error.
	StageFailed hls.Stage = "failed"
)

// Job is the state of one episode's processing, as reported to callers.
type Job struct {
	ID              JobID     `json:"id"`
	LogicalName     string    `json:"logical_name"`
	PlaylistAddress string    `json:"playlist_address"`
	Stage           hls.Stage `json:"stage"`
	Done            bool      `json:"done"`

	// Set when Stage is StageFailed.
	FailedStage hls.Stage `json:"failed_stage,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`

	// Set on success. CleanupError reports a scratch directory that could not be removed.
	Artifact     *hls.Artifact `json:"artifact,omitempty"`
	CleanupError string        `json:"cleanup_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit returns the unit of work the job was created from.
func (j Job) Unit() hls.Unit {
	return hls.Unit{LogicalName: j.LogicalName, PlaylistAddress: j.PlaylistAddress}
}
