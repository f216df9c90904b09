// Package jobs stores placement jobs, their results and the live occupancy
// they are computed against.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/piwi3910/StowPlan/internal/model"
)

// Job states.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var (
	// ErrNoJob is returned by Claim when no job is pending.
	ErrNoJob = errors.New("no pending job")
	// ErrJobNotFound is returned when a job ID is unknown.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotClaimed is returned by Complete and Fail when the job is no
	// longer PROCESSING, e.g. it was requeued as stale or already finished.
	ErrJobNotClaimed = errors.New("job not claimed")
)

var (
	_ Queue = (*SQLiteQueue)(nil)
	_ Queue = (*PostgresQueue)(nil)
)

// Queue is the job source and result sink the worker runs against.
type Queue interface {
	// Enqueue stores a new PENDING job and registers its items and containers.
	Enqueue(ctx context.Context, req model.PlacementRequest) (string, error)
	// Claim atomically moves the oldest PENDING job to PROCESSING.
	Claim(ctx context.Context) (*Job, error)
	// LoadOccupancy returns the live placements of exactly the given containers.
	LoadOccupancy(ctx context.Context, containerIDs []string) (model.Occupancy, error)
	// Complete stores a job's result and applies it to the live placements.
	// Nothing is written unless the job is still PROCESSING.
	Complete(ctx context.Context, jobID string, out model.PlacementOutput) error
	// Fail marks a PROCESSING job FAILED without touching placements.
	Fail(ctx context.Context, jobID, message string) error
	// RequeueStale returns jobs stuck in PROCESSING for longer than olderThan to PENDING.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	// Job looks up a job by ID.
	Job(ctx context.Context, jobID string) (*Job, error)
	Close() error
}

// Job is one row of placement_jobs.
type Job struct {
	ID           string
	Status       string
	RequestData  []byte
	ResultData   []byte
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Request decodes the stored request payload.
func (j *Job) Request() (model.PlacementRequest, error) {
	var req model.PlacementRequest
	if err := json.Unmarshal(j.RequestData, &req); err != nil {
		return model.PlacementRequest{}, fmt.Errorf("failed to decode request of job %s: %w", j.ID, err)
	}
	return req, nil
}

// Output decodes the stored result, or returns nil if the job has none yet.
func (j *Job) Output() (*model.PlacementOutput, error) {
	if len(j.ResultData) == 0 {
		return nil, nil
	}
	var out model.PlacementOutput
	if err := json.Unmarshal(j.ResultData, &out); err != nil {
		return nil, fmt.Errorf("failed to decode result of job %s: %w", j.ID, err)
	}
	return &out, nil
}

// Open connects to the backend selected in config and brings its schema up to date.
func Open(ctx context.Context, config model.AppConfig) (Queue, error) {
	switch config.Backend {
	case model.BackendPostgres:
		q, err := OpenPostgres(ctx, config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return q, nil
	case model.BackendSQLite, "":
		q, err := OpenSQLite(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", config.Backend)
	}
}

// finalStatus maps an output to the job status it produces.
func finalStatus(out model.PlacementOutput) (string, *string) {
	if out.Success {
		return StatusCompleted, nil
	}
	return StatusFailed, out.Error
}

// boxArgs flattens a position into start/end column values.
func boxArgs(p model.Position) []any {
	return []any{p.Start.Width, p.Start.Depth, p.Start.Height, p.End.Width, p.End.Depth, p.End.Height}
}

// optionalBoxArgs is boxArgs for a nullable position.
func optionalBoxArgs(p *model.Position) []any {
	if p == nil {
		return []any{nil, nil, nil, nil, nil, nil}
	}
	return boxArgs(*p)
}

// nullable turns a nil pointer into a SQL NULL and dereferences anything else.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
