// Package worker claims placement jobs from a queue and runs the engine on them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/piwi3910/StowPlan/internal/engine"
	"github.com/piwi3910/StowPlan/internal/jobs"
	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/piwi3910/StowPlan/internal/project"
	"golang.org/x/sync/errgroup"
)

// DefaultErrorBackoff is the pause after an infrastructure error.
const DefaultErrorBackoff = 10 * time.Second

// Pool polls a queue with a fixed number of workers.
// Each job is computed single-threaded; workers only share the queue.
// Occupancy is read without locking containers, so jobs that target the
// same containers must not run concurrently: keep Workers at 1 for a shared
// container set.
type Pool struct {
	Queue        jobs.Queue
	Placer       *engine.Placer
	Workers      int
	PollInterval time.Duration
	ErrorBackoff time.Duration
	StaleAfter   time.Duration // 0 disables requeueing of stuck jobs
	ArchiveDir   string        // when set, every finished job is archived here
	Logger       *log.Logger
}

// New builds a pool from the application config.
func New(q jobs.Queue, config model.AppConfig, logger *log.Logger) *Pool {
	placer := engine.New(config.Placement)
	placer.Logger = logger
	return &Pool{
		Queue:        q,
		Placer:       placer,
		Workers:      config.Workers,
		PollInterval: config.PollInterval(),
		ErrorBackoff: DefaultErrorBackoff,
		StaleAfter:   config.StaleAfter(),
		Logger:       logger,
	}
}

func (p *Pool) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// Run processes jobs until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	p.logf("starting %d workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= workers; i++ {
		i := i
		g.Go(func() error {
			p.loop(ctx, i)
			return nil
		})
	}
	if p.StaleAfter > 0 {
		g.Go(func() error {
			p.janitor(ctx)
			return nil
		})
	}
	err := g.Wait()
	p.logf("all workers stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	for {
		processed, err := p.ProcessOne(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := time.Duration(0)
		switch {
		case err != nil:
			p.logf("worker %d: %v", id, err)
			wait = p.ErrorBackoff
			if wait <= 0 {
				wait = DefaultErrorBackoff
			}
		case !processed:
			wait = p.PollInterval
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// janitor requeues jobs whose worker died mid-job.
func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.StaleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Queue.RequeueStale(ctx, p.StaleAfter)
			if err != nil {
				p.logf("janitor: %v", err)
				continue
			}
			if n > 0 {
				p.logf("janitor: requeued %d stale jobs", n)
			}
		}
	}
}

// ProcessOne claims and processes a single job. It reports false when the
// queue was empty. A job with a malformed request is marked FAILED and is not
// an error; errors are returned only for queue failures, in which case the job
// stays PROCESSING until it is requeued. A result for a job this worker no
// longer holds is logged and dropped.
func (p *Pool) ProcessOne(ctx context.Context) (bool, error) {
	job, err := p.Queue.Claim(ctx)
	if errors.Is(err, jobs.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.logf("processing job %s", job.ID)

	req, err := job.Request()
	if err != nil {
		return true, p.fail(ctx, job.ID, err)
	}

	occ, err := p.Queue.LoadOccupancy(ctx, req.ContainerIDs())
	if err != nil {
		return true, fmt.Errorf("job %s: %w", job.ID, err)
	}
	occ = mergeOccupancy(occ, req.Occupancy)

	out, err := p.Placer.ComputePlacements(req.Items, req.Containers, occ)
	if err != nil {
		return true, p.fail(ctx, job.ID, err)
	}

	if err := p.Queue.Complete(ctx, job.ID, out); err != nil {
		if errors.Is(err, jobs.ErrJobNotClaimed) {
			p.logf("job %s: result dropped: %v", job.ID, err)
			return true, nil
		}
		return true, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if out.Success {
		p.logf("job %s completed: %d placements, %d moves", job.ID, len(out.Placements), len(out.Rearrangements))
	} else {
		p.logf("job %s finished with failures: %s", job.ID, *out.Error)
	}

	if p.ArchiveDir != "" {
		path := project.ArchivePath(p.ArchiveDir, job.ID)
		if err := project.ExportJobArchive(path, job.ID, req, out); err != nil {
			p.logf("job %s: archive: %v", job.ID, err)
		}
	}
	return true, nil
}

func (p *Pool) fail(ctx context.Context, jobID string, cause error) error {
	p.logf("job %s failed: %v", jobID, cause)
	if err := p.Queue.Fail(ctx, jobID, cause.Error()); err != nil {
		if errors.Is(err, jobs.ErrJobNotClaimed) {
			p.logf("job %s: failure dropped: %v", jobID, err)
			return nil
		}
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	return nil
}

// mergeOccupancy adds slots embedded in a request to the stored occupancy.
// Stored slots win when both name the same item.
func mergeOccupancy(stored, embedded model.Occupancy) model.Occupancy {
	if len(embedded) == 0 {
		return stored
	}
	seen := make(map[string]bool, stored.Count())
	for _, slots := range stored {
		for _, s := range slots {
			seen[s.ItemID] = true
		}
	}
	merged := stored.Clone()
	for cid, slots := range embedded {
		for _, s := range slots {
			if seen[s.ItemID] {
				continue
			}
			seen[s.ItemID] = true
			merged[cid] = append(merged[cid], s)
		}
	}
	return merged
}

// sleep waits for d or until ctx is done. It reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
