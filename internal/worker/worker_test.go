package worker

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/piwi3910/StowPlan/internal/jobs"
	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/piwi3910/StowPlan/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*Pool, *jobs.SQLiteQueue) {
	t.Helper()
	q, err := jobs.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	cfg := model.DefaultAppConfig()
	pool := New(q, cfg, nil)
	pool.PollInterval = 10 * time.Millisecond
	pool.ErrorBackoff = 10 * time.Millisecond
	return pool, q
}

func singleSlotRequest(itemID string, priority int) model.PlacementRequest {
	return model.PlacementRequest{
		Items:      []model.Item{{ID: itemID, Width: 10, Depth: 10, Height: 10, Priority: priority}},
		Containers: []model.Container{{ID: "C1", Zone: "z1", Width: 10, Depth: 10, Height: 10}},
	}
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	pool, _ := newTestPool(t)

	processed, err := pool.ProcessOne(context.Background())

	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessOne_CompletesJob(t *testing.T) {
	pool, q := newTestPool(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, singleSlotRequest("A", 50))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job, err := q.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)

	occ, err := q.LoadOccupancy(ctx, []string{"C1"})
	require.NoError(t, err)
	require.Len(t, occ["C1"], 1)
	assert.Equal(t, "A", occ["C1"][0].ItemID)
}

func TestProcessOne_UsesStoredOccupancy(t *testing.T) {
	pool, q := newTestPool(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, singleSlotRequest("A", 50))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, singleSlotRequest("B", 50))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := pool.ProcessOne(ctx)
		require.NoError(t, err)
	}

	job, err := q.Job(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status, "the only slot is already taken by A")
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "Placement incomplete. Failed items: B", *job.ErrorMessage)

	out, err := job.Output()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, []string{"B"}, out.FailedItemIDs)
	require.Len(t, out.Placements, 1)
	assert.Equal(t, "A", out.Placements[0].ItemID)
}

func TestProcessOne_InvalidRequestFailsJob(t *testing.T) {
	pool, q := newTestPool(t)
	ctx := context.Background()

	req := singleSlotRequest("A", 50)
	req.Containers[0].Width = 0
	id, err := q.Enqueue(ctx, req)
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job, err := q.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "invalid placement input")
}

func TestProcessOne_WritesArchive(t *testing.T) {
	pool, q := newTestPool(t)
	pool.ArchiveDir = t.TempDir()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, singleSlotRequest("A", 50))
	require.NoError(t, err)
	_, err = pool.ProcessOne(ctx)
	require.NoError(t, err)

	archive, err := project.ImportJobArchive(project.ArchivePath(pool.ArchiveDir, id))
	require.NoError(t, err)
	assert.Equal(t, id, archive.JobID)
	assert.True(t, archive.Output.Success)
}

func TestProcessOne_LogsProgress(t *testing.T) {
	pool, q := newTestPool(t)
	var buf bytes.Buffer
	pool.Logger = log.New(&buf, "[worker] ", 0)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, singleSlotRequest("A", 50))
	require.NoError(t, err)
	_, err = pool.ProcessOne(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "processing job "+id)
	assert.Contains(t, buf.String(), "job "+id+" completed")
}

func TestRun_DrainsQueueUntilCancelled(t *testing.T) {
	pool, q := newTestPool(t)
	pool.Workers = 3
	pool.StaleAfter = time.Hour

	bg := context.Background()
	var ids []string
	for _, c := range []string{"C1", "C2", "C3", "C4"} {
		req := model.PlacementRequest{
			Items:      []model.Item{{ID: "item-" + c, Width: 5, Depth: 5, Height: 5, Priority: 50}},
			Containers: []model.Container{{ID: c, Width: 10, Depth: 10, Height: 10}},
		}
		id, err := q.Enqueue(bg, req)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	ctx, cancel := context.WithCancel(bg)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := q.Job(bg, id)
			if err != nil || job.Status != jobs.StatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMergeOccupancy(t *testing.T) {
	slot := func(id string, w float64) model.PlacementInfo {
		return model.PlacementInfo{ItemID: id, Position: model.NewPosition(
			model.Coordinates{Width: w}, model.Orientation{Width: 1, Depth: 1, Height: 1})}
	}
	stored := model.Occupancy{"C1": {slot("A", 0)}}
	embedded := model.Occupancy{"C1": {slot("A", 5), slot("B", 2)}, "C2": {slot("C", 0)}}

	merged := mergeOccupancy(stored, embedded)

	require.Len(t, merged["C1"], 2)
	assert.Equal(t, 0.0, merged["C1"][0].Position.Start.Width, "stored slot wins")
	assert.Equal(t, "B", merged["C1"][1].ItemID)
	assert.Len(t, merged["C2"], 1)
	assert.Len(t, stored["C1"], 1, "stored occupancy is not modified")
}

// flakyQueue fails every claim.
type flakyQueue struct {
	jobs.Queue
	claims int
}

func (f *flakyQueue) Claim(context.Context) (*jobs.Job, error) {
	f.claims++
	return nil, errors.New("database is locked")
}

// requeuingQueue requeues every job between claim and completion, as the
// janitor does when a worker stalls.
type requeuingQueue struct {
	*jobs.SQLiteQueue
}

func (r requeuingQueue) Complete(ctx context.Context, jobID string, out model.PlacementOutput) error {
	if _, err := r.SQLiteQueue.RequeueStale(ctx, -time.Minute); err != nil {
		return err
	}
	return r.SQLiteQueue.Complete(ctx, jobID, out)
}

func (r requeuingQueue) Fail(ctx context.Context, jobID, message string) error {
	if _, err := r.SQLiteQueue.RequeueStale(ctx, -time.Minute); err != nil {
		return err
	}
	return r.SQLiteQueue.Fail(ctx, jobID, message)
}

func TestProcessOne_DropsResultOfRequeuedJob(t *testing.T) {
	pool, q := newTestPool(t)
	var buf bytes.Buffer
	pool.Queue = requeuingQueue{q}
	pool.Logger = log.New(&buf, "[worker] ", 0)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, singleSlotRequest("A", 50))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Contains(t, buf.String(), "job "+id+": result dropped")

	job, err := q.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status, "job waits for the next claim")

	occ, err := q.LoadOccupancy(ctx, []string{"C1"})
	require.NoError(t, err)
	assert.Empty(t, occ["C1"], "no placements written by the stalled worker")
}

func TestProcessOne_DropsFailureOfRequeuedJob(t *testing.T) {
	pool, q := newTestPool(t)
	pool.Queue = requeuingQueue{q}
	ctx := context.Background()

	req := singleSlotRequest("A", 50)
	req.Containers[0].Width = 0
	id, err := q.Enqueue(ctx, req)
	require.NoError(t, err)

	_, err = pool.ProcessOne(ctx)
	require.NoError(t, err)

	job, err := q.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestProcessOne_PropagatesQueueErrors(t *testing.T) {
	pool := New(&flakyQueue{}, model.DefaultAppConfig(), log.New(os.Stderr, "[worker] ", 0))

	processed, err := pool.ProcessOne(context.Background())

	assert.False(t, processed)
	assert.EqualError(t, err, "database is locked")
}
