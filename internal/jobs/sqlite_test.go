package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteQueue {
	t.Helper()
	q, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestSQLiteQueue(t *testing.T) {
	exerciseQueue(t, newTestSQLite(t))
}

func TestSQLiteQueue_MigrationsApplied(t *testing.T) {
	q := newTestSQLite(t)

	version, dirty, err := q.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, q.MigrateUp())
}

func TestSQLiteQueue_ReopenKeepsJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	q, err := OpenSQLite(path)
	require.NoError(t, err)
	id, err := q.Enqueue(context.Background(), testRequest())
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = OpenSQLite(path)
	require.NoError(t, err)
	defer q.Close()

	job, err := q.Job(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
}

func TestSQLiteQueue_RequeueStale(t *testing.T) {
	q := newTestSQLite(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return clock }

	id, err := q.Enqueue(ctx, testRequest())
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	clock = clock.Add(5 * time.Minute)
	n, err := q.RequeueStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(10 * time.Minute)
	n, err = q.RequeueStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID, "requeued job can be claimed again")
}

func TestSQLiteQueue_EnqueueRegistersItems(t *testing.T) {
	q := newTestSQLite(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testRequest())
	require.NoError(t, err)

	updated := testRequest()
	updated.Items[0].Priority = 99
	_, err = q.Enqueue(ctx, updated)
	require.NoError(t, err)

	var priority int
	var zone *string
	require.NoError(t, q.db.QueryRow(`SELECT priority, preferred_zone FROM items WHERE item_id = 'I1'`).Scan(&priority, &zone))
	assert.Equal(t, 99, priority)
	require.NotNil(t, zone)
	assert.Equal(t, "Medical", *zone)

	require.NoError(t, q.db.QueryRow(`SELECT preferred_zone FROM items WHERE item_id = 'I2'`).Scan(&zone))
	assert.Nil(t, zone)
}

func TestOpen_SQLiteBackend(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cfg.db")

	q, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Claim(context.Background())
	assert.ErrorIs(t, err, ErrNoJob)
}
