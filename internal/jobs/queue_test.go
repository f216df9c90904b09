package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() model.PlacementRequest {
	return model.PlacementRequest{
		Items: []model.Item{
			{ID: "I1", Name: "Medkit", Width: 10, Depth: 10, Height: 10, Mass: 2, Priority: 80, PreferredZone: model.StringPtr("Medical")},
			{ID: "I2", Name: "Spanner", Width: 5, Depth: 20, Height: 2, Mass: 1, Priority: 20},
		},
		Containers: []model.Container{
			{ID: "C1", Zone: "Medical", Width: 50, Depth: 50, Height: 50},
			{ID: "C2", Zone: "Storage", Width: 50, Depth: 50, Height: 50},
		},
	}
}

func pos(w, d, h, size float64) model.Position {
	return model.NewPosition(model.Coordinates{Width: w, Depth: d, Height: h}, model.Orientation{Width: size, Depth: size, Height: size})
}

// exerciseQueue runs the behaviour every Queue implementation must share.
func exerciseQueue(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	_, err := q.Claim(ctx)
	require.ErrorIs(t, err, ErrNoJob)

	firstID, err := q.Enqueue(ctx, testRequest())
	require.NoError(t, err)
	secondID, err := q.Enqueue(ctx, model.PlacementRequest{Containers: testRequest().Containers})
	require.NoError(t, err)
	assert.NotEqual(t, firstID, secondID)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstID, job.ID, "oldest job is claimed first")
	assert.Equal(t, StatusProcessing, job.Status)

	req, err := job.Request()
	require.NoError(t, err)
	assert.Equal(t, testRequest().Items, req.Items)

	stale, err := q.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stale, "a freshly claimed job is not stale")

	moved := pos(0, 0, 0, 10)
	out := model.PlacementOutput{
		Success: true,
		Placements: []model.PlacementResult{
			{ItemID: "I1", ContainerID: "C1", Position: pos(0, 0, 0, 10)},
			{ItemID: "I2", ContainerID: "C2", Position: model.NewPosition(model.Coordinates{Depth: 30},
				model.Orientation{Width: 5, Depth: 20, Height: 2})},
			{ItemID: "ghost", ContainerID: "C2", Position: pos(20, 0, 0, 5)},
		},
		Rearrangements: []model.RearrangementStep{{
			Step: 1, Action: model.ActionMove, ItemID: "ghost",
			FromContainer: model.StringPtr("C1"), FromPosition: &moved,
			ToContainer: "C2", ToPosition: pos(20, 0, 0, 5),
		}},
		FailedItemIDs: []string{},
	}
	require.NoError(t, q.Complete(ctx, firstID, out))

	done, err := q.Job(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Nil(t, done.ErrorMessage)
	stored, err := done.Output()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Placements, 3)
	assert.Len(t, stored.Rearrangements, 1)

	occ, err := q.LoadOccupancy(ctx, []string{"C1"})
	require.NoError(t, err)
	require.Len(t, occ["C1"], 1)
	assert.Equal(t, "I1", occ["C1"][0].ItemID)
	assert.Equal(t, 80, occ["C1"][0].Priority, "priority joined from items")
	assert.True(t, occ["C1"][0].Position.Equal(pos(0, 0, 0, 10)))
	assert.NotContains(t, occ, "C2", "only requested containers are loaded")

	occ, err = q.LoadOccupancy(ctx, []string{"C2"})
	require.NoError(t, err)
	require.Len(t, occ["C2"], 2)
	assert.Equal(t, "I2", occ["C2"][0].ItemID)
	assert.Equal(t, "ghost", occ["C2"][1].ItemID)
	assert.Equal(t, model.DefaultPriority, occ["C2"][1].Priority, "unknown items default to 50")

	occ, err = q.LoadOccupancy(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, occ)

	// Second job: I1 fails to fit again and loses its slot.
	job, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, secondID, job.ID)

	msg := "Placement incomplete. Failed items: I1"
	require.NoError(t, q.Complete(ctx, secondID, model.PlacementOutput{
		Success:        false,
		Error:          &msg,
		Placements:     []model.PlacementResult{},
		Rearrangements: []model.RearrangementStep{},
		FailedItemIDs:  []string{"I1"},
	}))
	failed, err := q.Job(ctx, secondID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, msg, *failed.ErrorMessage)

	occ, err = q.LoadOccupancy(ctx, []string{"C1"})
	require.NoError(t, err)
	assert.Empty(t, occ["C1"])

	// Structural failure.
	thirdID, err := q.Enqueue(ctx, testRequest())
	require.NoError(t, err)
	assert.ErrorIs(t, q.Fail(ctx, thirdID, "bad request"), ErrJobNotClaimed, "a pending job cannot be failed")
	job, err = q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, thirdID, job.ID)
	require.NoError(t, q.Fail(ctx, thirdID, "bad request"))
	third, err := q.Job(ctx, thirdID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, third.Status)
	out3, err := third.Output()
	require.NoError(t, err)
	assert.Nil(t, out3)

	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrNoJob, "failed jobs are not claimed")

	_, err = q.Job(ctx, "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, q.Fail(ctx, "no-such-job", "x"), ErrJobNotFound)
	assert.ErrorIs(t, q.Complete(ctx, "no-such-job", model.PlacementOutput{Success: true}), ErrJobNotFound)

	exerciseLateWorker(t, q)
}

// exerciseLateWorker covers a worker that finishes after its job was
// requeued as stale and completed by another worker.
func exerciseLateWorker(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testRequest())
	require.NoError(t, err)
	first, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, id, first.ID)

	// A cutoff in the future treats every PROCESSING job as stale.
	n, err := q.RequeueStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	second, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, id, second.ID, "requeued job is claimed again")

	require.NoError(t, q.Complete(ctx, id, model.PlacementOutput{
		Success:        true,
		Placements:     []model.PlacementResult{{ItemID: "I1", ContainerID: "C1", Position: pos(0, 0, 0, 10)}},
		Rearrangements: []model.RearrangementStep{},
		FailedItemIDs:  []string{},
	}))

	msg := "Placement incomplete. Failed items: I1"
	err = q.Complete(ctx, id, model.PlacementOutput{
		Success:        false,
		Error:          &msg,
		Placements:     []model.PlacementResult{},
		Rearrangements: []model.RearrangementStep{},
		FailedItemIDs:  []string{"I1"},
	})
	assert.ErrorIs(t, err, ErrJobNotClaimed)
	assert.ErrorIs(t, q.Fail(ctx, id, "worker crashed"), ErrJobNotClaimed)

	job, err := q.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status, "late worker does not overwrite the result")
	assert.Nil(t, job.ErrorMessage)
	out, err := job.Output()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Success)

	occ, err := q.LoadOccupancy(ctx, []string{"C1"})
	require.NoError(t, err)
	require.Len(t, occ["C1"], 1, "late worker does not release live slots")
	assert.Equal(t, "I1", occ["C1"][0].ItemID)
}

func TestJobRequest_InvalidPayload(t *testing.T) {
	job := &Job{ID: "j1", RequestData: []byte("{not json")}

	_, err := job.Request()
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.Backend = "mysql"

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
