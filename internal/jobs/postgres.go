package jobs

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/piwi3910/StowPlan/internal/model"
)

//go:embed migrations/postgres/schema.sql
var postgresSchema string

// PostgresQueue is a Queue shared by any number of workers through PostgreSQL.
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never take the same job.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to connStr, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresQueue, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	q := &PostgresQueue{pool: pool}
	if err := q.ApplySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return q, nil
}

// ApplySchema creates any missing tables. It is safe to run repeatedly.
func (q *PostgresQueue) ApplySchema(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, req model.PlacementRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	for _, it := range req.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO items (item_id, name, width, depth, height, mass, priority, expiry_date, usage_limit, preferred_zone)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (item_id) DO UPDATE SET
				name = EXCLUDED.name, width = EXCLUDED.width, depth = EXCLUDED.depth, height = EXCLUDED.height,
				mass = EXCLUDED.mass, priority = EXCLUDED.priority, expiry_date = EXCLUDED.expiry_date,
				usage_limit = EXCLUDED.usage_limit, preferred_zone = EXCLUDED.preferred_zone`,
			it.ID, it.Name, it.Width, it.Depth, it.Height, it.Mass, it.Priority, it.ExpiryDate, it.UsageLimit, it.PreferredZone,
		); err != nil {
			return "", fmt.Errorf("failed to register item %s: %w", it.ID, err)
		}
	}
	for _, c := range req.Containers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO containers (container_id, zone, width, depth, height)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (container_id) DO UPDATE SET
				zone = EXCLUDED.zone, width = EXCLUDED.width, depth = EXCLUDED.depth, height = EXCLUDED.height`,
			c.ID, c.Zone, c.Width, c.Depth, c.Height,
		); err != nil {
			return "", fmt.Errorf("failed to register container %s: %w", c.ID, err)
		}
	}

	jobID := model.NewJobID()
	if _, err := tx.Exec(ctx, `
		INSERT INTO placement_jobs (job_id, status, request_data)
		VALUES ($1, $2, $3)`,
		jobID, StatusPending, string(data),
	); err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return jobID, nil
}

func (q *PostgresQueue) Claim(ctx context.Context) (*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		job     Job
		request string
	)
	err = tx.QueryRow(ctx, `
		SELECT job_id, request_data::text, created_at
		FROM placement_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, StatusPending,
	).Scan(&job.ID, &request, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		UPDATE placement_jobs SET status = $1, updated_at = now()
		WHERE job_id = $2
		RETURNING updated_at`, StatusProcessing, job.ID,
	).Scan(&job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	job.Status = StatusProcessing
	job.RequestData = []byte(request)
	return &job, nil
}

func (q *PostgresQueue) LoadOccupancy(ctx context.Context, containerIDs []string) (model.Occupancy, error) {
	occ := make(model.Occupancy)
	if len(containerIDs) == 0 {
		return occ, nil
	}

	rows, err := q.pool.Query(ctx, `
		SELECT p.item_id, p.container_id, p.start_w, p.start_d, p.start_h, p.end_w, p.end_d, p.end_h,
			COALESCE(i.priority, $2)
		FROM placements p
		LEFT JOIN items i ON i.item_id = p.item_id
		WHERE p.container_id = ANY($1)
		ORDER BY p.container_id, p.item_id`, containerIDs, model.DefaultPriority)
	if err != nil {
		return nil, fmt.Errorf("failed to load occupancy: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.PlacementInfo
		if err := rows.Scan(&s.ItemID, &s.ContainerID,
			&s.Position.Start.Width, &s.Position.Start.Depth, &s.Position.Start.Height,
			&s.Position.End.Width, &s.Position.End.Depth, &s.Position.End.Height,
			&s.Priority); err != nil {
			return nil, err
		}
		occ[s.ContainerID] = append(occ[s.ContainerID], s)
	}
	return occ, rows.Err()
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string, out model.PlacementOutput) error {
	result, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Only the worker holding the claim may write results. The row stays
	// locked until commit, so a concurrent requeue waits for us.
	status, msg := finalStatus(out)
	tag, err := tx.Exec(ctx, `
		UPDATE placement_jobs SET status = $1, result_data = $2, error_message = $3, updated_at = now()
		WHERE job_id = $4 AND status = $5`,
		status, string(result), msg, jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notClaimed(ctx, tx, jobID)
	}

	for _, stmt := range []string{
		`DELETE FROM job_results_placements WHERE job_id = $1`,
		`DELETE FROM job_results_rearrangements WHERE job_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, jobID); err != nil {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}
	}

	for _, step := range out.Rearrangements {
		args := []any{jobID, step.Step, step.Action, step.ItemID, step.FromContainer}
		args = append(args, optionalBoxArgs(step.FromPosition)...)
		args = append(args, step.ToContainer)
		args = append(args, boxArgs(step.ToPosition)...)
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_results_rearrangements (job_id, step, action, item_id,
				from_container, from_start_w, from_start_d, from_start_h, from_end_w, from_end_d, from_end_h,
				to_container, to_start_w, to_start_d, to_start_h, to_end_w, to_end_d, to_end_h)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`, args...); err != nil {
			return fmt.Errorf("failed to store rearrangement step %d: %w", step.Step, err)
		}
	}

	for _, p := range out.Placements {
		args := append([]any{jobID, p.ItemID, p.ContainerID}, boxArgs(p.Position)...)
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_results_placements (job_id, item_id_fk, container_id_fk,
				start_w, start_d, start_h, end_w, end_d, end_h)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...); err != nil {
			return fmt.Errorf("failed to store result for item %s: %w", p.ItemID, err)
		}

		args = append([]any{p.ItemID, p.ContainerID}, boxArgs(p.Position)...)
		if _, err := tx.Exec(ctx, `
			INSERT INTO placements (item_id, container_id, start_w, start_d, start_h, end_w, end_d, end_h, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (item_id) DO UPDATE SET
				container_id = EXCLUDED.container_id,
				start_w = EXCLUDED.start_w, start_d = EXCLUDED.start_d, start_h = EXCLUDED.start_h,
				end_w = EXCLUDED.end_w, end_d = EXCLUDED.end_d, end_h = EXCLUDED.end_h,
				updated_at = now()`, args...); err != nil {
			return fmt.Errorf("failed to update placement of item %s: %w", p.ItemID, err)
		}
	}

	if len(out.FailedItemIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM placements WHERE item_id = ANY($1)`, out.FailedItemIDs); err != nil {
			return fmt.Errorf("failed to release failed items: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID, message string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE placement_jobs SET status = $1, error_message = $2, updated_at = now()
		WHERE job_id = $3 AND status = $4`, StatusFailed, message, jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return notClaimed(ctx, q.pool, jobID)
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notClaimed explains why an update matched no PROCESSING row.
func notClaimed(ctx context.Context, db pgQuerier, jobID string) error {
	var status string
	err := db.QueryRow(ctx, `SELECT status FROM placement_jobs WHERE job_id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up job %s: %w", jobID, err)
	}
	return fmt.Errorf("%w: %s is %s", ErrJobNotClaimed, jobID, status)
}

func (q *PostgresQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE placement_jobs SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3`,
		StatusPending, StatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *PostgresQueue) Job(ctx context.Context, jobID string) (*Job, error) {
	var (
		job     Job
		request string
		result  *string
	)
	err := q.pool.QueryRow(ctx, `
		SELECT job_id, status, request_data::text, result_data::text, error_message, created_at, updated_at
		FROM placement_jobs WHERE job_id = $1`, jobID,
	).Scan(&job.ID, &job.Status, &request, &result, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	job.RequestData = []byte(request)
	if result != nil {
		job.ResultData = []byte(*result)
	}
	return &job, nil
}
