package jobs

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/piwi3910/StowPlan/internal/model"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteQueue is a single-node Queue backed by a SQLite file.
type SQLiteQueue struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers; SQLite has a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	q := &SQLiteQueue{db: db, now: time.Now}
	if err := q.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (q *SQLiteQueue) MigrateUp() error {
	m, err := q.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (q *SQLiteQueue) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := q.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (q *SQLiteQueue) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(q.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, req model.PlacementRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	for _, it := range req.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (item_id, name, width, depth, height, mass, priority, expiry_date, usage_limit, preferred_zone)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET
				name = excluded.name, width = excluded.width, depth = excluded.depth, height = excluded.height,
				mass = excluded.mass, priority = excluded.priority, expiry_date = excluded.expiry_date,
				usage_limit = excluded.usage_limit, preferred_zone = excluded.preferred_zone`,
			it.ID, it.Name, it.Width, it.Depth, it.Height, it.Mass, it.Priority, nullable(it.ExpiryDate), nullable(it.UsageLimit), nullable(it.PreferredZone),
		); err != nil {
			return "", fmt.Errorf("failed to register item %s: %w", it.ID, err)
		}
	}
	for _, c := range req.Containers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO containers (container_id, zone, width, depth, height)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (container_id) DO UPDATE SET
				zone = excluded.zone, width = excluded.width, depth = excluded.depth, height = excluded.height`,
			c.ID, c.Zone, c.Width, c.Depth, c.Height,
		); err != nil {
			return "", fmt.Errorf("failed to register container %s: %w", c.ID, err)
		}
	}

	jobID := model.NewJobID()
	now := q.now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO placement_jobs (job_id, status, request_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, StatusPending, string(data), now, now,
	); err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return jobID, nil
}

func (q *SQLiteQueue) Claim(ctx context.Context) (*Job, error) {
	now := q.now().UnixNano()
	row := q.db.QueryRowContext(ctx, `
		UPDATE placement_jobs SET status = ?, updated_at = ?
		WHERE job_id = (
			SELECT job_id FROM placement_jobs
			WHERE status = ?
			ORDER BY created_at ASC, rowid ASC
			LIMIT 1
		)
		RETURNING job_id, status, request_data, created_at, updated_at`,
		StatusProcessing, now, StatusPending,
	)

	var (
		job              Job
		request          string
		created, updated int64
	)
	if err := row.Scan(&job.ID, &job.Status, &request, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	job.RequestData = []byte(request)
	job.CreatedAt = time.Unix(0, created)
	job.UpdatedAt = time.Unix(0, updated)
	return &job, nil
}

func (q *SQLiteQueue) LoadOccupancy(ctx context.Context, containerIDs []string) (model.Occupancy, error) {
	occ := make(model.Occupancy)
	if len(containerIDs) == 0 {
		return occ, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(containerIDs)), ", ")
	args := make([]any, len(containerIDs))
	for i, id := range containerIDs {
		args[i] = id
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT p.item_id, p.container_id, p.start_w, p.start_d, p.start_h, p.end_w, p.end_d, p.end_h,
			COALESCE(i.priority, `+fmt.Sprint(model.DefaultPriority)+`)
		FROM placements p
		LEFT JOIN items i ON i.item_id = p.item_id
		WHERE p.container_id IN (`+placeholders+`)
		ORDER BY p.container_id, p.item_id`, args...)
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

func (q *SQLiteQueue) Complete(ctx context.Context, jobID string, out model.PlacementOutput) error {
	result, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	now := q.now().UnixNano()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Only the worker holding the claim may write results.
	status, msg := finalStatus(out)
	res, err := tx.ExecContext(ctx, `
		UPDATE placement_jobs SET status = ?, result_data = ?, error_message = ?, updated_at = ?
		WHERE job_id = ? AND status = ?`,
		status, string(result), nullable(msg), now, jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if err := q.checkClaimed(ctx, tx, res, jobID); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM job_results_placements WHERE job_id = ?`,
		`DELETE FROM job_results_rearrangements WHERE job_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, jobID); err != nil {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}
	}

	for _, step := range out.Rearrangements {
		args := []any{jobID, step.Step, step.Action, step.ItemID, nullable(step.FromContainer)}
		args = append(args, optionalBoxArgs(step.FromPosition)...)
		args = append(args, step.ToContainer)
		args = append(args, boxArgs(step.ToPosition)...)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_results_rearrangements (job_id, step, action, item_id,
				from_container, from_start_w, from_start_d, from_start_h, from_end_w, from_end_d, from_end_h,
				to_container, to_start_w, to_start_d, to_start_h, to_end_w, to_end_d, to_end_h)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("failed to store rearrangement step %d: %w", step.Step, err)
		}
	}

	for _, p := range out.Placements {
		args := append([]any{jobID, p.ItemID, p.ContainerID}, boxArgs(p.Position)...)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_results_placements (job_id, item_id_fk, container_id_fk,
				start_w, start_d, start_h, end_w, end_d, end_h)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("failed to store result for item %s: %w", p.ItemID, err)
		}

		args = append([]any{p.ItemID, p.ContainerID}, boxArgs(p.Position)...)
		args = append(args, now)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO placements (item_id, container_id, start_w, start_d, start_h, end_w, end_d, end_h, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET
				container_id = excluded.container_id,
				start_w = excluded.start_w, start_d = excluded.start_d, start_h = excluded.start_h,
				end_w = excluded.end_w, end_d = excluded.end_d, end_h = excluded.end_h,
				updated_at = excluded.updated_at`, args...); err != nil {
			return fmt.Errorf("failed to update placement of item %s: %w", p.ItemID, err)
		}
	}

	// A failed item no longer holds the slot it may have had before this job.
	for _, id := range out.FailedItemIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM placements WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("failed to release item %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (q *SQLiteQueue) Fail(ctx context.Context, jobID, message string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE placement_jobs SET status = ?, error_message = ?, updated_at = ?
		WHERE job_id = ? AND status = ?`,
		StatusFailed, message, q.now().UnixNano(), jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	return q.checkClaimed(ctx, q.db, res, jobID)
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkClaimed turns an update that matched no PROCESSING row into
// ErrJobNotFound or ErrJobNotClaimed.
func (q *SQLiteQueue) checkClaimed(ctx context.Context, db sqlQuerier, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM placement_jobs WHERE job_id = ?`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up job %s: %w", jobID, err)
	}
	return fmt.Errorf("%w: %s is %s", ErrJobNotClaimed, jobID, status)
}

func (q *SQLiteQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx, `
		UPDATE placement_jobs SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		StatusPending, now.UnixNano(), StatusProcessing, now.Add(-olderThan).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (q *SQLiteQueue) Job(ctx context.Context, jobID string) (*Job, error) {
	var (
		job              Job
		request          string
		result           sql.NullString
		errMsg           sql.NullString
		created, updated int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT job_id, status, request_data, result_data, error_message, created_at, updated_at
		FROM placement_jobs WHERE job_id = ?`, jobID,
	).Scan(&job.ID, &job.Status, &request, &result, &errMsg, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	job.RequestData = []byte(request)
	if result.Valid {
		job.ResultData = []byte(result.String)
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	job.CreatedAt = time.Unix(0, created)
	job.UpdatedAt = time.Unix(0, updated)
	return &job, nil
}
