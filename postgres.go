package greenlight

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore backs the persistence collaborators with a single Postgres
// database: snapshots, the step log, review tasks, and the resume queue. It
// is what makes pause in one process and resume in another work.
type PostgresStore struct {
	db           *sql.DB
	pollInterval time.Duration
	retryDelay   time.Duration
}

// PostgresStoreOptions configures a PostgresStore.
type PostgresStoreOptions struct {
	// PollInterval is how often Dequeue checks for new resume jobs
	// (default 250ms).
	PollInterval time.Duration

	// RetryDelay is how long a nacked job waits before redelivery
	// (default 5s).
	RetryDelay time.Duration
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, opts PostgresStoreOptions) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &PostgresStore{
		db:           db,
		pollInterval: opts.PollInterval,
		retryDelay:   opts.RetryDelay,
	}, nil
}

// OpenPostgresStore opens a connection with the pq driver and wraps it.
func OpenPostgresStore(connString string, opts PostgresStoreOptions) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewPostgresStore(db, opts)
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS workflow_snapshots (
	execution_id  TEXT PRIMARY KEY,
	workflow_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	data          JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id           BIGSERIAL PRIMARY KEY,
	execution_id TEXT NOT NULL,
	node_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS workflow_steps_execution_idx
	ON workflow_steps (execution_id, id);

CREATE TABLE IF NOT EXISTS workflow_tasks (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS workflow_tasks_execution_idx
	ON workflow_tasks (execution_id, created_at);

CREATE TABLE IF NOT EXISTS workflow_resume_jobs (
	id           BIGSERIAL PRIMARY KEY,
	execution_id TEXT NOT NULL,
	decision     JSONB NOT NULL,
	attempts     INT NOT NULL DEFAULT 0,
	locked       BOOLEAN NOT NULL DEFAULT FALSE,
	available_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Setup creates the schema if it does not exist.
func (s *PostgresStore) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSnapshot unconditionally upserts the snapshot.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_snapshots (execution_id, workflow_name, status, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (execution_id) DO UPDATE
		SET workflow_name = EXCLUDED.workflow_name,
		    status = EXCLUDED.status,
		    data = EXCLUDED.data,
		    updated_at = now()`,
		snapshot.ExecutionID, snapshot.WorkflowName, string(snapshot.Status), data)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// CompareAndSaveSnapshot writes the snapshot only if no row exists yet or
// the stored row carries the expected status. The status check rides on the
// conflict clause, so the compare and the write are one atomic statement.
func (s *PostgresStore) CompareAndSaveSnapshot(ctx context.Context, snapshot *Snapshot, expected ExecutionStatus) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_snapshots (execution_id, workflow_name, status, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (execution_id) DO UPDATE
		SET workflow_name = EXCLUDED.workflow_name,
		    status = EXCLUDED.status,
		    data = EXCLUDED.data,
		    updated_at = now()
		WHERE workflow_snapshots.status = $5`,
		snapshot.ExecutionID, snapshot.WorkflowName, string(snapshot.Status), data, string(expected))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check snapshot write: %w", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or nil if none exists.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_snapshots WHERE execution_id = $1`,
		executionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot row for an execution.
func (s *PostgresStore) DeleteSnapshot(ctx context.Context, executionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_snapshots WHERE execution_id = $1`, executionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// LogStep appends one entry to the step log.
func (s *PostgresStore) LogStep(ctx context.Context, entry *StepLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal step entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_steps (execution_id, node_id, status, data)
		VALUES ($1, $2, $3, $4)`,
		entry.ExecutionID, entry.NodeID, string(entry.Status), data)
	if err != nil {
		return fmt.Errorf("failed to append step entry: %w", err)
	}
	return nil
}

// StepHistory returns an execution's step log in append order.
func (s *PostgresStore) StepHistory(ctx context.Context, executionID string) ([]*StepLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM workflow_steps
		WHERE execution_id = $1 ORDER BY id`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read step history: %w", err)
	}
	defer rows.Close()

	var entries []*StepLogEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan step entry: %w", err)
		}
		var entry StepLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CreateTask registers a new pending task.
func (s *PostgresStore) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id required")
	}
	task.Status = TaskStatusPending
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_tasks (id, execution_id, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		task.ID, task.ExecutionID, string(task.Status), data, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// CompleteTask records the reviewer's decision. Only a pending task can be
// completed; the conditional update makes double completion impossible.
func (s *PostgresStore) CompleteTask(ctx context.Context, taskID string, decision *Decision) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusPending {
		return fmt.Errorf("task %q already %s", taskID, task.Status)
	}
	task.Status = TaskStatusCompleted
	if decision.ActionID == "reject" {
		task.Status = TaskStatusRejected
	}
	task.Result = decision
	task.CompletedAt = time.Now()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_tasks SET status = $2, data = $3
		WHERE id = $1 AND status = $4`,
		taskID, string(task.Status), data, string(TaskStatusPending))
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %q already completed", taskID)
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_tasks WHERE id = $1`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q not found", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// ListTasks returns the tasks for an execution, oldest first.
func (s *PostgresStore) ListTasks(ctx context.Context, executionID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM workflow_tasks
		WHERE execution_id = $1 ORDER BY created_at, id`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// Enqueue adds a resume job to the durable queue.
func (s *PostgresStore) Enqueue(ctx context.Context, job *ResumeJob) error {
	decision, err := json.Marshal(job.Decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_resume_jobs (execution_id, decision, attempts)
		VALUES ($1, $2, $3)`,
		job.ExecutionID, decision, job.Attempts)
	if err != nil {
		return fmt.Errorf("failed to enqueue resume job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or the context is canceled. The
// claim uses FOR UPDATE SKIP LOCKED so concurrent workers never receive the
// same delivery.
func (s *PostgresStore) Dequeue(ctx context.Context) (*ResumeJob, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		job, err := s.claimJob(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *PostgresStore) claimJob(ctx context.Context) (*ResumeJob, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE workflow_resume_jobs
		SET locked = TRUE, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM workflow_resume_jobs
			WHERE NOT locked AND available_at <= now()
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, execution_id, decision, attempts`)

	var (
		id          int64
		executionID string
		decision    []byte
		attempts    int
	)
	err := row.Scan(&id, &executionID, &decision, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim resume job: %w", err)
	}
	job := &ResumeJob{ExecutionID: executionID, Attempts: attempts, receipt: id}
	if err := json.Unmarshal(decision, &job.Decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return job, nil
}

// Ack deletes a delivered job.
func (s *PostgresStore) Ack(ctx context.Context, job *ResumeJob) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_resume_jobs WHERE id = $1`, job.receipt); err != nil {
		return fmt.Errorf("failed to ack resume job: %w", err)
	}
	return nil
}

// Nack releases a delivered job for redelivery after the retry delay.
func (s *PostgresStore) Nack(ctx context.Context, job *ResumeJob) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE workflow_resume_jobs
		SET locked = FALSE, available_at = now() + $2 * interval '1 second'
		WHERE id = $1`,
		job.receipt, s.retryDelay.Seconds()); err != nil {
		return fmt.Errorf("failed to nack resume job: %w", err)
	}
	return nil
}
