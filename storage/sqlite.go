package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quizscout/models"
)

// SQLiteStore holds operational state: the job queue and operator commands.
// Domain data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		queue TEXT NOT NULL,
		type TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		unique_key TEXT NOT NULL DEFAULT '',
		scheduled_at TIMESTAMP NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, status, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_unique ON jobs(unique_key, created_at);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		command TEXT NOT NULL,
		params TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);`

	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func (s *SQLiteStore) InsertJob(job *models.Job) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO jobs (queue, type, args, status, attempts, max_attempts, unique_key, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Queue, job.Type, string(job.Args), job.Status, job.Attempts,
		job.MaxAttempts, job.UniqueKey, job.ScheduledAt, job.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasJobWithin reports whether a job with this unique key was created at or
// after the cutoff, in any status. Used for unique-window dedup.
func (s *SQLiteStore) HasJobWithin(uniqueKey string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE unique_key = ? AND created_at >= ?`,
		uniqueKey, since,
	).Scan(&n)
	return n > 0, err
}

// ClaimNextJob atomically claims the oldest due pending job on a queue.
// Returns nil when nothing is due.
func (s *SQLiteStore) ClaimNextJob(queue string, now time.Time) (*models.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		job         models.Job
		args        string
		completedAt sql.NullTime
	)
	err = tx.QueryRow(`
		SELECT id, queue, type, args, status, attempts, max_attempts, unique_key, scheduled_at, last_error, created_at, completed_at
		FROM jobs
		WHERE queue = ? AND status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at, id
		LIMIT 1`, queue, now,
	).Scan(&job.ID, &job.Queue, &job.Type, &args, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.UniqueKey, &job.ScheduledAt, &job.LastError,
		&job.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Args = json.RawMessage(args)
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	if _, err := tx.Exec(
		`UPDATE jobs SET status = 'running', attempts = attempts + 1 WHERE id = ?`,
		job.ID,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = models.JobStatusRunning
	job.Attempts++
	return &job, nil
}

func (s *SQLiteStore) MarkJobCompleted(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = 'completed', completed_at = ? WHERE id = ?`,
		at, id,
	)
	return err
}

// RescheduleJob puts a failed job back on the queue for a later attempt.
func (s *SQLiteStore) RescheduleJob(id int64, at time.Time, lastErr string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = 'pending', scheduled_at = ?, last_error = ? WHERE id = ?`,
		at, lastErr, id,
	)
	return err
}

func (s *SQLiteStore) DiscardJob(id int64, lastErr string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = 'discarded', completed_at = ?, last_error = ? WHERE id = ?`,
		time.Now(), lastErr, id,
	)
	return err
}

func (s *SQLiteStore) CountJobs(queue string, status models.JobStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE queue = ? AND status = ?`,
		queue, status,
	).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (s *SQLiteStore) InsertCommand(cmd models.CommandType, params *models.CommandParams) error {
	data := []byte(`{}`)
	if params != nil {
		var err error
		data, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, string(data), time.Now(),
	)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at
		FROM commands
		WHERE processed_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var (
			cmd    models.Command
			params string
		)
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmd.Params = json.RawMessage(params)
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(
		`UPDATE commands SET processed_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, fmt.Errorf("parse command params: %w", err)
	}
	return params, nil
}
