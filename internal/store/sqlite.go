package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seantiz/arbiter/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    run_type             TEXT NOT NULL,
    session_name         TEXT,
    inputs               TEXT,
    outputs              TEXT,
    error                TEXT,
    tags                 TEXT,
    reference_example_id TEXT,
    started_at           DATETIME,
    ended_at             DATETIME,
    created_at           DATETIME NOT NULL
)`

const createFeedbackTable = `
CREATE TABLE IF NOT EXISTS feedback (
    id         TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    key        TEXT NOT NULL,
    score      REAL,
    value      TEXT,
    comment    TEXT,
    project    TEXT,
    tags       TEXT,
    created_at DATETIME NOT NULL
)`

const createFeedbackRunIndex = `
CREATE INDEX IF NOT EXISTS idx_feedback_run_id ON feedback (run_id)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createRunsTable, createFeedbackTable, createFeedbackRunIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	inputs, err := marshalJSON(r.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	outputs, err := marshalJSON(r.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	tags, err := marshalJSON(r.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, name, run_type, session_name, inputs, outputs,
			error, tags, reference_example_id, started_at, ended_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.RunType, r.SessionName, inputs, outputs,
		r.Error, tags, r.ReferenceExampleID, r.StartedAt, r.EndedAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, run_type, session_name, inputs, outputs,
			error, tags, reference_example_id, started_at, ended_at, created_at
		FROM runs WHERE id = ?`, id,
	)

	r, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, run_type, session_name, inputs, outputs,
			error, tags, reference_example_id, started_at, ended_at, created_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// InsertFeedback inserts a feedback record.
func (s *SQLiteStore) InsertFeedback(ctx context.Context, f *model.Feedback) error {
	tags, err := marshalJSON(f.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (
			id, run_id, key, score, value, comment, project, tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RunID, f.Key, f.Score, f.Value, f.Comment, f.Project, tags, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ListFeedbackByRun returns all feedback recorded for a run, oldest first.
func (s *SQLiteStore) ListFeedbackByRun(ctx context.Context, runID string) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, key, score, value, comment, project, tags, created_at
		FROM feedback WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var feedback []model.Feedback
	for rows.Next() {
		var f model.Feedback
		var tagsJSON sql.NullString
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.Key, &f.Score, &f.Value,
			&f.Comment, &f.Project, &tagsJSON, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if err := unmarshalJSON(tagsJSON, &f.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		feedback = append(feedback, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}

	return feedback, nil
}

// GetFeedbackStats returns aggregate feedback statistics.
func (s *SQLiteStore) GetFeedbackStats(ctx context.Context) (*FeedbackStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &FeedbackStats{
		CountByKey:    make(map[string]int),
		AvgScoreByKey: make(map[string]float64),
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT run_id) FROM feedback",
	).Scan(&stats.Total, &stats.RunsEvaluated)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT key, COUNT(*), AVG(score) FROM feedback GROUP BY key",
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		var avg sql.NullFloat64
		if err := rows.Scan(&key, &count, &avg); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		stats.CountByKey[key] = count
		if avg.Valid {
			stats.AvgScoreByKey[key] = avg.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	return stats, nil
}

// marshalJSON encodes v for storage in a TEXT column. Nil maps and slices
// are stored as NULL.
func marshalJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if val == nil {
			return sql.NullString{}, nil
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// unmarshalJSON decodes a TEXT column into dst, leaving dst untouched for NULL.
func unmarshalJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

// scanRun scans one run row using the given scan function. All nullable TEXT
// columns go through NullString so rows written without them still read back.
func scanRun(scan func(...any) error) (*model.Run, error) {
	r := &model.Run{}
	var sessionName, runError, refExampleID sql.NullString
	var inputs, outputs, tags sql.NullString

	err := scan(
		&r.ID, &r.Name, &r.RunType, &sessionName, &inputs, &outputs,
		&runError, &tags, &refExampleID, &r.StartedAt, &r.EndedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.SessionName = sessionName.String
	r.Error = runError.String
	r.ReferenceExampleID = refExampleID.String

	if err := unmarshalJSON(inputs, &r.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}
	if err := unmarshalJSON(outputs, &r.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	if err := unmarshalJSON(tags, &r.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	return r, nil
}
