// Package history keeps a local journal of classified inputs so demo runs
// can be reviewed after the fact.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one recorded prediction.
type Entry struct {
	ID         int64
	CreatedAt  time.Time
	Text       string
	TokenIDs   []int64
	Logits     []float32
	ClassIndex int
	Label      string
	Elapsed    time.Duration
}

// Journal wraps the SQLite database connection
type Journal struct {
	conn *sql.DB
	path string
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	// SQLite works best with a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate history: %w", err)
	}

	return &Journal{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Record appends e. ID and CreatedAt are filled in when zero.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	ids, err := json.Marshal(e.TokenIDs)
	if err != nil {
		return fmt.Errorf("failed to encode token ids: %w", err)
	}
	logits, err := json.Marshal(e.Logits)
	if err != nil {
		return fmt.Errorf("failed to encode logits: %w", err)
	}

	res, err := j.conn.ExecContext(ctx,
		`INSERT INTO predictions (created_at, text, token_ids, logits, class_index, label, elapsed_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.UnixMicro(), e.Text, string(ids), string(logits), e.ClassIndex, e.Label, e.Elapsed.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, created_at, text, token_ids, logits, class_index, label, elapsed_us
		 FROM predictions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			created, micros int64
			ids, logits     string
		)
		if err := rows.Scan(&e.ID, &created, &e.Text, &ids, &logits, &e.ClassIndex, &e.Label, &micros); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &e.TokenIDs); err != nil {
			return nil, fmt.Errorf("history row %d: bad token ids: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(logits), &e.Logits); err != nil {
			return nil, fmt.Errorf("history row %d: bad logits: %w", e.ID, err)
		}
		e.CreatedAt = time.UnixMicro(created)
		e.Elapsed = time.Duration(micros) * time.Microsecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByLabel returns how many predictions were recorded per label.
func (j *Journal) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := j.conn.QueryContext(ctx, `SELECT label, COUNT(*) FROM predictions GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}
