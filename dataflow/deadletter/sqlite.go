package deadletter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coriolis-labs/dataflow"
	_ "modernc.org/sqlite"
)

// SQLiteSink persists dead letters to a single-file SQLite database. Good
// for development, local tooling, and single-process deployments.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if necessary) the database at path and
// ensures the dead_letters table exists. Use ":memory:" for an ephemeral
// database, handy in tests.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deadletter: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deadletter: set busy timeout: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) createTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			item_json TEXT NOT NULL,
			exception_type TEXT NOT NULL,
			exception_message TEXT NOT NULL,
			stack_trace TEXT,
			correlation_id TEXT,
			source_meta_json TEXT,
			timestamp TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("deadletter: create table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_dead_letters_node_id ON dead_letters(node_id)"); err != nil {
		return fmt.Errorf("deadletter: create index: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Persist(ctx context.Context, envelope dataflow.DeadLetterEnvelope) error {
	rec, err := toRecord(envelope)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters
			(node_id, item_json, exception_type, exception_message, stack_trace, correlation_id, source_meta_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.NodeID, rec.ItemJSON, rec.ExceptionType, rec.ExceptionMessage, rec.StackTrace, rec.CorrelationID, rec.SourceMetaJSON, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("deadletter: insert: %w", err)
	}
	return nil
}

func (s *SQLiteSink) List(ctx context.Context, nodeID string, limit int) ([]Record, error) {
	query := `SELECT id, node_id, item_json, exception_type, exception_message,
		COALESCE(stack_trace, ''), COALESCE(correlation_id, ''), COALESCE(source_meta_json, ''), timestamp
		FROM dead_letters`
	args := []any{}
	if nodeID != "" {
		query += " WHERE node_id = ?"
		args = append(args, nodeID)
	}
	query += " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deadletter: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.NodeID, &r.ItemJSON, &r.ExceptionType, &r.ExceptionMessage,
			&r.StackTrace, &r.CorrelationID, &r.SourceMetaJSON, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("deadletter: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
