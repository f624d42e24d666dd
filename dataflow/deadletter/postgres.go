package deadletter

import (
	"context"
	"fmt"

	"github.com/coriolis-labs/dataflow"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists dead letters to a PostgreSQL table via pgx's
// connection pool. Preferred over MySQLSink when the rest of the
// deployment is already on Postgres.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to connString (a libpq-style or URL DSN) and
// ensures the dead_letters table exists.
func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("deadletter: ping postgres: %w", err)
	}

	s := &PostgresSink{pool: pool}
	if err := s.createTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) createTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id BIGSERIAL PRIMARY KEY,
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
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("deadletter: create table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_dead_letters_node_id ON dead_letters(node_id)"); err != nil {
		return fmt.Errorf("deadletter: create index: %w", err)
	}
	return nil
}

func (s *PostgresSink) Persist(ctx context.Context, envelope dataflow.DeadLetterEnvelope) error {
	rec, err := toRecord(envelope)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO dead_letters
			(node_id, item_json, exception_type, exception_message, stack_trace, correlation_id, source_meta_json, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.NodeID, rec.ItemJSON, rec.ExceptionType, rec.ExceptionMessage, rec.StackTrace, rec.CorrelationID, rec.SourceMetaJSON, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("deadletter: insert: %w", err)
	}
	return nil
}

func (s *PostgresSink) List(ctx context.Context, nodeID string, limit int) ([]Record, error) {
	query := `SELECT id, node_id, item_json, exception_type, exception_message,
		COALESCE(stack_trace, ''), COALESCE(correlation_id, ''), COALESCE(source_meta_json, ''), timestamp
		FROM dead_letters`
	args := []any{}
	argN := 0
	if nodeID != "" {
		argN++
		query += fmt.Sprintf(" WHERE node_id = $%d", argN)
		args = append(args, nodeID)
	}
	query += " ORDER BY id ASC"
	if limit > 0 {
		argN++
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
