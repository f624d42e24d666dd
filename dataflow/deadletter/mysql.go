package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coriolis-labs/dataflow"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLSink persists dead letters to a MySQL/MariaDB table. Intended for
// production deployments where dead letters must survive process restarts
// and be queryable by operators.
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
// Never hardcode credentials; read the DSN from the environment.
type MySQLSink struct {
	db *sql.DB
}

// NewMySQLSink opens a connection pool against dsn and ensures the
// dead_letters table exists.
func NewMySQLSink(dsn string) (*MySQLSink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deadletter: ping mysql: %w", err)
	}

	s := &MySQLSink{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLSink) createTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			node_id VARCHAR(255) NOT NULL,
			item_json LONGTEXT NOT NULL,
			exception_type VARCHAR(255) NOT NULL,
			exception_message TEXT NOT NULL,
			stack_trace TEXT,
			correlation_id VARCHAR(255),
			source_meta_json TEXT,
			timestamp VARCHAR(64) NOT NULL,
			INDEX idx_dead_letters_node_id (node_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("deadletter: create table: %w", err)
	}
	return nil
}

func (s *MySQLSink) Persist(ctx context.Context, envelope dataflow.DeadLetterEnvelope) error {
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

func (s *MySQLSink) List(ctx context.Context, nodeID string, limit int) ([]Record, error) {
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

// Close releases the underlying connection pool.
func (s *MySQLSink) Close() error {
	return s.db.Close()
}
