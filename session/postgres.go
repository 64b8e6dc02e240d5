package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists sessions in a PostgreSQL table. Suitable when the
// app runs as more than one instance behind a load balancer.
type PostgresStore struct {
	db *sql.DB

	saveStmt    *sql.Stmt
	getStmt     *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	data BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`

// NewPostgresStore connects with the given DSN and ensures the sessions
// table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres session store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres session store: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions schema: %w", err)
	}

	st := &PostgresStore{db: db}
	if err := st.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (st *PostgresStore) prepare() error {
	var err error

	st.saveStmt, err = st.db.Prepare(`
		INSERT INTO sessions (id, data, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = $2, expires_at = $4`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}

	st.getStmt, err = st.db.Prepare(
		`SELECT data, created_at, expires_at FROM sessions WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	st.deleteStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	st.cleanupStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE expires_at < $1`)
	if err != nil {
		return fmt.Errorf("prepare cleanup: %w", err)
	}

	return nil
}

// Get retrieves a session by ID.
func (st *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		data      []byte
		createdAt time.Time
		expiresAt time.Time
	)
	err := st.getStmt.QueryRowContext(ctx, id).Scan(&data, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s := &Session{
		ID:        id,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if err := decodeData(data, &s.Data); err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts or replaces a session.
func (st *PostgresStore) Save(ctx context.Context, s *Session) error {
	data, err := encodeData(s.Data)
	if err != nil {
		return err
	}
	if _, err := st.saveStmt.ExecContext(ctx, s.ID, data, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes a session. Unknown IDs are ignored.
func (st *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := st.deleteStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup removes sessions that expired before the given time.
func (st *PostgresStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := st.cleanupStmt.ExecContext(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Close closes prepared statements and the database.
func (st *PostgresStore) Close() error {
	for _, stmt := range []*sql.Stmt{st.saveStmt, st.getStmt, st.deleteStmt, st.cleanupStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return st.db.Close()
}

var _ Store = (*PostgresStore)(nil)
