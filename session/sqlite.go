package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in a SQLite database. WAL mode and a busy
// timeout are injected into the DSN so concurrent readers do not block the
// single writer.
type SQLiteStore struct {
	db *sql.DB

	saveStmt    *sql.Stmt
	getStmt     *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`

// NewSQLiteStore opens (or creates) the sessions table at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite session store: %w", err)
	}

	// One writer at a time keeps WAL mode happy.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions schema: %w", err)
	}

	st := &SQLiteStore{db: db}
	if err := st.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// sqliteDSN appends the pragmas the store depends on without clobbering any
// the caller already set.
func sqliteDSN(path string) string {
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}

func (st *SQLiteStore) prepare() error {
	var err error

	st.saveStmt, err = st.db.Prepare(
		`INSERT OR REPLACE INTO sessions (id, data, created_at, expires_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}

	st.getStmt, err = st.db.Prepare(
		`SELECT data, created_at, expires_at FROM sessions WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	st.deleteStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	st.cleanupStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE expires_at < ?`)
	if err != nil {
		return fmt.Errorf("prepare cleanup: %w", err)
	}

	return nil
}

// Get retrieves a session by ID.
func (st *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		data      []byte
		createdAt int64
		expiresAt int64
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
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}
	if err := decodeData(data, &s.Data); err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts or replaces a session.
func (st *SQLiteStore) Save(ctx context.Context, s *Session) error {
	data, err := encodeData(s.Data)
	if err != nil {
		return err
	}
	if _, err := st.saveStmt.ExecContext(ctx, s.ID, data, s.CreatedAt.Unix(), s.ExpiresAt.Unix()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes a session. Unknown IDs are ignored.
func (st *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := st.deleteStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup removes sessions that expired before the given time.
func (st *SQLiteStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := st.cleanupStmt.ExecContext(ctx, before.Unix())
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
func (st *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{st.saveStmt, st.getStmt, st.deleteStmt, st.cleanupStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return st.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
