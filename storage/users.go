package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Role names stored in the users.role column.
const (
	RoleClient = "Cliente"
	RoleAdmin  = "Admin"
)

// Lockout policy applied by RecordFailedLogin.
const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

// User represents an account. Password carries the plaintext only on the way
// into CreateUser; everywhere else it holds the bcrypt hash and is never
// serialized to JSON.
type User struct {
	UserID              int64      `json:"user_id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Password            string     `json:"-"`
	Role                string     `json:"role"`
	Active              bool       `json:"active"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserStorage is the persistence contract for accounts.
type UserStorage interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// ValidateCredentials verifies email+password and returns the account.
	// It fails with ErrInvalidCredentials for unknown users and wrong
	// passwords alike, ErrAccountLocked while a lockout is in force, and
	// ErrAccountInactive for deactivated accounts.
	ValidateCredentials(ctx context.Context, email, password string) (*User, error)

	// RecordFailedLogin increments the account's failure counter and
	// applies a lockout once the threshold is crossed.
	RecordFailedLogin(ctx context.Context, email string) error

	// RecordSuccessfulLogin resets the failure counter and stamps last_login.
	RecordSuccessfulLogin(ctx context.Context, id int64, when time.Time) error
}

// SQLiteUserStorage implements UserStorage using SQLite
type SQLiteUserStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteUserStorage creates a new SQLite-based user storage
func NewSQLiteUserStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteUserStorage {
	return &SQLiteUserStorage{
		sqlite: sqlite,
		logger: logger,
	}
}

// dummyHash is compared against when the account does not exist, so the
// login path costs one bcrypt verification either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("modofit-timing-pad"), bcrypt.DefaultCost)

// CreateUser hashes the password and inserts the account.
func (sus *SQLiteUserStorage) CreateUser(ctx context.Context, user *User) error {
	existing, err := sus.GetUserByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Active = true
	if user.Role == "" {
		user.Role = RoleClient
	}

	res, err := sus.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, role, active, failed_login_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?)`,
		user.Email,
		user.Name,
		string(hashedPassword),
		user.Role,
		user.CreatedAt.Format(time.RFC3339),
		user.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	user.UserID = id
	user.Password = string(hashedPassword)

	sus.logger.Infow("Created user", "user_id", user.UserID, "role", user.Role)
	return nil
}

// SeedAdmin inserts an admin account with an already-hashed password. It is
// idempotent: if the email exists the account is left untouched and created
// is false.
func (sus *SQLiteUserStorage) SeedAdmin(ctx context.Context, email, name, passwordHash string) (bool, error) {
	existing, err := sus.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("failed to check existing admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	now := time.Now().Format(time.RFC3339)
	_, err = sus.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, role, active, failed_login_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?)`,
		email, name, passwordHash, RoleAdmin, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed admin: %w", err)
	}
	return true, nil
}

const userColumns = `user_id, email, name, password_hash, role, active,
	failed_login_attempts, locked_until, last_login, created_at, updated_at`

func (sus *SQLiteUserStorage) scanUser(row *sql.Row) (*User, error) {
	var (
		user                    User
		active                  int
		lockedUntil, lastLogin  sql.NullString
		createdAt, updatedAt    string
	)

	err := row.Scan(
		&user.UserID,
		&user.Email,
		&user.Name,
		&user.Password,
		&user.Role,
		&active,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&lastLogin,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Active = active == 1
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	user.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lockedUntil.Valid {
		if t, err := time.Parse(time.RFC3339, lockedUntil.String); err == nil {
			user.LockedUntil = &t
		}
	}
	if lastLogin.Valid {
		if t, err := time.Parse(time.RFC3339, lastLogin.String); err == nil {
			user.LastLogin = &t
		}
	}

	return &user, nil
}

// GetUserByID retrieves a user by primary key.
func (sus *SQLiteUserStorage) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := sus.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
	return sus.scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (sus *SQLiteUserStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := sus.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return sus.scanUser(row)
}

// ListUsers returns all accounts ordered by creation.
func (sus *SQLiteUserStorage) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := sus.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var (
			user                   User
			active                 int
			lockedUntil, lastLogin sql.NullString
			createdAt, updatedAt   string
		)
		err := rows.Scan(
			&user.UserID,
			&user.Email,
			&user.Name,
			&user.Password,
			&user.Role,
			&active,
			&user.FailedLoginAttempts,
			&lockedUntil,
			&lastLogin,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Active = active == 1
		user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		user.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if lockedUntil.Valid {
			if t, err := time.Parse(time.RFC3339, lockedUntil.String); err == nil {
				user.LockedUntil = &t
			}
		}
		if lastLogin.Valid {
			if t, err := time.Parse(time.RFC3339, lastLogin.String); err == nil {
				user.LastLogin = &t
			}
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// ValidateCredentials verifies an email+password pair.
func (sus *SQLiteUserStorage) ValidateCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := sus.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		// Burn a bcrypt comparison so absent accounts are not
		// distinguishable by response time.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// RecordFailedLogin increments the failure counter and locks the account
// once maxFailedLogins is reached.
func (sus *SQLiteUserStorage) RecordFailedLogin(ctx context.Context, email string) error {
	user, err := sus.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	attempts := user.FailedLoginAttempts + 1
	var lockedUntil interface{}
	if attempts >= maxFailedLogins {
		until := time.Now().Add(lockoutDuration)
		lockedUntil = until.Format(time.RFC3339)
		sus.logger.Warnw("Account locked after repeated failures",
			"user_id", user.UserID,
			"attempts", attempts,
			"locked_until", until.Format(time.RFC3339))
	}

	_, err = sus.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = ?, locked_until = ?, updated_at = ?
		WHERE user_id = ?`,
		attempts,
		lockedUntil,
		time.Now().Format(time.RFC3339),
		user.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}
	return nil
}

// RecordSuccessfulLogin clears the failure counter and lockout and stamps
// last_login.
func (sus *SQLiteUserStorage) RecordSuccessfulLogin(ctx context.Context, id int64, when time.Time) error {
	_, err := sus.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login = ?, updated_at = ?
		WHERE user_id = ?`,
		when.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to record successful login: %w", err)
	}
	return nil
}

var _ UserStorage = (*SQLiteUserStorage)(nil)
