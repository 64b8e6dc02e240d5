package storage

import (
	"fmt"
)

// schema is the full application schema. CREATE IF NOT EXISTS keeps startup
// idempotent; there is no versioned migration history yet.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'Cliente',
	active INTEGER NOT NULL DEFAULT 1,
	failed_login_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until TEXT,
	last_login TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL,
	period_months INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
	plan_code TEXT NOT NULL REFERENCES plans(code),
	status TEXT NOT NULL DEFAULT 'activa',
	price_cents INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	renews_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions (user_id);
`

// seedPlans are the membership plans shown on the checkout page. INSERT OR
// IGNORE keeps operator edits to price or description intact across restarts.
var seedPlans = []Plan{
	{Code: "SUB001", Name: "Plan Básico", Description: "Acceso a sala de pesas y cardio", PriceCents: 49900, PeriodMonths: 1},
	{Code: "SUB002", Name: "Plan Premium", Description: "Acceso total, clases grupales incluidas", PriceCents: 79900, PeriodMonths: 1},
	{Code: "SUB003", Name: "Plan Anual", Description: "Plan Premium con pago anual", PriceCents: 799000, PeriodMonths: 12},
}

func (s *SQLite) migrate() error {
	if _, err := s.WriteDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	for _, p := range seedPlans {
		_, err := s.WriteDB.Exec(
			`INSERT OR IGNORE INTO plans (code, name, description, price_cents, period_months) VALUES (?, ?, ?, ?, ?)`,
			p.Code, p.Name, p.Description, p.PriceCents, p.PeriodMonths,
		)
		if err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", p.Code, err)
		}
	}

	s.Logger.Info("Database schema ready")
	return nil
}
