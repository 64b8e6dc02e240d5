package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscription status values.
const (
	SubscriptionActive    = "activa"
	SubscriptionCancelled = "cancelada"
)

// Plan is a membership plan offered on the checkout page.
type Plan struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PriceCents   int64  `json:"price_cents"`
	PeriodMonths int    `json:"period_months"`
}

// Subscription is a purchased plan tied to a user.
type Subscription struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	PlanCode   string    `json:"plan_code"`
	PlanName   string    `json:"plan_name"`
	Status     string    `json:"status"`
	PriceCents int64     `json:"price_cents"`
	StartedAt  time.Time `json:"started_at"`
	RenewsAt   time.Time `json:"renews_at"`
}

// SaleStorage is the persistence contract for plans and subscriptions.
type SaleStorage interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, code string) (*Plan, error)

	// CreateSubscription purchases a plan for a user, pricing it from the
	// plan record at purchase time.
	CreateSubscription(ctx context.Context, userID int64, planCode string) (*Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID int64) ([]Subscription, error)
}

// SQLiteSaleStorage implements SaleStorage using SQLite
type SQLiteSaleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteSaleStorage creates a new SQLite-based sale storage
func NewSQLiteSaleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteSaleStorage {
	return &SQLiteSaleStorage{
		sqlite: sqlite,
		logger: logger,
	}
}

// ListPlans returns all plans ordered by price.
func (sss *SQLiteSaleStorage) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := sss.sqlite.ReadDB.QueryContext(ctx,
		`SELECT code, name, description, price_cents, period_months FROM plans ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.Code, &p.Name, &p.Description, &p.PriceCents, &p.PeriodMonths); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// GetPlan retrieves a plan by code.
func (sss *SQLiteSaleStorage) GetPlan(ctx context.Context, code string) (*Plan, error) {
	var p Plan
	err := sss.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT code, name, description, price_cents, period_months FROM plans WHERE code = ?`,
		code).Scan(&p.Code, &p.Name, &p.Description, &p.PriceCents, &p.PeriodMonths)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

// CreateSubscription purchases a plan for a user.
func (sss *SQLiteSaleStorage) CreateSubscription(ctx context.Context, userID int64, planCode string) (*Subscription, error) {
	plan, err := sss.GetPlan(ctx, planCode)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &Subscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		PlanCode:   plan.Code,
		PlanName:   plan.Name,
		Status:     SubscriptionActive,
		PriceCents: plan.PriceCents,
		StartedAt:  now,
		RenewsAt:   now.AddDate(0, plan.PeriodMonths, 0),
	}

	_, err = sss.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_code, status, price_cents, started_at, renews_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.PlanCode,
		sub.Status,
		sub.PriceCents,
		sub.StartedAt.Format(time.RFC3339),
		sub.RenewsAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	sss.logger.Infow("Subscription created",
		"subscription_id", sub.ID,
		"user_id", userID,
		"plan", plan.Code)
	return sub, nil
}

// ListSubscriptionsByUser returns a user's subscriptions, newest first.
func (sss *SQLiteSaleStorage) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]Subscription, error) {
	rows, err := sss.sqlite.ReadDB.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.plan_code, p.name, s.status, s.price_cents, s.started_at, s.renews_at
		FROM subscriptions s
		JOIN plans p ON p.code = s.plan_code
		WHERE s.user_id = ?
		ORDER BY s.started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var (
			sub                  Subscription
			startedAt, renewsAt  string
		)
		err := rows.Scan(&sub.ID, &sub.UserID, &sub.PlanCode, &sub.PlanName, &sub.Status,
			&sub.PriceCents, &startedAt, &renewsAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		sub.RenewsAt, _ = time.Parse(time.RFC3339, renewsAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

var _ SaleStorage = (*SQLiteSaleStorage)(nil)
