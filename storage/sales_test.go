package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSaleStorage(t *testing.T) (*SQLiteSaleStorage, *SQLiteUserStorage) {
	t.Helper()
	db := testDB(t)
	return NewSQLiteSaleStorage(db, zap.NewNop().Sugar()),
		NewSQLiteUserStorage(db, zap.NewNop().Sugar())
}

func TestSeededPlans(t *testing.T) {
	ss, _ := testSaleStorage(t)

	plans, err := ss.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 3)
	// Ordered by price.
	assert.Equal(t, "SUB001", plans[0].Code)
	assert.Equal(t, "SUB002", plans[1].Code)
	assert.Equal(t, "SUB003", plans[2].Code)
}

func TestGetPlanNotFound(t *testing.T) {
	ss, _ := testSaleStorage(t)
	_, err := ss.GetPlan(context.Background(), "SUB999")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCreateSubscription(t *testing.T) {
	ss, us := testSaleStorage(t)
	ctx := context.Background()
	user := createTestUser(t, us, "ana@example.com", "Str0ng!Passw0rd", RoleClient)

	sub, err := ss.CreateSubscription(ctx, user.UserID, "SUB002")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, user.UserID, sub.UserID)
	assert.Equal(t, SubscriptionActive, sub.Status)
	assert.Equal(t, int64(79900), sub.PriceCents, "price comes from the plan at purchase time")
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), sub.RenewsAt, time.Minute)
}

func TestCreateSubscriptionUnknownPlan(t *testing.T) {
	ss, us := testSaleStorage(t)
	user := createTestUser(t, us, "ana@example.com", "Str0ng!Passw0rd", RoleClient)

	_, err := ss.CreateSubscription(context.Background(), user.UserID, "SUB999")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListSubscriptionsByUser(t *testing.T) {
	ss, us := testSaleStorage(t)
	ctx := context.Background()
	ana := createTestUser(t, us, "ana@example.com", "Str0ng!Passw0rd", RoleClient)
	luis := createTestUser(t, us, "luis@example.com", "Str0ng!Passw0rd", RoleClient)

	_, err := ss.CreateSubscription(ctx, ana.UserID, "SUB001")
	require.NoError(t, err)
	_, err = ss.CreateSubscription(ctx, ana.UserID, "SUB003")
	require.NoError(t, err)
	_, err = ss.CreateSubscription(ctx, luis.UserID, "SUB002")
	require.NoError(t, err)

	subs, err := ss.ListSubscriptionsByUser(ctx, ana.UserID)
	require.NoError(t, err)
	require.Len(t, subs, 2, "must only return the owner's subscriptions")
	for _, sub := range subs {
		assert.Equal(t, ana.UserID, sub.UserID)
		assert.NotEmpty(t, sub.PlanName)
	}

	empty, err := ss.ListSubscriptionsByUser(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
