package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frogedu/backend/core/subscription"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

type planRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	PriceAmount   int64  `db:"price_amount"`
	PriceCurrency string `db:"price_currency"`
	MaxClassRooms int    `db:"max_classrooms"`
	IsActive      bool   `db:"is_active"`
}

func (row planRow) plan() subscription.Plan {
	return subscription.Plan{
		ID:            row.ID,
		Name:          row.Name,
		Price:         subscription.Money{Amount: row.PriceAmount, Currency: row.PriceCurrency},
		MaxClassRooms: row.MaxClassRooms,
		IsActive:      row.IsActive,
	}
}

type subscriptionRow struct {
	ID        string    `db:"id"`
	TeacherID string    `db:"teacher_id"`
	PlanID    string    `db:"plan_id"`
	StartsAt  time.Time `db:"starts_at"`
	ExpiresAt time.Time `db:"expires_at"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row subscriptionRow) subscription() subscription.Subscription {
	return subscription.Subscription{
		ID:        row.ID,
		TeacherID: row.TeacherID,
		PlanID:    row.PlanID,
		StartsAt:  row.StartsAt,
		ExpiresAt: row.ExpiresAt,
		Status:    subscription.SubscriptionStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

const (
	selectPlan         = `SELECT id, name, price_amount, price_currency, max_classrooms, is_active FROM plan`
	selectSubscription = `SELECT id, teacher_id, plan_id, starts_at, expires_at, status, created_at, updated_at FROM subscription`
)

func (repo *subscriptionRepository) QueryPlans(ctx context.Context) ([]subscription.Plan, error) {
	var rows []planRow
	if err := repo.db.SelectContext(ctx, &rows, selectPlan+` ORDER BY price_amount`); err != nil {
		return nil, err
	}
	plans := make([]subscription.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, row.plan())
	}
	return plans, nil
}

func (repo *subscriptionRepository) GetPlanByID(ctx context.Context, id string) (subscription.Plan, error) {
	var row planRow
	if err := repo.db.GetContext(ctx, &row, selectPlan+` WHERE id = $1`, id); err != nil {
		return subscription.Plan{}, trapNoRowsErr(err, subscription.ErrPlanNotFound)
	}
	return row.plan(), nil
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	q := `
	INSERT INTO subscription (id, teacher_id, plan_id, starts_at, expires_at, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.db.ExecContext(ctx, q,
		sub.ID, sub.TeacherID, sub.PlanID, sub.StartsAt, sub.ExpiresAt, string(sub.Status), sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (repo *subscriptionRepository) GetActiveSubscription(ctx context.Context, teacherID string) (subscription.Subscription, error) {
	var row subscriptionRow
	q := selectSubscription + ` WHERE teacher_id = $1 AND status = 'active'`
	if err := repo.db.GetContext(ctx, &row, q, teacherID); err != nil {
		return subscription.Subscription{}, trapNoRowsErr(err, subscription.ErrNoActiveSubscription)
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	q := `UPDATE subscription SET status = $1, expires_at = $2, updated_at = $3 WHERE id = $4`
	res, err := repo.db.ExecContext(ctx, q, string(sub.Status), sub.ExpiresAt, sub.UpdatedAt, sub.ID)
	if err != nil {
		return subscription.Subscription{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subscription.Subscription{}, subscription.ErrNoActiveSubscription
	}
	return sub, nil
}

func (repo *subscriptionRepository) FilterDueSubscriptions(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	var rows []subscriptionRow
	q := selectSubscription + ` WHERE status = 'active' AND expires_at <= $1 ORDER BY expires_at`
	if err := repo.db.SelectContext(ctx, &rows, q, now); err != nil {
		return nil, err
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.subscription())
	}
	return subs, nil
}
