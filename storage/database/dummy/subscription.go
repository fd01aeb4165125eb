package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/frogedu/backend/core/subscription"
)

type subscriptionRepository struct {
	plans *planTable
	subs  *subscriptionTable
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{plans: db.plan, subs: db.subscription}
}

func (repo *subscriptionRepository) QueryPlans(_ context.Context) ([]subscription.Plan, error) {
	repo.plans.RLock()
	defer repo.plans.RUnlock()

	plans := make([]subscription.Plan, 0, len(repo.plans.table))
	for _, p := range repo.plans.table {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price.Amount < plans[j].Price.Amount })
	return plans, nil
}

func (repo *subscriptionRepository) GetPlanByID(_ context.Context, id string) (subscription.Plan, error) {
	repo.plans.RLock()
	defer repo.plans.RUnlock()

	if p, ok := repo.plans.table[id]; ok {
		return *p, nil
	}
	return subscription.Plan{}, subscription.ErrPlanNotFound
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	sub.ID = newID(sub.ID)
	repo.subs.table[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) GetActiveSubscription(_ context.Context, teacherID string) (subscription.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	for _, sub := range repo.subs.table {
		if sub.TeacherID == teacherID && sub.Status == subscription.StatusActive {
			return *sub, nil
		}
	}
	return subscription.Subscription{}, subscription.ErrNoActiveSubscription
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.subs.Lock()
	defer repo.subs.Unlock()

	if _, ok := repo.subs.table[sub.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNoActiveSubscription
	}
	repo.subs.table[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) FilterDueSubscriptions(_ context.Context, now time.Time) ([]subscription.Subscription, error) {
	repo.subs.RLock()
	defer repo.subs.RUnlock()

	var due []subscription.Subscription
	for _, sub := range repo.subs.table {
		if sub.Status == subscription.StatusActive && !now.Before(sub.ExpiresAt) {
			due = append(due, *sub)
		}
	}
	return due, nil
}
