package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/frogedu/backend/core"
)

var (
	// errors
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanInactive         = errors.New("this plan is not available")
	ErrAlreadySubscribed    = errors.New("an active subscription already exists")
	ErrNoActiveSubscription = errors.New("no active subscription")
)

type (
	Repository interface {
		QueryPlans(ctx context.Context) ([]Plan, error)
		GetPlanByID(ctx context.Context, id string) (Plan, error)
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// GetActiveSubscription returns ErrNoActiveSubscription when the teacher has none.
		GetActiveSubscription(ctx context.Context, teacherID string) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// FilterDueSubscriptions lists active subscriptions whose expiry has passed.
		FilterDueSubscriptions(ctx context.Context, now time.Time) ([]Subscription, error)
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) Plans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx)
}

// Subscribe puts a teacher on a plan for a number of months.
// A teacher holds at most one active subscription.
func (svc *Service) Subscribe(ctx context.Context, teacherID string, ns NewSubscription) (Subscription, error) {
	plan, err := svc.repo.GetPlanByID(ctx, ns.PlanID)
	if err != nil {
		if err == ErrPlanNotFound {
			return Subscription{}, core.NewValidationError(err, core.FieldError{Field: "plan_id", Error: err.Error()})
		}
		return Subscription{}, pkgerrors.Wrap(err, "loading plan")
	}
	if !plan.IsActive {
		return Subscription{}, core.NewValidationError(ErrPlanInactive, core.FieldError{Field: "plan_id", Error: ErrPlanInactive.Error()})
	}

	if _, err = svc.repo.GetActiveSubscription(ctx, teacherID); err == nil {
		return Subscription{}, core.NewValidationError(ErrAlreadySubscribed)
	} else if err != ErrNoActiveSubscription {
		return Subscription{}, pkgerrors.Wrap(err, "checking active subscription")
	}

	now := nowFunc().UTC()
	sub := Subscription{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		PlanID:    plan.ID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, ns.Months, 0),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateSubscription(ctx, sub)
}

func (svc *Service) Current(ctx context.Context, teacherID string) (Subscription, error) {
	return svc.repo.GetActiveSubscription(ctx, teacherID)
}

// ExpireDue flips active subscriptions past their expiry to expired and
// returns how many were flipped.
func (svc *Service) ExpireDue(ctx context.Context) (int, error) {
	due, err := svc.repo.FilterDueSubscriptions(ctx, nowFunc().UTC())
	if err != nil {
		return 0, err
	}
	var count int
	for _, sub := range due {
		sub.Status = StatusExpired
		sub.UpdatedAt = nowFunc().UTC()
		if _, err = svc.repo.UpdateSubscription(ctx, sub); err != nil {
			return count, pkgerrors.Wrapf(err, "expiring subscription %s", sub.ID)
		}
		count++
	}
	return count, nil
}

// MaxClassRooms resolves the classroom cap for a teacher: the active plan's
// cap, or the free tier's when no subscription is current.
func (svc *Service) MaxClassRooms(ctx context.Context, teacherID string) (int, error) {
	sub, err := svc.repo.GetActiveSubscription(ctx, teacherID)
	if err != nil {
		if err == ErrNoActiveSubscription {
			return svc.conf.FreeClassRoomLimit, nil
		}
		return 0, err
	}
	if !sub.IsCurrent(nowFunc()) {
		return svc.conf.FreeClassRoomLimit, nil
	}
	plan, err := svc.repo.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "loading plan")
	}
	return plan.MaxClassRooms, nil
}
