package subscription

import (
	"time"

	"github.com/frogedu/backend/core"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusExpired  SubscriptionStatus = "expired"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Plan is a billable tier capping how many classrooms a teacher may own.
type Plan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         Money  `json:"price"`
	MaxClassRooms int    `json:"max_classrooms"`
	IsActive      bool   `json:"is_active"`
}

type Subscription struct {
	ID        string             `json:"id"`
	TeacherID string             `json:"teacher_id"`
	PlanID    string             `json:"plan_id"`
	StartsAt  time.Time          `json:"starts_at"`  // UTC
	ExpiresAt time.Time          `json:"expires_at"` // UTC
	Status    SubscriptionStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"` // UTC
	UpdatedAt time.Time          `json:"updated_at"` // UTC
}

// IsCurrent reports whether the subscription grants plan benefits right now.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

// NewSubscription contains information needed to subscribe a teacher to a plan.
type NewSubscription struct {
	PlanID string `json:"plan_id" validate:"required,uuid4"`
	Months int    `json:"months" validate:"required,gte=1,lte=36"`
}

func (ns *NewSubscription) Validate() error {
	return core.Validate.Struct(ns)
}
