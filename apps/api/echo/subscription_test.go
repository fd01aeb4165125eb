package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frogedu/backend/core/subscription"
	"github.com/frogedu/backend/core/user"
	testutil "github.com/frogedu/backend/tests"
)

func Test_subscriptionApi_plans(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Teacher", "teacher51", "teacher51@test.vn", "LePass123", user.TeacherRoles, true)

	t.Run("anonymous", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/plans")
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusUnauthorized, rec)
	})

	t.Run("plans sorted by price", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/plans", getToken(t, usr))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var plans []subscription.Plan
		decodeBody(t, rec, &plans)
		if len(plans) != 3 {
			t.Fatalf("len(plans) = %d, want 3", len(plans))
		}
		for i, name := range []string{"Basic", "Pro", "School"} {
			if plans[i].Name != name {
				t.Errorf("plans[%d].Name = %s, want %s", i, plans[i].Name, name)
			}
		}
	})
}

func Test_subscriptionApi_subscribe(t *testing.T) {
	ctx := context.Background()
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher52", "teacher52@test.vn", "LePass123", user.TeacherRoles, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student52", "student52@test.vn", "LePass123", user.StudentRoles, true)
	teacherToken := getToken(t, teacher)

	plans, err := subRepo.QueryPlans(ctx)
	if err != nil {
		t.Fatalf("QueryPlans() error = %v", err)
	}
	pro := plans[1]

	t.Run("student cannot subscribe", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"plan_id": %q, "months": 3}`, pro.ID))
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions", getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("missing plan", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions", teacherToken, []byte(`{"months": 3}`))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("unknown plan", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"plan_id": %q, "months": 3}`, uuid.NewString()))
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("no current subscription yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subscriptions/current", teacherToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusNotFound, rec)
	})

	t.Run("teacher subscribes", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"plan_id": %q, "months": 3}`, pro.ID))
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusCreated, rec)

		var sub subscription.Subscription
		decodeBody(t, rec, &sub)
		if sub.TeacherID != teacher.ID || sub.PlanID != pro.ID || sub.Status != subscription.StatusActive {
			t.Errorf("subscription = %+v", sub)
		}
		if want := sub.StartsAt.AddDate(0, 3, 0); !sub.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", sub.ExpiresAt, want)
		}
	})

	t.Run("one active subscription per teacher", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"plan_id": %q, "months": 1}`, pro.ID))
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusBadRequest, rec)
	})

	t.Run("current returns the subscription", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subscriptions/current", teacherToken)
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var sub subscription.Subscription
		decodeBody(t, rec, &sub)
		if sub.PlanID != pro.ID {
			t.Errorf("PlanID = %s, want %s", sub.PlanID, pro.ID)
		}
	})
}

func Test_subscriptionApi_expireDue(t *testing.T) {
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "Root", "rooted53", "root53@test.vn", "LePass123", user.AllRoles, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher53", "teacher53@test.vn", "LePass123", user.TeacherRoles, true)

	plans, err := subRepo.QueryPlans(ctx)
	if err != nil {
		t.Fatalf("QueryPlans() error = %v", err)
	}
	now := time.Now().UTC()
	lapsed := subscription.Subscription{
		ID:        uuid.NewString(),
		TeacherID: teacher.ID,
		PlanID:    plans[0].ID,
		StartsAt:  now.AddDate(0, -4, 0),
		ExpiresAt: now.AddDate(0, -1, 0),
		Status:    subscription.StatusActive,
		CreatedAt: now.AddDate(0, -4, 0),
		UpdatedAt: now.AddDate(0, -4, 0),
	}
	if _, err = subRepo.CreateSubscription(ctx, lapsed); err != nil {
		t.Fatalf("CreateSubscription() error = %v", err)
	}

	t.Run("teacher cannot expire", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions/expire-due", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusForbidden, rec)
	})

	t.Run("admin expires due subscriptions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions/expire-due", getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCode(t, http.StatusOK, rec)

		var resp struct {
			Expired int `json:"expired"`
		}
		decodeBody(t, rec, &resp)
		if resp.Expired != 1 {
			t.Errorf("expired = %d, want 1", resp.Expired)
		}

		sub, err := subRepo.GetActiveSubscription(ctx, teacher.ID)
		if err != subscription.ErrNoActiveSubscription {
			t.Errorf("GetActiveSubscription() = %+v, %v; want %v", sub, err, subscription.ErrNoActiveSubscription)
		}
	})
}
