package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/frogedu/backend/core/subscription"
)

type subscriptionApi struct {
	svc *subscription.Service
}

func registerSubscriptionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *subscription.Service) {
	api := subscriptionApi{svc: svc}

	g.GET("/plans", api.queryPlans, jwt)

	sg := g.Group("/subscriptions", jwt)
	sg.POST("", api.subscribe, teacherMiddleware())
	sg.GET("/current", api.current, teacherMiddleware())
	sg.POST("/expire-due", api.expireDue, adminMiddleware())
}

// Handlers

func (api *subscriptionApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.Plans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []subscription.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *subscriptionApi) subscribe(ctx echo.Context) error {
	var data subscription.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sub, err := api.svc.Subscribe(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subscriptionApi) current(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sub, err := api.svc.Current(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == subscription.ErrNoActiveSubscription {
			return errHttpNotFound
		}
		return errors.Wrap(err, "loading current subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) expireDue(ctx echo.Context) error {
	count, err := api.svc.ExpireDue(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "expiring due subscriptions")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"expired": count})
}
