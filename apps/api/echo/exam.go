package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/frogedu/backend/core/classroom"
	"github.com/frogedu/backend/core/exam"
)

// ExamSessionResponse decorates a session with its schedule state so clients
// don't reimplement the window rules.
type ExamSessionResponse struct {
	exam.ExamSession
	IsCurrentlyActive bool `json:"is_currently_active"`
	IsUpcoming        bool `json:"is_upcoming"`
	HasEnded          bool `json:"has_ended"`
}

func newExamSessionResponse(s exam.ExamSession) ExamSessionResponse {
	now := time.Now()
	return ExamSessionResponse{
		ExamSession:       s,
		IsCurrentlyActive: s.IsCurrentlyActive(now),
		IsUpcoming:        s.IsUpcoming(now),
		HasEnded:          s.HasEnded(now),
	}
}

func newExamSessionResponses(sessions []exam.ExamSession) []ExamSessionResponse {
	resp := make([]ExamSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, newExamSessionResponse(s))
	}
	return resp
}

// AttemptResponse decorates an attempt with its percentage score.
type AttemptResponse struct {
	exam.StudentExamAttempt
	ScorePercentage float64 `json:"score_percentage"`
}

func newAttemptResponse(att exam.StudentExamAttempt) AttemptResponse {
	return AttemptResponse{StudentExamAttempt: att, ScorePercentage: att.ScorePercentage()}
}

type examApi struct {
	svc          *exam.Service
	classRoomSvc *classroom.Service
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *exam.Service, classRoomSvc *classroom.Service) {
	api := examApi{svc: svc, classRoomSvc: classRoomSvc}

	sg := g.Group("/exam-sessions", jwt)
	sg.POST("", api.createSession, teacherMiddleware())
	sg.GET("", api.querySessions, teacherMiddleware())

	dg := sg.Group("/:id")
	dg.GET("", api.retrieveSession, teacherMiddleware())
	dg.PUT("", api.updateSession, teacherMiddleware())
	dg.DELETE("", api.destroySession, teacherMiddleware())
	dg.GET("/results", api.sessionResults, teacherMiddleware())
	dg.POST("/attempts", api.startAttempt, studentMiddleware())

	// the listing a student sees for a classroom
	g.GET("/classrooms/:id/exam-sessions", api.classRoomSessions, jwt)

	ag := g.Group("/attempts", jwt)
	ag.PUT("/:id/answers", api.saveAnswer, studentMiddleware())
	ag.POST("/:id/submit", api.submitAttempt, studentMiddleware())
	ag.POST("/:id/timeout", api.timeOutAttempt, teacherMiddleware())
}

// ownSession loads the session and ensures the caller created it, owns its
// classroom, or is admin.
func (api *examApi) ownSession(ctx echo.Context) (exam.ExamSession, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return exam.ExamSession{}, errors.Wrap(err, "getting context claims")
	}
	s, err := api.svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == exam.ErrSessionNotFound {
			return exam.ExamSession{}, errHttpNotFound
		}
		return exam.ExamSession{}, errors.Wrap(err, "finding exam session by ID")
	}
	if claims.IsAdmin || s.CreatedBy == claims.Subject {
		return s, nil
	}
	c, err := api.classRoomSvc.GetByID(ctx.Request().Context(), s.ClassRoomID)
	if err == nil && c.TeacherID == claims.Subject {
		return s, nil
	}
	return exam.ExamSession{}, errHttpForbidden
}

// Handlers

func (api *examApi) createSession(ctx echo.Context) error {
	var data exam.NewExamSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExamSession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// scheduling requires owning the classroom
	c, err := api.classRoomSvc.GetByID(ctx.Request().Context(), data.ClassRoomID)
	if err != nil {
		if errors.Cause(err) == classroom.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding classroom by ID")
	}
	if c.TeacherID != claims.Subject && !claims.IsAdmin {
		return errHttpForbidden
	}

	s, err := api.svc.CreateSession(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating exam session")
	}
	return ctx.JSON(http.StatusCreated, newExamSessionResponse(s))
}

func (api *examApi) querySessions(ctx echo.Context) error {
	filter := new(exam.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []exam.ExamSession{})
	}

	// non-admins only see sessions they scheduled
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		filter.CreatedBy = claims.Subject
	}

	ordering := new(Ordering)
	ordering.Bind(ctx, "start_time", "end_time", "created_at", "updated_at")

	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying exam sessions")
	}
	return ctx.JSON(http.StatusOK, newExamSessionResponses(sessions))
}

func (api *examApi) retrieveSession(ctx echo.Context) error {
	s, err := api.ownSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newExamSessionResponse(s))
}

func (api *examApi) updateSession(ctx echo.Context) error {
	s, err := api.ownSession(ctx)
	if err != nil {
		return err
	}

	var data exam.UpdateExamSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExamSession")
	}
	if err = data.Validate(s); err != nil {
		return err
	}

	claims, _ := getContextClaims(ctx)
	s, err = api.svc.UpdateSession(ctx.Request().Context(), s.ID, data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "updating exam session")
	}
	return ctx.JSON(http.StatusOK, newExamSessionResponse(s))
}

func (api *examApi) destroySession(ctx echo.Context) error {
	s, err := api.ownSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSessions(ctx.Request().Context(), s.ID); err != nil {
		return errors.Wrap(err, "deleting exam session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) sessionResults(ctx echo.Context) error {
	s, err := api.ownSession(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.SessionResults(ctx.Request().Context(), s.ID)
	if err != nil {
		return errors.Wrap(err, "listing session results")
	}
	if results == nil {
		results = []exam.AttemptResult{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *examApi) classRoomSessions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	classRoomID := ctx.Param("id")
	if claims.IsTeacher || claims.IsAdmin {
		sessions, err := api.svc.QuerySessions(ctx.Request().Context(), &exam.QueryFilter{ClassRoomID: classRoomID})
		if err != nil {
			return errors.Wrap(err, "querying exam sessions")
		}
		return ctx.JSON(http.StatusOK, newExamSessionResponses(sessions))
	}

	sessions, err := api.svc.StudentSessions(ctx.Request().Context(), classRoomID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing student sessions")
	}
	return ctx.JSON(http.StatusOK, newExamSessionResponses(sessions))
}

func (api *examApi) startAttempt(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.StartAttempt(ctx.Request().Context(), ctx.Param("id"), claims.Subject, claims.IsAdmin)
	if err != nil {
		if errors.Cause(err) == exam.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, newAttemptResponse(att))
}

func (api *examApi) saveAnswer(ctx echo.Context) error {
	var data exam.SubmitAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswer")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ans, err := api.svc.SaveAnswer(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data)
	if err != nil {
		if errors.Cause(err) == exam.ErrAttemptNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "saving answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *examApi) submitAttempt(ctx echo.Context) error {
	var data SubmitAttemptRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAttemptRequest")
	}
	for i := range data.Answers {
		if err := data.Answers[i].Validate(); err != nil {
			return err
		}
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.SubmitAttempt(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data.Answers)
	if err != nil {
		if errors.Cause(err) == exam.ErrAttemptNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(att))
}

func (api *examApi) timeOutAttempt(ctx echo.Context) error {
	att, err := api.svc.TimeOutAttempt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == exam.ErrAttemptNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "timing out attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(att))
}

type SubmitAttemptRequest struct {
	Answers []exam.SubmitAnswer `json:"answers"`
}
