package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/frogedu/backend/core/classroom"
)

type classRoomApi struct {
	svc *classroom.Service
}

func registerClassRoomAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *classroom.Service) {
	api := classRoomApi{svc: svc}

	cg := g.Group("/classrooms", jwt)
	cg.POST("", api.create, teacherMiddleware())
	cg.GET("", api.query)
	cg.POST("/join", api.join, studentMiddleware())

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherMiddleware())
	dg.DELETE("", api.destroy, teacherMiddleware())
	dg.DELETE("/students/:studentID", api.removeStudent, teacherMiddleware())
	dg.POST("/assignments", api.addAssignment, teacherMiddleware())
	dg.DELETE("/assignments/:assignmentID", api.removeAssignment, teacherMiddleware())
}

// ownClassRoom loads the classroom and ensures the caller owns it (or is admin).
func (api *classRoomApi) ownClassRoom(ctx echo.Context) (classroom.ClassRoom, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return classroom.ClassRoom{}, errors.Wrap(err, "getting context claims")
	}
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrNotFound {
			return classroom.ClassRoom{}, errHttpNotFound
		}
		return classroom.ClassRoom{}, errors.Wrap(err, "finding classroom by ID")
	}
	if c.TeacherID != claims.Subject && !claims.IsAdmin {
		return classroom.ClassRoom{}, errHttpForbidden
	}
	return c, nil
}

// Handlers

func (api *classRoomApi) create(ctx echo.Context) error {
	var data classroom.NewClassRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassRoom")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	c, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *classRoomApi) query(ctx echo.Context) error {
	filter := new(classroom.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []classroom.ClassRoom{})
	}
	filter.Clean()

	// non-admins only see their own classes
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		if claims.IsTeacher {
			filter.TeacherID = claims.Subject
		} else {
			filter.StudentID = claims.Subject
		}
	}

	ordering := new(Ordering)
	ordering.Bind(ctx, "name", "grade", "max_students", "created_at", "updated_at")

	classRooms, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	if classRooms == nil {
		classRooms = []classroom.ClassRoom{}
	}
	return ctx.JSON(http.StatusOK, classRooms)
}

func (api *classRoomApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding classroom by ID")
	}

	// owner, admin or an enrolled student
	if c.TeacherID != claims.Subject && !claims.IsAdmin && c.ActiveEnrollment(claims.Subject) == nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classRoomApi) update(ctx echo.Context) error {
	c, err := api.ownClassRoom(ctx)
	if err != nil {
		return err
	}

	var data classroom.UpdateClassRoom
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassRoom")
	}
	if err = data.Validate(c); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating classroom")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classRoomApi) destroy(ctx echo.Context) error {
	c, err := api.ownClassRoom(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting classroom")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classRoomApi) join(ctx echo.Context) error {
	var data classroom.JoinClassRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClassRoom")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	c, err := api.svc.Join(ctx.Request().Context(), data.Code, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "joining classroom")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classRoomApi) removeStudent(ctx echo.Context) error {
	c, err := api.ownClassRoom(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveStudent(ctx.Request().Context(), c.ID, ctx.Param("studentID")); err != nil {
		return errors.Wrap(err, "removing student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classRoomApi) addAssignment(ctx echo.Context) error {
	c, err := api.ownClassRoom(ctx)
	if err != nil {
		return err
	}

	var data classroom.NewAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	a, err := api.svc.AddAssignment(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *classRoomApi) removeAssignment(ctx echo.Context) error {
	c, err := api.ownClassRoom(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveAssignment(ctx.Request().Context(), c.ID, ctx.Param("assignmentID")); err != nil {
		if errors.Cause(err) == classroom.ErrAssignmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "removing assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
