package classroom

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
	ErrNotFound           = errors.New("class not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrCodeTaken          = errors.New("invite code is already in use")
	ErrClassRoomLimit     = errors.New("classroom limit reached for the current plan")
)

// codeGenAttempts bounds retries on invite code collisions.
const codeGenAttempts = 5

type (
	Repository interface {
		CheckInviteCodeUniqueness(ctx context.Context, code InviteCode) error
		CreateClassRoom(ctx context.Context, c ClassRoom) (ClassRoom, error)
		// GetClassRoomByID loads the aggregate with its enrollments and assignments.
		// Soft-deleted classrooms are not found.
		GetClassRoomByID(ctx context.Context, id string) (ClassRoom, error)
		GetClassRoomByInviteCode(ctx context.Context, code InviteCode) (ClassRoom, error)
		FilterClassRooms(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]ClassRoom, error)
		CountClassRoomsByTeacher(ctx context.Context, teacherID string) (int, error)
		UpdateClassRoom(ctx context.Context, c ClassRoom, isActive *bool) (ClassRoom, error)
		DeleteClassRoom(ctx context.Context, id string, deletedAt time.Time) error
		IsStudentEnrolled(ctx context.Context, classRoomID, studentID string) (bool, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error
	}

	// ExamSessions removes the exam sessions linked to a deleted assignment.
	ExamSessions interface {
		DeleteByClassRoomAndExam(ctx context.Context, classRoomID, examID string) error
	}

	// PlanLimits resolves how many classrooms a teacher may own.
	PlanLimits interface {
		MaxClassRooms(ctx context.Context, teacherID string) (int, error)
	}

	Service struct {
		repo     Repository
		sessions ExamSessions
		plans    PlanLimits
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, sessions ExamSessions, plans PlanLimits) *Service {
	return &Service{repo: repo, sessions: sessions, plans: plans}
}

func (svc *Service) Create(ctx context.Context, nc NewClassRoom, teacherID string) (ClassRoom, error) {
	count, err := svc.repo.CountClassRoomsByTeacher(ctx, teacherID)
	if err != nil {
		return ClassRoom{}, pkgerrors.Wrap(err, "counting classrooms")
	}
	limit, err := svc.plans.MaxClassRooms(ctx, teacherID)
	if err != nil {
		return ClassRoom{}, pkgerrors.Wrap(err, "resolving classroom limit")
	}
	if count >= limit {
		return ClassRoom{}, core.NewValidationError(ErrClassRoomLimit)
	}

	code, err := svc.generateUniqueCode(ctx)
	if err != nil {
		return ClassRoom{}, err
	}

	now := nowFunc().UTC()
	c := ClassRoom{
		ID:          uuid.NewString(),
		Name:        nc.Name,
		Grade:       nc.Grade,
		InviteCode:  code,
		MaxStudents: nc.MaxStudents,
		TeacherID:   teacherID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateClassRoom(ctx, c)
}

func (svc *Service) generateUniqueCode(ctx context.Context) (InviteCode, error) {
	for i := 0; i < codeGenAttempts; i++ {
		code := GenerateInviteCode()
		err := svc.repo.CheckInviteCodeUniqueness(ctx, code)
		if err == nil {
			return code, nil
		}
		if err != ErrCodeTaken {
			return "", pkgerrors.Wrap(err, "checking invite code uniqueness")
		}
	}
	return "", pkgerrors.Wrap(ErrCodeTaken, "generating invite code")
}

func (svc *Service) GetByID(ctx context.Context, id string) (ClassRoom, error) {
	return svc.repo.GetClassRoomByID(ctx, id)
}

func (svc *Service) GetByInviteCode(ctx context.Context, code string) (ClassRoom, error) {
	parsed, err := ParseInviteCode(code)
	if err != nil {
		return ClassRoom{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return svc.repo.GetClassRoomByInviteCode(ctx, parsed)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]ClassRoom, error) {
	return svc.repo.FilterClassRooms(ctx, *filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateClassRoom) (ClassRoom, error) {
	c := ClassRoom{
		ID:          id,
		Name:        uc.Name,
		Grade:       uc.Grade,
		MaxStudents: uc.MaxStudents,
		UpdatedAt:   nowFunc().UTC(),
	}
	return svc.repo.UpdateClassRoom(ctx, c, uc.IsActive)
}

// Delete soft-deletes a classroom; its rows and attempt history stay queryable
// by ID for audit but disappear from every listing.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteClassRoom(ctx, id, nowFunc().UTC())
}

// Join redeems an invite code for a student.
func (svc *Service) Join(ctx context.Context, code, studentID string) (ClassRoom, error) {
	c, err := svc.GetByInviteCode(ctx, code)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return ClassRoom{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: "invalid invite code"})
		}
		return ClassRoom{}, err
	}

	enr, err := c.EnrollStudent(studentID, nowFunc())
	if err != nil {
		return ClassRoom{}, core.NewValidationError(err)
	}
	enr.ID = uuid.NewString()

	if _, err = svc.repo.CreateEnrollment(ctx, enr); err != nil {
		return ClassRoom{}, pkgerrors.Wrap(err, "creating enrollment")
	}
	return svc.repo.GetClassRoomByID(ctx, c.ID)
}

func (svc *Service) RemoveStudent(ctx context.Context, classRoomID, studentID string) error {
	c, err := svc.repo.GetClassRoomByID(ctx, classRoomID)
	if err != nil {
		return err
	}
	enr, err := c.RemoveStudent(studentID)
	if err != nil {
		return core.NewValidationError(err)
	}
	_, err = svc.repo.UpdateEnrollment(ctx, enr)
	return pkgerrors.Wrap(err, "updating enrollment")
}

func (svc *Service) AddAssignment(ctx context.Context, classRoomID string, na NewAssignment) (Assignment, error) {
	c, err := svc.repo.GetClassRoomByID(ctx, classRoomID)
	if err != nil {
		return Assignment{}, err
	}
	if !c.IsActive {
		return Assignment{}, core.NewValidationError(errors.New("cannot assign exams to an inactive class"))
	}

	a := Assignment{
		ID:          uuid.NewString(),
		ClassRoomID: c.ID,
		ExamID:      na.ExamID,
		StartDate:   na.StartDate,
		DueDate:     na.DueDate,
		IsMandatory: na.IsMandatory,
		Weight:      na.Weight,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

// RemoveAssignment deletes an assignment along with the exam sessions
// scheduled for the same (classroom, exam) pair; sessions go first.
func (svc *Service) RemoveAssignment(ctx context.Context, classRoomID, assignmentID string) error {
	c, err := svc.repo.GetClassRoomByID(ctx, classRoomID)
	if err != nil {
		return err
	}
	a := c.FindAssignment(assignmentID)
	if a == nil {
		return ErrAssignmentNotFound
	}

	if err = svc.sessions.DeleteByClassRoomAndExam(ctx, c.ID, a.ExamID); err != nil {
		return pkgerrors.Wrap(err, "deleting linked exam sessions")
	}
	return svc.repo.DeleteAssignment(ctx, a.ID)
}

// IsEnrolled reports whether the student holds an active enrollment.
func (svc *Service) IsEnrolled(ctx context.Context, classRoomID, studentID string) (bool, error) {
	return svc.repo.IsStudentEnrolled(ctx, classRoomID, studentID)
}
