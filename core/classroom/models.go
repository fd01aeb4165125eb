package classroom

import (
	"errors"
	"time"

	"github.com/frogedu/backend/core"
)

type EnrollmentStatus string

const (
	EnrollmentActive  EnrollmentStatus = "active"
	EnrollmentRemoved EnrollmentStatus = "removed"
)

var (
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this class")
	ErrCannotEnroll    = errors.New("cannot enroll student: class is full or inactive")
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")
)

type Enrollment struct {
	ID          string           `json:"id"`
	ClassRoomID string           `json:"classroom_id"`
	StudentID   string           `json:"student_id"`
	Status      EnrollmentStatus `json:"status"`
	JoinedAt    time.Time        `json:"joined_at"` // UTC
}

type Assignment struct {
	ID          string    `json:"id"`
	ClassRoomID string    `json:"classroom_id"`
	ExamID      string    `json:"exam_id"`
	StartDate   time.Time `json:"start_date"`
	DueDate     time.Time `json:"due_date"`
	IsMandatory bool      `json:"is_mandatory"`
	Weight      int       `json:"weight"` // 0 - 100
}

func (a *Assignment) IsOverdue(now time.Time) bool {
	return now.After(a.DueDate)
}

func (a *Assignment) IsActive(now time.Time) bool {
	return !now.Before(a.StartDate) && !a.IsOverdue(now)
}

// ClassRoom is a teacher-owned class holding enrollments and exam assignments.
type ClassRoom struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Grade       string     `json:"grade"`
	InviteCode  InviteCode `json:"invite_code"`
	MaxStudents int        `json:"max_students"`
	TeacherID   string     `json:"teacher_id"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
	DeletedAt   time.Time  `json:"-"`

	Enrollments []Enrollment `json:"enrollments,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

func (c *ClassRoom) ActiveEnrollmentCount() int {
	var count int
	for i := range c.Enrollments {
		if c.Enrollments[i].Status == EnrollmentActive {
			count++
		}
	}
	return count
}

func (c *ClassRoom) ActiveEnrollment(studentID string) *Enrollment {
	for i := range c.Enrollments {
		if c.Enrollments[i].StudentID == studentID && c.Enrollments[i].Status == EnrollmentActive {
			return &c.Enrollments[i]
		}
	}
	return nil
}

func (c *ClassRoom) CanEnrollStudent() bool {
	return c.IsActive && c.ActiveEnrollmentCount() < c.MaxStudents
}

// EnrollStudent appends an active enrollment, enforcing capacity and the
// one-active-enrollment-per-student rule. The returned enrollment still has
// to be persisted by the caller.
func (c *ClassRoom) EnrollStudent(studentID string, now time.Time) (Enrollment, error) {
	if c.ActiveEnrollment(studentID) != nil {
		return Enrollment{}, ErrAlreadyEnrolled
	}
	if !c.CanEnrollStudent() {
		return Enrollment{}, ErrCannotEnroll
	}
	enr := Enrollment{
		ClassRoomID: c.ID,
		StudentID:   studentID,
		Status:      EnrollmentActive,
		JoinedAt:    now.UTC(),
	}
	c.Enrollments = append(c.Enrollments, enr)
	return enr, nil
}

// RemoveStudent marks the student's active enrollment removed; the row is kept.
func (c *ClassRoom) RemoveStudent(studentID string) (Enrollment, error) {
	enr := c.ActiveEnrollment(studentID)
	if enr == nil {
		return Enrollment{}, ErrNotEnrolled
	}
	enr.Status = EnrollmentRemoved
	return *enr, nil
}

func (c *ClassRoom) FindAssignment(id string) *Assignment {
	for i := range c.Assignments {
		if c.Assignments[i].ID == id {
			return &c.Assignments[i]
		}
	}
	return nil
}

// NewClassRoom contains information needed to create a new ClassRoom.
type NewClassRoom struct {
	Name        string `json:"name" validate:"required,notblank"`
	Grade       string `json:"grade" validate:"required,notblank"`
	MaxStudents int    `json:"max_students" validate:"required,gt=0"`
}

func (nc *NewClassRoom) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Grade = core.CleanString(nc.Grade)
	return core.Validate.Struct(nc)
}

// UpdateClassRoom defines what information may be provided to modify an existing ClassRoom.
type UpdateClassRoom struct {
	Name        string `json:"name"`
	Grade       string `json:"grade"`
	MaxStudents int    `json:"max_students" validate:"omitempty,gt=0"`
	IsActive    *bool  `json:"is_active"`
}

func (uc *UpdateClassRoom) Validate(orig ClassRoom) error {
	name := core.CleanString(uc.Name)
	if name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}

	grade := core.CleanString(uc.Grade)
	if grade != "" {
		uc.Grade = grade
	} else {
		uc.Grade = orig.Grade
	}

	if uc.MaxStudents == 0 {
		uc.MaxStudents = orig.MaxStudents
	}

	if err := core.Validate.Struct(uc); err != nil {
		return err
	}

	// capacity may not drop below the students already in
	if enrolled := orig.ActiveEnrollmentCount(); uc.MaxStudents < enrolled {
		return core.NewValidationError(nil, core.FieldError{
			Field: "max_students",
			Error: "max_students cannot be lower than the current number of enrolled students",
		})
	}
	return nil
}

// NewAssignment contains information needed to assign an exam to a ClassRoom.
type NewAssignment struct {
	ExamID      string    `json:"exam_id" validate:"required,uuid4"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	DueDate     time.Time `json:"due_date" validate:"required,gtfield=StartDate"`
	IsMandatory bool      `json:"is_mandatory"`
	Weight      int       `json:"weight" validate:"gte=0,lte=100"`
}

func (na *NewAssignment) Validate() error {
	return core.Validate.Struct(na)
}

// JoinClassRoom carries the invite code a student redeems.
type JoinClassRoom struct {
	Code string `json:"code" validate:"required"`
}

func (jc *JoinClassRoom) Validate() error {
	jc.Code = core.CleanString(jc.Code)
	return core.Validate.Struct(jc)
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID string `query:"teacher_id"`
	StudentID string `query:"student_id"`
	IsActive  *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.TeacherID == "" && qf.StudentID == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
