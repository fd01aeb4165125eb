package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/classroom"
)

type classRoomRepository struct {
	db *sqlx.DB
}

var _ classroom.Repository = (*classRoomRepository)(nil) // interface compliance check

func NewClassRoomRepository(db *sqlx.DB) classroom.Repository {
	return &classRoomRepository{db: db}
}

type classRoomRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Grade       string    `db:"grade"`
	InviteCode  string    `db:"invite_code"`
	MaxStudents int       `db:"max_students"`
	TeacherID   string    `db:"teacher_id"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	DeletedAt   null.Time `db:"deleted_at"`
}

func (row classRoomRow) classRoom() classroom.ClassRoom {
	c := classroom.ClassRoom{
		ID:          row.ID,
		Name:        row.Name,
		Grade:       row.Grade,
		InviteCode:  classroom.InviteCode(row.InviteCode),
		MaxStudents: row.MaxStudents,
		TeacherID:   row.TeacherID,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.DeletedAt.Valid {
		c.DeletedAt = row.DeletedAt.Time
	}
	return c
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	ClassRoomID string    `db:"classroom_id"`
	StudentID   string    `db:"student_id"`
	Status      string    `db:"status"`
	JoinedAt    time.Time `db:"joined_at"`
}

func (row enrollmentRow) enrollment() classroom.Enrollment {
	return classroom.Enrollment{
		ID:          row.ID,
		ClassRoomID: row.ClassRoomID,
		StudentID:   row.StudentID,
		Status:      classroom.EnrollmentStatus(row.Status),
		JoinedAt:    row.JoinedAt,
	}
}

type assignmentRow struct {
	ID          string    `db:"id"`
	ClassRoomID string    `db:"classroom_id"`
	ExamID      string    `db:"exam_id"`
	StartDate   time.Time `db:"start_date"`
	DueDate     time.Time `db:"due_date"`
	IsMandatory bool      `db:"is_mandatory"`
	Weight      int       `db:"weight"`
}

func (row assignmentRow) assignment() classroom.Assignment {
	return classroom.Assignment{
		ID:          row.ID,
		ClassRoomID: row.ClassRoomID,
		ExamID:      row.ExamID,
		StartDate:   row.StartDate,
		DueDate:     row.DueDate,
		IsMandatory: row.IsMandatory,
		Weight:      row.Weight,
	}
}

const selectClassRoom = `SELECT id, name, grade, invite_code, max_students, teacher_id, is_active, created_at, updated_at, deleted_at FROM classroom`

// load attaches enrollments and assignments to the aggregate.
func (repo *classRoomRepository) load(ctx context.Context, c classroom.ClassRoom) (classroom.ClassRoom, error) {
	var enrRows []enrollmentRow
	q := `SELECT id, classroom_id, student_id, status, joined_at FROM enrollment WHERE classroom_id = $1 ORDER BY joined_at`
	if err := repo.db.SelectContext(ctx, &enrRows, q, c.ID); err != nil {
		return classroom.ClassRoom{}, err
	}
	for _, row := range enrRows {
		c.Enrollments = append(c.Enrollments, row.enrollment())
	}

	var asgRows []assignmentRow
	q = `SELECT id, classroom_id, exam_id, start_date, due_date, is_mandatory, weight FROM assignment WHERE classroom_id = $1 ORDER BY start_date`
	if err := repo.db.SelectContext(ctx, &asgRows, q, c.ID); err != nil {
		return classroom.ClassRoom{}, err
	}
	for _, row := range asgRows {
		c.Assignments = append(c.Assignments, row.assignment())
	}
	return c, nil
}

func (repo *classRoomRepository) CheckInviteCodeUniqueness(ctx context.Context, code classroom.InviteCode) error {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM classroom WHERE invite_code = $1)`
	if err := repo.db.GetContext(ctx, &exists, q, string(code)); err != nil {
		return err
	}
	if exists {
		return classroom.ErrCodeTaken
	}
	return nil
}

func (repo *classRoomRepository) CreateClassRoom(ctx context.Context, c classroom.ClassRoom) (classroom.ClassRoom, error) {
	q := `
	INSERT INTO classroom (id, name, grade, invite_code, max_students, teacher_id, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, q, c.ID, c.Name, c.Grade, string(c.InviteCode), c.MaxStudents, c.TeacherID, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return classroom.ClassRoom{}, err
	}
	return c, nil
}

func (repo *classRoomRepository) GetClassRoomByID(ctx context.Context, id string) (classroom.ClassRoom, error) {
	var row classRoomRow
	q := selectClassRoom + ` WHERE id = $1 AND deleted_at IS NULL`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return classroom.ClassRoom{}, trapNoRowsErr(err, classroom.ErrNotFound)
	}
	return repo.load(ctx, row.classRoom())
}

func (repo *classRoomRepository) GetClassRoomByInviteCode(ctx context.Context, code classroom.InviteCode) (classroom.ClassRoom, error) {
	var row classRoomRow
	q := selectClassRoom + ` WHERE invite_code = $1 AND deleted_at IS NULL`
	if err := repo.db.GetContext(ctx, &row, q, string(code)); err != nil {
		return classroom.ClassRoom{}, trapNoRowsErr(err, classroom.ErrNotFound)
	}
	return repo.load(ctx, row.classRoom())
}

func (repo *classRoomRepository) FilterClassRooms(ctx context.Context, filter classroom.QueryFilter, ordering ...core.DBOrdering) ([]classroom.ClassRoom, error) {
	q := selectClassRoom + ` WHERE deleted_at IS NULL`
	var args []interface{}

	if filter.TeacherID != "" {
		q += ` AND teacher_id = ?`
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		q += ` AND id IN (SELECT classroom_id FROM enrollment WHERE student_id = ? AND status = 'active')`
		args = append(args, filter.StudentID)
	}
	if filter.IsActive != nil {
		q += ` AND is_active = ?`
		args = append(args, *filter.IsActive)
	}
	if filter.Search != "" {
		q += ` AND (name ILIKE ? OR grade ILIKE ?)`
		search := "%" + filter.Search + "%"
		args = append(args, search, search)
	}
	q += orderingClause(` ORDER BY created_at DESC`, ordering...)

	var rows []classRoomRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	classRooms := make([]classroom.ClassRoom, 0, len(rows))
	for _, row := range rows {
		c, err := repo.load(ctx, row.classRoom())
		if err != nil {
			return nil, err
		}
		classRooms = append(classRooms, c)
	}
	return classRooms, nil
}

func (repo *classRoomRepository) CountClassRoomsByTeacher(ctx context.Context, teacherID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM classroom WHERE teacher_id = $1 AND deleted_at IS NULL`
	if err := repo.db.GetContext(ctx, &count, q, teacherID); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateClassRoom only saves set fields.
func (repo *classRoomRepository) UpdateClassRoom(ctx context.Context, c classroom.ClassRoom, isActive *bool) (classroom.ClassRoom, error) {
	sets := make([]string, 0, 5)
	args := []interface{}{}

	if c.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, c.Name)
	}
	if c.Grade != "" {
		sets = append(sets, `grade = ?`)
		args = append(args, c.Grade)
	}
	if c.MaxStudents != 0 {
		sets = append(sets, `max_students = ?`)
		args = append(args, c.MaxStudents)
	}
	if isActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *isActive)
	}
	if !c.UpdatedAt.IsZero() {
		sets = append(sets, `updated_at = ?`)
		args = append(args, c.UpdatedAt)
	}
	if len(sets) == 0 {
		return repo.GetClassRoomByID(ctx, c.ID)
	}

	q := `UPDATE classroom SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND deleted_at IS NULL`
	args = append(args, c.ID)
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return classroom.ClassRoom{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classroom.ClassRoom{}, classroom.ErrNotFound
	}
	return repo.GetClassRoomByID(ctx, c.ID)
}

func (repo *classRoomRepository) DeleteClassRoom(ctx context.Context, id string, deletedAt time.Time) error {
	q := `UPDATE classroom SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := repo.db.ExecContext(ctx, q, deletedAt, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classroom.ErrNotFound
	}
	return nil
}

func (repo *classRoomRepository) IsStudentEnrolled(ctx context.Context, classRoomID, studentID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM enrollment WHERE classroom_id = $1 AND student_id = $2 AND status = 'active')`
	if err := repo.db.GetContext(ctx, &exists, q, classRoomID, studentID); err != nil {
		return false, err
	}
	return exists, nil
}

func (repo *classRoomRepository) CreateEnrollment(ctx context.Context, enr classroom.Enrollment) (classroom.Enrollment, error) {
	q := `
	INSERT INTO enrollment (id, classroom_id, student_id, status, joined_at)
	VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.db.ExecContext(ctx, q, enr.ID, enr.ClassRoomID, enr.StudentID, string(enr.Status), enr.JoinedAt)
	if err != nil {
		return classroom.Enrollment{}, err
	}
	return enr, nil
}

func (repo *classRoomRepository) UpdateEnrollment(ctx context.Context, enr classroom.Enrollment) (classroom.Enrollment, error) {
	q := `UPDATE enrollment SET status = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, q, string(enr.Status), enr.ID)
	if err != nil {
		return classroom.Enrollment{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classroom.Enrollment{}, classroom.ErrNotEnrolled
	}
	return enr, nil
}

func (repo *classRoomRepository) CreateAssignment(ctx context.Context, a classroom.Assignment) (classroom.Assignment, error) {
	q := `
	INSERT INTO assignment (id, classroom_id, exam_id, start_date, due_date, is_mandatory, weight)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, q, a.ID, a.ClassRoomID, a.ExamID, a.StartDate, a.DueDate, a.IsMandatory, a.Weight)
	if err != nil {
		return classroom.Assignment{}, err
	}
	return a, nil
}

func (repo *classRoomRepository) DeleteAssignment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classroom.ErrAssignmentNotFound
	}
	return nil
}
