package dummydb

import (
	"context"
	"strings"
	"time"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/classroom"
)

type classRoomRepository struct {
	classRooms  *classRoomTable
	enrollments *enrollmentTable
	assignments *assignmentTable
}

var _ classroom.Repository = (*classRoomRepository)(nil) // interface compliance check

func NewClassRoomRepository(db *DB) classroom.Repository {
	return &classRoomRepository{
		classRooms:  db.classRoom,
		enrollments: db.enrollment,
		assignments: db.assignment,
	}
}

// load returns the aggregate with enrollments and assignments attached.
func (repo *classRoomRepository) load(c classroom.ClassRoom) classroom.ClassRoom {
	c.Enrollments = nil
	c.Assignments = nil
	for _, enr := range repo.enrollments.table {
		if enr.ClassRoomID == c.ID {
			c.Enrollments = append(c.Enrollments, *enr)
		}
	}
	for _, a := range repo.assignments.table {
		if a.ClassRoomID == c.ID {
			c.Assignments = append(c.Assignments, *a)
		}
	}
	return c
}

func (repo *classRoomRepository) query() []classroom.ClassRoom {
	classRooms := make([]classroom.ClassRoom, 0, len(repo.classRooms.table))
	for _, c := range repo.classRooms.table {
		if c.DeletedAt.IsZero() {
			classRooms = append(classRooms, *c)
		}
	}
	return classRooms
}

func (repo *classRoomRepository) CheckInviteCodeUniqueness(_ context.Context, code classroom.InviteCode) error {
	repo.classRooms.RLock()
	defer repo.classRooms.RUnlock()

	for _, c := range repo.classRooms.table {
		if c.InviteCode == code {
			return classroom.ErrCodeTaken
		}
	}
	return nil
}

func (repo *classRoomRepository) CreateClassRoom(_ context.Context, c classroom.ClassRoom) (classroom.ClassRoom, error) {
	repo.classRooms.Lock()
	defer repo.classRooms.Unlock()

	c.ID = newID(c.ID)
	stored := c
	stored.Enrollments = nil
	stored.Assignments = nil
	repo.classRooms.table[c.ID] = &stored
	return c, nil
}

func (repo *classRoomRepository) GetClassRoomByID(_ context.Context, id string) (classroom.ClassRoom, error) {
	repo.classRooms.RLock()
	defer repo.classRooms.RUnlock()
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	if c, ok := repo.classRooms.table[id]; ok && c.DeletedAt.IsZero() {
		return repo.load(*c), nil
	}
	return classroom.ClassRoom{}, classroom.ErrNotFound
}

func (repo *classRoomRepository) GetClassRoomByInviteCode(_ context.Context, code classroom.InviteCode) (classroom.ClassRoom, error) {
	repo.classRooms.RLock()
	defer repo.classRooms.RUnlock()
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	for _, c := range repo.query() {
		if c.InviteCode == code {
			return repo.load(c), nil
		}
	}
	return classroom.ClassRoom{}, classroom.ErrNotFound
}

func (repo *classRoomRepository) FilterClassRooms(_ context.Context, filter classroom.QueryFilter, _ ...core.DBOrdering) ([]classroom.ClassRoom, error) {
	repo.classRooms.RLock()
	defer repo.classRooms.RUnlock()
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	var classRooms []classroom.ClassRoom
	for _, c := range repo.query() {
		c = repo.load(c)
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && c.ActiveEnrollment(filter.StudentID) == nil {
			continue
		}
		if filter.IsActive != nil && c.IsActive != *filter.IsActive {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) &&
			!strings.Contains(strings.ToLower(c.Grade), strings.ToLower(filter.Search)) {
			continue
		}
		classRooms = append(classRooms, c)
	}
	return classRooms, nil
}

func (repo *classRoomRepository) CountClassRoomsByTeacher(_ context.Context, teacherID string) (int, error) {
	repo.classRooms.RLock()
	defer repo.classRooms.RUnlock()

	var count int
	for _, c := range repo.query() {
		if c.TeacherID == teacherID {
			count++
		}
	}
	return count, nil
}

func (repo *classRoomRepository) UpdateClassRoom(_ context.Context, c classroom.ClassRoom, isActive *bool) (classroom.ClassRoom, error) {
	repo.classRooms.Lock()
	defer repo.classRooms.Unlock()

	// only save set fields
	orig, ok := repo.classRooms.table[c.ID]
	if !ok || !orig.DeletedAt.IsZero() {
		return classroom.ClassRoom{}, classroom.ErrNotFound
	}
	if c.Name != "" {
		orig.Name = c.Name
	}
	if c.Grade != "" {
		orig.Grade = c.Grade
	}
	if c.MaxStudents != 0 {
		orig.MaxStudents = c.MaxStudents
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	if !c.UpdatedAt.IsZero() {
		orig.UpdatedAt = c.UpdatedAt
	}

	repo.classRooms.table[c.ID] = orig
	return *orig, nil
}

func (repo *classRoomRepository) DeleteClassRoom(_ context.Context, id string, deletedAt time.Time) error {
	repo.classRooms.Lock()
	defer repo.classRooms.Unlock()

	c, ok := repo.classRooms.table[id]
	if !ok || !c.DeletedAt.IsZero() {
		return classroom.ErrNotFound
	}
	c.DeletedAt = deletedAt
	return nil
}

func (repo *classRoomRepository) IsStudentEnrolled(_ context.Context, classRoomID, studentID string) (bool, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()

	for _, enr := range repo.enrollments.table {
		if enr.ClassRoomID == classRoomID && enr.StudentID == studentID && enr.Status == classroom.EnrollmentActive {
			return true, nil
		}
	}
	return false, nil
}

func (repo *classRoomRepository) CreateEnrollment(_ context.Context, enr classroom.Enrollment) (classroom.Enrollment, error) {
	repo.enrollments.Lock()
	defer repo.enrollments.Unlock()

	enr.ID = newID(enr.ID)
	repo.enrollments.table[enr.ID] = &enr
	return enr, nil
}

func (repo *classRoomRepository) UpdateEnrollment(_ context.Context, enr classroom.Enrollment) (classroom.Enrollment, error) {
	repo.enrollments.Lock()
	defer repo.enrollments.Unlock()

	if _, ok := repo.enrollments.table[enr.ID]; !ok {
		return classroom.Enrollment{}, classroom.ErrNotEnrolled
	}
	repo.enrollments.table[enr.ID] = &enr
	return enr, nil
}

func (repo *classRoomRepository) CreateAssignment(_ context.Context, a classroom.Assignment) (classroom.Assignment, error) {
	repo.assignments.Lock()
	defer repo.assignments.Unlock()

	a.ID = newID(a.ID)
	repo.assignments.table[a.ID] = &a
	return a, nil
}

func (repo *classRoomRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.assignments.Lock()
	defer repo.assignments.Unlock()

	if _, ok := repo.assignments.table[id]; !ok {
		return classroom.ErrAssignmentNotFound
	}
	delete(repo.assignments.table, id)
	return nil
}
