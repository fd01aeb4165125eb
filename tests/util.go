package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/frogedu/backend/core/classroom"
	"github.com/frogedu/backend/core/exam"
	"github.com/frogedu/backend/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClassRoom(
	t *testing.T,
	repo classroom.Repository,
	name, grade, teacherID string,
	maxStudents int,
	isActive bool,
) classroom.ClassRoom {
	t.Helper()

	now := time.Now().UTC()
	c := classroom.ClassRoom{
		Name:        name,
		Grade:       grade,
		InviteCode:  classroom.GenerateInviteCode(),
		MaxStudents: maxStudents,
		TeacherID:   teacherID,
		IsActive:    isActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c, err := repo.CreateClassRoom(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateClassRoom() failed: %v", err)
	}
	return c
}

func EnrollStudent(t *testing.T, repo classroom.Repository, classRoomID, studentID string) classroom.Enrollment {
	t.Helper()

	enr := classroom.Enrollment{
		ClassRoomID: classRoomID,
		StudentID:   studentID,
		Status:      classroom.EnrollmentActive,
		JoinedAt:    time.Now().UTC(),
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("EnrollStudent() failed: %v", err)
	}
	return enr
}

func CreateSession(
	t *testing.T,
	repo exam.Repository,
	classRoomID, examID, createdBy string,
	start, end time.Time,
	mods ...func(*exam.ExamSession),
) exam.ExamSession {
	t.Helper()

	now := time.Now().UTC()
	s := exam.ExamSession{
		ClassRoomID: classRoomID,
		ExamID:      examID,
		StartTime:   start,
		EndTime:     end,
		IsActive:    true,
		CreatedBy:   createdBy,
		UpdatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, mod := range mods {
		mod(&s)
	}
	s, err := repo.CreateExamSession(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return s
}

func CreateAttempt(
	t *testing.T,
	repo exam.Repository,
	sessionID, studentID string,
	number int,
) exam.StudentExamAttempt {
	t.Helper()

	att := exam.StudentExamAttempt{
		ExamSessionID: sessionID,
		StudentID:     studentID,
		AttemptNumber: number,
		StartedAt:     time.Now().UTC(),
		Status:        exam.AttemptInProgress,
	}
	att, err := repo.CreateAttempt(context.Background(), att)
	if err != nil {
		t.Fatalf("CreateAttempt() failed: %v", err)
	}
	return att
}
