package dummydb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/frogedu/backend/core/classroom"
	"github.com/frogedu/backend/core/exam"
	"github.com/frogedu/backend/core/subscription"
	"github.com/frogedu/backend/core/user"
)

type (
	DB struct {
		user         *userTable
		classRoom    *classRoomTable
		enrollment   *enrollmentTable
		assignment   *assignmentTable
		session      *sessionTable
		attempt      *attemptTable
		answer       *answerTable
		plan         *planTable
		subscription *subscriptionTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}
	classRoomTable struct {
		sync.RWMutex
		table map[string]*classroom.ClassRoom
	}
	enrollmentTable struct {
		sync.RWMutex
		table map[string]*classroom.Enrollment
	}
	assignmentTable struct {
		sync.RWMutex
		table map[string]*classroom.Assignment
	}
	sessionTable struct {
		sync.RWMutex
		table map[string]*exam.ExamSession
	}
	attemptTable struct {
		sync.RWMutex
		table map[string]*exam.StudentExamAttempt
	}
	answerTable struct {
		sync.RWMutex
		table map[string]*exam.StudentAnswer
	}
	planTable struct {
		sync.RWMutex
		table map[string]*subscription.Plan
	}
	subscriptionTable struct {
		sync.RWMutex
		table map[string]*subscription.Subscription
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		classRoom:    &classRoomTable{table: make(map[string]*classroom.ClassRoom)},
		enrollment:   &enrollmentTable{table: make(map[string]*classroom.Enrollment)},
		assignment:   &assignmentTable{table: make(map[string]*classroom.Assignment)},
		session:      &sessionTable{table: make(map[string]*exam.ExamSession)},
		attempt:      &attemptTable{table: make(map[string]*exam.StudentExamAttempt)},
		answer:       &answerTable{table: make(map[string]*exam.StudentAnswer)},
		plan:         &planTable{table: make(map[string]*subscription.Plan)},
		subscription: &subscriptionTable{table: make(map[string]*subscription.Subscription)},
	}
	db.seedPlans()
	return db, nil
}

// seedPlans mirrors the migration's default plan rows.
func (db *DB) seedPlans() {
	for _, p := range []subscription.Plan{
		{Name: "Basic", Price: subscription.Money{Amount: 99000, Currency: "VND"}, MaxClassRooms: 10, IsActive: true},
		{Name: "Pro", Price: subscription.Money{Amount: 249000, Currency: "VND"}, MaxClassRooms: 50, IsActive: true},
		{Name: "School", Price: subscription.Money{Amount: 990000, Currency: "VND"}, MaxClassRooms: 500, IsActive: true},
	} {
		p := p
		p.ID = uuid.NewString()
		db.plan.table[p.ID] = &p
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
