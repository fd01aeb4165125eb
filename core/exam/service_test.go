package exam

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/frogedu/backend/core"
)

type fakeRepository struct {
	sessions map[string]*ExamSession
	attempts map[string]*StudentExamAttempt
	answers  []StudentAnswer
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		sessions: make(map[string]*ExamSession),
		attempts: make(map[string]*StudentExamAttempt),
	}
}

func (repo *fakeRepository) CreateExamSession(_ context.Context, s ExamSession) (ExamSession, error) {
	repo.sessions[s.ID] = &s
	return s, nil
}

func (repo *fakeRepository) GetExamSessionByID(_ context.Context, id string) (ExamSession, error) {
	if s, ok := repo.sessions[id]; ok {
		return *s, nil
	}
	return ExamSession{}, ErrSessionNotFound
}

func (repo *fakeRepository) FilterExamSessions(_ context.Context, filter QueryFilter, _ ...core.DBOrdering) ([]ExamSession, error) {
	var sessions []ExamSession
	for _, s := range repo.sessions {
		if filter.ClassRoomID != "" && s.ClassRoomID != filter.ClassRoomID {
			continue
		}
		if filter.ExamID != "" && s.ExamID != filter.ExamID {
			continue
		}
		if filter.CreatedBy != "" && s.CreatedBy != filter.CreatedBy {
			continue
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

func (repo *fakeRepository) UpdateExamSession(_ context.Context, s ExamSession) (ExamSession, error) {
	if _, ok := repo.sessions[s.ID]; !ok {
		return ExamSession{}, ErrSessionNotFound
	}
	repo.sessions[s.ID] = &s
	return s, nil
}

func (repo *fakeRepository) DeleteExamSessionsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.sessions, id)
		for attID, att := range repo.attempts {
			if att.ExamSessionID == id {
				delete(repo.attempts, attID)
			}
		}
	}
	return nil
}

func (repo *fakeRepository) CreateAttempt(_ context.Context, att StudentExamAttempt) (StudentExamAttempt, error) {
	repo.attempts[att.ID] = &att
	return att, nil
}

func (repo *fakeRepository) GetAttemptByID(_ context.Context, id string) (StudentExamAttempt, error) {
	att, ok := repo.attempts[id]
	if !ok {
		return StudentExamAttempt{}, ErrAttemptNotFound
	}
	loaded := *att
	loaded.Answers = nil
	for _, ans := range repo.answers {
		if ans.AttemptID == id {
			loaded.Answers = append(loaded.Answers, ans)
		}
	}
	return loaded, nil
}

func (repo *fakeRepository) GetAttemptsBySession(ctx context.Context, sessionID string) ([]StudentExamAttempt, error) {
	var attempts []StudentExamAttempt
	for id, att := range repo.attempts {
		if att.ExamSessionID == sessionID {
			loaded, _ := repo.GetAttemptByID(ctx, id)
			attempts = append(attempts, loaded)
		}
	}
	return attempts, nil
}

func (repo *fakeRepository) CountAttempts(_ context.Context, sessionID, studentID string) (int, error) {
	var count int
	for _, att := range repo.attempts {
		if att.ExamSessionID == sessionID && att.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (repo *fakeRepository) UpsertAnswer(_ context.Context, ans StudentAnswer) (StudentAnswer, error) {
	for i := range repo.answers {
		if repo.answers[i].AttemptID == ans.AttemptID && repo.answers[i].QuestionID == ans.QuestionID {
			ans.ID = repo.answers[i].ID
			repo.answers[i] = ans
			return ans, nil
		}
	}
	repo.answers = append(repo.answers, ans)
	return ans, nil
}

func (repo *fakeRepository) UpdateAttempt(ctx context.Context, att StudentExamAttempt) (StudentExamAttempt, error) {
	if _, ok := repo.attempts[att.ID]; !ok {
		return StudentExamAttempt{}, ErrAttemptNotFound
	}
	row := att
	row.Answers = nil
	repo.attempts[att.ID] = &row
	for _, ans := range att.Answers {
		if _, err := repo.UpsertAnswer(ctx, ans); err != nil {
			return StudentExamAttempt{}, err
		}
	}
	return repo.GetAttemptByID(ctx, att.ID)
}

type fakeEnrollments struct {
	enrolled map[string]bool // classRoomID + "/" + studentID
}

func (e *fakeEnrollments) IsStudentEnrolled(_ context.Context, classRoomID, studentID string) (bool, error) {
	return e.enrolled[classRoomID+"/"+studentID], nil
}

type fakeExamClient struct {
	exams map[string]Exam
}

func (c *fakeExamClient) GetExamWithAnswers(_ context.Context, examID string) (Exam, error) {
	if ex, ok := c.exams[examID]; ok {
		return ex, nil
	}
	return Exam{}, ErrExamNotFound
}

type fakeDirectory struct {
	names map[string]string
}

func (d *fakeDirectory) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d.names[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

type serviceFixture struct {
	svc         *Service
	repo        *fakeRepository
	enrollments *fakeEnrollments
	exams       *fakeExamClient
	directory   *fakeDirectory
}

func serviceSetup() *serviceFixture {
	repo := newFakeRepository()
	enrollments := &fakeEnrollments{enrolled: make(map[string]bool)}
	exams := &fakeExamClient{exams: make(map[string]Exam)}
	directory := &fakeDirectory{names: make(map[string]string)}
	return &serviceFixture{
		svc:         NewService(repo, exams, enrollments, directory),
		repo:        repo,
		enrollments: enrollments,
		exams:       exams,
		directory:   directory,
	}
}

func (f *serviceFixture) enroll(classRoomID, studentID string) {
	f.enrollments.enrolled[classRoomID+"/"+studentID] = true
}

// activeSession creates a session whose window brackets the current time.
func (f *serviceFixture) activeSession(t *testing.T, classRoomID string, mods ...func(*NewExamSession)) ExamSession {
	t.Helper()
	now := time.Now()
	ns := NewExamSession{
		ClassRoomID: classRoomID,
		ExamID:      uuid.NewString(),
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
	}
	for _, mod := range mods {
		mod(&ns)
	}
	s, err := f.svc.CreateSession(context.Background(), ns, "t1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func isValidationError(err error, cause error) bool {
	var vErr *core.ValidationError
	if !pkgerrors.As(err, &vErr) {
		return false
	}
	return cause == nil || vErr.Err == cause
}

func TestService_StartAttempt(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	s := f.activeSession(t, "c1")
	f.enroll("c1", "s1")

	att, err := f.svc.StartAttempt(ctx, s.ID, "s1", false)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}
	if att.AttemptNumber != 1 || att.Status != AttemptInProgress {
		t.Errorf("StartAttempt() = %+v, want attempt 1 in progress", att)
	}

	// non-retryable session admits a single attempt
	if _, err = f.svc.StartAttempt(ctx, s.ID, "s1", false); !isValidationError(err, ErrMaxAttemptsReached) {
		t.Errorf("StartAttempt() error = %v, want %v", err, ErrMaxAttemptsReached)
	}

	// not enrolled
	if _, err = f.svc.StartAttempt(ctx, s.ID, "s2", false); !isValidationError(err, ErrNotEnrolled) {
		t.Errorf("StartAttempt() error = %v, want %v", err, ErrNotEnrolled)
	}

	// admins skip the enrollment check
	if _, err = f.svc.StartAttempt(ctx, s.ID, "admin", true); err != nil {
		t.Errorf("StartAttempt() as admin error = %v", err)
	}

	// unknown session
	if _, err = f.svc.StartAttempt(ctx, "nope", "s1", false); err != ErrSessionNotFound {
		t.Errorf("StartAttempt() error = %v, want %v", err, ErrSessionNotFound)
	}
}

func TestService_StartAttempt_retryBudget(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	s := f.activeSession(t, "c1", func(ns *NewExamSession) {
		ns.IsRetryable = true
		ns.RetryTimes = 1
	})
	f.enroll("c1", "s1")

	// first attempt plus one retry
	for i := 1; i <= 2; i++ {
		att, err := f.svc.StartAttempt(ctx, s.ID, "s1", false)
		if err != nil {
			t.Fatalf("StartAttempt() #%d error = %v", i, err)
		}
		if att.AttemptNumber != i {
			t.Errorf("AttemptNumber = %d, want %d", att.AttemptNumber, i)
		}
	}
	if _, err := f.svc.StartAttempt(ctx, s.ID, "s1", false); !isValidationError(err, ErrMaxAttemptsReached) {
		t.Errorf("StartAttempt() #3 error = %v, want %v", err, ErrMaxAttemptsReached)
	}

	// the budget is per student
	f.enroll("c1", "s2")
	if _, err := f.svc.StartAttempt(ctx, s.ID, "s2", false); err != nil {
		t.Errorf("StartAttempt() other student error = %v", err)
	}
}

func TestService_StartAttempt_sessionWindow(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	f.enroll("c1", "s1")

	tests := []struct {
		name string
		mod  func(*NewExamSession)
	}{
		{name: "upcoming", mod: func(ns *NewExamSession) {
			ns.StartTime = time.Now().Add(time.Hour)
			ns.EndTime = time.Now().Add(2 * time.Hour)
		}},
		{name: "ended", mod: func(ns *NewExamSession) {
			ns.StartTime = time.Now().Add(-2 * time.Hour)
			ns.EndTime = time.Now().Add(-time.Hour)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.activeSession(t, "c1", tt.mod)
			if _, err := f.svc.StartAttempt(ctx, s.ID, "s1", false); !isValidationError(err, ErrSessionNotActive) {
				t.Errorf("StartAttempt() error = %v, want %v", err, ErrSessionNotActive)
			}
		})
	}

	t.Run("paused mid-window", func(t *testing.T) {
		s := f.activeSession(t, "c1")
		off := false
		us := UpdateExamSession{IsActive: &off}
		if err := us.Validate(s); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if _, err := f.svc.UpdateSession(ctx, s.ID, us, "t1"); err != nil {
			t.Fatalf("UpdateSession() error = %v", err)
		}
		if _, err := f.svc.StartAttempt(ctx, s.ID, "s1", false); !isValidationError(err, ErrSessionNotActive) {
			t.Errorf("StartAttempt() error = %v, want %v", err, ErrSessionNotActive)
		}
	})
}

func TestService_SaveAnswer(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	s := f.activeSession(t, "c1")
	f.enroll("c1", "s1")

	att, err := f.svc.StartAttempt(ctx, s.ID, "s1", false)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	qID := uuid.NewString()
	ans, err := f.svc.SaveAnswer(ctx, att.ID, "s1", SubmitAnswer{QuestionID: qID, SelectedAnswerIDs: []string{"a1"}})
	if err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if ans.SelectedAnswerIDs != "a1" {
		t.Errorf("SelectedAnswerIDs = %q, want %q", ans.SelectedAnswerIDs, "a1")
	}

	// saving again for the same question replaces the answer
	if _, err = f.svc.SaveAnswer(ctx, att.ID, "s1", SubmitAnswer{QuestionID: qID, SelectedAnswerIDs: []string{"a2"}}); err != nil {
		t.Fatalf("SaveAnswer() again error = %v", err)
	}
	loaded, err := f.repo.GetAttemptByID(ctx, att.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() error = %v", err)
	}
	if len(loaded.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(loaded.Answers))
	}
	if loaded.Answers[0].SelectedAnswerIDs != "a2" {
		t.Errorf("SelectedAnswerIDs = %q, want %q", loaded.Answers[0].SelectedAnswerIDs, "a2")
	}

	// only the owner may answer
	if _, err = f.svc.SaveAnswer(ctx, att.ID, "s2", SubmitAnswer{QuestionID: qID}); !isValidationError(err, ErrNotAttemptOwner) {
		t.Errorf("SaveAnswer() error = %v, want %v", err, ErrNotAttemptOwner)
	}
}

func TestService_SubmitAttempt(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()

	examID := uuid.NewString()
	f.exams.exams[examID] = Exam{
		ID: examID,
		Questions: []Question{
			{ID: "q1", Type: QuestionMultipleChoice, Points: 1, Answers: []Answer{
				{ID: "a1", IsCorrect: true}, {ID: "a2"},
			}},
			{ID: "q2", Type: QuestionFillInTheBlank, Points: 2, Answers: []Answer{
				{ID: "b1", Content: "mitochondria", IsCorrect: true},
			}},
		},
	}
	s := f.activeSession(t, "c1", func(ns *NewExamSession) { ns.ExamID = examID })
	f.enroll("c1", "s1")

	att, err := f.svc.StartAttempt(ctx, s.ID, "s1", false)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	// one answer saved along the way, one sent with the submission
	if _, err = f.svc.SaveAnswer(ctx, att.ID, "s1", SubmitAnswer{QuestionID: "q1", SelectedAnswerIDs: []string{"a1"}}); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	submitted, err := f.svc.SubmitAttempt(ctx, att.ID, "s1", []SubmitAnswer{
		{QuestionID: "q2", AnswerText: "Mitochondria"},
	})
	if err != nil {
		t.Fatalf("SubmitAttempt() error = %v", err)
	}

	if submitted.Status != AttemptSubmitted {
		t.Errorf("Status = %s, want %s", submitted.Status, AttemptSubmitted)
	}
	if submitted.SubmittedAt.IsZero() {
		t.Error("SubmittedAt not set")
	}
	if submitted.Score != 3 || submitted.TotalPoints != 3 {
		t.Errorf("Score = %v/%v, want 3/3", submitted.Score, submitted.TotalPoints)
	}

	// submitting twice fails
	if _, err = f.svc.SubmitAttempt(ctx, att.ID, "s1", nil); !isValidationError(err, ErrAlreadySubmitted) {
		t.Errorf("SubmitAttempt() again error = %v, want %v", err, ErrAlreadySubmitted)
	}

	// answering a finalized attempt fails
	if _, err = f.svc.SaveAnswer(ctx, att.ID, "s1", SubmitAnswer{QuestionID: "q1"}); !isValidationError(err, ErrAlreadySubmitted) {
		t.Errorf("SaveAnswer() error = %v, want %v", err, ErrAlreadySubmitted)
	}
}

func TestService_TimeOutAttempt(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()

	examID := uuid.NewString()
	f.exams.exams[examID] = Exam{
		ID: examID,
		Questions: []Question{
			{ID: "q1", Type: QuestionMultipleChoice, Points: 1, Answers: []Answer{{ID: "a1", IsCorrect: true}}},
		},
	}
	s := f.activeSession(t, "c1", func(ns *NewExamSession) { ns.ExamID = examID })
	f.enroll("c1", "s1")

	att, err := f.svc.StartAttempt(ctx, s.ID, "s1", false)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	timedOut, err := f.svc.TimeOutAttempt(ctx, att.ID)
	if err != nil {
		t.Fatalf("TimeOutAttempt() error = %v", err)
	}
	if timedOut.Status != AttemptTimedOut {
		t.Errorf("Status = %s, want %s", timedOut.Status, AttemptTimedOut)
	}
	// the unanswered question is still graded into the total
	if timedOut.TotalPoints != 1 || timedOut.Score != 0 {
		t.Errorf("Score = %v/%v, want 0/1", timedOut.Score, timedOut.TotalPoints)
	}
}

func TestService_StudentSessions(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	f.enroll("c1", "s1")

	examID := uuid.NewString()
	now := time.Now()

	// two sessions for the same exam; the most recently created wins
	old := f.activeSession(t, "c1", func(ns *NewExamSession) { ns.ExamID = examID })
	f.repo.sessions[old.ID].CreatedAt = now.Add(-time.Hour)
	latest := f.activeSession(t, "c1", func(ns *NewExamSession) {
		ns.ExamID = examID
		ns.StartTime = now.Add(-30 * time.Minute)
		ns.EndTime = now.Add(2 * time.Hour)
	})
	// a session for another exam, with an earlier window
	other := f.activeSession(t, "c1", func(ns *NewExamSession) {
		ns.StartTime = now.Add(-2 * time.Hour)
		ns.EndTime = now.Add(time.Hour)
	})
	// another classroom's session is invisible
	f.activeSession(t, "c2")

	sessions, err := f.svc.StudentSessions(ctx, "c1", "s1")
	if err != nil {
		t.Fatalf("StudentSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	// newest window first
	if sessions[0].ID != latest.ID || sessions[1].ID != other.ID {
		t.Errorf("sessions = [%s, %s], want [%s, %s]", sessions[0].ID, sessions[1].ID, latest.ID, other.ID)
	}

	// requires an active enrollment
	if _, err = f.svc.StudentSessions(ctx, "c1", "s2"); !isValidationError(err, ErrNotEnrolled) {
		t.Errorf("StudentSessions() error = %v, want %v", err, ErrNotEnrolled)
	}
}

func TestService_DeleteByClassRoomAndExam(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()

	examID := uuid.NewString()
	s1 := f.activeSession(t, "c1", func(ns *NewExamSession) { ns.ExamID = examID })
	s2 := f.activeSession(t, "c1", func(ns *NewExamSession) { ns.ExamID = examID })
	kept := f.activeSession(t, "c1")

	if err := f.svc.DeleteByClassRoomAndExam(ctx, "c1", examID); err != nil {
		t.Fatalf("DeleteByClassRoomAndExam() error = %v", err)
	}
	for _, id := range []string{s1.ID, s2.ID} {
		if _, err := f.svc.GetSession(ctx, id); err != ErrSessionNotFound {
			t.Errorf("GetSession(%s) error = %v, want %v", id, err, ErrSessionNotFound)
		}
	}
	if _, err := f.svc.GetSession(ctx, kept.ID); err != nil {
		t.Errorf("GetSession(kept) error = %v", err)
	}

	// no-op when nothing matches
	if err := f.svc.DeleteByClassRoomAndExam(ctx, "c1", uuid.NewString()); err != nil {
		t.Errorf("DeleteByClassRoomAndExam() no match error = %v", err)
	}
}

func TestService_SessionResults(t *testing.T) {
	ctx := context.Background()
	f := serviceSetup()
	s := f.activeSession(t, "c1", func(ns *NewExamSession) {
		ns.IsRetryable = true
		ns.RetryTimes = 2
	})
	f.enroll("c1", "s1")
	f.enroll("c1", "s2")
	f.directory.names["s1"] = "Binh"
	f.directory.names["s2"] = "An"

	for _, studentID := range []string{"s1", "s1", "s2"} {
		if _, err := f.svc.StartAttempt(ctx, s.ID, studentID, false); err != nil {
			t.Fatalf("StartAttempt(%s) error = %v", studentID, err)
		}
	}
	// a student missing from the directory
	f.enroll("c1", "s3")
	if _, err := f.svc.StartAttempt(ctx, s.ID, "s3", false); err != nil {
		t.Fatalf("StartAttempt(s3) error = %v", err)
	}

	results, err := f.svc.SessionResults(ctx, s.ID)
	if err != nil {
		t.Fatalf("SessionResults() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}

	// sorted by student name, then attempt number
	wantNames := []string{"An", "Binh", "Binh", "Unknown Student"}
	for i, want := range wantNames {
		if results[i].StudentName != want {
			t.Errorf("results[%d].StudentName = %s, want %s", i, results[i].StudentName, want)
		}
	}
	if results[1].AttemptNumber != 1 || results[2].AttemptNumber != 2 {
		t.Errorf("attempt numbers = %d, %d; want 1, 2", results[1].AttemptNumber, results[2].AttemptNumber)
	}

	if _, err = f.svc.SessionResults(ctx, "nope"); err != ErrSessionNotFound {
		t.Errorf("SessionResults() error = %v, want %v", err, ErrSessionNotFound)
	}
}
