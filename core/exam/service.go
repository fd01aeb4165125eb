package exam

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/frogedu/backend/core"
)

type (
	Repository interface {
		CreateExamSession(ctx context.Context, s ExamSession) (ExamSession, error)
		GetExamSessionByID(ctx context.Context, id string) (ExamSession, error)
		FilterExamSessions(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]ExamSession, error)
		UpdateExamSession(ctx context.Context, s ExamSession) (ExamSession, error)
		// DeleteExamSessionsByID also drops the sessions' attempts and answers.
		DeleteExamSessionsByID(ctx context.Context, ids ...string) error

		CreateAttempt(ctx context.Context, att StudentExamAttempt) (StudentExamAttempt, error)
		// GetAttemptByID loads the attempt with its answers.
		GetAttemptByID(ctx context.Context, id string) (StudentExamAttempt, error)
		GetAttemptsBySession(ctx context.Context, sessionID string) ([]StudentExamAttempt, error)
		CountAttempts(ctx context.Context, sessionID, studentID string) (int, error)
		// UpsertAnswer inserts or replaces the attempt's answer for the question.
		UpsertAnswer(ctx context.Context, ans StudentAnswer) (StudentAnswer, error)
		// UpdateAttempt persists the attempt row and all its graded answers.
		UpdateAttempt(ctx context.Context, att StudentExamAttempt) (StudentExamAttempt, error)
	}

	// Enrollments reports whether a student holds an active enrollment.
	Enrollments interface {
		IsStudentEnrolled(ctx context.Context, classRoomID, studentID string) (bool, error)
	}

	Service struct {
		repo        Repository
		exams       ExamClient
		enrollments Enrollments
		directory   core.UserDirectory
	}
)

var nowFunc = time.Now // mockable

func NewService(repo Repository, exams ExamClient, enrollments Enrollments, directory core.UserDirectory) *Service {
	return &Service{repo: repo, exams: exams, enrollments: enrollments, directory: directory}
}

func (svc *Service) CreateSession(ctx context.Context, ns NewExamSession, createdBy string) (ExamSession, error) {
	now := nowFunc().UTC()
	s := ExamSession{
		ID:                  uuid.NewString(),
		ClassRoomID:         ns.ClassRoomID,
		ExamID:              ns.ExamID,
		StartTime:           ns.StartTime,
		EndTime:             ns.EndTime,
		RetryTimes:          ns.RetryTimes,
		IsRetryable:         ns.IsRetryable,
		ShuffleQuestions:    ns.ShuffleQuestions,
		ShuffleAnswers:      ns.ShuffleAnswers,
		AllowPartialScoring: ns.AllowPartialScoring,
		IsActive:            true,
		Matrix:              ns.Matrix,
		CreatedBy:           createdBy,
		UpdatedBy:           createdBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	return svc.repo.CreateExamSession(ctx, s)
}

func (svc *Service) GetSession(ctx context.Context, id string) (ExamSession, error) {
	return svc.repo.GetExamSessionByID(ctx, id)
}

func (svc *Service) QuerySessions(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]ExamSession, error) {
	return svc.repo.FilterExamSessions(ctx, *filter, ordering...)
}

func (svc *Service) UpdateSession(ctx context.Context, id string, us UpdateExamSession, updatedBy string) (ExamSession, error) {
	s, err := svc.repo.GetExamSessionByID(ctx, id)
	if err != nil {
		return ExamSession{}, err
	}

	s.StartTime = us.StartTime
	s.EndTime = us.EndTime
	if us.RetryTimes != nil {
		s.RetryTimes = *us.RetryTimes
	}
	if us.IsRetryable != nil {
		s.IsRetryable = *us.IsRetryable
	}
	if us.ShuffleQuestions != nil {
		s.ShuffleQuestions = *us.ShuffleQuestions
	}
	if us.ShuffleAnswers != nil {
		s.ShuffleAnswers = *us.ShuffleAnswers
	}
	if us.AllowPartialScoring != nil {
		s.AllowPartialScoring = *us.AllowPartialScoring
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	s.UpdatedBy = updatedBy
	s.UpdatedAt = nowFunc().UTC()

	return svc.repo.UpdateExamSession(ctx, s)
}

func (svc *Service) DeleteSessions(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteExamSessionsByID(ctx, ids...)
}

// DeleteByClassRoomAndExam removes every session scheduled for the pair;
// assignment removal cascades through here.
func (svc *Service) DeleteByClassRoomAndExam(ctx context.Context, classRoomID, examID string) error {
	sessions, err := svc.repo.FilterExamSessions(ctx, QueryFilter{ClassRoomID: classRoomID, ExamID: examID})
	if err != nil {
		return pkgerrors.Wrap(err, "filtering exam sessions")
	}
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sessions))
	for i := range sessions {
		ids = append(ids, sessions[i].ID)
	}
	return svc.repo.DeleteExamSessionsByID(ctx, ids...)
}

// StudentSessions is the canonical listing a student sees for a classroom:
// one session per exam (the most recently created wins), newest window first.
// Requires an active enrollment.
func (svc *Service) StudentSessions(ctx context.Context, classRoomID, studentID string) ([]ExamSession, error) {
	enrolled, err := svc.enrollments.IsStudentEnrolled(ctx, classRoomID, studentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return nil, core.NewValidationError(ErrNotEnrolled)
	}

	sessions, err := svc.repo.FilterExamSessions(ctx, QueryFilter{ClassRoomID: classRoomID})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]ExamSession, len(sessions))
	for _, s := range sessions {
		if prev, ok := latest[s.ExamID]; !ok || s.CreatedAt.After(prev.CreatedAt) {
			latest[s.ExamID] = s
		}
	}
	deduped := make([]ExamSession, 0, len(latest))
	for _, s := range latest {
		deduped = append(deduped, s)
	}
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].StartTime.After(deduped[j].StartTime) })
	return deduped, nil
}

// StartAttempt opens a new attempt for the student on a currently active
// session, within the retry budget. Admins skip the enrollment check.
func (svc *Service) StartAttempt(ctx context.Context, sessionID, studentID string, isAdmin bool) (StudentExamAttempt, error) {
	s, err := svc.repo.GetExamSessionByID(ctx, sessionID)
	if err != nil {
		return StudentExamAttempt{}, err
	}

	if !isAdmin {
		enrolled, err := svc.enrollments.IsStudentEnrolled(ctx, s.ClassRoomID, studentID)
		if err != nil {
			return StudentExamAttempt{}, pkgerrors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return StudentExamAttempt{}, core.NewValidationError(ErrNotEnrolled)
		}
	}

	now := nowFunc()
	if !s.IsCurrentlyActive(now) {
		return StudentExamAttempt{}, core.NewValidationError(ErrSessionNotActive)
	}

	attemptsSoFar, err := svc.repo.CountAttempts(ctx, s.ID, studentID)
	if err != nil {
		return StudentExamAttempt{}, pkgerrors.Wrap(err, "counting attempts")
	}
	if !s.CanStartAttempt(attemptsSoFar) {
		return StudentExamAttempt{}, core.NewValidationError(ErrMaxAttemptsReached)
	}

	att := StudentExamAttempt{
		ID:            uuid.NewString(),
		ExamSessionID: s.ID,
		StudentID:     studentID,
		AttemptNumber: attemptsSoFar + 1,
		StartedAt:     now.UTC(),
		Status:        AttemptInProgress,
	}
	return svc.repo.CreateAttempt(ctx, att)
}

// SaveAnswer attaches or replaces an answer on the student's in-progress attempt.
func (svc *Service) SaveAnswer(ctx context.Context, attemptID, studentID string, sa SubmitAnswer) (StudentAnswer, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return StudentAnswer{}, err
	}
	if att.StudentID != studentID {
		return StudentAnswer{}, core.NewValidationError(ErrNotAttemptOwner)
	}
	if att.IsCompleted() {
		return StudentAnswer{}, core.NewValidationError(ErrAlreadySubmitted)
	}

	ans := StudentAnswer{
		ID:                uuid.NewString(),
		AttemptID:         att.ID,
		QuestionID:        sa.QuestionID,
		SelectedAnswerIDs: sa.joinedIDs(),
		AnswerText:        sa.AnswerText,
	}
	return svc.repo.UpsertAnswer(ctx, ans)
}

// SubmitAttempt merges any answers sent with the submission, grades the whole
// attempt against the exam bank's answer key and finalizes it.
func (svc *Service) SubmitAttempt(ctx context.Context, attemptID, studentID string, answers []SubmitAnswer) (StudentExamAttempt, error) {
	return svc.finalizeAttempt(ctx, attemptID, &studentID, answers, AttemptSubmitted)
}

// TimeOutAttempt force-finalizes an attempt whose session window ran out;
// whatever answers are attached get graded.
func (svc *Service) TimeOutAttempt(ctx context.Context, attemptID string) (StudentExamAttempt, error) {
	return svc.finalizeAttempt(ctx, attemptID, nil, nil, AttemptTimedOut)
}

func (svc *Service) finalizeAttempt(
	ctx context.Context,
	attemptID string,
	studentID *string,
	answers []SubmitAnswer,
	status AttemptStatus,
) (StudentExamAttempt, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return StudentExamAttempt{}, err
	}
	if studentID != nil && att.StudentID != *studentID {
		return StudentExamAttempt{}, core.NewValidationError(ErrNotAttemptOwner)
	}
	if att.IsCompleted() {
		return StudentExamAttempt{}, core.NewValidationError(ErrAlreadySubmitted)
	}

	for i := range answers {
		sa := &answers[i]
		if ans := att.findAnswer(sa.QuestionID); ans != nil {
			ans.SelectedAnswerIDs = sa.joinedIDs()
			ans.AnswerText = sa.AnswerText
		} else {
			att.Answers = append(att.Answers, StudentAnswer{
				ID:                uuid.NewString(),
				AttemptID:         att.ID,
				QuestionID:        sa.QuestionID,
				SelectedAnswerIDs: sa.joinedIDs(),
				AnswerText:        sa.AnswerText,
			})
		}
	}

	s, err := svc.repo.GetExamSessionByID(ctx, att.ExamSessionID)
	if err != nil {
		return StudentExamAttempt{}, pkgerrors.Wrap(err, "loading exam session")
	}
	exam, err := svc.exams.GetExamWithAnswers(ctx, s.ExamID)
	if err != nil {
		return StudentExamAttempt{}, pkgerrors.Wrap(err, "fetching exam with answers")
	}

	gradeAttempt(&att, exam, s.AllowPartialScoring)
	att.Status = status
	att.SubmittedAt = nowFunc().UTC()

	return svc.repo.UpdateAttempt(ctx, att)
}

// AttemptResult decorates an attempt for the teacher's results view.
type AttemptResult struct {
	StudentExamAttempt
	StudentName     string  `json:"student_name"`
	ScorePercentage float64 `json:"score_percentage"`
}

// SessionResults lists all attempts of a session with student display names,
// sorted by name then attempt number.
func (svc *Service) SessionResults(ctx context.Context, sessionID string) ([]AttemptResult, error) {
	if _, err := svc.repo.GetExamSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	attempts, err := svc.repo.GetAttemptsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(attempts))
	seen := make(map[string]bool, len(attempts))
	for i := range attempts {
		if !seen[attempts[i].StudentID] {
			seen[attempts[i].StudentID] = true
			ids = append(ids, attempts[i].StudentID)
		}
	}
	names, err := svc.directory.DisplayNames(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolving student names")
	}

	results := make([]AttemptResult, 0, len(attempts))
	for _, att := range attempts {
		name, ok := names[att.StudentID]
		if !ok {
			name = "Unknown Student"
		}
		results = append(results, AttemptResult{
			StudentExamAttempt: att,
			StudentName:        name,
			ScorePercentage:    att.ScorePercentage(),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].StudentName != results[j].StudentName {
			return results[i].StudentName < results[j].StudentName
		}
		return results[i].AttemptNumber < results[j].AttemptNumber
	})
	return results, nil
}
