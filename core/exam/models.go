package exam

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/frogedu/backend/core"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded" // reserved for manual essay grading
	AttemptTimedOut   AttemptStatus = "timed_out"
)

var (
	ErrSessionNotFound    = errors.New("exam session not found")
	ErrAttemptNotFound    = errors.New("exam attempt not found")
	ErrExamNotFound       = errors.New("exam not found")
	ErrNotEnrolled        = errors.New("you are not enrolled in this class")
	ErrSessionNotActive   = errors.New("this exam session is not currently active")
	ErrMaxAttemptsReached = errors.New("you have reached the maximum number of attempts for this exam")
	ErrNotAttemptOwner    = errors.New("you can only submit your own attempt")
	ErrAlreadySubmitted   = errors.New("this attempt has already been submitted")
)

// ExamSession schedules an exam for a classroom within a time window.
type ExamSession struct {
	ID                  string      `json:"id"`
	ClassRoomID         string      `json:"classroom_id"`
	ExamID              string      `json:"exam_id"`
	StartTime           time.Time   `json:"start_time"`
	EndTime             time.Time   `json:"end_time"`
	RetryTimes          int         `json:"retry_times"`
	IsRetryable         bool        `json:"is_retryable"`
	ShuffleQuestions    bool        `json:"shuffle_questions"`
	ShuffleAnswers      bool        `json:"shuffle_answers"`
	AllowPartialScoring bool        `json:"allow_partial_scoring"`
	IsActive            bool        `json:"is_active"`
	Matrix              *ExamMatrix `json:"matrix,omitempty"`
	CreatedBy           string      `json:"created_by"`
	UpdatedBy           string      `json:"updated_by"`
	CreatedAt           time.Time   `json:"created_at"` // UTC
	UpdatedAt           time.Time   `json:"updated_at"` // UTC
}

func (s *ExamSession) IsUpcoming(now time.Time) bool {
	return now.Before(s.StartTime)
}

func (s *ExamSession) HasEnded(now time.Time) bool {
	return now.After(s.EndTime)
}

// IsCurrentlyActive requires both the schedule window and the IsActive switch.
// A cleared switch mid-window pauses the session: no new attempts start, but
// in-flight attempts may still be submitted.
func (s *ExamSession) IsCurrentlyActive(now time.Time) bool {
	return s.IsActive && !s.IsUpcoming(now) && !s.HasEnded(now)
}

// CanStartAttempt applies the retry budget: a retryable session admits
// RetryTimes retries on top of the first attempt; a non-retryable one admits
// a single attempt.
func (s *ExamSession) CanStartAttempt(attemptsSoFar int) bool {
	if !s.IsRetryable {
		return attemptsSoFar == 0
	}
	return attemptsSoFar <= s.RetryTimes
}

// StudentAnswer is one answer within an attempt; grading fills Score,
// IsCorrect and IsPartial.
type StudentAnswer struct {
	ID                string  `json:"id"`
	AttemptID         string  `json:"attempt_id"`
	QuestionID        string  `json:"question_id"`
	SelectedAnswerIDs string  `json:"selected_answer_ids"` // comma-joined
	AnswerText        string  `json:"answer_text"`
	Score             float64 `json:"score"`
	IsCorrect         bool    `json:"is_correct"`
	IsPartial         bool    `json:"is_partial"`
}

func (a *StudentAnswer) SelectedIDs() []string {
	if a.SelectedAnswerIDs == "" {
		return nil
	}
	parts := strings.Split(a.SelectedAnswerIDs, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// StudentExamAttempt is one sitting of a session's exam by a student.
type StudentExamAttempt struct {
	ID            string        `json:"id"`
	ExamSessionID string        `json:"exam_session_id"`
	StudentID     string        `json:"student_id"`
	AttemptNumber int           `json:"attempt_number"` // 1-based
	StartedAt     time.Time     `json:"started_at"`     // UTC
	SubmittedAt   time.Time     `json:"submitted_at"`   // UTC; zero until finalized
	Score         float64       `json:"score"`
	TotalPoints   float64       `json:"total_points"`
	Status        AttemptStatus `json:"status"`

	Answers []StudentAnswer `json:"answers,omitempty"`
}

func (a *StudentExamAttempt) IsCompleted() bool {
	return a.Status != AttemptInProgress
}

// ScorePercentage is the score as a percentage of total points, rounded to
// 2 decimals. A fresh or empty attempt is 0, never NaN.
func (a *StudentExamAttempt) ScorePercentage() float64 {
	if a.TotalPoints <= 0 {
		return 0
	}
	return round2(a.Score / a.TotalPoints * 100)
}

func (a *StudentExamAttempt) findAnswer(questionID string) *StudentAnswer {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// NewExamSession contains information needed to schedule an ExamSession.
type NewExamSession struct {
	ClassRoomID         string      `json:"classroom_id" validate:"required,uuid4"`
	ExamID              string      `json:"exam_id" validate:"required,uuid4"`
	StartTime           time.Time   `json:"start_time" validate:"required"`
	EndTime             time.Time   `json:"end_time" validate:"required,gtfield=StartTime"`
	RetryTimes          int         `json:"retry_times" validate:"gte=0"`
	IsRetryable         bool        `json:"is_retryable"`
	ShuffleQuestions    bool        `json:"shuffle_questions"`
	ShuffleAnswers      bool        `json:"shuffle_answers"`
	AllowPartialScoring bool        `json:"allow_partial_scoring"`
	Matrix              *ExamMatrix `json:"matrix"`
}

func (ns *NewExamSession) Validate() error {
	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	if ns.Matrix != nil {
		return ns.Matrix.Validate()
	}
	return nil
}

// UpdateExamSession defines what information may be provided to modify an existing ExamSession.
type UpdateExamSession struct {
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	RetryTimes          *int      `json:"retry_times" validate:"omitempty"`
	IsRetryable         *bool     `json:"is_retryable"`
	ShuffleQuestions    *bool     `json:"shuffle_questions"`
	ShuffleAnswers      *bool     `json:"shuffle_answers"`
	AllowPartialScoring *bool     `json:"allow_partial_scoring"`
	IsActive            *bool     `json:"is_active"`
}

func (us *UpdateExamSession) Validate(orig ExamSession) error {
	if us.StartTime.IsZero() {
		us.StartTime = orig.StartTime
	}
	if us.EndTime.IsZero() {
		us.EndTime = orig.EndTime
	}
	if !us.EndTime.After(us.StartTime) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_time", Error: "end_time must be after start_time"})
	}
	if us.RetryTimes != nil && *us.RetryTimes < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "retry_times", Error: "retry_times cannot be negative"})
	}
	return nil
}

// SubmitAnswer is one answer as sent by the student client.
type SubmitAnswer struct {
	QuestionID        string   `json:"question_id" validate:"required,uuid4"`
	SelectedAnswerIDs []string `json:"selected_answer_ids"`
	AnswerText        string   `json:"answer_text"`
}

func (sa *SubmitAnswer) Validate() error {
	sa.AnswerText = core.CleanString(sa.AnswerText)
	return core.Validate.Struct(sa)
}

func (sa *SubmitAnswer) joinedIDs() string {
	return strings.Join(sa.SelectedAnswerIDs, ",")
}

type QueryFilter struct {
	ClassRoomID string `query:"classroom_id"`
	ExamID      string `query:"exam_id"`
	CreatedBy   string `query:"created_by"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.ClassRoomID == "" && qf.ExamID == "" && qf.CreatedBy == ""
}
