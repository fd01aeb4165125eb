package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/exam"
)

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) exam.Repository {
	return &examRepository{db: db}
}

type sessionRow struct {
	ID                  string    `db:"id"`
	ClassRoomID         string    `db:"classroom_id"`
	ExamID              string    `db:"exam_id"`
	StartTime           time.Time `db:"start_time"`
	EndTime             time.Time `db:"end_time"`
	RetryTimes          int       `db:"retry_times"`
	IsRetryable         bool      `db:"is_retryable"`
	ShuffleQuestions    bool      `db:"shuffle_questions"`
	ShuffleAnswers      bool      `db:"shuffle_answers"`
	AllowPartialScoring bool      `db:"allow_partial_scoring"`
	IsActive            bool      `db:"is_active"`
	Matrix              []byte    `db:"matrix"` // JSONB
	CreatedBy           string    `db:"created_by"`
	UpdatedBy           string    `db:"updated_by"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func newSessionRow(s exam.ExamSession) (sessionRow, error) {
	row := sessionRow{
		ID:                  s.ID,
		ClassRoomID:         s.ClassRoomID,
		ExamID:              s.ExamID,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		RetryTimes:          s.RetryTimes,
		IsRetryable:         s.IsRetryable,
		ShuffleQuestions:    s.ShuffleQuestions,
		ShuffleAnswers:      s.ShuffleAnswers,
		AllowPartialScoring: s.AllowPartialScoring,
		IsActive:            s.IsActive,
		CreatedBy:           s.CreatedBy,
		UpdatedBy:           s.UpdatedBy,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	if s.Matrix != nil {
		data, err := json.Marshal(s.Matrix)
		if err != nil {
			return sessionRow{}, err
		}
		row.Matrix = data
	}
	return row, nil
}

func (row sessionRow) session() (exam.ExamSession, error) {
	s := exam.ExamSession{
		ID:                  row.ID,
		ClassRoomID:         row.ClassRoomID,
		ExamID:              row.ExamID,
		StartTime:           row.StartTime,
		EndTime:             row.EndTime,
		RetryTimes:          row.RetryTimes,
		IsRetryable:         row.IsRetryable,
		ShuffleQuestions:    row.ShuffleQuestions,
		ShuffleAnswers:      row.ShuffleAnswers,
		AllowPartialScoring: row.AllowPartialScoring,
		IsActive:            row.IsActive,
		CreatedBy:           row.CreatedBy,
		UpdatedBy:           row.UpdatedBy,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if len(row.Matrix) > 0 {
		var matrix exam.ExamMatrix
		if err := json.Unmarshal(row.Matrix, &matrix); err != nil {
			return exam.ExamSession{}, err
		}
		s.Matrix = &matrix
	}
	return s, nil
}

type attemptRow struct {
	ID            string    `db:"id"`
	ExamSessionID string    `db:"exam_session_id"`
	StudentID     string    `db:"student_id"`
	AttemptNumber int       `db:"attempt_number"`
	StartedAt     time.Time `db:"started_at"`
	SubmittedAt   null.Time `db:"submitted_at"`
	Score         float64   `db:"score"`
	TotalPoints   float64   `db:"total_points"`
	Status        string    `db:"status"`
}

func (row attemptRow) attempt() exam.StudentExamAttempt {
	att := exam.StudentExamAttempt{
		ID:            row.ID,
		ExamSessionID: row.ExamSessionID,
		StudentID:     row.StudentID,
		AttemptNumber: row.AttemptNumber,
		StartedAt:     row.StartedAt,
		Score:         row.Score,
		TotalPoints:   row.TotalPoints,
		Status:        exam.AttemptStatus(row.Status),
	}
	if row.SubmittedAt.Valid {
		att.SubmittedAt = row.SubmittedAt.Time
	}
	return att
}

type answerRow struct {
	ID                string  `db:"id"`
	AttemptID         string  `db:"attempt_id"`
	QuestionID        string  `db:"question_id"`
	SelectedAnswerIDs string  `db:"selected_answer_ids"`
	AnswerText        string  `db:"answer_text"`
	Score             float64 `db:"score"`
	IsCorrect         bool    `db:"is_correct"`
	IsPartial         bool    `db:"is_partial"`
}

func (row answerRow) answer() exam.StudentAnswer {
	return exam.StudentAnswer(row)
}

const (
	selectSession = `SELECT id, classroom_id, exam_id, start_time, end_time, retry_times, is_retryable, shuffle_questions, shuffle_answers, allow_partial_scoring, is_active, matrix, created_by, updated_by, created_at, updated_at FROM exam_session`
	selectAttempt = `SELECT id, exam_session_id, student_id, attempt_number, started_at, submitted_at, score, total_points, status FROM student_exam_attempt`
	selectAnswer  = `SELECT id, attempt_id, question_id, selected_answer_ids, answer_text, score, is_correct, is_partial FROM student_answer`
)

func (repo *examRepository) CreateExamSession(ctx context.Context, s exam.ExamSession) (exam.ExamSession, error) {
	row, err := newSessionRow(s)
	if err != nil {
		return exam.ExamSession{}, err
	}
	q := `
	INSERT INTO exam_session (id, classroom_id, exam_id, start_time, end_time, retry_times, is_retryable, shuffle_questions, shuffle_answers, allow_partial_scoring, is_active, matrix, created_by, updated_by, created_at, updated_at)
	VALUES (:id, :classroom_id, :exam_id, :start_time, :end_time, :retry_times, :is_retryable, :shuffle_questions, :shuffle_answers, :allow_partial_scoring, :is_active, :matrix, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return exam.ExamSession{}, err
	}
	return s, nil
}

func (repo *examRepository) GetExamSessionByID(ctx context.Context, id string) (exam.ExamSession, error) {
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, selectSession+` WHERE id = $1`, id); err != nil {
		return exam.ExamSession{}, trapNoRowsErr(err, exam.ErrSessionNotFound)
	}
	return row.session()
}

func (repo *examRepository) FilterExamSessions(ctx context.Context, filter exam.QueryFilter, ordering ...core.DBOrdering) ([]exam.ExamSession, error) {
	q := selectSession + ` WHERE 1=1`
	var args []interface{}

	if filter.ClassRoomID != "" {
		q += ` AND classroom_id = ?`
		args = append(args, filter.ClassRoomID)
	}
	if filter.ExamID != "" {
		q += ` AND exam_id = ?`
		args = append(args, filter.ExamID)
	}
	if filter.CreatedBy != "" {
		q += ` AND created_by = ?`
		args = append(args, filter.CreatedBy)
	}
	q += orderingClause(` ORDER BY created_at`, ordering...)

	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	sessions := make([]exam.ExamSession, 0, len(rows))
	for _, row := range rows {
		s, err := row.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (repo *examRepository) UpdateExamSession(ctx context.Context, s exam.ExamSession) (exam.ExamSession, error) {
	row, err := newSessionRow(s)
	if err != nil {
		return exam.ExamSession{}, err
	}
	q := `
	UPDATE exam_session
	SET start_time = :start_time, end_time = :end_time, retry_times = :retry_times, is_retryable = :is_retryable,
	    shuffle_questions = :shuffle_questions, shuffle_answers = :shuffle_answers,
	    allow_partial_scoring = :allow_partial_scoring, is_active = :is_active, matrix = :matrix,
	    updated_by = :updated_by, updated_at = :updated_at
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return exam.ExamSession{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exam.ExamSession{}, exam.ErrSessionNotFound
	}
	return s, nil
}

func (repo *examRepository) DeleteExamSessionsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	// attempts and answers cascade at the schema level
	q, args, err := sqlx.In(`DELETE FROM exam_session WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return err
}

func (repo *examRepository) CreateAttempt(ctx context.Context, att exam.StudentExamAttempt) (exam.StudentExamAttempt, error) {
	q := `
	INSERT INTO student_exam_attempt (id, exam_session_id, student_id, attempt_number, started_at, score, total_points, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.db.ExecContext(ctx, q,
		att.ID, att.ExamSessionID, att.StudentID, att.AttemptNumber, att.StartedAt, att.Score, att.TotalPoints, string(att.Status))
	if err != nil {
		return exam.StudentExamAttempt{}, err
	}
	return att, nil
}

func (repo *examRepository) loadAnswers(ctx context.Context, att exam.StudentExamAttempt) (exam.StudentExamAttempt, error) {
	var rows []answerRow
	q := selectAnswer + ` WHERE attempt_id = $1 ORDER BY question_id`
	if err := repo.db.SelectContext(ctx, &rows, q, att.ID); err != nil {
		return exam.StudentExamAttempt{}, err
	}
	for _, row := range rows {
		att.Answers = append(att.Answers, row.answer())
	}
	return att, nil
}

func (repo *examRepository) GetAttemptByID(ctx context.Context, id string) (exam.StudentExamAttempt, error) {
	var row attemptRow
	if err := repo.db.GetContext(ctx, &row, selectAttempt+` WHERE id = $1`, id); err != nil {
		return exam.StudentExamAttempt{}, trapNoRowsErr(err, exam.ErrAttemptNotFound)
	}
	return repo.loadAnswers(ctx, row.attempt())
}

func (repo *examRepository) GetAttemptsBySession(ctx context.Context, sessionID string) ([]exam.StudentExamAttempt, error) {
	var rows []attemptRow
	q := selectAttempt + ` WHERE exam_session_id = $1 ORDER BY started_at`
	if err := repo.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, err
	}
	attempts := make([]exam.StudentExamAttempt, 0, len(rows))
	for _, row := range rows {
		att, err := repo.loadAnswers(ctx, row.attempt())
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, att)
	}
	return attempts, nil
}

func (repo *examRepository) CountAttempts(ctx context.Context, sessionID, studentID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM student_exam_attempt WHERE exam_session_id = $1 AND student_id = $2`
	if err := repo.db.GetContext(ctx, &count, q, sessionID, studentID); err != nil {
		return 0, err
	}
	return count, nil
}

func (repo *examRepository) UpsertAnswer(ctx context.Context, ans exam.StudentAnswer) (exam.StudentAnswer, error) {
	q := `
	INSERT INTO student_answer (id, attempt_id, question_id, selected_answer_ids, answer_text, score, is_correct, is_partial)
	VALUES (:id, :attempt_id, :question_id, :selected_answer_ids, :answer_text, :score, :is_correct, :is_partial)
	ON CONFLICT (attempt_id, question_id) DO UPDATE
	SET selected_answer_ids = EXCLUDED.selected_answer_ids, answer_text = EXCLUDED.answer_text,
	    score = EXCLUDED.score, is_correct = EXCLUDED.is_correct, is_partial = EXCLUDED.is_partial`
	if _, err := repo.db.NamedExecContext(ctx, q, answerRow(ans)); err != nil {
		return exam.StudentAnswer{}, err
	}
	return ans, nil
}

func (repo *examRepository) UpdateAttempt(ctx context.Context, att exam.StudentExamAttempt) (exam.StudentExamAttempt, error) {
	q := `
	UPDATE student_exam_attempt
	SET submitted_at = $1, score = $2, total_points = $3, status = $4
	WHERE id = $5`
	submittedAt := null.NewTime(att.SubmittedAt, !att.SubmittedAt.IsZero())
	res, err := repo.db.ExecContext(ctx, q, submittedAt, att.Score, att.TotalPoints, string(att.Status), att.ID)
	if err != nil {
		return exam.StudentExamAttempt{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exam.StudentExamAttempt{}, exam.ErrAttemptNotFound
	}

	for i := range att.Answers {
		att.Answers[i].AttemptID = att.ID
		if _, err = repo.UpsertAnswer(ctx, att.Answers[i]); err != nil {
			return exam.StudentExamAttempt{}, err
		}
	}
	return att, nil
}
