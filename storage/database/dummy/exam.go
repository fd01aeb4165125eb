package dummydb

import (
	"context"
	"sort"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/exam"
)

type examRepository struct {
	sessions *sessionTable
	attempts *attemptTable
	answers  *answerTable
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{
		sessions: db.session,
		attempts: db.attempt,
		answers:  db.answer,
	}
}

func (repo *examRepository) CreateExamSession(_ context.Context, s exam.ExamSession) (exam.ExamSession, error) {
	repo.sessions.Lock()
	defer repo.sessions.Unlock()

	s.ID = newID(s.ID)
	repo.sessions.table[s.ID] = &s
	return s, nil
}

func (repo *examRepository) GetExamSessionByID(_ context.Context, id string) (exam.ExamSession, error) {
	repo.sessions.RLock()
	defer repo.sessions.RUnlock()

	if s, ok := repo.sessions.table[id]; ok {
		return *s, nil
	}
	return exam.ExamSession{}, exam.ErrSessionNotFound
}

func (repo *examRepository) FilterExamSessions(_ context.Context, filter exam.QueryFilter, _ ...core.DBOrdering) ([]exam.ExamSession, error) {
	repo.sessions.RLock()
	defer repo.sessions.RUnlock()

	var sessions []exam.ExamSession
	for _, s := range repo.sessions.table {
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
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

func (repo *examRepository) UpdateExamSession(_ context.Context, s exam.ExamSession) (exam.ExamSession, error) {
	repo.sessions.Lock()
	defer repo.sessions.Unlock()

	if _, ok := repo.sessions.table[s.ID]; !ok {
		return exam.ExamSession{}, exam.ErrSessionNotFound
	}
	repo.sessions.table[s.ID] = &s
	return s, nil
}

func (repo *examRepository) DeleteExamSessionsByID(_ context.Context, ids ...string) error {
	repo.sessions.Lock()
	defer repo.sessions.Unlock()
	repo.attempts.Lock()
	defer repo.attempts.Unlock()
	repo.answers.Lock()
	defer repo.answers.Unlock()

	for _, id := range ids {
		delete(repo.sessions.table, id)
		for attID, att := range repo.attempts.table {
			if att.ExamSessionID != id {
				continue
			}
			for ansID, ans := range repo.answers.table {
				if ans.AttemptID == attID {
					delete(repo.answers.table, ansID)
				}
			}
			delete(repo.attempts.table, attID)
		}
	}
	return nil
}

func (repo *examRepository) loadAnswers(att exam.StudentExamAttempt) exam.StudentExamAttempt {
	att.Answers = nil
	for _, ans := range repo.answers.table {
		if ans.AttemptID == att.ID {
			att.Answers = append(att.Answers, *ans)
		}
	}
	sort.Slice(att.Answers, func(i, j int) bool { return att.Answers[i].QuestionID < att.Answers[j].QuestionID })
	return att
}

func (repo *examRepository) CreateAttempt(_ context.Context, att exam.StudentExamAttempt) (exam.StudentExamAttempt, error) {
	repo.attempts.Lock()
	defer repo.attempts.Unlock()

	att.ID = newID(att.ID)
	stored := att
	stored.Answers = nil
	repo.attempts.table[att.ID] = &stored
	return att, nil
}

func (repo *examRepository) GetAttemptByID(_ context.Context, id string) (exam.StudentExamAttempt, error) {
	repo.attempts.RLock()
	defer repo.attempts.RUnlock()
	repo.answers.RLock()
	defer repo.answers.RUnlock()

	if att, ok := repo.attempts.table[id]; ok {
		return repo.loadAnswers(*att), nil
	}
	return exam.StudentExamAttempt{}, exam.ErrAttemptNotFound
}

func (repo *examRepository) GetAttemptsBySession(_ context.Context, sessionID string) ([]exam.StudentExamAttempt, error) {
	repo.attempts.RLock()
	defer repo.attempts.RUnlock()
	repo.answers.RLock()
	defer repo.answers.RUnlock()

	var attempts []exam.StudentExamAttempt
	for _, att := range repo.attempts.table {
		if att.ExamSessionID == sessionID {
			attempts = append(attempts, repo.loadAnswers(*att))
		}
	}
	return attempts, nil
}

func (repo *examRepository) CountAttempts(_ context.Context, sessionID, studentID string) (int, error) {
	repo.attempts.RLock()
	defer repo.attempts.RUnlock()

	var count int
	for _, att := range repo.attempts.table {
		if att.ExamSessionID == sessionID && att.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (repo *examRepository) UpsertAnswer(_ context.Context, ans exam.StudentAnswer) (exam.StudentAnswer, error) {
	repo.answers.Lock()
	defer repo.answers.Unlock()

	// replace by (attempt, question)
	for _, existing := range repo.answers.table {
		if existing.AttemptID == ans.AttemptID && existing.QuestionID == ans.QuestionID {
			ans.ID = existing.ID
			repo.answers.table[ans.ID] = &ans
			return ans, nil
		}
	}
	ans.ID = newID(ans.ID)
	repo.answers.table[ans.ID] = &ans
	return ans, nil
}

func (repo *examRepository) UpdateAttempt(_ context.Context, att exam.StudentExamAttempt) (exam.StudentExamAttempt, error) {
	repo.attempts.Lock()
	defer repo.attempts.Unlock()
	repo.answers.Lock()
	defer repo.answers.Unlock()

	if _, ok := repo.attempts.table[att.ID]; !ok {
		return exam.StudentExamAttempt{}, exam.ErrAttemptNotFound
	}
	stored := att
	stored.Answers = nil
	repo.attempts.table[att.ID] = &stored

	for i := range att.Answers {
		ans := att.Answers[i]
		ans.AttemptID = att.ID
		var replaced bool
		for _, existing := range repo.answers.table {
			if existing.AttemptID == ans.AttemptID && existing.QuestionID == ans.QuestionID {
				ans.ID = existing.ID
				repo.answers.table[ans.ID] = &ans
				replaced = true
				break
			}
		}
		if !replaced {
			ans.ID = newID(ans.ID)
			repo.answers.table[ans.ID] = &ans
		}
	}
	return att, nil
}
