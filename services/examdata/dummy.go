package examdatasvc

import (
	"context"
	"sync"

	"github.com/frogedu/backend/core/exam"
)

// DummyClient serves exams from memory; used in tests and local dev.
type DummyClient struct {
	mu    sync.RWMutex
	exams map[string]exam.Exam
}

var _ exam.ExamClient = (*DummyClient)(nil)

func NewDummyClient(exams ...exam.Exam) *DummyClient {
	c := &DummyClient{exams: make(map[string]exam.Exam, len(exams))}
	for _, ex := range exams {
		c.exams[ex.ID] = ex
	}
	return c
}

func (c *DummyClient) Add(ex exam.Exam) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exams[ex.ID] = ex
}

func (c *DummyClient) GetExamWithAnswers(_ context.Context, examID string) (exam.Exam, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ex, ok := c.exams[examID]; ok {
		return ex, nil
	}
	return exam.Exam{}, exam.ErrExamNotFound
}
