package exam

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionMultipleAnswer QuestionType = "multiple_answer"
	QuestionFillInTheBlank QuestionType = "fill_in_the_blank"
	QuestionEssay          QuestionType = "essay"
)

type (
	// Exam is the exam content with its answer key, as served by the exam bank.
	Exam struct {
		ID        string     `json:"id"`
		Questions []Question `json:"questions"`
	}

	Question struct {
		ID      string       `json:"id"`
		Type    QuestionType `json:"type"`
		Points  float64      `json:"points"`
		Answers []Answer     `json:"answers"`
	}

	Answer struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		IsCorrect bool   `json:"is_correct"`
	}

	// ExamClient fetches exam content including the answer key.
	ExamClient interface {
		GetExamWithAnswers(ctx context.Context, examID string) (Exam, error)
	}
)

func (q *Question) correctAnswerIDs() map[string]bool {
	correct := make(map[string]bool)
	for i := range q.Answers {
		if q.Answers[i].IsCorrect {
			correct[q.Answers[i].ID] = true
		}
	}
	return correct
}

func (q *Question) correctText() string {
	for i := range q.Answers {
		if q.Answers[i].IsCorrect {
			return q.Answers[i].Content
		}
	}
	return ""
}

// gradeAttempt grades every non-essay question of the exam against the
// attempt's answers, fills per-answer scores and the attempt totals.
// Questions the student left unanswered get an empty answer graded 0.
// Essay questions are excluded from automatic scoring entirely.
func gradeAttempt(att *StudentExamAttempt, exam Exam, allowPartial bool) {
	var total, score float64
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if q.Type == QuestionEssay {
			continue
		}
		total += q.Points

		ans := att.findAnswer(q.ID)
		if ans == nil {
			// filler rows are persisted as-is; they need a real primary key
			att.Answers = append(att.Answers, StudentAnswer{
				ID:         uuid.NewString(),
				AttemptID:  att.ID,
				QuestionID: q.ID,
			})
			ans = &att.Answers[len(att.Answers)-1]
		}
		gradeAnswer(q, ans, allowPartial)
		score += ans.Score
	}
	att.Score = round2(score)
	att.TotalPoints = total
}

func gradeAnswer(q *Question, ans *StudentAnswer, allowPartial bool) {
	ans.Score = 0
	ans.IsCorrect = false
	ans.IsPartial = false

	switch q.Type {
	case QuestionFillInTheBlank:
		want := q.correctText()
		if want != "" && strings.EqualFold(strings.TrimSpace(ans.AnswerText), strings.TrimSpace(want)) {
			ans.Score = q.Points
			ans.IsCorrect = true
		}

	case QuestionMultipleChoice, QuestionTrueFalse:
		selected := ans.SelectedIDs()
		if len(selected) == 1 && q.correctAnswerIDs()[selected[0]] {
			ans.Score = q.Points
			ans.IsCorrect = true
		}

	case QuestionMultipleAnswer:
		gradeMultipleAnswer(q, ans, allowPartial)
	}
}

// gradeMultipleAnswer scores a multi-select question:
// exact match earns full credit; otherwise, when partial scoring is allowed,
// wrong picks cancel right picks so selecting everything scores zero.
func gradeMultipleAnswer(q *Question, ans *StudentAnswer, allowPartial bool) {
	correct := q.correctAnswerIDs()
	if len(correct) == 0 {
		return
	}

	var correctSel, incorrectSel int
	for _, id := range ans.SelectedIDs() {
		if correct[id] {
			correctSel++
		} else {
			incorrectSel++
		}
	}

	if correctSel == len(correct) && incorrectSel == 0 {
		ans.Score = q.Points
		ans.IsCorrect = true
		return
	}
	if correctSel == 0 || !allowPartial {
		return
	}

	earned := float64(correctSel-incorrectSel) / float64(len(correct))
	if earned < 0 {
		earned = 0
	}
	ans.Score = round2(q.Points * earned)
	ans.IsPartial = ans.Score > 0
}
