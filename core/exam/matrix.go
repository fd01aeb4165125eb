package exam

import "github.com/frogedu/backend/core"

// Cognitive levels a matrix topic may target.
const (
	LevelKnowledge           = "knowledge"
	LevelComprehension       = "comprehension"
	LevelApplication         = "application"
	LevelAdvancedApplication = "advanced_application"
)

// MatrixTopic pins how many questions of one cognitive level a topic contributes.
type MatrixTopic struct {
	TopicID        string `json:"topic_id" validate:"required,uuid4"`
	CognitiveLevel string `json:"cognitive_level" validate:"required,oneof=knowledge comprehension application advanced_application"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
}

// ExamMatrix is the blueprint an exam is drawn from: per-topic, per-level
// question counts for a subject and grade.
type ExamMatrix struct {
	Name      string        `json:"name" validate:"required,notblank"`
	SubjectID string        `json:"subject_id" validate:"required,uuid4"`
	Grade     int           `json:"grade" validate:"required,gte=1,lte=5"`
	Topics    []MatrixTopic `json:"topics" validate:"required,min=1,dive"`
}

func (m *ExamMatrix) Validate() error {
	m.Name = core.CleanString(m.Name)
	return core.Validate.Struct(m)
}

func (m *ExamMatrix) TotalQuestions() int {
	var total int
	for i := range m.Topics {
		total += m.Topics[i].Quantity
	}
	return total
}
