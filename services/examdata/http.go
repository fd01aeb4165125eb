package examdatasvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/exam"
)

// HTTPClient fetches exams with their answer keys from the exam bank service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  core.Logger
}

var _ exam.ExamClient = (*HTTPClient)(nil)

func NewHTTPClient(conf *core.Config, logger core.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: conf.ExamBankURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPClient) GetExamWithAnswers(ctx context.Context, examID string) (exam.Exam, error) {
	u, err := url.JoinPath(c.baseURL, "exams", examID, "with-answers")
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "building exam bank URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "building exam bank request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "calling exam bank")
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return exam.Exam{}, exam.ErrExamNotFound
	default:
		c.logger.Warn("exam bank returned " + res.Status)
		return exam.Exam{}, errors.Errorf("exam bank returned %s", res.Status)
	}

	var ex exam.Exam
	if err = json.NewDecoder(res.Body).Decode(&ex); err != nil {
		return exam.Exam{}, errors.Wrap(err, "decoding exam bank response")
	}
	return ex, nil
}
