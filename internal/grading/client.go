// Package grading talks to the external quiz service that owns question
// content and answer keys.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"competition-service/internal/domain"
)

// Client grades answer batches over HTTP. One POST per finish call; the
// response maps each question to its correct answer id.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type gradeRequest struct {
	QuizID  int64                     `json:"quiz_id"`
	Answers []domain.AnswerSubmission `json:"answers"`
}

type gradeResponse struct {
	Results []struct {
		QuestionID      int64 `json:"question_id"`
		CorrectAnswerID int64 `json:"correct_answer_id"`
	} `json:"results"`
}

// CorrectAnswers sends the whole submission in one batch and returns the
// answer key keyed by question id. Network and server failures surface as
// grading-unavailable domain errors so the finish call can reject cleanly.
func (c *Client) CorrectAnswers(ctx context.Context, quizID int64, submissions []domain.AnswerSubmission) (map[int64]int64, error) {
	body, err := json.Marshal(gradeRequest{QuizID: quizID, Answers: submissions})
	if err != nil {
		return nil, fmt.Errorf("encode grading request: %w", err)
	}

	url := fmt.Sprintf("%s/quizzes/%d/grade", c.baseURL, quizID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build grading request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.GradingUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.GradingUnavailable(fmt.Errorf("grading service returned %d", resp.StatusCode))
	}

	var decoded gradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.GradingUnavailable(fmt.Errorf("decode grading response: %w", err))
	}

	key := make(map[int64]int64, len(decoded.Results))
	for _, r := range decoded.Results {
		key[r.QuestionID] = r.CorrectAnswerID
	}
	return key, nil
}
