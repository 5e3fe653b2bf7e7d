package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"competition-service/internal/domain"
)

func TestCorrectAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quizzes/42/grade" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			QuizID  int64                     `json:"quiz_id"`
			Answers []domain.AnswerSubmission `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.QuizID != 42 || len(req.Answers) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]int64{
				{"question_id": 1, "correct_answer_id": 11},
				{"question_id": 2, "correct_answer_id": 22},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	key, err := client.CorrectAnswers(context.Background(), 42, []domain.AnswerSubmission{
		{QuestionID: 1, AnswerID: 11},
		{QuestionID: 2, AnswerID: 99},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if key[1] != 11 || key[2] != 22 {
		t.Fatalf("unexpected key %v", key)
	}
}

func TestServerErrorIsGradingUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.CorrectAnswers(context.Background(), 1, []domain.AnswerSubmission{{QuestionID: 1, AnswerID: 1}})
	if !domain.IsKind(err, domain.KindGradingUnavailable) {
		t.Fatalf("expected grading unavailable, got %v", err)
	}
}

func TestDownServerIsGradingUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.CorrectAnswers(context.Background(), 1, []domain.AnswerSubmission{{QuestionID: 1, AnswerID: 1}})
	if !domain.IsKind(err, domain.KindGradingUnavailable) {
		t.Fatalf("expected grading unavailable, got %v", err)
	}
}
