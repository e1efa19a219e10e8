package groq_client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quizlive/quizlive/go/internal/models"
)

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateQuiz asks the model for n multiple-choice questions drawn from the
// given categories. The model is instructed to answer with a bare JSON
// array; anything around the outermost brackets is discarded before parsing.
func (c *GroqClient) GenerateQuiz(ctx context.Context, categories []string, n int) ([]models.Question, error) {
	req := chatCompletionRequest{
		Model: QuizModel,
		Messages: []chatMessage{
			{Role: "user", Content: quizPrompt(categories, n)},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	}

	body, err := c.PostJSON(ctx, ChatCompletionsEndpoint, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz: %w", err)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}

	questions, err := parseQuestions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func quizPrompt(categories []string, n int) string {
	cats := strings.Join(categories, ", ")
	return fmt.Sprintf(`Generate %d cultural quiz questions as a JSON array.
{ "question":"...", "options":["A","B","C","D"], "answer":0 }
Categories: %s
Rules:
- Real cultural facts only
- Exactly 4 options
- answer is 0-based index of correct option
- Output ONLY the JSON array`, n, cats)
}

// parseQuestions extracts the outermost JSON array from the completion text
// and validates every question's shape.
func parseQuestions(text string) ([]models.Question, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("completion did not contain a JSON array")
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(text[start:end+1]), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("completion contained no questions")
	}

	for i, q := range questions {
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("question %d has %d options, want 4", i, len(q.Options))
		}
		if q.Answer < 0 || q.Answer > 3 {
			return nil, fmt.Errorf("question %d has answer index %d out of range", i, q.Answer)
		}
	}
	return questions, nil
}
