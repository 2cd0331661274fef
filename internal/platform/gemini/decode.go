package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dokusho-app/dokusho-api/internal/generation"
)

// quizResponse is the wire shape of the quiz stage's JSON response.
type quizResponse struct {
	Questions []generation.QuizQuestion `json:"questions"`
}

// decodeOutline parses and validates the outline stage's JSON response.
func decodeOutline(raw string) (*generation.Outline, error) {
	var outline generation.Outline
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &outline); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	if outline.Title == "" {
		return nil, fmt.Errorf("%w: outline has no title", generation.ErrInvalidResponse)
	}
	if len(outline.Sections) == 0 {
		return nil, fmt.Errorf("%w: outline has no sections", generation.ErrInvalidResponse)
	}
	for i, s := range outline.Sections {
		if s.Heading == "" || s.Summary == "" {
			return nil, fmt.Errorf("%w: outline section %d is incomplete", generation.ErrInvalidResponse, i)
		}
	}

	return &outline, nil
}

// decodeQuiz parses and validates the quiz stage's JSON response.
func decodeQuiz(raw string) ([]generation.QuizQuestion, error) {
	var resp quizResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	if len(resp.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions in response", generation.ErrInvalidResponse)
	}
	for i, q := range resp.Questions {
		if q.Prompt == "" || q.Answer == "" {
			return nil, fmt.Errorf("%w: question %d is incomplete", generation.ErrInvalidResponse, i)
		}
	}

	return resp.Questions, nil
}

// stripCodeFence removes a ```json ... ``` wrapper that models sometimes emit
// despite the JSON response MIME type.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
