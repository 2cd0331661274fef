package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokusho-app/dokusho-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing. Each method can
// be overridden through its Fn field; methods without an override return a
// deterministic scripted result so a full pipeline run succeeds out of the
// box. Call counts are tracked per stage for verification.
type MockGenerator struct {
	GenerateOutlineFn func(ctx context.Context, req generation.OutlineRequest) (*generation.Outline, error)
	GenerateSectionFn func(ctx context.Context, req generation.SectionRequest) (string, error)
	AnnotatePassageFn func(ctx context.Context, req generation.AnnotateRequest) (string, error)
	GenerateQuizFn    func(ctx context.Context, req generation.QuizRequest) ([]generation.QuizQuestion, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ generation.Generator = (*MockGenerator)(nil)

// NewScriptedGenerator returns a MockGenerator whose default responses form a
// consistent episode: a two-section outline, one line of text per section, a
// whole-passage annotation that round-trips, and the requested number of quiz
// questions.
func NewScriptedGenerator() *MockGenerator {
	return &MockGenerator{calls: make(map[string]int)}
}

// Calls returns how many times the named stage method was invoked.
func (m *MockGenerator) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockGenerator) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockGenerator) GenerateOutline(ctx context.Context, req generation.OutlineRequest) (*generation.Outline, error) {
	m.record("GenerateOutline")
	if m.GenerateOutlineFn != nil {
		return m.GenerateOutlineFn(ctx, req)
	}
	return &generation.Outline{
		Title: "朝の散歩",
		Theme: "日常",
		Sections: []generation.SectionPlan{
			{Heading: "出発", Summary: "主人公が家を出る"},
			{Heading: "発見", Summary: "公園で何かを見つける"},
		},
	}, nil
}

func (m *MockGenerator) GenerateSection(ctx context.Context, req generation.SectionRequest) (string, error) {
	m.record("GenerateSection")
	if m.GenerateSectionFn != nil {
		return m.GenerateSectionFn(ctx, req)
	}
	return fmt.Sprintf("第%d段落の本文です。", req.Position+1), nil
}

func (m *MockGenerator) AnnotatePassage(ctx context.Context, req generation.AnnotateRequest) (string, error) {
	m.record("AnnotatePassage")
	if m.AnnotatePassageFn != nil {
		return m.AnnotatePassageFn(ctx, req)
	}
	// One whole-passage annotation keeps the round-trip check trivially true.
	return "[" + req.Passage + "|よみ]", nil
}

func (m *MockGenerator) GenerateQuiz(ctx context.Context, req generation.QuizRequest) ([]generation.QuizQuestion, error) {
	m.record("GenerateQuiz")
	if m.GenerateQuizFn != nil {
		return m.GenerateQuizFn(ctx, req)
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	questions := make([]generation.QuizQuestion, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, generation.QuizQuestion{
			Prompt: fmt.Sprintf("質問%d", i+1),
			Answer: fmt.Sprintf("答え%d", i+1),
		})
	}
	return questions, nil
}
