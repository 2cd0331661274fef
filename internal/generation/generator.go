package generation

import (
	"context"

	"github.com/dokusho-app/dokusho-api/internal/domain"
)

// Generator defines the interface the pipeline requires from the remote
// generative-text service. Each method corresponds to exactly one pipeline
// stage and one remote round trip, except GenerateSection which is the
// passage stage's per-section fan-out call.
//
// Implementations must respect ctx cancellation and deadlines; the pipeline
// bounds each call with a stage timeout.
type Generator interface {
	// GenerateOutline plans the episode: title, theme and section summaries
	// sized to the profile's level and target length.
	GenerateOutline(ctx context.Context, req OutlineRequest) (*Outline, error)

	// GenerateSection writes the passage text for one outline section.
	// The passage stage calls this once per section and aggregates the results.
	GenerateSection(ctx context.Context, req SectionRequest) (string, error)

	// AnnotatePassage returns the passage with reading annotations inserted
	// in place using [surface|reading] markers. The annotated text must
	// reproduce the input exactly once markers are stripped; the pipeline
	// verifies this and treats any divergence as a hard failure.
	AnnotatePassage(ctx context.Context, req AnnotateRequest) (string, error)

	// GenerateQuiz produces comprehension questions for the passage.
	GenerateQuiz(ctx context.Context, req QuizRequest) ([]QuizQuestion, error)
}

// OutlineRequest carries the task inputs for the outline stage.
type OutlineRequest struct {
	Profile *domain.Profile
	Date    string // episode date in YYYY-MM-DD form, used to vary themes
}

// Outline is the outline stage's output.
type Outline struct {
	Title      string        `json:"title"`
	Theme      string        `json:"theme"`
	Sections   []SectionPlan `json:"sections"`
	Vocabulary []string      `json:"vocabulary,omitempty"`
}

// SectionPlan describes one planned passage section.
type SectionPlan struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

// SectionRequest carries the inputs for one passage-section call.
type SectionRequest struct {
	Profile  *domain.Profile
	Outline  *Outline
	Section  SectionPlan
	Position int // zero-based index of the section within the outline
}

// AnnotateRequest carries the inputs for the annotation stage.
type AnnotateRequest struct {
	Profile *domain.Profile
	Passage string
}

// QuizRequest carries the inputs for the quiz stage.
type QuizRequest struct {
	Profile *domain.Profile
	Passage string
	Count   int // desired number of questions; zero lets the model decide
}

// QuizQuestion is a single generated comprehension question.
type QuizQuestion struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}
