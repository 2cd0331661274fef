package gemini

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/config"
	"github.com/dokusho-app/dokusho-api/internal/generation"
	"google.golang.org/genai"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names, one per stage prompt.
const (
	tmplOutline  = "outline.tmpl"
	tmplSection  = "section.tmpl"
	tmplAnnotate = "annotate.tmpl"
	tmplQuiz     = "quiz.tmpl"
)

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger    *slog.Logger
	config    config.LLMConfig
	templates *template.Template
	client    *genai.Client
	model     string

	// rng feeds retry jitter.
	rng *rand.Rand
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator with the provided configuration.
//
// Returns an error wrapping generation.ErrInvalidConfig if the API key or
// model name is missing, or if the embedded prompt templates fail to parse.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	templates, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt templates: %v",
			generation.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger:    logger.With(slog.String("component", "gemini_generator")),
		config:    cfg,
		templates: templates,
		client:    client,
		model:     cfg.ModelName,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// GenerateOutline implements generation.Generator.
func (g *Generator) GenerateOutline(ctx context.Context, req generation.OutlineRequest) (*generation.Outline, error) {
	prompt, err := g.render(tmplOutline, map[string]any{
		"Level":        req.Profile.Level,
		"Topics":       strings.Join(req.Profile.Topics, ", "),
		"TargetLength": req.Profile.TargetLength,
		"Date":         req.Date,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.callWithRetry(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	return decodeOutline(raw)
}

// GenerateSection implements generation.Generator.
func (g *Generator) GenerateSection(ctx context.Context, req generation.SectionRequest) (string, error) {
	sectionLength := req.Profile.TargetLength
	if n := len(req.Outline.Sections); n > 0 {
		sectionLength = req.Profile.TargetLength / n
	}

	prompt, err := g.render(tmplSection, map[string]any{
		"Level":         req.Profile.Level,
		"Title":         req.Outline.Title,
		"Theme":         req.Outline.Theme,
		"Position":      req.Position + 1,
		"Heading":       req.Section.Heading,
		"Summary":       req.Section.Summary,
		"Vocabulary":    strings.Join(req.Outline.Vocabulary, ", "),
		"SectionLength": sectionLength,
	})
	if err != nil {
		return "", err
	}

	text, err := g.callWithRetry(ctx, prompt, false)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty section text", generation.ErrInvalidResponse)
	}
	return text, nil
}

// AnnotatePassage implements generation.Generator.
func (g *Generator) AnnotatePassage(ctx context.Context, req generation.AnnotateRequest) (string, error) {
	prompt, err := g.render(tmplAnnotate, map[string]any{
		"Level":   req.Profile.Level,
		"Passage": req.Passage,
	})
	if err != nil {
		return "", err
	}

	text, err := g.callWithRetry(ctx, prompt, false)
	if err != nil {
		return "", err
	}

	// Models tend to wrap the answer in leading/trailing whitespace; the
	// round-trip check downstream compares byte-for-byte, so trim here.
	return strings.TrimSpace(text), nil
}

// GenerateQuiz implements generation.Generator.
func (g *Generator) GenerateQuiz(ctx context.Context, req generation.QuizRequest) ([]generation.QuizQuestion, error) {
	count := req.Count
	if count <= 0 {
		count = 3
	}

	prompt, err := g.render(tmplQuiz, map[string]any{
		"Level":   req.Profile.Level,
		"Passage": req.Passage,
		"Count":   count,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.callWithRetry(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	return decodeQuiz(raw)
}

// render executes the named prompt template.
func (g *Generator) render(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", name, err)
	}
	return buf.String(), nil
}

// callWithRetry makes one Gemini call, retrying transient failures with
// exponential backoff and jitter up to the configured retry limit. Permanent
// errors (blocked content, bad requests) return immediately.
func (g *Generator) callWithRetry(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := time.Duration(g.config.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(g.rng.Int63n(int64(baseDelay)))
			g.logger.InfoContext(ctx, "retrying Gemini call",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff+jitter))

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
			case <-time.After(backoff + jitter):
			}
		}

		text, err := g.call(ctx, prompt, wantJSON)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !errors.Is(err, generation.ErrTransientFailure) {
			return "", err
		}
	}

	return "", fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}

// call makes a single Gemini request and returns the response text.
func (g *Generator) call(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	genConfig := &genai.GenerateContentConfig{}
	if wantJSON {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genConfig)
	if err != nil {
		return "", classifyAPIError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: response contains no text", generation.ErrInvalidResponse)
	}
	return text, nil
}

// classifyAPIError maps a Gemini transport error onto the generation error
// taxonomy: rate limits and server errors are transient, everything else is
// permanent for this attempt.
func classifyAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	// Network-level failures without an API status are worth one retry.
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
