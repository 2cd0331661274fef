package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/generation"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/google/uuid"
)

// questionCount is how many comprehension questions the quiz stage asks for.
const questionCount = 3

// Executor runs claimed tasks through the stage sequence. It implements
// task.Executor.
type Executor struct {
	queue     *task.Queue
	generator generation.Generator
	profiles  store.ProfileStore
	episodes  store.EpisodeStore

	// db, when non-nil, wraps artifact persistence in a transaction.
	// Tests using in-memory stores leave it nil.
	db *sql.DB

	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewExecutor creates an Executor.
// If logger is nil, the default logger is used.
func NewExecutor(
	queue *task.Queue,
	generator generation.Generator,
	profiles store.ProfileStore,
	episodes store.EpisodeStore,
	db *sql.DB,
	stageTimeout time.Duration,
	logger *slog.Logger,
) *Executor {
	if queue == nil {
		panic("queue cannot be nil")
	}
	if generator == nil {
		panic("generator cannot be nil")
	}
	if profiles == nil {
		panic("profile store cannot be nil")
	}
	if episodes == nil {
		panic("episode store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stageTimeout <= 0 {
		stageTimeout = 5 * time.Minute
	}

	return &Executor{
		queue:        queue,
		generator:    generator,
		profiles:     profiles,
		episodes:     episodes,
		db:           db,
		stageTimeout: stageTimeout,
		logger:       logger.With(slog.String("component", "pipeline_executor")),
	}
}

var _ task.Executor = (*Executor)(nil)

// Execute runs the remaining stages of a claimed task, persisting a
// checkpoint after each one, then writes the episode artifacts and moves the
// task to succeeded. Stage errors are converted into a failed transition and
// do not propagate; a returned error means the terminal transition itself
// could not be recorded.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	log := e.logger.With(slog.String("task_id", t.ID.String()))

	profile, err := e.profiles.GetByID(ctx, t.ProfileID)
	if err != nil {
		// No profile means no usable input; an operator has to fix the
		// profile before a retry has any value.
		return e.fail(ctx, t, task.StageOutline,
			fmt.Errorf("failed to load profile %s: %w", t.ProfileID, err))
	}

	cp := t.Checkpoint
	start := 0
	if cp != nil {
		start = cp.Stage.Index() + 1
		log.Info("resuming from checkpoint",
			slog.String("completed_stage", string(cp.Stage)),
			slog.Int("next_stage_index", start))
	} else {
		cp = &task.Checkpoint{}
	}

	// Cancellation interrupts remote calls, not the writes that record work
	// already done: a checkpoint or terminal state earned before shutdown
	// still lands.
	writeCtx := context.WithoutCancel(ctx)

	for _, stage := range task.Stages[start:] {
		stageStart := time.Now()
		if err := e.runStage(ctx, stage, profile, t, cp); err != nil {
			return e.fail(ctx, t, stage, err)
		}

		cp.Stage = stage
		if err := e.queue.SaveCheckpoint(writeCtx, t, cp); err != nil {
			if store.IsVersionConflict(err) {
				// The lease expired and another worker reclaimed the task.
				// It owns the checkpoint now; abandon the run rather than
				// regress its progress.
				log.Warn("lost task before checkpoint could be saved",
					slog.String("stage", string(stage)))
				return nil
			}
			return fmt.Errorf("failed to persist checkpoint after %s: %w", stage, err)
		}

		log.Info("stage completed",
			slog.String("stage", string(stage)),
			slog.Duration("elapsed", time.Since(stageStart)))
	}

	episode, err := e.buildEpisode(t, profile, cp)
	if err != nil {
		return e.fail(ctx, t, task.StageQuiz, err)
	}

	if err := e.persistEpisode(writeCtx, episode); err != nil {
		return e.fail(ctx, t, task.StageQuiz,
			fmt.Errorf("failed to persist episode artifacts: %w", err))
	}

	updated, err := e.queue.Complete(writeCtx, t)
	if err != nil {
		if store.IsVersionConflict(err) {
			// Another worker reclaimed the task after our lease lapsed. Its
			// completion will rewrite the artifacts idempotently.
			log.Warn("lost task before completion could be recorded")
			return nil
		}
		return err
	}
	*t = *updated

	log.Info("episode generated",
		slog.String("episode_id", episode.ID.String()),
		slog.Int("annotations", len(episode.Annotations)),
		slog.Int("questions", len(episode.Questions)))
	return nil
}

// runStage invokes one stage's remote call(s) and folds the outputs into the
// accumulated checkpoint state.
func (e *Executor) runStage(
	ctx context.Context,
	stage task.Stage,
	profile *domain.Profile,
	t *task.Task,
	cp *task.Checkpoint,
) error {
	switch stage {
	case task.StageOutline:
		outline, err := e.callOutline(ctx, profile, t)
		if err != nil {
			return err
		}
		cp.Outline = outline
		return nil

	case task.StagePassage:
		passage, err := e.callPassage(ctx, profile, cp.Outline)
		if err != nil {
			return err
		}
		cp.Passage = passage
		return nil

	case task.StageAnnotate:
		annotated, err := e.callAnnotate(ctx, profile, cp.Passage)
		if err != nil {
			return err
		}
		cp.Annotated = annotated
		return nil

	case task.StageQuiz:
		questions, err := e.callQuiz(ctx, profile, cp.Passage)
		if err != nil {
			return err
		}
		cp.Questions = questions
		return nil

	default:
		return fmt.Errorf("unknown pipeline stage %q", stage)
	}
}

// callOutline runs the outline stage: one remote call.
func (e *Executor) callOutline(ctx context.Context, profile *domain.Profile, t *task.Task) (*generation.Outline, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	outline, err := e.generator.GenerateOutline(callCtx, generation.OutlineRequest{
		Profile: profile,
		Date:    t.TaskDate.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	if len(outline.Sections) == 0 {
		return nil, fmt.Errorf("%w: outline has no sections", generation.ErrInvalidResponse)
	}
	return outline, nil
}

// callPassage runs the passage stage, fanning out one remote call per outline
// section. Sub-results aggregate inside the stage; a failure partway forfeits
// the stage's partial progress, by checkpoint granularity.
func (e *Executor) callPassage(ctx context.Context, profile *domain.Profile, outline *generation.Outline) (string, error) {
	sections := make([]string, 0, len(outline.Sections))

	for i, plan := range outline.Sections {
		callCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
		text, err := e.generator.GenerateSection(callCtx, generation.SectionRequest{
			Profile:  profile,
			Outline:  outline,
			Section:  plan,
			Position: i,
		})
		cancel()
		if err != nil {
			return "", fmt.Errorf("section %d (%s): %w", i, plan.Heading, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: section %d is empty", generation.ErrInvalidResponse, i)
		}
		sections = append(sections, strings.TrimSpace(text))
	}

	return strings.Join(sections, "\n\n"), nil
}

// callAnnotate runs the annotation stage and enforces the round-trip
// integrity check before accepting the result.
func (e *Executor) callAnnotate(ctx context.Context, profile *domain.Profile, passage string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	annotated, err := e.generator.AnnotatePassage(callCtx, generation.AnnotateRequest{
		Profile: profile,
		Passage: passage,
	})
	if err != nil {
		return "", err
	}

	if _, err := ValidateRoundTrip(passage, annotated); err != nil {
		return "", err
	}
	return annotated, nil
}

// callQuiz runs the quiz stage: one remote call.
func (e *Executor) callQuiz(ctx context.Context, profile *domain.Profile, passage string) ([]generation.QuizQuestion, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	questions, err := e.generator.GenerateQuiz(callCtx, generation.QuizRequest{
		Profile: profile,
		Passage: passage,
		Count:   questionCount,
	})
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions generated", generation.ErrInvalidResponse)
	}
	return questions, nil
}

// buildEpisode assembles the domain artifact from the completed checkpoint.
func (e *Executor) buildEpisode(t *task.Task, profile *domain.Profile, cp *task.Checkpoint) (*domain.Episode, error) {
	spans, err := ValidateRoundTrip(cp.Passage, cp.Annotated)
	if err != nil {
		// The annotate stage validated this before checkpointing; failing
		// here means the checkpoint itself is inconsistent.
		return nil, fmt.Errorf("checkpointed annotation no longer round-trips: %w", err)
	}

	episode := domain.NewEpisode(t.ID, profile.ID, t.Model, t.TaskDate)
	episode.Title = cp.Outline.Title
	episode.Theme = cp.Outline.Theme
	episode.Passage = cp.Passage
	episode.Annotated = cp.Annotated

	for _, span := range spans {
		episode.Annotations = append(episode.Annotations, domain.Annotation{
			ID:        uuid.New(),
			EpisodeID: episode.ID,
			Start:     span.Start,
			End:       span.End,
			Surface:   span.Surface,
			Reading:   span.Reading,
		})
	}

	for i, q := range cp.Questions {
		episode.Questions = append(episode.Questions, domain.Question{
			ID:        uuid.New(),
			EpisodeID: episode.ID,
			Position:  i,
			Prompt:    q.Prompt,
			Answer:    q.Answer,
		})
	}

	if err := episode.Validate(); err != nil {
		return nil, fmt.Errorf("generated episode failed validation: %w", err)
	}
	return episode, nil
}

// persistEpisode writes the artifacts with replace semantics so a retry of
// the same task leaves exactly one artifact set.
func (e *Executor) persistEpisode(ctx context.Context, episode *domain.Episode) error {
	if e.db == nil {
		return e.episodes.Replace(ctx, episode)
	}
	return store.RunInTransaction(ctx, e.db, func(ctx context.Context, tx *sql.Tx) error {
		return e.episodes.WithTx(tx).Replace(ctx, episode)
	})
}

// stageContext is the structured diagnostic recorded in error_context so an
// operator can tell a flaky remote call from bad input or an integrity bug.
type stageContext struct {
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// fail converts a stage error into a failed task transition. The checkpoint
// is left in place so a retry resumes past the completed stages instead of
// repeating their remote calls.
func (e *Executor) fail(ctx context.Context, t *task.Task, stage task.Stage, stageErr error) error {
	if ctx.Err() != nil {
		// A cancelled run context means shutdown, not a pipeline failure.
		// Leave the task running: its lease lapses and the next holder
		// resumes from the last checkpoint, the same as after a crash.
		e.logger.Info("execution interrupted by shutdown",
			slog.String("task_id", t.ID.String()),
			slog.String("stage", string(stage)))
		return nil
	}

	detail, marshalErr := json.Marshal(stageContext{
		Stage:  string(stage),
		Kind:   classify(stageErr),
		Detail: stageErr.Error(),
	})
	if marshalErr != nil {
		detail = []byte(fmt.Sprintf(`{"stage":%q}`, stage))
	}

	e.logger.Error("stage failed",
		slog.String("task_id", t.ID.String()),
		slog.String("stage", string(stage)),
		"error", stageErr)

	updated, err := e.queue.Fail(context.WithoutCancel(ctx), t, stageErr.Error(), string(detail))
	if err != nil {
		if store.IsVersionConflict(err) {
			// Reclaimed by another worker; it owns the outcome now.
			return nil
		}
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	*t = *updated
	return nil
}

// classify buckets a stage error for the operator-facing error context.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrAnnotationMismatch), errors.Is(err, ErrAnnotationMalformed):
		return "integrity"
	case errors.Is(err, generation.ErrContentBlocked):
		return "blocked"
	case errors.Is(err, generation.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, generation.ErrTransientFailure), errors.Is(err, context.DeadlineExceeded):
		return "transient"
	case errors.Is(err, store.ErrNotFound):
		return "input"
	default:
		return "remote"
	}
}
