package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Episode-specific validation errors
var (
	ErrEpisodeIDEmpty        = errors.New("episode ID cannot be empty")
	ErrEpisodeTaskIDEmpty    = errors.New("episode task ID cannot be empty")
	ErrEpisodeProfileIDEmpty = errors.New("episode profile ID cannot be empty")
	ErrEpisodeModelEmpty     = errors.New("episode model cannot be empty")
	ErrEpisodeTitleEmpty     = errors.New("episode title cannot be empty")
	ErrEpisodePassageEmpty   = errors.New("episode passage cannot be empty")
	ErrAnnotationRangeBad    = errors.New("annotation offsets must address a non-empty range inside the passage")
	ErrQuestionPromptEmpty   = errors.New("question prompt cannot be empty")
)

// Episode is the terminal artifact of one generation task: a daily reading
// passage with in-place reading annotations and comprehension questions.
// Exactly one episode exists per (task, model) pair; retrying a task replaces
// the whole set rather than appending a second one.
type Episode struct {
	ID          uuid.UUID    `json:"id"`
	TaskID      uuid.UUID    `json:"task_id"`
	ProfileID   uuid.UUID    `json:"profile_id"`
	Model       string       `json:"model"`
	EpisodeDate time.Time    `json:"episode_date"`
	Title       string       `json:"title"`
	Theme       string       `json:"theme"`
	Passage     string       `json:"passage"`
	Annotated   string       `json:"annotated"`
	Annotations []Annotation `json:"annotations"`
	Questions   []Question   `json:"questions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Annotation is a reading hint attached to a span of the passage.
// Offsets are byte positions into the plain (unannotated) passage; they are
// only meaningful if the annotated text round-trips to the passage exactly,
// which the pipeline's integrity stage guarantees before episodes are stored.
type Annotation struct {
	ID        uuid.UUID `json:"id"`
	EpisodeID uuid.UUID `json:"episode_id"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Surface   string    `json:"surface"`
	Reading   string    `json:"reading"`
}

// Question is a comprehension question about the passage.
type Question struct {
	ID        uuid.UUID `json:"id"`
	EpisodeID uuid.UUID `json:"episode_id"`
	Position  int       `json:"position"`
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
}

// NewEpisode creates a new Episode for the given task and profile.
// It generates a new UUID and sets the creation timestamp.
// Annotations and questions are attached by the caller before validation.
func NewEpisode(taskID, profileID uuid.UUID, model string, episodeDate time.Time) *Episode {
	return &Episode{
		ID:          uuid.New(),
		TaskID:      taskID,
		ProfileID:   profileID,
		Model:       model,
		EpisodeDate: episodeDate,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks if the Episode and its dependents have valid data.
// Returns an error if any field fails validation.
func (e *Episode) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEpisodeIDEmpty
	}

	if e.TaskID == uuid.Nil {
		return ErrEpisodeTaskIDEmpty
	}

	if e.ProfileID == uuid.Nil {
		return ErrEpisodeProfileIDEmpty
	}

	if e.Model == "" {
		return ErrEpisodeModelEmpty
	}

	if e.Title == "" {
		return ErrEpisodeTitleEmpty
	}

	if e.Passage == "" {
		return ErrEpisodePassageEmpty
	}

	for _, a := range e.Annotations {
		if a.Start < 0 || a.End <= a.Start || a.End > len(e.Passage) {
			return ErrAnnotationRangeBad
		}
	}

	for _, q := range e.Questions {
		if q.Prompt == "" {
			return ErrQuestionPromptEmpty
		}
	}

	return nil
}
