package api

import (
	"time"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/google/uuid"
)

// TokenRequest is the request body for the admin token exchange.
type TokenRequest struct {
	AdminKey string `json:"admin_key" validate:"required"`
}

// TokenResponse carries a freshly issued admin access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// EnqueueRequest is the request body for manually enqueueing generation
// tasks. ProfileID is optional: when absent, every active profile gets a
// task. Date is optional and defaults to today (UTC).
type EnqueueRequest struct {
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
	Date      string     `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// RetryRequest is the optional request body for retrying a failed task.
// Fresh discards the checkpoint so the pipeline reruns from the first stage;
// the default resumes past the stages already completed.
type RetryRequest struct {
	Fresh bool `json:"fresh,omitempty"`
}

// CreateProfileRequest is the request body for creating a reader profile.
type CreateProfileRequest struct {
	Name         string   `json:"name"          validate:"required"`
	Level        string   `json:"level"         validate:"required,oneof=beginner elementary intermediate advanced"`
	Topics       []string `json:"topics"`
	TargetLength int      `json:"target_length" validate:"required"`
	Model        string   `json:"model"         validate:"required"`
	DailyEnabled bool     `json:"daily_enabled"`
}

// TaskResponse is the API shape of a generation task.
type TaskResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProfileID     uuid.UUID  `json:"profile_id"`
	TriggerSource string     `json:"trigger_source"`
	TaskDate      string     `json:"task_date"`
	Model         string     `json:"model"`
	Status        string     `json:"status"`
	Version       int64      `json:"version"`
	Stage         string     `json:"stage,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ErrorContext  string     `json:"error_context,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
}

// NewTaskResponse converts a task to its API shape. The checkpoint's stage is
// exposed for progress reporting; its payload stays internal.
func NewTaskResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		ProfileID:     t.ProfileID,
		TriggerSource: string(t.TriggerSource),
		TaskDate:      t.TaskDate.Format(time.DateOnly),
		Model:         t.Model,
		Status:        string(t.Status),
		Version:       t.Version,
		ErrorMessage:  t.ErrorMessage,
		ErrorContext:  t.ErrorContext,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		FinishedAt:    t.FinishedAt,
		PublishedAt:   t.PublishedAt,
		LockedUntil:   t.LockedUntil,
	}
	if t.Checkpoint != nil {
		resp.Stage = string(t.Checkpoint.Stage)
	}
	return resp
}

// AnnotationResponse is the API shape of one reading annotation.
type AnnotationResponse struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Surface string `json:"surface"`
	Reading string `json:"reading"`
}

// QuestionResponse is the API shape of one comprehension question.
type QuestionResponse struct {
	Position int    `json:"position"`
	Prompt   string `json:"prompt"`
	Answer   string `json:"answer"`
}

// EpisodeResponse is the API shape of a published episode.
type EpisodeResponse struct {
	ID          uuid.UUID            `json:"id"`
	TaskID      uuid.UUID            `json:"task_id"`
	ProfileID   uuid.UUID            `json:"profile_id"`
	Model       string               `json:"model"`
	EpisodeDate string               `json:"episode_date"`
	Title       string               `json:"title"`
	Theme       string               `json:"theme"`
	Passage     string               `json:"passage"`
	Annotated   string               `json:"annotated"`
	Annotations []AnnotationResponse `json:"annotations"`
	Questions   []QuestionResponse   `json:"questions"`
	CreatedAt   time.Time            `json:"created_at"`
}

// NewEpisodeResponse converts an episode to its API shape.
func NewEpisodeResponse(e *domain.Episode) EpisodeResponse {
	resp := EpisodeResponse{
		ID:          e.ID,
		TaskID:      e.TaskID,
		ProfileID:   e.ProfileID,
		Model:       e.Model,
		EpisodeDate: e.EpisodeDate.Format(time.DateOnly),
		Title:       e.Title,
		Theme:       e.Theme,
		Passage:     e.Passage,
		Annotated:   e.Annotated,
		Annotations: make([]AnnotationResponse, 0, len(e.Annotations)),
		Questions:   make([]QuestionResponse, 0, len(e.Questions)),
		CreatedAt:   e.CreatedAt,
	}
	for _, a := range e.Annotations {
		resp.Annotations = append(resp.Annotations, AnnotationResponse{
			Start:   a.Start,
			End:     a.End,
			Surface: a.Surface,
			Reading: a.Reading,
		})
	}
	for _, q := range e.Questions {
		resp.Questions = append(resp.Questions, QuestionResponse{
			Position: q.Position,
			Prompt:   q.Prompt,
			Answer:   q.Answer,
		})
	}
	return resp
}

// ProfileResponse is the API shape of a reader profile.
type ProfileResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Level        string    `json:"level"`
	Topics       []string  `json:"topics"`
	TargetLength int       `json:"target_length"`
	Model        string    `json:"model"`
	DailyEnabled bool      `json:"daily_enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewProfileResponse converts a profile to its API shape.
func NewProfileResponse(p *domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:           p.ID,
		Name:         p.Name,
		Level:        string(p.Level),
		Topics:       p.Topics,
		TargetLength: p.TargetLength,
		Model:        p.Model,
		DailyEnabled: p.DailyEnabled,
		CreatedAt:    p.CreatedAt,
	}
}
