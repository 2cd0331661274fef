package task

import (
	"encoding/json"
	"fmt"

	"github.com/dokusho-app/dokusho-api/internal/generation"
)

// Stage identifies one step of the fixed generation pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageOutline  Stage = "outline"
	StagePassage  Stage = "passage"
	StageAnnotate Stage = "annotate"
	StageQuiz     Stage = "quiz"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageOutline, StagePassage, StageAnnotate, StageQuiz}

// Known reports whether s is a stage this build understands. Checkpoints
// tagged with an unknown (obsolete or future) stage are ignored and the
// pipeline starts fresh rather than crashing.
func (s Stage) Known() bool {
	switch s {
	case StageOutline, StagePassage, StageAnnotate, StageQuiz:
		return true
	default:
		return false
	}
}

// Index returns the position of s in the pipeline, or -1 if unknown.
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Checkpoint records the last successfully completed stage together with all
// outputs accumulated so far, so a reclaimed task resumes after that stage
// instead of repeating remote calls. It is always written as a full replacement, never
// merged, and only by the current lease holder.
//
// The field set is closed over the stage tags: a checkpoint at StagePassage
// carries Outline and Passage; one at StageQuiz carries everything.
type Checkpoint struct {
	Stage Stage `json:"stage"`

	Outline   *generation.Outline       `json:"outline,omitempty"`
	Passage   string                    `json:"passage,omitempty"`
	Annotated string                    `json:"annotated,omitempty"`
	Questions []generation.QuizQuestion `json:"questions,omitempty"`
}

// Validate checks the checkpoint's internal consistency: the tag must be a
// known stage and every stage up to and including the tag must have its
// outputs present.
func (c *Checkpoint) Validate() error {
	if !c.Stage.Known() {
		return fmt.Errorf("unknown checkpoint stage %q", c.Stage)
	}

	idx := c.Stage.Index()
	if c.Outline == nil {
		return fmt.Errorf("checkpoint at %q is missing outline output", c.Stage)
	}
	if idx >= StagePassage.Index() && c.Passage == "" {
		return fmt.Errorf("checkpoint at %q is missing passage output", c.Stage)
	}
	if idx >= StageAnnotate.Index() && c.Annotated == "" {
		return fmt.Errorf("checkpoint at %q is missing annotated output", c.Stage)
	}
	if idx >= StageQuiz.Index() && len(c.Questions) == 0 {
		return fmt.Errorf("checkpoint at %q is missing quiz output", c.Stage)
	}

	return nil
}

// DecodeCheckpoint parses a persisted checkpoint payload. A payload tagged
// with an unrecognized stage, or one whose accumulated outputs are
// inconsistent with its tag, yields (nil, nil): the task is treated as having
// no usable checkpoint rather than failing.
//
// Malformed JSON is still an error: it indicates corruption, not an
// obsolete writer.
func DecodeCheckpoint(payload []byte) (*Checkpoint, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	if err := cp.Validate(); err != nil {
		return nil, nil
	}

	return &cp, nil
}

// Encode serializes the checkpoint for storage.
func (c *Checkpoint) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return data, nil
}
