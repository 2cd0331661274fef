package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Profile-specific validation errors
var (
	ErrProfileIDEmpty      = errors.New("profile ID cannot be empty")
	ErrProfileNameEmpty    = errors.New("profile name cannot be empty")
	ErrProfileLevelInvalid = errors.New("profile level must be one of the supported reading levels")
	ErrProfileModelEmpty   = errors.New("profile model cannot be empty")
	ErrProfileLengthRange  = errors.New("profile target length must be between 100 and 5000 characters")
)

// ReadingLevel describes the difficulty of generated passages.
type ReadingLevel string

// Supported reading levels, roughly aligned with JLPT bands.
const (
	ReadingLevelBeginner     ReadingLevel = "beginner"
	ReadingLevelElementary   ReadingLevel = "elementary"
	ReadingLevelIntermediate ReadingLevel = "intermediate"
	ReadingLevelAdvanced     ReadingLevel = "advanced"
)

// Profile represents a generation profile: the per-learner settings that shape
// each daily episode. Profiles are inputs to task creation and never change
// once a task has captured them.
type Profile struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Level        ReadingLevel `json:"level"`
	Topics       []string     `json:"topics"`
	TargetLength int          `json:"target_length"`
	Model        string       `json:"model"`
	DailyEnabled bool         `json:"daily_enabled"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewProfile creates a new Profile with the given settings.
// It generates a new UUID and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewProfile(name string, level ReadingLevel, topics []string, targetLength int, model string) (*Profile, error) {
	profile := &Profile{
		ID:           uuid.New(),
		Name:         name,
		Level:        level,
		Topics:       topics,
		TargetLength: targetLength,
		Model:        model,
		DailyEnabled: true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return profile, nil
}

// Validate checks if the Profile has valid data.
// Returns an error if any field fails validation.
func (p *Profile) Validate() error {
	if p.ID == uuid.Nil {
		return ErrProfileIDEmpty
	}

	if p.Name == "" {
		return ErrProfileNameEmpty
	}

	if !isValidReadingLevel(p.Level) {
		return ErrProfileLevelInvalid
	}

	if p.Model == "" {
		return ErrProfileModelEmpty
	}

	if p.TargetLength < 100 || p.TargetLength > 5000 {
		return ErrProfileLengthRange
	}

	return nil
}

// isValidReadingLevel checks if the given level is a supported ReadingLevel.
func isValidReadingLevel(level ReadingLevel) bool {
	switch level {
	case ReadingLevelBeginner, ReadingLevelElementary,
		ReadingLevelIntermediate, ReadingLevelAdvanced:
		return true
	default:
		return false
	}
}
