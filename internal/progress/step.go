package progress

import "time"

// DetailLevel selects which rendering of a step an observer receives.
type DetailLevel string

const (
	LevelUserFriendly DetailLevel = "user_friendly"
	LevelDetailed     DetailLevel = "detailed"
	LevelDebug        DetailLevel = "debug"
)

// ParseDetailLevel maps a wire string to a DetailLevel, defaulting to
// user_friendly for anything unrecognized.
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(s) {
	case LevelDetailed:
		return LevelDetailed
	case LevelDebug:
		return LevelDebug
	default:
		return LevelUserFriendly
	}
}

// Step is one named stage of an agent's static pipeline. Steps are declared
// once per agent type and only indexed into at runtime, never mutated.
type Step struct {
	ID                string
	Weight            float64 // relative; weights need not sum to 100
	EstimatedDuration time.Duration
	UserText          string
	DetailedText      string
	DebugText         string
}

// Text returns the rendering for the given detail level, falling back to
// the user-friendly text when a richer rendering was not provided.
func (s Step) Text(level DetailLevel) string {
	switch level {
	case LevelDetailed:
		if s.DetailedText != "" {
			return s.DetailedText
		}
	case LevelDebug:
		if s.DebugText != "" {
			return s.DebugText
		}
	}
	return s.UserText
}
