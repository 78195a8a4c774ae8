package ai

import (
	"context"
	"errors"
)

var (
	// ErrNotReady is returned when the backend answers 503 (models still loading).
	ErrNotReady = errors.New("ai: backend not ready")
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("ai: request timed out")
)

// Reply is one answer from the inference backend.
type Reply struct {
	SessionID             string           `json:"session_id"`
	Reply                 string           `json:"reply"`
	Intent                string           `json:"intent,omitempty"`
	IntentConfidence      float64          `json:"intent_confidence"`
	Risk                  string           `json:"risk,omitempty"`
	ClarificationNeeded   bool             `json:"clarification_needed"`
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
	Sources               []map[string]any `json:"sources,omitempty"`
	Stage                 string           `json:"stage,omitempty"`
}

type Readiness struct {
	Ready  bool   `json:"ready"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Provider is the chat collaborator consumed by the session synchronizer.
type Provider interface {
	SendMessage(ctx context.Context, text, sessionID string) (*Reply, error)
	CheckReady(ctx context.Context) (*Readiness, error)
}

type ExerciseRequest struct {
	Age           int
	HeightCm      float64
	WeightKg      float64
	ActivityLevel string // low, moderate, high
	Gender        string // male, female, other
	BMI           float64
	BMICategory   string
}

type ExerciseAdvice struct {
	Title     string
	Exercises []string
	Frequency string
	Duration  string
	Notes     string
}

// Advisor is optional; providers that can produce exercise plans implement it.
type Advisor interface {
	SuggestExercise(ctx context.Context, req ExerciseRequest) (*ExerciseAdvice, error)
}
