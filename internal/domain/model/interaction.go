// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reputation score bounds and fast-path constants.
const (
	MinBaseScore = 0
	MaxBaseScore = 1000

	// PositiveQualityThreshold is the quality at or above which an
	// interaction counts as positive.
	PositiveQualityThreshold = 70

	MinQualityScore = 0
	MaxQualityScore = 100
)

// ErrUnknownInteractionType is returned when parsing an unsupported type.
var ErrUnknownInteractionType = errors.New("unknown interaction type")

// InteractionType classifies the social interaction being scored.
type InteractionType string

// Supported interaction types.
const (
	InteractionMatch   InteractionType = "match"
	InteractionChat    InteractionType = "chat"
	InteractionHelpful InteractionType = "helpful"
	InteractionShare   InteractionType = "share"
)

// Valid reports whether t is one of the supported interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionMatch, InteractionChat, InteractionHelpful, InteractionShare:
		return true
	}
	return false
}

// ParseInteractionType parses s case-insensitively.
func ParseInteractionType(s string) (InteractionType, error) {
	t := InteractionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownInteractionType, s)
	}
	return t, nil
}

// InteractionTask is one queued ledger write. Tasks are immutable once
// enqueued and consumed exactly once by the write-behind worker.
type InteractionTask struct {
	TaskID       string
	Identity     string
	Type         InteractionType
	QualityScore int
	EnqueuedAt   time.Time
}

// TaskState is what a caller can learn about a task from its id. Queued,
// in-flight and unknown tasks are indistinguishable and report pending.
type TaskState int

// Task lifecycle: Pending -> {Committed, Dropped}.
const (
	TaskPending TaskState = iota
	TaskCommitted
	TaskDropped
)

// String returns the status name reported over HTTP.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "processing"
	case TaskCommitted:
		return "completed"
	case TaskDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ReputationRecord is the per-identity reputation state, both as cached
// locally and as decoded from the ledger account.
type ReputationRecord struct {
	Identity             string
	BaseScore            int
	TotalInteractions    uint32
	PositiveInteractions uint32
	LearningStreak       uint16
	LastActive           time.Time
}

// QualityRate is round(100 * positive / total), 0 when there are no
// interactions.
func (r ReputationRecord) QualityRate() int {
	if r.TotalInteractions == 0 {
		return 0
	}
	// integer round-half-up of 100*p/t
	return int((200*uint64(r.PositiveInteractions) + uint64(r.TotalInteractions)) / (2 * uint64(r.TotalInteractions)))
}

// ClampBaseScore bounds a score to [MinBaseScore, MaxBaseScore].
func ClampBaseScore(score int) int {
	return min(MaxBaseScore, max(MinBaseScore, score))
}
