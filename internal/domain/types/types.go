// Package types contains the response shapes shared by the service and the
// HTTP layer.
package types

import "errors"

// ErrInvalidInput marks a request rejected by validation: a malformed
// identity, an unknown interaction type or an out-of-range quality score.
var ErrInvalidInput = errors.New("invalid input")

// Source names which store answered a reputation read.
type Source string

// Reputation read sources.
const (
	SourceLedger  Source = "ledger"
	SourceCache   Source = "cache"
	SourceDefault Source = "default"
)

// DefaultReadBaseScore is the score reported for an identity that neither
// the ledger nor the cache knows. It differs from the 650 used when the
// first interaction is applied.
const DefaultReadBaseScore = 100

// DisplayRecord is the reconciled reputation view returned to callers.
type DisplayRecord struct {
	Initialized          bool   `json:"initialized"`
	BaseScore            int    `json:"baseScore"`
	TotalInteractions    uint32 `json:"totalInteractions"`
	PositiveInteractions uint32 `json:"positiveInteractions"`
	LearningStreak       uint16 `json:"learningStreak"`
	ReportsReceived      uint32 `json:"reportsReceived"` // not tracked on the ledger; always 0
	QualityRate          int    `json:"qualityRate"`
	LastActive           int64  `json:"lastActive"` // unix milliseconds
	Source               Source `json:"source"`
}

// InteractionResult is returned immediately by RecordInteraction.
// Signature is a task reference ("async_<taskId>"), not a ledger signature;
// OnChain means accepted into the write-behind pipeline, not confirmed.
type InteractionResult struct {
	TaskID    string `json:"taskId"`
	Signature string `json:"signature"`
	NewScore  int    `json:"newScore"`
	OnChain   bool   `json:"onChain"`
}

// QueueStatus is a diagnostic snapshot of the write-behind pipeline.
type QueueStatus struct {
	QueueLength      int  `json:"queueLength"`
	IsProcessing     bool `json:"isProcessing"`
	CachedSignatures int  `json:"cachedSignatures"`
}
