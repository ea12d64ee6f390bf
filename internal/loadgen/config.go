// Package loadgen drives a running trust ledger service with synthetic
// interactions and reports how the write-behind pipeline keeps up.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL         string        // Base URL of the service
	NumInteractions int           // Number of interactions to submit
	Identities      int           // Number of distinct wallets to spread them over
	Workers         int           // Number of concurrent submitters
	Timeout         time.Duration // HTTP request timeout
	PollTimeout     time.Duration // How long to wait for receipts
	PollInterval    time.Duration // Delay between receipt polls
	Verbose         bool          // Log every request
}

// Interaction is one generated POST /trust-score body.
type Interaction struct {
	WalletAddress   string `json:"walletAddress"`
	InteractionType string `json:"interactionType"`
	QualityScore    int    `json:"qualityScore"`
}

// Stats holds run statistics.
type Stats struct {
	Generated       int
	Submitted       int
	Accepted        int // queued for the ledger
	CachedOnly      int // recorded but not queued
	Failed          int
	Confirmed       int // receipts observed while polling
	Dropped         int // tasks the ledger writer gave up on
	Pending         int
	ReputationReads int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
