package service

import (
	"errors"

	"github.com/okian/trustledger/internal/domain/types"
)

// Sentinel errors returned by the service.
var (
	// ErrInvalidInput is returned for a malformed identity, an unknown
	// interaction type or an out-of-range quality score.
	ErrInvalidInput = types.ErrInvalidInput

	// ErrNoTransport is returned by Start when no ledger transport was
	// configured.
	ErrNoTransport = errors.New("no ledger transport configured")

	// ErrStopped is returned by Start once the service has been stopped.
	ErrStopped = errors.New("service stopped")
)
