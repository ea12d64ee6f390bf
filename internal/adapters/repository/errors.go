package repository

import "errors"

// Sentinel kinds for reputation store errors.
var (
	ErrEmptyIdentity  = errors.New("empty identity")
	ErrInvalidQuality = errors.New("quality score out of range")
)
