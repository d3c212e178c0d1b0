package enrollment

import "errors"

// Sentinel errors for the enrollment service layer.
var (
	ErrEmptySequence = errors.New("campaign has no steps")
	ErrMissingUser   = errors.New("user id and email are required")
)
