package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrDuplicateName = errors.New("campaign name already exists")
	ErrValidation    = errors.New("invalid campaign")
)
