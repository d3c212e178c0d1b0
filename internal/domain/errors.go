package domain

import "errors"

// Sentinel errors shared by repositories and services.
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrRecordNotFound    = errors.New("delivery record not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrAlreadyEnrolled   = errors.New("recipient already has an active enrollment")
	ErrNotCancellable    = errors.New("delivery record is not scheduled")
)
