package service

import "errors"

// Validation failures rejected before any state mutation.
var (
	ErrMissingSender         = errors.New("sender is missing")
	ErrEmptyMessage          = errors.New("message has no text and no media")
	ErrInvalidRecipient      = errors.New("recipient does not normalize to a phone key")
	ErrMissingConversationID = errors.New("conversation id is required")
	ErrMissingFromNumber     = errors.New("outbound from-number is not configured")
)
