package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrFamilyNotFound    = errors.New("family not found")
	ErrPersonNotFound    = errors.New("person not found")
	ErrGiftNotFound      = errors.New("gift not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)
