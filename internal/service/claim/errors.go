package claim

import "errors"

// Sentinel errors for the claim service layer.
var (
	ErrInsufficientAvailability = errors.New("this item was just claimed by someone else")
	ErrGiftNotFound             = errors.New("gift not found")
	ErrFamilyNotFound           = errors.New("family not found")
	ErrPersonNotFound           = errors.New("person not found")
	ErrClaimNotFound            = errors.New("claim not found")
	ErrCampaignNotActive        = errors.New("donations are closed")

	// ErrTransientConflict marks storage-level lock or serialization
	// failures. Repositories wrap driver errors with it; the service
	// retries them a bounded number of times.
	ErrTransientConflict = errors.New("transient storage conflict")
)
