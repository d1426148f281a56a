package generation

import (
	"errors"
	"fmt"

	"github.com/thumbforge/server/internal/utils/billingflow"
)

var (
	// ErrMissingData is returned when prompt or frames are absent.
	ErrMissingData = errors.New("prompt and frames are required")

	// ErrInvalidFrame is returned when a frame cannot be decoded.
	ErrInvalidFrame = fmt.Errorf("%w: frame is not valid base64 image data", ErrMissingData)

	// ErrInvalidTemplateID is returned when templateId is malformed or not owned by the caller.
	ErrInvalidTemplateID = errors.New("invalid template id")

	// ErrInvalidParentID is returned when parentGenerationId is malformed or not owned by the caller.
	ErrInvalidParentID = errors.New("invalid parent generation id")

	// ErrNoImages is returned when a provider call succeeds without any image.
	ErrNoImages = errors.New("provider returned no images")

	// ErrInvalidOutput is returned when a provider image fails the type or size checks.
	ErrInvalidOutput = errors.New("invalid output image")

	// ErrStorageWrite is returned when an output could not be stored.
	ErrStorageWrite = errors.New("output storage write failed")

	// ErrRecordCreate is returned when the job row could not be created.
	ErrRecordCreate = errors.New("create generation record failed")

	// ErrNotConfigured is returned when a required binding is missing.
	ErrNotConfigured = errors.New("generation service is not configured")

	// ErrGenerationNotFound is returned when a job does not exist or belongs to someone else.
	ErrGenerationNotFound = errors.New("generation not found")
)

// CreditDeniedError is returned when the caller's balance cannot cover the request.
type CreditDeniedError struct {
	Balance  int64
	Required int64
}

func (e *CreditDeniedError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

// Unwrap lets errors.Is match billingflow.ErrInsufficientCredits.
func (e *CreditDeniedError) Unwrap() error {
	return billingflow.ErrInsufficientCredits
}

func isInvalidOutput(err error) bool {
	return errors.Is(err, ErrInvalidOutput)
}
