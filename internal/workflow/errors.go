package workflow

import (
	"errors"

	"github.com/zombor/meterease/internal/capture"
)

var (
	// ErrInvalidInputFormat is returned when a keystroke is masked out; the value is left unchanged
	ErrInvalidInputFormat = errors.New("invalid input format")
	// ErrMissingImage is returned when continuing without a meter photo
	ErrMissingImage = errors.New("meter image is missing")
	// ErrInvalidPreviousReading is returned when the previous reading is not 7 digits
	ErrInvalidPreviousReading = errors.New("previous reading must be 7 digits")
	// ErrInvalidCurrentReading is returned when the current reading is not 7 digits
	ErrInvalidCurrentReading = errors.New("current reading must be 7 digits")
	// ErrNegativeConsumption is returned when the current reading is below the previous one
	ErrNegativeConsumption = errors.New("current reading is less than previous reading")
	// ErrIncompleteBillRequest is returned when billing before calculating or without a phone number
	ErrIncompleteBillRequest = errors.New("consumption and phone number are required")
	// ErrStageClosed is returned for any change after the bill was generated
	ErrStageClosed = errors.New("bill already generated")
	// ErrSessionNotFound is returned for unknown or expired sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrBillNotGenerated is returned when downloading a bill that does not exist yet
	ErrBillNotGenerated = errors.New("bill not generated")

	// ErrReadFailure is returned when the selected image could not be read
	ErrReadFailure = capture.ErrReadFailure
	// ErrSuperseded is returned when a newer image selection replaced this one
	ErrSuperseded = capture.ErrSuperseded
)

// messages holds the user-facing notification for each validation error
var messages = []struct {
	err     error
	kind    string
	message string
}{
	{ErrInvalidInputFormat, "invalid_input_format", "Only digits are allowed"},
	{ErrMissingImage, "missing_image", "Please capture or upload an image first"},
	{ErrInvalidPreviousReading, "invalid_previous_reading", "Please enter a valid 7-digit previous reading"},
	{ErrInvalidCurrentReading, "invalid_current_reading", "Please enter a valid 7-digit current reading"},
	{ErrNegativeConsumption, "negative_consumption", "Current reading cannot be less than previous reading"},
	{ErrIncompleteBillRequest, "incomplete_bill_request", "Please calculate consumption and enter a phone number first"},
	{ErrStageClosed, "stage_closed", "The bill has already been generated"},
	{ErrSuperseded, "superseded", "A newer image was selected"},
	{ErrReadFailure, "read_failure", "Could not read the selected image"},
	{ErrSessionNotFound, "session_not_found", "Session not found. Please start again"},
	{ErrBillNotGenerated, "bill_not_generated", "The bill has not been generated yet"},
}

// Kind returns a stable identifier for a workflow error, or "internal"
func Kind(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return "internal"
}

// Message returns the notification text shown to the user for err
func Message(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return "Something went wrong. Please try again"
}

// IsValidation reports whether err blocks a transition without being a fault
func IsValidation(err error) bool {
	switch Kind(err) {
	case "internal", "session_not_found", "bill_not_generated":
		return false
	}
	return true
}
