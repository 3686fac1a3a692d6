package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zombor/meterease/internal/capture"
)

// CaptureView is a snapshot of the capture stage
type CaptureView struct {
	MeterImage      capture.MeterImage `json:"meter_image,omitempty"`
	PreviousReading string             `json:"previous_reading"`
	Ready           bool               `json:"ready"`
}

// CaptureStage collects the meter photo and the previous reading
type CaptureStage struct {
	loader *capture.Loader

	mu              sync.Mutex
	image           capture.MeterImage
	previousReading string
}

// NewCaptureStage creates an empty capture stage
func NewCaptureStage(loader *capture.Loader) *CaptureStage {
	return &CaptureStage{loader: loader}
}

// SetPreviousReading updates the previous reading. Input that is not 0-7 digits is
// dropped, leaving the value unchanged, and reported as ErrInvalidInputFormat.
func (c *CaptureStage) SetPreviousReading(input string) error {
	if !MaskReading(input) {
		return ErrInvalidInputFormat
	}
	c.mu.Lock()
	c.previousReading = input
	c.mu.Unlock()
	return nil
}

// SetImage reads the selected file into the stage. On failure the previous image is kept.
func (c *CaptureStage) SetImage(ctx context.Context, src capture.Source) error {
	err := c.loader.Load(ctx, src, func(img capture.MeterImage) {
		c.mu.Lock()
		c.image = img
		c.mu.Unlock()
	})
	if err == nil || errors.Is(err, ErrSuperseded) || errors.Is(err, ErrReadFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrReadFailure, err)
}

// ConfirmAndContinue validates the stage and returns the payload for the calculation stage
func (c *CaptureStage) ConfirmAndContinue() (Handoff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.image.IsZero() {
		return Handoff{}, ErrMissingImage
	}
	if !IsCompleteReading(c.previousReading) {
		return Handoff{}, ErrInvalidPreviousReading
	}
	return Handoff{
		MeterImage:      c.image,
		PreviousReading: c.previousReading,
	}, nil
}

// View returns a snapshot of the stage
func (c *CaptureStage) View() CaptureView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CaptureView{
		MeterImage:      c.image,
		PreviousReading: c.previousReading,
		Ready:           !c.image.IsZero() && IsCompleteReading(c.previousReading),
	}
}
