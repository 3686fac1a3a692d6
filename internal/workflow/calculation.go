package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zombor/meterease/internal/billing"
	"github.com/zombor/meterease/internal/capture"
	"github.com/zombor/meterease/internal/notify"
)

// Status is the state of a calculation stage
type Status string

const (
	// StatusInitial means the stored values were loaded and no complete reading was entered
	StatusInitial Status = "initial"
	// StatusReadingEntered means a complete current reading was typed
	StatusReadingEntered Status = "reading_entered"
	// StatusCalculated means the consumption was computed
	StatusCalculated Status = "calculated"
	// StatusBillGenerated means the bill was issued; terminal
	StatusBillGenerated Status = "bill_generated"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is one of the defined constants
func (s Status) IsValid() bool {
	switch s {
	case StatusInitial, StatusReadingEntered, StatusCalculated, StatusBillGenerated:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to target is allowed
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusInitial:
		return target == StatusReadingEntered
	case StatusReadingEntered:
		// Deleting a digit drops back to initial
		return target == StatusInitial || target == StatusCalculated
	case StatusCalculated:
		// Editing the reading invalidates the consumption
		return target == StatusInitial || target == StatusReadingEntered || target == StatusBillGenerated
	case StatusBillGenerated:
		return false
	default:
		return false
	}
}

// Bill is the outcome of the calculation stage
type Bill struct {
	Document     billing.Document `json:"document"`
	Filename     string           `json:"filename"`
	PDF          []byte           `json:"-"`
	Notification notify.Delivery  `json:"notification"`
}

// CalculationView is a snapshot of the calculation stage
type CalculationView struct {
	MeterImage      capture.MeterImage `json:"meter_image,omitempty"`
	PreviousReading string             `json:"previous_reading"`
	CurrentReading  string             `json:"current_reading"`
	PhoneNumber     string             `json:"phone_number"`
	Status          Status             `json:"status"`
	Consumption     *int64             `json:"consumption,omitempty"`
	EstimatedCost   string             `json:"estimated_cost,omitempty"`
}

// CalculationDeps are the collaborators of a calculation stage
type CalculationDeps struct {
	Tariff   billing.Tariff
	Renderer billing.Renderer
	Notifier notify.Notifier
	Clock    TimeSource
}

// CalculationStage turns two readings into a consumption figure and a bill
type CalculationStage struct {
	deps CalculationDeps

	mu             sync.Mutex
	handoff        Handoff
	currentReading string
	phoneNumber    string
	consumption    int64
	status         Status
	bill           *Bill
}

// NewCalculationStage starts a calculation from the capture handoff. A zero
// handoff is allowed: the image is omitted and the previous reading is empty.
func NewCalculationStage(handoff Handoff, deps CalculationDeps) *CalculationStage {
	if deps.Clock == nil {
		deps.Clock = &defaultTimeSource{}
	}
	return &CalculationStage{
		deps:    deps,
		handoff: handoff,
		status:  StatusInitial,
	}
}

// SetCurrentReading updates the current reading with the same mask as the previous one
func (c *CalculationStage) SetCurrentReading(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusBillGenerated {
		return ErrStageClosed
	}
	if !MaskReading(input) {
		return ErrInvalidInputFormat
	}
	if input == c.currentReading {
		return nil
	}

	c.currentReading = input
	c.consumption = 0
	if IsCompleteReading(input) {
		c.transition(StatusReadingEntered)
	} else {
		c.transition(StatusInitial)
	}
	return nil
}

// CalculateConsumption computes current - previous. Repeating the call with
// unchanged readings returns the same result.
func (c *CalculationStage) CalculateConsumption() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusBillGenerated {
		return 0, ErrStageClosed
	}

	current, ok := parseReading(c.currentReading)
	if !ok {
		return 0, ErrInvalidCurrentReading
	}
	previous, ok := parseReading(c.handoff.PreviousReading)
	if !ok {
		return 0, ErrInvalidPreviousReading
	}
	if current < previous {
		return 0, ErrNegativeConsumption
	}

	c.consumption = current - previous
	c.transition(StatusCalculated)
	return c.consumption, nil
}

// SetPhoneNumber updates the notification phone number; digits only
func (c *CalculationStage) SetPhoneNumber(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusBillGenerated {
		return ErrStageClosed
	}
	if !MaskPhone(input) {
		return ErrInvalidInputFormat
	}
	c.phoneNumber = input
	return nil
}

// GenerateBill renders the bill and sends the notification
func (c *CalculationStage) GenerateBill(ctx context.Context) (*Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusBillGenerated {
		return nil, ErrStageClosed
	}
	if c.status != StatusCalculated || c.phoneNumber == "" {
		return nil, ErrIncompleteBillRequest
	}

	doc := billing.NewDocument(
		c.handoff.PreviousReading,
		c.currentReading,
		c.consumption,
		c.deps.Tariff,
		c.deps.Clock.Now(),
	)

	pdf, err := c.deps.Renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering bill: %w", err)
	}

	delivery, err := c.deps.Notifier.Send(ctx, c.phoneNumber, billMessage(doc))
	if err != nil {
		return nil, fmt.Errorf("sending notification: %w", err)
	}

	c.bill = &Bill{
		Document:     doc,
		Filename:     billing.Filename,
		PDF:          pdf,
		Notification: delivery,
	}
	c.transition(StatusBillGenerated)
	return c.bill, nil
}

// Bill returns the generated bill, if any
func (c *CalculationStage) Bill() (*Bill, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bill, c.bill != nil
}

// Status returns the current state
func (c *CalculationStage) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// View returns a snapshot of the stage
func (c *CalculationStage) View() CalculationView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := CalculationView{
		MeterImage:      c.handoff.MeterImage,
		PreviousReading: c.handoff.PreviousReading,
		CurrentReading:  c.currentReading,
		PhoneNumber:     c.phoneNumber,
		Status:          c.status,
	}
	if c.status == StatusCalculated || c.status == StatusBillGenerated {
		consumption := c.consumption
		view.Consumption = &consumption
		view.EstimatedCost = c.deps.Tariff.Format(c.deps.Tariff.Cost(consumption))
	}
	return view
}

// transition moves to target; self-transitions are no-ops. Callers hold c.mu.
func (c *CalculationStage) transition(target Status) {
	if c.status == target {
		return
	}
	if !c.status.CanTransitionTo(target) {
		panic(fmt.Sprintf("workflow: invalid transition %s -> %s", c.status, target))
	}
	c.status = target
}

func billMessage(doc billing.Document) string {
	return fmt.Sprintf("MeterEase: your electricity bill for %d kWh is %s, due %s.",
		doc.Consumption,
		doc.Tariff.Format(doc.AmountDue),
		billing.FormatDate(doc.DueDate),
	)
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}
