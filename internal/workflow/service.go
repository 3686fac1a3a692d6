package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/meterease/internal/billing"
	"github.com/zombor/meterease/internal/capture"
	"github.com/zombor/meterease/internal/notify"
)

// DefaultSessionTTL bounds how long an idle workflow session is kept
const DefaultSessionTTL = 24 * time.Hour

// IDGenerator generates unique session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// Config tunes the workflow service
type Config struct {
	Tariff         billing.Tariff
	MaxUploadBytes int64
	SessionTTL     time.Duration
}

// Service drives workflow sessions from capture through billing
type Service struct {
	handoffs    HandoffStore
	archive     billing.Archive
	renderer    billing.Renderer
	notifier    notify.Notifier
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource

	captures     *TTLCache[string, *CaptureStage]
	calculations *TTLCache[string, *CalculationStage]
	openMu       sync.Mutex
}

// NewService creates a new Service with default ID generator and time source
func NewService(handoffs HandoffStore, archive billing.Archive, renderer billing.Renderer, notifier notify.Notifier, config Config) *Service {
	return NewServiceWithDeps(handoffs, archive, renderer, notifier, config, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(handoffs HandoffStore, archive billing.Archive, renderer billing.Renderer, notifier notify.Notifier, config Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	if config.Tariff.Rate.IsZero() && config.Tariff.Currency == "" {
		config.Tariff = billing.DefaultTariff()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = capture.DefaultMaxBytes
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		handoffs:     handoffs,
		archive:      archive,
		renderer:     renderer,
		notifier:     notifier,
		config:       config,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		captures:     NewTTLCache[string, *CaptureStage](),
		calculations: NewTTLCache[string, *CalculationStage](),
	}
}

// Tariff returns the tariff bills are priced with
func (s *Service) Tariff() billing.Tariff {
	return s.config.Tariff
}

// StartSession opens a new capture stage and returns its session ID
func (s *Service) StartSession() string {
	id := s.idGenerator.Generate()
	s.captures.Set(id, NewCaptureStage(capture.NewLoader(s.config.MaxUploadBytes)), s.config.SessionTTL)
	slog.Info("Workflow session started", "session", id)
	return id
}

// Capture returns the capture view of a session
func (s *Service) Capture(id string) (CaptureView, error) {
	stage, err := s.captureStage(id)
	if err != nil {
		return CaptureView{}, err
	}
	return stage.View(), nil
}

// SetPreviousReading applies the soft mask to the previous reading
func (s *Service) SetPreviousReading(id, input string) (CaptureView, error) {
	stage, err := s.captureStage(id)
	if err != nil {
		return CaptureView{}, err
	}
	err = stage.SetPreviousReading(input)
	return stage.View(), err
}

// SetImage loads the selected meter photo into the session
func (s *Service) SetImage(ctx context.Context, id string, src capture.Source) (CaptureView, error) {
	stage, err := s.captureStage(id)
	if err != nil {
		return CaptureView{}, err
	}
	if err := stage.SetImage(ctx, src); err != nil {
		slog.Error("Failed to read meter image",
			"session", id,
			"filename", src.Filename,
			"content_type", src.ContentType,
			"error", err,
		)
		return stage.View(), err
	}
	return stage.View(), nil
}

// Continue validates the capture stage and hands its values to the calculation stage
func (s *Service) Continue(id string) (Handoff, error) {
	stage, err := s.captureStage(id)
	if err != nil {
		return Handoff{}, err
	}
	handoff, err := stage.ConfirmAndContinue()
	if err != nil {
		return Handoff{}, err
	}
	// A bill from an earlier pass belongs to the old readings
	if err := s.archive.Delete(archiveKey(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Handoff{}, fmt.Errorf("clearing previous bill: %w", err)
	}
	if err := s.handoffs.Put(id, handoff); err != nil {
		return Handoff{}, fmt.Errorf("saving handoff: %w", err)
	}
	// Entering the calculation page again starts from the new values
	s.calculations.Delete(id)
	slog.Info("Capture confirmed", "session", id, "previous_reading", handoff.PreviousReading)
	return handoff, nil
}

// OpenCalculation enters the calculation stage of a session. Sessions without
// a handoff still open, with no image and an empty previous reading.
func (s *Service) OpenCalculation(id string) (CalculationView, error) {
	stage, err := s.calculationStage(id)
	if err != nil {
		return CalculationView{}, err
	}
	return stage.View(), nil
}

// SetCurrentReading applies the soft mask to the current reading
func (s *Service) SetCurrentReading(id, input string) (CalculationView, error) {
	stage, err := s.calculationStage(id)
	if err != nil {
		return CalculationView{}, err
	}
	err = stage.SetCurrentReading(input)
	return stage.View(), err
}

// Calculate computes the consumption of a session
func (s *Service) Calculate(id string) (CalculationView, error) {
	stage, err := s.calculationStage(id)
	if err != nil {
		return CalculationView{}, err
	}
	if _, err := stage.CalculateConsumption(); err != nil {
		return stage.View(), err
	}
	return stage.View(), nil
}

// SetPhoneNumber sets the number the bill notification is addressed to
func (s *Service) SetPhoneNumber(id, input string) (CalculationView, error) {
	stage, err := s.calculationStage(id)
	if err != nil {
		return CalculationView{}, err
	}
	err = stage.SetPhoneNumber(input)
	return stage.View(), err
}

// GenerateBill issues the bill of a session and archives the PDF
func (s *Service) GenerateBill(ctx context.Context, id string) (*Bill, error) {
	stage, err := s.calculationStage(id)
	if err != nil {
		return nil, err
	}
	bill, err := stage.GenerateBill(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.archive.Save(archiveKey(id), bill.PDF); err != nil {
		// The PDF is still served from the live stage
		slog.Warn("Failed to archive bill", "session", id, "error", err)
	}
	slog.Info("Bill generated",
		"session", id,
		"consumption_kwh", bill.Document.Consumption,
		"amount_due", bill.Document.AmountDue.StringFixed(2),
	)
	return bill, nil
}

// BillPDF returns the generated PDF of a session
func (s *Service) BillPDF(id string) ([]byte, error) {
	if stage, ok := s.calculations.Get(id); ok {
		bill, ok := stage.Bill()
		if !ok {
			return nil, ErrBillNotGenerated
		}
		return bill.PDF, nil
	}
	data, err := s.archive.Get(archiveKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBillNotGenerated, err)
	}
	return data, nil
}

// BillPreview renders the first page of the generated bill as PNG
func (s *Service) BillPreview(id string) ([]byte, error) {
	pdf, err := s.BillPDF(id)
	if err != nil {
		return nil, err
	}
	preview, err := billing.Preview(pdf)
	if err != nil {
		return nil, fmt.Errorf("rendering bill preview: %w", err)
	}
	return preview, nil
}

// Purge drops expired live stages and handoffs
func (s *Service) Purge() (int, error) {
	removed := s.captures.Purge() + s.calculations.Purge()
	handoffs, err := s.handoffs.Purge()
	if err != nil {
		return removed, fmt.Errorf("purging handoffs: %w", err)
	}
	return removed + handoffs, nil
}

func (s *Service) captureStage(id string) (*CaptureStage, error) {
	stage, ok := s.captures.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return stage, nil
}

func (s *Service) calculationStage(id string) (*CalculationStage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}

	s.openMu.Lock()
	defer s.openMu.Unlock()
	if stage, ok := s.calculations.Get(id); ok {
		return stage, nil
	}

	handoff, found, err := s.handoffs.Get(id)
	if err != nil {
		return nil, fmt.Errorf("loading handoff: %w", err)
	}
	if !found {
		slog.Warn("No handoff for session, opening calculation without capture values", "session", id)
	}

	stage := NewCalculationStage(handoff, CalculationDeps{
		Tariff:   s.config.Tariff,
		Renderer: s.renderer,
		Notifier: s.notifier,
		Clock:    s.timeSource,
	})
	s.calculations.Set(id, stage, s.config.SessionTTL)
	return stage, nil
}

func archiveKey(id string) string {
	return id + "_" + billing.Filename
}
