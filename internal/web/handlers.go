package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/meterease/internal/account"
	"github.com/zombor/meterease/internal/billing"
	"github.com/zombor/meterease/internal/capture"
	"github.com/zombor/meterease/internal/notify"
	"github.com/zombor/meterease/internal/workflow"
)

// valueRequest is the body of every single-field update
type valueRequest struct {
	Value string `json:"value"`
}

type sessionResponse struct {
	ID   string `json:"id"`
	Next string `json:"next"`
}

type captureResponse struct {
	workflow.CaptureView
	Accepted bool `json:"accepted"`
}

type continueResponse struct {
	PreviousReading string `json:"previous_reading"`
	HasImage        bool   `json:"has_image"`
	Next            string `json:"next"`
}

type calculationResponse struct {
	workflow.CalculationView
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

type billResponse struct {
	Document     billing.Document `json:"document"`
	Lines        []string         `json:"lines"`
	AmountDue    string           `json:"amount_due"`
	Filename     string           `json:"filename"`
	Notification notify.Delivery  `json:"notification"`
	Message      string           `json:"message"`
	DownloadURL  string           `json:"download_url"`
	PreviewURL   string           `json:"preview_url"`
}

// handleHealthz reports liveness
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleStartSession creates a workflow session for the scan page
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := s.service.StartSession()
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Next: "/scan?session=" + id})
}

// handleGetCapture returns the current capture stage
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Capture(r.PathValue("id"))
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{CaptureView: view, Accepted: true})
}

// handleSetPreviousReading applies a keystroke to the previous reading
func (s *Server) handleSetPreviousReading(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	view, err := s.service.SetPreviousReading(r.PathValue("id"), req.Value)
	if errors.Is(err, workflow.ErrInvalidInputFormat) {
		// Masked-out input is dropped, not reported
		writeJSON(w, http.StatusOK, captureResponse{CaptureView: view, Accepted: false})
		return
	}
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{CaptureView: view, Accepted: true})
}

// handleUploadImage reads a captured or uploaded meter photo
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				"File is too large. Please compress or resize your image.")
			return
		}
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeAPIError(w, http.StatusBadRequest, "missing_file", "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	src := capture.Source{
		Filename:    header.Filename,
		ContentType: strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type"))),
		Reader:      f,
	}
	view, err := s.service.SetImage(r.Context(), r.PathValue("id"), src)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{CaptureView: view, Accepted: true})
}

// handleContinue moves a complete capture stage to the calculation page
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.applyFinalValue(w, r, func(value string) error {
		_, err := s.service.SetPreviousReading(id, value)
		return err
	}) {
		return
	}

	handoff, err := s.service.Continue(id)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, continueResponse{
		PreviousReading: handoff.PreviousReading,
		HasImage:        !handoff.MeterImage.IsZero(),
		Next:            "/calculation?session=" + id,
	})
}

// handleGetCalculation opens the calculation stage of a session
func (s *Server) handleGetCalculation(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.OpenCalculation(r.PathValue("id"))
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{CalculationView: view, Accepted: true})
}

// handleSetCurrentReading applies a keystroke to the current reading
func (s *Server) handleSetCurrentReading(w http.ResponseWriter, r *http.Request) {
	s.handleCalculationInput(w, r, s.service.SetCurrentReading)
}

// handleSetPhoneNumber applies a keystroke to the phone number
func (s *Server) handleSetPhoneNumber(w http.ResponseWriter, r *http.Request) {
	s.handleCalculationInput(w, r, s.service.SetPhoneNumber)
}

func (s *Server) handleCalculationInput(w http.ResponseWriter, r *http.Request, set func(id, input string) (workflow.CalculationView, error)) {
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	view, err := set(r.PathValue("id"), req.Value)
	if errors.Is(err, workflow.ErrInvalidInputFormat) {
		writeJSON(w, http.StatusOK, calculationResponse{CalculationView: view, Accepted: false})
		return
	}
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{CalculationView: view, Accepted: true})
}

// handleCalculate computes the consumption and the estimated cost
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.applyFinalValue(w, r, func(value string) error {
		_, err := s.service.SetCurrentReading(id, value)
		return err
	}) {
		return
	}

	view, err := s.service.Calculate(id)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{
		CalculationView: view,
		Accepted:        true,
		Message:         "Consumption calculated successfully!",
	})
}

// handleGenerateBill issues the bill and sends the SMS notification
func (s *Server) handleGenerateBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.applyFinalValue(w, r, func(value string) error {
		_, err := s.service.SetPhoneNumber(id, value)
		return err
	}) {
		return
	}

	bill, err := s.service.GenerateBill(r.Context(), id)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	billsGeneratedTotal.Inc()

	writeJSON(w, http.StatusOK, billResponse{
		Document:     bill.Document,
		Lines:        bill.Document.Lines(),
		AmountDue:    bill.Document.Tariff.Format(bill.Document.AmountDue),
		Filename:     bill.Filename,
		Notification: bill.Notification,
		Message:      bill.Notification.Confirmation,
		DownloadURL:  "/api/sessions/" + id + "/bill.pdf",
		PreviewURL:   "/api/sessions/" + id + "/bill.png",
	})
}

// handleGetBillPDF downloads the generated bill
func (s *Server) handleGetBillPDF(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.BillPDF(r.PathValue("id"))
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+billing.Filename+`"`)
	w.Write(data)
}

// handleGetBillPreview shows the first page of the generated bill
func (s *Server) handleGetBillPreview(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.BillPreview(r.PathValue("id"))
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// handleLogin submits the login form
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	result, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		accountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRegister submits the registration form
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg account.Registration
	if err := decodeJSON(r, &reg); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	result, err := s.auth.Register(r.Context(), reg)
	if err != nil {
		accountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// applyFinalValue sets the field a step depends on when the request carries
// its final value. Steps without a body use the stored value. It reports
// whether the handler should go on.
func (s *Server) applyFinalValue(w http.ResponseWriter, r *http.Request, set func(value string) error) bool {
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	if err := set(req.Value); err != nil {
		s.workflowError(w, r, err)
		return false
	}
	return true
}

// workflowError maps a workflow error to a status and a user-facing notification
func (s *Server) workflowError(w http.ResponseWriter, r *http.Request, err error) {
	kind := workflow.Kind(err)
	workflowErrorsTotal.WithLabelValues(kind).Inc()

	switch {
	case workflow.IsValidation(err):
		slog.Warn("Workflow step rejected", "kind", kind, "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusUnprocessableEntity, kind, workflow.Message(err))
	case errors.Is(err, workflow.ErrSessionNotFound), errors.Is(err, workflow.ErrBillNotGenerated):
		slog.Warn("Workflow lookup failed", "kind", kind, "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusNotFound, kind, workflow.Message(err))
	default:
		slog.Error("Workflow request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusInternalServerError, kind, workflow.Message(err))
	}
}

func accountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrPasswordMismatch):
		writeAPIError(w, http.StatusUnprocessableEntity, "password_mismatch", "Passwords do not match")
	case errors.Is(err, account.ErrMissingField):
		writeAPIError(w, http.StatusUnprocessableEntity, "missing_field", "Please fill in all required fields")
	default:
		slog.Error("Account request failed", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again")
	}
}
