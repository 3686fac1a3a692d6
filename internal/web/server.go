package web

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/meterease/internal/account"
	"github.com/zombor/meterease/internal/capture"
	"github.com/zombor/meterease/internal/workflow"
)

// Server handles HTTP requests for the MeterEase workflow
type Server struct {
	service        *workflow.Service
	auth           account.AuthService
	basicAuth      BasicAuth
	maxUploadBytes int64
	mux            *http.ServeMux

	httpMu     sync.Mutex
	httpServer *http.Server
	closed     bool
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Option configures a Server
type Option func(*Server)

// WithBasicAuth puts every page and API route behind basic auth
func WithBasicAuth(auth BasicAuth) Option {
	return func(s *Server) {
		s.basicAuth = auth
	}
}

// WithMaxUploadBytes caps the size of a meter photo upload
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates a new Server with default mux
func NewServer(service *workflow.Service, auth account.AuthService, opts ...Option) *Server {
	return NewServerWithMux(service, auth, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *workflow.Service, auth account.AuthService, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{
		service:        service,
		auth:           auth,
		maxUploadBytes: capture.DefaultMaxBytes,
		mux:            mux,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="MeterEase"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	// Static assets
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	// API endpoints - workflow sessions
	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleStartSession))
	s.mux.HandleFunc("GET /api/sessions/{id}/capture", s.requireAuth(s.handleGetCapture))
	s.mux.HandleFunc("PUT /api/sessions/{id}/previous-reading", s.requireAuth(s.handleSetPreviousReading))
	s.mux.HandleFunc("POST /api/sessions/{id}/image", s.requireAuth(s.handleUploadImage))
	s.mux.HandleFunc("POST /api/sessions/{id}/continue", s.requireAuth(s.handleContinue))
	s.mux.HandleFunc("GET /api/sessions/{id}/calculation", s.requireAuth(s.handleGetCalculation))
	s.mux.HandleFunc("PUT /api/sessions/{id}/current-reading", s.requireAuth(s.handleSetCurrentReading))
	s.mux.HandleFunc("PUT /api/sessions/{id}/phone", s.requireAuth(s.handleSetPhoneNumber))
	s.mux.HandleFunc("POST /api/sessions/{id}/calculate", s.requireAuth(s.handleCalculate))
	s.mux.HandleFunc("POST /api/sessions/{id}/bill", s.requireAuth(s.handleGenerateBill))
	s.mux.HandleFunc("GET /api/sessions/{id}/bill.pdf", s.requireAuth(s.handleGetBillPDF))
	s.mux.HandleFunc("GET /api/sessions/{id}/bill.png", s.requireAuth(s.handleGetBillPreview))

	// API endpoints - accounts
	s.mux.HandleFunc("POST /api/login", s.requireAuth(s.handleLogin))
	s.mux.HandleFunc("POST /api/register", s.requireAuth(s.handleRegister))

	// Operations
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Pages
	s.mux.HandleFunc("GET /scan", s.requireAuth(s.handlePage("scan.html")))
	s.mux.HandleFunc("GET /calculation", s.requireAuth(s.handlePage("calculation.html")))
	s.mux.HandleFunc("GET /login", s.requireAuth(s.handlePage("login.html")))
	s.mux.HandleFunc("GET /register", s.requireAuth(s.handlePage("register.html")))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handlePage("index.html")))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	s.httpMu.Lock()
	if s.closed {
		s.httpMu.Unlock()
		return nil
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.httpServer
	s.httpMu.Unlock()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server; a later Start returns immediately
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpMu.Lock()
	s.closed = true
	srv := s.httpServer
	s.httpMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP applies CORS and request metrics, then dispatches to the mux
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	setCORSHeaders(w)

	// Handle preflight OPTIONS requests
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	observeHTTPRequest(r, rec.status, time.Since(start))
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}
