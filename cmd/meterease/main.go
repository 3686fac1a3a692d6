package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/meterease/internal/account"
	"github.com/zombor/meterease/internal/billing"
	"github.com/zombor/meterease/internal/notify"
	"github.com/zombor/meterease/internal/web"
	"github.com/zombor/meterease/internal/workflow"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("meterease")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "", "Handoff database file path (empty keeps handoffs in memory)")
		billsPath   = fs.StringLong("bills", "./bills", "Directory for generated bill PDFs")
		rate        = fs.StringLong("rate", billing.DefaultRate, "Price per kWh")
		currency    = fs.StringLong("currency", billing.DefaultCurrency, "Currency symbol printed on bills")
		sessionTTL  = fs.DurationLong("session-ttl", workflow.DefaultSessionTTL, "How long an idle workflow session is kept")
		maxUploadMB = fs.IntLong("max-upload-mb", 50, "Maximum meter photo size in MB")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("METEREASE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	tariff, err := billing.ParseTariff(*rate, *currency)
	if err != nil {
		slog.Error("Invalid tariff", "rate", *rate, "currency", *currency, "error", err)
		os.Exit(1)
	}

	// Initialize handoff store
	var handoffs workflow.HandoffStore
	if *dbPath != "" {
		slog.Info("Initializing database...", "path", *dbPath)
		handoffs, err = workflow.NewBoltHandoffStore(*dbPath, *sessionTTL)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
	} else {
		handoffs = workflow.NewMemoryHandoffStore(*sessionTTL)
	}
	if err := run(handoffs, *billsPath, tariff, *sessionTTL, int64(*maxUploadMB)<<20, *port, web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}); err != nil {
		slog.Error("Server error", "error", err)
		handoffs.Close()
		os.Exit(1)
	}
	if err := handoffs.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// run serves until a signal arrives or the server fails
func run(handoffs workflow.HandoffStore, billsPath string, tariff billing.Tariff, sessionTTL time.Duration, maxUploadBytes int64, port int, basicAuth web.BasicAuth) error {
	// Initialize bill archive
	slog.Info("Initializing storage...", "path", billsPath)
	archive, err := billing.NewLocalArchive(billsPath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	service := workflow.NewService(handoffs, archive, billing.NewPDFRenderer(), notify.NewLogNotifier(), workflow.Config{
		Tariff:         tariff,
		MaxUploadBytes: maxUploadBytes,
		SessionTTL:     sessionTTL,
	})

	// Initialize server
	server := web.NewServer(service, account.StubAuth{},
		web.WithBasicAuth(basicAuth),
		web.WithMaxUploadBytes(maxUploadBytes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeExpired(ctx, service, time.Minute)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"rate", tariff.Format(tariff.Rate),
	)
	if basicAuth.Username != "" || basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", basicAuth.Username)
	}

	// Wait for interrupt signal or a server failure
	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-serverErr
}

// purgeExpired drops idle sessions and expired handoffs until ctx is done
func purgeExpired(ctx context.Context, service *workflow.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := service.Purge()
			if err != nil {
				slog.Warn("Failed to purge sessions", "error", err)
			}
			if purged > 0 {
				slog.Info("Purged expired sessions", "count", purged)
			}
		}
	}
}
