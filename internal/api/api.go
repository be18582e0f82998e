// Package api provides the HTTP server and bootstrap logic for DASSPipe.
//
// It exposes endpoints for starting assessments, submitting answers, reading
// session records and delivery receipts, and the Twilio inbound webhook. Run
// wires the store, messaging, flow and response handler modules together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/flow"
	"github.com/BTreeMap/DASSPipe/internal/messaging"
	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/recovery"
	"github.com/BTreeMap/DASSPipe/internal/store"
	"github.com/BTreeMap/DASSPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/DASSPipe/internal/whatsapp"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Messaging backends selectable with WithBackend.
const (
	BackendWhatsApp = "whatsapp"
	BackendTwilio   = "twilio"
	BackendMock     = "mock"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string        // listen address
	Backend          string        // messaging backend
	ReminderDelay    time.Duration // zero disables reminders
	TwilioWebhookURL string        // public webhook URL used for signature checks
	TwilioAuthToken  string        // token used for signature checks
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithBackend selects the messaging backend (whatsapp, twilio or mock).
func WithBackend(backend string) Option {
	return func(o *Opts) {
		o.Backend = backend
	}
}

// WithReminderDelay re-sends an unanswered question once after delay.
func WithReminderDelay(delay time.Duration) Option {
	return func(o *Opts) {
		o.ReminderDelay = delay
	}
}

// WithTwilioWebhookValidation enables signature checks on the Twilio webhook.
// publicURL must match the webhook URL configured in the Twilio console.
func WithTwilioWebhookValidation(publicURL, authToken string) Option {
	return func(o *Opts) {
		o.TwilioWebhookURL = publicURL
		o.TwilioAuthToken = authToken
	}
}

func resolveOpts(opts []Option) Opts {
	cfg := Opts{Addr: DefaultAddr, Backend: BackendWhatsApp}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendWhatsApp
	}
	return cfg
}

// Run builds every module from the given options and serves the API until
// SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option, storeOpts []store.Option, apiOpts []Option) error {
	cfg := resolveOpts(apiOpts)
	slog.Debug("api.Run: resolved options", "addr", cfg.Addr, "backend", cfg.Backend, "reminderDelay", cfg.ReminderDelay)

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("api.Run: failed to close store", "error", cerr)
		}
	}()

	msgService, closeClient, err := newMessagingService(cfg, waOpts, twOpts)
	if err != nil {
		return err
	}
	defer closeClient()

	var flowOpts []flow.AssessmentOption
	if cfg.ReminderDelay > 0 {
		timer := flow.NewSimpleTimer()
		defer timer.Stop()
		flowOpts = append(flowOpts, flow.WithReminder(timer, cfg.ReminderDelay))
	}
	assessments := flow.NewAssessmentFlow(flow.NewStoreBasedStateManager(st), msgService, flowOpts...)
	respHandler := messaging.NewResponseHandler(msgService,
		messaging.WithStore(st),
		messaging.WithAssessmentFlow(assessments),
	)

	recoveryManager := recovery.NewManager(st)
	recoveryManager.RegisterRecoverable(assessments)
	recoveryManager.RegisterHandlerRecovery(func(participantID string, flowType models.FlowType) error {
		return respHandler.RestoreAssessmentHook(participantID)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if serr := msgService.Stop(); serr != nil {
			slog.Error("api.Run: failed to stop messaging service", "error", serr)
		}
	}()
	if err := recoveryManager.RecoverAll(ctx); err != nil {
		slog.Warn("api.Run: recovery finished with errors, continuing", "error", err)
	}
	respHandler.Start(ctx)

	server := NewServer(msgService, st, assessments, respHandler)
	server.TrackReceipts(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("DASSPipe API listening", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("api.Run: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}

// newMessagingService creates the configured transport. The returned func
// releases the underlying client.
func newMessagingService(cfg Opts, waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option) (messaging.Service, func(), error) {
	switch cfg.Backend {
	case BackendWhatsApp:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), client.Disconnect, nil
	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient(twOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var validator *twiliowhatsapp.WebhookValidator
		if cfg.TwilioWebhookURL != "" && cfg.TwilioAuthToken != "" {
			validator = twiliowhatsapp.NewWebhookValidator(cfg.TwilioAuthToken, cfg.TwilioWebhookURL)
		} else {
			slog.Warn("api.Run: Twilio webhook signature validation disabled", "webhook_url_set", cfg.TwilioWebhookURL != "")
		}
		return messaging.NewTwilioService(client, validator), func() {}, nil
	case BackendMock:
		slog.Warn("api.Run: using mock messaging backend, messages are not delivered")
		return messaging.NewWhatsAppService(whatsapp.NewMockClient()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging backend %q", cfg.Backend)
	}
}
