package paystack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxWebhookBody = 1 << 20

// Handler processes a verified, schema-valid event.
type Handler func(ctx context.Context, e Event) error

// Receiver is a local stand-in for the application's webhook route.
type Receiver struct {
	secret  string
	logger  *slog.Logger
	handler Handler
}

// NewReceiver creates a Receiver. handler may be nil, in which case events
// are only logged.
func NewReceiver(secret string, logger *slog.Logger, handler Handler) *Receiver {
	return &Receiver{secret: secret, logger: logger, handler: handler}
}

// Routes mounts the webhook under both the bare path and the Next.js API path.
func (rc *Receiver) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(rc.requestLogger)
	r.Use(rc.panicRecovery)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/webhooks/paystack", rc.handleWebhook)
	r.Post("/api/webhooks/paystack", rc.handleWebhook)

	return r
}

func (rc *Receiver) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if err := Verify(rc.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		rc.logger.Warn("webhook_signature_rejected", "error", err, "ip", r.RemoteAddr)
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := ValidatePayload(body); err != nil {
		rc.logger.Warn("webhook_payload_rejected", "error", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	event, err := ParseEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc.logger.Info("webhook_received", "event", event.Event, "reference", event.Reference())

	if rc.handler != nil {
		if err := rc.handler(r.Context(), event); err != nil {
			rc.logger.Error("webhook_handler_failed", "event", event.Event, "error", err)
			respondError(w, http.StatusInternalServerError, "handler failed")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rc *Receiver) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if ww.Status() >= 500 {
			level = slog.LevelError
		} else if ww.Status() >= 400 {
			level = slog.LevelWarn
		}

		rc.logger.Log(r.Context(), level, "http_request_completed",
			"status", ww.Status(),
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}

// panicRecovery logs the stack, reports to Sentry and answers a generic 500.
func (rc *Receiver) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				rc.logger.Error("panic_recovered",
					"error", err,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.Recover(err)
				}
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
