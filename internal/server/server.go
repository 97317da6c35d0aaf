package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pathakanu/remindly/internal/bot"
	"github.com/pathakanu/remindly/internal/metrics"
	"github.com/pathakanu/remindly/internal/twilio"
	"github.com/rs/zerolog"
)

// Pinger reports whether the reminder store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler answers one inbound chat message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) string
}

// Verifier authenticates an inbound webhook request after its form is parsed.
type Verifier interface {
	Valid(r *http.Request) bool
}

// Options selects the routes mounted by New.
type Options struct {
	Store  Pinger
	Logger zerolog.Logger
	// Webhook, when set, answers Twilio WhatsApp messages on /twilio/webhook.
	Webhook Handler
	// Verifier checks the Twilio signature of webhook requests. Without one
	// every webhook request is refused.
	Verifier Verifier
}

// New builds the HTTP router: health, metrics and the optional Twilio webhook.
func New(opts Options) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(opts.Logger))

	router.Get("/healthz", healthHandler(opts.Store))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	if opts.Webhook != nil {
		router.Post("/twilio/webhook", webhookHandler(opts.Webhook, opts.Verifier, opts.Logger))
	}
	return router
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// webhookHandler processes Twilio webhook POST requests.
func webhookHandler(handler Handler, verifier Verifier, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := func(message string) {
			if err := twilio.WriteResponse(w, message); err != nil {
				logger.Error().Err(err).Msg("twilio response encode")
			}
		}

		if err := r.ParseForm(); err != nil {
			logger.Warn().Err(err).Msg("webhook: parse error")
			reply("Sorry, I couldn't understand that request.")
			return
		}
		if verifier == nil || !verifier.Valid(r) {
			logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook: invalid signature")
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		body := strings.TrimSpace(r.FormValue("Body"))
		userID, err := twilio.SenderID(r.FormValue("From"))
		if err != nil || body == "" {
			reply("I need a message to work with. Please try again.")
			return
		}

		reply(handler.Handle(r.Context(), bot.Message{
			UserID:   userID,
			Username: r.FormValue("ProfileName"),
			Text:     body,
		}))
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
