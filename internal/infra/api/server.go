package api

import (
	"io"
	"net/http"
	"time"

	"matrix-zabbix-bridge/internal/domain"
	"matrix-zabbix-bridge/internal/infra/logging"
	"matrix-zabbix-bridge/internal/infra/metrics"
	"matrix-zabbix-bridge/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MaxWebhookBody caps how much of a webhook body is read.
const MaxWebhookBody = 1 << 20

// LoginStatus reports whether the chat session holds a token.
type LoginStatus interface {
	LoggedIn() bool
}

// Server exposes the webhook and the HTTP control endpoints.
type Server struct {
	notifications usecase.NotificationUseCase
	state         usecase.BotState
	session       LoginStatus
	auth          *AuthManager // nil disables auth
	timeout       time.Duration
	log           *zerolog.Logger
}

func NewServer(notifications usecase.NotificationUseCase, state usecase.BotState, session LoginStatus, logger *zerolog.Logger) *Server {
	return &Server{
		notifications: notifications,
		state:         state,
		session:       session,
		log:           logger,
	}
}

// WithAuth requires a bearer token on every route except /health and /metrics.
func (s *Server) WithAuth(a *AuthManager) *Server {
	s.auth = a
	return s
}

// WithRequestTimeout bounds each webhook request.
func (s *Server) WithRequestTimeout(d time.Duration) *Server {
	s.timeout = d
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		var mws []func(http.Handler) http.Handler
		if s.timeout > 0 {
			mws = append(mws, Timeout(s.timeout))
		}
		r.With(mws...).Post("/webhook", s.handleWebhook)
		r.Get("/enable_zabbix", s.handleEnable)
		r.Get("/disable_zabbix", s.handleDisable)
		r.Get("/zabbix_status", s.handleStatus)
	})
	return Chain(r, TraceID(s.log), RequestLog(s.log), Recover(s.log))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBody))
	if err != nil {
		l.Debug().Err(err).Str("kind", domain.KindMalformedPayload).Msg("webhook body unreadable")
		body = nil
	}
	payload, err := usecase.ParsePayload(body)
	if err != nil {
		l.Debug().Err(err).Str("kind", domain.KindMalformedPayload).Msg("webhook payload defaulted to {}")
	}

	out := s.notifications.Handle(ctx, payload)
	metrics.IncWebhook(outcomeLabel(out))
	writeJSON(w, out.Code, out.Body)
}

func outcomeLabel(out usecase.WebhookOutcome) string {
	switch {
	case out.Code == http.StatusBadRequest:
		return domain.KindNoRoom
	case out.Code >= http.StatusInternalServerError:
		return "delivery_failed"
	}
	if st, ok := out.Body["status"].(string); ok {
		return st
	}
	return "unknown"
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.state.SetEnabled(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]any{"status": usecase.StatusSuccess, "notifications": "enabled"})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.state.SetEnabled(r.Context(), false)
	writeJSON(w, http.StatusOK, map[string]any{"status": usecase.StatusSuccess, "notifications": "disabled"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                usecase.StatusSuccess,
		"notifications_enabled": s.state.Enabled(),
		"history_count":         s.state.HistoryCount(),
		"bot_logged_in":         s.session != nil && s.session.LoggedIn(),
	})
}
