package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"matrix-zabbix-bridge/internal/domain"
	"matrix-zabbix-bridge/internal/domain/model"
	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// Replacement texts for fields that still carry an unresolved Zabbix macro.
const (
	DefaultSubjectMacro  = "Unknown/default Subject Field From Zabbix"
	DefaultMessageMacro  = "Unknown/default Message Field From Zabbix"
	DefaultSeverityMacro = "Disaster (default for Unknown or empty data Macros)"

	DefaultSubject  = "No subject"
	DefaultMessage  = "No message"
	DefaultSeverity = "Unknown"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// WebhookOutcome is the HTTP status and JSON envelope for one webhook call.
type WebhookOutcome struct {
	Code int
	Body map[string]any
}

// Alert is the sanitised text that ends up in the room.
type Alert struct {
	Subject  string
	Message  string
	Severity string
}

type NotificationUseCase interface {
	// Handle records payload in the history and, when notifications are
	// enabled, delivers it to its room.
	Handle(ctx context.Context, payload map[string]any) WebhookOutcome
}

type notificationUC struct {
	state       BotState
	sender      adapter.MessageSender
	defaultRoom string
	now         func() time.Time
	log         *zerolog.Logger
}

func NewNotificationUseCase(state BotState, sender adapter.MessageSender, defaultRoom string, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{
		state:       state,
		sender:      sender,
		defaultRoom: strings.TrimSpace(defaultRoom),
		now:         time.Now,
		log:         logger,
	}
}

func (n *notificationUC) Handle(ctx context.Context, payload map[string]any) WebhookOutcome {
	defer logging.TraceDuration(n.log, "NotificationUC.Handle")()
	if payload == nil {
		payload = map[string]any{}
	}

	n.state.AddHistory(ctx, model.NewNotificationRecord(payload, n.now()))

	if !n.state.Enabled() {
		return WebhookOutcome{Code: http.StatusOK, Body: map[string]any{
			"status": StatusIgnored,
			"reason": "notifications disabled",
		}}
	}

	roomID, ok := ResolveRoom(payload, n.defaultRoom)
	if !ok {
		return WebhookOutcome{Code: http.StatusBadRequest, Body: map[string]any{
			"status": StatusError,
			"reason": domain.ErrNoRoom.Error(),
		}}
	}

	alert := SanitizeAlert(payload)
	res := n.sender.Send(ctx, roomID, alert.Subject, alert.Message, alert.Severity)
	if !res.OK {
		n.log.Warn().Str("room_id", roomID).Interface("details", res.Details).Msg("webhook delivery failed")
		return WebhookOutcome{Code: http.StatusBadGateway, Body: map[string]any{
			"status":  StatusError,
			"details": res.Details,
		}}
	}
	n.log.Info().Str("room_id", roomID).Str("severity", alert.Severity).Msg("webhook delivered")
	return WebhookOutcome{Code: http.StatusOK, Body: map[string]any{
		"status": StatusSuccess,
		"matrix": res.Details,
	}}
}

// ParsePayload decodes a webhook body into a JSON object. Empty bodies yield
// an empty object; anything that is not a JSON object is ErrMalformedPayload.
func ParsePayload(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return map[string]any{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if payload == nil { // literal null
		payload = map[string]any{}
	}
	return payload, nil
}

// ResolveRoom picks the payload's room_id, falling back to defaultRoom.
func ResolveRoom(payload map[string]any, defaultRoom string) (string, bool) {
	if s, ok := payload[model.FieldRoomID].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s), true
	}
	if defaultRoom != "" {
		return defaultRoom, true
	}
	return "", false
}

// SanitizeAlert applies field defaults and replaces any field containing a
// literal "{" (an unresolved macro) with its fixed fallback text.
func SanitizeAlert(payload map[string]any) Alert {
	a := Alert{
		Subject:  textOr(payload, model.FieldSubject, DefaultSubject),
		Message:  textOr(payload, model.FieldMessage, DefaultMessage),
		Severity: textOr(payload, model.FieldSeverity, DefaultSeverity),
	}
	if strings.Contains(a.Subject, "{") {
		a.Subject = DefaultSubjectMacro
	}
	if strings.Contains(a.Message, "{") {
		a.Message = DefaultMessageMacro
	}
	if strings.Contains(a.Severity, "{") {
		a.Severity = DefaultSeverityMacro
	}
	return a
}

func textOr(payload map[string]any, key, def string) string {
	if s, ok := model.FieldText(payload, key); ok {
		return s
	}
	return def
}
