package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload keys the bridge reads from a monitoring webhook. Everything else is
// carried along untouched.
const (
	FieldSubject  = "subject"
	FieldMessage  = "message"
	FieldSeverity = "severity"
	FieldRoomID   = "room_id"
)

// NotificationRecord is one received webhook payload as kept in the history.
// A record is never modified after NewNotificationRecord returns; accessors
// hand out copies.
type NotificationRecord struct {
	ReceivedAt time.Time
	fields     map[string]any
}

// NewNotificationRecord copies payload so later changes by the caller do not
// leak into the history. A nil payload yields an empty record.
func NewNotificationRecord(payload map[string]any, receivedAt time.Time) NotificationRecord {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	return NotificationRecord{ReceivedAt: receivedAt, fields: cp}
}

// Fields returns a copy of the raw payload.
func (r NotificationRecord) Fields() map[string]any {
	cp := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}

// Text returns the field as display text and whether it was present.
func (r NotificationRecord) Text(key string) (string, bool) {
	return FieldText(r.fields, key)
}

// TextOr returns the field text, or def when the field is absent.
func (r NotificationRecord) TextOr(key, def string) string {
	if s, ok := r.Text(key); ok {
		return s
	}
	return def
}

// MarshalJSON renders the raw payload, which is what history consumers expect.
func (r NotificationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// FieldText converts a decoded JSON value to text. Strings are returned as-is,
// null and missing keys report false, anything else is rendered as JSON.
func FieldText(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(b), true
}
