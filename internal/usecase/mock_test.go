//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"matrix-zabbix-bridge/internal/domain/model"
	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/i18n"

	"github.com/rs/zerolog"
)

// --- Mock MessageSender

type sentAlert struct {
	RoomID, Subject, Message, Severity string
}

type MockSender struct {
	mu     sync.Mutex
	Alerts []sentAlert
	Texts  []string
	Result adapter.DeliveryResult
}

func newMockSender() *MockSender {
	return &MockSender{Result: adapter.DeliveryResult{OK: true, Details: map[string]any{
		"matrix_response": map[string]any{"event_id": "$evt"},
	}}}
}

func (m *MockSender) Send(ctx context.Context, roomID, subject, message, severity string) adapter.DeliveryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, sentAlert{roomID, subject, message, severity})
	return m.Result
}

func (m *MockSender) SendText(ctx context.Context, roomID, text string) adapter.DeliveryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts = append(m.Texts, text)
	return m.Result
}

func (m *MockSender) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// --- Mock StateRepository

type MockStateRepo struct {
	mu       sync.Mutex
	enabled  *bool
	history  []model.NotificationRecord
	SaveErr  error
	LoadErr  error
	appended int

	// SlowEnable delays SaveEnabled(true) to widen write races.
	SlowEnable time.Duration
}

func (m *MockStateRepo) SaveEnabled(ctx context.Context, enabled bool) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if enabled && m.SlowEnable > 0 {
		time.Sleep(m.SlowEnable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = &enabled
	return nil
}

func (m *MockStateRepo) LoadEnabled(ctx context.Context) (bool, bool, error) {
	if m.LoadErr != nil {
		return false, false, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled == nil {
		return false, false, nil
	}
	return *m.enabled, true, nil
}

func (m *MockStateRepo) AppendHistory(ctx context.Context, rec model.NotificationRecord, capacity int) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
	m.history = append(m.history, rec)
	if capacity > 0 && len(m.history) > capacity {
		m.history = m.history[len(m.history)-capacity:]
	}
	return nil
}

func (m *MockStateRepo) LoadHistory(ctx context.Context, capacity int) ([]model.NotificationRecord, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.NotificationRecord(nil), m.history...)
	if len(out) > capacity {
		out = out[len(out)-capacity:]
	}
	return out, nil
}

var errRepoDown = errors.New("repo down")

// newTestLogger creates a silent logger for tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Translator

func newTestTranslator() *i18n.Translator {
	translator, err := i18n.Default()
	if err != nil {
		panic(err)
	}
	return translator
}

func record(subject, severity string) model.NotificationRecord {
	return model.NewNotificationRecord(map[string]any{"subject": subject, "severity": severity}, now())
}
