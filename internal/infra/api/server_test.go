//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/api"
	"matrix-zabbix-bridge/internal/usecase"
)

type sentAlert struct {
	room, subject, message, severity string
}

type fakeSender struct {
	mu     sync.Mutex
	alerts []sentAlert
	result adapter.DeliveryResult
}

func (f *fakeSender) Send(_ context.Context, room, subject, message, severity string) adapter.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, sentAlert{room, subject, message, severity})
	return f.result
}

func (f *fakeSender) SendText(context.Context, string, string) adapter.DeliveryResult {
	return f.result
}

type loginStatus bool

func (l loginStatus) LoggedIn() bool { return bool(l) }

type fixture struct {
	handler http.Handler
	state   usecase.BotState
	sender  *fakeSender
}

func newFixture(t *testing.T, defaultRoom string, auth *api.AuthManager) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	state := usecase.NewBotState(50, nil, &logger)
	sender := &fakeSender{result: adapter.DeliveryResult{OK: true, Details: map[string]any{
		"matrix_response": map[string]any{"event_id": "$e"},
	}}}
	notifications := usecase.NewNotificationUseCase(state, sender, defaultRoom, &logger)
	srv := api.NewServer(notifications, state, loginStatus(true), &logger).WithRequestTimeout(time.Second)
	if auth != nil {
		srv.WithAuth(auth)
	}
	return &fixture{handler: srv.Handler(), state: state, sender: sender}
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, out
}

func TestWebhook(t *testing.T) {
	t.Run("delivers to the default room", func(t *testing.T) {
		f := newFixture(t, "!ops:example.org", nil)
		rec, body := f.do(t, http.MethodPost, "/webhook", `{"subject":"Disk full","message":"/var 98%","severity":"High"}`, nil)

		if rec.Code != http.StatusOK || body["status"] != "success" {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
		if _, ok := body["matrix"].(map[string]any); !ok {
			t.Errorf("matrix details missing: %v", body)
		}
		want := sentAlert{"!ops:example.org", "Disk full", "/var 98%", "High"}
		if len(f.sender.alerts) != 1 || f.sender.alerts[0] != want {
			t.Errorf("sent %v, want %v", f.sender.alerts, want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("response should carry a request id")
		}
	})

	t.Run("payload room overrides the default", func(t *testing.T) {
		f := newFixture(t, "!ops:example.org", nil)
		f.do(t, http.MethodPost, "/webhook", `{"room_id":"!db:example.org"}`, nil)
		if len(f.sender.alerts) != 1 || f.sender.alerts[0].room != "!db:example.org" {
			t.Errorf("unexpected alerts %v", f.sender.alerts)
		}
		if a := f.sender.alerts[0]; a.subject != "No subject" || a.message != "No message" || a.severity != "Unknown" {
			t.Errorf("defaults not applied: %+v", a)
		}
	})

	t.Run("no room", func(t *testing.T) {
		f := newFixture(t, "", nil)
		rec, body := f.do(t, http.MethodPost, "/webhook", `{"subject":"x"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body["reason"] != "no room_id provided (and no DEFAULT_ROOM set)" {
			t.Errorf("reason = %v", body["reason"])
		}
		if f.state.HistoryCount() != 1 {
			t.Error("rejected payloads are still recorded")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, "!ops:example.org", nil)
		f.do(t, http.MethodGet, "/disable_zabbix", "", nil)
		rec, body := f.do(t, http.MethodPost, "/webhook", `{"subject":"x"}`, nil)
		if rec.Code != http.StatusOK || body["status"] != "ignored" || body["reason"] != "notifications disabled" {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
		if len(f.sender.alerts) != 0 {
			t.Error("disabled bridge must not deliver")
		}
		if f.state.HistoryCount() != 1 {
			t.Error("ignored payloads are still recorded")
		}
	})

	t.Run("delivery failure", func(t *testing.T) {
		f := newFixture(t, "!ops:example.org", nil)
		f.sender.result = adapter.DeliveryResult{OK: false, Details: map[string]any{
			"error": "bot_not_ready", "reason": "access token not available yet",
		}}
		rec, body := f.do(t, http.MethodPost, "/webhook", `{"subject":"x"}`, nil)
		if rec.Code != http.StatusBadGateway || body["status"] != "error" {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
		details, _ := body["details"].(map[string]any)
		if details["error"] != "bot_not_ready" {
			t.Errorf("details = %v", details)
		}
	})

	t.Run("malformed bodies are treated as empty", func(t *testing.T) {
		for _, raw := range []string{"", "not json", "[1,2]", "null"} {
			f := newFixture(t, "!ops:example.org", nil)
			rec, _ := f.do(t, http.MethodPost, "/webhook", raw, nil)
			if rec.Code != http.StatusOK {
				t.Errorf("body %q: status %d, want 200", raw, rec.Code)
				continue
			}
			if a := f.sender.alerts[0]; a.subject != "No subject" {
				t.Errorf("body %q: subject = %q", raw, a.subject)
			}
		}
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		f := newFixture(t, "!ops:example.org", nil)
		rec, body := f.do(t, http.MethodGet, "/webhook", "", nil)
		if rec.Code != http.StatusMethodNotAllowed || body["status"] != "error" {
			t.Errorf("unexpected response %d %v", rec.Code, body)
		}
	})
}

func TestControlEndpoints(t *testing.T) {
	f := newFixture(t, "!ops:example.org", nil)

	rec, body := f.do(t, http.MethodGet, "/disable_zabbix", "", nil)
	if rec.Code != http.StatusOK || body["notifications"] != "disabled" {
		t.Fatalf("disable: %d %v", rec.Code, body)
	}
	if f.state.Enabled() {
		t.Fatal("state should be disabled")
	}

	_, body = f.do(t, http.MethodGet, "/zabbix_status", "", nil)
	if body["notifications_enabled"] != false || body["history_count"] != float64(0) || body["bot_logged_in"] != true {
		t.Errorf("status = %v", body)
	}

	rec, body = f.do(t, http.MethodGet, "/enable_zabbix", "", nil)
	if rec.Code != http.StatusOK || body["notifications"] != "enabled" || !f.state.Enabled() {
		t.Fatalf("enable: %d %v", rec.Code, body)
	}
}

func TestStatusBeforeLogin(t *testing.T) {
	logger := zerolog.Nop()
	state := usecase.NewBotState(50, nil, &logger)
	notifications := usecase.NewNotificationUseCase(state, &fakeSender{}, "!ops:example.org", &logger)
	f := &fixture{handler: api.NewServer(notifications, state, loginStatus(false), &logger).Handler(), state: state}

	rec, body := f.do(t, http.MethodGet, "/zabbix_status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["bot_logged_in"] != false {
		t.Errorf("bot_logged_in = %v, want false", body["bot_logged_in"])
	}
	if body["notifications_enabled"] != true {
		t.Errorf("notifications_enabled = %v, want true", body["notifications_enabled"])
	}
}

func TestHealthAndNotFound(t *testing.T) {
	f := newFixture(t, "", nil)

	rec, _ := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec, body := f.do(t, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || body["reason"] != "not found" {
		t.Errorf("404 = %d %v", rec.Code, body)
	}

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	auth := api.NewAuthManager("s3cret", time.Hour)
	f := newFixture(t, "!ops:example.org", auth)

	token, err := auth.Mint("zabbix")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other, _ := api.NewAuthManager("other", time.Hour).Mint("zabbix")
	expired, _ := api.NewAuthManager("s3cret", -time.Minute).Mint("zabbix")

	cases := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + other}, http.StatusForbidden},
		{"expired", map[string]string{"Authorization": "Bearer " + expired}, http.StatusForbidden},
		{"garbage", map[string]string{"Authorization": "Bearer not.a.jwt"}, http.StatusForbidden},
		{"valid", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := f.do(t, http.MethodGet, "/zabbix_status", "", tc.hdr)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	t.Run("health stays open", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("health = %d", rec.Code)
		}
	})
}

func TestRecover(t *testing.T) {
	logger := zerolog.Nop()
	h := api.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), api.TraceID(&logger), api.Recover(&logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["status"] != "error" {
		t.Errorf("body = %v (%v)", body, err)
	}
	if body["trace_id"] == nil || body["trace_id"] != rec.Header().Get("X-Request-ID") {
		t.Errorf("panic envelope should carry the request id, got %v", body["trace_id"])
	}
}
