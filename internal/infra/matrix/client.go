package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"matrix-zabbix-bridge/internal/domain"
	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.MessageSender = (*Client)(nil)

// DefaultSendTimeout bounds a single send-message call.
const DefaultSendTimeout = 10 * time.Second

// responses larger than this are cut before parsing
const maxResponseBytes = 1 << 20

// Client sends messages through PUT /rooms/{roomId}/send/m.room.message/{txnId}
// using whatever access token the TokenSource currently holds. It never
// retries; every outcome is reported as an adapter.DeliveryResult.
type Client struct {
	apiBase    string // homeserver URL + /_matrix/client/v3
	tokens     adapter.TokenSource
	httpClient *http.Client
	newTxnID   func() string
	log        *zerolog.Logger
}

func NewClient(homeserver string, tokens adapter.TokenSource, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Client{
		apiBase:    strings.TrimRight(homeserver, "/") + "/_matrix/client/v3",
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		newTxnID:   uuid.NewString,
		log:        logger,
	}
}

// Send delivers a formatted alert.
func (c *Client) Send(ctx context.Context, roomID, subject, message, severity string) adapter.DeliveryResult {
	return c.send(ctx, "alert", roomID, alertContent(subject, message, severity))
}

// SendText delivers a plain text message, used for command replies.
func (c *Client) SendText(ctx context.Context, roomID, text string) adapter.DeliveryResult {
	return c.send(ctx, "text", roomID, textContent(text))
}

func (c *Client) send(ctx context.Context, kind, roomID string, content messageContent) adapter.DeliveryResult {
	start := time.Now()
	res := c.put(ctx, roomID, content)

	result := "success"
	if !res.OK {
		result, _ = res.Details["error"].(string)
	}
	metrics.ObserveDelivery(kind, result, time.Since(start))
	return res
}

func (c *Client) put(ctx context.Context, roomID string, content messageContent) adapter.DeliveryResult {
	token, ok := c.tokens.CurrentToken()
	if !ok || token == "" {
		c.log.Debug().Err(domain.ErrBotNotReady).Str("room_id", roomID).Msg("matrix send skipped")
		return failure(domain.KindBotNotReady, map[string]any{"reason": "access token not available yet"})
	}

	txnID := c.newTxnID()
	endpoint := fmt.Sprintf("%s/rooms/%s/send/m.room.message/%s",
		c.apiBase, url.PathEscape(roomID), url.PathEscape(txnID))

	body, err := json.Marshal(content)
	if err != nil {
		return failure(domain.KindRequestFailed, map[string]any{"exception": fmt.Sprintf("marshal payload: %v", err)})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return failure(domain.KindRequestFailed, map[string]any{"exception": fmt.Sprintf("create request: %v", err)})
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Str("txn_id", txnID).Msg("matrix send request failed")
		return failure(domain.KindRequestFailed, map[string]any{"exception": err.Error()})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failure(domain.KindRequestFailed, map[string]any{"exception": fmt.Sprintf("read response: %v", err)})
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed any = map[string]any{}
		if len(bytes.TrimSpace(raw)) > 0 {
			parsed = decodeBody(raw)
		}
		c.log.Debug().Str("room_id", roomID).Str("txn_id", txnID).Msg("matrix message sent")
		return adapter.DeliveryResult{OK: true, Details: map[string]any{"matrix_response": parsed}}
	}

	c.log.Warn().Int("status", resp.StatusCode).Str("room_id", roomID).Str("txn_id", txnID).Msg("matrix send rejected")
	return failure(domain.KindHTTPError, map[string]any{
		"status_code": resp.StatusCode,
		"response":    decodeBody(raw),
	})
}

// decodeBody returns the JSON value in raw, or raw as text if it is not JSON.
func decodeBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func failure(kind string, details map[string]any) adapter.DeliveryResult {
	details["error"] = kind
	return adapter.DeliveryResult{OK: false, Details: details}
}
