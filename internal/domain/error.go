package domain

import "errors"

var (
	ErrBotNotReady      = errors.New("bot not ready: access token not available yet")
	ErrNoRoom           = errors.New("no room_id provided (and no DEFAULT_ROOM set)")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrNotLoggedIn      = errors.New("matrix session not logged in")
)

// Failure kinds reported in delivery details under the "error" key.
const (
	KindBotNotReady      = "bot_not_ready"
	KindRequestFailed    = "request_failed"
	KindHTTPError        = "http_error"
	KindNoRoom           = "no_room"
	KindMalformedPayload = "malformed_payload"
)
