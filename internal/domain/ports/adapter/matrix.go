// File: internal/domain/ports/adapter/matrix.go
package adapter

import "context"

// DeliveryResult is the structured outcome of a send. Details is always
// JSON-serialisable and is what webhook callers receive.
type DeliveryResult struct {
	OK      bool
	Details map[string]any
}

// MessageSender delivers formatted alerts and plain replies to a room.
// Implementations never return an error: every failure is folded into Details.
type MessageSender interface {
	Send(ctx context.Context, roomID, subject, message, severity string) DeliveryResult
	SendText(ctx context.Context, roomID, text string) DeliveryResult
}

// TokenSource exposes the current bearer credential of the chat session.
type TokenSource interface {
	CurrentToken() (string, bool)
}
