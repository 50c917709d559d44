package repository

import (
	"context"

	"matrix-zabbix-bridge/internal/domain/model"
)

// StateRepository persists the bot's enabled flag and notification history so
// both survive a restart. Implementations trim history to the given capacity.
type StateRepository interface {
	SaveEnabled(ctx context.Context, enabled bool) error
	// LoadEnabled reports found=false when nothing was stored yet.
	LoadEnabled(ctx context.Context) (enabled bool, found bool, err error)
	AppendHistory(ctx context.Context, rec model.NotificationRecord, capacity int) error
	// LoadHistory returns at most capacity records, oldest first.
	LoadHistory(ctx context.Context, capacity int) ([]model.NotificationRecord, error)
}
