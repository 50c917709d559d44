package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"matrix-zabbix-bridge/internal/domain/model"
	"matrix-zabbix-bridge/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo keeps the enabled flag under <prefix>:enabled and the history as
// a list under <prefix>:history, newest at the tail.
type StateRepo struct {
	client RedisClient
	prefix string
}

func NewStateRepo(client RedisClient, prefix string) *StateRepo {
	return &StateRepo{client: client, prefix: prefix}
}

type storedRecord struct {
	ReceivedAt time.Time      `json:"received_at"`
	Fields     map[string]any `json:"fields"`
}

func (s *StateRepo) enabledKey() string { return s.prefix + ":enabled" }
func (s *StateRepo) historyKey() string { return s.prefix + ":history" }

func (s *StateRepo) SaveEnabled(ctx context.Context, enabled bool) error {
	return s.client.Set(ctx, s.enabledKey(), strconv.FormatBool(enabled), 0)
}

func (s *StateRepo) LoadEnabled(ctx context.Context) (bool, bool, error) {
	v, err := s.client.Get(ctx, s.enabledKey())
	if errors.Is(err, ErrNil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, fmt.Errorf("stored enabled flag %q: %w", v, err)
	}
	return enabled, true, nil
}

func (s *StateRepo) AppendHistory(ctx context.Context, rec model.NotificationRecord, capacity int) error {
	data, err := json.Marshal(storedRecord{ReceivedAt: rec.ReceivedAt, Fields: rec.Fields()})
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.historyKey(), data); err != nil {
		return err
	}
	if capacity > 0 {
		return s.client.LTrim(ctx, s.historyKey(), int64(-capacity), -1)
	}
	return nil
}

// LoadHistory skips entries that no longer decode.
func (s *StateRepo) LoadHistory(ctx context.Context, capacity int) ([]model.NotificationRecord, error) {
	start := int64(0)
	if capacity > 0 {
		start = int64(-capacity)
	}
	items, err := s.client.LRange(ctx, s.historyKey(), start, -1)
	if err != nil {
		return nil, err
	}
	out := make([]model.NotificationRecord, 0, len(items))
	for _, raw := range items {
		var sr storedRecord
		if err := json.Unmarshal([]byte(raw), &sr); err != nil {
			continue
		}
		out = append(out, model.NewNotificationRecord(sr.Fields, sr.ReceivedAt))
	}
	return out, nil
}
