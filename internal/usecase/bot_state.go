package usecase

import (
	"context"
	"sync"

	"matrix-zabbix-bridge/internal/domain/model"
	"matrix-zabbix-bridge/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ BotState = (*botState)(nil)

// DefaultHistorySize is the number of webhook payloads kept when no size is configured.
const DefaultHistorySize = 50

// BotState is the state shared by the chat command listener and the webhook
// gateway. All methods are safe for concurrent use.
type BotState interface {
	Enabled() bool
	SetEnabled(ctx context.Context, enabled bool)
	// AddHistory appends rec, evicting the oldest record when at capacity.
	AddHistory(ctx context.Context, rec model.NotificationRecord)
	// Recent returns up to n of the newest records, oldest first. n <= 0 means all.
	Recent(n int) []model.NotificationRecord
	HistoryCount() int
	Capacity() int
}

type botState struct {
	// writeMu orders writers so the repository sees changes in memory order.
	// Readers only take mu and never wait on the repository.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	enabled  bool
	history  []model.NotificationRecord
	capacity int

	repo repository.StateRepository // optional
	log  *zerolog.Logger
}

// NewBotState returns an enabled state with an empty history. repo may be nil,
// in which case nothing outlives the process.
func NewBotState(capacity int, repo repository.StateRepository, logger *zerolog.Logger) *botState {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &botState{
		enabled:  true,
		history:  make([]model.NotificationRecord, 0, capacity),
		capacity: capacity,
		repo:     repo,
		log:      logger,
	}
}

// Restore loads the persisted flag and history, if a repository is configured.
func (s *botState) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enabled, found, err := s.repo.LoadEnabled(ctx)
	if err != nil {
		return err
	}
	recs, err := s.repo.LoadHistory(ctx, s.capacity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if found {
		s.enabled = enabled
	}
	if len(recs) > s.capacity {
		recs = recs[len(recs)-s.capacity:]
	}
	s.history = append(s.history[:0], recs...)
	s.log.Info().Bool("enabled", s.enabled).Int("history", len(s.history)).Msg("bot state restored")
	return nil
}

func (s *botState) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *botState) SetEnabled(ctx context.Context, enabled bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveEnabled(ctx, enabled); err != nil {
			s.log.Warn().Err(err).Bool("enabled", enabled).Msg("persist enabled flag failed")
		}
	}
}

func (s *botState) AddHistory(ctx context.Context, rec model.NotificationRecord) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if len(s.history) >= s.capacity {
		// shift instead of reslicing so the backing array does not grow forever
		n := copy(s.history, s.history[len(s.history)-s.capacity+1:])
		s.history = s.history[:n]
	}
	s.history = append(s.history, rec)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.AppendHistory(ctx, rec, s.capacity); err != nil {
			s.log.Warn().Err(err).Msg("persist history record failed")
		}
	}
}

func (s *botState) Recent(n int) []model.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]model.NotificationRecord, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

func (s *botState) HistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *botState) Capacity() int { return s.capacity }
