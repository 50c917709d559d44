package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"matrix-zabbix-bridge/internal/config"
	"matrix-zabbix-bridge/internal/domain"
	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ adapter.TokenSource = (*Session)(nil)

const (
	defaultBackoffMin = time.Second
	defaultBackoffMax = time.Minute

	deviceDisplayName = "zabbix-bridge"
)

// Session owns the homeserver login and the sync loop. The access token is
// published once the password login succeeds and is never replaced.
type Session struct {
	cfg    config.MatrixConfig
	client *mautrix.Client
	syncer *mautrix.DefaultSyncer
	log    *zerolog.Logger

	token  atomic.Pointer[string]
	userID atomic.Pointer[id.UserID]

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewSession(cfg config.MatrixConfig, logger *zerolog.Logger) (*Session, error) {
	cli, err := mautrix.NewClient(cfg.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("matrix client: %w", err)
	}
	cli.Log = logger.With().Str("component", "mautrix").Logger()

	syncer, ok := cli.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, errors.New("matrix client: unexpected syncer type")
	}
	return &Session{
		cfg:        cfg,
		client:     cli,
		syncer:     syncer,
		log:        logger,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
	}, nil
}

// CurrentToken returns the access token, or false before the first login.
func (s *Session) CurrentToken() (string, bool) {
	t := s.token.Load()
	if t == nil {
		return "", false
	}
	return *t, true
}

func (s *Session) LoggedIn() bool {
	_, ok := s.CurrentToken()
	return ok
}

// UserID is the bot's own Matrix ID, empty until logged in.
func (s *Session) UserID() id.UserID {
	u := s.userID.Load()
	if u == nil {
		return ""
	}
	return *u
}

// Login performs a password login and publishes the resulting token.
func (s *Session) Login(ctx context.Context) error {
	resp, err := s.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: s.cfg.User,
		},
		Password:                 s.cfg.Password,
		InitialDeviceDisplayName: deviceDisplayName,
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotLoggedIn, err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("%w: homeserver returned an empty access token", domain.ErrNotLoggedIn)
	}

	uid := resp.UserID
	token := resp.AccessToken
	s.userID.Store(&uid)
	s.token.Store(&token)
	s.log.Info().Str("user_id", uid.String()).Str("device_id", resp.DeviceID.String()).Msg("matrix login succeeded")
	return nil
}

// JoinRoom accepts an invite.
func (s *Session) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := s.client.JoinRoomByID(ctx, roomID); err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	return nil
}

// Run logs in, retrying with exponential backoff, and then keeps the sync
// loop running until ctx is cancelled. A failing sync loop is restarted with
// the same token; it never brings the process down.
func (s *Session) Run(ctx context.Context) error {
	wait := s.backoffMin
	for !s.LoggedIn() {
		err := s.Login(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Error().Err(err).Dur("retry_in", wait).Msg("matrix login failed")
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		wait = nextBackoff(wait, s.backoffMax)
	}

	wait = s.backoffMin
	for {
		started := time.Now()
		err := s.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.IncSyncRestart()
		if time.Since(started) > s.backoffMax {
			wait = s.backoffMin
		}
		s.log.Error().Err(err).Dur("retry_in", wait).Msg("matrix sync stopped, restarting")
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		wait = nextBackoff(wait, s.backoffMax)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	cur *= 2
	if cur > limit {
		return limit
	}
	return cur
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
