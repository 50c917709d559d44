package matrix

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matrix-zabbix-bridge/internal/config"
	"matrix-zabbix-bridge/internal/domain/ports/adapter"
	"matrix-zabbix-bridge/internal/infra/logging"
	"matrix-zabbix-bridge/internal/infra/metrics"
	redisinfra "matrix-zabbix-bridge/internal/infra/redis"
	"matrix-zabbix-bridge/internal/infra/worker"
	"matrix-zabbix-bridge/internal/usecase"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Per-sender budget shared by all commands, applied only when a RateLimiter is set.
const (
	CommandRateLimit  = 20
	CommandRateWindow = time.Minute
)

// Submitter queues acknowledgement sends off the sync goroutine.
type Submitter interface {
	Submit(task worker.Task) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Listener turns prefixed room messages into chat commands and sends the
// command's reply back to the room it came from.
type Listener struct {
	prefix   string
	autoJoin bool
	known    map[string]bool

	commands usecase.CommandUseCase
	replies  adapter.MessageSender
	pool     Submitter
	limiter  RateLimiter // optional
	tr       usecase.Translator
	log      *zerolog.Logger

	selfID func() id.UserID
	join   func(ctx context.Context, roomID id.RoomID) error
}

func NewListener(
	cfg config.MatrixConfig,
	commands usecase.CommandUseCase,
	replies adapter.MessageSender,
	pool Submitter,
	tr usecase.Translator,
	logger *zerolog.Logger,
) *Listener {
	known := make(map[string]bool)
	for _, name := range commands.Commands() {
		known[name] = true
	}
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	return &Listener{
		prefix:   prefix,
		autoJoin: cfg.AutoJoin,
		known:    known,
		commands: commands,
		replies:  replies,
		pool:     pool,
		tr:       tr,
		log:      logger,
		selfID:   func() id.UserID { return "" },
		join:     func(context.Context, id.RoomID) error { return nil },
	}
}

// WithRateLimiter enables the per-sender command budget.
func (l *Listener) WithRateLimiter(rl RateLimiter) *Listener {
	l.limiter = rl
	return l
}

// Attach registers the listener's handlers on the session's sync loop. Events
// from the initial sync are skipped so old commands are not replayed.
func (l *Listener) Attach(s *Session) {
	l.selfID = s.UserID
	l.join = s.JoinRoom

	if l.autoJoin {
		// must run before DontProcessOldEvents, which stops the initial sync
		s.syncer.OnSync(l.joinPendingInvites)
	}
	s.syncer.OnSync(s.client.DontProcessOldEvents)
	s.syncer.OnEventType(event.EventMessage, l.handleMessage)
	if l.autoJoin {
		s.syncer.OnEventType(event.StateMember, l.handleMember)
	}
}

// ParseCommand extracts the command name from a message body: the first word
// after prefix. ok is false when the body is not a command.
func ParseCommand(body, prefix string) (name string, ok bool) {
	body = strings.TrimSpace(body)
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return "", false
	}
	fields := strings.Fields(body[len(prefix):])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func (l *Listener) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == l.selfID() {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || (msg.MsgType != event.MsgText && msg.MsgType != event.MsgNotice) {
		return
	}
	name, ok := ParseCommand(msg.Body, l.prefix)
	if !ok || !l.known[name] {
		return
	}

	roomID := evt.RoomID.String()
	sender := evt.Sender.String()
	ctx = logging.WithSender(logging.WithRoomID(ctx, roomID), sender)
	log := logging.With(ctx, l.log)

	if l.limiter != nil {
		allowed, err := l.limiter.Allow(ctx, redisinfra.SenderKey(sender), CommandRateLimit, CommandRateWindow)
		switch {
		case err != nil:
			// limiter outage must not block commands
			log.Warn().Err(err).Msg("rate limiter unavailable")
		case !allowed:
			metrics.IncRateLimitTriggered()
			log.Info().Str("command", name).Msg("chat command rate limited")
			l.reply(ctx, roomID, l.tr.T("rate_limited"))
			return
		}
	}

	reply, handled := l.commands.Execute(ctx, name)
	if !handled {
		return
	}
	metrics.IncChatCommand(name)
	log.Info().Str("command", name).Msg("chat command executed")
	l.reply(ctx, roomID, reply)
}

func (l *Listener) handleMember(ctx context.Context, evt *event.Event) {
	self := l.selfID()
	if self == "" || evt.GetStateKey() != self.String() {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	l.acceptInvite(ctx, evt.RoomID, evt.Sender.String())
}

// joinPendingInvites accepts invites received while the bot was offline. They
// only show up in the initial sync, whose events are otherwise skipped.
func (l *Listener) joinPendingInvites(ctx context.Context, resp *mautrix.RespSync, since string) bool {
	if since != "" || resp == nil {
		return true
	}
	for roomID := range resp.Rooms.Invite {
		l.acceptInvite(ctx, roomID, "")
	}
	return true
}

func (l *Listener) acceptInvite(ctx context.Context, roomID id.RoomID, inviter string) {
	if err := l.join(ctx, roomID); err != nil {
		l.log.Warn().Err(err).Str("room_id", roomID.String()).Str("inviter", inviter).Msg("auto-join failed")
		return
	}
	l.log.Info().Str("room_id", roomID.String()).Str("inviter", inviter).Msg("joined room on invite")
}

// reply is best-effort: failures are logged and counted, never retried.
func (l *Listener) reply(ctx context.Context, roomID, text string) {
	log := logging.With(ctx, l.log)
	task := func(ctx context.Context) error {
		res := l.replies.SendText(ctx, roomID, text)
		if !res.OK {
			metrics.IncAckFailure()
			return fmt.Errorf("acknowledgement to %s failed: %v", roomID, res.Details["error"])
		}
		return nil
	}
	if err := l.pool.Submit(task); err != nil {
		metrics.IncAckFailure()
		log.Warn().Err(err).Msg("acknowledgement dropped")
	}
}
