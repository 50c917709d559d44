package usecase

import (
	"context"
	"sort"
	"strings"

	"matrix-zabbix-bridge/internal/domain/model"
	"matrix-zabbix-bridge/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ CommandUseCase = (*commandUC)(nil)

// Chat command names, without the prefix.
const (
	CmdEnable  = "enable_zabbix"
	CmdDisable = "disable_zabbix"
	CmdStatus  = "zabbix_status"
	CmdHistory = "zabbix_history"
)

// HistoryReplyLimit is how many records !zabbix_history shows.
const HistoryReplyLimit = 10

// Translator resolves reply texts by key.
type Translator interface {
	T(key string, args ...interface{}) string
}

type CommandUseCase interface {
	// Execute runs a chat command and returns the reply text. handled is
	// false for unknown commands, which must be ignored silently.
	Execute(ctx context.Context, name string) (reply string, handled bool)
	Commands() []string
}

type commandHandler func(ctx context.Context) string

type commandUC struct {
	state  BotState
	tr     Translator
	routes map[string]commandHandler
	log    *zerolog.Logger
}

func NewCommandUseCase(state BotState, tr Translator, logger *zerolog.Logger) *commandUC {
	c := &commandUC{state: state, tr: tr, log: logger}
	c.routes = map[string]commandHandler{
		CmdEnable:  c.handleEnable,
		CmdDisable: c.handleDisable,
		CmdStatus:  c.handleStatus,
		CmdHistory: c.handleHistory,
	}
	return c
}

func (c *commandUC) Execute(ctx context.Context, name string) (string, bool) {
	h, ok := c.routes[name]
	if !ok {
		return "", false
	}
	defer logging.TraceDuration(c.log, "CommandUC."+name)()
	return h(ctx), true
}

func (c *commandUC) Commands() []string {
	out := make([]string, 0, len(c.routes))
	for name := range c.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *commandUC) handleEnable(ctx context.Context) string {
	c.state.SetEnabled(ctx, true)
	return c.tr.T("notifications_enabled")
}

func (c *commandUC) handleDisable(ctx context.Context) string {
	c.state.SetEnabled(ctx, false)
	return c.tr.T("notifications_disabled")
}

func (c *commandUC) handleStatus(_ context.Context) string {
	word := c.tr.T("state_disabled")
	if c.state.Enabled() {
		word = c.tr.T("state_enabled")
	}
	return c.tr.T("status_reply", word, c.state.HistoryCount())
}

func (c *commandUC) handleHistory(_ context.Context) string {
	recent := c.state.Recent(HistoryReplyLimit)
	if len(recent) == 0 {
		return c.tr.T("history_empty")
	}
	var b strings.Builder
	b.WriteString(c.tr.T("history_header"))
	b.WriteString("\n\n")
	for i, rec := range recent {
		b.WriteString(c.tr.T("history_line",
			i+1,
			rec.TextOr(model.FieldSubject, DefaultSubject),
			rec.TextOr(model.FieldSeverity, "?"),
		))
		b.WriteString("\n")
	}
	return b.String()
}
