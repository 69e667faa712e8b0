// Package bot is the conversational front end: subscriber commands, the
// admin upload and send flows, reports and delivery controls.
package bot

import (
	"context"
	"time"

	"pricebot/internal/engagement"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/storage"
	"pricebot/internal/subscribers"
	"pricebot/internal/transport/telegram/router"
	logx "pricebot/pkg/logx"
)

// Launcher starts campaign runs in the background.
type Launcher interface {
	Submit(job broadcast.Job) (string, error)
	Status(campaignID int64) (broadcast.JobStatus, bool)
}

// Help renders the command list for a caller.
type Help interface {
	HelpText(admin bool, title string) string
}

type Deps struct {
	Store     *storage.Store
	Registry  *subscribers.Registry
	Tracker   *engagement.Tracker
	Launcher  Launcher
	Help      Help
	Log       logx.Logger
	Location  *time.Location
	DialogTTL time.Duration
}

type Bot struct {
	store    *storage.Store
	registry *subscribers.Registry
	tracker  *engagement.Tracker
	launcher Launcher
	help     Help
	log      logx.Logger
	loc      *time.Location
	dialogs  *dialogs
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &Bot{
		store:    d.Store,
		registry: d.Registry,
		tracker:  d.Tracker,
		launcher: d.Launcher,
		help:     d.Help,
		log:      d.Log,
		loc:      d.Location,
		dialogs:  newDialogs(d.DialogTTL),
	}
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "подписаться на прайс-листы", Handle: b.handleStart},
		{Name: "stop", Description: "отписаться от рассылки", Handle: b.handleStop},
		{Name: "help", Hidden: true, Handle: b.handleHelp},
		{Name: "admin", Description: "панель администратора", Access: router.AccessAdmin, DeniedText: accessDeniedText, Hidden: true, Handle: b.handleAdmin},
		{Name: "upload", Description: "загрузить прайс-лист", Access: router.AccessAdmin, Handle: b.handleUpload},
		{Name: "send", Description: "отправить рассылку", Access: router.AccessAdmin, Handle: b.handleSend},
		{Name: "stats", Description: "статистика", Access: router.AccessAdmin, Timeout: 10 * time.Second, Handle: b.handleStats},
		{Name: "campaigns", Description: "история рассылок", Access: router.AccessAdmin, Timeout: 10 * time.Second, Handle: b.handleCampaigns},
		{Name: "cancel", Description: "отменить текущее действие", Access: router.AccessAdmin, Handle: b.handleCancel},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: engagement.TagOpen, Timeout: 10 * time.Second, Handle: b.handleControl},
		{Prefix: engagement.TagUnsubscribe, Timeout: 10 * time.Second, Handle: b.handleControl},
		{Prefix: sendPickTag, Access: router.AccessAdmin, Handle: b.handlePick},
	}
}

// Register installs the bot's commands, callbacks and free-text handler.
func (b *Bot) Register(ctx context.Context, m *router.CommandManager) {
	m.SetRegistry(ctx, b.Commands(), b.Callbacks())
	m.SetFallback(b.handleMessage)
}
