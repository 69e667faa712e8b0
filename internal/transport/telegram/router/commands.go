package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"pricebot/internal/metrics"
	rtsup "pricebot/internal/runtime/supervisor"
	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	// DeniedText is sent to non-admins; empty means they are ignored.
	DeniedText string
	// Hidden commands are left out of the client menu and help.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "<prefix>:<payload>".
type CallbackRoute struct {
	Prefix  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.User
	Command string
	Args    []string
	Payload string
	ReqID   string
	IsAdmin bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the request's chat. Send errors are logged.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) {
	if _, err := r.Adapter.SendText(ctx, r.Chat, text, opt); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

type Option func(*CommandManager)

func WithWorkers(n int) Option {
	return func(m *CommandManager) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *CommandManager) { m.metrics = mt }
}

type CommandManager struct {
	mu sync.RWMutex

	commands  map[string]Command
	ordered   []Command
	callbacks map[string]CallbackRoute
	fallback  HandlerFunc
	admins    map[int64]struct{}

	log     logx.Logger
	adapter kit.Adapter
	metrics *metrics.Metrics

	workers int
	// one lane per worker; a chat always maps to the same lane so its
	// updates are handled in arrival order
	lanes []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, admins []int64, opts ...Option) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		workers:   4,
	}
	for _, o := range opts {
		o(m)
	}
	m.SetAdmins(admins)
	m.lanes = make([]chan func(), m.workers)
	for i := range m.lanes {
		m.lanes[i] = make(chan func(), 64)
	}
	return m
}

// SetAdmins replaces the admin set. Safe during hot reload.
func (m *CommandManager) SetAdmins(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.mu.Lock()
	m.admins = set
	m.mu.Unlock()
}

func (m *CommandManager) IsAdmin(id int64) bool {
	m.mu.RLock()
	_, ok := m.admins[id]
	m.mu.RUnlock()
	return ok
}

// Admins returns the current admin ids in no particular order.
func (m *CommandManager) Admins() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		out = append(out, id)
	}
	return out
}

// SetFallback handles messages that are not commands (documents, free text).
func (m *CommandManager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	byName := map[string]Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		ordered = append(ordered, c)
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = c
				}
			}
		}
	}
	routes := map[string]CallbackRoute{}
	for _, r := range cbs {
		if p := strings.TrimSpace(r.Prefix); p != "" && r.Handle != nil {
			routes[p] = r
		}
	}

	m.mu.Lock()
	m.commands = byName
	m.ordered = ordered
	m.callbacks = routes
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(ordered)
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("dispatcher started", logx.Int("workers", len(m.lanes)))

	for i, lane := range m.lanes {
		idx := i
		sup.GoRestart("lane."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-lane:
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(idx int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in dispatch lane", logx.Int("lane", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) enqueue(chatID int64, fn func()) bool {
	n := chatID % int64(len(m.lanes))
	if n < 0 {
		n = -n
	}
	select {
	case m.lanes[n] <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) routeUpdate(ctx context.Context, up kit.Update) {
	m.metrics.Update(string(up.Kind))
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func (m *CommandManager) newRequest(up kit.Update, chat int64, from kit.User, command string) *Request {
	rid := ulid.Make().String()
	return &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: chat},
		From:    from,
		Command: command,
		ReqID:   rid,
		IsAdmin: m.IsAdmin(from.ID),
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", command),
		),
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}

	name, args, isCmd := parseCommand(msg.Text)
	m.mu.RLock()
	cmd, known := m.commands[name]
	fallback := m.fallback
	m.mu.RUnlock()

	if !isCmd || !known {
		if fallback == nil {
			return
		}
		req := m.newRequest(up, msg.ChatID, msg.From, "message")
		h := Chain(fallback, MWPanicRecover(m.log), MWRequestLog(m.log))
		if !m.enqueue(msg.ChatID, func() { _ = h(ctx, req) }) {
			m.log.Warn("dispatch lane full; message dropped", logx.Int64("chat_id", msg.ChatID))
		}
		return
	}

	req := m.newRequest(up, msg.ChatID, msg.From, cmd.Name)
	req.Args = args
	if cmd.Access == AccessAdmin && !req.IsAdmin {
		if cmd.DeniedText != "" {
			req.Reply(ctx, cmd.DeniedText, nil)
		}
		req.Logger.Debug("admin command refused")
		return
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.enqueue(msg.ChatID, func() { _ = final(ctx, req) }) {
		req.Reply(ctx, "⏳ Бот занят, попробуйте позже", nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	prefix, payload, _ := strings.Cut(strings.TrimSpace(cb.Data), ":")

	m.mu.RLock()
	route, ok := m.callbacks[prefix]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}

	req := m.newRequest(up, cb.ChatID, cb.From, "cb:"+prefix)
	req.Payload = payload
	if route.Access == AccessAdmin && !req.IsAdmin {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)
	if !m.enqueue(cb.ChatID, func() { _ = final(ctx, req) }) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "⏳", false)
	}
}
