package router

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	kit "pricebot/internal/transport"
	"pricebot/internal/transport/transporttest"
	logx "pricebot/pkg/logx"
)

func msgUpdate(chat, from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chat, From: kit.User{ID: from}, Text: text, IsPrivate: true}}
}

func cbUpdate(chat, from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: chat, From: kit.User{ID: from}, Data: data}}
}

type harness struct {
	m       *CommandManager
	adapter *transporttest.Adapter
	updates chan kit.Update
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	got []string
}

func (h *harness) record(s string) {
	h.mu.Lock()
	h.got = append(h.got, s)
	h.mu.Unlock()
}

func (h *harness) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.got...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{adapter: transporttest.New(), updates: make(chan kit.Update, 16), done: make(chan struct{})}
	h.m = NewCommandManager(logx.Nop(), h.adapter, []int64{1}, WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.m.SetRegistry(ctx, []Command{
		{Name: "start", Description: "subscribe", Handle: func(ctx context.Context, r *Request) error {
			h.record("start")
			return nil
		}},
		{Name: "admin", Description: "panel", Access: AccessAdmin, DeniedText: "denied", Handle: func(ctx context.Context, r *Request) error {
			h.record("admin")
			return nil
		}},
		{Name: "stats", Description: "stats", Access: AccessAdmin, Handle: func(ctx context.Context, r *Request) error {
			h.record("stats")
			return nil
		}},
		{Name: "echo", Hidden: true, Handle: func(ctx context.Context, r *Request) error {
			h.record("echo:" + r.Args[0])
			return nil
		}},
	}, []CallbackRoute{
		{Prefix: "track_open", Handle: func(ctx context.Context, r *Request, payload string) error {
			h.record("open:" + payload)
			return nil
		}},
		{Prefix: "send_pick", Access: AccessAdmin, Handle: func(ctx context.Context, r *Request, payload string) error {
			h.record("pick:" + payload)
			return nil
		}},
	})
	h.m.SetFallback(func(ctx context.Context, r *Request) error {
		h.record("text:" + r.Update.Message.Text)
		return nil
	})

	go func() {
		defer close(h.done)
		_ = h.m.DispatchLoop(ctx, h.updates)
	}()
	t.Cleanup(func() {
		h.cancel()
		<-h.done
	})
	return h
}

func (h *harness) waitFor(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.seen()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.seen()
}

func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("/Send@price_bot 12  x")
	require.True(t, ok)
	require.Equal(t, "send", name)
	require.Equal(t, []string{"12", "x"}, args)

	_, _, ok = parseCommand("hello")
	require.False(t, ok)
	_, _, ok = parseCommand("/")
	require.False(t, ok)
}

func TestAdminAccess(t *testing.T) {
	h := newHarness(t)
	h.updates <- msgUpdate(5, 5, "/admin")
	h.updates <- msgUpdate(5, 5, "/stats")
	h.updates <- msgUpdate(1, 1, "/stats")

	require.Equal(t, []string{"stats"}, h.waitFor(t, 1))
	require.Eventually(t, func() bool { return len(h.adapter.TextsTo(5)) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"denied"}, h.adapter.TextsTo(5))
}

func TestCallbackRouting(t *testing.T) {
	h := newHarness(t)
	h.updates <- cbUpdate(7, 7, "send_pick:3")
	h.updates <- cbUpdate(7, 7, "track_open:4:7")
	h.updates <- cbUpdate(1, 1, "send_pick:9")

	got := h.waitFor(t, 2)
	require.ElementsMatch(t, []string{"open:4:7", "pick:9"}, got)
}

func TestFallbackKeepsChatOrder(t *testing.T) {
	h := newHarness(t)
	for _, s := range []string{"a", "b", "c", "d"} {
		h.updates <- msgUpdate(42, 42, s)
	}
	h.updates <- msgUpdate(42, 42, "/echo e")
	require.Equal(t, []string{"text:a", "text:b", "text:c", "text:d", "echo:e"}, h.waitFor(t, 5))
}

func TestHelpAndMenu(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, "/start — subscribe", h.m.HelpText(false, ""))
	require.Equal(t, "T\n\n/start — subscribe\n/admin — panel\n/stats — stats", h.m.HelpText(true, "T"))

	require.Eventually(t, func() bool { return len(h.adapter.Menu()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "start", h.adapter.Menu()[0].Command)
}

func TestSanitizeTelegramCommand(t *testing.T) {
	require.Equal(t, "price_list", sanitizeTelegramCommand(" Price-List "))
	require.Equal(t, "", sanitizeTelegramCommand("---"))
}

func renderFields(fields []logx.Field) string {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range fields {
		f(ev)
	}
	ev.Send()
	return buf.String()
}

func TestRequestLogFields(t *testing.T) {
	cb := &Request{Update: cbUpdate(7, 7, "track_open:4:7"), Payload: "4:7"}
	require.JSONEq(t, `{"level":"info","admin":false,"payload":"4:7"}`, renderFields(requestFields(cb)))

	cmd := &Request{Update: msgUpdate(1, 1, "/send 3 now"), Args: []string{"3", "now"}, IsAdmin: true}
	require.JSONEq(t, `{"level":"info","admin":true,"args":2}`, renderFields(requestFields(cmd)))

	bare := &Request{Update: msgUpdate(1, 1, "/start")}
	require.JSONEq(t, `{"level":"info","admin":false}`, renderFields(requestFields(bare)))
}

func TestMiddlewareChainPropagatesFailures(t *testing.T) {
	req := &Request{Update: msgUpdate(1, 1, "/stats"), Command: "stats", Logger: logx.Nop()}
	boom := errors.New("boom")

	h := Chain(func(context.Context, *Request) error { return boom },
		MWPanicRecover(logx.Nop()), MWRequestLog(logx.Nop()))
	require.ErrorIs(t, h(context.Background(), req), boom)

	h = Chain(func(context.Context, *Request) error { panic("bad handler") },
		MWPanicRecover(logx.Nop()), MWRequestLog(logx.Nop()))
	require.EqualError(t, h(context.Background(), req), "panic: bad handler")

	var deadline bool
	h = Chain(func(ctx context.Context, _ *Request) error {
		_, deadline = ctx.Deadline()
		return nil
	}, MWRequestLog(logx.Nop()), MWTimeout(time.Second))
	require.NoError(t, h(context.Background(), req))
	require.True(t, deadline)
}
