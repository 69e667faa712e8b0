package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []kit.ChatTarget
	texts []string
	calls int
	fail  func(call int, to int64) error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		if err := f.fail(f.calls, to.ChatID); err != nil {
			return kit.MessageRef{}, err
		}
	}
	f.sent = append(f.sent, to)
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotifyAllDeliversToEveryAdmin(t *testing.T) {
	snd := &fakeSender{}
	s := New(Config{Spacing: time.Millisecond}, snd, logx.Nop(), nil)
	s.Start(context.Background())

	n := s.NotifyAll(context.Background(), []int64{10, 20, 30}, Alert{Text: "hello", Kind: "subscriber"})
	require.Equal(t, 3, n)

	s.Stop(context.Background())
	require.Equal(t, 3, snd.count())
	require.Equal(t, []kit.ChatTarget{{ChatID: 10}, {ChatID: 20}, {ChatID: 30}}, snd.sent)
}

func TestNotifyWhenStopped(t *testing.T) {
	s := New(Config{}, &fakeSender{}, logx.Nop(), nil)
	require.ErrorIs(t, s.Notify(context.Background(), Alert{ChatID: 1}), ErrStopped)
}

func TestRetryThenDeliver(t *testing.T) {
	snd := &fakeSender{fail: func(call int, _ int64) error {
		if call == 1 {
			return errors.New("bad gateway")
		}
		return nil
	}}
	s := New(Config{Spacing: time.Millisecond, RetryMax: 2, RetryBase: time.Millisecond}, snd, logx.Nop(), nil)
	s.Start(context.Background())
	require.NoError(t, s.SendAlert(context.Background(), 5, "boom"))

	require.Eventually(t, func() bool { return snd.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop(context.Background())
}

func TestUnreachableAdminIsNotRetried(t *testing.T) {
	snd := &fakeSender{fail: func(int, int64) error { return kit.ErrRecipientUnreachable }}
	s := New(Config{Spacing: time.Millisecond, RetryMax: 5, RetryBase: time.Millisecond}, snd, logx.Nop(), nil)
	s.Start(context.Background())
	require.NoError(t, s.Notify(context.Background(), Alert{ChatID: 1, Text: "x"}))
	s.Stop(context.Background())

	snd.mu.Lock()
	defer snd.mu.Unlock()
	require.Equal(t, 1, snd.calls)
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	snd := &fakeSender{fail: func(int, int64) error {
		<-block
		return nil
	}}
	s := New(Config{QueueSize: 1, Spacing: time.Millisecond}, snd, logx.Nop(), nil)
	s.Start(context.Background())

	var full bool
	for i := 0; i < 5; i++ {
		if errors.Is(s.Notify(context.Background(), Alert{ChatID: int64(i)}), ErrQueueFull) {
			full = true
		}
	}
	require.True(t, full)
	close(block)
	s.Stop(context.Background())
}

func TestBackoffBounds(t *testing.T) {
	for i := 0; i < 10; i++ {
		d := backoff(100*time.Millisecond, i)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 30*time.Second)
	}
}
