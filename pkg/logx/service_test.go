package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatAlertSortsFields(t *testing.T) {
	line := `{"level":"error","time":"x","message":"save failed","path":"/tmp/a","err":"disk full"}`
	got := formatAlert([]byte(line))
	require.Equal(t, "[ERROR] save failed\n- err=disk full\n- path=/tmp/a", got)
}

func TestFormatAlertNonJSON(t *testing.T) {
	require.Equal(t, "plain text", formatAlert([]byte("  plain text \n")))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestNopAndZeroLoggerAreSafe(t *testing.T) {
	var zero Logger
	require.True(t, zero.IsZero())
	zero.Info("dropped", String("k", "v"))

	n := Nop()
	require.False(t, n.IsZero())
	n.With(Int("a", 1)).Error("dropped")
}

type captureSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (c *captureSender) SendAlert(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = map[int64][]string{}
	}
	c.sent[chatID] = append(c.sent[chatID], text)
	return nil
}

func (c *captureSender) count(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent[chatID])
}

func TestAlertSinkForwardsAboveMinLevel(t *testing.T) {
	cs := &captureSender{}
	svc, log := New(Config{
		Level:  "debug",
		Alerts: AlertConfig{Enabled: true, MinLevel: "error", RatePerSec: 10},
		File:   FileConfig{Enabled: true, Path: t.TempDir() + "/bot.log"},
	}, cs)
	defer svc.Close()
	svc.SetAlertTargets([]int64{7})

	log.Info("not forwarded")
	log.Error("store save failed", String("path", "data.json"))

	require.Eventually(t, func() bool { return cs.count(7) == 1 }, 2*time.Second, 10*time.Millisecond)
	cs.mu.Lock()
	msg := cs.sent[7][0]
	cs.mu.Unlock()
	require.True(t, strings.HasPrefix(msg, "[ERROR] store save failed"), msg)
}
