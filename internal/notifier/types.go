package notifier

import (
	"context"
	"time"

	kit "pricebot/internal/transport"
)

// Config controls the async alert pipeline.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration
	// Spacing is the minimum gap between consecutive sends. It wins over
	// RatePerSec when both are set.
	Spacing time.Duration
}

// TextSender is satisfied by transport.Adapter.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Alert is one queued message.
type Alert struct {
	ChatID    int64
	Text      string
	ParseMode string
	// Kind labels the alert in logs ("subscriber", "digest", "log").
	Kind string
}
