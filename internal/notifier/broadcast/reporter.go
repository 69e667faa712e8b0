package broadcast

import (
	"context"

	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

// TextSender is satisfied by transport.Adapter.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// ChatReporter sends operator reports as plain chat messages.
type ChatReporter struct {
	Sender TextSender
	Log    logx.Logger
}

func (r ChatReporter) Report(ctx context.Context, to kit.ChatTarget, text string) {
	if r.Sender == nil {
		return
	}
	if _, err := r.Sender.SendText(ctx, to, text, nil); err != nil && !r.Log.IsZero() {
		r.Log.Warn("operator report failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
