package adapter

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "pricebot/internal/transport"
)

var unreachableErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrChatNotFound,
}

// classify maps telebot errors onto the transport delivery taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := floodWait(err); ok {
		return &kit.RateLimitError{RetryAfter: d, Err: err}
	}
	for _, target := range unreachableErrors {
		if errors.Is(err, target) {
			return kit.Unreachable(err)
		}
	}
	// any other 403 (kicked, bot can't initiate conversation, ...)
	if strings.Contains(err.Error(), "Forbidden") {
		return kit.Unreachable(err)
	}
	return err
}

func floodWait(err error) (time.Duration, bool) {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second, true
	}
	var fp *tele.FloodError
	if errors.As(err, &fp) && fp != nil {
		return time.Duration(fp.RetryAfter) * time.Second, true
	}
	return 0, false
}
