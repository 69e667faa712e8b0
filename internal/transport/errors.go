package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrRecipientUnreachable means the recipient blocked the bot, deleted the
// account or otherwise cannot receive messages. Retrying will not help.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// RateLimitError asks the caller to wait RetryAfter before trying again.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Unreachable wraps err so errors.Is(err, ErrRecipientUnreachable) holds.
func Unreachable(err error) error {
	if err == nil {
		return ErrRecipientUnreachable
	}
	return fmt.Errorf("%w: %w", ErrRecipientUnreachable, err)
}

// DeliveryClass is the coarse outcome of a send attempt.
type DeliveryClass int

const (
	Delivered DeliveryClass = iota
	RecipientUnreachable
	RateLimited
	OtherFailure
)

// Classify maps a send error onto DeliveryClass. For RateLimited the wait
// duration is returned as well.
func Classify(err error) (DeliveryClass, time.Duration) {
	if err == nil {
		return Delivered, 0
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return RateLimited, rl.RetryAfter
	}
	if errors.Is(err, ErrRecipientUnreachable) {
		return RecipientUnreachable, 0
	}
	return OtherFailure, 0
}
