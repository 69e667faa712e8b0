package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c, _ := Classify(nil)
	require.Equal(t, Delivered, c)

	c, _ = Classify(Unreachable(errors.New("Forbidden: bot was blocked by the user")))
	require.Equal(t, RecipientUnreachable, c)

	wrapped := fmt.Errorf("send: %w", &RateLimitError{RetryAfter: 3 * time.Second})
	c, d := Classify(wrapped)
	require.Equal(t, RateLimited, c)
	require.Equal(t, 3*time.Second, d)

	c, _ = Classify(errors.New("Bad Request: wrong file identifier"))
	require.Equal(t, OtherFailure, c)
}

func TestUnreachableKeepsCause(t *testing.T) {
	cause := errors.New("user is deactivated")
	err := Unreachable(cause)
	require.ErrorIs(t, err, ErrRecipientUnreachable)
	require.ErrorIs(t, err, cause)
}
