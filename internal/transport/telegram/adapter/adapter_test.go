package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	kit "pricebot/internal/transport"
)

func TestClassifyBlocked(t *testing.T) {
	err := classify(fmt.Errorf("send: %w", errors.New("telegram: Forbidden: bot was blocked by the user (403)")))
	require.ErrorIs(t, err, kit.ErrRecipientUnreachable)
}

func TestClassifyPassThrough(t *testing.T) {
	base := errors.New("telegram: Bad Request: wrong file identifier (400)")
	err := classify(base)
	require.Same(t, base, err)
	require.Nil(t, classify(nil))
}

func TestSplitTextShort(t *testing.T) {
	require.Equal(t, []string{"hello"}, splitText("hello", 10, ""))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitText(text, 10, "")
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, parts)
}

func TestSplitTextAvoidsHTMLTags(t *testing.T) {
	text := "abcdef<b>bold</b>"
	parts := splitText(text, 8, "HTML")
	require.Equal(t, "abcdef", parts[0])
	require.Equal(t, text, strings.Join(parts, ""))
}

func TestInlineMarkupKeepsRawData(t *testing.T) {
	m := inlineMarkup(kit.Keyboard{
		{{Text: "ok", Data: "track_open:1:2"}},
		{{Text: "stop", Data: "unsubscribe:2"}},
	})
	require.Len(t, m.InlineKeyboard, 2)
	require.Equal(t, "track_open:1:2", m.InlineKeyboard[0][0].Data)
	require.Equal(t, "unsubscribe:2", m.InlineKeyboard[1][0].Data)
}
