package engagement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	kit "pricebot/internal/transport"
)

const (
	TagOpen        = "track_open"
	TagUnsubscribe = "unsubscribe"

	ConfirmButtonText     = "✅ Получил прайс"
	UnsubscribeButtonText = "❌ Отписаться"
)

var ErrBadToken = errors.New("engagement: malformed control token")

type Action int

const (
	ActionOpen Action = iota + 1
	ActionUnsubscribe
)

// Token is the decoded callback data of a delivery control.
type Token struct {
	Action      Action
	CampaignID  int64 // zero for unsubscribe
	RecipientID int64
}

func EncodeOpen(campaignID, recipientID int64) string {
	return fmt.Sprintf("%s:%d:%d", TagOpen, campaignID, recipientID)
}

func EncodeUnsubscribe(recipientID int64) string {
	return fmt.Sprintf("%s:%d", TagUnsubscribe, recipientID)
}

// Controls is the keyboard attached to every delivered price list.
func Controls(campaignID, recipientID int64) kit.Keyboard {
	return kit.Keyboard{
		{{Text: ConfirmButtonText, Data: EncodeOpen(campaignID, recipientID)}},
		{{Text: UnsubscribeButtonText, Data: EncodeUnsubscribe(recipientID)}},
	}
}

// IsControl reports whether data belongs to a delivery control.
func IsControl(data string) bool {
	return strings.HasPrefix(data, TagOpen+":") || strings.HasPrefix(data, TagUnsubscribe+":")
}

func ParseToken(data string) (Token, error) {
	parts := strings.Split(data, ":")
	switch {
	case len(parts) == 3 && parts[0] == TagOpen:
		cid, err1 := strconv.ParseInt(parts[1], 10, 64)
		uid, err2 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil {
			return Token{}, fmt.Errorf("%w: %q", ErrBadToken, data)
		}
		return Token{Action: ActionOpen, CampaignID: cid, RecipientID: uid}, nil
	case len(parts) == 2 && parts[0] == TagUnsubscribe:
		uid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %q", ErrBadToken, data)
		}
		return Token{Action: ActionUnsubscribe, RecipientID: uid}, nil
	}
	return Token{}, fmt.Errorf("%w: %q", ErrBadToken, data)
}
