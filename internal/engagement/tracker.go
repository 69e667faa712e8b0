// Package engagement handles the controls attached to delivered price
// lists and builds the campaign and overall reports.
package engagement

import (
	"context"

	"pricebot/internal/metrics"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

const (
	OpenMethodButton = "button"

	NotYourControlText = "❌ Это не ваша кнопка!"
	ThanksText         = "✅ Спасибо! Прайс-лист получен."
	AlreadyOpenedText  = "✅ Получение уже подтверждено."
	UnsubscribedText   = "❌ Вы отписались от рассылки."
)

// Unsubscriber is implemented by subscribers.Registry.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, id int64) bool
}

// Reply is what the interacting user sees after pressing a control.
type Reply struct {
	Text  string
	Alert bool
	// ClearControls asks the caller to remove the keyboard from the message.
	ClearControls bool
	// Changed is true when the press mutated state.
	Changed bool
}

type Tracker struct {
	store   *storage.Store
	unsub   Unsubscriber
	metrics *metrics.Metrics
	log     logx.Logger
}

func New(store *storage.Store, unsub Unsubscriber, m *metrics.Metrics, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{store: store, unsub: unsub, metrics: m, log: log}
}

var notYours = Reply{Text: NotYourControlText, Alert: true}

// ConfirmReceived records that recipient opened campaign. The control is
// honoured only when pressed by the recipient it was issued to.
func (t *Tracker) ConfirmReceived(ctx context.Context, campaignID, recipientID, actor int64) Reply {
	if actor != recipientID {
		t.log.Info("foreign open control", logx.Int64("campaign", campaignID), logx.Int64("owner", recipientID), logx.Int64("actor", actor))
		return notYours
	}
	if !t.store.RecordOpen(ctx, campaignID, recipientID, OpenMethodButton) {
		return Reply{Text: AlreadyOpenedText, ClearControls: true}
	}
	t.metrics.Open()
	t.log.Debug("open recorded", logx.Int64("campaign", campaignID), logx.Int64("user", recipientID))
	return Reply{Text: ThanksText, ClearControls: true, Changed: true}
}

// Unsubscribe deactivates the recipient regardless of which campaign's
// control was pressed.
func (t *Tracker) Unsubscribe(ctx context.Context, recipientID, actor int64) Reply {
	if actor != recipientID {
		t.log.Info("foreign unsubscribe control", logx.Int64("owner", recipientID), logx.Int64("actor", actor))
		return notYours
	}
	changed := t.unsub.Unsubscribe(ctx, recipientID)
	return Reply{Text: UnsubscribedText, Alert: true, ClearControls: true, Changed: changed}
}

// Handle decodes callback data and dispatches it.
func (t *Tracker) Handle(ctx context.Context, data string, actor int64) (Reply, error) {
	tok, err := ParseToken(data)
	if err != nil {
		return Reply{}, err
	}
	if tok.Action == ActionOpen {
		return t.ConfirmReceived(ctx, tok.CampaignID, tok.RecipientID, actor), nil
	}
	return t.Unsubscribe(ctx, tok.RecipientID, actor), nil
}
