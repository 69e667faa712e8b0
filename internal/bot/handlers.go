package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"pricebot/internal/engagement"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/storage"
	kit "pricebot/internal/transport"
	"pricebot/internal/transport/telegram/router"
	logx "pricebot/pkg/logx"
)

const (
	sendPickTag   = "send_pick"
	maxPickerSize = 10
	maxCampaigns  = 5
)

var allowedExt = map[string]struct{}{
	".pdf": {}, ".xlsx": {}, ".xls": {}, ".jpg": {}, ".jpeg": {}, ".png": {},
}

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	switch b.registry.Subscribe(ctx, req.From) {
	case storage.OutcomeNew:
		req.Reply(ctx, welcomeText, nil)
	case storage.OutcomeReactivated:
		req.Reply(ctx, welcomeBackText, nil)
	default:
		req.Reply(ctx, alreadySubscribedText, nil)
	}
	return nil
}

func (b *Bot) handleStop(ctx context.Context, req *router.Request) error {
	b.registry.Unsubscribe(ctx, req.From.ID)
	req.Reply(ctx, stoppedText, nil)
	return nil
}

func (b *Bot) handleHelp(ctx context.Context, req *router.Request) error {
	if b.help != nil {
		req.Reply(ctx, b.help.HelpText(req.IsAdmin, ""), htmlOpts)
	}
	return nil
}

func (b *Bot) handleAdmin(ctx context.Context, req *router.Request) error {
	text := adminPanelTitle
	if b.help != nil {
		text = b.help.HelpText(true, adminPanelTitle)
	}
	req.Reply(ctx, text, htmlOpts)
	return nil
}

func (b *Bot) handleCancel(ctx context.Context, req *router.Request) error {
	if b.dialogs.clear(req.Chat.ChatID) {
		req.Reply(ctx, cancelledText, nil)
	} else {
		req.Reply(ctx, nothingToCancel, nil)
	}
	return nil
}

// Upload flow

func (b *Bot) handleUpload(ctx context.Context, req *router.Request) error {
	b.dialogs.set(req.Chat.ChatID, dialog{step: stepAwaitFile})
	req.Reply(ctx, uploadPromptText, nil)
	return nil
}

func (b *Bot) saveDocument(ctx context.Context, req *router.Request, doc *kit.Document) {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if _, ok := allowedExt[ext]; !ok {
		req.Reply(ctx, badFormatText, nil)
		return
	}
	id := b.store.AddPriceList(ctx, doc.FileID, doc.FileName, req.From.ID)
	b.dialogs.clear(req.Chat.ChatID)
	req.Logger.Info("price list uploaded", logx.Int64("price_list", id), logx.String("file", doc.FileName))
	req.Reply(ctx, fmt.Sprintf("✅ Прайс-лист «%s» сохранён под номером #%d", doc.FileName, id), nil)
}

// Send flow

func (b *Bot) handleSend(ctx context.Context, req *router.Request) error {
	lists := b.store.PriceLists()
	if len(lists) == 0 {
		b.dialogs.clear(req.Chat.ChatID)
		req.Reply(ctx, noPriceListsText, nil)
		return nil
	}
	if len(lists) > maxPickerSize {
		lists = lists[:maxPickerSize]
	}

	var sb strings.Builder
	sb.WriteString("📋 Выберите прайс-лист:\n\n")
	offered := make(map[int64]struct{}, len(lists))
	kb := make(kit.Keyboard, 0, len(lists))
	for _, pl := range lists {
		offered[pl.ID] = struct{}{}
		uploaded := pl.UploadedAt.In(b.loc).Format("02.01.2006")
		fmt.Fprintf(&sb, "%d. %s (%s)\n", pl.ID, pl.FileName, uploaded)
		kb = append(kb, []kit.Button{{
			Text: fmt.Sprintf("#%d %s", pl.ID, pl.FileName),
			Data: sendPickTag + ":" + strconv.FormatInt(pl.ID, 10),
		}})
	}
	sb.WriteString("\nОтправьте номер:")

	b.dialogs.set(req.Chat.ChatID, dialog{step: stepAwaitChoice, offered: offered})
	req.Reply(ctx, sb.String(), &kit.SendOptions{Keyboard: kb})
	return nil
}

func (b *Bot) handlePick(ctx context.Context, req *router.Request, payload string) error {
	if cb := req.Update.Callback; cb != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "", false)
	}
	if b.dialogs.get(req.Chat.ChatID).step != stepAwaitChoice {
		return nil
	}
	b.choose(ctx, req, payload)
	return nil
}

func (b *Bot) choose(ctx context.Context, req *router.Request, raw string) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		req.Reply(ctx, badNumberText, nil)
		return
	}
	dl := b.dialogs.get(req.Chat.ChatID)
	pl, found := b.store.PriceList(id)
	if _, offered := dl.offered[id]; !offered || !found {
		req.Reply(ctx, priceNotFoundText, nil)
		return
	}
	b.dialogs.set(req.Chat.ChatID, dialog{step: stepAwaitCaption, chosen: id})
	req.Reply(ctx, fmt.Sprintf("📄 Вы выбрали: %s\n\nНапишите текст рассылки (или «-» для пропуска):", pl.FileName), nil)
}

func (b *Bot) launch(ctx context.Context, req *router.Request, text string, dl dialog) {
	b.dialogs.clear(req.Chat.ChatID)
	pl, ok := b.store.PriceList(dl.chosen)
	if !ok {
		req.Reply(ctx, selectionLostText, nil)
		return
	}
	caption := text
	if strings.TrimSpace(text) == skipCaptionMarker {
		caption = defaultCaption
	}

	cid := b.store.CreateCampaign(ctx, pl.ID, req.From.ID)
	req.Reply(ctx, fmt.Sprintf("🚀 Начинаю рассылку %s...\nЭто займёт несколько минут.", pl.FileName), nil)

	jobID, err := b.launcher.Submit(broadcast.Job{
		CampaignID: cid,
		FileID:     pl.FileID,
		Caption:    caption,
		Operator:   req.Chat,
	})
	if err != nil {
		req.Logger.Error("campaign not started", logx.Int64("campaign", cid), logx.Err(err))
		req.Reply(ctx, fmt.Sprintf(launchFailedFormat, err), nil)
		return
	}
	req.Logger.Info("campaign queued", logx.Int64("campaign", cid), logx.String("job", jobID), logx.Int64("price_list", pl.ID))
}

// handleMessage receives every non-command message and advances the
// chat's admin flow, if any.
func (b *Bot) handleMessage(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || !req.IsAdmin {
		return nil
	}
	dl := b.dialogs.get(req.Chat.ChatID)
	switch dl.step {
	case stepAwaitFile:
		if msg.Document != nil {
			b.saveDocument(ctx, req, msg.Document)
		}
	case stepAwaitChoice:
		if msg.Document == nil {
			b.choose(ctx, req, msg.Text)
		}
	case stepAwaitCaption:
		if msg.Document == nil && strings.TrimSpace(msg.Text) != "" {
			b.launch(ctx, req, msg.Text, dl)
		}
	}
	return nil
}

// Reports

func (b *Bot) handleStats(ctx context.Context, req *router.Request) error {
	req.Reply(ctx, engagement.OverviewText(b.tracker.Overview()), htmlOpts)
	return nil
}

func (b *Bot) handleCampaigns(ctx context.Context, req *router.Request) error {
	reports := b.tracker.Recent(maxCampaigns)
	running := map[int64]engagement.Progress{}
	if b.launcher != nil {
		for _, r := range reports {
			if st, ok := b.launcher.Status(r.Campaign.ID); ok && st.Running {
				running[r.Campaign.ID] = engagement.Progress{Processed: st.Processed, Total: st.Total}
			}
		}
	}
	req.Reply(ctx, engagement.CampaignsText(reports, running, b.loc), htmlOpts)
	return nil
}

// Delivery controls

func (b *Bot) handleControl(ctx context.Context, req *router.Request, _ string) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	reply, err := b.tracker.Handle(ctx, cb.Data, req.From.ID)
	if err != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "", false)
		return err
	}
	if err := req.Adapter.AnswerCallback(ctx, cb.ID, reply.Text, reply.Alert); err != nil {
		req.Logger.Debug("callback answer failed", logx.Err(err))
	}
	if reply.ClearControls && cb.MessageID != 0 {
		if err := req.Adapter.ClearKeyboard(ctx, kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}); err != nil {
			req.Logger.Debug("clear controls failed", logx.Err(err))
		}
	}
	return nil
}
