// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "pricebot/internal/transport"
)

type Sent struct {
	To      kit.ChatTarget
	Text    string
	FileID  string
	Options *kit.SendOptions
}

type Answer struct {
	CallbackID string
	Text       string
	Alert      bool
}

// Adapter records every outbound call. SendErr, when set, decides the
// error of each send.
type Adapter struct {
	mu sync.Mutex

	SendErr func(to kit.ChatTarget) error

	texts   []Sent
	docs    []Sent
	answers []Answer
	cleared []kit.MessageRef
	menu    []kit.BotCommand
	nextID  int
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(context.Context) error                     { return nil }

func (a *Adapter) send(list *[]Sent, s Sent) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		if err := a.SendErr(s.To); err != nil {
			return kit.MessageRef{}, err
		}
	}
	a.nextID++
	*list = append(*list, s)
	return kit.MessageRef{ChatID: s.To.ChatID, MessageID: a.nextID}, nil
}

func (a *Adapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.send(&a.texts, Sent{To: to, Text: text, Options: opt})
}

func (a *Adapter) SendDocument(_ context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.send(&a.docs, Sent{To: to, Text: caption, FileID: fileID, Options: opt})
}

func (a *Adapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (a *Adapter) ClearKeyboard(_ context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	a.cleared = append(a.cleared, ref)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	a.mu.Lock()
	a.answers = append(a.answers, Answer{CallbackID: id, Text: text, Alert: alert})
	a.mu.Unlock()
	return nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Texts() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.texts...)
}

// TextsTo returns the texts sent to one chat, in order.
func (a *Adapter) TextsTo(chatID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, s := range a.texts {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (a *Adapter) Documents() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.docs...)
}

func (a *Adapter) Answers() []Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Answer(nil), a.answers...)
}

func (a *Adapter) Cleared() []kit.MessageRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.MessageRef(nil), a.cleared...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

var _ kit.Adapter = (*Adapter)(nil)
var _ kit.CommandMenuUpdater = (*Adapter)(nil)
