// Package subscribers turns gateway identities into subscription changes
// and tells operators about new and returning subscribers.
package subscribers

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	"pricebot/internal/notifier"
	"pricebot/internal/storage"
	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

// Alerter queues operator alerts without waiting for delivery.
type Alerter interface {
	NotifyAll(ctx context.Context, chatIDs []int64, a notifier.Alert) int
}

type Registry struct {
	store   *storage.Store
	alerter Alerter
	admins  func() []int64
	bus     eventbus.Bus
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time
}

type Option func(*Registry)

// WithAlerts enables operator alerts. admins is read on every alert so
// reloaded admin lists apply immediately.
func WithAlerts(a Alerter, admins func() []int64) Option {
	return func(r *Registry) {
		r.alerter = a
		r.admins = admins
	}
}

func WithBus(bus eventbus.Bus) Option {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(store *storage.Store, log logx.Logger, opts ...Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		store: store,
		bus:   eventbus.Nop{},
		log:   log,
		now:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ShouldNotify reports whether operators hear about this outcome.
func ShouldNotify(o storage.Outcome) bool {
	return o == storage.OutcomeNew || o == storage.OutcomeReactivated
}

// Subscribe records the identity as an active subscriber. Alerts for new and
// reactivated subscribers are queued and never delay the caller.
func (r *Registry) Subscribe(ctx context.Context, u kit.User) storage.Outcome {
	out := r.store.UpsertSubscriber(ctx, u.ID, u.Username, u.FirstName, u.LastName)
	r.metrics.Subscription(out.String())

	switch out {
	case storage.OutcomeNew:
		r.bus.Publish(eventbus.Event{Type: eventbus.SubscriberJoined, Data: eventbus.SubscriberData{UserID: u.ID}})
	case storage.OutcomeReactivated:
		r.bus.Publish(eventbus.Event{Type: eventbus.SubscriberReturned, Data: eventbus.SubscriberData{UserID: u.ID}})
	}
	r.log.Info("subscribe", logx.Int64("user", u.ID), logx.String("outcome", out.String()))

	if ShouldNotify(out) {
		r.alert(ctx, u, out == storage.OutcomeReactivated)
	}
	return out
}

// Unsubscribe deactivates the subscriber. Repeated calls are no-ops.
func (r *Registry) Unsubscribe(ctx context.Context, id int64) bool {
	changed := r.store.DeactivateSubscriber(ctx, id)
	if changed {
		r.metrics.Subscription("left")
		r.bus.Publish(eventbus.Event{Type: eventbus.SubscriberLeft, Data: eventbus.SubscriberData{UserID: id}})
		r.log.Info("unsubscribe", logx.Int64("user", id))
	}
	return changed
}

// Eligible lists the recipients of a new campaign.
func (r *Registry) Eligible() []int64 {
	return r.store.ActiveSubscriberIDs()
}

func (r *Registry) alert(ctx context.Context, u kit.User, returned bool) {
	if r.alerter == nil || r.admins == nil {
		return
	}
	admins := r.admins()
	if len(admins) == 0 {
		return
	}
	n := r.alerter.NotifyAll(context.WithoutCancel(ctx), admins, notifier.Alert{
		Text:      AlertText(u, returned, r.now()),
		ParseMode: "HTML",
		Kind:      "subscriber",
	})
	if n < len(admins) {
		r.log.Warn("subscriber alert partly queued", logx.Int("queued", n), logx.Int("admins", len(admins)))
	}
}

// AlertText is the HTML operator alert for a new or returning subscriber.
func AlertText(u kit.User, returned bool, at time.Time) string {
	action := "🎉 Новый подписчик!"
	if returned {
		action = "🔄 Реактивация подписки!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>%s</b>\n\n", action)
	fmt.Fprintf(&b, "👤 Имя: %s\n", html.EscapeString(strings.TrimSpace(u.FirstName+" "+u.LastName)))
	if u.Username != "" {
		fmt.Fprintf(&b, "🔗 Username: @%s\n", html.EscapeString(u.Username))
	}
	fmt.Fprintf(&b, "🆔 ID: <code>%d</code>\n", u.ID)
	fmt.Fprintf(&b, "⏰ Время: %s", at.Format("02.01.2006 15:04:05"))
	return b.String()
}
