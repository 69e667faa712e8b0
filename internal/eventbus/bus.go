package eventbus

import (
	"sync"
	"time"
)

// Event types published by the bot.
const (
	CampaignStarted   = "campaign.started"
	CampaignProgress  = "campaign.progress"
	CampaignCompleted = "campaign.completed"
	CampaignEmpty     = "campaign.empty"

	SubscriberJoined   = "subscriber.joined"
	SubscriberReturned = "subscriber.returned"
	SubscriberLeft     = "subscriber.left"
)

// Event is an in-process signal. Publish never blocks; a subscriber whose
// buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// CampaignData is the payload of campaign.* events.
type CampaignData struct {
	CampaignID int64
	Total      int
	Processed  int
	Sent       int
	Failed     int
}

// SubscriberData is the payload of subscriber.* events.
type SubscriberData struct {
	UserID int64
}

type Bus interface {
	Publish(e Event)
	// Subscribe receives events of the given types, or all events when
	// none are given.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[*subscription]struct{}{}}
}

type subscription struct {
	ch    chan Event
	types map[string]struct{}
}

func (s *subscription) wants(t string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type memBus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// the read lock keeps unsubscribe from closing a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscription{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int, ...string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
