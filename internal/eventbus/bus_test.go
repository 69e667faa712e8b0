package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	camp, unsubCamp := b.Subscribe(4, CampaignCompleted)
	defer unsubCamp()

	b.Publish(Event{Type: SubscriberJoined, Data: SubscriberData{UserID: 1}})
	b.Publish(Event{Type: CampaignCompleted, Data: CampaignData{CampaignID: 3}})

	require.Len(t, all, 2)
	require.Len(t, camp, 1)
	ev := <-camp
	require.Equal(t, int64(3), ev.Data.(CampaignData).CampaignID)
	require.False(t, ev.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	require.Len(t, ch, 1)

	unsub()
	unsub()
	b.Publish(Event{Type: "c"})
}
