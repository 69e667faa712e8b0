package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "pricebot/pkg/logx"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *MemoryBackend, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := NewMemoryBackend()
	return New(context.Background(), b, logx.Nop(), WithClock(clk.Now)), b, clk
}

func TestUpsertSubscriberLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	require.Equal(t, OutcomeNew, s.UpsertSubscriber(ctx, 42, "ann", "Ann", "Lee"))
	first, _ := s.Subscriber(42)

	clk.Advance(time.Hour)
	require.Equal(t, OutcomeExisting, s.UpsertSubscriber(ctx, 42, "ann2", "Ann", "Lee"))
	sub, _ := s.Subscriber(42)
	require.Equal(t, "ann2", sub.Username)
	require.True(t, sub.SubscribedAt.Equal(first.SubscribedAt.Time))

	clk.Advance(time.Hour)
	require.True(t, s.DeactivateSubscriber(ctx, 42))
	sub, _ = s.Subscriber(42)
	require.False(t, sub.IsActive)
	require.NotNil(t, sub.UnsubscribedAt)

	clk.Advance(time.Hour)
	require.Equal(t, OutcomeReactivated, s.UpsertSubscriber(ctx, 42, "ann2", "Ann", "Lee"))
	sub, _ = s.Subscriber(42)
	require.True(t, sub.IsActive)
	require.Nil(t, sub.UnsubscribedAt)
	require.True(t, sub.SubscribedAt.Equal(first.SubscribedAt.Time))
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newTestStore(t)

	require.False(t, s.DeactivateSubscriber(ctx, 7))
	require.Equal(t, 0, b.Saves())

	s.UpsertSubscriber(ctx, 7, "", "", "")
	require.True(t, s.DeactivateSubscriber(ctx, 7))
	before, _ := s.Subscriber(7)
	require.False(t, s.DeactivateSubscriber(ctx, 7))
	after, _ := s.Subscriber(7)
	require.Equal(t, before.UnsubscribedAt, after.UnsubscribedAt)
}

func TestActiveFlagMatchesUnsubscribedAt(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	for id := int64(1); id <= 6; id++ {
		s.UpsertSubscriber(ctx, id, "", "", "")
	}
	s.DeactivateSubscriber(ctx, 2)
	s.DeactivateSubscriber(ctx, 5)
	s.UpsertSubscriber(ctx, 5, "", "", "")

	for id := int64(1); id <= 6; id++ {
		sub, ok := s.Subscriber(id)
		require.True(t, ok)
		require.Equal(t, !sub.IsActive, sub.UnsubscribedAt != nil, "subscriber %d", id)
	}
	require.Equal(t, []int64{1, 3, 4, 5, 6}, s.ActiveSubscriberIDs())
}

func TestEveryMutationSaves(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newTestStore(t)

	s.UpsertSubscriber(ctx, 1, "", "", "")
	pid := s.AddPriceList(ctx, "file-1", "prices.pdf", 99)
	cid := s.CreateCampaign(ctx, pid, 99)
	s.RecordDeliveryAttempt(ctx, cid, 1)
	s.MarkDelivered(ctx, cid, 1)
	s.CompleteCampaign(ctx, cid, 1, 0)
	require.Equal(t, 6, b.Saves())

	reloaded := New(ctx, b, logx.Nop())
	c, ok := reloaded.Campaign(cid)
	require.True(t, ok)
	require.True(t, c.Completed())
	require.Equal(t, 1, c.TotalSent)
	rec, ok := reloaded.DeliveryRecord(cid, 1)
	require.True(t, ok)
	require.True(t, rec.Delivered)
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newTestStore(t)
	b.FailSaves(errors.New("disk full"))

	require.Equal(t, OutcomeNew, s.UpsertSubscriber(ctx, 1, "", "", ""))
	require.Equal(t, []int64{1}, s.ActiveSubscriberIDs())
}

func TestCountersNeverReused(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	p1 := s.AddPriceList(ctx, "a", "a.pdf", 1)
	clk.Advance(time.Minute)
	p2 := s.AddPriceList(ctx, "b", "b.pdf", 1)
	require.Equal(t, int64(1), p1)
	require.Equal(t, int64(2), p2)

	lists := s.PriceLists()
	require.Len(t, lists, 2)
	require.Equal(t, p2, lists[0].ID)

	c1 := s.CreateCampaign(ctx, p1, 1)
	c2 := s.CreateCampaign(ctx, p2, 1)
	require.Equal(t, c1+1, c2)
}

func TestCompleteUnknownCampaignIsIgnored(t *testing.T) {
	s, b, _ := newTestStore(t)
	s.CompleteCampaign(context.Background(), 404, 1, 1)
	require.Equal(t, 0, b.Saves())
}

func TestRecordOpenOnce(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	cid := s.CreateCampaign(ctx, 1, 1)
	s.RecordDeliveryAttempt(ctx, cid, 5)
	s.MarkDelivered(ctx, cid, 5)

	require.True(t, s.RecordOpen(ctx, cid, 5, "button"))
	require.False(t, s.RecordOpen(ctx, cid, 5, "button"))
	require.False(t, s.RecordOpen(ctx, cid, 6, "button"))

	c, _ := s.Campaign(cid)
	require.Equal(t, 1, c.TotalOpened)
	rec, _ := s.DeliveryRecord(cid, 5)
	require.NotNil(t, rec.OpenedMethod)
	require.Equal(t, "button", *rec.OpenedMethod)
}

func TestCampaignStats(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	cid := s.CreateCampaign(ctx, 1, 1)

	for uid := int64(1); uid <= 10; uid++ {
		s.RecordDeliveryAttempt(ctx, cid, uid)
		if uid <= 8 {
			s.MarkDelivered(ctx, cid, uid)
		} else {
			s.MarkFailed(ctx, cid, uid, "recipient_unreachable")
		}
	}
	for uid := int64(1); uid <= 5; uid++ {
		s.RecordOpen(ctx, cid, uid, "button")
	}

	require.Equal(t, CampaignStats{Total: 10, Delivered: 8, Opened: 5, Failed: 2, OpenRate: 62.5}, s.CampaignStats(cid))
	require.Equal(t, CampaignStats{}, s.CampaignStats(999))
}

func TestOpenRateRounding(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	cid := s.CreateCampaign(ctx, 1, 1)
	for uid := int64(1); uid <= 3; uid++ {
		s.RecordDeliveryAttempt(ctx, cid, uid)
		s.MarkDelivered(ctx, cid, uid)
	}
	s.RecordOpen(ctx, cid, 1, "button")
	require.Equal(t, 33.33, s.CampaignStats(cid).OpenRate)
}

func TestOverallStats(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	s.UpsertSubscriber(ctx, 1, "", "", "") // old
	clk.Advance(10 * 24 * time.Hour)
	s.UpsertSubscriber(ctx, 2, "", "", "")
	s.UpsertSubscriber(ctx, 3, "", "", "")
	s.DeactivateSubscriber(ctx, 3)

	cid := s.CreateCampaign(ctx, 1, 1)
	for _, uid := range []int64{1, 2} {
		s.RecordDeliveryAttempt(ctx, cid, uid)
		s.MarkDelivered(ctx, cid, uid)
	}
	s.CompleteCampaign(ctx, cid, 2, 0)
	s.RecordOpen(ctx, cid, 1, "button")
	s.CreateCampaign(ctx, 1, 1)

	st := s.OverallStats()
	require.Equal(t, SubscriberTotals{Total: 3, Active: 2}, st.Subscribers)
	require.Equal(t, 2, st.TotalCampaigns)
	require.Equal(t, 2, st.TotalSent)
	require.Equal(t, 1, st.TotalOpened)
	require.Equal(t, 50.0, st.AvgOpenRate)
	require.Equal(t, 2, st.NewSubsWeek)
	require.Equal(t, 1, st.UnsubsWeek)

	// exactly seven days later the boundary is exclusive
	clk.Advance(7 * 24 * time.Hour)
	st = s.OverallStats()
	require.Equal(t, 0, st.NewSubsWeek)
	require.Equal(t, 0, st.UnsubsWeek)
}

func TestOverallStatsEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.Equal(t, OverallStats{}, s.OverallStats())
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	b := NewMemoryBackendFrom([]byte("{not json"))
	s := New(context.Background(), b, logx.Nop())
	require.Empty(t, s.ActiveSubscriberIDs())
	require.Equal(t, int64(1), s.AddPriceList(context.Background(), "f", "a.pdf", 1))
}

func TestPartialSnapshotDefaults(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	b := NewMemoryBackendFrom([]byte(`{
	  "subscribers": {
	    "1": {"subscribed_at": "2024-04-02T10:00:00", "is_active": false, "unsubscribed_at": null},
	    "2": {"is_active": false},
	    "3": {"subscribed_at": "2024-04-02T10:00:00", "is_active": true, "unsubscribed_at": "2024-04-03T10:00:00"}
	  },
	  "campaigns": {"4": {"price_list_id": 1}}
	}`))
	s := New(context.Background(), b, logx.Nop(), WithClock(func() time.Time { return now }))
	c, ok := s.Campaign(4)
	require.True(t, ok)
	require.Equal(t, int64(4), c.ID)
	require.False(t, c.Completed())
	require.Equal(t, int64(5), s.CreateCampaign(context.Background(), 1, 1))

	// inactive always carries unsubscribed_at, active never does
	sub, _ := s.Subscriber(1)
	require.NotNil(t, sub.UnsubscribedAt)
	require.True(t, sub.UnsubscribedAt.Equal(sub.SubscribedAt.Time))
	sub, _ = s.Subscriber(2)
	require.NotNil(t, sub.UnsubscribedAt)
	require.True(t, sub.UnsubscribedAt.Equal(now))
	sub, _ = s.Subscriber(3)
	require.Nil(t, sub.UnsubscribedAt)
}

func TestReadsReturnDetachedCopies(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	s.UpsertSubscriber(ctx, 1, "", "", "")
	s.DeactivateSubscriber(ctx, 1)
	cid := s.CreateCampaign(ctx, s.AddPriceList(ctx, "f", "a.pdf", 1), 1)
	s.RecordDeliveryAttempt(ctx, cid, 1)
	s.MarkFailed(ctx, cid, 1, "boom")
	s.CompleteCampaign(ctx, cid, 0, 1)

	sub, _ := s.Subscriber(1)
	orig := sub.UnsubscribedAt.Time
	sub.UnsubscribedAt.Time = orig.Add(time.Hour)
	again, _ := s.Subscriber(1)
	require.True(t, again.UnsubscribedAt.Equal(orig))

	c, _ := s.Campaign(cid)
	sentAt := c.SentAt.Time
	c.SentAt.Time = sentAt.Add(time.Hour)
	list := s.Campaigns()
	list[0].SentAt.Time = sentAt.Add(time.Hour)
	c, _ = s.Campaign(cid)
	require.True(t, c.SentAt.Equal(sentAt))

	rec, _ := s.DeliveryRecord(cid, 1)
	*rec.ErrorMessage = "changed"
	rec, _ = s.DeliveryRecord(cid, 1)
	require.Equal(t, "boom", *rec.ErrorMessage)
}

func TestLegacySnapshot(t *testing.T) {
	legacy := `{
	  "subscribers": {
	    "100": {"username": "bob", "first_name": "Bob", "last_name": "", "subscribed_at": "2024-04-01T09:30:00.123456", "is_active": true, "unsubscribed_at": null},
	    "200": {"username": "", "first_name": "Eve", "last_name": "", "subscribed_at": "2024-04-02T10:00:00", "is_active": false, "unsubscribed_at": "2024-04-03T10:00:00"}
	  },
	  "price_lists": {"1": {"id": 1, "file_id": "AAA", "file_name": "p.xlsx", "uploaded_at": "2024-04-01T09:00:00", "uploaded_by": 5}},
	  "campaigns": {"1": {"id": 1, "price_list_id": 1, "scheduled_at": "2024-04-01T09:10:00", "sent_at": "2024-04-01T09:20:00", "sent_by": 5, "total_sent": 1, "total_failed": 1, "total_opened": 1}},
	  "campaign_stats": {"1": {
	    "100": {"sent_at": "2024-04-01T09:10:01", "delivered": true, "error_message": null, "opened_at": "2024-04-01T10:00:00", "opened_method": "button"},
	    "200": {"sent_at": "2024-04-01T09:10:01", "delivered": false, "error_message": "user_blocked", "opened_at": null, "opened_method": null}
	  }},
	  "next_price_id": 2,
	  "next_campaign_id": 2
	}`
	s := New(context.Background(), NewMemoryBackendFrom([]byte(legacy)), logx.Nop())

	require.Equal(t, []int64{100}, s.ActiveSubscriberIDs())
	sub, _ := s.Subscriber(100)
	require.Equal(t, 2024, sub.SubscribedAt.Year())
	require.Equal(t, CampaignStats{Total: 2, Delivered: 1, Opened: 1, Failed: 1, OpenRate: 100}, s.CampaignStats(1))
	require.Equal(t, int64(2), s.AddPriceList(context.Background(), "B", "q.pdf", 5))
}

func TestSnapshotLayout(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newTestStore(t)
	s.UpsertSubscriber(ctx, 9, "", "", "")
	cid := s.CreateCampaign(ctx, s.AddPriceList(ctx, "f", "a.pdf", 1), 1)
	s.RecordDeliveryAttempt(ctx, cid, 9)

	raw, err := b.Load(ctx)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, k := range []string{"subscribers", "price_lists", "campaigns", "campaign_stats", "next_price_id", "next_campaign_id"} {
		require.Contains(t, doc, k)
	}
	var subs map[string]map[string]any
	require.NoError(t, json.Unmarshal(doc["subscribers"], &subs))
	require.Contains(t, subs, "9")
	require.Nil(t, subs["9"]["unsubscribed_at"])
}
