package storage

import (
	"encoding/json"
	"time"
)

func emptyState() *State {
	st := &State{}
	normalize(st, time.Time{})
	return st
}

// decodeState parses a snapshot. Absent collections and counters get their
// defaults; nil entries are dropped. repaired counts inactive subscribers
// that had no unsubscribed_at and were stamped during load.
func decodeState(raw []byte, now time.Time) (st *State, repaired int, err error) {
	st = &State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, 0, err
	}
	return st, normalize(st, now), nil
}

// normalize fills defaults in place. An inactive subscriber always carries
// unsubscribed_at: a missing one is set to subscribed_at, or now when that
// is unknown too.
func normalize(st *State, now time.Time) (repaired int) {
	if st.Subscribers == nil {
		st.Subscribers = map[int64]*Subscriber{}
	}
	if st.PriceLists == nil {
		st.PriceLists = map[int64]*PriceList{}
	}
	if st.Campaigns == nil {
		st.Campaigns = map[int64]*Campaign{}
	}
	if st.CampaignStats == nil {
		st.CampaignStats = map[int64]map[int64]*DeliveryRecord{}
	}

	for id, sub := range st.Subscribers {
		if sub == nil {
			delete(st.Subscribers, id)
			continue
		}
		if sub.IsActive {
			sub.UnsubscribedAt = nil
			continue
		}
		if sub.UnsubscribedAt == nil || sub.UnsubscribedAt.IsZero() {
			at := sub.SubscribedAt.Time
			if at.IsZero() {
				at = now
			}
			sub.UnsubscribedAt = stampPtr(at)
			repaired++
		}
	}

	maxPrice := int64(0)
	for id, p := range st.PriceLists {
		if p == nil {
			delete(st.PriceLists, id)
			continue
		}
		p.ID = id
		maxPrice = max(maxPrice, id)
	}
	maxCampaign := int64(0)
	for id, c := range st.Campaigns {
		if c == nil {
			delete(st.Campaigns, id)
			continue
		}
		c.ID = id
		if c.SentAt != nil && c.SentAt.IsZero() {
			c.SentAt = nil
		}
		maxCampaign = max(maxCampaign, id)
	}
	for cid, recs := range st.CampaignStats {
		if recs == nil {
			delete(st.CampaignStats, cid)
			continue
		}
		for uid, rec := range recs {
			if rec == nil {
				delete(recs, uid)
				continue
			}
			if rec.OpenedAt != nil && rec.OpenedAt.IsZero() {
				rec.OpenedAt = nil
			}
		}
	}

	st.NextPriceID = max(st.NextPriceID, maxPrice+1, 1)
	st.NextCampaignID = max(st.NextCampaignID, maxCampaign+1, 1)
	return repaired
}
