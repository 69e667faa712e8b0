package storage

import (
	"math"
	"time"
)

const statsWindow = 7 * 24 * time.Hour

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// CampaignStats counts the delivery records of a campaign. Failed counts
// records carrying an error message; OpenRate is opened/delivered in percent.
func (s *Store) CampaignStats(cid int64) CampaignStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st CampaignStats
	for _, rec := range s.state.CampaignStats[cid] {
		st.Total++
		if rec.Delivered {
			st.Delivered++
		}
		if rec.OpenedAt != nil {
			st.Opened++
		}
		if rec.ErrorMessage != nil && *rec.ErrorMessage != "" {
			st.Failed++
		}
	}
	st.OpenRate = percent(st.Opened, st.Delivered)
	return st
}

// OverallStats aggregates subscribers and campaigns. The weekly counters
// use timestamps strictly after now minus seven days.
func (s *Store) OverallStats() OverallStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	weekAgo := s.now().Add(-statsWindow)
	var st OverallStats
	for _, sub := range s.state.Subscribers {
		st.Subscribers.Total++
		if sub.IsActive {
			st.Subscribers.Active++
		}
		if sub.SubscribedAt.After(weekAgo) {
			st.NewSubsWeek++
		}
		if sub.UnsubscribedAt != nil && sub.UnsubscribedAt.After(weekAgo) {
			st.UnsubsWeek++
		}
	}
	for _, c := range s.state.Campaigns {
		st.TotalCampaigns++
		st.TotalSent += c.TotalSent
		st.TotalOpened += c.TotalOpened
	}
	st.AvgOpenRate = percent(st.TotalOpened, st.TotalSent)
	return st
}

func (s *Store) SubscriberTotals() SubscriberTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t SubscriberTotals
	for _, sub := range s.state.Subscribers {
		t.Total++
		if sub.IsActive {
			t.Active++
		}
	}
	return t
}
