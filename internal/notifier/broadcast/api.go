package broadcast

import (
	"errors"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	logx "pricebot/pkg/logx"
)

var (
	ErrQueueFull      = errors.New("broadcast queue full")
	ErrStopped        = errors.New("broadcast service not running")
	ErrAlreadyRunning = errors.New("campaign already queued or running")
)

// Submit queues a campaign run and returns its job id.
func (s *Service) Submit(job Job) (string, error) {
	s.mu.Lock()
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()
	if !running {
		return "", ErrStopped
	}

	now := time.Now()
	s.pruneStatus(now)

	s.statusMu.Lock()
	if prev, ok := s.byCampaign[job.CampaignID]; ok {
		if st := s.status[prev]; st != nil && st.DoneAt.IsZero() {
			s.statusMu.Unlock()
			return "", ErrAlreadyRunning
		}
	}
	id := ulid.Make().String()
	s.status[id] = &JobStatus{ID: id, CampaignID: job.CampaignID, CreatedAt: now}
	s.byCampaign[job.CampaignID] = id
	s.statusMu.Unlock()

	select {
	case s.queue <- queued{id: id, job: job}:
		s.log.Debug("broadcast job enqueued", logx.String("job", id), logx.Int64("campaign", job.CampaignID), logx.Int("queue_len", len(s.queue)))
		return id, nil
	default:
		s.log.Warn("broadcast queue full; dropping job", logx.String("job", id), logx.Int64("campaign", job.CampaignID), logx.Int("queue_cap", cap(s.queue)))
		s.statusMu.Lock()
		delete(s.status, id)
		delete(s.byCampaign, job.CampaignID)
		s.statusMu.Unlock()
		return "", ErrQueueFull
	}
}

// Status returns the latest job for a campaign. Status lives in memory only.
func (s *Service) Status(campaignID int64) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	id, ok := s.byCampaign[campaignID]
	if !ok {
		return JobStatus{}, false
	}
	st := s.status[id]
	if st == nil {
		return JobStatus{}, false
	}
	return *st, true
}

// Jobs lists known jobs, newest first.
func (s *Service) Jobs() []JobStatus {
	s.statusMu.RLock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	s.statusMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if st.DoneAt.IsZero() || now.Sub(st.DoneAt) < s.cfg.StatusTTL {
			continue
		}
		delete(s.status, id)
		if s.byCampaign[st.CampaignID] == id {
			delete(s.byCampaign, st.CampaignID)
		}
	}
}
