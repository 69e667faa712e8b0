package broadcast

import (
	"context"
	"time"

	logx "pricebot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queued) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-queue:
			s.execJob(ctx, q)
		}
	}
}

func (s *Service) execJob(ctx context.Context, q queued) {
	s.update(q.id, func(st *JobStatus) {
		st.StartedAt = time.Now()
		st.Running = true
	})
	res := s.engine.Run(ctx, q.job, func(p Progress) {
		s.update(q.id, func(st *JobStatus) {
			st.Total = p.Total
			st.Processed = p.Processed
			st.Sent = p.Sent
			st.Failed = p.Failed
		})
	})
	now := time.Now()
	s.update(q.id, func(st *JobStatus) {
		st.Total = res.Total
		st.Sent = res.Sent
		st.Failed = res.Failed
		st.Running = false
		st.DoneAt = now
	})
	s.log.Debug("broadcast job done", logx.String("job", q.id), logx.Int64("campaign", res.CampaignID),
		logx.Bool("empty", res.Empty), logx.Bool("interrupted", res.Interrupted))
	s.pruneStatus(now)
}

func (s *Service) update(id string, fn func(*JobStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
}
