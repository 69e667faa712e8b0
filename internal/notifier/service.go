package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricebot/internal/metrics"
	rtsup "pricebot/internal/runtime/supervisor"
	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	sender  TextSender
	metrics *metrics.Metrics

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Alert
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

func New(cfg Config, sender TextSender, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, metrics: m}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	s.cfg = cfg

	switch {
	case cfg.Spacing > 0:
		s.limiter = rate.NewLimiter(rate.Every(cfg.Spacing), 1)
	case cfg.RatePerSec > 0:
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	default:
		s.limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	}
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Alert, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup, q := s.sup, s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
}

// Stop blocks intake and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// in-flight enqueues finish before the queue closes
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Notify queues one alert without waiting for delivery.
func (s *Service) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- a:
		return nil
	default:
		s.metrics.Alert("dropped")
		s.log.Warn("alert dropped (queue full)", logx.String("kind", a.Kind), logx.Int64("chat_id", a.ChatID))
		return ErrQueueFull
	}
}

// NotifyAll queues the same alert for every chat. Errors are logged; the
// number of queued alerts is returned.
func (s *Service) NotifyAll(ctx context.Context, chatIDs []int64, a Alert) int {
	n := 0
	for _, id := range chatIDs {
		a.ChatID = id
		if err := s.Notify(ctx, a); err != nil {
			s.log.Debug("alert not queued", logx.Int64("chat_id", id), logx.Err(err))
			continue
		}
		n++
	}
	return n
}

// SendAlert lets the log alert sink route through the queue.
func (s *Service) SendAlert(ctx context.Context, chatID int64, text string) error {
	return s.Notify(ctx, Alert{ChatID: chatID, Text: text, Kind: "log"})
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, a)
		}
	}
}

func (s *Service) deliver(ctx context.Context, a Alert) {
	s.mu.Lock()
	lim, retryMax, base, sender := s.limiter, s.cfg.RetryMax, s.cfg.RetryBase, s.sender
	s.mu.Unlock()

	var opt *kit.SendOptions
	if a.ParseMode != "" {
		opt = &kit.SendOptions{ParseMode: a.ParseMode, DisablePreview: true}
	}
	log := s.log.With(logx.String("kind", a.Kind), logx.Int64("chat_id", a.ChatID))

	for attempt := 0; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		_, err := sender.SendText(ctx, kit.ChatTarget{ChatID: a.ChatID}, a.Text, opt)
		class, retryAfter := kit.Classify(err)
		switch class {
		case kit.Delivered:
			s.metrics.Alert("sent")
			return
		case kit.RecipientUnreachable:
			s.metrics.Alert("failed")
			log.Warn("admin chat unreachable; alert skipped", logx.Err(err))
			return
		}
		if attempt >= retryMax || ctx.Err() != nil {
			s.metrics.Alert("failed")
			log.Warn("alert send failed", logx.Int("attempts", attempt+1), logx.Err(err))
			return
		}
		delay := retryAfter
		if class != kit.RateLimited {
			delay = backoff(base, attempt)
		}
		log.Debug("alert retry scheduled", logx.Int("attempt", attempt+2), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// backoff is exponential with jitter, capped at 30s.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d <= 0 || d > 30*time.Second {
		d = 30 * time.Second
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}
