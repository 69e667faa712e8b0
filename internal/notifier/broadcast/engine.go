package broadcast

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

type EngineOption func(*Engine)

func WithControls(fn ControlsFunc) EngineOption {
	return func(e *Engine) { e.controls = fn }
}

func WithBus(bus eventbus.Bus) EngineOption {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSleep replaces the timer used for batch pauses and rate-limit waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func NewEngine(cfg Config, store Store, gw Gateway, deact Deactivator, rep Reporter, log logx.Logger, opts ...EngineOption) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		store:    store,
		gateway:  gw,
		deact:    deact,
		reporter: rep,
		bus:      eventbus.Nop{},
		log:      log,
		sleep:    sleepCtx,
		now:      time.Now,
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type outcome uint8

const (
	outcomeAborted outcome = iota
	outcomeSent
	outcomeFailed
)

// Run sends the job's payload to every active subscriber in sequential
// batches. onProgress, if set, is called after every batch.
func (e *Engine) Run(ctx context.Context, job Job, onProgress func(Progress)) Result {
	start := e.now()
	log := e.log.With(logx.Int64("campaign", job.CampaignID))

	recipients := e.store.ActiveSubscriberIDs()
	total := len(recipients)
	res := Result{CampaignID: job.CampaignID, Total: total}

	if total == 0 {
		log.Info("no active subscribers; campaign left pending")
		e.publish(eventbus.CampaignEmpty, res, 0)
		e.report(ctx, job.Operator, NoRecipientsText)
		res.Empty = true
		return res
	}

	log.Info("broadcast started", logx.Int("total", total), logx.Int("batch", e.cfg.BatchSize))
	e.metrics.CampaignStarted()
	e.publish(eventbus.CampaignStarted, res, 0)

	for lo := 0; lo < total; lo += e.cfg.BatchSize {
		hi := min(lo+e.cfg.BatchSize, total)
		batch := recipients[lo:hi]

		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, uid := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = e.deliver(ctx, log, job, uid)
			}()
		}
		wg.Wait()

		for _, o := range outcomes {
			switch o {
			case outcomeSent:
				res.Sent++
			case outcomeFailed:
				res.Failed++
			}
		}
		if ctx.Err() != nil {
			return e.interrupted(log, res, start)
		}

		p := Progress{Total: total, Processed: hi, Sent: res.Sent, Failed: res.Failed}
		if onProgress != nil {
			onProgress(p)
		}
		final := hi == total
		if hi%e.cfg.ProgressEvery == 0 || final {
			log.Debug("broadcast progress", logx.Int("processed", hi), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
			e.publish(eventbus.CampaignProgress, res, hi)
			e.report(ctx, job.Operator, progressText(p))
		}
		if !final {
			if err := e.sleep(ctx, e.cfg.BatchPause); err != nil {
				return e.interrupted(log, res, start)
			}
		}
	}

	e.store.CompleteCampaign(ctx, job.CampaignID, res.Sent, res.Failed)
	res.Duration = e.now().Sub(start)
	e.metrics.CampaignFinished("completed")
	e.publish(eventbus.CampaignCompleted, res, total)

	fields := []logx.Field{
		logx.Int("total", total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", res.Duration),
	}
	if res.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	e.report(ctx, job.Operator, summaryText(res))
	return res
}

func (e *Engine) interrupted(log logx.Logger, res Result, start time.Time) Result {
	res.Interrupted = true
	res.Duration = e.now().Sub(start)
	e.metrics.CampaignFinished("interrupted")
	log.Warn("broadcast interrupted; campaign left pending",
		logx.Int("total", res.Total), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
	return res
}

// deliver runs one recipient to a terminal state. Rate-limit signals are
// waited out and retried without a bound.
func (e *Engine) deliver(ctx context.Context, log logx.Logger, job Job, uid int64) outcome {
	cid := job.CampaignID
	e.store.RecordDeliveryAttempt(ctx, cid, uid)

	opt := &kit.SendOptions{}
	if e.controls != nil {
		opt.Keyboard = e.controls(cid, uid)
	}
	to := kit.ChatTarget{ChatID: uid}

	for {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return outcomeAborted
			}
		}
		_, err := e.gateway.SendDocument(ctx, to, job.FileID, job.Caption, opt)
		class, retryAfter := kit.Classify(err)
		switch class {
		case kit.Delivered:
			e.store.MarkDelivered(ctx, cid, uid)
			e.metrics.Delivery("delivered")
			return outcomeSent

		case kit.RecipientUnreachable:
			if e.deact != nil {
				e.deact.Unsubscribe(ctx, uid)
			}
			e.store.MarkFailed(ctx, cid, uid, unreachableReason)
			e.metrics.Delivery("unreachable")
			log.Info("recipient unreachable; deactivated", logx.Int64("user", uid))
			return outcomeFailed

		case kit.RateLimited:
			wait := retryAfter + time.Second
			e.metrics.RateLimitWait()
			log.Debug("rate limited; retrying", logx.Int64("user", uid), logx.Duration("wait", wait))
			if err := e.sleep(ctx, wait); err != nil {
				return outcomeAborted
			}

		default:
			if ctx.Err() != nil {
				return outcomeAborted
			}
			e.store.MarkFailed(ctx, cid, uid, truncateRunes(err.Error(), e.cfg.ErrorMaxLen))
			e.metrics.Delivery("failed")
			log.Warn("delivery failed", logx.Int64("user", uid), logx.Err(err))
			return outcomeFailed
		}
	}
}

func (e *Engine) report(ctx context.Context, to kit.ChatTarget, text string) {
	if e.reporter == nil || to.ChatID == 0 {
		return
	}
	e.reporter.Report(ctx, to, text)
}

func (e *Engine) publish(typ string, res Result, processed int) {
	e.bus.Publish(eventbus.Event{
		Type: typ,
		Time: e.now(),
		Data: eventbus.CampaignData{
			CampaignID: res.CampaignID,
			Total:      res.Total,
			Processed:  processed,
			Sent:       res.Sent,
			Failed:     res.Failed,
		},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
