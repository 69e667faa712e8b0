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

type Config struct {
	BatchSize     int
	BatchPause    time.Duration
	ProgressEvery int
	ErrorMaxLen   int
	// RatePerSec adds a proactive per-send limit; 0 leaves the batch pause
	// as the only throttle.
	RatePerSec float64
	Workers    int
	QueueSize  int
	StatusTTL  time.Duration
}

const (
	DefaultBatchSize     = 25
	DefaultBatchPause    = 1500 * time.Millisecond
	DefaultProgressEvery = 100
	DefaultErrorMaxLen   = 100
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = DefaultBatchPause
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.ErrorMaxLen <= 0 {
		c.ErrorMaxLen = DefaultErrorMaxLen
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = 24 * time.Hour
	}
	return c
}

// Store is the part of the document store the engine writes to.
type Store interface {
	ActiveSubscriberIDs() []int64
	RecordDeliveryAttempt(ctx context.Context, cid, uid int64)
	MarkDelivered(ctx context.Context, cid, uid int64)
	MarkFailed(ctx context.Context, cid, uid int64, reason string)
	CompleteCampaign(ctx context.Context, id int64, sent, failed int)
}

// Gateway sends the payload to one recipient.
type Gateway interface {
	SendDocument(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Deactivator removes unreachable recipients from future campaigns.
type Deactivator interface {
	Unsubscribe(ctx context.Context, id int64) bool
}

// Reporter delivers progress and summary texts to the operator who
// started a campaign. Failures are the reporter's problem.
type Reporter interface {
	Report(ctx context.Context, to kit.ChatTarget, text string)
}

// ControlsFunc builds the inline controls attached to each delivery.
type ControlsFunc func(campaignID, recipientID int64) kit.Keyboard

// Job is one campaign run.
type Job struct {
	CampaignID int64
	FileID     string
	Caption    string
	// Operator receives progress and the final summary.
	Operator kit.ChatTarget
}

type Result struct {
	CampaignID int64
	Total      int
	Sent       int
	Failed     int
	// Empty means there were no recipients and the campaign stays Created.
	Empty bool
	// Interrupted means shutdown stopped the run before completion.
	Interrupted bool
	Duration    time.Duration
}

// Progress is reported after every batch.
type Progress struct {
	Total     int
	Processed int
	Sent      int
	Failed    int
}

type JobStatus struct {
	ID         string    `json:"id"`
	CampaignID int64     `json:"campaign_id"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	DoneAt     time.Time `json:"done_at,omitempty"`
	Running    bool      `json:"running"`
}

type queued struct {
	id  string
	job Job
}

type Engine struct {
	cfg      Config
	store    Store
	gateway  Gateway
	deact    Deactivator
	reporter Reporter
	controls ControlsFunc
	limiter  *rate.Limiter
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	log      logx.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type Service struct {
	mu sync.Mutex

	engine *Engine
	cfg    Config
	log    logx.Logger

	queue    chan queued
	stopCh   chan struct{}
	stopDone chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup

	statusMu sync.RWMutex
	status   map[string]*JobStatus
	// campaign id -> latest job id
	byCampaign map[int64]string
}
