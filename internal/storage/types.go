package storage

import (
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("storage: unknown driver")
	ErrClosed        = errors.New("storage: closed")
)

// Config configures the snapshot backend.
type Config struct {
	Driver      string // file (default), sqlite, bolt, memory
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Outcome classifies a subscribe event.
type Outcome int

const (
	OutcomeExisting Outcome = iota
	OutcomeNew
	OutcomeReactivated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeReactivated:
		return "reactivated"
	default:
		return "existing"
	}
}

type Subscriber struct {
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	SubscribedAt   Stamp  `json:"subscribed_at"`
	IsActive       bool   `json:"is_active"`
	UnsubscribedAt *Stamp `json:"unsubscribed_at"`
}

// PriceList references an uploaded document by its gateway file handle.
type PriceList struct {
	ID         int64  `json:"id"`
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	UploadedAt Stamp  `json:"uploaded_at"`
	UploadedBy int64  `json:"uploaded_by"`
}

type Campaign struct {
	ID          int64  `json:"id"`
	PriceListID int64  `json:"price_list_id"`
	ScheduledAt Stamp  `json:"scheduled_at"`
	SentAt      *Stamp `json:"sent_at"`
	SentBy      int64  `json:"sent_by"`
	TotalSent   int    `json:"total_sent"`
	TotalFailed int    `json:"total_failed"`
	TotalOpened int    `json:"total_opened"`
}

// Completed reports whether the broadcast reached its terminal step.
func (c Campaign) Completed() bool { return c.SentAt != nil }

// DeliveryRecord is the per-recipient audit entry of one campaign.
type DeliveryRecord struct {
	SentAt       Stamp   `json:"sent_at"`
	Delivered    bool    `json:"delivered"`
	ErrorMessage *string `json:"error_message"`
	OpenedAt     *Stamp  `json:"opened_at"`
	OpenedMethod *string `json:"opened_method"`
}

// State is the whole persisted document.
type State struct {
	Subscribers    map[int64]*Subscriber               `json:"subscribers"`
	PriceLists     map[int64]*PriceList                `json:"price_lists"`
	Campaigns      map[int64]*Campaign                 `json:"campaigns"`
	CampaignStats  map[int64]map[int64]*DeliveryRecord `json:"campaign_stats"`
	NextPriceID    int64                               `json:"next_price_id"`
	NextCampaignID int64                               `json:"next_campaign_id"`
}

// CampaignStats summarises the delivery records of one campaign.
type CampaignStats struct {
	Total     int     `json:"total"`
	Delivered int     `json:"delivered"`
	Opened    int     `json:"opened"`
	Failed    int     `json:"failed"`
	OpenRate  float64 `json:"open_rate"`
}

type SubscriberTotals struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type OverallStats struct {
	Subscribers    SubscriberTotals `json:"subscribers"`
	TotalCampaigns int              `json:"total_campaigns"`
	TotalSent      int              `json:"total_sent"`
	TotalOpened    int              `json:"total_opened"`
	AvgOpenRate    float64          `json:"avg_open_rate"`
	NewSubsWeek    int              `json:"new_subs_week"`
	UnsubsWeek     int              `json:"unsub_week"`
}

// Copies handed out by Store share no pointers with its state.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *Subscriber) clone() Subscriber {
	out := *s
	out.UnsubscribedAt = clonePtr(s.UnsubscribedAt)
	return out
}

func (c *Campaign) clone() Campaign {
	out := *c
	out.SentAt = clonePtr(c.SentAt)
	return out
}

func (r *DeliveryRecord) clone() DeliveryRecord {
	out := *r
	out.ErrorMessage = clonePtr(r.ErrorMessage)
	out.OpenedAt = clonePtr(r.OpenedAt)
	out.OpenedMethod = clonePtr(r.OpenedMethod)
	return out
}
