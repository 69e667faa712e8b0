package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	logx "pricebot/pkg/logx"
)

// Store owns all persisted records. It is safe for concurrent use; every
// operation runs under one mutex and mutating operations write the whole
// snapshot before returning. Save failures are logged and the in-memory
// state is kept.
type Store struct {
	mu      sync.Mutex
	state   *State
	backend Backend
	log     logx.Logger
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the configured backend and loads its snapshot.
func Open(ctx context.Context, cfg Config, log logx.Logger, opts ...Option) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	return New(ctx, b, log, opts...), nil
}

// New loads the backend's snapshot. A missing, unreadable or corrupt
// snapshot yields an empty state.
func New(ctx context.Context, backend Backend, log logx.Logger, opts ...Option) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		backend: backend,
		log:     log.With(logx.String("backend", backend.Name())),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.state = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) *State {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Error("snapshot load failed; starting empty", logx.Err(err))
		return emptyState()
	}
	if raw == nil {
		s.log.Info("no snapshot found; starting empty")
		return emptyState()
	}
	st, repaired, err := decodeState(raw, s.now())
	if err != nil {
		s.log.Error("snapshot corrupt; starting empty", logx.Err(err), logx.Int("bytes", len(raw)))
		return emptyState()
	}
	if repaired > 0 {
		s.log.Warn("inactive subscribers without unsubscribed_at; stamped on load", logx.Int("count", repaired))
	}
	s.log.Info("snapshot loaded",
		logx.Int("subscribers", len(st.Subscribers)),
		logx.Int("price_lists", len(st.PriceLists)),
		logx.Int("campaigns", len(st.Campaigns)),
	)
	return st
}

// persistLocked writes the whole state. A cancelled caller context does not
// abort the write of an already applied mutation.
func (s *Store) persistLocked(ctx context.Context) {
	b, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("snapshot encode failed", logx.Err(err))
		return
	}
	if err := s.backend.Save(context.WithoutCancel(ctx), b); err != nil {
		s.log.Error("snapshot save failed", logx.Err(err), logx.Int("bytes", len(b)))
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// Subscribers

// UpsertSubscriber creates the subscriber on first contact, reactivates an
// inactive one keeping its original subscribed_at, and refreshes the
// display metadata in every case.
func (s *Store) UpsertSubscriber(ctx context.Context, id int64, username, firstName, lastName string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sub, ok := s.state.Subscribers[id]
	outcome := OutcomeExisting
	switch {
	case !ok:
		outcome = OutcomeNew
		sub = &Subscriber{SubscribedAt: NewStamp(now)}
		s.state.Subscribers[id] = sub
	case !sub.IsActive:
		outcome = OutcomeReactivated
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = NewStamp(now)
	}
	sub.Username = username
	sub.FirstName = firstName
	sub.LastName = lastName
	sub.IsActive = true
	sub.UnsubscribedAt = nil

	s.persistLocked(ctx)
	return outcome
}

// DeactivateSubscriber marks the subscriber inactive. Unknown or already
// inactive subscribers are left untouched; the result reports a change.
func (s *Store) DeactivateSubscriber(ctx context.Context, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.state.Subscribers[id]
	if !ok || !sub.IsActive {
		return false
	}
	sub.IsActive = false
	sub.UnsubscribedAt = stampPtr(s.now())
	s.persistLocked(ctx)
	return true
}

// ActiveSubscriberIDs returns active subscriber ids in ascending order.
func (s *Store) ActiveSubscriberIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.state.Subscribers))
	for id, sub := range s.state.Subscribers {
		if sub.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Subscriber(id int64) (Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.Subscribers[id]
	if !ok {
		return Subscriber{}, false
	}
	return sub.clone(), true
}

// Price lists

func (s *Store) AddPriceList(ctx context.Context, fileID, fileName string, uploadedBy int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.NextPriceID
	s.state.PriceLists[id] = &PriceList{
		ID:         id,
		FileID:     fileID,
		FileName:   fileName,
		UploadedAt: NewStamp(s.now()),
		UploadedBy: uploadedBy,
	}
	s.state.NextPriceID++
	s.persistLocked(ctx)
	return id
}

// PriceLists returns all price lists, newest upload first.
func (s *Store) PriceLists() []PriceList {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PriceList, 0, len(s.state.PriceLists))
	for _, p := range s.state.PriceLists {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt.Time) {
			return out[i].UploadedAt.After(out[j].UploadedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) PriceList(id int64) (PriceList, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.PriceLists[id]
	if !ok {
		return PriceList{}, false
	}
	return *p, true
}

// Campaigns

func (s *Store) CreateCampaign(ctx context.Context, priceListID, createdBy int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.NextCampaignID
	s.state.Campaigns[id] = &Campaign{
		ID:          id,
		PriceListID: priceListID,
		ScheduledAt: NewStamp(s.now()),
		SentBy:      createdBy,
	}
	s.state.NextCampaignID++
	s.persistLocked(ctx)
	return id
}

// CompleteCampaign stamps sent_at and the final counters. An unknown id is
// logged and ignored.
func (s *Store) CompleteCampaign(ctx context.Context, id int64, sent, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Campaigns[id]
	if !ok {
		s.log.Warn("complete: unknown campaign", logx.Int64("campaign_id", id))
		return
	}
	c.SentAt = stampPtr(s.now())
	c.TotalSent = sent
	c.TotalFailed = failed
	s.persistLocked(ctx)
}

func (s *Store) Campaign(id int64) (Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.Campaigns[id]
	if !ok {
		return Campaign{}, false
	}
	return c.clone(), true
}

// Campaigns returns campaigns ordered by completion (or creation) time,
// most recent first.
func (s *Store) Campaigns() []Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Campaign, 0, len(s.state.Campaigns))
	for _, c := range s.state.Campaigns {
		out = append(out, c.clone())
	}
	at := func(c Campaign) time.Time {
		if c.SentAt != nil {
			return c.SentAt.Time
		}
		return c.ScheduledAt.Time
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := at(out[i]), at(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Delivery records

func (s *Store) recordLocked(cid, uid int64) *DeliveryRecord {
	recs, ok := s.state.CampaignStats[cid]
	if !ok {
		recs = map[int64]*DeliveryRecord{}
		s.state.CampaignStats[cid] = recs
	}
	rec, ok := recs[uid]
	if !ok {
		rec = &DeliveryRecord{SentAt: NewStamp(s.now())}
		recs[uid] = rec
	}
	return rec
}

// RecordDeliveryAttempt creates or resets the record to "sent, unconfirmed".
func (s *Store) RecordDeliveryAttempt(ctx context.Context, cid, uid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(cid, uid)
	*rec = DeliveryRecord{SentAt: NewStamp(s.now())}
	s.persistLocked(ctx)
}

func (s *Store) MarkDelivered(ctx context.Context, cid, uid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(cid, uid)
	rec.Delivered = true
	rec.ErrorMessage = nil
	s.persistLocked(ctx)
}

func (s *Store) MarkFailed(ctx context.Context, cid, uid int64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordLocked(cid, uid)
	rec.Delivered = false
	rec.ErrorMessage = &reason
	s.persistLocked(ctx)
}

// RecordOpen stamps opened_at once. It reports whether this call made the
// transition; a missing record or a repeated open returns false. On a
// transition the campaign's total_opened is incremented.
func (s *Store) RecordOpen(ctx context.Context, cid, uid int64, method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.CampaignStats[cid][uid]
	if !ok || rec.OpenedAt != nil {
		return false
	}
	rec.OpenedAt = stampPtr(s.now())
	rec.OpenedMethod = &method
	if c, ok := s.state.Campaigns[cid]; ok {
		c.TotalOpened++
	}
	s.persistLocked(ctx)
	return true
}

// DeliveryRecord returns a copy of one record.
func (s *Store) DeliveryRecord(cid, uid int64) (DeliveryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.CampaignStats[cid][uid]
	if !ok {
		return DeliveryRecord{}, false
	}
	return rec.clone(), true
}
