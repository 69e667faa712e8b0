package bot

import (
	"sync"
	"time"
)

type step int

const (
	stepIdle step = iota
	stepAwaitFile
	stepAwaitChoice
	stepAwaitCaption
)

// dialog is the in-progress admin flow of one chat.
type dialog struct {
	step step
	// offered price list ids while choosing
	offered map[int64]struct{}
	// chosen price list while waiting for the caption
	chosen  int64
	touched time.Time
}

// dialogs keeps per-chat flow state in memory. Entries expire after ttl of
// inactivity; a restart forgets every flow.
type dialogs struct {
	mu  sync.Mutex
	m   map[int64]*dialog
	ttl time.Duration
	now func() time.Time
}

func newDialogs(ttl time.Duration) *dialogs {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &dialogs{m: map[int64]*dialog{}, ttl: ttl, now: time.Now}
}

func (d *dialogs) get(chat int64) dialog {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.m[chat]
	if !ok {
		return dialog{}
	}
	if d.now().Sub(cur.touched) > d.ttl {
		delete(d.m, chat)
		return dialog{}
	}
	return *cur
}

func (d *dialogs) set(chat int64, dl dialog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	dl.touched = now
	d.m[chat] = &dl
	for id, cur := range d.m {
		if now.Sub(cur.touched) > d.ttl {
			delete(d.m, id)
		}
	}
}

// clear reports whether a flow was in progress.
func (d *dialogs) clear(chat int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.m[chat]
	delete(d.m, chat)
	return ok
}
