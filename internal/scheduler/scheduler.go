// Package scheduler runs named jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pricebot/pkg/logx"
)

var ErrUnknownJob = errors.New("scheduler: unknown job")

type Config struct {
	Timezone string
}

type Job func(ctx context.Context) error

type def struct {
	spec    string
	timeout time.Duration
	job     Job
	entry   cron.EntryID
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	defs   map[string]*def
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*def{},
		ctx:    context.Background(),
	}
}

// Validate parses spec without registering anything.
func (s *Service) Validate(spec string) error {
	_, err := s.parser.Parse(strings.TrimSpace(spec))
	return err
}

// Add registers or replaces a job. It takes effect immediately when the
// scheduler is running.
func (s *Service) Add(name, spec string, timeout time.Duration, job Job) error {
	spec = strings.TrimSpace(spec)
	if name == "" || job == nil {
		return errors.New("scheduler: name and job are required")
	}
	if err := s.Validate(spec); err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.defs[name]; ok && s.c != nil {
		s.c.Remove(old.entry)
	}
	d := &def{spec: spec, timeout: timeout, job: job}
	s.defs[name] = d
	if s.c != nil {
		return s.addLocked(name, d)
	}
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(d.entry)
	}
	delete(s.defs, name)
	return true
}

// Next reports the next activation of a job while the scheduler runs.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok || s.c == nil {
		return time.Time{}, false
	}
	return s.c.Entry(d.entry).Next, true
}

// Names lists registered jobs.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.defs))
	for n := range s.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, d)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Apply restarts the cron runner when the timezone changes.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) startLocked() {
	s.loc = s.location()
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	for name, d := range s.defs {
		if err := s.addLocked(name, d); err != nil {
			s.log.Warn("schedule rejected", logx.String("job", name), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("unknown timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) addLocked(name string, d *def) error {
	ctx := s.ctx
	id, err := s.c.AddFunc(d.spec, func() {
		if err := s.run(ctx, name, d); err != nil {
			s.log.Warn("scheduled job failed", logx.String("job", name), logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	d.entry = id
	return nil
}

func (s *Service) run(ctx context.Context, name string, d *def) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job", logx.String("job", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	start := time.Now()
	err = d.job(ctx)
	s.log.Debug("scheduled job ran", logx.String("job", name), logx.Duration("dur", time.Since(start)))
	return err
}
