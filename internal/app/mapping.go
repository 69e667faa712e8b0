package app

import (
	"fmt"
	"strings"
	"time"

	"pricebot/internal/config"
	"pricebot/internal/notifier"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/opsapi"
	"pricebot/internal/scheduler"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

const defaultOpsAddr = "127.0.0.1:8080"

func mapLogging(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		JSON:    lc.JSON,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Alerts: logx.AlertConfig{
			Enabled:    lc.Alerts.Enabled,
			MinLevel:   lc.Alerts.MinLevel,
			RatePerSec: lc.Alerts.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "file":
		if path == "" {
			path = "bot_data.json"
		}
	case "sqlite", "bolt":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	case "memory":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapBroadcast(cfg *config.Config) (broadcast.Config, error) {
	bc := cfg.Broadcast
	pause, err := config.ParseDurationOrDefault("broadcast.batch_pause", bc.BatchPause, broadcast.DefaultBatchPause)
	if err != nil {
		return broadcast.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("broadcast.status_ttl", bc.StatusTTL, 0)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		BatchSize:     bc.BatchSize,
		BatchPause:    pause,
		ProgressEvery: bc.ProgressEvery,
		ErrorMaxLen:   bc.ErrorMaxLen,
		RatePerSec:    bc.RatePerSec,
		Workers:       bc.Workers,
		QueueSize:     bc.QueueSize,
		StatusTTL:     ttl,
	}, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	spacing, err := config.ParseDurationField("notifier.spacing", nc.Spacing)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.RetryMax == 0 {
		nc.RetryMax = 2
	}
	return notifier.Config{
		Workers:    nc.Workers,
		QueueSize:  nc.QueueSize,
		RatePerSec: nc.RatePerSec,
		RetryMax:   nc.RetryMax,
		RetryBase:  base,
		Spacing:    spacing,
	}, nil
}

func mapOps(cfg *config.Config) (addr string, pp opsapi.PprofConfig) {
	addr = strings.TrimSpace(cfg.Ops.Addr)
	if addr == "" {
		addr = defaultOpsAddr
	}
	return addr, opsapi.PprofConfig{Enabled: cfg.Ops.Pprof, Token: cfg.Ops.PprofToken, Addr: addr}
}

func digestSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Digest.Schedule); s != "" {
		return s
	}
	return scheduler.DefaultDigestSchedule
}

// location resolves the digest timezone; reports use it for timestamps too.
func location(cfg *config.Config) *time.Location {
	tz := strings.TrimSpace(cfg.Digest.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
