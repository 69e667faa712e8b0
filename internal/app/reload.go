package app

import (
	"context"
	"reflect"
	"strings"

	"pricebot/internal/config"
	"pricebot/internal/scheduler"
	logx "pricebot/pkg/logx"
)

// sections needing a restart to take effect
var restartSections = map[string]bool{
	"telegram.token": true,
	"storage":        true,
	"broadcast":      true,
	"ops":            true,
}

// changedSections lists the top-level config sections that differ.
// Telegram is split so admin edits are not reported as a token change.
func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	add("telegram.token", prev.Telegram.Token, next.Telegram.Token)
	add("telegram.admins", prev.Telegram.AdminIDs, next.Telegram.AdminIDs)
	add("telegram.poll_timeout", prev.Telegram.PollTimeout, next.Telegram.PollTimeout)
	add("logging", prev.Logging, next.Logging)
	add("storage", prev.Storage, next.Storage)
	add("broadcast", prev.Broadcast, next.Broadcast)
	add("notifier", prev.Notifier, next.Notifier)
	add("digest", prev.Digest, next.Digest)
	add("ops", prev.Ops, next.Ops)
	return out
}

func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts; only the newest config matters
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections := changedSections(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if restartSections[s] {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogging(next))
	a.logs.SetAlertTargets(next.Telegram.AdminIDs)
	a.cmdm.SetAdmins(next.Telegram.AdminIDs)

	if ncfg, err := mapNotifier(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	a.sched.Apply(scheduler.Config{Timezone: next.Digest.Timezone})
	if err := a.applyDigest(next); err != nil {
		a.log.Warn("digest schedule not applied", logx.Err(err))
	}

	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}
