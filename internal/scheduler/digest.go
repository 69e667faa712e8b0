package scheduler

import (
	"context"

	"pricebot/internal/engagement"
	"pricebot/internal/notifier"
	"pricebot/internal/storage"
)

const DigestJob = "stats.digest"

// DefaultDigestSchedule is Monday 09:00.
const DefaultDigestSchedule = "0 9 * * 1"

type Overviewer interface {
	Overview() storage.OverallStats
}

type Alerter interface {
	NotifyAll(ctx context.Context, chatIDs []int64, a notifier.Alert) int
}

// Digest sends the overall statistics screen to every admin.
func Digest(src Overviewer, alerts Alerter, admins func() []int64) Job {
	return func(ctx context.Context) error {
		ids := admins()
		if len(ids) == 0 {
			return nil
		}
		alerts.NotifyAll(ctx, ids, notifier.Alert{
			Text:      engagement.OverviewText(src.Overview()),
			ParseMode: "HTML",
			Kind:      "digest",
		})
		return nil
	}
}
