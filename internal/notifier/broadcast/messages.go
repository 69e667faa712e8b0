package broadcast

import (
	"fmt"
	"unicode/utf8"
)

const (
	NoRecipientsText = "📭 Нет активных подписчиков"

	unreachableReason = "recipient_unreachable"
)

func progressText(p Progress) string {
	pct := 100.0
	if p.Total > 0 {
		pct = float64(p.Processed) / float64(p.Total) * 100
	}
	return fmt.Sprintf("📨 %.0f%% (%d/%d)\n✅ %d ❌ %d", pct, p.Processed, p.Total, p.Sent, p.Failed)
}

func summaryText(r Result) string {
	return fmt.Sprintf("✅ Рассылка завершена!\n🆔 ID: %d\n📤 Отправлено: %d\n❌ Ошибок: %d\n📊 /campaigns для деталей",
		r.CampaignID, r.Sent, r.Failed)
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
