package engagement

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"pricebot/internal/storage"
)

// CampaignReport joins a campaign with its price list and delivery stats.
type CampaignReport struct {
	Campaign storage.Campaign      `json:"campaign"`
	FileName string                `json:"file_name,omitempty"`
	Stats    storage.CampaignStats `json:"stats"`
}

func (t *Tracker) CampaignReport(id int64) (CampaignReport, bool) {
	c, ok := t.store.Campaign(id)
	if !ok {
		return CampaignReport{}, false
	}
	return t.report(c), true
}

// Recent returns the latest n campaign reports, newest first.
func (t *Tracker) Recent(n int) []CampaignReport {
	camps := t.store.Campaigns()
	if n > 0 && len(camps) > n {
		camps = camps[:n]
	}
	out := make([]CampaignReport, 0, len(camps))
	for _, c := range camps {
		out = append(out, t.report(c))
	}
	return out
}

func (t *Tracker) Overview() storage.OverallStats {
	return t.store.OverallStats()
}

func (t *Tracker) report(c storage.Campaign) CampaignReport {
	r := CampaignReport{Campaign: c, Stats: t.store.CampaignStats(c.ID)}
	if pl, ok := t.store.PriceList(c.PriceListID); ok {
		r.FileName = pl.FileName
	}
	return r
}

// FormatRate prints a percentage the way the stats screens always have:
// at least one decimal, at most two.
func FormatRate(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// OverviewText is the HTML overall statistics screen.
func OverviewText(s storage.OverallStats) string {
	return fmt.Sprintf("📊 <b>Статистика бота</b>\n\n"+
		"👥 Всего: %d\n✅ Активных: %d\n\n"+
		"📬 Рассылок: %d\n📤 Отправлено: %d\n"+
		"👁️ Открыто: %d\n📈 Открытий: %s%%\n\n"+
		"🆕 Новых за неделю: %d\n❌ Отписалось: %d",
		s.Subscribers.Total, s.Subscribers.Active,
		s.TotalCampaigns, s.TotalSent,
		s.TotalOpened, FormatRate(s.AvgOpenRate),
		s.NewSubsWeek, s.UnsubsWeek)
}

// Progress describes a campaign that is still being sent.
type Progress struct {
	Processed int
	Total     int
}

// CampaignsText is the HTML campaign history. running maps campaign ids
// currently being sent to their progress.
func CampaignsText(reports []CampaignReport, running map[int64]Progress, loc *time.Location) string {
	if len(reports) == 0 {
		return "📭 Нет рассылок"
	}
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString("📋 <b>История рассылок</b>\n\n")
	for _, r := range reports {
		at := r.Campaign.ScheduledAt.Time
		if r.Campaign.SentAt != nil {
			at = r.Campaign.SentAt.Time
		}
		when := "—"
		if !at.IsZero() {
			when = at.In(loc).Format("02.01 15:04")
		}
		name := r.FileName
		if name == "" {
			name = "—"
		}
		fmt.Fprintf(&b, "🆔 %d | %s\n🕐 %s\n", r.Campaign.ID, html.EscapeString(name), when)
		if p, ok := running[r.Campaign.ID]; ok {
			fmt.Fprintf(&b, "⏳ %d/%d\n", p.Processed, p.Total)
		}
		fmt.Fprintf(&b, "📤 %d 👁️ %d (%s%%)\n❌ %d\n────────────\n",
			r.Stats.Delivered, r.Stats.Opened, FormatRate(r.Stats.OpenRate), r.Stats.Failed)
	}
	return b.String()
}

var tagStripper = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "")

// PlainText turns a report screen into terminal text.
func PlainText(s string) string {
	return html.UnescapeString(tagStripper.Replace(s))
}
