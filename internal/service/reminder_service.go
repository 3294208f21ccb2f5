package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"taskhub/internal/model"
)

// DigestLimit caps how many records a digest lists.
const DigestLimit = 10

// ReminderService builds the periodic digest sent to each user.
type ReminderService struct {
	summaries *SummaryService
}

func NewReminderService(summaries *SummaryService) *ReminderService {
	return &ReminderService{summaries: summaries}
}

// Digest returns an HTML message with the plain summary followed by the
// most urgent open records.
func (s *ReminderService) Digest(ctx context.Context, user model.User, now time.Time) (string, error) {
	sum, err := s.summaries.Summarize(ctx, user.ID, now)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02 15:04 MST")))
	builder.WriteString(html.EscapeString(PlainText(sum)))
	builder.WriteString("\n")

	if len(sum.Records) > 0 {
		builder.WriteString("\n🔥 <b>Up next</b>\n")
		for i, rec := range sum.Records {
			if i == DigestLimit {
				builder.WriteString(fmt.Sprintf("… and %d more\n", len(sum.Records)-DigestLimit))
				break
			}
			builder.WriteString(FormatRecord(rec, now))
		}
	}
	return strings.TrimSpace(builder.String()), nil
}

// FormatRecord renders one record as an HTML list entry.
func FormatRecord(rec model.Record, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case rec.Status == model.StatusOverdue:
		icon = "⚠️"
	case rec.DueAt != nil && rec.DueAt.Sub(now) <= HighPriorityWindow:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s <i>(%s)</i>", icon, rec.ID,
		html.EscapeString(strings.TrimSpace(rec.Title)), SourceDisplayName(rec.Source)))

	if rec.DueAt != nil {
		d := rec.DueAt.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, <b>overdue</b>", d.Format("2006-01-02 15:04")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · ≈%d day(s) left", d.Format("2006-01-02 15:04"), daysLeft))
		}
	}

	if desc := strings.TrimSpace(rec.DescriptionText()); desc != "" {
		if len([]rune(desc)) > 120 {
			desc = string([]rune(desc)[:120]) + "…"
		}
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}

	sb.WriteByte('\n')
	return sb.String()
}
