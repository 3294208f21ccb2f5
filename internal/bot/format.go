package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"taskhub/internal/config"
	"taskhub/internal/model"
	"taskhub/internal/service"
)

const helpText = `<b>Commands</b>
/sync [source] · pull canvas, outlook, google or handshake
/summary · counts and the most urgent tasks
/plain · one-paragraph summary
/weekly · tasks grouped by week
/connect &lt;source&gt; &lt;token&gt; [refresh] · link a source and sync it
/sources · connected sources
/add title | YYYY-MM-DD [HH:MM] | description · add your own task
/tasks · open tasks with quick actions
/complete &lt;id&gt; · mark a task done
/delete &lt;id&gt; · remove a task
/task &lt;id&gt; · show one task
/edit &lt;id&gt; title | description | priority · change a task, empty parts stay, "-" clears the description
/digest · send the digest now
/settings · sync and digest schedule`

func escape(s string) string {
	return html.EscapeString(s)
}

// parseSourceArg returns nil for an empty argument, meaning every source.
func parseSourceArg(raw string) (*model.Source, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return nil, nil
	}
	source, ok := model.ParseSource(raw)
	if !ok || !source.Syncable() {
		return nil, fmt.Errorf("unknown source %q, use canvas, outlook, google or handshake", raw)
	}
	return &source, nil
}

// parseConnectArgs reads "<source> <access token> [refresh token]".
func parseConnectArgs(args string) (service.ConnectInput, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		return service.ConnectInput{}, errors.New("usage: /connect <source> <token> [refresh token]")
	}
	source, err := parseSourceArg(fields[0])
	if err != nil {
		return service.ConnectInput{}, err
	}
	input := service.ConnectInput{Source: *source, AccessToken: fields[1]}
	if len(fields) == 3 {
		input.RefreshToken = fields[2]
	}
	return input, nil
}

// parseAddArgs reads "title | deadline | description"; only the title is
// required.
func parseAddArgs(args string) (service.TaskInput, error) {
	parts := strings.Split(args, "|")
	input := service.TaskInput{Title: strings.TrimSpace(parts[0])}
	if input.Title == "" {
		return input, errors.New("usage: /add title | YYYY-MM-DD [HH:MM] | description")
	}
	if len(parts) > 1 {
		due, err := parseDeadline(parts[1])
		if err != nil {
			return input, err
		}
		input.DueAt = due
	}
	if len(parts) > 2 {
		input.Description = strings.TrimSpace(strings.Join(parts[2:], "|"))
	}
	return input, nil
}

// parseDeadline accepts a date or a date with time, read as UTC. A bare date
// means the end of that day.
func parseDeadline(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, time.UTC); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		end := t.Add(24*time.Hour - time.Minute)
		return &end, nil
	}
	return nil, fmt.Errorf("cannot read deadline %q, use 2025-11-30 or 2025-11-30 18:00", raw)
}

// parseEditArgs reads "<id> title | description | priority". Empty parts are
// left unchanged and a description of "-" clears it.
func parseEditArgs(args string) (uint, service.TaskEdit, error) {
	usage := errors.New("usage: /edit <id> title | description | priority")
	args = strings.TrimSpace(args)
	idPart, rest, _ := strings.Cut(args, " ")
	taskID, err := parseTaskID(idPart, "")
	if err != nil {
		return 0, service.TaskEdit{}, usage
	}

	var edit service.TaskEdit
	parts := strings.Split(rest, "|")
	if title := strings.TrimSpace(parts[0]); title != "" {
		edit.Title = &title
	}
	if len(parts) > 1 {
		switch desc := strings.TrimSpace(parts[1]); desc {
		case "":
		case "-":
			empty := ""
			edit.Description = &empty
		default:
			edit.Description = &desc
		}
	}
	if len(parts) > 2 {
		if raw := strings.TrimSpace(parts[2]); raw != "" {
			priority, err := strconv.Atoi(raw)
			if err != nil || priority < 0 {
				return 0, service.TaskEdit{}, fmt.Errorf("priority must be a number from 0 up, got %q", raw)
			}
			edit.Priority = &priority
		}
	}
	if len(parts) > 3 {
		return 0, service.TaskEdit{}, usage
	}
	if edit.Empty() {
		return 0, service.TaskEdit{}, usage
	}
	return taskID, edit, nil
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func syncErrorText(err error) string {
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		return "⏳ A sync is already running for you. Try again in a minute."
	case errors.Is(err, service.ErrNotSyncable):
		return "That source cannot be synced."
	default:
		return fmt.Sprintf("Sync failed: %s", escape(err.Error()))
	}
}

func formatSyncReport(report service.SyncReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔄 Synced %d record(s).", report.Fetched))
	for _, res := range report.Sources {
		name := service.SourceDisplayName(res.Source)
		switch res.State {
		case service.SourceSynced:
			sb.WriteString(fmt.Sprintf("\n• %s: %d new, %d updated", name,
				res.Reconcile.Count(service.OutcomeInserted), res.Reconcile.Count(service.OutcomeUpdated)))
			if res.Malformed > 0 {
				sb.WriteString(fmt.Sprintf(", %d unreadable", res.Malformed))
			}
		case service.SourceFailed:
			sb.WriteString(fmt.Sprintf("\n• %s: unavailable", name))
		case service.SourceSkipped:
			if errors.Is(res.Err, service.ErrCredentialExpired) {
				sb.WriteString(fmt.Sprintf("\n• %s: token expired, /connect again", name))
			} else if report.Scope != nil {
				sb.WriteString(fmt.Sprintf("\n• %s: not connected", name))
			}
		}
	}
	return sb.String()
}

func formatSummary(sum service.Summary, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>Summary</b>\n")
	sb.WriteString(fmt.Sprintf("Total: %d · Pending: %d · Overdue: %d · Due within 48h: %d\n",
		sum.Total, sum.Pending, sum.Overdue, sum.HighPriority))
	for _, source := range model.AllSources {
		if n := sum.BySource[source]; n > 0 {
			sb.WriteString(fmt.Sprintf("• %s: %d\n", service.SourceDisplayName(source), n))
		}
	}
	if len(sum.Records) == 0 {
		sb.WriteString("\nNo pending tasks. You're all caught up!")
		return sb.String()
	}
	if line := kindBreakdown(sum.Records); line != "" {
		sb.WriteString("By kind: " + line + "\n")
	}
	sb.WriteString("\n")
	for i, rec := range sum.Records {
		if i == service.DigestLimit {
			sb.WriteString(fmt.Sprintf("… and %d more\n", len(sum.Records)-i))
			break
		}
		sb.WriteString(service.FormatRecord(rec, now))
	}
	return strings.TrimSpace(sb.String())
}

var kindLabels = []struct {
	kind             model.Kind
	singular, plural string
}{
	{model.KindAssignment, "assignment", "assignments"},
	{model.KindMeeting, "meeting", "meetings"},
	{model.KindInternship, "internship", "internships"},
	{model.KindEmail, "email", "emails"},
	{model.KindManual, "personal task", "personal tasks"},
}

func kindBreakdown(records []model.Record) string {
	groups := service.CategorizeByKind(records)
	var parts []string
	for _, l := range kindLabels {
		n := len(groups[l.kind])
		switch {
		case n == 1:
			parts = append(parts, "1 "+l.singular)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, l.plural))
		}
	}
	return strings.Join(parts, " · ")
}

func formatTask(rec model.Record, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>#%d %s</b>\n", rec.ID, escape(rec.Title)))
	sb.WriteString(fmt.Sprintf("Source: %s · Kind: %s\n", service.SourceDisplayName(rec.Source), rec.Kind))
	sb.WriteString(fmt.Sprintf("Status: %s · Priority: %d\n", rec.Status, rec.Priority))
	if rec.StartAt != nil {
		sb.WriteString("Starts: " + rec.StartAt.In(now.Location()).Format("Mon 2006-01-02 15:04 MST") + "\n")
	}
	if rec.DueAt != nil {
		sb.WriteString("Due: " + rec.DueAt.In(now.Location()).Format("Mon 2006-01-02 15:04 MST") + "\n")
	}
	if desc := strings.TrimSpace(rec.DescriptionText()); desc != "" {
		sb.WriteString("\n" + escape(shortTitle(desc, 500)))
	}
	return strings.TrimSpace(sb.String())
}

func formatSettings(cfg *config.Config) string {
	if cfg == nil {
		return "No settings loaded."
	}
	var sb strings.Builder
	sb.WriteString("⚙️ <b>Settings</b>\n")
	if cfg.EnableBackgroundSync {
		sb.WriteString(fmt.Sprintf("Background sync: every %s, retry after %s\n", cfg.SyncInterval, cfg.SyncRetryDelay))
	} else {
		sb.WriteString("Background sync: off\n")
	}
	sb.WriteString(fmt.Sprintf("Source timeout: %s\n", cfg.SourceTimeout))
	switch {
	case cfg.DigestTime != "":
		sb.WriteString(fmt.Sprintf("Digest: daily at %s", escape(cfg.DigestTime)))
	case cfg.ReportInterval > 0:
		sb.WriteString(fmt.Sprintf("Digest: every %s", cfg.ReportInterval))
	default:
		sb.WriteString("Digest: off")
	}
	return sb.String()
}

func formatWeekly(w service.Weekly, now time.Time) string {
	var sb strings.Builder
	section := func(title string, records []model.Record) {
		sb.WriteString(fmt.Sprintf("<b>%s</b> (%d)\n", title, len(records)))
		if len(records) == 0 {
			sb.WriteString("— nothing\n")
		}
		for _, rec := range records {
			line := "• " + escape(shortTitle(rec.Title, 60))
			if rec.DueAt != nil {
				line += " · " + rec.DueAt.In(now.Location()).Format("Mon 2006-01-02")
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}
	section("This week", w.ThisWeek)
	section("Next week", w.NextWeek)
	section("Later", w.Later)
	return strings.TrimSpace(sb.String())
}

func formatConnections(creds []model.Credential, now time.Time) string {
	if len(creds) == 0 {
		return "No sources connected yet. Use /connect &lt;source&gt; &lt;token&gt;."
	}
	var sb strings.Builder
	sb.WriteString("🔗 <b>Connected sources</b>\n")
	for _, c := range creds {
		state := "active"
		if c.Expired(now) {
			state = "expired"
			if c.RefreshToken != "" {
				state = "expired, will refresh"
			}
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", service.SourceDisplayName(c.Source), state))
	}
	return strings.TrimSpace(sb.String())
}
