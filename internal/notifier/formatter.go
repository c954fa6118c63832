package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketScreener/internal/model"
)

// maxListed bounds how many rejected or skipped symbols a report names.
const maxListed = 10

// FormatRun formats a screening pass into a Telegram message.
func FormatRun(run *model.Run) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>Screen %s</b> | %s\n\n",
		html.EscapeString(run.Strategy), run.StartedAt.Local().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Universe: %d | Scanned: %d | Took: %s\n",
		run.Universe, run.Scanned, run.FinishedAt.Sub(run.StartedAt).Round(time.Second)))
	b.WriteString(fmt.Sprintf("Selected: %d | Rejected: %d | Skipped: %d\n",
		len(run.Selected), run.Count(model.OutcomeRejected), run.Count(model.OutcomeSkipped)))
	if run.Halted {
		b.WriteString("Stopped early: max selections reached\n")
	}

	b.WriteString("\n✅ <b>Selections:</b>\n")
	if len(run.Selected) == 0 {
		b.WriteString("  none\n")
	}
	for i, res := range run.Selected {
		s := res.Snapshot
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s\n", i+1, html.EscapeString(res.Symbol), formatValue(s.Price)))
		b.WriteString(fmt.Sprintf("   MA %s / %s / %s", formatValue(s.ShortMA), formatValue(s.MediumMA), formatValue(s.LongMA)))
		if s.Oscillator.Valid {
			b.WriteString(fmt.Sprintf(" | RSI %.0f", s.Oscillator.V))
		}
		b.WriteString("\n")
	}

	var skipped []string
	for _, res := range run.Outcomes {
		if res.Outcome == model.OutcomeSkipped {
			skipped = append(skipped, html.EscapeString(res.Symbol))
		}
	}
	if len(skipped) > 0 {
		b.WriteString("\n⚠️ <b>Skipped:</b> ")
		if len(skipped) > maxListed {
			b.WriteString(strings.Join(skipped[:maxListed], ", "))
			b.WriteString(fmt.Sprintf(" and %d more", len(skipped)-maxListed))
		} else {
			b.WriteString(strings.Join(skipped, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatError formats a failed pass.
func FormatError(err error) string {
	return fmt.Sprintf("❌ <b>Screening failed</b>\n\n%s", html.EscapeString(err.Error()))
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "Available commands:\n• /screen - run a screening pass now\n• /last - show the latest pass"
}

func formatValue(v model.Value) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v.V)
}
