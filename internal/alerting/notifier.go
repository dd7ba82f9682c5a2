package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
	"alertwatch/internal/rules"
)

// Notification carries the context of one fired alert rule.
type Notification struct {
	Owner      string
	RuleID     int64
	Symbol     string
	Metric     market.Metric
	Timeframe  market.Timeframe
	Field      string
	Comparator rules.Comparator
	Threshold  decimal.Decimal
	Baseline   decimal.Decimal
	Observed   decimal.Decimal
	Origin     string
	FiredAt    time.Time
}

// Notifier delivers rendered alert text to the owning session. A
// delivery failure never rolls back the fire decision; the engine logs
// it and moves on.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// RenderMessage builds the user-facing alert text.
func RenderMessage(note Notification) string {
	b := strings.Builder{}
	b.WriteString("[alertwatch] ")
	b.WriteString(note.Symbol)

	switch note.Comparator {
	case rules.Above:
		fmt.Fprintf(&b, " %s rose above %s\n", describeMetric(note), note.Threshold.String())
		fmt.Fprintf(&b, "Current: %s\n", note.Observed.StringFixed(4))
	case rules.Below:
		fmt.Fprintf(&b, " %s fell below %s\n", describeMetric(note), note.Threshold.String())
		fmt.Fprintf(&b, "Current: %s\n", note.Observed.StringFixed(4))
	case rules.PctChange:
		pct := note.Observed.Sub(note.Baseline).Div(note.Baseline).Mul(decimal.NewFromInt(100))
		direction := "rose"
		if pct.IsNegative() {
			direction = "fell"
		}
		fmt.Fprintf(&b, " %s by %s%% (threshold %s%%)\n", direction, pct.Abs().StringFixed(2), note.Threshold.String())
		fmt.Fprintf(&b, "Price: %s -> %s\n", note.Baseline.String(), note.Observed.StringFixed(4))
	case rules.Change24h:
		direction := "up"
		if note.Observed.IsNegative() {
			direction = "down"
		}
		fmt.Fprintf(&b, " moved %s %s%% over 24h (threshold %s%%)\n",
			direction, note.Observed.Abs().StringFixed(2), note.Threshold.String())
	default:
		fmt.Fprintf(&b, " %s %s %s, observed %s\n",
			describeMetric(note), note.Comparator, note.Threshold.String(), note.Observed.StringFixed(4))
	}

	fmt.Fprintf(&b, "Rule #%d", note.RuleID)
	if note.Origin != "" {
		fmt.Fprintf(&b, " (source: %s)", note.Origin)
	}
	b.WriteByte('\n')
	b.WriteString(note.FiredAt.UTC().Format(time.RFC3339))
	return b.String()
}

func describeMetric(note Notification) string {
	if note.Metric == market.MetricPrice {
		return "price"
	}
	desc := string(note.Metric)
	if note.Timeframe != "" {
		desc += " (" + string(note.Timeframe) + ")"
	}
	if note.Field != "" && note.Field != market.FieldValue {
		desc += " " + note.Field
	}
	return desc
}
