package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

// Comparator is the predicate applied to the resolved field.
type Comparator string

const (
	Above     Comparator = "ABOVE"
	Below     Comparator = "BELOW"
	PctChange Comparator = "PCTCHG"
	Change24h Comparator = "24HRCHG"
)

// ParseComparator validates a comparator literal.
func ParseComparator(raw string) (Comparator, error) {
	c := Comparator(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case Above, Below, PctChange, Change24h:
		return c, nil
	}
	return "", fmt.Errorf("unknown comparator %q", raw)
}

// AlertRule is one registered condition watch. IDs are unique per
// (owner, symbol) bucket, not globally.
type AlertRule struct {
	ID          int64
	Owner       string
	Symbol      string
	Metric      market.Metric
	Timeframe   market.Timeframe
	Params      market.Params
	Field       string
	Comparator  Comparator
	Threshold   decimal.Decimal
	Baseline    decimal.Decimal
	Cooldown    time.Duration
	LastFiredAt *time.Time
	Active      bool
	CreatedAt   time.Time
}

// FetchRequest returns the data request the rule evaluates against.
func (r *AlertRule) FetchRequest() market.Request {
	return market.Request{
		Symbol:    r.Symbol,
		Metric:    r.Metric,
		Timeframe: r.Timeframe,
		Params:    r.Params,
	}
}

// ValidationError reports a rejected rule submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate enforces the submission invariants. The symbol must already
// be normalised (see market.NormalizeSymbol).
func (r *AlertRule) Validate() error {
	if r.Owner == "" {
		return invalid("owner", "must not be empty")
	}
	if _, err := market.NormalizeSymbol(r.Symbol); err != nil {
		return invalid("symbol", "%v", err)
	}
	if _, err := market.ParseMetric(string(r.Metric)); err != nil {
		return invalid("metric", "%v", err)
	}
	if r.Metric.Indicator() {
		if r.Timeframe == "" {
			return invalid("timeframe", "required for %s", r.Metric)
		}
		if _, err := market.ParseTimeframe(string(r.Timeframe)); err != nil {
			return invalid("timeframe", "%v", err)
		}
	}
	if _, err := ParseComparator(string(r.Comparator)); err != nil {
		return invalid("comparator", "%v", err)
	}
	if r.Metric.Indicator() && (r.Comparator == PctChange || r.Comparator == Change24h) {
		return invalid("comparator", "%s applies to PRICE only", r.Comparator)
	}
	if r.Comparator == PctChange && !r.Baseline.IsPositive() {
		return invalid("baseline", "required and positive for PCTCHG")
	}
	if r.Cooldown < 0 {
		return invalid("cooldown", "must be positive when set")
	}
	return nil
}

// ThresholdFromFloat converts a caller-supplied float into a decimal
// threshold, rejecting non-finite values before decimal conversion.
func ThresholdFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("threshold must be finite, got %v", f)
	}
	return decimal.NewFromFloat(f), nil
}

var cooldownPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseCooldown parses the cooldown literal grammar: an integer
// followed by one of s, m, h, d. Empty means one-shot (no cooldown).
func ParseCooldown(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, nil
	}
	m := cooldownPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid cooldown %q, expected <int><s|m|h|d>", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid cooldown %q, value must be positive", raw)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}
