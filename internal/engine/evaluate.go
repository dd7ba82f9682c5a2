package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
	"alertwatch/internal/rules"
)

var hundred = decimal.NewFromInt(100)

// evaluate applies the rule's predicate to a resolved result and
// returns whether it holds plus the observed value that was compared.
// It is pure: no clock, no I/O, no rule mutation.
func evaluate(rule rules.AlertRule, res market.FetchResult) (bool, decimal.Decimal, error) {
	field := rule.Field
	if field == "" {
		field = market.FieldValue
	}

	switch rule.Comparator {
	case rules.Above, rules.Below:
		observed, ok := res.Value(field)
		if !ok {
			return false, decimal.Decimal{}, fmt.Errorf("result from %s carries no field %q", res.Origin, field)
		}
		if rule.Comparator == rules.Above {
			return observed.GreaterThan(rule.Threshold), observed, nil
		}
		return observed.LessThan(rule.Threshold), observed, nil

	case rules.PctChange:
		observed, ok := res.Value(field)
		if !ok {
			return false, decimal.Decimal{}, fmt.Errorf("result from %s carries no field %q", res.Origin, field)
		}
		if !rule.Baseline.IsPositive() {
			return false, decimal.Decimal{}, fmt.Errorf("rule has no baseline for PCTCHG")
		}
		pct := observed.Sub(rule.Baseline).Div(rule.Baseline).Mul(hundred)
		return pct.Abs().GreaterThanOrEqual(rule.Threshold), observed, nil

	case rules.Change24h:
		change, ok := res.Value(market.FieldChangePercent)
		if !ok {
			return false, decimal.Decimal{}, fmt.Errorf("result from %s carries no 24h change", res.Origin)
		}
		return change.Abs().GreaterThanOrEqual(rule.Threshold), change, nil
	}

	return false, decimal.Decimal{}, fmt.Errorf("unknown comparator %q", rule.Comparator)
}

// eligible applies the cooldown gate. A rule that has never fired is
// always eligible; a cooldown-less rule that has fired is retired
// elsewhere and never reaches this check again.
func eligible(rule rules.AlertRule, now time.Time) bool {
	if rule.LastFiredAt == nil {
		return true
	}
	if rule.Cooldown <= 0 {
		return false
	}
	return now.Sub(*rule.LastFiredAt) >= rule.Cooldown
}
