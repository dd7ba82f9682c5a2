package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one resolved fetch result persisted per evaluated key
// per tick, feeding the export and backfill commands.
type Observation struct {
	Symbol     string
	Metric     string
	Timeframe  string
	Origin     string
	Values     json.RawMessage
	ObservedAt time.Time
	CreatedAt  time.Time
}

// AlertRecord captures one fired notification for auditing.
type AlertRecord struct {
	ID         int64
	Owner      string
	RuleID     int64
	Symbol     string
	Metric     string
	Comparator string
	Threshold  decimal.Decimal
	Observed   decimal.Decimal
	FiredAt    time.Time
	CreatedAt  time.Time
}
