package rules

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound reports a cancel against a missing rule. Cancellation is
// idempotent: a second cancel of the same id returns this, never panics.
var ErrNotFound = errors.New("alert rule not found")

type bucketKey struct {
	owner  string
	symbol string
}

// bucket holds the rules of one (owner, symbol) namespace. seq assigns
// ids monotonically from 0; the bucket is dropped once emptied, which
// frees its id namespace.
type bucket struct {
	seq   int64
	rules []*AlertRule
}

// Store is the in-memory registry of active alert rules. All mutation
// goes through its methods under one short-lived lock; snapshots and
// listings return copies so callers never alias internal state.
type Store struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	logger  zerolog.Logger
}

// NewStore constructs an empty rule registry.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		buckets: make(map[bucketKey]*bucket),
		logger:  logger.With().Str("component", "rule_store").Logger(),
	}
}

// Submit validates and registers a rule, returning its assigned id.
// Duplicates are permitted; each submission gets its own id.
func (s *Store) Submit(rule AlertRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{owner: rule.Owner, symbol: rule.Symbol}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}

	rule.ID = b.seq
	b.seq++
	rule.Active = true
	rule.LastFiredAt = nil
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	stored := rule
	b.rules = append(b.rules, &stored)

	s.logger.Info().
		Str("owner", rule.Owner).
		Str("symbol", rule.Symbol).
		Int64("id", rule.ID).
		Str("metric", string(rule.Metric)).
		Str("comparator", string(rule.Comparator)).
		Msg("alert rule registered")
	return rule.ID, nil
}

// Cancel removes a rule by id. Returns ErrNotFound when the id is not
// registered (including when it was already cancelled).
func (s *Store) Cancel(owner, symbol string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(owner, symbol, id)
}

func (s *Store) removeLocked(owner, symbol string, id int64) error {
	key := bucketKey{owner: owner, symbol: symbol}
	b, ok := s.buckets[key]
	if !ok {
		return ErrNotFound
	}
	for i, r := range b.rules {
		if r.ID == id {
			r.Active = false
			b.rules = append(b.rules[:i], b.rules[i+1:]...)
			if len(b.rules) == 0 {
				delete(s.buckets, key)
			}
			return nil
		}
	}
	return ErrNotFound
}

// List returns the owner's rules in insertion order. An empty symbol
// lists every symbol, grouped by symbol in lexical order.
func (s *Store) List(owner, symbol string) []AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != "" {
		b, ok := s.buckets[bucketKey{owner: owner, symbol: symbol}]
		if !ok {
			return nil
		}
		return copyRules(b.rules)
	}

	symbols := make([]string, 0)
	for key := range s.buckets {
		if key.owner == owner {
			symbols = append(symbols, key.symbol)
		}
	}
	sort.Strings(symbols)

	var out []AlertRule
	for _, sym := range symbols {
		out = append(out, copyRules(s.buckets[bucketKey{owner: owner, symbol: sym}].rules)...)
	}
	return out
}

// Snapshot returns a copy of every active rule, for one scheduler tick.
func (s *Store) Snapshot() []AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []AlertRule
	for _, b := range s.buckets {
		out = append(out, copyRules(b.rules)...)
	}
	return out
}

// MarkFired records a successful fire decision. When retire is set the
// rule is removed from future ticks (one-shot rules). A rule cancelled
// between snapshot and fire is left untouched.
func (s *Store) MarkFired(owner, symbol string, id int64, firedAt time.Time, retire bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketKey{owner: owner, symbol: symbol}]
	if !ok {
		return
	}
	for _, r := range b.rules {
		if r.ID == id {
			ts := firedAt
			r.LastFiredAt = &ts
			break
		}
	}
	if retire {
		if err := s.removeLocked(owner, symbol, id); err == nil {
			s.logger.Debug().
				Str("owner", owner).
				Str("symbol", symbol).
				Int64("id", id).
				Msg("one-shot rule retired")
		}
	}
}

func copyRules(in []*AlertRule) []AlertRule {
	out := make([]AlertRule, 0, len(in))
	for _, r := range in {
		c := *r
		if r.LastFiredAt != nil {
			ts := *r.LastFiredAt
			c.LastFiredAt = &ts
		}
		out = append(out, c)
	}
	return out
}
