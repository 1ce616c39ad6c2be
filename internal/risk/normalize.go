package risk

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Record is a raw transaction as received from a live request or a
// historical dataset row. Key names and casing vary by source; a nil value
// means the field is present but empty.
type Record map[string]any

// ReferenceLocations backfill a missing location for display.
var ReferenceLocations = []string{
	"New York", "London", "San Francisco", "Tokyo", "Berlin",
	"Sydney", "Mumbai", "Toronto", "Paris", "Dubai",
}

// ReferenceMerchants backfill a missing merchant category for display.
var ReferenceMerchants = []string{
	"Amazon", "Starbucks", "Uber", "Apple Store", "Walmart",
	"Target", "Netflix", "Gas Station", "McDonalds", "Best Buy",
}

// fieldRule resolves one canonical field from an ordered list of keys. The
// first key that claims the field decides it; later keys are not consulted
// even when parsing the claimed value fails.
type fieldRule struct {
	keys   []string
	claims func(v any) bool
}

var (
	// Key presence alone claims the amount, so an empty "Amount" column
	// yields 0.0 rather than falling through to "amount".
	amountRule   = fieldRule{keys: []string{"Amount", "amount"}, claims: func(any) bool { return true }}
	locationRule = fieldRule{keys: []string{"location"}, claims: notNull}
	merchantRule = fieldRule{keys: []string{"type", "merchant_type"}, claims: notNull}
	hourRule     = fieldRule{keys: []string{"hour_of_day", "hour"}, claims: notNull}
)

func (r fieldRule) resolve(rec Record) (any, bool) {
	for _, k := range r.keys {
		v, present := rec[k]
		if present && r.claims(v) {
			return v, true
		}
	}
	return nil, false
}

// Normalizer maps heterogeneous records onto the canonical Transaction.
type Normalizer struct {
	pick func(n int) int
}

// NewNormalizer creates a normalizer that backfills missing display fields
// with a pseudo-random reference value.
func NewNormalizer() *Normalizer {
	return &Normalizer{pick: rand.IntN}
}

// WithPicker overrides the index chooser used for backfilled fields.
func (n *Normalizer) WithPicker(pick func(n int) int) *Normalizer {
	n.pick = pick
	return n
}

// Normalize never fails: an absent or unparseable amount becomes 0.0, and a
// missing location or merchant is drawn from the reference lists.
func (n *Normalizer) Normalize(rec Record) Transaction {
	tx := Transaction{
		Amount:           n.amount(rec),
		Location:         n.text(rec, locationRule, ReferenceLocations),
		MerchantCategory: n.text(rec, merchantRule, ReferenceMerchants),
	}
	if v, ok := hourRule.resolve(rec); ok {
		if h, ok := parseHour(v); ok {
			tx.HourOfDay = &h
		}
	}
	if label, ok := decodeGroundTruth(rec); ok {
		tx.GroundTruth = &label
	}
	return tx
}

func (n *Normalizer) amount(rec Record) float64 {
	v, ok := amountRule.resolve(rec)
	if !ok {
		return 0.0
	}
	f, ok := parseFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}

func (n *Normalizer) text(rec Record, rule fieldRule, fallback []string) string {
	if v, ok := rule.resolve(rec); ok {
		return stringify(v)
	}
	return fallback[n.pick(len(fallback))]
}

func notNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case float64:
		return !math.IsNaN(t)
	case float32:
		return !math.IsNaN(float64(t))
	default:
		return true
	}
}

func parseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// parseInt truncates numeric values toward zero and accepts integral or
// decimal strings ("1", "1.0").
func parseInt(v any) (int, bool) {
	if s, ok := v.(string); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	f, ok := parseFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func parseHour(v any) (int, bool) {
	h, ok := parseInt(v)
	if !ok || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatAmount(t)
	case float32:
		return formatAmount(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}
