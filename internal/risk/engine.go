package risk

import (
	"strconv"
	"strings"
)

// Policy holds the heuristic engine's weights and thresholds. Increments are
// applied first, the cap second, and the label thresholds last.
type Policy struct {
	BaseRate float64

	HighAmount           float64
	HighAmountWeight     float64
	VeryHighAmount       float64
	VeryHighAmountWeight float64

	RiskyLocations  []string
	LocationWeight  float64
	RiskyMerchants  []string
	MerchantWeight  float64
	ScoreCap        float64
	FraudAbove      float64
	SuspiciousAbove float64
}

// Default policy constants.
const (
	DefaultBaseRate             = 0.05
	DefaultHighAmount           = 1000.0
	DefaultHighAmountWeight     = 0.2
	DefaultVeryHighAmount       = 5000.0
	DefaultVeryHighAmountWeight = 0.3
	DefaultLocationWeight       = 0.25
	DefaultMerchantWeight       = 0.25
	DefaultScoreCap             = 0.99
	DefaultFraudThreshold       = 0.8
	DefaultSuspiciousThreshold  = 0.5
)

// DefaultRiskyLocations are matched as case-insensitive substrings of the
// transaction location.
var DefaultRiskyLocations = []string{"russia", "nigeria", "north korea", "iran", "china"}

// DefaultRiskyMerchants are matched as case-insensitive substrings of the
// merchant label, so "GamblingToken" trips on both "gambling" and "token".
var DefaultRiskyMerchants = []string{"crypto", "gambling", "casino", "bet", "token", "mixer", "darknet"}

// DefaultPolicy returns the standard weights and thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BaseRate:             DefaultBaseRate,
		HighAmount:           DefaultHighAmount,
		HighAmountWeight:     DefaultHighAmountWeight,
		VeryHighAmount:       DefaultVeryHighAmount,
		VeryHighAmountWeight: DefaultVeryHighAmountWeight,
		RiskyLocations:       append([]string(nil), DefaultRiskyLocations...),
		LocationWeight:       DefaultLocationWeight,
		RiskyMerchants:       append([]string(nil), DefaultRiskyMerchants...),
		MerchantWeight:       DefaultMerchantWeight,
		ScoreCap:             DefaultScoreCap,
		FraudAbove:           DefaultFraudThreshold,
		SuspiciousAbove:      DefaultSuspiciousThreshold,
	}
}

// Engine scores canonical transactions with additive weighted signals.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates a heuristic engine with the default policy.
func NewEngine() *Engine {
	return &Engine{policy: DefaultPolicy()}
}

// WithPolicy replaces the whole policy.
func (e *Engine) WithPolicy(p Policy) *Engine {
	e.policy = p
	return e
}

// WithThresholds overrides the label thresholds.
func (e *Engine) WithThresholds(fraudAbove, suspiciousAbove float64) *Engine {
	e.policy.FraudAbove = fraudAbove
	e.policy.SuspiciousAbove = suspiciousAbove
	return e
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	p := e.policy
	p.RiskyLocations = append([]string(nil), e.policy.RiskyLocations...)
	p.RiskyMerchants = append([]string(nil), e.policy.RiskyMerchants...)
	return p
}

// Score evaluates a transaction. It is total: every input yields a verdict.
func (e *Engine) Score(amount float64, location, merchant string) Verdict {
	p := e.policy
	score := p.BaseRate
	var reasons []string

	if amount > p.HighAmount {
		score += p.HighAmountWeight
		reasons = append(reasons, "High amount ($"+formatAmount(amount)+")")
	}
	if amount > p.VeryHighAmount {
		score += p.VeryHighAmountWeight
		reasons = append(reasons, "Very high value transaction")
	}
	if containsAny(location, p.RiskyLocations) {
		score += p.LocationWeight
		reasons = append(reasons, "High-risk location: "+location)
	}
	if containsAny(merchant, p.RiskyMerchants) {
		score += p.MerchantWeight
		reasons = append(reasons, "High-risk token/merchant: "+merchant)
	}

	if score > p.ScoreCap {
		score = p.ScoreCap
	}

	return newVerdict(e.Label(score), score, reasons, SourceHeuristic)
}

// Label maps a capped score to a label: above FraudAbove is Fraud, above
// SuspiciousAbove is Suspicious, anything else Normal.
func (e *Engine) Label(score float64) Label {
	switch {
	case score > e.policy.FraudAbove:
		return LabelFraud
	case score > e.policy.SuspiciousAbove:
		return LabelSuspicious
	default:
		return LabelNormal
	}
}

// Assess normalizes rec and scores it. A confirmed historical label takes
// precedence over the heuristic signals.
func (e *Engine) Assess(n *Normalizer, rec Record) (Transaction, Verdict) {
	tx := n.Normalize(rec)
	if v, ok := GroundTruth(rec); ok {
		return tx, v
	}
	return tx, e.Score(tx.Amount, tx.Location, tx.MerchantCategory)
}

func containsAny(s string, needles []string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// formatAmount keeps a trailing ".0" on whole numbers (1500 -> "1500.0").
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
