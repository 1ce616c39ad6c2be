// Package risk implements transaction fraud risk scoring.
//
// A raw record is normalized into a canonical Transaction, checked against a
// known historical label, and otherwise scored by an additive heuristic
// engine. The heuristic score is capped below certainty; only a confirmed
// historical label may report the maximum score. Context annotators (time of
// day, location) are computed alongside the verdict for display and never
// feed back into it.
package risk

import "strings"

// Label is the engine's verdict on a transaction.
type Label string

const (
	LabelNormal     Label = "Normal"
	LabelSuspicious Label = "Suspicious"
	LabelFraud      Label = "Fraud"
)

// Source identifies which path produced a verdict.
type Source string

const (
	SourceHeuristic   Source = "heuristic"
	SourceGroundTruth Source = "ground_truth"
)

// Explanation used when no heuristic signal fires.
const legitimateExplanation = "Transaction appears legitimate"

// Transaction is the canonical shape every scoring path operates on.
type Transaction struct {
	Amount           float64 `json:"amount"`
	Location         string  `json:"location"`
	MerchantCategory string  `json:"merchant_type"`
	HourOfDay        *int    `json:"hour_of_day,omitempty"`
	GroundTruth      *bool   `json:"ground_truth,omitempty"`
}

// Verdict is the result of scoring a single transaction. It is computed per
// transaction and never stored by this package.
type Verdict struct {
	Label       Label    `json:"risk_level"`
	Score       float64  `json:"risk_score"`
	Reasons     []string `json:"reasons,omitempty"`
	Explanation string   `json:"explanation"`
	Source      Source   `json:"source"`
}

func newVerdict(label Label, score float64, reasons []string, source Source) Verdict {
	explanation := legitimateExplanation
	if label != LabelNormal || source == SourceGroundTruth {
		explanation = strings.Join(reasons, " | ")
	}
	return Verdict{
		Label:       label,
		Score:       score,
		Reasons:     reasons,
		Explanation: explanation,
		Source:      source,
	}
}
