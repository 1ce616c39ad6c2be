package replay

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/risklens/internal/risk"
)

// ClockLayout formats the wall-clock stamps carried by every payload.
const ClockLayout = "15:04:05"

// Payload is the per-tick message of a replay session.
type Payload struct {
	Transaction TransactionView `json:"transaction"`
	Analysis    AnalysisView    `json:"analysis"`
}

// TransactionView is the enriched transaction as shown to the viewer.
type TransactionView struct {
	Amount       float64 `json:"amount"`
	Location     string  `json:"location"`
	MerchantType string  `json:"merchant_type"`
	Time         string  `json:"time"`
}

// AnalysisView is the verdict as shown to the viewer.
type AnalysisView struct {
	RiskLevel   risk.Label `json:"risk_level"`
	RiskScore   float64    `json:"risk_score"`
	Explanation string     `json:"explanation"`
	Timestamp   string     `json:"timestamp"`
}

// ErrorPayload is the single terminal message sent when the dataset is absent.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewPayload assembles a payload stamped with now. Amount and score are
// rounded to two decimals for display only.
func NewPayload(tx risk.Transaction, v risk.Verdict, now time.Time) Payload {
	stamp := now.Format(ClockLayout)
	return Payload{
		Transaction: TransactionView{
			Amount:       round2(tx.Amount),
			Location:     tx.Location,
			MerchantType: tx.MerchantCategory,
			Time:         stamp,
		},
		Analysis: AnalysisView{
			RiskLevel:   v.Label,
			RiskScore:   round2(v.Score),
			Explanation: v.Explanation,
			Timestamp:   stamp,
		},
	}
}

// round2 rounds the exact binary value of f to two places, ties to even
// (2.675 is stored as 2.67499... and becomes 2.67; 0.125 becomes 0.12).
func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.RequireFromString(strconv.FormatFloat(f, 'f', 2, 64)).InexactFloat64()
}
