// Package ml wraps an externally trained fraud model behind a small
// interface. The package owns feature construction and the mapping from
// probability to labels; the model owns the numeric mapping from features to
// probability.
package ml

import (
	"errors"
	"math"
)

var (
	ErrModelUnavailable = errors.New("ml: no model loaded")
	ErrUnknownLocation  = errors.New("ml: location not seen during training")
	ErrInvalidModel     = errors.New("ml: invalid model artifact")
)

// FeatureNames is the column order the model was trained on.
var FeatureNames = []string{"Amount", "amount_log", "hour_of_day", "is_night", "location_encoded"}

// Encoder maps a categorical location label to its training-time integer.
type Encoder interface {
	Encode(location string) (int, error)
}

// Scorer returns P(fraud) for a feature vector ordered as FeatureNames.
// Implementations must be safe for concurrent use once constructed.
type Scorer interface {
	Probability(features []float64) (float64, error)
	Encoder() Encoder
}

// Features is the fixed input to a Scorer.
type Features struct {
	Amount          float64
	AmountLog       float64
	HourOfDay       int
	IsNight         bool
	LocationEncoded int
}

// BuildFeatures derives the model input from canonical transaction fields.
func BuildFeatures(amount float64, hour int, location string, enc Encoder) (Features, error) {
	code, err := enc.Encode(location)
	if err != nil {
		return Features{}, err
	}
	return Features{
		Amount:          amount,
		AmountLog:       math.Log1p(amount),
		HourOfDay:       hour,
		IsNight:         IsNight(hour),
		LocationEncoded: code,
	}, nil
}

// IsNight is true for hours at or before 4 and at or after 22.
func IsNight(hour int) bool {
	return hour <= 4 || hour >= 22
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	night := 0.0
	if f.IsNight {
		night = 1.0
	}
	return []float64{f.Amount, f.AmountLog, float64(f.HourOfDay), night, float64(f.LocationEncoded)}
}

// Label is the model's binary verdict.
type Label string

const (
	LabelFraud  Label = "FRAUD"
	LabelNormal Label = "NORMAL"
)

// RiskLevel is the model's three-tier risk bucket.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Prediction thresholds. These are independent of the heuristic engine's.
const (
	FraudAbove      = 0.5
	HighRiskAbove   = 0.7
	MediumRiskAbove = 0.3
)

// Prediction is the model-derived verdict.
type Prediction struct {
	Label       Label     `json:"prediction"`
	Probability float64   `json:"fraud_probability"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

// Classify maps a probability to a label and a risk tier.
func Classify(p float64) Prediction {
	label := LabelNormal
	if p > FraudAbove {
		label = LabelFraud
	}

	level := RiskLow
	switch {
	case p > HighRiskAbove:
		level = RiskHigh
	case p > MediumRiskAbove:
		level = RiskMedium
	}

	return Prediction{Label: label, Probability: p, RiskLevel: level}
}
