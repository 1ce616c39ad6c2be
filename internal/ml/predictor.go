package ml

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mbd888/risklens/internal/metrics"
	"github.com/mbd888/risklens/internal/traces"
	"go.opentelemetry.io/otel/attribute"
)

type loaded struct {
	scorer Scorer
	origin string
}

// Predictor holds the current Scorer. The reference is swapped atomically so
// concurrent callers observe either the previous or the new model, never a
// partially initialized one. A Predictor with no model is in simulation mode.
type Predictor struct {
	current atomic.Pointer[loaded]
}

// NewPredictor creates a predictor, optionally seeded with a scorer.
func NewPredictor(s Scorer) *Predictor {
	p := &Predictor{}
	if s != nil {
		p.Swap(s, "static")
	}
	return p
}

// Swap installs s as the current scorer. A nil s switches to simulation mode.
func (p *Predictor) Swap(s Scorer, origin string) {
	if s == nil {
		p.current.Store(nil)
		metrics.ScorerLoaded.Set(0)
		return
	}
	p.current.Store(&loaded{scorer: s, origin: origin})
	metrics.ScorerLoaded.Set(1)
}

// LoadFile reads a model artifact and swaps it in. On failure the current
// scorer is kept.
func (p *Predictor) LoadFile(path string) error {
	m, err := LoadLogisticModel(path)
	if err != nil {
		return err
	}
	p.Swap(m, path)
	return nil
}

// Available reports whether a scorer is loaded.
func (p *Predictor) Available() bool {
	return p.current.Load() != nil
}

// Origin returns where the current scorer came from, or "" in simulation mode.
func (p *Predictor) Origin() string {
	if l := p.current.Load(); l != nil {
		return l.origin
	}
	return ""
}

// Predict scores a transaction with the current model.
func (p *Predictor) Predict(ctx context.Context, amount float64, hour int, location string) (Prediction, error) {
	_, span := traces.StartSpan(ctx, "ml.Predict",
		traces.Amount(amount),
		attribute.Int("hour_of_day", hour),
	)
	defer span.End()

	l := p.current.Load()
	if l == nil {
		return Prediction{}, ErrModelUnavailable
	}

	f, err := BuildFeatures(amount, hour, location, l.scorer.Encoder())
	if err != nil {
		span.RecordError(err)
		return Prediction{}, err
	}

	prob, err := l.scorer.Probability(f.Vector())
	if err != nil {
		span.RecordError(err)
		return Prediction{}, fmt.Errorf("ml: score: %w", err)
	}
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}

	pred := Classify(prob)
	metrics.MLPredictionsTotal.WithLabelValues(string(pred.RiskLevel)).Inc()
	span.SetAttributes(attribute.Float64("fraud_probability", prob))
	return pred, nil
}
