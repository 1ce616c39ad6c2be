// Package replay paces a bounded historical dataset over a live channel as
// if the transactions were arriving in real time.
//
// A session loads the dataset once, bounds it to a random sample, then for
// each record waits one interval, scores the record, and emits one payload.
// Emission is strictly sequential. Cancelling the session context during a
// wait ends the session before the next payload is built.
package replay

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/metrics"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/traces"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultSampleSize = 1000
)

// Emitter delivers one payload to the viewer. Implementations send the
// value as a single message and return once it is written.
type Emitter interface {
	Emit(ctx context.Context, v any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, v any) error

func (f EmitterFunc) Emit(ctx context.Context, v any) error { return f(ctx, v) }

// Outcome describes how a session ended.
type Outcome string

const (
	OutcomeExhausted      Outcome = "exhausted"
	OutcomeDisconnected   Outcome = "disconnected"
	OutcomeDatasetMissing Outcome = "dataset_missing"
	OutcomeFailed         Outcome = "failed"
)

// Summary reports what one session did.
type Summary struct {
	DatasetSize int
	SampleSize  int
	Emitted     int
	Outcome     Outcome
}

// Streamer runs replay sessions. It holds no per-session state and is safe
// for concurrent use by any number of sessions.
type Streamer struct {
	source     Source
	engine     *risk.Engine
	normalizer *risk.Normalizer
	interval   time.Duration
	sampleSize int
	now        func() time.Time
	intn       func(int) int
}

// NewStreamer creates a streamer over source with the default 2s cadence
// and 1000-record bound.
func NewStreamer(source Source, engine *risk.Engine, normalizer *risk.Normalizer) *Streamer {
	return &Streamer{
		source:     source,
		engine:     engine,
		normalizer: normalizer,
		interval:   DefaultInterval,
		sampleSize: DefaultSampleSize,
		now:        time.Now,
		intn:       rand.IntN,
	}
}

// WithInterval sets the pause before each payload.
func (s *Streamer) WithInterval(d time.Duration) *Streamer {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithSampleSize sets the per-session record bound.
func (s *Streamer) WithSampleSize(n int) *Streamer {
	if n > 0 {
		s.sampleSize = n
	}
	return s
}

// WithClock sets the wall clock used for payload stamps.
func (s *Streamer) WithClock(now func() time.Time) *Streamer {
	s.now = now
	return s
}

// WithRand sets the index source used for sampling.
func (s *Streamer) WithRand(intn func(int) int) *Streamer {
	s.intn = intn
	return s
}

// Source returns the dataset source.
func (s *Streamer) Source() Source {
	return s.source
}

// Run executes one session, emitting through em until the working set is
// exhausted, ctx is cancelled, or an emit fails. A missing dataset emits a
// single ErrorPayload and returns ErrDatasetMissing.
func (s *Streamer) Run(ctx context.Context, em Emitter) (Summary, error) {
	ctx, span := traces.StartSpan(ctx, "replay.Session", traces.SessionID(logging.SessionID(ctx)))
	defer span.End()

	metrics.ActiveReplaySessions.Inc()
	defer metrics.ActiveReplaySessions.Dec()

	sum, err := s.run(ctx, em)
	metrics.ReplaySessionsTotal.WithLabelValues(string(sum.Outcome)).Inc()
	span.SetAttributes(
		attribute.Int("replay.emitted", sum.Emitted),
		attribute.String("replay.outcome", string(sum.Outcome)),
	)
	if err != nil && sum.Outcome == OutcomeFailed {
		span.RecordError(err)
	}
	return sum, err
}

func (s *Streamer) run(ctx context.Context, em Emitter) (Summary, error) {
	log := logging.L(ctx)

	records, err := s.source.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrDatasetMissing) {
			log.Error("replay dataset missing", "dataset", s.source.Name())
			if emitErr := em.Emit(ctx, ErrorPayload{Error: s.source.Name() + " missing"}); emitErr != nil {
				return Summary{Outcome: OutcomeDisconnected}, emitErr
			}
			return Summary{Outcome: OutcomeDatasetMissing}, err
		}
		return Summary{Outcome: OutcomeFailed}, err
	}

	working := Sample(records, s.sampleSize, s.intn)
	sum := Summary{DatasetSize: len(records), SampleSize: len(working)}
	log.Info("replay session started",
		"dataset", s.source.Name(),
		"dataset_size", sum.DatasetSize,
		"sample_size", sum.SampleSize,
		"interval", s.interval.String(),
	)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for i, rec := range working {
		if i > 0 {
			timer.Reset(s.interval)
		}
		select {
		case <-ctx.Done():
			sum.Outcome = OutcomeDisconnected
			return sum, ctx.Err()
		case <-timer.C:
		}
		// Both channels may be ready; never emit after cancellation.
		if err := ctx.Err(); err != nil {
			sum.Outcome = OutcomeDisconnected
			return sum, err
		}

		tx, v := s.engine.Assess(s.normalizer, rec)
		if err := em.Emit(ctx, NewPayload(tx, v, s.now())); err != nil {
			sum.Outcome = OutcomeDisconnected
			return sum, err
		}
		sum.Emitted++
		metrics.ReplayPayloadsTotal.Inc()
		metrics.ObserveVerdict("replay", string(v.Label), v.Score, v.Source == risk.SourceHeuristic)
	}

	sum.Outcome = OutcomeExhausted
	log.Info("replay session exhausted", "emitted", sum.Emitted)
	return sum, nil
}
