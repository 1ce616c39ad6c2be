// Package audit keeps a best-effort trail of the verdicts returned by the
// live scoring endpoints. Recording happens off the request path; a failed
// write never changes a response.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/risklens/internal/circuitbreaker"
	"github.com/mbd888/risklens/internal/metrics"
	"github.com/mbd888/risklens/internal/retry"
	"github.com/mbd888/risklens/internal/risk"
)

// MaxListLimit caps ListRecent page sizes.
const MaxListLimit = 500

var (
	// ErrQueueFull is returned by Submit when the writer is saturated.
	ErrQueueFull = errors.New("audit: queue full")
	// ErrRejected wraps a store refusal of the entry itself (bad value,
	// constraint violation). The store is healthy; retrying cannot help.
	ErrRejected = errors.New("audit: entry rejected")
)

// Entry is one recorded verdict.
type Entry struct {
	ID            string      `json:"id"`
	RequestID     string      `json:"request_id,omitempty"`
	Endpoint      string      `json:"endpoint"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Amount        float64     `json:"amount"`
	Location      string      `json:"location"`
	MerchantType  string      `json:"merchant_type"`
	Label         risk.Label  `json:"risk_level"`
	Score         float64     `json:"risk_score"`
	Source        risk.Source `json:"source"`
	Explanation   string      `json:"explanation"`
	MLRiskLevel   string      `json:"ml_risk_level,omitempty"`
	MLProbability *float64    `json:"ml_fraud_probability,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// NewEntry builds an entry from a canonical transaction and its verdict.
func NewEntry(endpoint string, tx risk.Transaction, v risk.Verdict) *Entry {
	return &Entry{
		Endpoint:     endpoint,
		Amount:       tx.Amount,
		Location:     tx.Location,
		MerchantType: tx.MerchantCategory,
		Label:        v.Label,
		Score:        v.Score,
		Source:       v.Source,
		Explanation:  v.Explanation,
	}
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e *Entry) error
	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Recorder writes entries to a Store from a background worker with retry.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	queue    chan *Entry
	attempts int
	backoff  time.Duration
	breaker  *circuitbreaker.Breaker
	done     chan struct{}
}

// NewRecorder creates a recorder with a queue of the given depth.
func NewRecorder(store Store, logger *slog.Logger, depth int) *Recorder {
	if depth <= 0 {
		depth = 1024
	}
	return &Recorder{
		store:    store,
		logger:   logger,
		queue:    make(chan *Entry, depth),
		attempts: 3,
		backoff:  100 * time.Millisecond,
		breaker:  circuitbreaker.New("audit_store", 5, 30*time.Second),
		done:     make(chan struct{}),
	}
}

// Store returns the underlying store for reads.
func (r *Recorder) Store() Store {
	return r.store
}

// Submit queues e without blocking. IDs and timestamps are filled in here
// so the entry reflects when the verdict was returned.
func (r *Recorder) Submit(e *Entry) error {
	if e.ID == "" {
		e.ID = "vrd_" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
		return nil
	default:
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.Warn("audit queue full, dropping verdict", "id", e.ID)
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// within a short grace period.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case e := <-r.queue:
					r.write(flushCtx, e)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(ctx context.Context, e *Entry) {
	// One breaker outcome per entry, after retries are spent. A rejected
	// entry proves the store answered, so it counts as a success.
	var rejected error
	err := r.breaker.Do(func() error {
		err := retry.Do(ctx, r.attempts, r.backoff, func() error {
			return r.store.Record(ctx, e)
		})
		if errors.Is(err, ErrRejected) {
			rejected = err
			return nil
		}
		return err
	})
	switch {
	case rejected != nil:
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.Warn("audit entry rejected", "id", e.ID, "error", rejected)
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.Debug("audit store unavailable, dropping verdict", "id", e.ID)
	case err != nil:
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.Warn("audit write failed", "id", e.ID, "error", err)
	}
}
