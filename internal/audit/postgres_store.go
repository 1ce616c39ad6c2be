package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mbd888/risklens/internal/retry"
	"github.com/mbd888/risklens/internal/risk"
)

// PostgresStore persists entries in the verdict_audit table created by
// migrations/00001_verdict_audit.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks connectivity for the readiness probe.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Record(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO verdict_audit (
			id, request_id, endpoint, transaction_id,
			amount, location, merchant_type,
			risk_level, risk_score, source, explanation,
			ml_risk_level, ml_fraud_probability, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, nullString(e.RequestID), e.Endpoint, nullString(e.TransactionID),
		e.Amount, e.Location, e.MerchantType,
		string(e.Label), e.Score, string(e.Source), e.Explanation,
		nullString(e.MLRiskLevel), nullFloat(e.MLProbability), e.CreatedAt,
	)
	if err != nil {
		if isRejection(err) {
			return retry.Permanent(fmt.Errorf("%w: %w", ErrRejected, err))
		}
		return fmt.Errorf("insert verdict audit: %w", err)
	}
	return nil
}

// isRejection reports data exceptions (class 22) and integrity constraint
// violations (class 23): the row is bad, the database is fine.
func isRejection(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	class := pqErr.Code.Class()
	return class == "22" || class == "23"
}

func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, request_id, endpoint, transaction_id,
		       amount, location, merchant_type,
		       risk_level, risk_score, source, explanation,
		       ml_risk_level, ml_fraud_probability, created_at
		FROM verdict_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list verdict audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var (
			e                        Entry
			requestID, txID, mlLevel sql.NullString
			label, source            string
			mlProb                   sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &requestID, &e.Endpoint, &txID,
			&e.Amount, &e.Location, &e.MerchantType,
			&label, &e.Score, &source, &e.Explanation,
			&mlLevel, &mlProb, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verdict audit: %w", err)
		}
		e.RequestID = requestID.String
		e.TransactionID = txID.String
		e.MLRiskLevel = mlLevel.String
		e.Label = risk.Label(label)
		e.Source = risk.Source(source)
		if mlProb.Valid {
			v := mlProb.Float64
			e.MLProbability = &v
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
