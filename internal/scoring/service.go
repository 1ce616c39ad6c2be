// Package scoring is the live boundary around the risk engine and the
// model predictor: it validates canonical requests, runs both scoring
// paths, attaches context annotations, and publishes each verdict to the
// live feed and the audit trail.
package scoring

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mbd888/risklens/internal/audit"
	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/metrics"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/realtime"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/traces"
	"github.com/mbd888/risklens/internal/validation"
)

// Endpoints tag where a verdict was produced.
const (
	EndpointAnalyze = "analyze"
	EndpointPredict = "predict"
)

// Modes reported by Predict.
const (
	ModeModel      = "model"
	ModeSimulation = "simulation"
)

// MaxTransactionIDLength matches verdict_audit.transaction_id.
const MaxTransactionIDLength = 128

// Publisher receives every live verdict.
type Publisher interface {
	BroadcastVerdict(realtime.VerdictData)
}

// Auditor records live verdicts without blocking.
type Auditor interface {
	Submit(*audit.Entry) error
}

// AnalyzeRequest is the heuristic endpoint's input.
type AnalyzeRequest struct {
	Amount       *float64 `json:"amount"`
	Location     string   `json:"location"`
	MerchantType string   `json:"merchant_type"`
	Time         string   `json:"time,omitempty"` // "HH:MM" or "HH:MM:SS"
}

// Validate checks presence and ranges.
func (r *AnalyzeRequest) Validate() validation.ValidationErrors {
	checks := []validation.Rule{
		validation.Present("amount", r.Amount),
		validation.Required("location", r.Location),
		validation.MaxLength("location", r.Location, validation.MaxStringLength),
		validation.Required("merchant_type", r.MerchantType),
		validation.MaxLength("merchant_type", r.MerchantType, validation.MaxStringLength),
	}
	if r.Amount != nil {
		checks = append(checks, validation.NonNegative("amount", *r.Amount))
	}
	if r.Time != "" {
		checks = append(checks, func() *validation.ValidationError {
			if _, ok := parseClockHour(r.Time); !ok {
				return &validation.ValidationError{Field: "time", Message: "must be HH:MM or HH:MM:SS"}
			}
			return nil
		})
	}
	return validation.Validate(checks...)
}

// AnalyzeResponse is the heuristic verdict plus context annotations.
type AnalyzeResponse struct {
	RiskLevel          risk.Label        `json:"risk_level"`
	RiskScore          float64           `json:"risk_score"`
	Explanation        string            `json:"explanation"`
	Reasons            []string          `json:"reasons,omitempty"`
	TimeRiskFactor     risk.TimeRisk     `json:"time_risk_factor,omitempty"`
	LocationRiskFactor risk.LocationRisk `json:"location_risk_factor"`
}

// PredictRequest is the model endpoint's input.
type PredictRequest struct {
	TransactionID string   `json:"transaction_id"`
	Location      string   `json:"location"`
	HourOfDay     *int     `json:"hour_of_day"`
	Amount        *float64 `json:"amount"`
	MerchantType  string   `json:"merchant_type,omitempty"`
}

// Validate checks presence and ranges.
func (r *PredictRequest) Validate() validation.ValidationErrors {
	checks := []validation.Rule{
		validation.Required("transaction_id", r.TransactionID),
		validation.MaxLength("transaction_id", r.TransactionID, MaxTransactionIDLength),
		validation.Required("location", r.Location),
		validation.MaxLength("location", r.Location, validation.MaxStringLength),
		validation.MaxLength("merchant_type", r.MerchantType, validation.MaxStringLength),
		validation.Present("hour_of_day", r.HourOfDay),
		validation.IntRange("hour_of_day", r.HourOfDay, 0, 23),
		validation.Present("amount", r.Amount),
	}
	if r.Amount != nil {
		checks = append(checks, validation.NonNegative("amount", *r.Amount))
	}
	return validation.Validate(checks...)
}

// PredictResponse echoes the inputs and carries both verdicts. Model
// fields are empty in simulation mode.
type PredictResponse struct {
	Status        string  `json:"status"`
	TransactionID string  `json:"transaction_id"`
	Location      string  `json:"location"`
	HourOfDay     int     `json:"hour_of_day"`
	Amount        float64 `json:"amount"`
	MerchantType  string  `json:"merchant_type,omitempty"`

	Prediction       ml.Label     `json:"prediction,omitempty"`
	FraudProbability *float64     `json:"fraud_probability,omitempty"`
	RiskLevel        ml.RiskLevel `json:"risk_level,omitempty"`

	Heuristic risk.Verdict `json:"heuristic"`

	TimeRiskFactor     risk.TimeRisk     `json:"time_risk_factor"`
	LocationRiskFactor risk.LocationRisk `json:"location_risk_factor"`
	Mode               string            `json:"mode"`
}

// Service runs the live scoring paths.
type Service struct {
	engine    *risk.Engine
	predictor *ml.Predictor
	publisher Publisher
	auditor   Auditor
}

// NewService creates a service. publisher and auditor are optional.
func NewService(engine *risk.Engine, predictor *ml.Predictor) *Service {
	return &Service{engine: engine, predictor: predictor}
}

// WithPublisher sets the live feed sink.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithAuditor sets the audit sink.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// Predictor exposes the model holder for status and reload.
func (s *Service) Predictor() *ml.Predictor {
	return s.predictor
}

// Mode reports whether a trained model is loaded.
func (s *Service) Mode() string {
	if s.predictor.Available() {
		return ModeModel
	}
	return ModeSimulation
}

// Analyze scores a validated request with the heuristic engine. It never fails.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) AnalyzeResponse {
	amount := *req.Amount
	ctx, span := traces.StartSpan(ctx, "scoring.Analyze",
		traces.Amount(amount),
		traces.Location(req.Location),
		traces.Merchant(req.MerchantType),
	)
	defer span.End()

	v := s.engine.Score(amount, req.Location, req.MerchantType)
	span.SetAttributes(traces.Verdict(string(v.Label), v.Score)...)

	resp := AnalyzeResponse{
		RiskLevel:          v.Label,
		RiskScore:          v.Score,
		Explanation:        v.Explanation,
		Reasons:            v.Reasons,
		LocationRiskFactor: risk.ClassifyLocation(req.Location),
	}
	tx := risk.Transaction{Amount: amount, Location: req.Location, MerchantCategory: req.MerchantType}
	if hour, ok := parseClockHour(req.Time); ok {
		resp.TimeRiskFactor = risk.ClassifyHour(hour)
		tx.HourOfDay = &hour
	}

	logging.L(ctx).Info("transaction analyzed",
		"amount", amount,
		"location", req.Location,
		"merchant_type", req.MerchantType,
		"risk_level", string(v.Label),
		"risk_score", v.Score,
	)
	s.record(ctx, EndpointAnalyze, "", tx, v, nil)
	return resp
}

// Predict runs the model (when loaded) and the heuristic engine on a
// validated request. The two verdicts are reported side by side. Without a
// model the response is heuristic-only in simulation mode. A location the
// model was not trained on yields ml.ErrUnknownLocation.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (PredictResponse, error) {
	amount, hour := *req.Amount, *req.HourOfDay
	ctx, span := traces.StartSpan(ctx, "scoring.Predict",
		traces.TransactionID(req.TransactionID),
		traces.Amount(amount),
		traces.Location(req.Location),
	)
	defer span.End()

	annot := risk.Annotate(hour, req.Location)
	resp := PredictResponse{
		Status:             "success",
		TransactionID:      req.TransactionID,
		Location:           req.Location,
		HourOfDay:          hour,
		Amount:             amount,
		MerchantType:       req.MerchantType,
		Heuristic:          s.engine.Score(amount, req.Location, req.MerchantType),
		TimeRiskFactor:     annot.TimeRisk,
		LocationRiskFactor: annot.LocationRisk,
		Mode:               ModeSimulation,
	}

	pred, err := s.predictor.Predict(ctx, amount, hour, req.Location)
	switch {
	case err == nil:
		prob := pred.Probability
		resp.Prediction = pred.Label
		resp.FraudProbability = &prob
		resp.RiskLevel = pred.RiskLevel
		resp.Mode = ModeModel
	case errors.Is(err, ml.ErrModelUnavailable):
		logging.L(ctx).Debug("no model loaded, heuristic only", "transaction_id", req.TransactionID)
	default:
		span.RecordError(err)
		return PredictResponse{}, err
	}

	logging.L(ctx).Info("transaction predicted",
		"transaction_id", req.TransactionID,
		"mode", resp.Mode,
		"prediction", string(resp.Prediction),
		"heuristic_level", string(resp.Heuristic.Label),
	)

	tx := risk.Transaction{Amount: amount, Location: req.Location, MerchantCategory: req.MerchantType, HourOfDay: &hour}
	var predPtr *ml.Prediction
	if resp.Mode == ModeModel {
		predPtr = &pred
	}
	s.record(ctx, EndpointPredict, req.TransactionID, tx, resp.Heuristic, predPtr)
	return resp, nil
}

// record fans a verdict out to metrics, the live feed, and the audit trail.
func (s *Service) record(ctx context.Context, endpoint, txID string, tx risk.Transaction, v risk.Verdict, pred *ml.Prediction) {
	metrics.ObserveVerdict(endpoint, string(v.Label), v.Score, v.Source == risk.SourceHeuristic)

	if s.publisher != nil {
		s.publisher.BroadcastVerdict(realtime.VerdictData{
			TransactionID: txID,
			Endpoint:      endpoint,
			Transaction:   tx,
			Verdict:       v,
			Prediction:    pred,
		})
	}

	if s.auditor != nil {
		e := audit.NewEntry(endpoint, tx, v)
		e.RequestID = logging.RequestID(ctx)
		e.TransactionID = txID
		if pred != nil {
			prob := pred.Probability
			e.MLRiskLevel = string(pred.RiskLevel)
			e.MLProbability = &prob
		}
		// Submit logs and counts its own failures.
		_ = s.auditor.Submit(e)
	}
}

// parseClockHour extracts the hour from "HH:MM" or "HH:MM:SS".
func parseClockHour(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || len(p) != 2 || n < 0 {
			return 0, false
		}
		if (i == 0 && n > 23) || (i > 0 && n > 59) {
			return 0, false
		}
	}
	hour, _ := strconv.Atoi(parts[0])
	return hour, true
}
