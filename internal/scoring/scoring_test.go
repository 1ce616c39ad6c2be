package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/risklens/internal/audit"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/realtime"
	"github.com/mbd888/risklens/internal/risk"
)

type capture struct {
	mu       sync.Mutex
	verdicts []realtime.VerdictData
	entries  []*audit.Entry
}

func (c *capture) BroadcastVerdict(v realtime.VerdictData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts = append(c.verdicts, v)
}

func (c *capture) Submit(e *audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func newTestService(t *testing.T, model ml.Scorer) (*Service, *capture) {
	t.Helper()
	c := &capture{}
	svc := NewService(risk.NewEngine(), ml.NewPredictor(model)).WithPublisher(c).WithAuditor(c)
	return svc, c
}

func testModel(t *testing.T, bias float64) *ml.LogisticModel {
	t.Helper()
	m, err := ml.NewLogisticModel([]float64{0, 0, 0, 0, 0}, bias, []string{"London", "HighRisk", "Tokyo"})
	require.NoError(t, err)
	return m
}

func ptr[T any](v T) *T { return &v }

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

func TestAnalyze_LegitimateTransaction(t *testing.T) {
	svc, c := newTestService(t, nil)

	resp := svc.Analyze(context.Background(), AnalyzeRequest{Amount: ptr(50.0), Location: "Paris", MerchantType: "Starbucks"})

	assert.Equal(t, risk.LabelNormal, resp.RiskLevel)
	assert.Equal(t, 0.05, resp.RiskScore)
	assert.Equal(t, "Transaction appears legitimate", resp.Explanation)
	assert.Equal(t, risk.LocationRiskLow, resp.LocationRiskFactor)
	assert.Empty(t, resp.TimeRiskFactor)

	require.Len(t, c.verdicts, 1)
	assert.Equal(t, EndpointAnalyze, c.verdicts[0].Endpoint)
	require.Len(t, c.entries, 1)
	assert.Equal(t, "Paris", c.entries[0].Location)
}

func TestAnalyze_AllSignalsWithClock(t *testing.T) {
	svc, _ := newTestService(t, nil)

	resp := svc.Analyze(context.Background(), AnalyzeRequest{
		Amount: ptr(7000.0), Location: "Russia", MerchantType: "CryptoExchangeToken", Time: "03:15:00",
	})

	assert.Equal(t, risk.LabelFraud, resp.RiskLevel)
	assert.Equal(t, 0.99, resp.RiskScore)
	assert.Equal(t,
		"High amount ($7000.0) | Very high value transaction | High-risk location: Russia | High-risk token/merchant: CryptoExchangeToken",
		resp.Explanation)
	assert.Equal(t, risk.TimeRiskHighNight, resp.TimeRiskFactor)
}

func TestAnalyzeHandler(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := setupRouter(svc)

	w := post(t, r, "/analyze", map[string]any{"amount": 1500, "location": "London", "merchant_type": "Amazon"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Normal", body["risk_level"])
	assert.InDelta(t, 0.25, body["risk_score"], 1e-9)
	assert.Equal(t, "Transaction appears legitimate", body["explanation"])
}

func TestAnalyzeHandler_Validation(t *testing.T) {
	svc, c := newTestService(t, nil)
	r := setupRouter(svc)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing amount", map[string]any{"location": "London", "merchant_type": "Amazon"}, "amount"},
		{"negative amount", map[string]any{"amount": -1, "location": "London", "merchant_type": "Amazon"}, "amount"},
		{"missing merchant", map[string]any{"amount": 1, "location": "London"}, "merchant_type"},
		{"bad clock", map[string]any{"amount": 1, "location": "London", "merchant_type": "Amazon", "time": "25:00"}, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, r, "/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"field":"`+tt.field+`"`)
		})
	}
	assert.Empty(t, c.verdicts, "rejected requests must not publish verdicts")
}

func TestAnalyzeHandler_MalformedJSON(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(`{"amount": "lots"`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

func TestPredict_SimulationModeStillScores(t *testing.T) {
	svc, c := newTestService(t, nil)
	assert.Equal(t, ModeSimulation, svc.Mode())

	resp, err := svc.Predict(context.Background(), PredictRequest{
		TransactionID: "txn-1", Location: "HighRisk", HourOfDay: ptr(3), Amount: ptr(2000.0),
	})
	require.NoError(t, err)

	assert.Equal(t, ModeSimulation, resp.Mode)
	assert.Nil(t, resp.FraudProbability)
	assert.Empty(t, resp.Prediction)
	assert.Equal(t, risk.LabelNormal, resp.Heuristic.Label)
	assert.Equal(t, 0.25, resp.Heuristic.Score)
	assert.Equal(t, risk.TimeRiskHighNight, resp.TimeRiskFactor)
	assert.Equal(t, risk.LocationRiskHigh, resp.LocationRiskFactor)

	require.Len(t, c.entries, 1)
	assert.Equal(t, "txn-1", c.entries[0].TransactionID)
	assert.Nil(t, c.entries[0].MLProbability)
}

func TestPredict_WithModel(t *testing.T) {
	svc, c := newTestService(t, testModel(t, 2))
	assert.Equal(t, ModeModel, svc.Mode())

	resp, err := svc.Predict(context.Background(), PredictRequest{
		TransactionID: "txn-2", Location: "London", HourOfDay: ptr(12), Amount: ptr(20.0), MerchantType: "Amazon",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeModel, resp.Mode)
	assert.Equal(t, ml.LabelFraud, resp.Prediction)
	assert.Equal(t, ml.RiskHigh, resp.RiskLevel)
	require.NotNil(t, resp.FraudProbability)
	assert.InDelta(t, 0.8808, *resp.FraudProbability, 1e-4)
	// Heuristic verdict is reported independently.
	assert.Equal(t, risk.LabelNormal, resp.Heuristic.Label)

	require.Len(t, c.verdicts, 1)
	require.NotNil(t, c.verdicts[0].Prediction)
	require.NotNil(t, c.entries[0].MLProbability)
	assert.Equal(t, "HIGH", c.entries[0].MLRiskLevel)
}

func TestPredictHandler_ResponseShape(t *testing.T) {
	svc, _ := newTestService(t, testModel(t, 0))
	r := setupRouter(svc)

	w := post(t, r, "/predict", map[string]any{
		"transaction_id": "txn-3", "location": "Tokyo", "hour_of_day": 23, "amount": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "txn-3", body["transaction_id"])
	assert.Equal(t, "NORMAL", body["prediction"])
	assert.Equal(t, "MEDIUM", body["risk_level"])
	assert.InDelta(t, 0.5, body["fraud_probability"], 1e-9)
	assert.Equal(t, "LATE_NIGHT_RISK", body["time_risk_factor"])
	assert.Equal(t, "LOW", body["location_risk_factor"])
	assert.Equal(t, "model", body["mode"])
	assert.Contains(t, body, "heuristic")
}

func TestPredictHandler_SimulationOmitsModelFields(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := setupRouter(svc)

	w := post(t, r, "/predict", map[string]any{
		"transaction_id": "txn-4", "location": "London", "hour_of_day": 0, "amount": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "prediction")
	assert.NotContains(t, body, "fraud_probability")
	assert.Equal(t, "simulation", body["mode"])
}

func TestPredictHandler_UnknownLocation(t *testing.T) {
	svc, c := newTestService(t, testModel(t, 0))
	r := setupRouter(svc)

	w := post(t, r, "/predict", map[string]any{
		"transaction_id": "txn-5", "location": "Atlantis", "hour_of_day": 10, "amount": 5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_location")
	assert.Empty(t, c.verdicts)
}

func TestPredictHandler_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r := setupRouter(svc)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"hour too large", map[string]any{"transaction_id": "t", "location": "London", "hour_of_day": 24, "amount": 1}, "hour_of_day"},
		{"hour negative", map[string]any{"transaction_id": "t", "location": "London", "hour_of_day": -1, "amount": 1}, "hour_of_day"},
		{"missing hour", map[string]any{"transaction_id": "t", "location": "London", "amount": 1}, "hour_of_day"},
		{"negative amount", map[string]any{"transaction_id": "t", "location": "London", "hour_of_day": 1, "amount": -0.01}, "amount"},
		{"missing id", map[string]any{"location": "London", "hour_of_day": 1, "amount": 1}, "transaction_id"},
		{"missing location", map[string]any{"transaction_id": "t", "hour_of_day": 1, "amount": 1}, "location"},
		{"id longer than audit column", map[string]any{"transaction_id": strings.Repeat("t", 129), "location": "London", "hour_of_day": 1, "amount": 1}, "transaction_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, r, "/predict", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"field":"`+tt.field+`"`)
		})
	}
}

func TestPredictRequest_TransactionIDLength(t *testing.T) {
	hour, amount := 1, 10.0
	req := PredictRequest{Location: "London", HourOfDay: &hour, Amount: &amount}

	req.TransactionID = strings.Repeat("t", MaxTransactionIDLength)
	assert.Empty(t, req.Validate())

	req.TransactionID = strings.Repeat("t", MaxTransactionIDLength+1)
	errs := req.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "transaction_id", errs[0].Field)
	assert.Equal(t, "exceeds maximum length of 128", errs[0].Message)
}

func TestParseClockHour(t *testing.T) {
	tests := []struct {
		in   string
		hour int
		ok   bool
	}{
		{"00:00", 0, true},
		{"23:59:59", 23, true},
		{"09:30", 9, true},
		{"9:30", 0, false},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"", 0, false},
		{"12:00:00:00", 0, false},
	}

	for _, tt := range tests {
		hour, ok := parseClockHour(tt.in)
		if ok != tt.ok || hour != tt.hour {
			t.Errorf("parseClockHour(%q) = (%d, %v), want (%d, %v)", tt.in, hour, ok, tt.hour, tt.ok)
		}
	}
}
