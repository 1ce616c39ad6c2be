package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/scoring"
)

// --- Test helpers ---

func newTestHandlers(t *testing.T, model ml.Scorer, client *APIClient) *Handlers {
	t.Helper()
	svc := scoring.NewService(risk.NewEngine(), ml.NewPredictor(model))
	return NewHandlers(svc, client)
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// score_transaction
// ============================================================

func TestHandleScoreTransaction(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"amount": 7000.0, "location": "Russia", "merchant_type": "CryptoExchangeToken",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Risk level: Fraud")
	assert.Contains(t, text, "Risk score: 0.99")
	assert.Contains(t, text, "High-risk location: Russia")
}

func TestHandleScoreTransaction_Legitimate(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"amount": 12.5, "location": "Paris", "merchant_type": "Bakery",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Risk level: Normal")
	assert.Contains(t, text, "Transaction appears legitimate")
}

func TestHandleScoreTransaction_MissingArguments(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{"location": "Paris"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "amount")
	assert.Contains(t, text, "merchant_type")
}

// ============================================================
// classify_context
// ============================================================

func TestHandleClassifyContext(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	tests := []struct {
		hour     float64
		location string
		want     []string
	}{
		{3, "HighRisk", []string{"HIGH_NIGHT_RISK", "Location risk: HIGH"}},
		{6, "MediumRisk", []string{"EARLY_MORNING_RISK", "Location risk: MEDIUM"}},
		{22, "highrisk", []string{"LATE_NIGHT_RISK", "Location risk: LOW"}},
		{12, "London", []string{"NORMAL_TIME_RISK", "Location risk: LOW"}},
	}

	for _, tt := range tests {
		result, err := h.HandleClassifyContext(context.Background(), makeRequest(map[string]any{
			"hour_of_day": tt.hour, "location": tt.location,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		text := resultText(t, result)
		for _, w := range tt.want {
			assert.Contains(t, text, w)
		}
	}
}

func TestHandleClassifyContext_InvalidHour(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	for _, hour := range []any{24.0, -1.0, 3.5} {
		result, err := h.HandleClassifyContext(context.Background(), makeRequest(map[string]any{
			"hour_of_day": hour, "location": "London",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError, "hour %v", hour)
	}

	result, err := h.HandleClassifyContext(context.Background(), makeRequest(map[string]any{"location": "London"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// predict_fraud
// ============================================================

func TestHandlePredictFraud_SimulationMode(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandlePredictFraud(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn-1", "location": "HighRisk", "hour_of_day": 2.0, "amount": 50.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Mode: simulation")
	assert.Contains(t, text, "Model: not loaded")
	assert.Contains(t, text, "Heuristic: Normal")
	assert.Contains(t, text, "HIGH_NIGHT_RISK")
}

func TestHandlePredictFraud_WithModel(t *testing.T) {
	model, err := ml.NewLogisticModel([]float64{0, 0, 0, 0, 0}, 2, []string{"London"})
	require.NoError(t, err)
	h := newTestHandlers(t, model, nil)

	result, err := h.HandlePredictFraud(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn-2", "location": "London", "hour_of_day": 14.0, "amount": 20.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Mode: model")
	assert.Contains(t, text, "Model: FRAUD (p=0.8808, risk HIGH)")
}

func TestHandlePredictFraud_UnknownLocation(t *testing.T) {
	model, err := ml.NewLogisticModel([]float64{0, 0, 0, 0, 0}, 0, []string{"London"})
	require.NoError(t, err)
	h := newTestHandlers(t, model, nil)

	result, err := h.HandlePredictFraud(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn-3", "location": "Atlantis", "hour_of_day": 1.0, "amount": 1.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Atlantis")
}

func TestHandlePredictFraud_Validation(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandlePredictFraud(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn-4", "location": "London", "amount": -5.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "hour_of_day")
	assert.Contains(t, text, "amount")
}

// ============================================================
// recent_verdicts
// ============================================================

func TestHandleRecentVerdicts(t *testing.T) {
	var gotLimit string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/verdicts", r.URL.Path)
		gotLimit = r.URL.Query().Get("limit")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"verdicts": []map[string]any{
				{"risk_level": "Fraud", "risk_score": 0.99, "amount": 7000, "location": "Russia", "endpoint": "predict", "transaction_id": "txn-9"},
				{"risk_level": "Normal", "risk_score": 0.05, "amount": 12, "location": "Paris", "endpoint": "analyze"},
			},
			"count": 2,
		})
	}))
	defer ts.Close()

	h := newTestHandlers(t, nil, NewAPIClient(Config{APIURL: ts.URL}))
	result, err := h.HandleRecentVerdicts(context.Background(), makeRequest(map[string]any{"limit": 2.0}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "2", gotLimit)
	text := resultText(t, result)
	assert.Contains(t, text, "2 recent verdicts")
	assert.Contains(t, text, "1. Fraud 0.99  $7000.00 at Russia (predict)")
	assert.Contains(t, text, "Transaction: txn-9")
	assert.Contains(t, text, "2. Normal 0.05  $12.00 at Paris (analyze)")
}

func TestHandleRecentVerdicts_Empty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verdicts": [], "count": 0}`))
	}))
	defer ts.Close()

	h := newTestHandlers(t, nil, NewAPIClient(Config{APIURL: ts.URL}))
	result, err := h.HandleRecentVerdicts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No verdicts recorded yet.", resultText(t, result))
}

func TestHandleRecentVerdicts_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_request",
			"message": "limit must be a positive integer",
		})
	}))
	defer ts.Close()

	h := newTestHandlers(t, nil, NewAPIClient(Config{APIURL: ts.URL}))
	result, err := h.HandleRecentVerdicts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "API error (400): limit must be a positive integer")
}

func TestHandleRecentVerdicts_NoClient(t *testing.T) {
	h := newTestHandlers(t, nil, nil)

	result, err := h.HandleRecentVerdicts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNewMCPServer(t *testing.T) {
	svc := scoring.NewService(risk.NewEngine(), ml.NewPredictor(nil))
	assert.NotNil(t, NewMCPServer(svc, Config{}, "test"))
	assert.NotNil(t, NewMCPServer(svc, Config{APIURL: "http://localhost:8001"}, "test"))
}
