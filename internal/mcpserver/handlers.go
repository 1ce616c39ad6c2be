package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/risklens/internal/audit"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/scoring"
	"github.com/mbd888/risklens/internal/validation"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	service *scoring.Service
	client  *APIClient
}

// NewHandlers creates a new Handlers instance. client may be nil.
func NewHandlers(service *scoring.Service, client *APIClient) *Handlers {
	return &Handlers{service: service, client: client}
}

// HandleScoreTransaction runs the heuristic engine.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := scoring.AnalyzeRequest{
		Location:     req.GetString("location", ""),
		MerchantType: req.GetString("merchant_type", ""),
	}
	if amount, ok := getFloat(args, "amount"); ok {
		in.Amount = &amount
	}
	if errs := in.Validate(); len(errs) > 0 {
		return mcp.NewToolResultError(formatValidation(errs)), nil
	}

	resp := h.service.Analyze(ctx, in)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk level: %s\n", resp.RiskLevel)
	fmt.Fprintf(&sb, "Risk score: %.2f\n", resp.RiskScore)
	fmt.Fprintf(&sb, "Location risk: %s\n", resp.LocationRiskFactor)
	fmt.Fprintf(&sb, "Explanation: %s", resp.Explanation)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleClassifyContext buckets hour and location.
func (h *Handlers) HandleClassifyContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location := req.GetString("location", "")
	if location == "" {
		return mcp.NewToolResultError("location is required"), nil
	}
	hour, err := hourArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c := risk.Annotate(hour, location)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Time risk: %s\nLocation risk: %s", c.TimeRisk, c.LocationRisk)), nil
}

// HandlePredictFraud runs the model and the heuristic engine side by side.
func (h *Handlers) HandlePredictFraud(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := scoring.PredictRequest{
		TransactionID: req.GetString("transaction_id", ""),
		Location:      req.GetString("location", ""),
		MerchantType:  req.GetString("merchant_type", ""),
	}
	if amount, ok := getFloat(args, "amount"); ok {
		in.Amount = &amount
	}
	if _, present := args["hour_of_day"]; present {
		hour, err := hourArg(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.HourOfDay = &hour
	}
	if errs := in.Validate(); len(errs) > 0 {
		return mcp.NewToolResultError(formatValidation(errs)), nil
	}

	resp, err := h.service.Predict(ctx, in)
	if err != nil {
		if errors.Is(err, ml.ErrUnknownLocation) {
			return mcp.NewToolResultError(fmt.Sprintf("Location %q was not seen when the model was trained", in.Location)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Prediction failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction: %s\n", resp.TransactionID)
	fmt.Fprintf(&sb, "Mode: %s\n", resp.Mode)
	if resp.FraudProbability != nil {
		fmt.Fprintf(&sb, "Model: %s (p=%.4f, risk %s)\n", resp.Prediction, *resp.FraudProbability, resp.RiskLevel)
	} else {
		sb.WriteString("Model: not loaded\n")
	}
	fmt.Fprintf(&sb, "Heuristic: %s (%.2f) %s\n", resp.Heuristic.Label, resp.Heuristic.Score, resp.Heuristic.Explanation)
	fmt.Fprintf(&sb, "Time risk: %s\nLocation risk: %s", resp.TimeRiskFactor, resp.LocationRiskFactor)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleRecentVerdicts lists audited verdicts from the API.
func (h *Handlers) HandleRecentVerdicts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return mcp.NewToolResultError("No RiskLens API configured"), nil
	}
	limit := 10
	if f, ok := getFloat(req.GetArguments(), "limit"); ok && f >= 1 {
		limit = int(f)
	}

	verdicts, err := h.client.RecentVerdicts(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list verdicts: %v", err)), nil
	}
	return mcp.NewToolResultText(formatVerdictList(verdicts)), nil
}

// --- Formatting helpers ---

func formatVerdictList(verdicts []audit.Entry) string {
	if len(verdicts) == 0 {
		return "No verdicts recorded yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d recent verdicts:\n\n", len(verdicts))
	for i, v := range verdicts {
		fmt.Fprintf(&sb, "%d. %s %.2f  $%.2f at %s (%s)\n", i+1,
			v.Label, v.Score, v.Amount, v.Location, v.Endpoint)
		if v.TransactionID != "" {
			fmt.Fprintf(&sb, "   Transaction: %s\n", v.TransactionID)
		}
	}
	return sb.String()
}

func formatValidation(errs validation.ValidationErrors) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Field + ": " + e.Message
	}
	return "Invalid arguments: " + strings.Join(parts, "; ")
}

// hourArg reads hour_of_day as a whole number in [0, 23].
func hourArg(args map[string]any) (int, error) {
	f, ok := getFloat(args, "hour_of_day")
	if !ok {
		return 0, errors.New("hour_of_day is required")
	}
	if f != math.Trunc(f) || f < 0 || f > 23 {
		return 0, fmt.Errorf("hour_of_day must be a whole number between 0 and 23, got %g", f)
	}
	return int(f), nil
}

// getFloat reads a numeric argument. JSON-RPC arguments decode as
// float64, but in-process callers may pass int or json.Number.
func getFloat(m map[string]any, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
