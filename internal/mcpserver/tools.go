package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the RiskLens MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Score a card transaction with the RiskLens heuristic engine. "+
			"Returns a risk level (Normal, Suspicious, Fraud), a score between 0 and 0.99, "+
			"and the signals that fired. Use this for a quick, explainable verdict."),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount in dollars (e.g. 149.99)")),
	mcp.WithString("location",
		mcp.Required(),
		mcp.Description("Where the transaction happened (e.g. 'London', 'Russia')")),
	mcp.WithString("merchant_type",
		mcp.Required(),
		mcp.Description("Merchant or token label (e.g. 'Starbucks', 'CryptoExchangeToken')")),
)

var ToolClassifyContext = mcp.NewTool("classify_context",
	mcp.WithDescription(
		"Bucket the context of a transaction: time-of-day risk from the hour, "+
			"and location risk from the location label. Does not produce a verdict."),
	mcp.WithNumber("hour_of_day",
		mcp.Required(),
		mcp.Description("Hour of day, 0 to 23")),
	mcp.WithString("location",
		mcp.Required(),
		mcp.Description("Location label (e.g. 'HighRisk', 'MediumRisk', 'London')")),
)

var ToolPredictFraud = mcp.NewTool("predict_fraud",
	mcp.WithDescription(
		"Run the trained fraud model on a transaction. Returns FRAUD or NORMAL with a probability "+
			"and a HIGH/MEDIUM/LOW risk level, alongside the heuristic verdict. "+
			"Without a loaded model only the heuristic verdict is returned (simulation mode)."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Caller's identifier for the transaction")),
	mcp.WithString("location",
		mcp.Required(),
		mcp.Description("Location label; must be one the model was trained on")),
	mcp.WithNumber("hour_of_day",
		mcp.Required(),
		mcp.Description("Hour of day, 0 to 23")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount in dollars")),
	mcp.WithString("merchant_type",
		mcp.Description("Merchant or token label")),
)

var ToolRecentVerdicts = mcp.NewTool("recent_verdicts",
	mcp.WithDescription(
		"List the most recent verdicts recorded by a running RiskLens API, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of verdicts to return (default 10)")),
)
