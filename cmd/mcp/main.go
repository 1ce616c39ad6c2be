// RiskLens MCP Server - exposes transaction scoring as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/mcpserver"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/scoring"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	_ = godotenv.Load()

	// stdout carries the MCP protocol; logs go to stderr.
	logger := logging.NewWithWriter(os.Stderr, envOrDefault("LOG_LEVEL", "warn"), "text")

	predictor := ml.NewPredictor(nil)
	modelPath := envOrDefault("MODEL_PATH", "risklens_model.json")
	if err := predictor.LoadFile(modelPath); err != nil {
		logger.Warn("model unavailable, running in simulation mode", "path", modelPath, "error", err)
	}

	svc := scoring.NewService(risk.NewEngine(), predictor)
	cfg := mcpserver.Config{
		APIURL: os.Getenv("RISKLENS_API_URL"),
	}

	s := mcpserver.NewMCPServer(svc, cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
