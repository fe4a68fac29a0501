package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/seanankenbruck/lab-query/internal/cache"
	"github.com/seanankenbruck/lab-query/internal/config"
	"github.com/seanankenbruck/lab-query/internal/database"
	"github.com/seanankenbruck/lab-query/internal/llm"
	"github.com/seanankenbruck/lab-query/internal/processor"
)

type smokeQuestion struct {
	name   string
	prompt string
	mode   string
}

var questions = []smokeQuestion{
	{name: "Filtered select", prompt: "show reports with protein above 10 and fat below 5"},
	{name: "Average", prompt: "what is the average fat"},
	{name: "Count in window", prompt: "how many reports in the last 30 days"},
	{name: "Range", prompt: "weight between 100 and 150, lowest fat"},
	{name: "Freshness", prompt: "which items are expiring soon"},
	{name: "Top N", prompt: "top 5 protein"},
	{name: "LLM free text", prompt: "list the five heaviest items from this month", mode: processor.ModeLLM},
}

// Runs sample questions end to end against the configured database.
// Usage: smoke [labId]
func main() {
	fmt.Println("=== Lab Query Smoke Test ===")
	ctx := context.Background()

	labID := "1"
	if len(os.Args) > 1 {
		labID = os.Args[1]
	}

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Open(ctx, database.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.HealthCheck(ctx, db); err != nil {
		log.Fatalf("Database not ready (run `migrate up` and `migrate seed`): %v", err)
	}
	fmt.Println("✓ Database ready")

	qp := processor.NewQueryProcessor(
		database.NewPostgresExecutor(db, cfg.Query.Timeout),
		cache.NewResultCache(cache.Options{DefaultTTL: cfg.Query.CacheTTL}),
		processor.ProcessorConfig{CacheTTL: cfg.Query.CacheTTL, MaxRowLimit: cfg.Query.MaxRowLimit},
	)

	client, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.ClaudeAPIKey,
		Model:       llmModel(cfg.LLM),
		BaseURL:     cfg.LLM.OllamaEndpoint,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		MinInterval: cfg.LLM.MinInterval,
	})
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	if client != nil {
		qp.SetLLMClient(client)
		fmt.Printf("✓ LLM provider %s enabled\n", cfg.LLM.Provider)
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("RUNNING QUESTIONS FOR LAB %s\n", labID)
	fmt.Println(strings.Repeat("=", 50))

	var passed, ran int
	for i, q := range questions {
		if q.mode == processor.ModeLLM && client == nil {
			fmt.Printf("\n%d. %s: skipped (LLM_PROVIDER is none)\n", i+1, q.name)
			continue
		}
		ran++
		fmt.Printf("\n%d. %s\n   Prompt: %q\n", i+1, q.name, q.prompt)
		if runQuestion(ctx, qp, labID, q) {
			passed++
		}
	}

	fmt.Println("\nChecking cache...")
	payload, err := qp.ProcessQuery(ctx, &processor.QueryRequest{LabID: labID, Prompt: questions[0].prompt})
	if err != nil || !payload.Cached {
		fmt.Println("   ✗ Repeated question was not served from cache")
	} else {
		fmt.Println("   ✓ Repeated question served from cache")
	}

	fmt.Printf("\n%d/%d questions answered\n", passed, ran)
	if passed != ran {
		os.Exit(1)
	}
}

func runQuestion(ctx context.Context, qp *processor.QueryProcessor, labID string, q smokeQuestion) bool {
	start := time.Now()
	payload, err := qp.ProcessQuery(ctx, &processor.QueryRequest{LabID: labID, Prompt: q.prompt, Mode: q.mode})
	if err != nil {
		fmt.Printf("   ✗ %v\n", err)
		return false
	}

	fmt.Printf("   Statement: %s\n", truncateString(payload.Statement, 120))
	fmt.Printf("   Answer: %s\n", payload.AnswerText)
	fmt.Printf("   ✓ %d rows in %v\n", len(payload.AnswerTable), time.Since(start).Round(time.Millisecond))
	return true
}

func llmModel(cfg config.LLMConfig) string {
	if cfg.Provider == llm.ProviderClaude {
		return cfg.ClaudeModel
	}
	return cfg.OllamaModel
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
