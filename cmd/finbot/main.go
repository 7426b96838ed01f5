package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finbot-ai/finbot/finbot/chat"
	"github.com/finbot-ai/finbot/finbot/config"
	"github.com/finbot-ai/finbot/finbot/db"
	"github.com/finbot-ai/finbot/finbot/harness"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
	"github.com/finbot-ai/finbot/finbot/harness/tools"
	"github.com/finbot-ai/finbot/finbot/llm"
	"github.com/finbot-ai/finbot/finbot/market"
	"github.com/finbot-ai/finbot/finbot/retrieval"
	"github.com/finbot-ai/finbot/finbot/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search standard locations)")
	repl := flag.Bool("repl", false, "run an interactive terminal session instead of the HTTP server")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if *debug {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).
		With().Timestamp().Logger()
	log.Logger = logger

	if err := run(logger, *configPath, *repl); err != nil {
		logger.Fatal().Err(err).Msg("finbot exited with error")
	}
}

func run(logger zerolog.Logger, configPath string, repl bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info().Str("fallback", cfg.Finbot.Fallback).Msg("configuration loaded")

	database, err := db.Connect(cfg.Finbot.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	router, err := buildRouter(context.Background(), cfg, database, logger)
	if err != nil {
		return err
	}

	if repl {
		return runREPL(router, logger)
	}
	return runServer(cfg, router, logger)
}

// buildRouter wires the keyword branches plus the configured fallback path.
// Exactly one of the retrieval chain and the tool loop is active per
// deployment.
func buildRouter(ctx context.Context, cfg *config.Config, database *sql.DB, logger zerolog.Logger) (*chat.Router, error) {
	gateway := market.NewYahooGateway(cfg.Market, logger)
	provider := llm.NewOpenAIClient(cfg.LLM, logger)

	var fallback chat.Handler
	switch cfg.Finbot.Fallback {
	case "rag":
		store, err := retrieval.NewPassageStore(ctx, database)
		if err != nil {
			return nil, err
		}
		embedder := llm.NewEmbeddingClient(cfg.Embedding, logger)
		engine := retrieval.NewEngine(store, embedder, cfg.Retrieval, cfg.Embedding.BatchSize, logger)
		opts := harnessports.Options{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}
		fallback = chat.NewRAGChain(engine, provider, cfg.Retrieval.K, opts, logger)

	case "tools":
		registry := harness.NewRegistry(
			tools.NewStockInfoTool(gateway, logger),
			tools.NewTradeStockTool(logger),
		)
		factory := harness.NewFactory(cfg.LLM, cfg.Harness, database, logger)
		orchestrator, err := factory.CreateOrchestrator(ctx, provider, registry, chat.ToolSystemPrompt)
		if err != nil {
			return nil, err
		}
		fallback = chat.NewToolLoop(orchestrator)

	default:
		return nil, fmt.Errorf("unsupported fallback %q", cfg.Finbot.Fallback)
	}

	return chat.NewRouter(gateway, fallback, cfg.Market.NewsLimit, logger), nil
}

func runServer(cfg *config.Config, router *chat.Router, logger zerolog.Logger) error {
	srv := server.New(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// runREPL reads queries from stdin until EOF or "exit".
func runREPL(router *chat.Router, logger zerolog.Logger) error {
	session := chat.NewSession(router, logger)
	fmt.Println("FinBot: " + chat.Greeting)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("User: ")
		if !scanner.Scan() {
			break
		}
		input := scanner.Text()
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}
		reply := session.Submit(context.Background(), input)
		fmt.Println("FinBot: " + reply.Text)
	}
	return scanner.Err()
}
