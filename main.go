package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/loan-orchestrator-poc/server/internal/agent/engine"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph"
	"github.com/loan-orchestrator-poc/server/internal/agent/intent"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/repo"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
	"github.com/loan-orchestrator-poc/server/internal/agent/verification"
	"github.com/loan-orchestrator-poc/server/internal/core"
	"github.com/loan-orchestrator-poc/server/internal/observability"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
	pkgredis "github.com/loan-orchestrator-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the loan engine demo,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	Log         logx.LoggerOpts

	// Infrastructure
	Redis       pkgredis.Config
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9464"`

	// LLM provider; without a key every message goes through the fallback matcher
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Engine configs
	NLU           model.NLUModelConfig
	Conversation  model.ConversationConfig
	Underwriting  model.UnderwritingConfig
	Flow          model.FlowConfig
	BureauDefault int `envconfig:"BUREAU_DEFAULT_SCORE" default:"750"`
}

func main() {
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}
	envCfg.Log.Environment = envCfg.Environment
	logx.Init(envCfg.Log)

	if err := run(ctx, envCfg); err != nil {
		logx.Error().Err(err).Msg("Loan engine demo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, envCfg AppConfig) error {
	recorder, err := observability.NewPrometheus("loan-orchestrator")
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(envCfg.MetricsAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		_ = recorder.Shutdown(shutdownCtx)
	}()

	// left as a nil interface when Redis is not configured
	var rdb redis.UniversalClient
	if envCfg.Redis.Enabled() {
		client, err := envCfg.Redis.New()
		if err != nil {
			return fmt.Errorf("initialise redis client: %w", err)
		}
		defer client.Close()
		rdb = client
		logx.Info().Msg("Connected to Redis successfully")
	}

	sessions, err := repo.New(envCfg.Conversation, rdb)
	if err != nil {
		return err
	}

	policy := rules.PolicyFromConfig(envCfg.Underwriting)
	extractor := engine.NewExtractor(policy)

	var runner graph.Runner
	if envCfg.APIKey != "" {
		runner, err = graph.BuildIntentGraph(ctx, graph.Config{
			APIKey:       envCfg.APIKey,
			BaseURL:      envCfg.BaseURL,
			NLUModel:     envCfg.NLU,
			Conversation: envCfg.Conversation,
			Extractor:    extractor,
		})
		if err != nil {
			return fmt.Errorf("build intent graph: %w", err)
		}
	} else {
		logx.Warn().Msg("GEMINI_API_KEY not set, classifying with the fallback matcher only")
	}

	classifier := intent.NewClassifier(intent.Options{
		Runner:    runner,
		Config:    envCfg.NLU,
		Extractor: extractor,
		Recorder:  recorder,
	})
	verifier := verification.NewVerifier(verification.NewMockBureau(envCfg.BureauDefault), envCfg.Flow.VerificationTimeout)

	eng, err := engine.New(engine.Options{
		Repo:       sessions,
		Classifier: classifier,
		Verifier:   verifier,
		Policy:     policy,
		Flow:       envCfg.Flow,
		Recorder:   recorder,
	})
	if err != nil {
		return err
	}

	return demo(ctx, eng)
}

func demo(ctx context.Context, eng *engine.Engine) error {
	sessionID, err := eng.StartSession(ctx)
	if err != nil {
		return err
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{description: "All details in one sentence", query: "I need a loan of 5 lakhs, I earn 80k a month, salaried, based in Mumbai"},
		{description: "Interest question mid-flow", query: "what interest rate will I get?"},
		{description: "What-if on EMI", query: "what if I paid 8000 EMI?"},
		{description: "Change the amount", query: "actually make it 7 lakhs"},
		{description: "Confirm the change", query: "yes, go ahead"},
	}

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		resp, err := eng.HandleQuery(ctx, sessionID, test.query)
		if err != nil {
			return fmt.Errorf("query %d: %w", i+1, err)
		}
		printResponse(resp)

		// honour auto-advance the way a client would
		for resp.AutoAdvance != nil {
			time.Sleep(time.Duration(resp.AutoAdvance.DelaySeconds) * time.Second)
			resp, err = eng.HandleQuery(ctx, sessionID, model.ContinuationToken)
			if err != nil {
				return fmt.Errorf("continue after query %d: %w", i+1, err)
			}
			printResponse(resp)
		}
	}

	fmt.Println("\nDemo conversation completed")
	return nil
}

func printResponse(resp *model.Response) {
	fmt.Printf("[%s] %s\n", resp.Stage, resp.Text)
	if len(resp.Suggestions) > 0 {
		fmt.Printf("  suggestions: %v\n", resp.Suggestions)
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	return srv
}
