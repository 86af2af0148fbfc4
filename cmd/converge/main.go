// Command converge runs a single task through the agent: it builds the tool
// registry over a workspace directory, drives the model conversation to
// completion, and prints the result with token and cost totals.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dkershaw/converge/internal/agent"
	"github.com/dkershaw/converge/internal/config"
	"github.com/dkershaw/converge/internal/providers"
)

func main() {
	_ = godotenv.Load()

	var (
		prompt    = flag.String("prompt", "", "task prompt (required)")
		taskCtx   = flag.String("context", "", "optional auxiliary context for the task")
		workspace = flag.String("workspace", "", "workspace directory (default: current directory)")
		modelID   = flag.String("model", envOr("CONVERGE_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0"), "model identifier")
		provider  = flag.String("provider", envOr("CONVERGE_PROVIDER", "bedrock"), "model provider: bedrock or anthropic")
		region    = flag.String("region", os.Getenv("AWS_REGION"), "AWS region for bedrock")
		system    = flag.String("system", "", "system prompt")
		maxTokens = flag.Int("max-tokens", 4096, "max output tokens per turn")
		temp      = flag.Float64("temperature", 0.3, "sampling temperature")
		stream    = flag.Bool("stream", false, "stream model output")
		toolList  = flag.String("tools", "fs_read,fs_write,fs_list,grep,find,execute_bash", "comma-separated tools to enable")
	)
	flag.Parse()

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: converge -prompt \"...\" [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ws := *workspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("resolve working directory: %v", err)
		}
		ws = cwd
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		log.Fatalf("resolve workspace: %v", err)
	}

	cfg := &config.Config{
		ModelID:      *modelID,
		Provider:     *provider,
		Region:       *region,
		MaxTokens:    *maxTokens,
		Temperature:  float32(*temp),
		SystemPrompt: *system,
		WorkspaceDir: ws,
		AllowedTools: splitTools(*toolList),
		Streaming:    *stream,
		Pricing:      defaultPricing(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := providers.New(ctx, cfg.Provider, cfg.Region)
	if err != nil {
		log.Fatalf("build model client: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	hooks := agent.Hooks{agent.LoggerHook{L: logger}}
	if *stream {
		hooks = append(hooks, printerHook{})
	}

	a, err := agent.New(cfg, client, hooks)
	if err != nil {
		log.Fatalf("build agent: %v", err)
	}

	a.Submit(agent.NewTask(*prompt, *taskCtx), agent.PriorityNormal)
	a.Close()

	a.Run(ctx, func(res agent.TaskResult) {
		if *stream {
			fmt.Println()
		}
		fmt.Println(res.Summary)
		fmt.Printf("\nstatus=%s tokens: in=%d out=%d total=%d cost=%.6f %s\n",
			res.Status, res.TokenStats.Input, res.TokenStats.Output, res.TokenStats.Total,
			res.Cost.TotalCost, res.Cost.Currency)
		if res.Error != "" {
			fmt.Printf("error: %s\n", res.Error)
		}
	})
}

// printerHook writes stream deltas straight to stdout.
type printerHook struct {
	agent.NopHook
}

func (printerHook) OnStreamDelta(_ context.Context, delta string) {
	fmt.Print(delta)
}

func splitTools(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultPricing covers the models the agent is commonly pointed at; the
// accountant warns once and prices at zero for anything else.
func defaultPricing() map[string]config.Pricing {
	return map[string]config.Pricing{
		"anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1K: 0.003, OutputPer1K: 0.015, Currency: "USD"},
		"anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPer1K: 0.0008, OutputPer1K: 0.004, Currency: "USD"},
		"anthropic.claude-3-opus-20240229-v1:0":     {InputPer1K: 0.015, OutputPer1K: 0.075, Currency: "USD"},
		"claude-3-5-sonnet-20241022":                {InputPer1K: 0.003, OutputPer1K: 0.015, Currency: "USD"},
		"claude-3-5-haiku-20241022":                 {InputPer1K: 0.0008, OutputPer1K: 0.004, Currency: "USD"},
	}
}
