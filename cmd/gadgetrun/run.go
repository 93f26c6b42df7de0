package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/gadgetrun/agent"
	"github.com/wrenlabs/gadgetrun/internal/config"
	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/media"
	"github.com/wrenlabs/gadgetrun/internal/observability"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/provider/anthropic"
	"github.com/wrenlabs/gadgetrun/internal/provider/bedrock"
	"github.com/wrenlabs/gadgetrun/internal/provider/gemini"
	"github.com/wrenlabs/gadgetrun/internal/provider/openai"
	"github.com/wrenlabs/gadgetrun/internal/sessions"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/internal/subagent"
	"github.com/wrenlabs/gadgetrun/internal/trace"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type runFlags struct {
	configPath   string
	prompt       string
	model        string
	gadgetsPath  string
	sessionStore string
	resumeID     string
	newSession   bool
	tracePath    string
}

func buildRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent loop against a configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", "gadgetrun.yaml", "path to the runtime config file")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "the user prompt to run (required unless --resume supplies history)")
	cmd.Flags().StringVar(&flags.model, "model", "", "override the provider:model descriptor from config (e.g. anthropic:claude-sonnet-4-5)")
	cmd.Flags().StringVar(&flags.gadgetsPath, "gadgets", "", "path to a gadget manifest JSON file")
	cmd.Flags().StringVar(&flags.sessionStore, "session-store", "", "path to a SQLite session store; empty disables persistence")
	cmd.Flags().StringVar(&flags.resumeID, "resume", "", "resume a prior session by ID (requires --session-store)")
	cmd.Flags().BoolVar(&flags.newSession, "new-session", false, "persist this run as a new session (requires --session-store)")
	cmd.Flags().StringVar(&flags.tracePath, "trace", "", "write a JSONL execution trace to this path")
	return cmd
}

func runRun(ctx context.Context, flags *runFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:  cfg.Observability.ServiceName,
		Endpoint:     cfg.Observability.TracingEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
	})
	defer shutdownTracer(ctx)

	dispatcher, err := buildDispatcher(ctx, cfg)
	if err != nil {
		return err
	}

	registry := gadget.NewRegistry()
	if flags.gadgetsPath != "" {
		manifest, err := loadGadgetManifest(flags.gadgetsPath)
		if err != nil {
			return err
		}
		if err := registerManifestGadgets(registry, manifest, cfg.Gadgets.AllowList); err != nil {
			return err
		}
	}

	mediaBackend, err := buildMediaBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build media backend: %w", err)
	}
	mediaStore := media.NewMediaStore(mediaBackend)
	spilloverStore := media.NewSpilloverStore(mediaBackend)

	execCfg := exec.DefaultConfig()
	if cfg.Executor.MaxConcurrent > 0 {
		execCfg.MaxConcurrent = cfg.Executor.MaxConcurrent
	}
	if cfg.Executor.DefaultTimeout > 0 {
		execCfg.DefaultTimeout = cfg.Executor.DefaultTimeout
	}
	if cfg.Executor.SpilloverBudget > 0 {
		execCfg.SpilloverBudget = cfg.Executor.SpilloverBudget
	}
	execCfg.MediaStore = mediaStore
	execCfg.SpilloverStore = spilloverStore
	execCfg.Logger = slog.Default()
	execCfg.RequestHumanInput = promptForHumanInput

	model := flags.model
	if model == "" {
		model = cfg.Providers.Default
	}

	if err := registry.Register(&gadget.Definition{Gadget: subagent.New(dispatcher, registry, model)}); err != nil {
		return fmt.Errorf("register subagent gadget: %w", err)
	}

	var sessionStore sessions.Store
	var sessionRecord *sessions.Record
	if flags.sessionStore != "" {
		sqliteStore, err := sessions.OpenSQLiteStore(flags.sessionStore)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer sqliteStore.Close()
		sessionStore = sqliteStore

		if flags.resumeID != "" {
			rec, err := sessionStore.Get(ctx, flags.resumeID)
			if err != nil {
				return fmt.Errorf("resume session %q: %w", flags.resumeID, err)
			}
			sessionRecord = rec
			if model == "" {
				model = rec.Metadata["model"]
			}
		} else if flags.newSession {
			sessionRecord = &sessions.Record{Metadata: map[string]string{"model": model}}
			if err := sessionStore.Create(ctx, sessionRecord); err != nil {
				return fmt.Errorf("create session: %w", err)
			}
		}
	}

	if flags.prompt == "" && sessionRecord == nil {
		return fmt.Errorf("run: --prompt is required unless resuming a session with history")
	}

	opts := []agent.Option{
		agent.WithProvider(dispatcher),
		agent.WithRegistry(registry),
		agent.WithModel(model),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithExecutorConfig(execCfg),
		agent.WithLogger(slog.Default()),
	}
	if cfg.Agent.AcknowledgeText != "" {
		opts = append(opts, agent.WithTextOnlyHandler(agent.TextOnlyTerminate))
	}

	a, err := agent.New(opts...)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}

	if sessionRecord != nil {
		conv := a.Conversation()
		for _, m := range sessionRecord.Messages {
			switch m.Role {
			case message.RoleAssistant:
				conv.AddAssistantMessage(m.Flatten())
			default:
				conv.AddUserMessage(m.Parts...)
			}
		}
	}
	if flags.prompt != "" {
		a.Conversation().AddUserText(flags.prompt)
	}

	var recorder *trace.Recorder
	if flags.tracePath != "" {
		recorder, err = trace.NewRecorderFile(flags.tracePath, "")
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer recorder.Close()
		unsubscribe := recorder.Attach(a.Tree().Bus())
		defer unsubscribe()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.RunStarted()
	start := time.Now()

	runCtx, span := tracer.TraceRun(ctx, "gadgetrun", model)
	defer span.End()

	events := a.Run(runCtx)
	for ev := range events {
		printEvent(ev)
	}

	reason := a.TerminationReason()
	metrics.RunCompleted(string(reason), time.Since(start).Seconds(), 0)
	if err := a.Err(); err != nil {
		logger.Error(ctx, "run ended with error", "reason", reason, "error", err)
	}

	if sessionStore != nil && sessionRecord != nil {
		if err := sessionStore.AppendMessages(ctx, sessionRecord.ID, a.Conversation().GetMessages()); err != nil {
			logger.Error(ctx, "failed to persist session", "session_id", sessionRecord.ID, "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "session saved: %s\n", sessionRecord.ID)
		}
	}

	if reason == agent.TerminationError {
		return a.Err()
	}
	return nil
}

func printEvent(ev stream.Event) {
	switch ev.Type {
	case stream.EventText:
		fmt.Print(ev.Text)
	case stream.EventThinking:
		fmt.Fprintf(os.Stderr, "[thinking] %s\n", ev.Text)
	case stream.EventGadgetCall:
		fmt.Fprintf(os.Stderr, "[gadget call] %s(%s)\n", ev.GadgetName, string(ev.Parameters))
	case stream.EventGadgetResult:
		content := ""
		if ev.Result != nil {
			content = ev.Result.Content
		}
		fmt.Fprintf(os.Stderr, "[gadget result] %s -> %s\n", ev.GadgetName, content)
	case stream.EventGadgetSkipped:
		fmt.Fprintf(os.Stderr, "[gadget skipped] %s: %s\n", ev.GadgetName, ev.SkipReason)
	case stream.EventSubagent:
		if inner, ok := ev.Subagent.(stream.Event); ok {
			fmt.Fprintf(os.Stderr, "[subagent] ")
			printEvent(inner)
			return
		}
		fmt.Fprintf(os.Stderr, "[subagent] %v\n", ev.Subagent)
	case stream.EventCompaction:
		fmt.Fprintf(os.Stderr, "[compaction] %v\n", ev.Compaction)
	case stream.EventStreamComplete:
		fmt.Println()
	}
}

func promptForHumanInput(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(os.Stderr, "\n[human input requested] %s\n> ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// buildDispatcher wires every provider adapter whose credentials are present
// in cfg into a single provider.Dispatcher, so "run" never has to know ahead
// of time which provider a --model override will select.
func buildDispatcher(ctx context.Context, cfg *config.Config) (*provider.Dispatcher, error) {
	var adapters []provider.Adapter

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		a, err := anthropic.New(anthropic.Config{APIKey: key, BaseURL: cfg.Providers.Anthropic.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		adapters = append(adapters, a)
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		a, err := openai.New(openai.Config{APIKey: key, BaseURL: cfg.Providers.OpenAI.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		adapters = append(adapters, a)
	}
	if key := cfg.Providers.Gemini.APIKey; key != "" {
		a, err := gemini.New(ctx, gemini.Config{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		adapters = append(adapters, a)
	}
	if cfg.Providers.Bedrock.Region != "" {
		a, err := bedrock.New(ctx, bedrock.Config{Region: cfg.Providers.Bedrock.Region})
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("run: no provider has credentials configured")
	}
	return provider.NewDispatcher(adapters...), nil
}

func buildMediaBackend(ctx context.Context, cfg *config.Config) (media.Backend, error) {
	switch cfg.Media.Backend {
	case "local":
		return media.NewLocal(cfg.Media.LocalPath)
	case "s3":
		return media.NewS3(ctx, media.S3Config{
			Bucket:   cfg.Media.S3.Bucket,
			Region:   cfg.Media.S3.Region,
			Endpoint: cfg.Media.S3.Endpoint,
			Prefix:   cfg.Media.S3.Prefix,
		})
	default:
		return media.NewMemory(), nil
	}
}
