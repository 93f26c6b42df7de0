package agent

import (
	"log/slog"

	"github.com/wrenlabs/gadgetrun/internal/compaction"
	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/exectree"
	"github.com/wrenlabs/gadgetrun/internal/hooks"
	"github.com/wrenlabs/gadgetrun/internal/parser"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/pkg/conversation"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

// TextOnlyHandler names how Agent.Run reacts to an iteration that produced
// text but no gadget calls (spec.md §4.I step 9).
type TextOnlyHandler string

const (
	// TextOnlyTerminate ends the loop, matching a final answer.
	TextOnlyTerminate TextOnlyHandler = "terminate"
	// TextOnlyAcknowledge appends a synthetic user turn and continues the
	// loop, useful for agents that must always end on a gadget call.
	TextOnlyAcknowledge TextOnlyHandler = "acknowledge"
	// TextOnlyWaitForInput ends the current Run but leaves the conversation
	// open for a caller-supplied next user turn.
	TextOnlyWaitForInput TextOnlyHandler = "wait_for_input"
)

// TerminationReason is the closed set of ways Agent.Run can end, per
// spec.md §4.I.
type TerminationReason string

const (
	TerminationMaxIterations     TerminationReason = "max_iterations"
	TerminationBreakLoop         TerminationReason = "break_loop"
	TerminationTextOnlyTerminate TerminationReason = "text_only_terminate"
	TerminationWaitForInput      TerminationReason = "wait_for_input"
	TerminationControllerSkip    TerminationReason = "controller_skip"
	TerminationAbort             TerminationReason = "abort"
	TerminationError             TerminationReason = "error"
)

// AcknowledgeText is appended as a synthetic user turn by TextOnlyAcknowledge,
// prompting the model to continue acting instead of just talking.
const AcknowledgeText = "Continue working the task, or signal completion with a gadget call."

// Config bundles everything an Agent needs. Built via functional options
// over defaultConfig, matching the teacher's LoopConfig/DefaultLoopConfig
// pattern.
type Config struct {
	Provider provider.Adapter
	Registry *gadget.Registry

	Hooks        *hooks.Registry
	Tree         *exectree.Tree
	Conversation *conversation.Conversation
	Compaction   *compaction.Manager

	// InitialParentNodeID roots this Agent's LLM-call nodes under an
	// existing tree node instead of as a fresh root, per spec.md §4.F: a
	// subagent "shares the same tree instance" as its parent and "writes
	// under the parent node." Left empty, this Agent is its own tree root.
	InitialParentNodeID string

	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int

	TextOnlyHandler        TextOnlyHandler
	TextWithGadgetsHandler func(text string) (gadgetName, invocationID string, ok bool)

	ExecutorConfig exec.Config

	StartMarker string
	EndMarker   string

	Logger *slog.Logger
}

// Option configures a Config using the functional-options pattern used
// throughout this codebase.
type Option func(*Config)

func WithProvider(p provider.Adapter) Option { return func(c *Config) { c.Provider = p } }
func WithRegistry(r *gadget.Registry) Option { return func(c *Config) { c.Registry = r } }
func WithHooks(h *hooks.Registry) Option { return func(c *Config) { c.Hooks = h } }
func WithTree(t *exectree.Tree) Option { return func(c *Config) { c.Tree = t } }
func WithConversation(conv *conversation.Conversation) Option {
	return func(c *Config) { c.Conversation = conv }
}
func WithCompaction(m *compaction.Manager) Option { return func(c *Config) { c.Compaction = m } }
func WithInitialParentNodeID(id string) Option {
	return func(c *Config) { c.InitialParentNodeID = id }
}
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }
func WithTemperature(t float64) Option { return func(c *Config) { c.Temperature = t } }
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }
func WithMaxIterations(n int) Option { return func(c *Config) { c.MaxIterations = n } }
func WithTextOnlyHandler(h TextOnlyHandler) Option { return func(c *Config) { c.TextOnlyHandler = h } }
func WithTextWithGadgetsHandler(fn func(text string) (string, string, bool)) Option {
	return func(c *Config) { c.TextWithGadgetsHandler = fn }
}
func WithExecutorConfig(cfg exec.Config) Option { return func(c *Config) { c.ExecutorConfig = cfg } }
func WithMarkers(start, end string) Option {
	return func(c *Config) { c.StartMarker = start; c.EndMarker = end }
}
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

func defaultConfig() Config {
	return Config{
		Temperature:     1.0,
		MaxTokens:       4096,
		MaxIterations:   50,
		TextOnlyHandler: TextOnlyTerminate,
		StartMarker:     parser.DefaultStartMarker,
		EndMarker:       parser.DefaultEndMarker,
		ExecutorConfig:  exec.DefaultConfig(),
	}
}

// sanitizeConfig fills every collaborator left nil by the caller with a
// sensible default, mirroring the teacher's sanitizeLoopConfig.
func sanitizeConfig(cfg Config) Config {
	if cfg.Registry == nil {
		cfg.Registry = gadget.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hooks == nil {
		cfg.Hooks = hooks.NewRegistry(cfg.Logger)
	}
	if cfg.Tree == nil {
		cfg.Tree = exectree.New(exectree.NewEventBus(cfg.Logger))
	}
	if cfg.Conversation == nil {
		cfg.Conversation = conversation.New(conversation.WithEndMarker(cfg.EndMarker))
	}
	if cfg.Compaction == nil {
		cfg.Compaction = compaction.NewManager(compaction.DefaultConfig(), nil)
	}
	if cfg.ExecutorConfig.Logger == nil {
		cfg.ExecutorConfig.Logger = cfg.Logger
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultConfig().MaxIterations
	}
	return cfg
}
