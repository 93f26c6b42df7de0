// Package compaction implements the external compaction collaborator
// referenced by spec.md §4.I step 2: when a conversation approaches its
// model's context window, a contiguous prefix of older turns is replaced
// with one summary message.
//
// Reconciles two teacher subsystems into one seam: the stateless token
// estimation/splitting helpers from internal/compaction/compaction.go
// supply the algorithms; internal/agent/compaction.go's session-stateful
// CompactionManager/CompactionState supplies the idle/pending state machine
// so compaction is checked, not re-triggered, every iteration.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/wrenlabs/gadgetrun/pkg/conversation"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

const (
	// charsPerToken approximates token count from character count absent a
	// model-specific tokenizer, matching the teacher's EstimateTokens.
	charsPerToken = 4

	// defaultContextWindow is the fallback when no model-specific window is
	// configured.
	defaultContextWindow = 100_000

	// defaultKeepTail is how many of the most recent messages are always
	// preserved uncompacted, so the model retains immediate context.
	defaultKeepTail = 4
)

// State tracks whether this conversation has pending/in-progress compaction,
// mirroring the teacher's CompactionState enum.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
)

// Config configures a Manager.
type Config struct {
	Enabled bool

	// ThresholdPercent is the context-window usage percentage (0-100) that
	// triggers compaction. Default: 80.
	ThresholdPercent int

	// ContextWindowTokens is the model's context window; falls back to
	// defaultContextWindow when zero.
	ContextWindowTokens int

	// KeepTail is how many trailing messages are never compacted.
	KeepTail int
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ThresholdPercent:    80,
		ContextWindowTokens: defaultContextWindow,
		KeepTail:            defaultKeepTail,
	}
}

// Event is returned by CheckAndCompact when a compaction actually ran,
// matching spec.md's "CompactionEvent" vocabulary.
type Event struct {
	Reason          string
	MessagesRemoved int
	Summary         message.Message
}

// Summarizer produces a text summary of a run of messages. Implementations
// typically wrap a cheap/fast model call; a nil Summarizer makes Manager
// fall back to a structural summary with no model involvement.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message) (string, error)
}

// Manager is the per-Agent compaction collaborator.
type Manager struct {
	cfg        Config
	summarizer Summarizer
	state      State
}

func NewManager(cfg Config, summarizer Summarizer) *Manager {
	if cfg.ContextWindowTokens <= 0 {
		cfg.ContextWindowTokens = defaultContextWindow
	}
	if cfg.KeepTail <= 0 {
		cfg.KeepTail = defaultKeepTail
	}
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = DefaultConfig().ThresholdPercent
	}
	return &Manager{cfg: cfg, summarizer: summarizer, state: StateIdle}
}

// CheckAndCompact evaluates the conversation's estimated token usage against
// the configured budget and, if over threshold, replaces every message
// except the trailing KeepTail with one summary message. iteration is
// accepted for parity with spec.md's signature and future rate-limiting but
// is not currently consulted.
func (m *Manager) CheckAndCompact(ctx context.Context, conv *conversation.Conversation, iteration int) (*Event, bool) {
	if !m.cfg.Enabled || m.state == StateInProgress {
		return nil, false
	}

	messages := conv.GetMessages()
	if len(messages) <= m.cfg.KeepTail {
		return nil, false
	}

	total := estimateMessagesTokens(messages)
	usagePercent := (total * 100) / m.cfg.ContextWindowTokens
	if usagePercent < m.cfg.ThresholdPercent {
		return nil, false
	}

	m.state = StateInProgress
	defer func() { m.state = StateIdle }()

	cut := len(messages) - m.cfg.KeepTail
	toSummarize := messages[:cut]

	text, err := m.summarize(ctx, toSummarize)
	if err != nil {
		text = structuralSummary(toSummarize)
	}
	summaryMsg := message.NewText(message.RoleAssistant, text)

	if err := conv.ReplacePrefix(cut, summaryMsg); err != nil {
		return nil, false
	}

	return &Event{
		Reason:          fmt.Sprintf("context usage %d%% >= threshold %d%%", usagePercent, m.cfg.ThresholdPercent),
		MessagesRemoved: cut,
		Summary:         summaryMsg,
	}, true
}

func (m *Manager) summarize(ctx context.Context, messages []message.Message) (string, error) {
	if m.summarizer == nil {
		return structuralSummary(messages), nil
	}
	return m.summarizer.Summarize(ctx, messages)
}

// estimateTokens approximates a message's token count from its flattened
// text length, matching the teacher's ~4-chars-per-token heuristic.
func estimateTokens(m message.Message) int {
	chars := len(m.Flatten())
	return (chars + charsPerToken - 1) / charsPerToken
}

func estimateMessagesTokens(messages []message.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// structuralSummary builds a summary with no model call, used as the
// fallback when no Summarizer is configured or summarization fails.
func structuralSummary(messages []message.Message) string {
	if len(messages) == 0 {
		return "No prior history."
	}
	var roles strings.Builder
	counts := map[message.Role]int{}
	for _, m := range messages {
		counts[m.Role]++
	}
	for _, role := range []message.Role{message.RoleUser, message.RoleAssistant, message.RoleSystem} {
		if n := counts[role]; n > 0 {
			fmt.Fprintf(&roles, "%d %s, ", n, role)
		}
	}
	return fmt.Sprintf("[Compacted %d earlier messages (%s) to stay within the context budget.]",
		len(messages), strings.TrimSuffix(roles.String(), ", "))
}
