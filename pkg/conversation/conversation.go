// Package conversation implements the conversation manager from spec.md
// §4.H: an ordered, mutable message history plus the gadget-result body
// formatting the model needs to correlate a result with its call.
package conversation

import (
	"fmt"
	"sync"

	"github.com/wrenlabs/gadgetrun/pkg/gadget"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// Conversation is an ordered, append-mostly message history. Safe for
// concurrent use: the agent loop reads it while a subagent gadget may be
// appending to a related conversation concurrently.
type Conversation struct {
	mu        sync.RWMutex
	messages  []message.Message
	endMarker string
}

// Option configures a Conversation via functional options.
type Option func(*Conversation)

// WithEndMarker overrides the default gadget end marker used when
// formatting a gadget-result message body.
func WithEndMarker(end string) Option {
	return func(c *Conversation) { c.endMarker = end }
}

func New(opts ...Option) *Conversation {
	c := &Conversation{
		endMarker: "<<<GADGET_END>>>",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMessages returns a copy of the current history, safe for the caller to
// range over without holding the Conversation's lock.
func (c *Conversation) GetMessages() []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]message.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the current message count.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// AddUserMessage appends a user turn built from pre-built multimodal parts;
// a plain string turn goes through AddUserText.
func (c *Conversation) AddUserMessage(textOrParts ...message.Part) {
	c.append(message.NewMultipart(message.RoleUser, textOrParts...))
}

// AddUserText is the common-case convenience over AddUserMessage for a
// plain string turn.
func (c *Conversation) AddUserText(text string) {
	c.append(message.NewText(message.RoleUser, text))
}

// AddAssistantMessage appends the model's final accumulated text for one
// iteration.
func (c *Conversation) AddAssistantMessage(text string) {
	c.append(message.NewText(message.RoleAssistant, text))
}

// AddGadgetCallResult appends one gadget result as a user-role message whose
// body begins with the end marker + name:invocationId, per spec.md §4.H, so
// the model's next turn parses it as a structured block. Called once per
// gadget.Result from an iteration, in call order (spec.md §4.I step 9).
func (c *Conversation) AddGadgetCallResult(name, invocationID string, body string, media []message.MediaHandle) {
	rendered := message.GadgetResultBody(c.endMarker, name, invocationID, body, media)
	c.append(message.NewText(message.RoleUser, rendered))
}

// AddSyntheticGadgetResult wraps plain text as a synthetic gadget-result
// call, used when a textWithGadgetsHandler is configured (spec.md §4.I
// step 9) instead of appending raw assistant text.
func (c *Conversation) AddSyntheticGadgetResult(gadgetName, invocationID, text string) {
	c.AddGadgetCallResult(gadgetName, invocationID, text, nil)
}

// ReplacePrefix replaces the first n messages with a single summary message,
// the primitive compaction is built on (spec.md §4.I step 2: "rewrite
// conversation" with a contiguous-prefix summary).
func (c *Conversation) ReplacePrefix(n int, summary message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n > len(c.messages) {
		return fmt.Errorf("conversation: ReplacePrefix(%d) out of range for %d messages", n, len(c.messages))
	}
	rest := append([]message.Message(nil), c.messages[n:]...)
	c.messages = append([]message.Message{summary}, rest...)
	return nil
}

func (c *Conversation) append(m message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// BuildCatalogMessage renders a system message listing the registry's
// gadgets, for callers that want to seed a conversation with the catalog
// block described in spec.md §4.A.
func BuildCatalogMessage(startMarker, endMarker string, reg *gadget.Registry) message.Message {
	entries := reg.AsCatalog()
	converted := make([]message.CatalogEntry, len(entries))
	for i, e := range entries {
		converted[i] = message.CatalogEntry{Name: e.Name, Description: e.Description, Schema: e.Schema, Examples: e.Examples}
	}
	return message.NewText(message.RoleSystem, message.BuildCatalogBlock(startMarker, endMarker, converted))
}
