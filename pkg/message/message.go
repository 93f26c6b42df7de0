// Package message defines the typed, multimodal message model shared by
// the conversation manager, stream processor, and provider adapters.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType distinguishes the kind of content carried by a Part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// Part is one piece of multimodal content. Exactly one of Text/Data is
// meaningful depending on Type.
type Part struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	Data      string   `json:"data,omitempty"` // base64 or URL, per MediaType convention
	MediaType string   `json:"media_type,omitempty"`
}

func Text(s string) Part { return Part{Type: PartText, Text: s} }

func Image(data, mediaType string) Part {
	return Part{Type: PartImage, Data: data, MediaType: mediaType}
}

func Audio(data, mediaType string) Part {
	return Part{Type: PartAudio, Data: data, MediaType: mediaType}
}

// Message is a single turn in a Conversation. Content is a slice of Parts;
// system and assistant messages must be text-only (enforced by the
// constructors in pkg/conversation, not here — Message itself is a plain
// data type).
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Flatten concatenates all text parts, ignoring non-text parts. Used by
// token estimators and compaction, which operate on text volume only.
func (m Message) Flatten() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// IsTextOnly reports whether every part of the message is text.
func (m Message) IsTextOnly() bool {
	for _, p := range m.Parts {
		if p.Type != PartText {
			return false
		}
	}
	return true
}

func NewText(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{Text(text)}}
}

func NewMultipart(role Role, parts ...Part) Message {
	return Message{Role: role, Parts: parts}
}

// MediaHandle references a persisted media or spillover payload by ID
// rather than embedding raw bytes in the conversation, per spec.md §3's
// Lifecycle invariant on oversized gadget output.
type MediaHandle struct {
	ID        string `json:"id"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Path      string `json:"path,omitempty"`
}

// GadgetResultBody renders a gadget result as the message body the model
// will see, beginning with the end marker carrying name:invocationID so the
// model can correlate the result to its own call (spec.md §4.A).
func GadgetResultBody(endMarker, name, invocationID, body string, media []MediaHandle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s:%s\n", endMarker, name, invocationID)
	b.WriteString(body)
	for _, m := range media {
		fmt.Fprintf(&b, "\n[media %s: %s, %d bytes]", m.ID, m.MimeType, m.SizeBytes)
	}
	return b.String()
}

// CatalogEntry is the minimal shape the message package needs to render a
// gadget-catalog block; pkg/conversation.BuildCatalogMessage converts
// pkg/gadget's catalog entries into this type, so this package never
// imports pkg/gadget.
type CatalogEntry struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Examples    []string
}

// BuildCatalogBlock renders the gadget-catalog system block described in
// spec.md §4.A: one block describing every gadget's name, description,
// parameter schema, and examples.
func BuildCatalogBlock(startMarker, endMarker string, gadgets []CatalogEntry) string {
	var b strings.Builder
	b.WriteString("You have access to the following gadgets. Invoke one by emitting:\n\n")
	fmt.Fprintf(&b, "%sName:InvocationId\n<params>\n%sName:InvocationId\n\n", startMarker, endMarker)
	for _, g := range gadgets {
		fmt.Fprintf(&b, "## %s\n\n%s\n\nSchema:\n%s\n", g.Name, g.Description, prettyJSON(g.Schema))
		for _, ex := range g.Examples {
			fmt.Fprintf(&b, "\nExample:\n%s\n", ex)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
