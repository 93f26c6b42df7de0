// Package parser implements the incremental, marker-based gadget-call
// tokenizer described in spec.md §4.C. It has no teacher file to adapt from
// directly (the teacher's providers rely on vendor-native function calling)
// and is built fresh, in the surrounding codebase's idiom: a small explicit
// state machine over a growing byte buffer, sentinel errors wrapped with
// %w, and no lookahead beyond the longest configured marker.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Default markers per spec.md §6.
const (
	DefaultStartMarker = "<<<GADGET_START>>>"
	DefaultEndMarker   = "<<<GADGET_END>>>"
)

var (
	// ErrUnterminatedBlock is returned when the stream ends while a block
	// is still open.
	ErrUnterminatedBlock = errors.New("parser: unterminated gadget block at end of stream")
	// ErrDuplicateInvocation is returned when a start marker reuses an
	// invocation ID already seen in the same response, whether or not that
	// earlier block has closed (spec.md §9 Open
	// Question, resolved in SPEC_FULL.md).
	ErrDuplicateInvocation = errors.New("parser: duplicate invocation ID")
	// ErrMalformedHeader is returned when a marker line isn't `Name:ID`.
	ErrMalformedHeader = errors.New("parser: malformed marker header")
)

// EventKind tags the kind of Event emitted by the parser.
type EventKind int

const (
	EventText EventKind = iota
	EventGadgetCall
)

// Event is emitted by Parser.Feed/Close as the buffer is drained.
type Event struct {
	Kind EventKind

	// Valid when Kind == EventText.
	Text string

	// Valid when Kind == EventGadgetCall.
	Name         string
	InvocationID string
	RawParams    string
	Parameters   json.RawMessage
	ParseError   error
	RawText      string
}

type state int

const (
	stateText state = iota
	stateInBlockHeader
	stateInBlockBody
)

// Parser is a streaming, stateful tokenizer. It is not safe for concurrent
// use; one Parser belongs to one in-flight LLM response.
type Parser struct {
	startMarker string
	endMarker   string

	state state
	buf   strings.Builder // bytes not yet classified

	seenInvocations map[string]struct{}

	curName         string
	curInvocationID string
	curBodyBuilder  strings.Builder
}

// Option configures a Parser via functional options, matching the
// surrounding codebase's configuration idiom.
type Option func(*Parser)

func WithMarkers(start, end string) Option {
	return func(p *Parser) {
		p.startMarker = start
		p.endMarker = end
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		startMarker:     DefaultStartMarker,
		endMarker:       DefaultEndMarker,
		seenInvocations: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends a chunk of raw provider text and returns every Event that
// can now be determined without further input. Text events are emitted as
// early as possible; only a suffix that could still become the start of a
// marker is held back, per spec.md §4.C.
func (p *Parser) Feed(chunk string) []Event {
	p.buf.WriteString(chunk)
	return p.drain(false)
}

// Close signals end of stream. An unterminated block is surfaced as a
// parse-error EventGadgetCall carrying ErrUnterminatedBlock; any remaining
// held-back text is flushed as a final text event.
func (p *Parser) Close() []Event {
	return p.drain(true)
}

func (p *Parser) drain(final bool) []Event {
	var events []Event
	for {
		content := p.buf.String()
		switch p.state {
		case stateText:
			marker := p.startMarker
			idx := strings.Index(content, marker)
			if idx >= 0 {
				if idx > 0 {
					events = append(events, Event{Kind: EventText, Text: content[:idx]})
				}
				rest := content[idx+len(marker):]
				p.resetBuf(rest)
				p.state = stateInBlockHeader
				continue
			}
			// No marker found. Emit everything except a tail that could
			// still grow into a start marker on the next Feed.
			if final {
				if len(content) > 0 {
					events = append(events, Event{Kind: EventText, Text: content})
				}
				p.resetBuf("")
				return events
			}
			overlap := longestPrefixOverlap(content, marker)
			cut := len(content) - overlap
			if cut > 0 {
				events = append(events, Event{Kind: EventText, Text: content[:cut]})
				p.resetBuf(content[cut:])
			}
			return events

		case stateInBlockHeader:
			nl := strings.IndexByte(content, '\n')
			if nl < 0 {
				if final {
					events = append(events, p.headerError(content, ErrMalformedHeader))
					return events
				}
				return events
			}
			header := content[:nl]
			rest := content[nl+1:]
			name, invID, err := splitHeader(header)
			if err != nil {
				events = append(events, p.headerError(header, err))
				p.state = stateText
				p.resetBuf(rest)
				continue
			}
			if _, seen := p.seenInvocations[invID]; seen {
				events = append(events, p.headerError(header, ErrDuplicateInvocation))
				p.state = stateText
				p.resetBuf(rest)
				continue
			}
			p.seenInvocations[invID] = struct{}{}
			p.curName = name
			p.curInvocationID = invID
			p.curBodyBuilder.Reset()
			p.state = stateInBlockBody
			p.resetBuf(rest)
			continue

		case stateInBlockBody:
			endHeader := p.endMarker + p.curName + ":" + p.curInvocationID
			idx := strings.Index(content, endHeader)
			if idx >= 0 {
				p.curBodyBuilder.WriteString(content[:idx])
				events = append(events, p.finishBlock())
				rest := content[idx+len(endHeader):]
				p.state = stateText
				p.resetBuf(rest)
				continue
			}
			if final {
				p.curBodyBuilder.WriteString(content)
				events = append(events, p.blockError(ErrUnterminatedBlock))
				p.resetBuf("")
				return events
			}
			// Hold back enough to detect a split end marker.
			holdBack := len(endHeader) - 1
			if holdBack < 0 {
				holdBack = 0
			}
			if len(content) <= holdBack {
				return events
			}
			cut := len(content) - holdBack
			p.curBodyBuilder.WriteString(content[:cut])
			p.resetBuf(content[cut:])
			return events
		}
	}
}

func (p *Parser) resetBuf(s string) {
	p.buf.Reset()
	p.buf.WriteString(s)
}

func splitHeader(header string) (name, invocationID string, err error) {
	idx := strings.IndexByte(header, ':')
	if idx < 0 {
		return "", "", ErrMalformedHeader
	}
	name = header[:idx]
	invocationID = header[idx+1:]
	if name == "" || invocationID == "" {
		return "", "", ErrMalformedHeader
	}
	return name, invocationID, nil
}

func (p *Parser) finishBlock() Event {
	name := p.curName
	invID := p.curInvocationID
	rawParams := p.curBodyBuilder.String()

	params, parseErr := parseBody(rawParams, name, invID)

	return Event{
		Kind:         EventGadgetCall,
		Name:         name,
		InvocationID: invID,
		RawParams:    rawParams,
		Parameters:   params,
		ParseError:   parseErr,
		RawText:      p.startMarker + name + ":" + invID + "\n" + rawParams + p.endMarker + name + ":" + invID,
	}
}

func (p *Parser) blockError(err error) Event {
	name := p.curName
	invID := p.curInvocationID
	return Event{
		Kind:         EventGadgetCall,
		Name:         name,
		InvocationID: invID,
		RawParams:    p.curBodyBuilder.String(),
		ParseError:   err,
	}
}

func (p *Parser) headerError(header string, err error) Event {
	return Event{
		Kind:       EventGadgetCall,
		RawParams:  header,
		ParseError: fmt.Errorf("%w: %q", err, header),
	}
}

// longestPrefixOverlap returns the length of the longest suffix of s that
// is a proper prefix of marker — the amount of s that must be held back
// because it could still grow into marker on the next Feed call.
func longestPrefixOverlap(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
