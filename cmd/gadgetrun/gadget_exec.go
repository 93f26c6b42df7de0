package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

// gadgetManifest is the on-disk description of the gadgets a run exposes.
// spec.md §1 keeps gadget business logic out of the core entirely ("arbitrary
// user code behind the gadget contract"); this CLI's only concrete
// implementation of gadget.Gadget runs that external code as a subprocess,
// so the binary is runnable without embedding any specific gadget's logic.
type gadgetManifest struct {
	Gadgets []execGadgetSpec `json:"gadgets"`
}

type execGadgetSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Examples    []string        `json:"examples"`
	Command     string          `json:"command"`
	Args        []string        `json:"args"`
	TimeoutMS   int             `json:"timeout_ms"`
}

// loadGadgetManifest reads and parses a manifest file.
func loadGadgetManifest(path string) (*gadgetManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gadget manifest: read %s: %w", path, err)
	}
	var m gadgetManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gadget manifest: parse %s: %w", path, err)
	}
	return &m, nil
}

// execOutput is the JSON shape an exec gadget's command must write to
// stdout on success.
type execOutput struct {
	Content         string `json:"content"`
	MediaMimeType   string `json:"media_mime_type,omitempty"`
	MediaPayloadB64 string `json:"media_payload_base64,omitempty"`
	BreaksLoop      bool   `json:"breaks_loop,omitempty"`
}

// execGadget implements gadget.Gadget by running spec.Command once per
// invocation, writing the call's parameters to its stdin and reading an
// execOutput from its stdout. A non-zero exit or malformed stdout becomes
// the gadget's error.
type execGadget struct {
	spec execGadgetSpec
}

func newExecGadget(spec execGadgetSpec) *execGadget { return &execGadget{spec: spec} }

func (g *execGadget) Name() string            { return g.spec.Name }
func (g *execGadget) Description() string     { return g.spec.Description }
func (g *execGadget) Schema() json.RawMessage { return g.spec.Schema }
func (g *execGadget) Examples() []string      { return g.spec.Examples }

func (g *execGadget) Execute(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
	cmd := exec.CommandContext(ctx, g.spec.Command, g.spec.Args...)
	cmd.Stdin = bytes.NewReader(params)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return gadget.Result{}, ctx.Err()
		}
		return gadget.Result{}, fmt.Errorf("gadget %q: %w: %s", g.spec.Name, err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return gadget.Result{}, fmt.Errorf("gadget %q: parse output: %w", g.spec.Name, err)
	}

	result := gadget.Result{Content: out.Content, BreaksLoop: out.BreaksLoop}
	if out.MediaPayloadB64 != "" {
		payload, err := base64.StdEncoding.DecodeString(out.MediaPayloadB64)
		if err != nil {
			return gadget.Result{}, fmt.Errorf("gadget %q: decode media payload: %w", g.spec.Name, err)
		}
		result.MediaPayload = payload
		result.MediaMime = out.MediaMimeType
	}
	return result, nil
}

// registerManifestGadgets registers every gadget in m against reg, skipping
// names not present in allowList when allowList is non-empty.
func registerManifestGadgets(reg *gadget.Registry, m *gadgetManifest, allowList []string) error {
	allowed := func(name string) bool {
		if len(allowList) == 0 {
			return true
		}
		for _, a := range allowList {
			if a == name {
				return true
			}
		}
		return false
	}

	for _, spec := range m.Gadgets {
		if !allowed(spec.Name) {
			continue
		}
		def := &gadget.Definition{Gadget: newExecGadget(spec)}
		if spec.TimeoutMS > 0 {
			def.Timeout = spec.TimeoutMS
		}
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register gadget %q: %w", spec.Name, err)
		}
	}
	return nil
}
