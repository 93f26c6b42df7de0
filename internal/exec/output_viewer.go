package exec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

// outputViewerName is the gadget name the spillover stub in applySpillover
// tells the model to call; it must match exactly.
const outputViewerName = "GadgetOutputViewer"

const outputViewerSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string"}
  },
  "required": ["id"]
}`

// outputViewerGadget is the implicit gadget spec.md §3's Lifecycle section
// requires: when a gadget's output is too large to inline, applySpillover
// stores it and replaces the result with a stub naming this gadget and an
// ID; a later call here hands the stored content back verbatim, per §8
// scenario 5.
type outputViewerGadget struct {
	store SpilloverStore
}

func newOutputViewerGadget(store SpilloverStore) *outputViewerGadget {
	return &outputViewerGadget{store: store}
}

func (g *outputViewerGadget) Name() string { return outputViewerName }

func (g *outputViewerGadget) Description() string {
	return "Retrieves the full content of a gadget result that was too large to inline, by the id referenced in the truncation stub."
}

func (g *outputViewerGadget) Schema() json.RawMessage { return json.RawMessage(outputViewerSchema) }

func (g *outputViewerGadget) Examples() []string {
	return []string{`{"id": "4f9c9b2e-1234-4a5b-9c3d-abcdef012345"}`}
}

func (g *outputViewerGadget) Execute(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return gadget.Result{}, fmt.Errorf("%s: invalid parameters: %w", outputViewerName, err)
	}
	content, err := g.store.Get(ctx, args.ID)
	if err != nil {
		return gadget.Result{}, fmt.Errorf("%s: %w", outputViewerName, err)
	}
	return gadget.Result{Content: content}, nil
}
