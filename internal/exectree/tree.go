// Package exectree implements the hierarchical execution record and event
// bus from spec.md §4.F: every LLM call and gadget execution is a node in a
// tree keyed by ID (not pointer), with lazily recomputed subtree cost/token
// aggregation and synchronous, registration-ordered event subscription.
package exectree

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeKind distinguishes the two ExecutionNode variants from spec.md §3.
type NodeKind string

const (
	NodeLLMCall NodeKind = "llm_call"
	NodeGadget  NodeKind = "gadget"
)

// Node is the tagged record spec.md §3 describes. Fields not relevant to
// Kind are left zero. Node is immutable once Completed is true, except for
// lazily recomputed subtree aggregates, which live in Tree rather than Node.
type Node struct {
	ID       string
	ParentID string // "" for root
	Depth    int
	Kind     NodeKind

	// LLMCall fields.
	Iteration    int
	Model        string
	Request      any
	Response     any
	Usage        *Usage
	Cost         float64
	FinishReason string

	// Gadget fields.
	InvocationID string
	GadgetName   string
	Parameters   any
	Result       any
	Err          error
	ExecutionMS  int64
	Media        []string
	Skipped      bool
	SkipReason   string

	StartedAt   time.Time
	CompletedAt time.Time
	Completed   bool
}

// Usage carries token accounting, mirrored from the provider contract in
// spec.md §6.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Tree owns a set of nodes and fans out mutation events to an EventBus. It
// corresponds to spec.md §3's ExecutionTree. A subagent shares its parent's
// *Tree instance directly (spec.md §4.F) rather than owning its own.
type Tree struct {
	mu    sync.Mutex
	nodes map[string]*Node
	roots []string
	bus   *EventBus

	// costCache holds lazily recomputed subtree costs and validCache marks
	// which entries are current; completing a node invalidates it and every
	// ancestor. Subtree token sums are not cached.
	costCache  map[string]float64
	validCache map[string]bool
}

func New(bus *EventBus) *Tree {
	if bus == nil {
		bus = NewEventBus(nil)
	}
	return &Tree{
		nodes:      make(map[string]*Node),
		bus:        bus,
		costCache:  make(map[string]float64),
		validCache: make(map[string]bool),
	}
}

// Bus returns the tree's event bus so callers can subscribe.
func (t *Tree) Bus() *EventBus { return t.bus }

// AddLLMCall creates and records a new LLM-call node under parentID ("" for
// root) and returns its ID.
func (t *Tree) AddLLMCall(parentID string, iteration int, model string, request any) string {
	return t.addNode(&Node{
		Kind:      NodeLLMCall,
		ParentID:  parentID,
		Iteration: iteration,
		Model:     model,
		Request:   request,
	})
}

// CompleteLLMCall finalizes an LLM-call node.
func (t *Tree) CompleteLLMCall(id string, response any, usage *Usage, cost float64, finishReason string) {
	t.mu.Lock()
	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	node.Response = response
	node.Usage = usage
	node.Cost = cost
	node.FinishReason = finishReason
	node.CompletedAt = time.Now()
	node.Completed = true
	t.invalidateAncestorsLocked(node.ID)
	snapshot := *node
	t.mu.Unlock()
	t.bus.publish(Event{Type: EventNodeCompleted, Node: &snapshot})
}

// AddGadget creates and records a new gadget node under parentID.
func (t *Tree) AddGadget(parentID, invocationID, gadgetName string, parameters any) string {
	return t.addNode(&Node{
		Kind:         NodeGadget,
		ParentID:     parentID,
		InvocationID: invocationID,
		GadgetName:   gadgetName,
		Parameters:   parameters,
	})
}

// CompleteGadget finalizes a gadget node with its result/error/cost.
func (t *Tree) CompleteGadget(id string, result any, err error, executionMS int64, cost float64, media []string) {
	t.mu.Lock()
	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	node.Result = result
	node.Err = err
	node.ExecutionMS = executionMS
	node.Cost = cost
	node.Media = media
	node.CompletedAt = time.Now()
	node.Completed = true
	t.invalidateAncestorsLocked(node.ID)
	snapshot := *node
	t.mu.Unlock()
	t.bus.publish(Event{Type: EventNodeCompleted, Node: &snapshot})
}

// MarkSkipped marks a gadget node as skipped (e.g. by a beforeGadgetExecution
// controller's skip action) without ever executing it.
func (t *Tree) MarkSkipped(id, reason string) {
	t.mu.Lock()
	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	node.Skipped = true
	node.SkipReason = reason
	node.CompletedAt = time.Now()
	node.Completed = true
	snapshot := *node
	t.mu.Unlock()
	t.bus.publish(Event{Type: EventNodeSkipped, Node: &snapshot})
}

func (t *Tree) addNode(n *Node) string {
	t.mu.Lock()
	n.ID = uuid.NewString()
	n.StartedAt = time.Now()
	if n.ParentID == "" {
		n.Depth = 0
		t.roots = append(t.roots, n.ID)
	} else if parent, ok := t.nodes[n.ParentID]; ok {
		n.Depth = parent.Depth + 1
	} else {
		// Parent referenced but not present: treat as root depth per
		// spec.md §3's invariant fallback (parentId references an
		// existing node or null).
		n.Depth = 0
	}
	t.nodes[n.ID] = n
	snapshot := *n
	t.mu.Unlock()
	t.bus.publish(Event{Type: EventNodeAdded, Node: &snapshot})
	return n.ID
}

// Get returns a copy of the node with the given ID.
func (t *Tree) Get(id string) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// invalidateAncestorsLocked drops cached subtree costs for id and every
// ancestor, since a completed descendant changes their aggregate. Must be
// called with t.mu held.
func (t *Tree) invalidateAncestorsLocked(id string) {
	for id != "" {
		delete(t.validCache, id)
		node, ok := t.nodes[id]
		if !ok {
			break
		}
		id = node.ParentID
	}
}

// GetSubtreeCost sums the cost of every completed node in the subtree
// rooted at id (inclusive), recomputing lazily and caching until the next
// invalidation. Per spec.md §8, the result is independent of computation
// order.
func (t *Tree) GetSubtreeCost(id string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subtreeCostLocked(id)
}

func (t *Tree) subtreeCostLocked(id string) float64 {
	if cost, ok := t.costCache[id]; ok && t.validCache[id] {
		return cost
	}
	node, ok := t.nodes[id]
	if !ok {
		return 0
	}
	total := 0.0
	if node.Completed {
		total += node.Cost
	}
	for _, child := range t.childrenLocked(id) {
		total += t.subtreeCostLocked(child)
	}
	t.costCache[id] = total
	t.validCache[id] = true
	return total
}

// GetSubtreeTokens sums input+output tokens across the subtree rooted at id.
func (t *Tree) GetSubtreeTokens(id string) (input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subtreeTokensLocked(id)
}

func (t *Tree) subtreeTokensLocked(id string) (input, output int) {
	node, ok := t.nodes[id]
	if !ok {
		return 0, 0
	}
	if node.Completed && node.Usage != nil {
		input += node.Usage.InputTokens
		output += node.Usage.OutputTokens
	}
	for _, child := range t.childrenLocked(id) {
		ci, co := t.subtreeTokensLocked(child)
		input += ci
		output += co
	}
	return input, output
}

func (t *Tree) childrenLocked(parentID string) []string {
	var children []string
	for id, n := range t.nodes {
		if n.ParentID == parentID {
			children = append(children, id)
		}
	}
	return children
}

// RootIDs returns the IDs of root nodes, in creation order.
func (t *Tree) RootIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.roots...)
}
