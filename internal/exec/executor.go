// Package exec implements the gadget executor from spec.md §4.D:
// concurrency-gated execution with per-gadget timeout/retry, panic
// recovery, the three named side-channel exceptions, media persistence,
// and output spillover for oversized results.
//
// Grounded on the teacher's internal/agent/executor.go almost directly,
// generalized from "tool" to "gadget" vocabulary.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/internal/exectree"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// MediaStore persists a gadget's raw media payload and returns a handle
// the conversation can reference instead of inlining bytes (spec.md §3
// Lifecycle / §6 Persistence).
type MediaStore interface {
	Put(ctx context.Context, data []byte, mimeType string) (message.MediaHandle, error)
}

// SpilloverStore persists oversized gadget output keyed by a short ID, per
// spec.md §4.D: "the original is spilled to the output store and the
// result text is replaced by a stub referencing the ID." Get is the
// retrieval half spec.md §3's Lifecycle and §8 scenario 5 require: the
// implicit GadgetOutputViewer gadget (registered by New when SpilloverStore
// is configured) calls it to hand the stored content back to the model
// verbatim.
type SpilloverStore interface {
	Put(ctx context.Context, content string) (id string, err error)
	Get(ctx context.Context, id string) (content string, err error)
}

// Config configures an Executor.
type Config struct {
	MaxConcurrent     int
	DefaultTimeout    time.Duration
	RetryPolicy       backoff.Policy
	SpilloverBudget   int // bytes; 0 disables spillover
	MediaStore        MediaStore
	SpilloverStore    SpilloverStore
	Logger            *slog.Logger
	RequestHumanInput func(ctx context.Context, question string) (string, error)
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   8,
		DefaultTimeout:  30 * time.Second,
		RetryPolicy:     backoff.DefaultPolicy(),
		SpilloverBudget: 50 << 10, // 50KB, matches spec.md §8 scenario 5
		Logger:          slog.Default(),
	}
}

// Executor runs gadget calls against a registry, producing Results.
type Executor struct {
	registry *gadget.Registry
	cfg      Config
	sem      chan struct{}

	mu      sync.Mutex
	metrics Metrics
}

// Metrics tracks simple counters, mirroring the teacher executor's metrics
// surface; exposed for internal/observability to scrape.
type Metrics struct {
	Executed int64
	Errors   int64
	Timeouts int64
}

func New(registry *gadget.Registry, cfg Config) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SpilloverStore != nil && registry != nil {
		registry.Register(&gadget.Definition{Gadget: newOutputViewerGadget(cfg.SpilloverStore)})
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Call is the executor's input: one parsed gadget call.
type Call struct {
	InvocationID string
	Name         string
	Parameters   []byte // raw JSON, already schema-checked or not

	// NodeID, Tree, DepthBase, and SubagentSink are set by the stream
	// processor so a subagent gadget can attach its nested Agent under this
	// call's own tree node (spec.md §4.F). NodeID is this call's node in
	// Tree; DepthBase is that node's depth. Tree left nil means no tree is
	// attached to this call (e.g. a gadget executed directly in a test),
	// and the executor leaves the Execute context unchanged.
	NodeID       string
	Tree         *exectree.Tree
	DepthBase    int
	SubagentSink SubagentSink
}

// ExecuteAll runs calls, preserving result order to match call order
// regardless of execution scheduling (spec.md §4.D). Calls flagged
// Parallel on their gadget definition may run concurrently with later
// calls; all others run strictly in emission order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup

	i := 0
	for i < len(calls) {
		def, _ := e.registry.Get(calls[i].Name)
		if def != nil && def.Parallel {
			// Run this and any immediately-following parallel-eligible
			// calls concurrently; results still land in their original
			// slots so output ordering matches call order.
			start := i
			for i < len(calls) {
				d, _ := e.registry.Get(calls[i].Name)
				if d == nil || !d.Parallel {
					break
				}
				i++
			}
			for j := start; j < i; j++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					results[idx] = e.Execute(ctx, calls[idx])
				}(j)
			}
			wg.Wait()
			continue
		}
		results[i] = e.Execute(ctx, calls[i])
		i++
	}
	return results
}

// Execute runs a single gadget call under the executor's concurrency gate,
// timeout, and retry policy.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return errorResult(call.InvocationID, call.Name, ctx.Err(), 0)
	}

	def, ok := e.registry.Get(call.Name)
	if !ok {
		e.bumpError()
		return errorResult(call.InvocationID, call.Name, ErrGadgetNotFound, 0)
	}

	validated, verr := e.registry.ValidateParams(call.Name, call.Parameters)
	if verr != nil {
		e.bumpError()
		return errorResult(call.InvocationID, call.Name, &Error{Kind: KindValidation, Message: "parameter validation failed", Cause: verr}, 0)
	}

	timeout := e.cfg.DefaultTimeout
	if def.Timeout > 0 {
		timeout = time.Duration(def.Timeout) * time.Millisecond
	}
	policy := e.cfg.RetryPolicy
	if def.MaxRetries > 0 {
		policy.MaxAttempts = def.MaxRetries
	}

	if call.Tree != nil {
		ctx = withSubagentContext(ctx, SubagentContext{
			Tree:         call.Tree,
			ParentNodeID: call.NodeID,
			DepthBase:    call.DepthBase,
			Sink:         call.SubagentSink,
		})
	}

	var result Result
	start := time.Now()
	err := backoff.Retry(ctx, policy, func(err error) bool {
		gerr, ok := err.(*Error)
		return ok && gerr.Retryable()
	}, func(ctx context.Context) error {
		r, execErr := e.executeWithTimeout(ctx, def, call, validated, timeout)
		result = r
		return execErr
	})
	result.ExecutionTimeMS = time.Since(start).Milliseconds()

	if err != nil && !result.IsError {
		e.bumpError()
		return errorResult(call.InvocationID, call.Name, err, time.Since(start))
	}

	if result.HumanInputAsked != "" && e.cfg.RequestHumanInput != nil {
		answer, herr := e.cfg.RequestHumanInput(ctx, result.HumanInputAsked)
		if herr != nil {
			result.IsError = true
			result.Err = herr
			result.Content = herr.Error()
		} else {
			result.Content = answer
			result.HumanInputAsked = ""
		}
	}

	e.bumpExecuted()
	return e.applySpillover(ctx, result)
}

func (e *Executor) executeWithTimeout(ctx context.Context, def *gadget.Definition, call Call, params []byte, timeout time.Duration) (result Result, err error) {
	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		res gadget.Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &Error{Kind: KindPanic, Message: fmt.Sprintf("gadget %s panicked: %v", call.Name, r), Cause: fmt.Errorf("%v\n%s", r, debug.Stack())}}
			}
		}()
		res, gerr := def.Gadget.Execute(execCtx, params)
		done <- outcome{res: res, err: gerr}
	}()

	select {
	case o := <-done:
		return e.translate(call, o.res, o.err)
	case <-execCtx.Done():
		if ctx.Err() == nil {
			// Timeout fired, not the caller's own cancellation.
			e.bumpTimeout()
			return Result{InvocationID: call.InvocationID, GadgetName: call.Name, IsError: true, Err: &Error{Kind: KindTimeout, Message: "gadget timed out"}}, &Error{Kind: KindTimeout, Message: "gadget timed out"}
		}
		return Result{}, ctx.Err()
	}
}

// translate converts the three named side-channel exceptions (spec.md
// §4.D) into Result flags; none propagate past the executor.
func (e *Executor) translate(call Call, res gadget.Result, err error) (Result, error) {
	if err != nil {
		if human, ok := err.(*gadget.HumanInputRequired); ok {
			return Result{InvocationID: call.InvocationID, GadgetName: call.Name, HumanInputAsked: human.Question}, nil
		}
		if tc, ok := err.(*gadget.TaskCompletionSignal); ok {
			return Result{InvocationID: call.InvocationID, GadgetName: call.Name, Content: tc.Message, BreaksLoop: true}, nil
		}
		return Result{InvocationID: call.InvocationID, GadgetName: call.Name, IsError: true, Err: err, Content: err.Error()}, &Error{Kind: KindExecution, Message: "gadget execution failed", Cause: err}
	}

	out := Result{
		InvocationID: call.InvocationID,
		GadgetName:   call.Name,
		Content:      res.Content,
		BreaksLoop:   res.BreaksLoop,
	}
	if len(res.MediaPayload) > 0 && e.cfg.MediaStore != nil {
		handle, merr := e.cfg.MediaStore.Put(context.Background(), res.MediaPayload, res.MediaMime)
		if merr == nil {
			out.Media = append(out.Media, handle)
		}
	}
	return out, nil
}

// applySpillover replaces an oversized result body with a stub referencing
// a spillover-store ID, per spec.md §4.D and the §8 scenario 5 format.
func (e *Executor) applySpillover(ctx context.Context, result Result) Result {
	if e.cfg.SpilloverBudget <= 0 || e.cfg.SpilloverStore == nil {
		return result
	}
	if len(result.Content) <= e.cfg.SpilloverBudget {
		return result
	}
	id, err := e.cfg.SpilloverStore.Put(ctx, result.Content)
	if err != nil {
		return result
	}
	result.Content = fmt.Sprintf(
		`[Gadget %q returned too much data: %d bytes exceeds the %d byte budget. Use GadgetOutputViewer with id %q]`,
		result.GadgetName, len(result.Content), e.cfg.SpilloverBudget, id,
	)
	return result
}

func (e *Executor) bumpExecuted() {
	e.mu.Lock()
	e.metrics.Executed++
	e.mu.Unlock()
}

func (e *Executor) bumpError() {
	e.mu.Lock()
	e.metrics.Errors++
	e.mu.Unlock()
}

func (e *Executor) bumpTimeout() {
	e.mu.Lock()
	e.metrics.Timeouts++
	e.mu.Unlock()
}

// Metrics returns a snapshot of execution counters.
func (e *Executor) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}
