package exec

import (
	"time"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// Result is the spec.md §3 GadgetResult: the uniform outcome of one gadget
// call, whether it succeeded, failed, timed out, or was skipped.
type Result struct {
	InvocationID    string
	GadgetName      string
	Parameters      any
	Content         string
	IsError         bool
	Err             error
	ExecutionTimeMS int64
	BreaksLoop      bool
	Media           []message.MediaHandle
	Skipped         bool
	SkipReason      string
	HumanInputAsked string // non-empty when this result represents a pending human-input request
}

func errorResult(invocationID, name string, err error, elapsed time.Duration) Result {
	return Result{
		InvocationID:    invocationID,
		GadgetName:      name,
		Content:         err.Error(),
		IsError:         true,
		Err:             err,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}
}
