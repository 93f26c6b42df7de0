package agent

import "errors"

// ErrAborted is reported by Err, once Run's event channel has closed, when
// the agent was aborted before or during a run, per spec.md §4.I step 1.
var ErrAborted = errors.New("agent: run aborted")
