// internal/engine/outcome.go
package engine

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Outcome is the terminal state of a single item action.
type Outcome int

const (
	// Failed is presumed transient and retryable.
	Failed Outcome = iota
	Succeeded
	// Restricted means the action does not exist for the item. It is never retried.
	Restricted
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	case Restricted:
		return "restricted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Tally holds the counters of one run. Only the Processor mutates it.
type Tally struct {
	Processed           int
	Succeeded           int
	Restricted          int
	Preserved           int
	Failed              int
	ConsecutiveFailures int
	Refreshes           int
}

// MarshalLogObject lets a Tally be logged with zap.Object.
func (t Tally) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("processed", t.Processed)
	enc.AddInt("succeeded", t.Succeeded)
	enc.AddInt("restricted", t.Restricted)
	enc.AddInt("preserved", t.Preserved)
	enc.AddInt("failed", t.Failed)
	enc.AddInt("refreshes", t.Refreshes)
	return nil
}

func (t Tally) String() string {
	return fmt.Sprintf("%d succeeded, %d restricted, %d preserved, %d failed (%d processed, %d refreshes)",
		t.Succeeded, t.Restricted, t.Preserved, t.Failed, t.Processed, t.Refreshes)
}
