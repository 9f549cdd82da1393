package consensus

import "fmt"

// ErrorKind is the closed set of engine-level failure categories §7 assigns
// to C5 (as opposed to per-adapter failures, which carry an llm.ErrorKind
// instead). The request router translates these to HTTP status codes.
type ErrorKind string

const (
	ErrorKindConsensusFailed  ErrorKind = "consensus_failed"
	ErrorKindDeadlineExceeded ErrorKind = "deadline_exceeded"
	ErrorKindCanceled         ErrorKind = "canceled"
	ErrorKindInternal         ErrorKind = "internal_error"
)

// Error reports an engine-level failure that prevents a ConsensusResult from
// being produced at all (as opposed to a per-model failure, which is folded
// into per_model and does not by itself fail the request).
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("consensus: %s: %s", e.Kind, e.Message)
}
