package worker

// State is where the worker loop currently is.
type State int32

const (
	StateIdle State = iota
	StateParsingInput
	StateExecuting
	StateThrottling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsingInput:
		return "parsing_input"
	case StateExecuting:
		return "executing"
	case StateThrottling:
		return "throttling"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}
