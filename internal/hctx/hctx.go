package hctx

import "context"

// State carries per-attempt metadata between the runtime and a handler.
// TaskID and Attempt are set by the runtime before the handler runs; Result is
// written by the handler and persisted with the task afterwards.
type State struct {
	TaskID  string
	Attempt int
	Result  []byte
}

// New creates a fresh state for one delivery attempt.
func New(taskID string, attempt int) *State { return &State{TaskID: taskID, Attempt: attempt} }

type ctxKey struct{}

// WithState returns a child context carrying the given state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the state from context if present.
func From(ctx context.Context) (*State, bool) {
	st, ok := ctx.Value(ctxKey{}).(*State)
	if !ok || st == nil {
		return nil, false
	}
	return st, true
}
