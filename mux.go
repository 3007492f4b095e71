package reportq

import "context"

// HandlerFunc processes one delivery attempt.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Middleware wraps a HandlerFunc to provide cross-cutting concerns.
type Middleware func(HandlerFunc) HandlerFunc

// Mux routes tasks to handlers by task type.
type Mux struct {
	handlers    map[string]HandlerFunc
	middlewares []Middleware
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Handle registers a handler for a task type, replacing any previous one.
func (m *Mux) Handle(taskType string, fn HandlerFunc) {
	m.handlers[taskType] = fn
}

// HandleAll registers fn for every delivery task type produced by the pipeline.
func (m *Mux) HandleAll(fn HandlerFunc) {
	for _, t := range []string{TypeClientReport, TypeCombinedReport, TypeSummary} {
		m.Handle(t, fn)
	}
}

// Use adds middleware. Middlewares run in the order they are added.
func (m *Mux) Use(mw Middleware) {
	m.middlewares = append(m.middlewares, mw)
}

func (m *Mux) wrapHandler(h HandlerFunc) HandlerFunc {
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		h = m.middlewares[i](h)
	}
	return h
}

func (m *Mux) lookup(taskType string) (HandlerFunc, bool) {
	h, ok := m.handlers[taskType]
	if !ok {
		return nil, false
	}
	return m.wrapHandler(h), true
}
