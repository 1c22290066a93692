package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// contextKey is an unexported type for context keys owned by this package.
type contextKey string

const traceKey contextKey = "consolidation_trace"

// TraceEvent records one state transition of a consolidation run.
type TraceEvent struct {
	// From and To are the states on either side of the transition.
	From types.ConsolidationState `json:"from"`
	To   types.ConsolidationState `json:"to"`

	// At is the wall-clock time the transition happened.
	At time.Time `json:"at"`

	// Detail is a short human-readable note (span size, cluster id, error).
	Detail string `json:"detail,omitempty"`
}

// String renders the event as a single log-friendly line.
func (e TraceEvent) String() string {
	line := fmt.Sprintf("%s %s -> %s", e.At.Format("15:04:05.000"), e.From, e.To)
	if e.Detail != "" {
		line += " (" + e.Detail + ")"
	}
	return line
}

// TraceCollector accumulates TraceEvents for a single consolidation.
type TraceCollector struct {
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.events = append(tc.events, e)
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	return tc.events
}

// States returns the sequence of states visited, starting with the first
// From state.
func (tc *TraceCollector) States() []types.ConsolidationState {
	if len(tc.events) == 0 {
		return nil
	}
	states := []types.ConsolidationState{tc.events[0].From}
	for _, e := range tc.events {
		states = append(states, e.To)
	}
	return states
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// String renders every event, one per line.
func (tc *TraceCollector) String() string {
	var b strings.Builder
	for _, e := range tc.events {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits an event only when a collector is present in the context.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}
