// Package observability provides action tracing and Prometheus metrics for
// the ledger engine.
//
// This provides:
//   - Trace spans for every engine action (cast, rebalance, cleanup, claim…)
//   - Trace/span IDs propagated through context
//   - Prometheus counters and gauges for votes, repair work and payments
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans: in-memory span ring for inspecting recent actions
// ═══════════════════════════════════════════════════════════════════════════

// Span records one engine action.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// String returns "ok" or "error".
func (s SpanStatus) String() string {
	if s == SpanError {
		return "error"
	}
	return "ok"
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in a bounded ring.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span for operation. Callers must call EndSpan.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}

	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it. It also counts the action in
// ActionsTotal, whether or not tracing is enabled.
func (t *Tracer) EndSpan(span *Span, err error) {
	if span == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	ActionsTotal.WithLabelValues(span.Operation, result).Inc()

	if t == nil || !t.enabled {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "trail-trace-id"
	spanIDKey  contextKey = "trail-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ActionsTotal counts engine actions by name and result.
var ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "engine",
	Name:      "actions_total",
	Help:      "Total engine actions by action name and result (ok|error).",
}, []string{"action", "result"})

// ─── Ballot Metrics ─────────────────────────────────────────────────────────

// BallotsOpen tracks ballots currently in voting.
var BallotsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "trail",
	Subsystem: "ballots",
	Name:      "open",
	Help:      "Number of ballots currently accepting votes.",
})

// BallotTransitions counts state machine transitions by target status.
var BallotTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "ballots",
	Name:      "transitions_total",
	Help:      "Total ballot status transitions by target status.",
}, []string{"status"})

// VotesCast counts committed casts by voting method.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "votes",
	Name:      "cast_total",
	Help:      "Total votes cast (including re-casts) by voting method.",
}, []string{"method"})

// ─── Repair Metrics ─────────────────────────────────────────────────────────

// RebalancedVolume accumulates absolute rebalanced raw weight per registry.
var RebalancedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "repair",
	Name:      "rebalanced_volume_total",
	Help:      "Absolute raw weight corrected by rebalance, in base units.",
}, []string{"symbol"})

// RebalancedReceipts counts receipts corrected by rebalance.
var RebalancedReceipts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "repair",
	Name:      "rebalanced_receipts_total",
	Help:      "Total vote receipts corrected by rebalance.",
}, []string{"symbol"})

// CleanedReceipts counts receipts reclaimed by cleanup.
var CleanedReceipts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "repair",
	Name:      "cleaned_receipts_total",
	Help:      "Total expired or orphaned vote receipts deleted by cleanup.",
})

// ─── Worker Metrics ─────────────────────────────────────────────────────────

// WorkerPayments accumulates paid amounts per registry.
var WorkerPayments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "workers",
	Name:      "payments_total",
	Help:      "Total worker payments in base units, by registry.",
}, []string{"symbol"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trail",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
