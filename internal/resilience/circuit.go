package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var breakerNopLogger = zerolog.Nop()

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultWindow  = time.Minute
	windowBuckets  = 6
	defaultOpenFor = 30 * time.Second
)

// Breaker trips on the failure ratio of outcomes seen during a rolling
// window. It guards the order service read endpoints.
type Breaker struct {
	mu           sync.Mutex
	state        State
	outcomes     rollingWindow
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	openedAt     time.Time
	probing      bool
	now          func() time.Time
	target       string
	logger       *zerolog.Logger
}

// NewBreaker constructs a breaker that opens once at least minRequests
// outcomes in the window fail at failureRatio or more.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = defaultOpenFor
	}
	return &Breaker{
		state:        Closed,
		outcomes:     newRollingWindow(defaultWindow, windowBuckets),
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		now:          time.Now,
	}
}

// Allow reports whether a request may proceed. Once the cool-off has elapsed
// an open breaker admits exactly one probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	now := b.now()
	b.outcomes.add(now, success)
	ok, failed := b.outcomes.totals(now)
	total := ok + failed
	if total >= b.minRequests && float64(failed)/float64(total) >= b.failureRatio {
		b.changeStateLocked(ctx, Open)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// WithTarget sets the dependency name used for metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.recordStateLocked()
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// WithWindow sets the span over which outcomes are counted.
func (b *Breaker) WithWindow(d time.Duration) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.outcomes = newRollingWindow(d, windowBuckets)
	}
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
		b.outcomes.reset()
	}
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	BreakerState.WithLabelValues(b.targetLabel()).Set(float64(b.state))
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	label := b.targetLabel()
	BreakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	evt := b.loggerFor(ctx).Info().Str("target", label).Str("from_state", from.String()).Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) targetLabel() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}
	if b.logger == nil {
		return &breakerNopLogger
	}
	return b.logger
}

// rollingWindow counts outcomes in fixed-width buckets covering span.
type rollingWindow struct {
	width   time.Duration
	buckets []outcomeBucket
}

type outcomeBucket struct {
	epoch      int64
	ok, failed int
}

func newRollingWindow(span time.Duration, n int) rollingWindow {
	width := span / time.Duration(n)
	if width <= 0 {
		width = time.Millisecond
	}
	return rollingWindow{width: width, buckets: make([]outcomeBucket, n)}
}

func (w *rollingWindow) epoch(now time.Time) int64 {
	return now.UnixNano() / int64(w.width)
}

func (w *rollingWindow) add(now time.Time, success bool) {
	e := w.epoch(now)
	bucket := &w.buckets[int(e%int64(len(w.buckets)))]
	if bucket.epoch != e {
		*bucket = outcomeBucket{epoch: e}
	}
	if success {
		bucket.ok++
	} else {
		bucket.failed++
	}
}

func (w *rollingWindow) totals(now time.Time) (ok, failed int) {
	oldest := w.epoch(now) - int64(len(w.buckets)) + 1
	for _, bucket := range w.buckets {
		if bucket.epoch >= oldest {
			ok += bucket.ok
			failed += bucket.failed
		}
	}
	return ok, failed
}

func (w *rollingWindow) reset() {
	clear(w.buckets)
}
