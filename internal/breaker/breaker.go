// Copyright 2025 James Ross
package breaker

import (
	"sync"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/obs"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

type result struct {
	t  time.Time
	ok bool
}

// CircuitBreaker is a sliding-window breaker with a cooldown and a single
// half-open probe. It guards an external collaborator (content server,
// engine, storage) so a sustained outage fails fast instead of burning a
// full retry budget on every call.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	state            State
	window           time.Duration
	cooldown         time.Duration
	failureThresh    float64
	minSamples       int
	lastTransition   time.Time
	results          []result
	halfOpenInFlight bool
}

// New creates a named circuit breaker. name labels the
// circuit_breaker_state/circuit_breaker_trips_total metrics so multiple
// breakers in one process stay distinguishable.
func New(name string, window, cooldown time.Duration, failureThresh float64, minSamples int) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:           name,
		state:          Closed,
		window:         window,
		cooldown:       cooldown,
		failureThresh:  failureThresh,
		minSamples:     minSamples,
		lastTransition: time.Now(),
	}
	obs.CircuitBreakerState.WithLabelValues(name).Set(float64(Closed))
	return cb
}

// setState transitions the breaker and reflects the new state (and, on a
// trip into Open, a trip count) onto the shared Prometheus gauges.
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	obs.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
	if s == Open {
		obs.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed, admitting exactly one probe per
// half-open window.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) >= cb.cooldown {
			cb.setState(HalfOpen)
			cb.lastTransition = time.Now()
			cb.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-cb.window)
	filtered := cb.results[:0]
	for _, r := range cb.results {
		if r.t.After(cutoff) {
			filtered = append(filtered, r)
		}
	}
	cb.results = append(filtered, result{t: now, ok: ok})

	total := len(cb.results)
	if total < cb.minSamples {
		if cb.state == HalfOpen {
			if ok {
				cb.setState(Closed)
			} else {
				cb.setState(Open)
			}
			cb.lastTransition = now
			cb.halfOpenInFlight = false
		}
		return
	}
	fails := 0
	for _, r := range cb.results {
		if !r.ok {
			fails++
		}
	}
	rate := float64(fails) / float64(total)
	switch cb.state {
	case Closed:
		if rate >= cb.failureThresh {
			cb.setState(Open)
			cb.lastTransition = now
		}
	case HalfOpen:
		if ok {
			cb.setState(Closed)
		} else {
			cb.setState(Open)
		}
		cb.halfOpenInFlight = false
		cb.lastTransition = now
	case Open:
		// handled in Allow()
	}
}
