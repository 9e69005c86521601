package metadata

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed   circuitState = iota // gateway is tried normally
	stateOpen                         // gateway is skipped
	stateHalfOpen                     // one probe allowed after the open window
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// GatewayStats is a snapshot of one gateway's breaker state.
type GatewayStats struct {
	LastFailure time.Time `json:"lastFailure,omitempty"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
}

// circuitBreaker tracks consecutive failures per gateway host and stops trying a
// host that keeps failing until its open window has passed.
type circuitBreaker struct {
	failures         map[string]int
	lastFailure      map[string]time.Time
	state            map[string]circuitState
	now              func() time.Time
	failureThreshold int
	openDuration     time.Duration
	mu               sync.Mutex
}

func newCircuitBreaker(threshold int, openDuration time.Duration) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: threshold,
		openDuration:     openDuration,
		failures:         make(map[string]int),
		lastFailure:      make(map[string]time.Time),
		state:            make(map[string]circuitState),
		now:              time.Now,
	}
}

func (cb *circuitBreaker) enabled() bool {
	return cb != nil && cb.failureThreshold > 0
}

// canAttempt reports whether gateway may be tried now. An open circuit whose
// window elapsed moves to half-open and lets one request through.
func (cb *circuitBreaker) canAttempt(gateway string) (bool, error) {
	if !cb.enabled() {
		return true, nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state[gateway] != stateOpen {
		return true, nil
	}

	lastFail := cb.lastFailure[gateway]
	if cb.now().Sub(lastFail) > cb.openDuration {
		cb.state[gateway] = stateHalfOpen
		slog.Info("[METADATA-CIRCUIT] gateway circuit half-open", "gateway", gateway)
		return true, nil
	}

	return false, fmt.Errorf("%w: circuit open for %s (failures: %d, next retry: %s)",
		ErrGatewayUnavailable,
		gateway,
		cb.failures[gateway],
		lastFail.Add(cb.openDuration).Format("15:04:05"),
	)
}

func (cb *circuitBreaker) recordSuccess(gateway string) {
	if !cb.enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state[gateway]
	delete(cb.failures, gateway)
	delete(cb.lastFailure, gateway)
	delete(cb.state, gateway)

	if old != stateClosed {
		slog.Info("[METADATA-CIRCUIT] gateway recovered", "gateway", gateway)
	}
}

func (cb *circuitBreaker) recordFailure(gateway string, err error) {
	if !cb.enabled() {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[gateway]++
	cb.lastFailure[gateway] = cb.now()
	count := cb.failures[gateway]

	// A failed half-open probe reopens immediately.
	if count >= cb.failureThreshold || cb.state[gateway] == stateHalfOpen {
		if cb.state[gateway] != stateOpen {
			slog.Warn("[METADATA-CIRCUIT] opening gateway circuit",
				"gateway", gateway,
				"failures", count,
				"error", err,
			)
		}
		cb.state[gateway] = stateOpen
		return
	}

	slog.Debug("[METADATA-CIRCUIT] gateway failure",
		"gateway", gateway,
		"failures", count,
		"threshold", cb.failureThreshold,
		"error", err,
	)
}

func (cb *circuitBreaker) stats() map[string]GatewayStats {
	out := make(map[string]GatewayStats)
	if cb == nil {
		return out
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for gw, n := range cb.failures {
		out[gw] = GatewayStats{State: cb.state[gw].String(), Failures: n, LastFailure: cb.lastFailure[gw]}
	}
	for gw, st := range cb.state {
		if _, ok := out[gw]; !ok {
			out[gw] = GatewayStats{State: st.String()}
		}
	}
	return out
}
