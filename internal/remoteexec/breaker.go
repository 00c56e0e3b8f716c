package remoteexec

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("remoteexec: circuit breaker open")

type breakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMaxCalls int
}

// breaker is the same closed/open/half-open state machine the notification
// layer uses to protect against a flaky send target, repointed here at a
// flaky remote worker: a worker that starts failing every Start/Poll call
// trips the breaker so the scheduler fails fast instead of piling up
// timed-out HTTP calls against a dead host.
type breaker struct {
	cfg breakerConfig
	mu  sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt             time.Time
	halfOpenInFlight     int
}

func newBreaker(cfg breakerConfig) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &breaker{cfg: cfg, state: "closed"}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case "closed":
		return true
	case "open":
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = "half_open"
			// The call being allowed here is the first half-open probe.
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case "half_open":
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (b *breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == "half_open" && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err == nil {
		b.consecutiveFailures = 0
		b.state = "closed"
		return
	}

	b.consecutiveFailures++

	if b.state == "half_open" {
		b.state = "open"
		b.openedAt = time.Now()
		return
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = "open"
		b.openedAt = time.Now()
	}
}
