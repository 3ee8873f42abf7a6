package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrProbeInFlight  = errors.New("circuit breaker probe already in flight")
	errPanicInRequest = errors.New("panic in protected call")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures when the breaker trips and how it recovers
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32
	// CoolDown is how long the circuit stays open before a probe is let through
	CoolDown time.Duration
	// Probes is the number of consecutive successful probes that close the circuit
	Probes uint32
	// OnStateChange is called outside the lock whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker stops calls to a failing dependency for a cool-down period, then
// lets single probes through until the dependency proves healthy again.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	probing   bool
	openedAt  time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.CoolDown == 0 {
		settings.CoolDown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving from open to half-open once the
// cool-down has elapsed
func (b *Breaker) State() State {
	b.mu.Lock()
	state, change := b.refreshLocked()
	b.mu.Unlock()
	b.notify(change)
	return state
}

// Execute runs fn unless the circuit is open. A nil error from fn counts as
// success; anything else, including a panic, counts as failure.
func (b *Breaker) Execute(fn func() error) (err error) {
	if err := b.acquire(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.release(errPanicInRequest)
			panic(r)
		}
		b.release(err)
	}()

	return fn()
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	state, change := b.refreshLocked()
	var err error
	switch state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			err = ErrProbeInFlight
		} else {
			b.probing = true
		}
	}
	b.mu.Unlock()
	b.notify(change)
	return err
}

func (b *Breaker) release(result error) {
	b.mu.Lock()
	var change *transition
	switch b.state {
	case StateClosed:
		if result == nil {
			b.failures = 0
		} else {
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				change = b.setStateLocked(StateOpen)
			}
		}
	case StateHalfOpen:
		b.probing = false
		if result != nil {
			change = b.setStateLocked(StateOpen)
		} else {
			b.successes++
			if b.successes >= b.settings.Probes {
				change = b.setStateLocked(StateClosed)
			}
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

type transition struct {
	from, to State
}

func (b *Breaker) refreshLocked() (State, *transition) {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.CoolDown)) {
		return StateHalfOpen, b.setStateLocked(StateHalfOpen)
	}
	return b.state, nil
}

func (b *Breaker) setStateLocked(state State) *transition {
	if b.state == state {
		return nil
	}
	t := &transition{from: b.state, to: state}
	b.state = state
	b.failures = 0
	b.successes = 0
	b.probing = false
	if state == StateOpen {
		b.openedAt = b.now()
	}
	return t
}

func (b *Breaker) notify(t *transition) {
	if t != nil && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}
