package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects attempts.
var ErrOpen = errors.New("resilience: breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

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

// Settings configures a Breaker. Zero values take defaults.
type Settings struct {
	// Failures is how many consecutive failures open a closed breaker.
	Failures int
	// Cooldown is how long an open breaker rejects attempts before letting
	// one trial through.
	Cooldown time.Duration
	// MaxCooldown caps the cooldown, which doubles each time a trial fails.
	MaxCooldown time.Duration
	// OnStateChange is called under the breaker lock on every transition.
	OnStateChange func(name string, from, to State)
}

const (
	defaultFailures    = 3
	defaultCooldown    = time.Second
	defaultMaxCooldown = 30 * time.Second
)

// Breaker gates attempts at an operation that keeps failing. Closed lets
// every attempt through. After Settings.Failures consecutive failures it
// opens and rejects attempts for a cooldown; then a single trial is let
// through. A successful trial closes it, a failed one reopens it with twice
// the cooldown.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	cooldown time.Duration
	until    time.Time
	trying   bool
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.Failures <= 0 {
		settings.Failures = defaultFailures
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = defaultCooldown
	}
	if settings.MaxCooldown < settings.Cooldown {
		settings.MaxCooldown = max(defaultMaxCooldown, settings.Cooldown)
	}
	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		cooldown: settings.Cooldown,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Allow reports whether an attempt may run now. Every allowed attempt must
// be followed by exactly one Done.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.trying {
			return ErrOpen
		}
		b.trying = true
	}
	return nil
}

// Done records the outcome of an allowed attempt.
func (b *Breaker) Done(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Failures {
			b.open(b.settings.Cooldown)
		}
	case StateHalfOpen:
		b.trying = false
		if success {
			b.failures = 0
			b.cooldown = b.settings.Cooldown
			b.set(StateClosed)
			return
		}
		b.open(min(2*b.cooldown, b.settings.MaxCooldown))
	}
}

// Execute runs fn if the breaker allows it and records whether it failed.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Done(err == nil)
	return err
}

func (b *Breaker) advance() {
	if b.state == StateOpen && !b.now().Before(b.until) {
		b.set(StateHalfOpen)
	}
}

func (b *Breaker) open(cooldown time.Duration) {
	b.cooldown = cooldown
	b.until = b.now().Add(cooldown)
	b.set(StateOpen)
}

func (b *Breaker) set(state State) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
