// Package lifecycle tracks user-triggered model calls per action class so
// duplicates are suppressed and a hung call can never lock a class.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/config"
)

// Class groups actions that may not run concurrently.
type Class string

const (
	ClassResolve Class = "resolve"
	ClassExtract Class = "extract"
	ClassVerify  Class = "verify"
)

// State is a class's position in the request state machine.
type State int

const (
	Idle State = iota
	InFlight
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrBusy is returned by Begin while the class has a call in flight.
var ErrBusy = errors.New("lifecycle: request already in flight")

// ErrTimedOut is recorded when a call outlives its class timeout.
var ErrTimedOut = errors.New("lifecycle: request timed out")

// Finish ends a call started by Begin. Calling it more than once is safe.
type Finish func(err error)

type slot struct {
	state State
	gen   uint64
	err   error
}

// Tracker runs Idle -> InFlight -> Resolved | Failed for each class.
type Tracker struct {
	timeouts map[Class]time.Duration

	mu    sync.Mutex
	slots map[Class]*slot
}

// NewTracker creates a Tracker. A class without a timeout gets none.
func NewTracker(timeouts map[Class]time.Duration) *Tracker {
	return &Tracker{timeouts: timeouts, slots: make(map[Class]*slot)}
}

// TimeoutsFromConfig maps the llm timeout settings to classes.
func TimeoutsFromConfig(cfg config.LLMConfig) map[Class]time.Duration {
	return map[Class]time.Duration{
		ClassResolve: time.Duration(cfg.ResolveTimeoutSecs) * time.Second,
		ClassExtract: time.Duration(cfg.ExtractTimeoutSecs) * time.Second,
		ClassVerify:  time.Duration(cfg.VerifyTimeoutSecs) * time.Second,
	}
}

// Begin moves class to InFlight and returns a context bounded by the class
// timeout. It returns ErrBusy if the class is already in flight. When the
// timeout fires the class fails immediately, even if the caller never
// calls Finish.
func (t *Tracker) Begin(ctx context.Context, class Class) (context.Context, Finish, error) {
	t.mu.Lock()
	s := t.slot(class)
	if s.state == InFlight {
		t.mu.Unlock()
		return nil, nil, ErrBusy
	}
	s.gen++
	s.state, s.err = InFlight, nil
	gen := s.gen
	t.mu.Unlock()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if d := t.timeouts[class]; d > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d)
	}

	stop := context.AfterFunc(callCtx, func() {
		if errors.Is(context.Cause(callCtx), context.DeadlineExceeded) {
			if t.settle(class, gen, ErrTimedOut) {
				zap.L().Warn("lifecycle: request timed out", zap.String("class", string(class)))
			}
		}
	})

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			stop()
			if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrTimedOut, err)
			}
			cancel()
			t.settle(class, gen, err)
		})
	}
	return callCtx, finish, nil
}

// settle records the outcome if gen is still the current call.
func (t *Tracker) settle(class Class, gen uint64, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slot(class)
	if s.gen != gen || s.state != InFlight {
		return false
	}
	if err != nil {
		s.state, s.err = Failed, err
	} else {
		s.state = Resolved
	}
	return true
}

// State returns the class state.
func (t *Tracker) State(class Class) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slot(class).state
}

// Err returns the error of the last failed call in class.
func (t *Tracker) Err(class Class) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slot(class).err
}

// Busy reports whether any class is in flight.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s.state == InFlight {
			return true
		}
	}
	return false
}

// Snapshot returns the state of every class the tracker has seen.
func (t *Tracker) Snapshot() map[Class]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Class]State, len(t.slots))
	for c, s := range t.slots {
		out[c] = s.state
	}
	return out
}

func (t *Tracker) slot(class Class) *slot {
	s, ok := t.slots[class]
	if !ok {
		s = &slot{}
		t.slots[class] = s
	}
	return s
}
