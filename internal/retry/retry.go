// Package retry implements the back-off policy wrapped around every resource
// acquisition the engine makes: directory create/open/close, file open/create
// and task dispatch.
//
// Transient exhaustion (too many open files, try again, no memory right now)
// is retried after a short fixed sleep, forever unless MaxAttempts is set.
// Anything else is returned to the caller on the first attempt.
package retry

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultDelay is the pause between attempts when a resource is exhausted.
const DefaultDelay = 100 * time.Microsecond

// ErrExhausted signals that task slots are momentarily saturated.
// Dispatchers return it to request a retry.
var ErrExhausted = errors.New("resource temporarily exhausted")

// transientErrnos are the errno values that mean "retry shortly".
var transientErrnos = []unix.Errno{
	unix.EMFILE,
	unix.ENFILE,
	unix.EAGAIN,
	unix.ENOMEM,
	unix.EINTR,
}

// IsTransient reports whether err is a transient exhaustion signal.
// Wrapped errors (*os.PathError, *os.SyscallError, fmt.Errorf %w) are unwrapped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrExhausted) {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// Policy controls how an acquisition is retried.
type Policy struct {
	// Transient classifies errors; nil means IsTransient.
	Transient func(error) bool
	// Sleep pauses between attempts; nil means time.Sleep.
	Sleep func(time.Duration)
	// OnRetry is called before each sleep with the error and attempt number.
	OnRetry func(err error, attempt int)
	// Delay is the fixed pause between attempts; zero means DefaultDelay.
	Delay time.Duration
	// MaxAttempts caps the number of attempts; zero means unlimited.
	MaxAttempts int
}

// DefaultPolicy returns the unlimited 100µs policy.
func DefaultPolicy() Policy {
	return Policy{Delay: DefaultDelay}
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt cap is reached.
func Do[T any](p Policy, op func() (T, error)) (T, error) {
	transient := p.Transient
	if transient == nil {
		transient = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	for attempt := 1; ; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !transient(err) {
			return v, err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return v, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(err, attempt)
		}
		sleep(delay)
	}
}

// Run is Do for operations that only return an error.
func (p Policy) Run(op func() error) error {
	_, err := Do(p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
