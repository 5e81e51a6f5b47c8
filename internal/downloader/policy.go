package downloader

import (
	"errors"
	"fmt"
	"time"

	tilehttp "github.com/craftxbox/wplace-downloader/internal/http"
)

// ErrRetriesExhausted is returned when a tile fails more often than
// Policy.MaxAttempts allows.
var ErrRetriesExhausted = errors.New("downloader: retries exhausted")

// Action is what a worker does after a fetch attempt.
type Action int

const (
	// Advance persists the tile and moves on to the next coordinate.
	Advance Action = iota
	// Retry fetches the same coordinate again after Wait.
	Retry
	// Abort stops the worker with Decision.Err.
	Abort
)

func (a Action) String() string {
	switch a {
	case Advance:
		return "advance"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decision is the policy's verdict on one attempt.
type Decision struct {
	Action Action
	Wait   time.Duration
	Err    error
}

// Policy decides how a worker proceeds after each fetch attempt.
type Policy struct {
	// RequestInterval paces requests after a tile is done.
	RequestInterval time.Duration

	// RetryMargin multiplies the advised delay before a retry.
	RetryMargin float64

	// MaxAttempts caps attempts per tile. Zero retries forever.
	MaxAttempts int
}

// DefaultPolicy returns the pacing and margin the tile server tolerates.
func DefaultPolicy() Policy {
	return Policy{
		RequestInterval: time.Second,
		RetryMargin:     1.05,
	}
}

// Decide maps the outcome of attempt number attempt (starting at 1) to
// the worker's next step.
func (p Policy) Decide(out tilehttp.Outcome, attempt int) Decision {
	switch out.Kind {
	case tilehttp.Saved, tilehttp.Empty:
		return Decision{Action: Advance, Wait: p.RequestInterval}
	case tilehttp.Retryable:
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return Decision{Action: Abort, Err: fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, out.Err)}
		}
		return Decision{Action: Retry, Wait: p.backoff(out.Delay)}
	default:
		err := out.Err
		if err == nil {
			err = errors.New("fetch failed")
		}
		return Decision{Action: Abort, Err: err}
	}
}

func (p Policy) backoff(delay time.Duration) time.Duration {
	margin := p.RetryMargin
	if margin < 1 {
		margin = 1
	}
	return time.Duration(float64(delay) * margin)
}
