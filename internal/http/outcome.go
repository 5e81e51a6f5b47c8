package http

import "time"

// OutcomeKind classifies the result of one fetch attempt.
type OutcomeKind int

const (
	// Saved means the server returned the tile.
	Saved OutcomeKind = iota
	// Empty means there is no tile at the coordinate (404).
	Empty
	// Retryable covers rate limiting, other statuses and transport failures.
	Retryable
	// Fatal means the attempt cannot succeed by trying again, usually
	// because the context was cancelled.
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Saved:
		return "saved"
	case Empty:
		return "empty"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single tile fetch.
type Outcome struct {
	Kind OutcomeKind

	// Status is the HTTP status code, 0 when no response arrived.
	Status int

	// Body is the tile PNG for Saved outcomes.
	Body []byte

	// Delay is the server-advised (or default) wait for Retryable outcomes.
	Delay time.Duration

	// Err describes Retryable and Fatal outcomes.
	Err error
}
