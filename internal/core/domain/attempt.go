package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState is the scheduler state of a single delivery attempt.
//
// SCHEDULED -> IN_FLIGHT -> SUCCEEDED
//                        -> FAILED    (a follow-up attempt is scheduled)
//                        -> EXHAUSTED (terminal failure, no retry remains)
type AttemptState string

const (
	AttemptStateScheduled AttemptState = "SCHEDULED"
	AttemptStateInFlight  AttemptState = "IN_FLIGHT"
	AttemptStateSucceeded AttemptState = "SUCCEEDED"
	AttemptStateFailed    AttemptState = "FAILED"
	AttemptStateExhausted AttemptState = "EXHAUSTED"
)

// AttemptOutcome is the coarse outcome exposed by the delivery-history API.
type AttemptOutcome string

const (
	OutcomePending AttemptOutcome = "pending"
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
)

// DeliveryAttempt records one delivery attempt of an event to an endpoint.
// Attempt numbers per (endpoint, event) pair are 1-based and gapless.
type DeliveryAttempt struct {
	ID            uuid.UUID    `json:"id"`
	EndpointID    uuid.UUID    `json:"endpoint_id"`
	EventID       uuid.UUID    `json:"event_id"`
	AttemptNumber int          `json:"attempt_number"`
	State         AttemptState `json:"state"`
	// HTTPStatus is nil when the request failed before a response arrived
	// (timeout, DNS, TLS).
	HTTPStatus      *int       `json:"http_status"`
	ResponseSnippet *string    `json:"response_snippet,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`
	RequestedAt     *time.Time `json:"requested_at,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Outcome maps the scheduler state to the API-facing outcome.
func (a *DeliveryAttempt) Outcome() AttemptOutcome {
	switch a.State {
	case AttemptStateSucceeded:
		return OutcomeSuccess
	case AttemptStateFailed, AttemptStateExhausted:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// IsTerminal returns true once the attempt can no longer change state.
func (a *DeliveryAttempt) IsTerminal() bool {
	return a.State == AttemptStateSucceeded || a.State == AttemptStateExhausted
}

// IsOpen returns true while the attempt is scheduled or being delivered.
func (a *DeliveryAttempt) IsOpen() bool {
	return a.State == AttemptStateScheduled || a.State == AttemptStateInFlight
}
