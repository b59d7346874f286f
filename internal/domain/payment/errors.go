package payment

import "errors"

var (
	// ErrIntentNotFound means no intent exists for the reference.
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrGatewayUnavailable means the gateway could not be reached or
	// answered with an error; the intent stays reconcilable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvalidAmount rejects zero or negative top-up amounts.
	ErrInvalidAmount = errors.New("top-up amount must be positive")

	// ErrStorage wraps database failures.
	ErrStorage = errors.New("payment storage error")
)
