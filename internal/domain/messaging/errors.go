package messaging

import "errors"

var (
	// ErrNoUnits is returned when a meter call carries no send units
	ErrNoUnits = errors.New("no send units")

	// ErrBatchAborted wraps a batch-fatal storage error; units metered
	// before the abort keep their outcomes.
	ErrBatchAborted = errors.New("batch aborted")
)
