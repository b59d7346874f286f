package webhook

import "errors"

var (
	ErrNotFound      = errors.New("webhook subscription not found")
	ErrInvalidEvents = errors.New("unknown event name in selection")
	ErrStorage       = errors.New("webhook storage error")
)
