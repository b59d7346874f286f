package apikey

import "errors"

var (
	ErrNotFound   = errors.New("api key not found")
	ErrInvalidKey = errors.New("invalid api key")
	ErrStorage    = errors.New("api key storage error")
)
