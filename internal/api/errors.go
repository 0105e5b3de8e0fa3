package api

import "errors"

var (
	ErrNotFound    = errors.New("no chain for this ticker/date")
	ErrRateLimited = errors.New("rate limited by API")
	ErrAuthFailed  = errors.New("authentication failed")
)
