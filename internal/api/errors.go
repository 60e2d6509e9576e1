package api

import "errors"

var (
	ErrNotFound    = errors.New("no market data for this scope")
	ErrRateLimited = errors.New("rate limited by market API")
	ErrBatchSize   = errors.New("too many items for one request")
)
