package feed

import "errors"

var (
	ErrDisposed  = errors.New("session disposed")
	ErrDisabled  = errors.New("live feed disabled in settings")
	ErrThrottled = errors.New("connect attempted too soon after previous attempt")
)
