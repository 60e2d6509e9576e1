package wire

import "errors"

var (
	ErrTruncated  = errors.New("frame shorter than its declared length")
	ErrBadTag     = errors.New("unknown type tag")
	ErrNoTerminal = errors.New("document missing zero terminator")
)
