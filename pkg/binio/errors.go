package binio

import (
	"errors"
	"fmt"
)

// Decode failure taxonomy shared by every OpenTibia decoder.
var (
	ErrUnexpectedEnd   = errors.New("unexpected end of data")
	ErrMalformedStream = errors.New("malformed stream")
	ErrUnknownTag      = errors.New("unknown tag")
	ErrDecode          = errors.New("undecodable string")
	ErrPrecondition    = errors.New("precondition violated")
)

// Errorf wraps sentinel with a message prefixed by the current byte offset.
func (r *Reader) Errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", sentinel, r.off, fmt.Sprintf(format, args...))
}
