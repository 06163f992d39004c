package respio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSyntax = errors.New("invalid RESP syntax")
	ErrBadCRLFEnd    = errors.New("bad CRLF end")
	ErrUnknownType   = errors.New("unknown reply type")
	ErrTooLarge      = errors.New("value too large")
)

// ProtocolError is a violation of the RESP grammar. The stream position after
// a ProtocolError is undefined.
type ProtocolError struct {
	Err    error
	Detail string
}

func newProtocolError(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol error: %v", e.Err)
	}
	return fmt.Sprintf("protocol error: %v: %s", e.Err, e.Detail)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ServerError is a well-formed error reply sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Prefix returns the error code, the first word of the message (e.g. "ERR", "WRONGTYPE").
func (e *ServerError) Prefix() string {
	if idx := strings.IndexByte(e.Message, ' '); idx >= 0 {
		return e.Message[:idx]
	}
	return e.Message
}

func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

func IsServerError(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}
