package socketcan

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	// ErrInvalidArgument marks a caller supplied value that violates a
	// precondition (oversized interface name or payload, unexpected option size).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPartialFrame is wrapped in an *OpError when sendto wrote fewer bytes
	// than a full frame record. SocketCAN sends frames atomically so this is
	// never a recoverable partial send.
	ErrPartialFrame = errors.New("send partial frame")
	// ErrUnsupported is returned by every syscall on platforms without SocketCAN.
	ErrUnsupported = errors.New("socketcan unsupported on this platform")
)

// OpError is the I/O error kind: a failed syscall (or short send) together
// with the operation that produced it. Err is usually a unix.Errno whose
// message is the OS error description.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// IsIOError reports whether err carries an *OpError.
func IsIOError(err error) bool {
	var oe *OpError
	return errors.As(err, &oe)
}
