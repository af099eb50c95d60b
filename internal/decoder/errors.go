package decoder

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// The file is not in a format this package can decode
	ErrUnsupportedFormat = errors.New("unsupported format")

	// The file could be opened but its contents could not be decoded
	ErrCorruptStream = errors.New("corrupt stream")

	// Reading the file failed
	ErrIO = errors.New("io error")
)

// A DecodeError records the failed operation, the file and the kind of failure.
// errors.Is matches both Kind and the underlying error.
type DecodeError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func newDecodeError(op, path string, kind, err error) *DecodeError {
	return &DecodeError{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Sort an error raised while reading a stream into one of the decode error kinds.
func classify(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrClosed) {
		return ErrIO
	}
	// Truncated data and malformed headers alike
	return ErrCorruptStream
}
