package cos

import (
	"errors"
	"io"
)

// IsEOF reports whether err is (or wraps) io.EOF or io.ErrUnexpectedEOF —
// used when draining WAL replay and snapshot archive streams.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
