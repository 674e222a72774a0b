package inflate

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrCompressionMethod  = errors.New("inflate: unsupported compression method")
	ErrWindowSize         = errors.New("inflate: unsupported window size")
	ErrHeaderChecksum     = errors.New("inflate: invalid header checksum")
	ErrUnsupportedFeature = errors.New("inflate: preset dictionary not supported")
	ErrIncompleteStream   = errors.New("inflate: stream ended before block type")
)

// FieldError records which header field failed validation and where.
type FieldError struct {
	Field  string // name of the state that rejected the field
	Value  uint32 // raw field value
	Offset int64  // input bytes consumed when the failure was detected
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v (field %s, value %#x, offset %d)", e.Err, e.Field, e.Value, e.Offset)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Kind returns a short stable name for err, suitable for log fields and
// stored results. Errors outside this package map to "io".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCompressionMethod):
		return "compression_method"
	case errors.Is(err, ErrWindowSize):
		return "window_size"
	case errors.Is(err, ErrHeaderChecksum):
		return "header_checksum"
	case errors.Is(err, ErrUnsupportedFeature):
		return "unsupported_feature"
	case errors.Is(err, ErrIncompleteStream):
		return "incomplete_stream"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "io"
	}
}
