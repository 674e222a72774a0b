package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/config"
	"github.com/dselans/zpeek/validate"
)

// Sink receives scan results
type Sink interface {
	Write(ctx context.Context, e *types.Entry) error
	Close() error
}

// New returns the sink selected by [destination]
func New(ctx context.Context, d *config.TOMLDestination) (Sink, error) {
	if d == nil {
		return nil, errors.New("destination cannot be nil")
	}

	var (
		s   Sink
		err error
	)

	switch d.Type {
	case "file":
		s, err = NewFileSink(d.Path)
	case "postgres", "mysql":
		s, err = NewSQLSink(ctx, d.Type, d.DSN, d.Table)
	default:
		return nil, errors.Errorf("unsupported destination type '%s'", d.Type)
	}

	if err != nil {
		return nil, err
	}

	return s, nil
}

// Discard drops every entry; dry runs use it so the destination is never
// opened.
type Discard struct{}

func (Discard) Write(context.Context, *types.Entry) error {
	return nil
}

func (Discard) Close() error {
	return nil
}

// FileSink writes one JSON document per line
type FileSink struct {
	mu  sync.Mutex
	c   io.Closer
	enc *json.Encoder
}

// NewFileSink opens path for appending; "-" writes to stdout
func NewFileSink(path string) (*FileSink, error) {
	if path == "-" {
		return newFileSink(os.Stdout, nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open destination file '%s'", path)
	}

	return newFileSink(f, f), nil
}

func newFileSink(w io.Writer, c io.Closer) *FileSink {
	return &FileSink{
		c:   c,
		enc: json.NewEncoder(w),
	}
}

func (f *FileSink) Write(_ context.Context, e *types.Entry) error {
	if err := validate.Entry(e); err != nil {
		return errors.Wrap(err, "refusing to write invalid entry")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enc.Encode(e); err != nil {
		return errors.Wrap(err, "unable to write entry")
	}

	return nil
}

func (f *FileSink) Close() error {
	if f.c == nil {
		return nil
	}

	return f.c.Close()
}
