package inflate

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Feed hands p to the session. It may be called any number of times with
// chunks of any length; decoding resumes exactly where the previous call
// stopped. Bytes fed after Done are ignored. Once the session has failed,
// Feed returns the same error on every call without reading p.
func (s *Session) Feed(p []byte) (State, error) {
	for _, b := range p {
		if s.state.Kind.Terminal() {
			break
		}

		s.consumed++
		if v, ok := s.acc.consume(b); ok {
			s.transition(v)
		}
	}

	return s.state, s.state.Err
}

// Finish signals the end of input. It returns the header if the session
// reached Done, the original failure if it failed, and ErrIncompleteStream
// otherwise. The incomplete case is final: the session moves to Failed.
func (s *Session) Finish() (Header, error) {
	switch s.state.Kind {
	case Done:
		return s.header, nil
	case Failed:
		return Header{}, s.state.Err
	}

	s.fail(s.state.Kind.String(), s.acc.value, ErrIncompleteStream)

	return Header{}, s.state.Err
}

// maxEmptyReads bounds consecutive (0, nil) reads, as bufio does.
const maxEmptyReads = 100

// Decode reads r in chunks and feeds a fresh Session until it reaches a
// terminal state or r is exhausted. It stops reading as soon as the block
// type is known, so trailing data is left unread.
func Decode(ctx context.Context, r io.Reader, opts ...Option) (Header, error) {
	s := NewSession(opts...)
	buf := make([]byte, s.chunkSize)

	var empty int

	for !s.state.Kind.Terminal() {
		if err := ctx.Err(); err != nil {
			return Header{}, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
			empty = 0
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return Header{}, errors.Wrap(err, "unable to read stream")
		}

		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return Header{}, errors.Wrap(io.ErrNoProgress, "unable to read stream")
			}
		}
	}

	return s.Finish()
}
