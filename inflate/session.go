// Package inflate decodes the zlib stream header (RFC 1950) and the
// descriptor of the first DEFLATE block (RFC 1951) incrementally.
//
// A Session is fed bytes in chunks of any size:
//
//	s := inflate.NewSession()
//	if _, err := s.Feed(chunk); err != nil {
//		return err
//	}
//	// ... more chunks ...
//	hdr, err := s.Finish()
//
// Sessions share no state, so any number of them may run concurrently.
// A single Session is not safe for concurrent use.
package inflate

const DefaultChunkSize = 4096

// Session holds all mutable state of one decode attempt.
type Session struct {
	acc      bitAccumulator
	state    State
	header   Header
	consumed int64

	observer  Observer
	chunkSize int
}

// Option configures a Session.
type Option func(*Session)

// WithObserver installs fn to receive every assembled header field.
func WithObserver(fn Observer) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithChunkSize sets the read size used by Decode. Values below 1 select
// DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Session) {
		s.chunkSize = n
	}
}

// NewSession returns a Session awaiting the CMF byte.
func NewSession(opts ...Option) *Session {
	s := &Session{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize < 1 {
		s.chunkSize = DefaultChunkSize
	}

	s.enter(AwaitingCMF)

	return s
}

// State returns a snapshot of the parser state.
func (s *Session) State() State {
	return s.state
}

// Consumed returns the number of input bytes the session has read from,
// including a byte that was only partly used.
func (s *Session) Consumed() int64 {
	return s.consumed
}

// Header returns the decoded header once the session is Done.
func (s *Session) Header() (Header, bool) {
	if s.state.Kind != Done {
		return Header{}, false
	}
	return s.header, true
}
