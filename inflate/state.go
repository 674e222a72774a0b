package inflate

// StateKind tags the parser state of a Session.
type StateKind int

const (
	AwaitingCMF StateKind = iota
	AwaitingFLG
	AwaitingDictionary
	AwaitingBFINAL
	AwaitingBTYPE
	Done
	Failed
)

var stateNames = [...]string{
	AwaitingCMF:        "cmf",
	AwaitingFLG:        "flg",
	AwaitingDictionary: "dict",
	AwaitingBFINAL:     "bfinal",
	AwaitingBTYPE:      "btype",
	Done:               "done",
	Failed:             "failed",
}

func (k StateKind) String() string {
	if k < 0 || int(k) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[k]
}

// Terminal reports whether no further input can change the state.
func (k StateKind) Terminal() bool {
	return k == Done || k == Failed
}

// State is a snapshot of a Session's parser state. CMF and Final carry the
// fields captured so far; Err is set once Kind is Failed.
type State struct {
	Kind  StateKind
	CMF   byte
	Final bool
	Err   error
}

// Event is one assembled header field, reported to an Observer before the
// field is validated.
type Event struct {
	State string
	Value uint32
}

// Observer receives field events. It must not retain the Session.
type Observer func(Event)

// fieldWidth is the number of bits each non-terminal state assembles.
func fieldWidth(k StateKind) int {
	switch k {
	case AwaitingCMF, AwaitingFLG:
		return 8
	case AwaitingBFINAL:
		return 1
	case AwaitingBTYPE:
		return 2
	default:
		return 0
	}
}

// transition applies one assembled field to the current state and moves
// the session to its successor.
func (s *Session) transition(v uint32) {
	field := s.state.Kind.String()
	if s.observer != nil {
		s.observer(Event{State: field, Value: v})
	}

	switch s.state.Kind {
	case AwaitingCMF:
		cmf := byte(v)
		if cmf&0x0f != methodDeflate {
			s.fail(field, v, ErrCompressionMethod)
			return
		}
		if cmf>>4&0x0f != infoWindow32K {
			s.fail(field, v, ErrWindowSize)
			return
		}
		s.state.CMF = cmf
		s.header.CMF = cmf
		s.header.Method = cmf & 0x0f
		s.header.Info = cmf >> 4
		s.enter(AwaitingFLG)

	case AwaitingFLG:
		flg := byte(v)
		if (uint16(s.state.CMF)<<8+uint16(flg))%31 != 0 {
			s.fail(field, v, ErrHeaderChecksum)
			return
		}
		s.header.FLG = flg
		s.header.Level = CompressionLevel(flg >> 6)
		if flg&flagDict != 0 {
			s.header.Dict = true
			s.state.Kind = AwaitingDictionary
			s.fail(AwaitingDictionary.String(), v, ErrUnsupportedFeature)
			return
		}
		s.enter(AwaitingBFINAL)

	case AwaitingBFINAL:
		s.state.Final = v == 1
		s.header.Final = s.state.Final
		s.enter(AwaitingBTYPE)

	case AwaitingBTYPE:
		s.header.Type = BlockType(v)
		s.state.Kind = Done
	}
}

// enter moves to a field-reading state and arms the accumulator. When the
// previous field ended mid-byte the buffered bits are drained right away.
func (s *Session) enter(k StateKind) {
	s.state.Kind = k
	if !s.acc.want(fieldWidth(k)) {
		return
	}
	if v, ok := s.acc.resume(); ok {
		s.transition(v)
	}
}

func (s *Session) fail(field string, v uint32, err error) {
	s.state.Kind = Failed
	s.state.Err = &FieldError{
		Field:  field,
		Value:  v,
		Offset: s.consumed,
		Err:    err,
	}
}
