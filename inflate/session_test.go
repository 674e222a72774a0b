package inflate

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll feeds in as the given chunks and finishes the session, returning
// the header, ordered field events and error.
func feedAll(t *testing.T, chunks [][]byte) (Header, []Event, error) {
	t.Helper()

	var events []Event
	s := NewSession(WithObserver(func(e Event) {
		events = append(events, e)
	}))

	for _, c := range chunks {
		s.Feed(c)
	}

	hdr, err := s.Finish()
	return hdr, events, err
}

func split(in []byte, size int) [][]byte {
	var out [][]byte
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	return append(out, in)
}

func TestSessionConcreteScenario(t *testing.T) {
	hdr, events, err := feedAll(t, [][]byte{{0x78, 0x9C, 0x01}})
	require.NoError(t, err)

	assert.True(t, hdr.Final)
	assert.Equal(t, BlockStored, hdr.Type)
	assert.EqualValues(t, 8, hdr.Method)
	assert.EqualValues(t, 7, hdr.Info)
	assert.Equal(t, 32768, hdr.WindowSize())
	assert.Equal(t, "default", hdr.Level.String())
	assert.Equal(t, []Event{
		{State: "cmf", Value: 0x78},
		{State: "flg", Value: 0x9c},
		{State: "bfinal", Value: 1},
		{State: "btype", Value: 0},
	}, events)
}

func TestSessionBlockTypes(t *testing.T) {
	tests := []struct {
		third byte
		final bool
		typ   BlockType
	}{
		{0b000, false, BlockStored},
		{0b001, true, BlockStored},
		{0b010, false, BlockFixed},
		{0b011, true, BlockFixed},
		{0b100, false, BlockDynamic},
		{0b101, true, BlockDynamic},
		{0b110, false, BlockReserved},
		{0b111, true, BlockReserved},
		{0b11111000, false, BlockStored},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%08b", tc.third), func(t *testing.T) {
			hdr, _, err := feedAll(t, [][]byte{{0x78, 0x01, tc.third}})
			require.NoError(t, err)
			assert.Equal(t, tc.final, hdr.Final)
			assert.Equal(t, tc.typ, hdr.Type)
		})
	}
}

func TestSessionCompressionMethod(t *testing.T) {
	for cmf := 0; cmf < 256; cmf++ {
		if cmf&0x0f == 8 {
			continue
		}
		for _, flg := range []byte{0x00, 0x01, 0x9c, 0xda, 0xff} {
			_, _, err := feedAll(t, [][]byte{{byte(cmf), flg, 0x01}})
			require.Truef(t, errors.Is(err, ErrCompressionMethod), "cmf %#x flg %#x: %v", cmf, flg, err)
		}
	}
}

func TestSessionWindowSize(t *testing.T) {
	for info := 0; info < 16; info++ {
		if info == 7 {
			continue
		}
		cmf := byte(info<<4 | 8)
		_, _, err := feedAll(t, [][]byte{{cmf}})
		require.Truef(t, errors.Is(err, ErrWindowSize), "cmf %#x: %v", cmf, err)
	}
}

func TestSessionHeaderChecksum(t *testing.T) {
	for flg := 0; flg < 256; flg++ {
		_, _, err := feedAll(t, [][]byte{{0x78, byte(flg), 0x01}})
		if (0x78*256+flg)%31 != 0 {
			require.Truef(t, errors.Is(err, ErrHeaderChecksum), "flg %#x: %v", flg, err)
			continue
		}
		if flg&0x20 != 0 {
			require.Truef(t, errors.Is(err, ErrUnsupportedFeature), "flg %#x: %v", flg, err)
			continue
		}
		require.NoErrorf(t, err, "flg %#x", flg)
	}
}

func TestSessionPresetDictionary(t *testing.T) {
	// 0x78 0xBB has FDICT set and a valid FCHECK
	require.Zero(t, (0x78*256+0xBB)%31)

	for _, tail := range [][]byte{nil, {0x01}, {0x00, 0x00, 0x00, 0x01, 0x01}} {
		s := NewSession()
		st, err := s.Feed([]byte{0x78, 0xBB})
		require.Equal(t, Failed, st.Kind)
		require.True(t, errors.Is(err, ErrUnsupportedFeature))

		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "dict", fe.Field)

		_, err2 := s.Feed(tail)
		require.Equal(t, err, err2)
		_, err3 := s.Finish()
		require.Equal(t, err, err3)
	}
}

func TestSessionIncomplete(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x78},
		{0x78, 0x9c},
	}

	for _, in := range inputs {
		s := NewSession()
		st, err := s.Feed(in)
		require.NoError(t, err)
		require.False(t, st.Kind.Terminal())

		_, err = s.Finish()
		require.True(t, errors.Is(err, ErrIncompleteStream), "input %x: %v", in, err)
		require.Equal(t, Failed, s.State().Kind)

		// re-signals the same failure
		_, err2 := s.Feed([]byte{0x01})
		require.Equal(t, err, err2)
	}
}

func TestSessionFailedIsSticky(t *testing.T) {
	s := NewSession()
	st, err := s.Feed([]byte{0x77})
	require.Equal(t, Failed, st.Kind)
	require.True(t, errors.Is(err, ErrCompressionMethod))
	require.EqualValues(t, 1, s.Consumed())

	for i := 0; i < 3; i++ {
		st2, err2 := s.Feed([]byte{0x78, 0x9c, 0x01})
		require.Equal(t, st, st2)
		require.Equal(t, err, err2)
	}
	require.EqualValues(t, 1, s.Consumed())
}

func TestSessionDoneIgnoresTrailing(t *testing.T) {
	s := NewSession()
	st, err := s.Feed([]byte{0x78, 0x9c, 0x03, 0xff, 0xff})
	require.NoError(t, err)
	require.Equal(t, Done, st.Kind)
	require.EqualValues(t, 3, s.Consumed())

	hdr, ok := s.Header()
	require.True(t, ok)
	require.True(t, hdr.Final)
	require.Equal(t, BlockFixed, hdr.Type)
}

func TestSessionChunkBoundaryInvariance(t *testing.T) {
	inputs := [][]byte{
		{0x78, 0x9C, 0x01},
		{0x78, 0xDA, 0xED, 0x00},
		{0x78, 0x01, 0x04},
		{0x78, 0x5E, 0x07},
		{0x78, 0xBB, 0x00, 0x00},
		{0x78, 0x9D, 0x01},
		{0x38, 0x9C},
		{0x78},
	}

	rng := rand.New(rand.NewSource(1950))
	for _, in := range inputs {
		wantHdr, wantEvents, wantErr := feedAll(t, [][]byte{in})

		chunkings := [][][]byte{split(in, 1), split(in, 2)}
		for i := 0; i < 10; i++ {
			chunkings = append(chunkings, randomSplit(rng, in))
		}

		for _, chunks := range chunkings {
			hdr, events, err := feedAll(t, chunks)
			require.Equal(t, wantHdr, hdr)
			require.Equal(t, Kind(wantErr), Kind(err))
			require.Equal(t, wantEvents, events)
		}
	}
}

func randomSplit(rng *rand.Rand, in []byte) [][]byte {
	var out [][]byte
	for len(in) > 0 {
		// empty chunks are legal and must not disturb anything
		n := rng.Intn(len(in) + 1)
		out = append(out, in[:n])
		in = in[n:]
	}
	return out
}

func TestSessionsInterleaved(t *testing.T) {
	good := []byte{0x78, 0x9C, 0x03}
	bad := []byte{0x79, 0x9C, 0x03}

	a := NewSession()
	b := NewSession()
	for i := range good {
		a.Feed(good[i : i+1])
		b.Feed(bad[i : i+1])
	}

	hdr, err := a.Finish()
	require.NoError(t, err)
	require.True(t, hdr.Final)
	require.Equal(t, BlockFixed, hdr.Type)

	_, err = b.Finish()
	require.True(t, errors.Is(err, ErrCompressionMethod))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "header_checksum", Kind(&FieldError{Err: ErrHeaderChecksum}))
	assert.Equal(t, "incomplete_stream", Kind(errors.Wrap(ErrIncompleteStream, "scan")))
	assert.Equal(t, "io", Kind(errors.New("disk on fire")))
}

func TestSniff(t *testing.T) {
	assert.True(t, Sniff([]byte{0x78, 0x9c}))
	assert.True(t, Sniff([]byte{0x78, 0xda, 0x00}))
	assert.False(t, Sniff([]byte{0x78, 0x9d}))
	assert.False(t, Sniff([]byte{0x1f, 0x8b}))
	assert.False(t, Sniff([]byte{0x78}))
}
