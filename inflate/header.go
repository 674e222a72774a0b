package inflate

const (
	methodDeflate = 8
	infoWindow32K = 7
	flagDict      = 1 << 5
)

// BlockType is the 2-bit BTYPE field of a DEFLATE block.
type BlockType uint8

const (
	BlockStored BlockType = iota
	BlockFixed
	BlockDynamic
	BlockReserved
)

func (t BlockType) String() string {
	switch t {
	case BlockStored:
		return "stored"
	case BlockFixed:
		return "fixed"
	case BlockDynamic:
		return "dynamic"
	case BlockReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// CompressionLevel is the FLEVEL hint carried in bits 6-7 of FLG.
type CompressionLevel uint8

func (l CompressionLevel) String() string {
	switch l {
	case 0:
		return "fastest"
	case 1:
		return "fast"
	case 2:
		return "default"
	case 3:
		return "maximum"
	default:
		return "unknown"
	}
}

// Header is a validated zlib header together with the descriptor of the
// first DEFLATE block.
type Header struct {
	CMF    byte
	FLG    byte
	Method uint8 // CM, always 8
	Info   uint8 // CINFO, always 7
	Dict   bool  // FDICT, always false for a decoded header
	Level  CompressionLevel
	Final  bool      // BFINAL
	Type   BlockType // BTYPE
}

// WindowSize returns the LZ77 window size announced by CINFO.
func (h Header) WindowSize() int {
	return 1 << (uint(h.Info) + 8)
}

// Sniff reports whether p starts with two bytes that look like a zlib
// header: DEFLATE method and a valid FCHECK.
func Sniff(p []byte) bool {
	if len(p) < 2 {
		return false
	}
	return p[0]&0x0f == methodDeflate && (uint16(p[0])<<8|uint16(p[1]))%31 == 0
}
