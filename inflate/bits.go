package inflate

import "fmt"

const maxFieldWidth = 32

// bitAccumulator assembles a field of up to 32 bits from a byte stream,
// least significant bit first. A field may start in the middle of a byte
// and end in the middle of a later one; the partially read byte is kept
// until the next field drains it.
type bitAccumulator struct {
	width   int    // bits requested for the current field
	digits  int    // bits collected so far
	value   uint32 // collected bits, digit 0 is the earliest bit
	offset  uint   // next bit to read from pending, always < 8
	pending byte   // last byte handed to consume
}

// want arms the accumulator for a width-bit field. It reports whether
// bits from the previous byte are still buffered, in which case the caller
// must call resume before supplying new input.
func (a *bitAccumulator) want(width int) bool {
	if width < 1 || width > maxFieldWidth {
		panic(fmt.Sprintf("inflate: field width %d out of range", width))
	}

	a.width = width
	a.digits = 0
	a.value = 0

	return a.offset != 0
}

// consume reads bits from b starting at the current bit offset. It returns
// the field value and true once width bits have been collected, or false
// when b ran out first.
func (a *bitAccumulator) consume(b byte) (uint32, bool) {
	a.pending = b

	for a.digits < a.width {
		a.value |= uint32(b>>a.offset&1) << a.digits
		a.digits++
		a.offset++

		if a.offset == 8 {
			a.offset = 0
			if a.digits < a.width {
				return 0, false
			}
		}
	}

	return a.value, true
}

// resume continues the current field from the buffered byte.
func (a *bitAccumulator) resume() (uint32, bool) {
	return a.consume(a.pending)
}

// buffered reports how many unread bits remain in the pending byte.
func (a *bitAccumulator) buffered() int {
	if a.offset == 0 {
		return 0
	}
	return 8 - int(a.offset)
}
