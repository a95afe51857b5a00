// This file is part of dwarfcore.
//
// dwarfcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// dwarfcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with dwarfcore.  If not, see <https://www.gnu.org/licenses/>.

// Package leb128 decodes the variable-length integer encodings used
// throughout DWARF: unsigned LEB128 and signed LEB128.
package leb128

import "fmt"

// ErrOverflow is returned when a decoded LEB128 value does not fit in the
// requested fixed-width type.
var ErrOverflow = fmt.Errorf("leb128: value overflows requested width")

// DecodeULEB128 decodes an unsigned LEB128 value from the start of encoded,
// per page 218 of the DWARF4 Standard, figure 46.
//
// It returns the decoded value and the number of bytes consumed. If encoded
// ends before a terminating byte (top bit clear) is seen, n is len(encoded)
// and the caller should treat the result as truncated.
func DecodeULEB128(encoded []uint8) (uint64, int) {
	var result uint64
	var shift uint64

	var n int
	for _, v := range encoded {
		n++
		result |= uint64(v&0x7f) << shift
		if v&0x80 == 0x00 {
			break
		}
		shift += 7
	}

	return result, n
}

// DecodeSLEB128 decodes a signed LEB128 value from the start of encoded, per
// page 218 of the DWARF4 Standard, figure 47.
func DecodeSLEB128(encoded []uint8) (int64, int) {
	const size = 64

	var result int64
	var shift uint64

	var v uint8
	var n int
	for _, v = range encoded {
		n++
		result |= int64(v&0x7f) << shift
		shift += 7
		if v&0x80 == 0x00 {
			break
		}
	}

	// sign extend from the last byte read
	if shift < size && v&0x40 > 0 {
		result |= -(1 << shift)
	}

	return result, n
}

// FitsUnsigned reports whether v fits in an unsigned integer of the given
// bit width without truncation.
func FitsUnsigned(v uint64, bits int) bool {
	if bits >= 64 {
		return true
	}
	return v>>uint(bits) == 0
}

// FitsSigned reports whether v fits in a two's-complement signed integer of
// the given bit width without truncation.
func FitsSigned(v int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	max := int64(1)<<uint(bits-1) - 1
	min := -(int64(1) << uint(bits-1))
	return v >= min && v <= max
}
