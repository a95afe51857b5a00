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

package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/dwarfcore/leb128"
)

// Format distinguishes the 32-bit and 64-bit DWARF encodings selected by
// the initial-length header (§4.1).
type Format int

const (
	Format32 Format = iota
	Format64
)

// offsetSize returns 4 for 32-bit DWARF, 8 for 64-bit DWARF.
func (f Format) offsetSize() int {
	if f == Format64 {
		return 8
	}
	return 4
}

// UnitHeader is the result of decoding a DWARF initial-length field: the
// format it selects, the number of bytes the length field itself occupied,
// and the unit length that follows it.
type UnitHeader struct {
	Format       Format
	HeaderLength int
	UnitLength   uint64
}

// End returns the cursor offset one past the end of the unit whose header
// started at headerStart.
func (h UnitHeader) End(headerStart int) int {
	return headerStart + h.HeaderLength + int(h.UnitLength)
}

// Cursor is a positioned reader over a byte slice, with primitives for
// fixed-width integers, LEB128, length-prefixed and NUL-terminated byte
// ranges, and the DWARF initial-length header discipline (§4.1).
//
// ReadBytes and ReadBytesUntil never copy: their results borrow directly
// from the slice the Cursor was constructed over. ReadCString copies.
type Cursor struct {
	data  []byte
	pos   int
	order binary.ByteOrder

	// addrSize is the native address width in bytes (4 or 8), used by
	// ReadAddress and the eh_frame "absptr" pointer form.
	addrSize int

	// validate, if non-nil, is consulted before every read once base has
	// been set via SetMemoryBase; used only when reading live process
	// memory (§5).
	validate MemoryValidator
	base     uint64
	baseSet  bool
}

// NewCursor returns a Cursor over data using the given byte order and
// native address size (4 or 8).
func NewCursor(data []byte, order binary.ByteOrder, addrSize int) *Cursor {
	return &Cursor{data: data, order: order, addrSize: addrSize}
}

// SetMemoryBase records the runtime address corresponding to offset 0 of
// the cursor's data and installs a MemoryValidator to consult on every
// subsequent checked read. Used only when the cursor is reading live
// process memory rather than a section loaded from a file.
func (c *Cursor) SetMemoryBase(base uint64, validate MemoryValidator) {
	c.base = base
	c.baseSet = true
	c.validate = validate
}

// Len returns the total number of bytes in the cursor's data.
func (c *Cursor) Len() int { return len(c.data) }

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// AddrSize returns the native address width the cursor was constructed
// with.
func (c *Cursor) AddrSize() int { return c.addrSize }

// Order returns the cursor's byte order.
func (c *Cursor) Order() binary.ByteOrder { return c.order }

// Addr returns the runtime address of the current position, if a memory
// base has been set via SetMemoryBase.
func (c *Cursor) Addr() (uint64, bool) {
	if !c.baseSet {
		return 0, false
	}
	return c.base + uint64(c.pos), true
}

// bytes returns the cursor's underlying data, for building a second cursor
// over the same buffer (used by the DW_EH_PE_indirect dereference, which
// must not disturb the caller's position).
func (c *Cursor) bytes() []byte { return c.data }

// absoluteToOffset translates a runtime address back to a byte offset into
// the cursor's data, using the memory base installed via SetMemoryBase (if
// any); with no base installed, addr is assumed to already be a byte
// offset. Used only by the DW_EH_PE_indirect pointer dereference.
func (c *Cursor) absoluteToOffset(addr uint64) (int, error) {
	if !c.baseSet {
		return int(addr), nil
	}
	if addr < c.base {
		return 0, bad("indirect pointer target 0x%x precedes memory base 0x%x", addr, c.base)
	}
	return int(addr - c.base), nil
}

// SeekTo moves the cursor to an absolute offset.
func (c *Cursor) SeekTo(offset int) error {
	if offset < 0 || offset > len(c.data) {
		return bad("seek to %d out of range [0,%d]", offset, len(c.data))
	}
	c.pos = offset
	return nil
}

// SeekForward advances the cursor by delta bytes (may be negative).
func (c *Cursor) SeekForward(delta int) error {
	return c.SeekTo(c.pos + delta)
}

// checkAccess validates that n bytes starting at the current position may
// be read: first by bounds, then (if a memory validator is installed) by
// the caller-supplied predicate.
func (c *Cursor) checkAccess(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return bad("read of %d bytes at offset %d exceeds section length %d", n, c.pos, len(c.data))
	}
	if c.validate != nil && c.baseSet {
		addr := c.base + uint64(c.pos)
		if !c.validate(addr, n) {
			return invalidMemory(addr, n)
		}
	}
	return nil
}

// ReadU8 reads a single unsigned byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.checkAccess(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// ReadI8 reads a single signed byte.
func (c *Cursor) ReadI8() (int8, error) {
	v, err := c.ReadU8()
	return int8(v), err
}

// ReadUint16 reads a little/big-endian (per the cursor's order) 16-bit
// unsigned integer.
func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.checkAccess(2); err != nil {
		return 0, err
	}
	v := c.order.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadInt16 reads a 16-bit signed integer.
func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

// ReadUint24 reads a 24-bit unsigned integer (used by DW_FORM_strx3 and
// DW_FORM_addrx3).
func (c *Cursor) ReadUint24() (uint32, error) {
	if err := c.checkAccess(3); err != nil {
		return 0, err
	}
	var buf [4]byte
	// assemble manually to stay endian-correct for both orders
	b := c.data[c.pos : c.pos+3]
	if c.order == binary.BigEndian {
		buf[0] = 0
		buf[1], buf[2], buf[3] = b[0], b[1], b[2]
	} else {
		buf[0], buf[1], buf[2] = b[0], b[1], b[2]
		buf[3] = 0
	}
	v := c.order.Uint32(buf[:])
	c.pos += 3
	return v, nil
}

// ReadUint32 reads a 32-bit unsigned integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.checkAccess(4); err != nil {
		return 0, err
	}
	v := c.order.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadInt32 reads a 32-bit signed integer.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a 64-bit unsigned integer.
func (c *Cursor) ReadUint64() (uint64, error) {
	if err := c.checkAccess(8); err != nil {
		return 0, err
	}
	v := c.order.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// ReadInt64 reads a 64-bit signed integer.
func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

// ReadAddress reads a format-sized field: 4 bytes for Format32, 8 bytes for
// Format64, as used by sec_offset-style offsets and call-frame CIE ids. It
// does not depend on AddrSize, which governs DW_FORM_addr and eh_frame
// absptr reads (see ReadNativeAddress).
func (c *Cursor) ReadAddress(format Format) (uint64, error) {
	if format == Format64 {
		return c.ReadUint64()
	}
	v, err := c.ReadUint32()
	return uint64(v), err
}

// ReadNativeAddress reads an address of the cursor's native AddrSize (4 or
// 8 bytes), used for DW_FORM_addr and absptr eh_frame pointers.
func (c *Cursor) ReadNativeAddress() (uint64, error) {
	switch c.addrSize {
	case 4:
		v, err := c.ReadUint32()
		return uint64(v), err
	case 8:
		return c.ReadUint64()
	default:
		return 0, bad("unsupported address size %d", c.addrSize)
	}
}

// ReadBytes returns a borrowed slice of the next n bytes and advances past
// them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.checkAccess(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytesUntil scans forward for sentinel, returning the borrowed run of
// bytes up to (but not including) it, and consumes the sentinel too. If
// sentinel is never found the cursor is left at the end of its data and an
// error is returned.
func (c *Cursor) ReadBytesUntil(sentinel byte) ([]byte, error) {
	for i := c.pos; i < len(c.data); i++ {
		if c.data[i] == sentinel {
			if c.validate != nil && c.baseSet {
				if err := c.checkAccess(i - c.pos + 1); err != nil {
					return nil, err
				}
			}
			b := c.data[c.pos:i]
			c.pos = i + 1
			return b, nil
		}
	}
	c.pos = len(c.data)
	return nil, bad("unterminated byte run (missing 0x%02x sentinel)", sentinel)
}

// ReadCString reads a NUL-terminated byte run and returns it as a string.
// Unlike ReadBytesUntil this copies: the conversion to string allocates,
// since DWARF strings are consumed as Go strings throughout this package.
func (c *Cursor) ReadCString() (string, error) {
	b, err := c.ReadBytesUntil(0)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadULEB128 reads an unsigned LEB128 integer.
func (c *Cursor) ReadULEB128() (uint64, error) {
	if c.pos >= len(c.data) {
		return 0, bad("uleb128 read at end of section")
	}
	v, n := leb128.DecodeULEB128(c.data[c.pos:])
	if err := c.checkAccess(n); err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

// ReadSLEB128 reads a signed LEB128 integer.
func (c *Cursor) ReadSLEB128() (int64, error) {
	if c.pos >= len(c.data) {
		return 0, bad("sleb128 read at end of section")
	}
	v, n := leb128.DecodeSLEB128(c.data[c.pos:])
	if err := c.checkAccess(n); err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

// ReadULEB128As reads an unsigned LEB128 integer and casts it to T,
// failing with an error wrapping both leb128.ErrOverflow and
// ErrInvalidDebugInfo if it does not fit.
func ReadULEB128As[T ~uint8 | ~uint16 | ~uint32 | ~uint64](c *Cursor, bits int) (T, error) {
	v, err := c.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if !leb128.FitsUnsigned(v, bits) {
		return 0, fmt.Errorf("dwarf: uleb128 value %d overflows %d-bit width: %w: %w", v, bits, leb128.ErrOverflow, ErrInvalidDebugInfo)
	}
	return T(v), nil
}

// ReadSLEB128As reads a signed LEB128 integer and casts it to T, failing
// with an error wrapping both leb128.ErrOverflow and ErrInvalidDebugInfo if
// it does not fit.
func ReadSLEB128As[T ~int8 | ~int16 | ~int32 | ~int64](c *Cursor, bits int) (T, error) {
	v, err := c.ReadSLEB128()
	if err != nil {
		return 0, err
	}
	if !leb128.FitsSigned(v, bits) {
		return 0, fmt.Errorf("dwarf: sleb128 value %d overflows %d-bit width: %w: %w", v, bits, leb128.ErrOverflow, ErrInvalidDebugInfo)
	}
	return T(v), nil
}

// ReadInitialLength decodes the 4 (or 4+8) byte initial-length header that
// precedes every top-level DWARF unit, per §4.1.
func (c *Cursor) ReadInitialLength() (UnitHeader, error) {
	first, err := c.ReadUint32()
	if err != nil {
		return UnitHeader{}, err
	}
	if first < 0xfffffff0 {
		return UnitHeader{Format: Format32, HeaderLength: 4, UnitLength: uint64(first)}, nil
	}
	if first == 0xffffffff {
		length, err := c.ReadUint64()
		if err != nil {
			return UnitHeader{}, err
		}
		return UnitHeader{Format: Format64, HeaderLength: 12, UnitLength: length}, nil
	}
	return UnitHeader{}, bad("malformed initial length reserved value 0x%08x", first)
}

// ReadSecOffset reads a format-sized offset (4 bytes for Format32, 8 for
// Format64), as used by DW_FORM_sec_offset, DW_FORM_strp, DW_FORM_line_strp
// and friends.
func (c *Cursor) ReadSecOffset(format Format) (uint64, error) {
	return c.ReadAddress(format)
}
