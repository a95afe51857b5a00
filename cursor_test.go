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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadInitialLength32(t *testing.T) {
	data := []byte{0x10, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	c := NewCursor(data, binary.LittleEndian, 4)
	uh, err := c.ReadInitialLength()
	require.NoError(t, err)
	require.Equal(t, Format32, uh.Format)
	require.Equal(t, 4, uh.HeaderLength)
	require.EqualValues(t, 0x10, uh.UnitLength)
	require.Equal(t, 4, c.Pos())
}

func TestReadInitialLength64(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 0xffffffff)
	binary.LittleEndian.PutUint64(data[4:], 0x1_0000_0000)
	c := NewCursor(data, binary.LittleEndian, 8)
	uh, err := c.ReadInitialLength()
	require.NoError(t, err)
	require.Equal(t, Format64, uh.Format)
	require.Equal(t, 12, uh.HeaderLength)
	require.EqualValues(t, 0x1_0000_0000, uh.UnitLength)
}

func TestReadInitialLengthReservedValueIsInvalid(t *testing.T) {
	data := []byte{0xf5, 0xff, 0xff, 0xff}
	c := NewCursor(data, binary.LittleEndian, 4)
	_, err := c.ReadInitialLength()
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestReadPastEndIsInvalid(t *testing.T) {
	c := NewCursor([]byte{1, 2}, binary.LittleEndian, 4)
	_, err := c.ReadUint32()
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestReadBytesUntilSentinel(t *testing.T) {
	c := NewCursor([]byte("hello\x00world"), binary.LittleEndian, 8)
	s, err := c.ReadCString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
	require.Equal(t, 6, c.Pos())
}

func TestReadBytesUntilUnterminatedIsInvalid(t *testing.T) {
	c := NewCursor([]byte("hello"), binary.LittleEndian, 8)
	_, err := c.ReadCString()
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestReadULEB128AsOverflowIsInvalid(t *testing.T) {
	// 0x80, 0x80, 0x80, 0x80, 0x10 decodes to a value requiring more than 8
	// bits.
	c := NewCursor([]byte{0x80, 0x80, 0x80, 0x80, 0x10}, binary.LittleEndian, 8)
	_, err := ReadULEB128As[uint8](c, 8)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestSeekOutOfRangeIsInvalid(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3}, binary.LittleEndian, 8)
	require.Error(t, c.SeekTo(10))
	require.Error(t, c.SeekTo(-1))
	require.NoError(t, c.SeekTo(3))
}

func TestMemoryValidatorRejection(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4}, binary.LittleEndian, 8)
	c.SetMemoryBase(0x1000, func(addr uint64, n int) bool { return addr != 0x1000 })
	_, err := c.ReadU8()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidMemory)
}

func TestMemoryValidatorAccepts(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4}, binary.LittleEndian, 8)
	c.SetMemoryBase(0x1000, AlwaysValid)
	v, err := c.ReadU8()
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
	addr, ok := c.Addr()
	require.True(t, ok)
	require.EqualValues(t, 0x1001, addr)
}

func TestReadUint24BigAndLittleEndian(t *testing.T) {
	le := NewCursor([]byte{0x01, 0x02, 0x03}, binary.LittleEndian, 8)
	v, err := le.ReadUint24()
	require.NoError(t, err)
	require.EqualValues(t, 0x030201, v)

	be := NewCursor([]byte{0x01, 0x02, 0x03}, binary.BigEndian, 8)
	v, err = be.ReadUint24()
	require.NoError(t, err)
	require.EqualValues(t, 0x010203, v)
}
