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

// buildDebugAddr assembles a .debug_addr section with a v5 header
// (address_size=8, segment_selector_size=0) at offset headerOffset,
// followed by the given 8-byte addresses.
func buildDebugAddr(headerOffset int, addrs []uint64) (section []byte, base uint64) {
	section = make([]byte, headerOffset)
	var unitLen [4]byte
	binary.LittleEndian.PutUint32(unitLen[:], uint32(2+1+1+8*len(addrs)))
	section = append(section, unitLen[:]...)
	section = append(section, 0x05, 0x00) // version 5
	section = append(section, 0x08)       // address_size
	section = append(section, 0x00)       // segment_selector_size
	base = uint64(len(section))
	for _, a := range addrs {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], a)
		section = append(section, b[:]...)
	}
	return section, base
}

func TestReadDebugAddr(t *testing.T) {
	section, base := buildDebugAddr(0, []uint64{0x1000, 0x2000, 0x3000})

	v, err := readDebugAddr(section, binary.LittleEndian, base, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0x1000, v)

	v, err = readDebugAddr(section, binary.LittleEndian, base, 2)
	require.NoError(t, err)
	require.EqualValues(t, 0x3000, v)
}

func TestReadDebugAddrOutOfRangeIsInvalid(t *testing.T) {
	section, base := buildDebugAddr(0, []uint64{0x1000})
	_, err := readDebugAddr(section, binary.LittleEndian, base, 5)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestReadDebugAddrBadVersionIsInvalid(t *testing.T) {
	section, base := buildDebugAddr(0, []uint64{0x1000})
	section[int(base)-4] = 4 // corrupt the version field
	_, err := readDebugAddr(section, binary.LittleEndian, base, 0)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}
