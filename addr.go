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

import "encoding/binary"

// readDebugAddr resolves index i of the addrx indirection through
// .debug_addr, per §4.6. addrBase must be at least 8: the v5 header
// immediately precedes it (unit_length at addrBase-8, version at
// addrBase-4, address_size at addrBase-2, segment_selector_size at
// addrBase-1).
func readDebugAddr(section []byte, order binary.ByteOrder, addrBase uint64, i uint64) (uint64, error) {
	if addrBase < 8 {
		return 0, bad(".debug_addr base 0x%x is too small to carry a header", addrBase)
	}
	if addrBase > uint64(len(section)) {
		return 0, bad(".debug_addr base 0x%x beyond section length %d", addrBase, len(section))
	}

	c := NewCursor(section, order, 8)

	if err := c.SeekTo(int(addrBase - 4)); err != nil {
		return 0, err
	}
	version, err := c.ReadUint16()
	if err != nil {
		return 0, err
	}
	if version != 5 {
		return 0, bad(".debug_addr header version %d is not 5", version)
	}

	if err := c.SeekTo(int(addrBase - 2)); err != nil {
		return 0, err
	}
	addrSize, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	segSize, err := c.ReadU8()
	if err != nil {
		return 0, err
	}

	switch addrSize {
	case 1, 2, 4, 8:
	default:
		return 0, bad(".debug_addr address size %d is unsupported", addrSize)
	}

	stride := int(addrSize) + int(segSize)
	offset := addrBase + uint64(stride)*i

	if err := c.SeekTo(int(offset)); err != nil {
		return 0, bad(".debug_addr index %d out of range: %v", i, err)
	}
	if segSize > 0 {
		if _, err := c.ReadBytes(int(segSize)); err != nil {
			return 0, err
		}
	}

	switch addrSize {
	case 1:
		v, err := c.ReadU8()
		return uint64(v), err
	case 2:
		v, err := c.ReadUint16()
		return uint64(v), err
	case 4:
		v, err := c.ReadUint32()
		return uint64(v), err
	default:
		return c.ReadUint64()
	}
}
