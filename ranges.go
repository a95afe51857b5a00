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

// PcRange is a half-open instruction address range [Start, End).
type PcRange struct {
	Start uint64
	End   uint64
}

// Valid reports the §8 invariant Start <= End.
func (r PcRange) Valid() bool { return r.Start <= r.End }

// Contains reports whether addr falls in the half-open range.
func (r PcRange) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// rangeIter walks either .debug_ranges (DWARF <5) or .debug_rnglists
// (DWARF 5+), per §4.5.
type rangeIter struct {
	c        *Cursor
	version  uint16
	addrSize int
	addrBase uint64
	addrSec  []byte
	base     uint64
	done     bool
}

// maxNative returns the "all ones" sentinel used by v4 base-address
// entries (pairs (MAX, abs)).
func maxNative(addrSize int) uint64 {
	if addrSize == 4 {
		return 0xffffffff
	}
	return 0xffffffffffffffff
}

// newRangeIter resolves the AT.ranges form value to a starting offset and
// returns an iterator over that range list, per §4.5. uc.LowPC, the CU's
// AT.low_pc (0 if absent), is used as the initial base address.
func newRangeIter(reg *Registry, uc *unitContext, ranges FormValue) (*rangeIter, error) {
	it := &rangeIter{
		version:  uc.Version,
		addrSize: uc.AddrSize,
		addrBase: uc.AddrBase,
		addrSec:  reg.Bytes(SectionDebugAddr),
		base:     uc.LowPC,
	}

	var sectionID SectionID
	var offset uint64

	if uc.Version >= 5 {
		sectionID = SectionDebugRnglists
		switch ranges.Kind {
		case FormKindRnglistx:
			if uc.RnglistsBase == 0 {
				return nil, bad("rnglistx used without rnglists_base in the compile unit")
			}
			section := reg.Bytes(SectionDebugRnglists)
			slotSize := uc.Format.offsetSize()
			slotOffset := uc.RnglistsBase + ranges.Uint*uint64(slotSize)
			slotCursor := NewCursor(section, uc.order(), uc.AddrSize)
			if err := slotCursor.SeekTo(int(slotOffset)); err != nil {
				return nil, bad("rnglistx index %d out of range: %v", ranges.Uint, err)
			}
			rel, err := slotCursor.ReadSecOffset(uc.Format)
			if err != nil {
				return nil, err
			}
			offset = uc.RnglistsBase + rel
		default:
			v, ok := ranges.AsUint()
			if !ok {
				return nil, bad("AT.ranges has unsupported form for DWARF 5 range list")
			}
			offset = v
		}
	} else {
		sectionID = SectionDebugRanges
		v, ok := ranges.AsUint()
		if !ok {
			return nil, bad("AT.ranges has unsupported form for DWARF %d range list", uc.Version)
		}
		offset = v
	}

	section := reg.Bytes(sectionID)
	if section == nil {
		return nil, bad("%s referenced but not present", sectionID)
	}
	c := NewCursor(section, uc.order(), uc.AddrSize)
	if err := c.SeekTo(int(offset)); err != nil {
		return nil, bad("range list offset 0x%x out of bounds: %v", offset, err)
	}
	it.c = c
	return it, nil
}

// Next returns the next range in the list. ok is false (with a nil error)
// once end_of_list has been consumed.
func (it *rangeIter) Next() (r PcRange, ok bool, err error) {
	if it.done {
		return PcRange{}, false, nil
	}

	if it.version >= 5 {
		return it.nextV5()
	}
	return it.nextV4()
}

func (it *rangeIter) resolveAddr(index uint64) (uint64, error) {
	return readDebugAddr(it.addrSec, it.c.Order(), it.addrBase, index)
}

func (it *rangeIter) nextV5() (PcRange, bool, error) {
	for {
		kind, err := it.c.ReadU8()
		if err != nil {
			return PcRange{}, false, err
		}

		switch kind {
		case rleEndOfList:
			it.done = true
			return PcRange{}, false, nil

		case rleBaseAddressx:
			idx, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			base, err := it.resolveAddr(idx)
			if err != nil {
				return PcRange{}, false, err
			}
			it.base = base
			continue

		case rleStartxEndx:
			si, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			ei, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			s, err := it.resolveAddr(si)
			if err != nil {
				return PcRange{}, false, err
			}
			e, err := it.resolveAddr(ei)
			if err != nil {
				return PcRange{}, false, err
			}
			return PcRange{Start: s, End: e}, true, nil

		case rleStartxLength:
			si, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			length, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			s, err := it.resolveAddr(si)
			if err != nil {
				return PcRange{}, false, err
			}
			return PcRange{Start: s, End: s + length}, true, nil

		case rleOffsetPair:
			a, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			b, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			return PcRange{Start: it.base + a, End: it.base + b}, true, nil

		case rleBaseAddress:
			abs, err := it.c.ReadNativeAddress()
			if err != nil {
				return PcRange{}, false, err
			}
			it.base = abs
			continue

		case rleStartEnd:
			a, err := it.c.ReadNativeAddress()
			if err != nil {
				return PcRange{}, false, err
			}
			b, err := it.c.ReadNativeAddress()
			if err != nil {
				return PcRange{}, false, err
			}
			return PcRange{Start: a, End: b}, true, nil

		case rleStartLength:
			a, err := it.c.ReadNativeAddress()
			if err != nil {
				return PcRange{}, false, err
			}
			length, err := it.c.ReadULEB128()
			if err != nil {
				return PcRange{}, false, err
			}
			return PcRange{Start: a, End: a + length}, true, nil

		default:
			return PcRange{}, false, bad("unknown DW_RLE_* range list entry kind 0x%02x", kind)
		}
	}
}

func (it *rangeIter) nextV4() (PcRange, bool, error) {
	max := maxNative(it.addrSize)
	for {
		a, err := it.c.ReadNativeAddress()
		if err != nil {
			return PcRange{}, false, err
		}
		b, err := it.c.ReadNativeAddress()
		if err != nil {
			return PcRange{}, false, err
		}

		if a == 0 && b == 0 {
			it.done = true
			return PcRange{}, false, nil
		}
		if a == max {
			it.base = b
			continue
		}
		return PcRange{Start: it.base + a, End: it.base + b}, true, nil
	}
}
