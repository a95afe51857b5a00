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

	"golang.org/x/exp/slices"
)

// ehFrameHdrEntry is one (initial_location, address) row of the
// .eh_frame_hdr binary search table (§4.9).
type ehFrameHdrEntry struct {
	InitialLocation uint64
	FDEAddress      uint64
}

// ExceptionFrameHeader is a decoded .eh_frame_hdr: the pointer encodings it
// was built with and its sorted binary-search table, per §4.9.
type ExceptionFrameHeader struct {
	Version           uint8
	EhFramePtrEnc     EhPtrEnc
	FDECountEnc       EhPtrEnc
	TableEnc          EhPtrEnc
	EhFramePtr        uint64
	FDECount          uint64
	entries           []ehFrameHdrEntry
}

// ehFrameHdrEntrySize returns the byte size of one (initial_location,
// fde_address) table row for form, and whether form has a fixed size at
// all: 4 for the 2-byte numeric forms, 8 for the 4-byte forms (or absptr
// on a 4-byte target), 16 for the 8-byte forms (or absptr on an 8-byte
// target). The variable-length uleb128/sleb128 forms are unsearchable and
// therefore invalid table encodings (§4.9).
func ehFrameHdrEntrySize(enc EhPtrEnc, addrSize int) (int, bool) {
	var fieldSize int
	switch enc.form() {
	case ehPeUdata2, ehPeSdata2:
		fieldSize = 2
	case ehPeUdata4, ehPeSdata4:
		fieldSize = 4
	case ehPeUdata8, ehPeSdata8:
		fieldSize = 8
	case ehPeAbsptr:
		fieldSize = addrSize
	default:
		return 0, false
	}
	return fieldSize * 2, true
}

// parseEhFrameHdr decodes a .eh_frame_hdr section. sectionVA is the
// runtime address of byte 0 of section (§4.9's pointer fields are always
// PC-relative to their own position unless encoded otherwise).
func parseEhFrameHdr(section []byte, order binary.ByteOrder, addrSize int, sectionVA uint64) (*ExceptionFrameHeader, error) {
	c := NewCursor(section, order, addrSize)

	version, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, bad(".eh_frame_hdr version %d is not 1", version)
	}

	ehFrameEnc, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	fdeCountEnc, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	tableEnc, err := c.ReadU8()
	if err != nil {
		return nil, err
	}

	h := &ExceptionFrameHeader{
		Version:       version,
		EhFramePtrEnc: EhPtrEnc(ehFrameEnc),
		FDECountEnc:   EhPtrEnc(fdeCountEnc),
		TableEnc:      EhPtrEnc(tableEnc),
	}

	if h.EhFramePtrEnc.omit() || h.FDECountEnc.omit() || h.TableEnc.omit() {
		return nil, bad(".eh_frame_hdr encoding bytes must all be non-omit")
	}
	if _, ok := ehFrameHdrEntrySize(h.TableEnc, addrSize); !ok {
		return nil, bad(".eh_frame_hdr table encoding 0x%02x has no fixed entry size", uint8(h.TableEnc))
	}

	ehFramePtr, err := readEhPointer(c, h.EhFramePtrEnc, ehPointerBases{pc: sectionVA + uint64(c.Pos())})
	if err != nil {
		return nil, err
	}
	h.EhFramePtr = ehFramePtr

	fdeCount, err := readEhPointer(c, h.FDECountEnc, ehPointerBases{pc: sectionVA + uint64(c.Pos())})
	if err != nil {
		return nil, err
	}
	h.FDECount = fdeCount

	h.entries = make([]ehFrameHdrEntry, 0, fdeCount)
	for i := uint64(0); i < fdeCount; i++ {
		loc, err := readEhPointer(c, h.TableEnc, ehPointerBases{pc: sectionVA + uint64(c.Pos())})
		if err != nil {
			return nil, err
		}
		addr, err := readEhPointer(c, h.TableEnc, ehPointerBases{pc: sectionVA + uint64(c.Pos())})
		if err != nil {
			return nil, err
		}
		h.entries = append(h.entries, ehFrameHdrEntry{InitialLocation: loc, FDEAddress: addr})
	}

	return h, nil
}

// findEntry returns the binary search table row whose FDE might cover pc:
// the last entry whose InitialLocation is <= pc (§4.9). The caller must
// still verify pc falls within that FDE's PC range, since the table only
// bounds candidates by their start address.
func (h *ExceptionFrameHeader) findEntry(pc uint64) (ehFrameHdrEntry, bool) {
	if len(h.entries) == 0 {
		return ehFrameHdrEntry{}, false
	}

	i, found := slices.BinarySearchFunc(h.entries, pc, func(e ehFrameHdrEntry, pc uint64) int {
		switch {
		case e.InitialLocation < pc:
			return -1
		case e.InitialLocation > pc:
			return 1
		default:
			return 0
		}
	})

	if found {
		return h.entries[i], true
	}
	if i == 0 {
		return ehFrameHdrEntry{}, false
	}
	return h.entries[i-1], true
}
