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

// buildEhFrame assembles an .eh_frame section with one "zR" CIE (FDE
// pointers encoded as DW_EH_PE_pcrel|DW_EH_PE_udata4) and three FDEs, per
// §4.8.
func buildEhFrame(t *testing.T) []byte {
	t.Helper()

	var cie []byte
	cie = append(cie, 0x01)                // version
	cie = append(cie, "zR\x00"...)         // augmentation string
	cie = append(cie, uleb(1)...)          // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...)   // data_alignment_factor
	cie = append(cie, 0x08)                // return_address_register
	cie = append(cie, uleb(1)...)          // augmentation length
	cie = append(cie, 0x13)                // 'R': pcrel | udata4
	cie = append(cie, 0x00, 0x00, 0x00, 0x00) // a little padding as "initial instructions"

	cieLen := le32(uint32(len(cie) + 4)) // +4 for the id field the length covers
	var section []byte
	section = append(section, cieLen...)
	section = append(section, 0x00, 0x00, 0x00, 0x00) // id == 0 (CIE)
	section = append(section, cie...)

	cieOffset := 0
	return buildEhFrameFDEs(section, cieOffset)
}

// buildEhFrameFDEs appends three non-overlapping FDEs to section (which
// already holds one CIE at cieOffset), resolving each pc_begin field's own
// virtual address as it goes so the pcrel encoding round-trips exactly.
func buildEhFrameFDEs(section []byte, cieOffset int) []byte {
	add := func(pcBegin, pcRange uint64) {
		entryStart := len(section)
		idFieldOffset := entryStart + 4
		pcBeginFieldOffset := idFieldOffset + 4
		cieRef := uint32(idFieldOffset - cieOffset)

		var body []byte
		body = append(body, le32(cieRef)...)
		body = append(body, le32(uint32(pcBegin-uint64(pcBeginFieldOffset)))...)
		body = append(body, le32(uint32(pcRange))...)
		body = append(body, uleb(0)...)

		fdeLen := le32(uint32(len(body)))
		section = append(section, fdeLen...)
		section = append(section, body...)
	}

	add(0x1000, 0x100)
	add(0x2000, 0x50)
	add(0x3000, 0x200)

	return section
}

func encodeSleb(v int64) []byte {
	var b []byte
	more := true
	for more {
		by := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && by&0x40 == 0) || (v == -1 && by&0x40 != 0) {
			more = false
		} else {
			by |= 0x80
		}
		b = append(b, by)
	}
	return b
}

func TestParseFrameSectionEhFrame(t *testing.T) {
	section := buildEhFrame(t)

	fs, err := parseFrameSection(section, binary.LittleEndian, 8, true, 0)
	require.NoError(t, err)
	require.Len(t, fs.cies, 1)
	require.Len(t, fs.fdes, 3)

	fde, ok := fs.findFDE(0x1050)
	require.True(t, ok)
	require.EqualValues(t, 0x1000, fde.PcBegin)
	require.EqualValues(t, "zR", fde.CIE.Augmentation)

	fde, ok = fs.findFDE(0x2010)
	require.True(t, ok)
	require.EqualValues(t, 0x2000, fde.PcBegin)

	_, ok = fs.findFDE(0x5000)
	require.False(t, ok)
}

func TestParseFrameSectionDebugFrameVersion4(t *testing.T) {
	var cie []byte
	cie = append(cie, 0x04)              // version
	cie = append(cie, 0x00)              // augmentation: empty string
	cie = append(cie, 0x04)              // address_size
	cie = append(cie, 0x00)              // segment_selector_size
	cie = append(cie, uleb(1)...)        // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...) // data_alignment_factor
	cie = append(cie, uleb(8)...)        // return_address_register

	var section []byte
	section = append(section, le32(uint32(len(cie)+4))...) // +4 for the id field the length covers
	section = append(section, 0xff, 0xff, 0xff, 0xff)       // 32-bit all-ones CIE id
	section = append(section, cie...)

	cieOffset := 0 // absolute offset of the CIE above, at the start of section

	var fde []byte
	fde = append(fde, le32(uint32(cieOffset))...) // .debug_frame cie_pointer is absolute
	fde = append(fde, le32(0x8000)...) // pc_begin: plain absptr, not relative
	fde = append(fde, le32(0x40)...)   // pc_range

	section = append(section, le32(uint32(len(fde)))...)
	section = append(section, fde...)

	fs, err := parseFrameSection(section, binary.LittleEndian, 4, false, 0)
	require.NoError(t, err)
	require.Len(t, fs.fdes, 1)
	require.EqualValues(t, 0x8000, fs.fdes[0].PcBegin)
	require.EqualValues(t, 0x40, fs.fdes[0].PcRange)

	fde0, ok := fs.findFDE(0x8010)
	require.True(t, ok)
	require.Same(t, fs.fdes[0], fde0)
}

func TestParseCIEBadEhFrameVersionIsInvalid(t *testing.T) {
	var cie []byte
	cie = append(cie, 0x02)              // version: not 1 or 3
	cie = append(cie, 0x00)              // augmentation: empty string
	cie = append(cie, uleb(1)...)        // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...) // data_alignment_factor
	cie = append(cie, 0x08)              // return_address_register

	var section []byte
	section = append(section, le32(uint32(len(cie)+4))...)
	section = append(section, 0x00, 0x00, 0x00, 0x00) // id == 0 (CIE)
	section = append(section, cie...)

	_, err := parseFrameSection(section, binary.LittleEndian, 8, true, 0)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestParseCIEBadDebugFrameVersionIsInvalid(t *testing.T) {
	var cie []byte
	cie = append(cie, 0x01)              // version: not 4
	cie = append(cie, 0x00)              // augmentation: empty string
	cie = append(cie, uleb(1)...)        // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...) // data_alignment_factor
	cie = append(cie, 0x08)              // return_address_register

	var section []byte
	section = append(section, le32(uint32(len(cie)+4))...)
	section = append(section, 0xff, 0xff, 0xff, 0xff) // 32-bit all-ones CIE id
	section = append(section, cie...)

	_, err := parseFrameSection(section, binary.LittleEndian, 4, false, 0)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestParseCIEUnknownAugmentationCharIsInvalid(t *testing.T) {
	var cie []byte
	cie = append(cie, 0x01)              // version
	cie = append(cie, "zX\x00"...)       // 'X' is not a recognized augmentation letter
	cie = append(cie, uleb(1)...)        // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...) // data_alignment_factor
	cie = append(cie, 0x08)              // return_address_register
	cie = append(cie, uleb(0)...)        // augmentation length

	var section []byte
	section = append(section, le32(uint32(len(cie)+4))...)
	section = append(section, 0x00, 0x00, 0x00, 0x00) // id == 0 (CIE)
	section = append(section, cie...)

	_, err := parseFrameSection(section, binary.LittleEndian, 8, true, 0)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestParseCIELegacyEhAugmentationSkipsAddressSize(t *testing.T) {
	var cie []byte
	cie = append(cie, 0x01)              // version
	cie = append(cie, "zeh\x00"...)      // legacy "eh" data form
	cie = append(cie, uleb(1)...)        // code_alignment_factor
	cie = append(cie, encodeSleb(-4)...) // data_alignment_factor
	cie = append(cie, 0x08)              // return_address_register
	cie = append(cie, uleb(8)...)        // augmentation length: one 8-byte eh data word
	cie = append(cie, make([]byte, 8)...)

	var section []byte
	section = append(section, le32(uint32(len(cie)+4))...)
	section = append(section, 0x00, 0x00, 0x00, 0x00) // id == 0 (CIE)
	section = append(section, cie...)

	fs, err := parseFrameSection(section, binary.LittleEndian, 8, true, 0)
	require.NoError(t, err)
	require.Len(t, fs.cies, 1)
}
