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

// CIE is a decoded Common Information Entry: the augmentation and pointer
// encodings every FDE referencing it shares (§4.8).
type CIE struct {
	Offset                uint64
	Version               uint8
	Augmentation          string
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64

	// fdeEnc is the pointer encoding FDEs referencing this CIE use for
	// pc_begin/pc_range, taken from a 'R' augmentation data byte. Absent an
	// augmentation string of "z...", it defaults to DW_EH_PE_absptr.
	fdeEnc EhPtrEnc

	// lsdaEnc is the encoding of the FDE's LSDA pointer, from the 'L'
	// augmentation data byte; EhPeOmit if the CIE carries no LSDA.
	lsdaEnc EhPtrEnc

	// personalityEnc/personality describe the 'P' augmentation data: a
	// pointer encoding and the already-decoded personality routine address.
	personalityEnc EhPtrEnc
	personality    uint64
	hasPersonality bool

	InitialInstructions []byte
}

// FDE is a decoded Frame Description Entry: the PC range it covers and its
// call frame instruction stream (§4.8). Interpreting the instruction
// stream into a row table is outside this package's scope (§9 non-goals);
// callers needing CFI evaluation decode InitialInstructions/Instructions
// themselves.
type FDE struct {
	Offset       uint64
	CIE          *CIE
	PcBegin      uint64
	PcRange      uint64
	LSDA         uint64
	HasLSDA      bool
	Instructions []byte
}

// End returns the address one past the end of the FDE's PC range.
func (f *FDE) End() uint64 { return f.PcBegin + f.PcRange }

// Contains reports whether addr falls within the FDE's PC range.
func (f *FDE) Contains(addr uint64) bool { return addr >= f.PcBegin && addr < f.End() }

// frameSection holds every CIE and FDE decoded from one call-frame section
// (.eh_frame or .debug_frame), with FDEs kept sorted by PcBegin for binary
// search (§4.8, §4.9).
type frameSection struct {
	isEh  bool
	cies  map[uint64]*CIE
	fdes  []*FDE
}

// parseFrameSection decodes every CIE and FDE in section, which must be
// either .eh_frame (isEh true) or .debug_frame (isEh false). sectionVA is
// the runtime address of byte 0 of section, used to compute PC-relative
// eh_frame pointer fields; pass 0 when the section carries no virtual
// address (pure file-offset pointer encodings only).
func parseFrameSection(section []byte, order binary.ByteOrder, addrSize int, isEh bool, sectionVA uint64) (*frameSection, error) {
	fs := &frameSection{isEh: isEh, cies: make(map[uint64]*CIE)}

	offset := 0
	for offset < len(section) {
		c := NewCursor(section, order, addrSize)
		if err := c.SeekTo(offset); err != nil {
			return nil, err
		}

		entryStart := offset
		uh, err := c.ReadInitialLength()
		if err != nil {
			return nil, err
		}
		if uh.UnitLength == 0 {
			break // §8: a zero-length terminator ends the scan cleanly
		}
		entryEnd := uh.End(entryStart)
		if entryEnd > len(section) {
			return nil, bad("call frame entry at offset 0x%x overruns section", entryStart)
		}

		idOffset := c.Pos()
		cieIDRaw, err := c.ReadAddress(uh.Format)
		if err != nil {
			return nil, err
		}

		isCIE := isCIEID(cieIDRaw, isEh, uh.Format)
		if isCIE {
			cie, err := parseCIE(c, uh, uint64(entryStart), sectionVA, isEh)
			if err != nil {
				return nil, err
			}
			fs.cies[uint64(entryStart)] = cie
		} else {
			fde, err := parseFDE(c, fs, uh, uint64(entryStart), uint64(idOffset), cieIDRaw, isEh, sectionVA)
			if err != nil {
				return nil, err
			}
			fs.fdes = append(fs.fdes, fde)
		}

		offset = entryEnd
	}

	slices.SortFunc(fs.fdes, func(a, b *FDE) int {
		switch {
		case a.PcBegin < b.PcBegin:
			return -1
		case a.PcBegin > b.PcBegin:
			return 1
		default:
			return 0
		}
	})

	return fs, nil
}

// isCIEID reports whether the raw value just read where a CIE-pointer/
// CIE-id field lives identifies this entry as a CIE rather than an FDE, per
// §4.8: .eh_frame uses id == 0 for a CIE; .debug_frame uses the all-ones
// sentinel of the unit's offset size.
func isCIEID(raw uint64, isEh bool, format Format) bool {
	if isEh {
		return raw == 0
	}
	if format == Format64 {
		return raw == 0xffffffffffffffff
	}
	return raw == 0xffffffff
}

// parseCIE decodes a Common Information Entry starting just after its
// length and id fields have been consumed, per §4.8. isEh selects which
// version numbers are legal: 1 or 3 for .eh_frame, 4 for .debug_frame.
func parseCIE(c *Cursor, uh UnitHeader, offset uint64, sectionVA uint64, isEh bool) (*CIE, error) {
	version, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if isEh {
		if version != 1 && version != 3 {
			return nil, bad("CIE at offset 0x%x has unsupported .eh_frame version %d", offset, version)
		}
	} else if version != 4 {
		return nil, bad("CIE at offset 0x%x has unsupported .debug_frame version %d", offset, version)
	}

	aug, err := c.ReadCString()
	if err != nil {
		return nil, err
	}

	cie := &CIE{Offset: offset, Version: version, Augmentation: aug, fdeEnc: ehPeAbsptr, lsdaEnc: EhPeOmit}

	if version == 4 {
		if _, err := c.ReadU8(); err != nil { // address_size
			return nil, err
		}
		if _, err := c.ReadU8(); err != nil { // segment_selector_size
			return nil, err
		}
	}

	caf, err := c.ReadULEB128()
	if err != nil {
		return nil, err
	}
	cie.CodeAlignmentFactor = caf

	daf, err := c.ReadSLEB128()
	if err != nil {
		return nil, err
	}
	cie.DataAlignmentFactor = daf

	if version == 1 {
		rar, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		cie.ReturnAddressRegister = uint64(rar)
	} else {
		rar, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		cie.ReturnAddressRegister = rar
	}

	if len(aug) > 0 && aug[0] == 'z' {
		augLen, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		augEnd := c.Pos() + int(augLen)

		rest := aug[1:]
		for i := 0; i < len(rest); i++ {
			switch rest[i] {
			case 'L':
				enc, err := c.ReadU8()
				if err != nil {
					return nil, err
				}
				cie.lsdaEnc = EhPtrEnc(enc)
			case 'R':
				enc, err := c.ReadU8()
				if err != nil {
					return nil, err
				}
				cie.fdeEnc = EhPtrEnc(enc)
			case 'P':
				enc, err := c.ReadU8()
				if err != nil {
					return nil, err
				}
				p, err := readEhPointer(c, EhPtrEnc(enc), ehPointerBases{pc: sectionVA + uint64(c.Pos())})
				if err != nil {
					return nil, err
				}
				cie.personalityEnc = EhPtrEnc(enc)
				cie.personality = p
				cie.hasPersonality = true
			case 'S', 'B', 'G':
				// signal frame / BTI / MTE tag markers: no augmentation
				// data byte to consume.
			case 'e':
				// legacy "eh" data form only means something as the pair
				// e,h; a lone 'e' is an unknown augmentation letter.
				if i+1 >= len(rest) || rest[i+1] != 'h' {
					return nil, bad("CIE at offset 0x%x has unpaired 'e' in augmentation string %q", offset, aug)
				}
				i++
				if err := c.SeekForward(c.AddrSize()); err != nil {
					return nil, err
				}
			default:
				return nil, bad("CIE at offset 0x%x has unknown augmentation character %q in %q", offset, rest[i], aug)
			}
		}

		if err := c.SeekTo(augEnd); err != nil {
			return nil, err
		}
	}

	insns, err := c.ReadBytes(uh.End(int(offset)) - c.Pos())
	if err != nil {
		return nil, err
	}
	cie.InitialInstructions = insns

	return cie, nil
}

// parseFDE decodes a Frame Description Entry, resolving its CIE pointer
// back to an already-parsed CIE (§4.8). .eh_frame CIE pointers are
// self-relative (cieIDRaw is the byte distance back from idOffset);
// .debug_frame CIE pointers are section-absolute offsets.
func parseFDE(c *Cursor, fs *frameSection, uh UnitHeader, entryOffset, idOffset, cieIDRaw uint64, isEh bool, sectionVA uint64) (*FDE, error) {
	var cieOffset uint64
	if isEh {
		cieOffset = idOffset - cieIDRaw
	} else {
		cieOffset = cieIDRaw
	}
	cie, ok := fs.cies[cieOffset]
	if !ok {
		return nil, bad("FDE at offset 0x%x references unknown CIE at 0x%x", entryOffset, cieOffset)
	}

	bases := ehPointerBases{pc: sectionVA + uint64(c.Pos())}
	pcBegin, err := readEhPointer(c, cie.fdeEnc, bases)
	if err != nil {
		return nil, err
	}

	rangeEnc := cie.fdeEnc
	if rangeEnc != EhPeOmit {
		rangeEnc = rangeEnc.form() // pc_range is a plain length: never pc/base-relative
	}
	pcRange, err := readEhPointer(c, rangeEnc, ehPointerBases{})
	if err != nil {
		return nil, err
	}

	fde := &FDE{Offset: entryOffset, CIE: cie, PcBegin: pcBegin, PcRange: pcRange}

	if len(cie.Augmentation) > 0 && cie.Augmentation[0] == 'z' {
		augLen, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		augEnd := c.Pos() + int(augLen)
		if cie.lsdaEnc != EhPeOmit {
			lsdaBases := ehPointerBases{pc: sectionVA + uint64(c.Pos())}
			lsda, err := readEhPointer(c, cie.lsdaEnc, lsdaBases)
			if err != nil {
				return nil, err
			}
			fde.LSDA = lsda
			fde.HasLSDA = true
		}
		if err := c.SeekTo(augEnd); err != nil {
			return nil, err
		}
	}

	insns, err := c.ReadBytes(uh.End(int(entryOffset)) - c.Pos())
	if err != nil {
		return nil, err
	}
	fde.Instructions = insns

	return fde, nil
}

// findFDE returns the FDE covering addr, if any, via binary search over
// the PcBegin-sorted FDE list (§4.9).
func (fs *frameSection) findFDE(addr uint64) (*FDE, bool) {
	i, found := slices.BinarySearchFunc(fs.fdes, addr, func(f *FDE, addr uint64) int {
		switch {
		case addr < f.PcBegin:
			return 1
		case addr >= f.End():
			return -1
		default:
			return 0
		}
	})
	if !found || i >= len(fs.fdes) {
		return nil, false
	}
	return fs.fdes[i], true
}
