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

// ehPointerBases supplies the relative-base addresses a DW_EH_PE_* encoding
// may select (§4.8's pointer encoding table).
type ehPointerBases struct {
	pc       uint64 // address the pointer field itself lives at
	textrel  uint64 // start of .text
	datarel  uint64 // start of the frame-data section (.eh_frame_hdr's own start, typically)
	funcrel  uint64 // start of the enclosing FDE's function
	haveText bool
	haveData bool
	haveFunc bool
}

// readEhPointer decodes one pointer field encoded per enc, applying the
// numeric form, the relative-base selection, and (if the encoding's
// indirect bit is set) a single native-word dereference of the resulting
// address within the cursor's own data, per §4.8.
func readEhPointer(c *Cursor, enc EhPtrEnc, bases ehPointerBases) (uint64, error) {
	if enc.omit() {
		return 0, nil
	}

	fieldAddr := bases.pc

	var raw uint64
	var err error

	switch enc.form() {
	case ehPeAbsptr:
		raw, err = c.ReadNativeAddress()
	case ehPeUleb128:
		raw, err = c.ReadULEB128()
	case ehPeUdata2:
		var v uint16
		v, err = c.ReadUint16()
		raw = uint64(v)
	case ehPeUdata4:
		var v uint32
		v, err = c.ReadUint32()
		raw = uint64(v)
	case ehPeUdata8:
		raw, err = c.ReadUint64()
	default:
		if enc.signed() {
			switch enc.form() {
			case ehPeSleb128:
				var v int64
				v, err = c.ReadSLEB128()
				raw = uint64(v)
			case ehPeSdata2:
				var v int16
				v, err = c.ReadInt16()
				raw = uint64(int64(v))
			case ehPeSdata4:
				var v int32
				v, err = c.ReadInt32()
				raw = uint64(int64(v))
			case ehPeSdata8:
				var v int64
				v, err = c.ReadInt64()
				raw = uint64(v)
			default:
				return 0, bad("unknown DW_EH_PE_* numeric form in encoding 0x%02x", uint8(enc))
			}
		} else {
			return 0, bad("unknown DW_EH_PE_* numeric form in encoding 0x%02x", uint8(enc))
		}
	}
	if err != nil {
		return 0, err
	}

	var value uint64
	switch enc.rel() {
	case ehPeAbsptr: // 0x00 here doubles as "no relative base"
		value = raw
	case ehPePcrel:
		value = fieldAddr + raw
	case ehPeTextrel:
		if !bases.haveText {
			return 0, bad("DW_EH_PE_textrel encoding used without a .text base")
		}
		value = bases.textrel + raw
	case ehPeDatarel:
		if !bases.haveData {
			return 0, bad("DW_EH_PE_datarel encoding used without a frame-data base")
		}
		value = bases.datarel + raw
	case ehPeFuncrel:
		if !bases.haveFunc {
			return 0, bad("DW_EH_PE_funcrel encoding used without an enclosing function base")
		}
		value = bases.funcrel + raw
	default:
		return 0, bad("unknown DW_EH_PE_* relative base selector in encoding 0x%02x", uint8(enc))
	}

	if enc.indirect() {
		offset, err := c.absoluteToOffset(value)
		if err != nil {
			return 0, err
		}
		ind := NewCursor(c.bytes(), c.Order(), c.AddrSize())
		if err := ind.SeekTo(offset); err != nil {
			return 0, bad("indirect DW_EH_PE_* pointer target 0x%x out of range: %v", value, err)
		}
		return ind.ReadNativeAddress()
	}

	return value, nil
}
