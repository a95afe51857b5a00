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

// FormKind discriminates the tagged union of decoded attribute values
// (§3's FormValue).
type FormKind int

const (
	FormKindAddr FormKind = iota
	FormKindAddrx
	FormKindBlock
	FormKindUdata
	FormKindSdata
	FormKindData16
	FormKindExprloc
	FormKindFlag
	FormKindSecOffset
	FormKindRef     // CU-relative
	FormKindRefAddr // section-absolute
	FormKindRefSig8
	FormKindString
	FormKindStrp
	FormKindStrx
	FormKindLineStrp
	FormKindLoclistx
	FormKindRnglistx
)

// FormValue is the decoded, tagged value of one DIE attribute, per the
// closed mapping in §4.3. Exactly one of the fields below is meaningful,
// selected by Kind; Bytes always borrows from the section the value was
// read out of.
type FormValue struct {
	Kind  FormKind
	Uint  uint64
	Int   int64
	Flag  bool
	Bytes []byte
}

// AsUint returns the value's natural unsigned interpretation, for kinds
// that carry one (Addr, Addrx, Udata, SecOffset, Ref, RefAddr, RefSig8,
// Strp, Strx, LineStrp, Loclistx, Rnglistx).
func (v FormValue) AsUint() (uint64, bool) {
	switch v.Kind {
	case FormKindAddr, FormKindAddrx, FormKindUdata, FormKindSecOffset,
		FormKindRef, FormKindRefAddr, FormKindRefSig8, FormKindStrp,
		FormKindStrx, FormKindLineStrp, FormKindLoclistx, FormKindRnglistx:
		return v.Uint, true
	}
	return 0, false
}

// AsString returns the value if it is an immediate DW_FORM_string; indirect
// string forms (strp/strx/line_strp) must be resolved through their
// section by the caller (die.go's attribute resolution helpers do this).
func (v FormValue) AsString() (string, bool) {
	if v.Kind == FormKindString {
		return string(v.Bytes), true
	}
	return "", false
}

// parseFormValue decodes one attribute's bytes per the form/implicit-const
// table in §4.3. cuFormat selects 4- vs 8-byte offset fields for
// sec_offset/strp/line_strp/ref_addr.
func parseFormValue(c *Cursor, form Form, cuFormat Format, implicitConst int64, hasImplicit bool) (FormValue, error) {
	switch form {
	case FormAddr:
		v, err := c.ReadNativeAddress()
		return FormValue{Kind: FormKindAddr, Uint: v}, err

	case FormAddrx1:
		v, err := c.ReadU8()
		return FormValue{Kind: FormKindAddrx, Uint: uint64(v)}, err
	case FormAddrx2:
		v, err := c.ReadUint16()
		return FormValue{Kind: FormKindAddrx, Uint: uint64(v)}, err
	case FormAddrx3:
		v, err := c.ReadUint24()
		return FormValue{Kind: FormKindAddrx, Uint: uint64(v)}, err
	case FormAddrx4:
		v, err := c.ReadUint32()
		return FormValue{Kind: FormKindAddrx, Uint: uint64(v)}, err
	case FormAddrx:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindAddrx, Uint: v}, err

	case FormBlock1:
		n, err := c.ReadU8()
		if err != nil {
			return FormValue{}, err
		}
		b, err := c.ReadBytes(int(n))
		return FormValue{Kind: FormKindBlock, Bytes: b}, err
	case FormBlock2:
		n, err := c.ReadUint16()
		if err != nil {
			return FormValue{}, err
		}
		b, err := c.ReadBytes(int(n))
		return FormValue{Kind: FormKindBlock, Bytes: b}, err
	case FormBlock4:
		n, err := c.ReadUint32()
		if err != nil {
			return FormValue{}, err
		}
		b, err := c.ReadBytes(int(n))
		return FormValue{Kind: FormKindBlock, Bytes: b}, err
	case FormBlock:
		n, err := c.ReadULEB128()
		if err != nil {
			return FormValue{}, err
		}
		b, err := c.ReadBytes(int(n))
		return FormValue{Kind: FormKindBlock, Bytes: b}, err

	case FormData1:
		v, err := c.ReadU8()
		return FormValue{Kind: FormKindUdata, Uint: uint64(v)}, err
	case FormData2:
		v, err := c.ReadUint16()
		return FormValue{Kind: FormKindUdata, Uint: uint64(v)}, err
	case FormData4:
		v, err := c.ReadUint32()
		return FormValue{Kind: FormKindUdata, Uint: uint64(v)}, err
	case FormData8:
		v, err := c.ReadUint64()
		return FormValue{Kind: FormKindUdata, Uint: v}, err
	case FormData16:
		b, err := c.ReadBytes(16)
		return FormValue{Kind: FormKindData16, Bytes: b}, err

	case FormUdata:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindUdata, Uint: v}, err
	case FormSdata:
		v, err := c.ReadSLEB128()
		return FormValue{Kind: FormKindSdata, Int: v}, err

	case FormExprloc:
		n, err := c.ReadULEB128()
		if err != nil {
			return FormValue{}, err
		}
		b, err := c.ReadBytes(int(n))
		return FormValue{Kind: FormKindExprloc, Bytes: b}, err

	case FormFlag:
		v, err := c.ReadU8()
		return FormValue{Kind: FormKindFlag, Flag: v != 0}, err
	case FormFlagPresent:
		return FormValue{Kind: FormKindFlag, Flag: true}, nil

	case FormSecOffset:
		v, err := c.ReadSecOffset(cuFormat)
		return FormValue{Kind: FormKindSecOffset, Uint: v}, err

	case FormRef1:
		v, err := c.ReadU8()
		return FormValue{Kind: FormKindRef, Uint: uint64(v)}, err
	case FormRef2:
		v, err := c.ReadUint16()
		return FormValue{Kind: FormKindRef, Uint: uint64(v)}, err
	case FormRef4:
		v, err := c.ReadUint32()
		return FormValue{Kind: FormKindRef, Uint: uint64(v)}, err
	case FormRef8:
		v, err := c.ReadUint64()
		return FormValue{Kind: FormKindRef, Uint: v}, err
	case FormRefUdata:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindRef, Uint: v}, err
	case FormRefAddr:
		v, err := c.ReadSecOffset(cuFormat)
		return FormValue{Kind: FormKindRefAddr, Uint: v}, err
	case FormRefSig8:
		v, err := c.ReadUint64()
		return FormValue{Kind: FormKindRefSig8, Uint: v}, err

	case FormString:
		s, err := c.ReadBytesUntil(0)
		return FormValue{Kind: FormKindString, Bytes: s}, err
	case FormStrp:
		v, err := c.ReadSecOffset(cuFormat)
		return FormValue{Kind: FormKindStrp, Uint: v}, err
	case FormLineStrp:
		v, err := c.ReadSecOffset(cuFormat)
		return FormValue{Kind: FormKindLineStrp, Uint: v}, err

	case FormStrx1:
		v, err := c.ReadU8()
		return FormValue{Kind: FormKindStrx, Uint: uint64(v)}, err
	case FormStrx2:
		v, err := c.ReadUint16()
		return FormValue{Kind: FormKindStrx, Uint: uint64(v)}, err
	case FormStrx3:
		v, err := c.ReadUint24()
		return FormValue{Kind: FormKindStrx, Uint: uint64(v)}, err
	case FormStrx4:
		v, err := c.ReadUint32()
		return FormValue{Kind: FormKindStrx, Uint: uint64(v)}, err
	case FormStrx:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindStrx, Uint: v}, err

	case FormLoclistx:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindLoclistx, Uint: v}, err
	case FormRnglistx:
		v, err := c.ReadULEB128()
		return FormValue{Kind: FormKindRnglistx, Uint: v}, err

	case FormIndirect:
		inner, err := c.ReadULEB128()
		if err != nil {
			return FormValue{}, err
		}
		return parseFormValue(c, Form(inner), cuFormat, 0, false)

	case FormImplicitConst:
		if !hasImplicit {
			return FormValue{}, bad("implicit_const form used without a payload in its abbreviation")
		}
		return FormValue{Kind: FormKindSdata, Int: implicitConst}, nil
	}

	return FormValue{}, bad("unknown attribute form 0x%x", uint64(form))
}
