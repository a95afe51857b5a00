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

// AbbrevAttr is one (attr, form) pair of an Abbreviation, plus the payload
// for DW_FORM_implicit_const, which has no bytes of its own in the DIE
// stream (§3).
type AbbrevAttr struct {
	Attr           Attr
	Form           Form
	ImplicitConst  int64
	HasImplicit    bool
}

// Abbreviation describes how to decode one kind of DIE: its tag, whether it
// has children, and the ordered list of attributes to decode (§3).
type Abbreviation struct {
	Code        uint64
	Tag         Tag
	HasChildren bool
	Attrs       []AbbrevAttr
}

// isZigPadding reports whether this abbreviation describes a childless,
// attribute-less DIE - the convention some toolchains use to pad function
// tails without emitting a meaningful entry (§4.4, §9). Skipping runs of
// these before each DIE is an optional speed optimization; correctness
// never depends on it.
func (a *Abbreviation) isZigPadding() bool {
	return !a.HasChildren && len(a.Attrs) == 0
}

// AbbrevTable is the set of Abbreviations found at one offset into
// .debug_abbrev, keyed by their code. Codes are unique within a table but
// need not be dense (§3).
type AbbrevTable struct {
	byCode map[uint64]*Abbreviation

	// padding, if non-nil, is the (at most one, by convention) abbreviation
	// in this table that qualifies as zig-padding.
	padding *Abbreviation
}

// Get looks up an abbreviation by code.
func (t *AbbrevTable) Get(code uint64) (*Abbreviation, bool) {
	a, ok := t.byCode[code]
	return a, ok
}

// abbrevCache parses and caches AbbrevTables from .debug_abbrev, keyed by
// their offset. Parsing happens at most once per offset (§4.2); eviction
// never happens (§9) - debug sections are bounded and reuse is frequent.
type abbrevCache struct {
	section []byte
	tables  map[uint64]*AbbrevTable
}

func newAbbrevCache(section []byte) *abbrevCache {
	return &abbrevCache{section: section, tables: make(map[uint64]*AbbrevTable)}
}

// get returns the AbbrevTable at offset, parsing it on first access.
func (c *abbrevCache) get(offset uint64) (*AbbrevTable, error) {
	if t, ok := c.tables[offset]; ok {
		return t, nil
	}
	t, err := parseAbbrevTable(c.section, offset)
	if err != nil {
		return nil, err
	}
	c.tables[offset] = t
	return t, nil
}

// parseAbbrevTable decodes one abbreviation table starting at offset in
// section, per §4.2: repeatedly read a uleb128 code (0 terminates), then
// tag, has_children, and (attr, form) pairs until both are zero - reading
// an extra signed LEB128 payload for DW_FORM_implicit_const attributes.
func parseAbbrevTable(section []byte, offset uint64) (*AbbrevTable, error) {
	if offset > uint64(len(section)) {
		return nil, bad("abbrev table offset 0x%x beyond section length %d", offset, len(section))
	}

	// address size/order are irrelevant to abbreviation tables: nothing in
	// them is a native-width field.
	c := NewCursor(section, binary.LittleEndian, 8)
	if err := c.SeekTo(int(offset)); err != nil {
		return nil, err
	}

	t := &AbbrevTable{byCode: make(map[uint64]*Abbreviation)}

	for {
		code, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			break
		}
		if _, dup := t.byCode[code]; dup {
			return nil, bad("duplicate abbreviation code %d in table at offset 0x%x", code, offset)
		}

		tagVal, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}

		childrenByte, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		if childrenByte != 0 && childrenByte != 1 {
			return nil, bad("abbreviation %d has invalid children byte 0x%02x", code, childrenByte)
		}

		abbrev := &Abbreviation{
			Code:        code,
			Tag:         Tag(tagVal),
			HasChildren: childrenByte == 1,
		}

		for {
			attrVal, err := c.ReadULEB128()
			if err != nil {
				return nil, err
			}
			formVal, err := c.ReadULEB128()
			if err != nil {
				return nil, err
			}
			if attrVal == 0 && formVal == 0 {
				break
			}

			aa := AbbrevAttr{Attr: Attr(attrVal), Form: Form(formVal)}
			if Form(formVal) == FormImplicitConst {
				v, err := c.ReadSLEB128()
				if err != nil {
					return nil, err
				}
				aa.ImplicitConst = v
				aa.HasImplicit = true
			}
			abbrev.Attrs = append(abbrev.Attrs, aa)
		}

		t.byCode[code] = abbrev
		if abbrev.isZigPadding() && t.padding == nil {
			t.padding = abbrev
		}
	}

	return t, nil
}
