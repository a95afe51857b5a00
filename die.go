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

// unit_type codes for the DWARF5 unit header (DW_UT_*). Only compile is
// accepted; §4.4 requires v5 units to carry unit_type == compile.
const dwUtCompile = 0x01

// DIEAttr is one decoded (attribute, value) pair of a DIE.
type DIEAttr struct {
	Attr  Attr
	Value FormValue
}

// DIE is a Debugging Information Entry: a tagged record with zero or more
// attributes, optionally followed by a sequence of child DIEs (§3).
//
// Attrs may borrow from a scratch buffer during scanning (for throw-away
// DIEs walked only to reach the next one) or reference freshly allocated,
// owned storage (for retained DIEs); in this implementation every DIE's
// attribute slice is freshly allocated by the Go runtime, so the
// "scratch vs. owned" distinction §9 draws for manual-memory languages
// collapses into "every DIE owns its own attrs".
type DIE struct {
	Tag         Tag
	HasChildren bool
	Attrs       []DIEAttr

	// Offset is the absolute byte offset of this DIE's abbreviation code
	// within .debug_info, used to bound and resolve ref-form hops.
	Offset uint64
}

// Attr returns the value of attribute a on this DIE, if present.
func (d *DIE) Attr(a Attr) (FormValue, bool) {
	for _, x := range d.Attrs {
		if x.Attr == a {
			return x.Value, true
		}
	}
	return FormValue{}, false
}

// unitContext is the per-compilation-unit preamble both scanning passes
// decode identically (§4.4): version/format/address-size plus the four
// indexed-section bases and the frame base attribute, derived from the
// unit's root DIE.
type unitContext struct {
	HeaderOffset uint64
	UnitEnd      uint64
	Version      uint16
	Format       Format
	AddrSize     int
	ByteOrder    binary.ByteOrder
	AbbrevOffset uint64

	LowPC    uint64
	HasLowPC bool

	StrOffsetsBase uint64
	AddrBase       uint64
	RnglistsBase   uint64
	LoclistsBase   uint64

	FrameBase    FormValue
	HasFrameBase bool

	CompDir string
}

func (uc *unitContext) order() binary.ByteOrder { return uc.ByteOrder }

// CompileUnit is a retained compile unit, per §3: its root DIE's attributes
// are copied into storage that survives past the scan, and its PC range and
// indexed-section bases are derived once up front.
type CompileUnit struct {
	Offset    uint64
	unitEnd   uint64
	Version   uint16
	Format    Format
	AddrSize  int
	byteOrder binary.ByteOrder

	RootDIE *DIE
	PcRange *PcRange

	// rangesAttr holds AT.ranges when the CU carries one, so
	// Dwarf.FindCompileUnit can fall back to the range iterator when
	// PcRange is nil (§4.4).
	rangesAttr *FormValue

	StrOffsetsBase uint64
	AddrBase       uint64
	RnglistsBase   uint64
	LoclistsBase   uint64

	FrameBase    FormValue
	HasFrameBase bool

	LowPC    uint64
	HasLowPC bool

	CompDir string

	// StmtListOffset is the offset into .debug_line for this CU's line
	// number program, if AT.stmt_list is present.
	StmtListOffset    uint64
	HasStmtListOffset bool
}

// toUnitContext rebuilds the lightweight unitContext a line program or
// range iterator needs from a retained CompileUnit.
func (cu *CompileUnit) toUnitContext() *unitContext {
	return &unitContext{
		HeaderOffset:   cu.Offset,
		UnitEnd:        cu.unitEnd,
		Version:        cu.Version,
		Format:         cu.Format,
		AddrSize:       cu.AddrSize,
		ByteOrder:      cu.byteOrder,
		LowPC:          cu.LowPC,
		HasLowPC:       cu.HasLowPC,
		StrOffsetsBase: cu.StrOffsetsBase,
		AddrBase:       cu.AddrBase,
		RnglistsBase:   cu.RnglistsBase,
		LoclistsBase:   cu.LoclistsBase,
		FrameBase:      cu.FrameBase,
		HasFrameBase:   cu.HasFrameBase,
		CompDir:        cu.CompDir,
	}
}

// Contains reports whether addr falls within this compile unit, checking
// PcRange first and falling back to the AT.ranges range list (§4.4).
func (cu *CompileUnit) Contains(reg *Registry, addr uint64) (bool, error) {
	if cu.PcRange != nil && cu.PcRange.Contains(addr) {
		return true, nil
	}
	if cu.rangesAttr == nil {
		return false, nil
	}
	it, err := newRangeIter(reg, cu.toUnitContext(), *cu.rangesAttr)
	if err != nil {
		if IsMissing(err) {
			return false, nil
		}
		return false, err
	}
	for {
		r, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if r.Contains(addr) {
			return true, nil
		}
	}
}

// Function is a retained function-like DIE: a subprogram, inlined
// subroutine, subroutine type, or entry point that carried a name and/or a
// PC range (§3, §4.4).
type Function struct {
	PcRange *PcRange
	Name    string
}

// Contains reports whether addr falls within this function's PC range.
func (f *Function) Contains(addr uint64) bool {
	return f.PcRange != nil && f.PcRange.Contains(addr)
}

// parseAttrs decodes the attribute list an abbreviation prescribes,
// reading each FormValue off c in order.
func parseAttrs(c *Cursor, abbrev *Abbreviation, format Format) ([]DIEAttr, error) {
	attrs := make([]DIEAttr, 0, len(abbrev.Attrs))
	for _, aa := range abbrev.Attrs {
		v, err := parseFormValue(c, aa.Form, format, aa.ImplicitConst, aa.HasImplicit)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, DIEAttr{Attr: aa.Attr, Value: v})
	}
	return attrs, nil
}

// readUnitPreambleAndRoot decodes one compile unit's header (version,
// address size, abbrev offset, and for v5 the unit_type) and its root DIE,
// per the "identical preamble" both scanning passes share (§4.4).
func readUnitPreambleAndRoot(reg *Registry, cache *abbrevCache, c *Cursor, headerOffset uint64, uh UnitHeader) (*unitContext, *DIE, error) {
	version, err := c.ReadUint16()
	if err != nil {
		return nil, nil, err
	}
	if version < 2 || version > 5 {
		return nil, nil, bad("unsupported DWARF unit version %d", version)
	}

	var abbrevOffset uint64
	var addrSize uint8

	if version == 5 {
		unitType, err := c.ReadU8()
		if err != nil {
			return nil, nil, err
		}
		addrSize, err = c.ReadU8()
		if err != nil {
			return nil, nil, err
		}
		abbrevOffset, err = c.ReadSecOffset(uh.Format)
		if err != nil {
			return nil, nil, err
		}
		if unitType != dwUtCompile {
			return nil, nil, bad("unsupported unit_type 0x%02x (only DW_UT_compile is supported)", unitType)
		}
	} else {
		abbrevOffset, err = c.ReadSecOffset(uh.Format)
		if err != nil {
			return nil, nil, err
		}
		addrSize, err = c.ReadU8()
		if err != nil {
			return nil, nil, err
		}
	}

	if int(addrSize) != c.AddrSize() {
		return nil, nil, bad("unsupported address size %d (expected native %d)", addrSize, c.AddrSize())
	}

	table, err := cache.get(abbrevOffset)
	if err != nil {
		return nil, nil, err
	}

	dieOffset := uint64(c.Pos())
	code, err := c.ReadULEB128()
	if err != nil {
		return nil, nil, err
	}
	if code == 0 {
		return nil, nil, bad("compile unit at 0x%x has no root DIE", headerOffset)
	}
	abbrev, ok := table.Get(code)
	if !ok {
		return nil, nil, bad("root DIE at 0x%x uses unknown abbreviation code %d", dieOffset, code)
	}
	attrs, err := parseAttrs(c, abbrev, uh.Format)
	if err != nil {
		return nil, nil, err
	}
	root := &DIE{Tag: abbrev.Tag, HasChildren: abbrev.HasChildren, Attrs: attrs, Offset: dieOffset}
	if root.Tag != TagCompileUnit {
		return nil, nil, bad("root DIE at 0x%x has tag 0x%x, expected DW_TAG_compile_unit", headerOffset, uint64(root.Tag))
	}

	uc := &unitContext{
		HeaderOffset: headerOffset,
		UnitEnd:      uint64(uh.End(int(headerOffset))),
		Version:      version,
		Format:       uh.Format,
		AddrSize:     c.AddrSize(),
		ByteOrder:    c.Order(),
		AbbrevOffset: abbrevOffset,
	}

	if fv, ok := root.Attr(AttrStrOffsetsBase); ok {
		if v, ok2 := fv.AsUint(); ok2 {
			uc.StrOffsetsBase = v
		}
	}
	if fv, ok := root.Attr(AttrAddrBase); ok {
		if v, ok2 := fv.AsUint(); ok2 {
			uc.AddrBase = v
		}
	}
	if fv, ok := root.Attr(AttrRnglistsBase); ok {
		if v, ok2 := fv.AsUint(); ok2 {
			uc.RnglistsBase = v
		}
	}
	if fv, ok := root.Attr(AttrLoclistsBase); ok {
		if v, ok2 := fv.AsUint(); ok2 {
			uc.LoclistsBase = v
		}
	}
	if fv, ok := root.Attr(AttrFrameBase); ok {
		uc.FrameBase = fv
		uc.HasFrameBase = true
	}
	if fv, ok := root.Attr(AttrLowpc); ok {
		low, err := resolveAddrAttr(reg, uc, fv)
		if err != nil {
			if !IsMissing(err) {
				return nil, nil, err
			}
		} else {
			uc.LowPC = low
			uc.HasLowPC = true
		}
	}
	if fv, ok := root.Attr(AttrCompDir); ok {
		s, err := resolveString(reg, uc, fv)
		if err == nil {
			uc.CompDir = s
		} else if !IsMissing(err) {
			return nil, nil, err
		}
	}

	return uc, root, nil
}

// resolveAddrAttr resolves an address-valued FormValue (addr or addrx) to
// its numeric address, following the addrx indirection through
// .debug_addr when necessary (§4.6).
func resolveAddrAttr(reg *Registry, uc *unitContext, fv FormValue) (uint64, error) {
	switch fv.Kind {
	case FormKindAddr:
		return fv.Uint, nil
	case FormKindAddrx:
		if uc.AddrBase == 0 {
			return 0, missing("addrx attribute requires addr_base, which is not set on this compile unit")
		}
		return readDebugAddr(reg.Bytes(SectionDebugAddr), uc.order(), uc.AddrBase, fv.Uint)
	}
	return 0, bad("expected an address-valued attribute form, found 0x%x", int(fv.Kind))
}

// resolveString resolves a string-valued FormValue (string, strp, line_strp
// or strx) to its text, following the strx indirection through
// .debug_str_offsets when necessary (§4.3, §4.6's sibling for strings).
func resolveString(reg *Registry, uc *unitContext, fv FormValue) (string, error) {
	switch fv.Kind {
	case FormKindString:
		return string(fv.Bytes), nil
	case FormKindStrp:
		return readCStringAt(reg.Bytes(SectionDebugStr), fv.Uint)
	case FormKindLineStrp:
		return readCStringAt(reg.Bytes(SectionDebugLineStr), fv.Uint)
	case FormKindStrx:
		if uc.StrOffsetsBase == 0 {
			return "", missing("strx attribute requires str_offsets_base, which is not set on this compile unit")
		}
		section := reg.Bytes(SectionDebugStrOffsets)
		slotSize := uc.Format.offsetSize()
		slotOffset := uc.StrOffsetsBase + fv.Uint*uint64(slotSize)
		c := NewCursor(section, uc.order(), uc.AddrSize)
		if err := c.SeekTo(int(slotOffset)); err != nil {
			return "", bad("strx index %d out of range: %v", fv.Uint, err)
		}
		strOffset, err := c.ReadSecOffset(uc.Format)
		if err != nil {
			return "", err
		}
		return readCStringAt(reg.Bytes(SectionDebugStr), strOffset)
	}
	return "", bad("expected a string-valued attribute form, found 0x%x", int(fv.Kind))
}

// readCStringAt reads a NUL-terminated string out of section at offset
// without disturbing any cursor over that section.
func readCStringAt(section []byte, offset uint64) (string, error) {
	if section == nil {
		return "", bad("string section is not present")
	}
	if offset > uint64(len(section)) {
		return "", bad("string offset 0x%x beyond section length %d", offset, len(section))
	}
	end := offset
	for end < uint64(len(section)) && section[end] != 0 {
		end++
	}
	if end >= uint64(len(section)) {
		return "", bad("unterminated string at offset 0x%x", offset)
	}
	return string(section[offset:end]), nil
}

// readDIEAt decodes a single DIE at an absolute offset within .debug_info,
// using the abbreviation table the owning unit (uc) was built from. Used
// only to chase abstract_origin/specification reference hops (§4.4).
func readDIEAt(section []byte, uc *unitContext, offset uint64, cache *abbrevCache) (*DIE, error) {
	table, err := cache.get(uc.AbbrevOffset)
	if err != nil {
		return nil, err
	}
	c := NewCursor(section, uc.ByteOrder, uc.AddrSize)
	if err := c.SeekTo(int(offset)); err != nil {
		return nil, err
	}
	code, err := c.ReadULEB128()
	if err != nil {
		return nil, err
	}
	if code == 0 {
		return nil, bad("reference at 0x%x points to a null DIE", offset)
	}
	abbrev, ok := table.Get(code)
	if !ok {
		return nil, bad("reference at 0x%x uses unknown abbreviation code %d", offset, code)
	}
	attrs, err := parseAttrs(c, abbrev, uc.Format)
	if err != nil {
		return nil, err
	}
	return &DIE{Tag: abbrev.Tag, HasChildren: abbrev.HasChildren, Attrs: attrs, Offset: offset}, nil
}

// resolveFunctionName implements the name-resolution chase of §4.4: use
// AT.name if present, otherwise follow AT.abstract_origin or
// AT.specification to another DIE and retry, at most three hops. Only
// CU-relative (ref*) hops are followed; an ref_addr or absent link ends
// the chase with no name.
func resolveFunctionName(reg *Registry, cache *abbrevCache, uc *unitContext, die *DIE) (string, bool, error) {
	cur := die
	for hop := 0; ; hop++ {
		if nameFV, ok := cur.Attr(AttrName); ok {
			s, err := resolveString(reg, uc, nameFV)
			if err != nil {
				if IsMissing(err) {
					return "", false, nil
				}
				return "", false, err
			}
			return s, true, nil
		}
		if hop >= 3 {
			return "", false, nil
		}

		var next FormValue
		var found bool
		if fv, ok := cur.Attr(AttrAbstractOrigin); ok {
			next, found = fv, true
		} else if fv, ok := cur.Attr(AttrSpecification); ok {
			next, found = fv, true
		}
		if !found || next.Kind != FormKindRef {
			return "", false, nil
		}

		target := uc.HeaderOffset + next.Uint
		if target >= uc.UnitEnd {
			return "", false, nil
		}

		nextDie, err := readDIEAt(reg.Bytes(SectionDebugInfo), uc, target, cache)
		if err != nil {
			return "", false, err
		}
		cur = nextDie
	}
}

// derivePcRange implements the PC range derivation of §4.4: low_pc+high_pc
// first, then AT.ranges via the range iterator, unioning every yielded
// range into one enclosing span. Returns (nil, nil) when no range is
// discoverable.
func derivePcRange(reg *Registry, uc *unitContext, die *DIE) (*PcRange, error) {
	if lowFV, ok := die.Attr(AttrLowpc); ok {
		low, err := resolveAddrAttr(reg, uc, lowFV)
		if err != nil {
			if IsMissing(err) {
				return nil, nil
			}
			return nil, err
		}

		highFV, ok := die.Attr(AttrHighpc)
		if !ok {
			return nil, nil
		}

		var high uint64
		switch highFV.Kind {
		case FormKindAddr, FormKindAddrx:
			high, err = resolveAddrAttr(reg, uc, highFV)
			if err != nil {
				if IsMissing(err) {
					return nil, nil
				}
				return nil, err
			}
		case FormKindUdata:
			high = low + highFV.Uint
		case FormKindSdata:
			high = low + uint64(highFV.Int)
		default:
			return nil, bad("AT.high_pc has unsupported form 0x%x", int(highFV.Kind))
		}

		r := PcRange{Start: low, End: high}
		if !r.Valid() {
			return nil, bad("function PC range start 0x%x exceeds end 0x%x", low, high)
		}
		return &r, nil
	}

	rangesFV, ok := die.Attr(AttrRanges)
	if !ok {
		return nil, nil
	}

	it, err := newRangeIter(reg, uc, rangesFV)
	if err != nil {
		if IsMissing(err) {
			return nil, nil
		}
		return nil, err
	}

	var span PcRange
	have := false
	for {
		r, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !r.Valid() {
			return nil, bad("range list entry start 0x%x exceeds end 0x%x", r.Start, r.End)
		}
		if !have || r.Start < span.Start {
			span.Start = r.Start
		}
		if !have || r.End > span.End {
			span.End = r.End
		}
		have = true
	}
	if !have {
		return nil, nil
	}
	return &span, nil
}

// scanFunctions is pass 1 of §4.4: walk every compile unit in .debug_info,
// retaining every subprogram, inlined_subroutine, subroutine type or
// entry_point DIE below each compile_unit root that carries a name and/or a
// PC range. The compile_unit roots themselves are not retained here.
func scanFunctions(reg *Registry, cache *abbrevCache, addrSize int, order binary.ByteOrder) ([]*Function, error) {
	section := reg.Bytes(SectionDebugInfo)
	if section == nil {
		return nil, bad(".debug_info section is required")
	}

	var functions []*Function
	offset := 0
	for offset < len(section) {
		c := NewCursor(section, order, addrSize)
		if err := c.SeekTo(offset); err != nil {
			return nil, err
		}
		uh, err := c.ReadInitialLength()
		if err != nil {
			return nil, err
		}
		if uh.UnitLength == 0 {
			break // §8: a zero-length unit terminates the scan cleanly
		}
		unitEnd := uh.End(offset)
		if unitEnd > len(section) {
			return nil, bad("unit at offset 0x%x overruns .debug_info", offset)
		}

		uc, root, err := readUnitPreambleAndRoot(reg, cache, c, uint64(offset), uh)
		if err != nil {
			return nil, err
		}

		if root.HasChildren {
			fns, err := scanFunctionChildren(reg, cache, uc, c)
			if err != nil {
				return nil, err
			}
			functions = append(functions, fns...)
		}

		offset = unitEnd
	}

	return functions, nil
}

// scanFunctionChildren walks one level of the DIE tree (and recurses into
// every nested level) collecting Functions, until the null DIE terminating
// this level is consumed.
func scanFunctionChildren(reg *Registry, cache *abbrevCache, uc *unitContext, c *Cursor) ([]*Function, error) {
	table, err := cache.get(uc.AbbrevOffset)
	if err != nil {
		return nil, err
	}

	var functions []*Function
	for {
		dieOffset := uint64(c.Pos())
		code, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return functions, nil
		}

		abbrev, ok := table.Get(code)
		if !ok {
			return nil, bad("DIE at 0x%x uses unknown abbreviation code %d", dieOffset, code)
		}
		attrs, err := parseAttrs(c, abbrev, uc.Format)
		if err != nil {
			return nil, err
		}
		die := &DIE{Tag: abbrev.Tag, HasChildren: abbrev.HasChildren, Attrs: attrs, Offset: dieOffset}

		if die.Tag.IsFunctionLike() {
			fn, err := buildFunction(reg, cache, uc, die)
			if err != nil {
				return nil, err
			}
			if fn != nil {
				functions = append(functions, fn)
			}
		}

		if abbrev.HasChildren {
			childFns, err := scanFunctionChildren(reg, cache, uc, c)
			if err != nil {
				return nil, err
			}
			functions = append(functions, childFns...)
		}
	}
}

// buildFunction resolves a function-like DIE's name and PC range and
// returns a Function, or nil if neither was discoverable.
func buildFunction(reg *Registry, cache *abbrevCache, uc *unitContext, die *DIE) (*Function, error) {
	name, hasName, err := resolveFunctionName(reg, cache, uc, die)
	if err != nil {
		return nil, err
	}
	pcRange, err := derivePcRange(reg, uc, die)
	if err != nil {
		return nil, err
	}
	if !hasName && pcRange == nil {
		return nil, nil
	}
	return &Function{PcRange: pcRange, Name: name}, nil
}

// scanCompileUnits is pass 2 of §4.4: walk every compile unit again,
// decoding only its root DIE, and retain a CompileUnit with its attributes
// copied into owned storage.
func scanCompileUnits(reg *Registry, cache *abbrevCache, addrSize int, order binary.ByteOrder) ([]*CompileUnit, error) {
	section := reg.Bytes(SectionDebugInfo)
	if section == nil {
		return nil, bad(".debug_info section is required")
	}

	var units []*CompileUnit
	offset := 0
	for offset < len(section) {
		c := NewCursor(section, order, addrSize)
		if err := c.SeekTo(offset); err != nil {
			return nil, err
		}
		uh, err := c.ReadInitialLength()
		if err != nil {
			return nil, err
		}
		if uh.UnitLength == 0 {
			break
		}
		unitEnd := uh.End(offset)
		if unitEnd > len(section) {
			return nil, bad("unit at offset 0x%x overruns .debug_info", offset)
		}

		uc, root, err := readUnitPreambleAndRoot(reg, cache, c, uint64(offset), uh)
		if err != nil {
			return nil, err
		}

		pcRange, err := derivePcRange(reg, uc, root)
		if err != nil {
			return nil, err
		}

		cu := &CompileUnit{
			Offset:         uc.HeaderOffset,
			unitEnd:        uc.UnitEnd,
			Version:        uc.Version,
			Format:         uc.Format,
			AddrSize:       uc.AddrSize,
			byteOrder:      uc.ByteOrder,
			RootDIE:        root,
			PcRange:        pcRange,
			StrOffsetsBase: uc.StrOffsetsBase,
			AddrBase:       uc.AddrBase,
			RnglistsBase:   uc.RnglistsBase,
			LoclistsBase:   uc.LoclistsBase,
			FrameBase:      uc.FrameBase,
			HasFrameBase:   uc.HasFrameBase,
			LowPC:          uc.LowPC,
			HasLowPC:       uc.HasLowPC,
			CompDir:        uc.CompDir,
		}
		if fv, ok := root.Attr(AttrRanges); ok {
			fv := fv
			cu.rangesAttr = &fv
		}
		if fv, ok := root.Attr(AttrStmtList); ok {
			if v, ok2 := fv.AsUint(); ok2 {
				cu.StmtListOffset = v
				cu.HasStmtListOffset = true
			}
		}

		units = append(units, cu)
		offset = unitEnd
	}

	return units, nil
}
