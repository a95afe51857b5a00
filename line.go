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

import "path/filepath"

// LineEntry is one row the line number program's state machine emits: an
// address paired with the source position active at that address (§4.7).
type LineEntry struct {
	Address     uint64
	File        string
	Line        int
	Column      int
	IsStmt      bool
	EndSequence bool
}

// lineFileEntry is one row of the file name table, v2-4 and v5 alike.
type lineFileEntry struct {
	Name      string
	DirIndex  uint64
	HasMD5    bool
	MD5       [16]byte
}

// lineProgramHeader is the decoded header of a .debug_line program, unified
// across the legacy (v2-4) and v5 directory/file table encodings (§4.7).
type lineProgramHeader struct {
	format               Format
	version              uint16
	addressSize          int
	minInstructionLength uint8
	maxOpsPerInstruction uint8
	defaultIsStmt        bool
	lineBase             int8
	lineRange            uint8
	opcodeBase           uint8
	standardOpcodeLens   []uint8

	directories []string
	files       []lineFileEntry

	programStart int
	programEnd   int
}

// fileName returns the source file name for a 1-based (v2-4) or 0-based
// (v5) file table index, joined with its directory when the directory is
// known and the name itself is not already absolute.
func (h *lineProgramHeader) fileName(index uint64) string {
	fileIdx := index
	if h.version < 5 {
		if fileIdx == 0 || fileIdx > uint64(len(h.files)) {
			return ""
		}
		fileIdx--
	} else if fileIdx >= uint64(len(h.files)) {
		return ""
	}
	f := h.files[fileIdx]
	if f.DirIndex < uint64(len(h.directories)) && !filepath.IsAbs(f.Name) {
		if dir := h.directories[f.DirIndex]; dir != "" {
			return filepath.Join(dir, f.Name)
		}
	}
	return f.Name
}

// parseLineProgramHeader decodes the header of a line number program
// starting at the current cursor position, per §4.7's v2-4/v5 split.
func parseLineProgramHeader(reg *Registry, c *Cursor, uc *unitContext) (*lineProgramHeader, error) {
	start := c.Pos()

	uh, err := c.ReadInitialLength()
	if err != nil {
		return nil, err
	}
	unitEnd := uh.End(start)

	version, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	if version < 2 || version > 5 {
		return nil, bad("unsupported line number program version %d", version)
	}

	h := &lineProgramHeader{format: uh.Format, version: version, addressSize: c.AddrSize(), programEnd: unitEnd}

	if version == 5 {
		addrSize, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		if _, err := c.ReadU8(); err != nil { // segment_selector_size
			return nil, err
		}
		h.addressSize = int(addrSize)
	}

	headerLength, err := c.ReadSecOffset(uh.Format)
	if err != nil {
		return nil, err
	}
	programStart := c.Pos() + int(headerLength)

	h.minInstructionLength, err = c.ReadU8()
	if err != nil {
		return nil, err
	}
	if version >= 4 {
		h.maxOpsPerInstruction, err = c.ReadU8()
		if err != nil {
			return nil, err
		}
	} else {
		h.maxOpsPerInstruction = 1
	}

	defaultIsStmt, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	h.defaultIsStmt = defaultIsStmt != 0

	lineBase, err := c.ReadI8()
	if err != nil {
		return nil, err
	}
	h.lineBase = lineBase

	h.lineRange, err = c.ReadU8()
	if err != nil {
		return nil, err
	}
	if h.lineRange == 0 {
		return nil, bad("line program header has line_range of 0")
	}

	h.opcodeBase, err = c.ReadU8()
	if err != nil {
		return nil, err
	}
	h.standardOpcodeLens = make([]uint8, h.opcodeBase-1)
	for i := range h.standardOpcodeLens {
		h.standardOpcodeLens[i], err = c.ReadU8()
		if err != nil {
			return nil, err
		}
	}

	if version < 5 {
		if err := parseLegacyDirAndFileTables(c, h); err != nil {
			return nil, err
		}
	} else {
		if err := parseV5DirAndFileTables(reg, c, h, uc); err != nil {
			return nil, err
		}
	}

	h.programStart = programStart
	return h, nil
}

// parseLegacyDirAndFileTables decodes the DWARF 2-4 include_directories and
// file_names tables: NUL-terminated string lists, each ended by an empty
// string (§4.7).
func parseLegacyDirAndFileTables(c *Cursor, h *lineProgramHeader) error {
	h.directories = append(h.directories, "") // index 0 stands for the compilation directory; left empty, so names in it are not joined
	for {
		s, err := c.ReadCString()
		if err != nil {
			return err
		}
		if s == "" {
			break
		}
		h.directories = append(h.directories, s)
	}

	for {
		name, err := c.ReadCString()
		if err != nil {
			return err
		}
		if name == "" {
			break
		}
		dirIdx, err := c.ReadULEB128()
		if err != nil {
			return err
		}
		if _, err := c.ReadULEB128(); err != nil { // mtime
			return err
		}
		if _, err := c.ReadULEB128(); err != nil { // length
			return err
		}
		h.files = append(h.files, lineFileEntry{Name: name, DirIndex: dirIdx})
	}
	return nil
}

// parseV5DirAndFileTables decodes the DWARF5 format-descriptor-driven
// directory and file tables, where each row's columns are described by a
// (content type, form) list read once up front (§4.7).
func parseV5DirAndFileTables(reg *Registry, c *Cursor, h *lineProgramHeader, uc *unitContext) error {
	dirs, err := parseV5EntryTable(reg, c, h, uc)
	if err != nil {
		return err
	}
	for _, row := range dirs {
		h.directories = append(h.directories, row.Name)
	}

	files, err := parseV5EntryTable(reg, c, h, uc)
	if err != nil {
		return err
	}
	h.files = files
	return nil
}

// parseV5EntryTable decodes one v5 directory- or file-table: a format
// count, that many (content type, form) pairs, an entry count, then that
// many rows each encoding one value per format column.
func parseV5EntryTable(reg *Registry, c *Cursor, h *lineProgramHeader, uc *unitContext) ([]lineFileEntry, error) {
	formatCount, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	type column struct {
		contentType uint64
		form        Form
	}
	columns := make([]column, formatCount)
	for i := range columns {
		ct, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		f, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		columns[i] = column{contentType: ct, form: Form(f)}
	}

	entryCount, err := c.ReadULEB128()
	if err != nil {
		return nil, err
	}

	entries := make([]lineFileEntry, 0, entryCount)
	for i := uint64(0); i < entryCount; i++ {
		var row lineFileEntry
		for _, col := range columns {
			v, err := parseFormValue(c, col.form, h.format, 0, false)
			if err != nil {
				return nil, err
			}
			switch col.contentType {
			case lnctPath:
				s, err := resolveString(reg, uc, v)
				if err != nil {
					return nil, err
				}
				row.Name = s
			case lnctDirectoryIndex:
				if u, ok := v.AsUint(); ok {
					row.DirIndex = u
				}
			case lnctMD5:
				if len(v.Bytes) == 16 {
					copy(row.MD5[:], v.Bytes)
					row.HasMD5 = true
				}
			}
		}
		entries = append(entries, row)
	}
	return entries, nil
}

// lineState is the registers of the line number program state machine
// (§4.7).
type lineState struct {
	address      uint64
	opIndex      uint8
	file         uint64
	line         int64
	column       uint64
	isStmt       bool
	basicBlock   bool
	endSequence  bool
	prologueEnd  bool
	epilogueBeg  bool
	isa          uint64
	discriminator uint64
}

func newLineState(h *lineProgramHeader) lineState {
	file := uint64(1)
	if h.version >= 5 {
		file = 0
	}
	return lineState{file: file, line: 1, isStmt: h.defaultIsStmt}
}

// advancePC implements the op_index/address advance shared by
// DW_LNS_advance_pc, special opcodes, and DW_LNS_const_add_pc (§4.7, "VLIW
// address advance").
func (s *lineState) advancePC(h *lineProgramHeader, opAdvance uint64) {
	if h.maxOpsPerInstruction <= 1 {
		s.address += uint64(h.minInstructionLength) * opAdvance
		return
	}
	total := uint64(s.opIndex) + opAdvance
	s.address += uint64(h.minInstructionLength) * (total / uint64(h.maxOpsPerInstruction))
	s.opIndex = uint8(total % uint64(h.maxOpsPerInstruction))
}

// runLineProgram executes a line number program's opcode stream, calling
// emit for every matrix row (copy, special opcodes and end_sequence) it
// produces (§4.7).
func runLineProgram(c *Cursor, h *lineProgramHeader, uc *unitContext, emit func(LineEntry)) error {
	if err := c.SeekTo(h.programStart); err != nil {
		return err
	}

	state := newLineState(h)

	row := func() {
		emit(LineEntry{
			Address:     state.address,
			File:        h.fileName(state.file),
			Line:        int(state.line),
			Column:      int(state.column),
			IsStmt:      state.isStmt,
			EndSequence: state.endSequence,
		})
	}

	for c.Pos() < h.programEnd {
		opcode, err := c.ReadU8()
		if err != nil {
			return err
		}

		switch {
		case opcode == 0:
			if err := runExtendedOpcode(c, h, &state, row); err != nil {
				return err
			}

		case opcode < h.opcodeBase:
			if err := runStandardOpcode(c, h, &state, opcode, row); err != nil {
				return err
			}

		default:
			adjusted := uint64(opcode) - uint64(h.opcodeBase)
			opAdvance := adjusted / uint64(h.lineRange)
			lineAdvance := int64(h.lineBase) + int64(adjusted%uint64(h.lineRange))
			state.advancePC(h, opAdvance)
			state.line += lineAdvance
			state.basicBlock = false
			state.prologueEnd = false
			state.epilogueBeg = false
			state.discriminator = 0
			row()
		}
	}

	return nil
}

// runExtendedOpcode decodes and executes one DW_LNE_* instruction.
func runExtendedOpcode(c *Cursor, h *lineProgramHeader, state *lineState, row func()) error {
	length, err := c.ReadULEB128()
	if err != nil {
		return err
	}
	if length == 0 {
		return bad("extended line number opcode has zero length")
	}
	end := c.Pos() + int(length)

	sub, err := c.ReadU8()
	if err != nil {
		return err
	}

	switch sub {
	case lneEndSequence:
		state.endSequence = true
		row()
		*state = newLineState(h)

	case lneSetAddress:
		addr, err := c.ReadNativeAddress()
		if err != nil {
			return err
		}
		state.address = addr
		state.opIndex = 0

	case lneDefineFile:
		if _, err := c.ReadCString(); err != nil {
			return err
		}
		if _, err := c.ReadULEB128(); err != nil {
			return err
		}
		if _, err := c.ReadULEB128(); err != nil {
			return err
		}
		if _, err := c.ReadULEB128(); err != nil {
			return err
		}

	default:
		// vendor extension: skip to the declared length regardless of
		// whether we understood the payload.
	}

	return c.SeekTo(end)
}

// runStandardOpcode decodes and executes one DW_LNS_* instruction, skipping
// any the header declares but that this package does not interpret (by
// reading exactly as many LEB128 operands as standard_opcode_lengths says).
func runStandardOpcode(c *Cursor, h *lineProgramHeader, state *lineState, opcode uint8, row func()) error {
	switch opcode {
	case lnsCopy:
		row()
		state.basicBlock = false
		state.prologueEnd = false
		state.epilogueBeg = false
		state.discriminator = 0

	case lnsAdvancePC:
		adv, err := c.ReadULEB128()
		if err != nil {
			return err
		}
		state.advancePC(h, adv)

	case lnsAdvanceLine:
		adv, err := c.ReadSLEB128()
		if err != nil {
			return err
		}
		state.line += adv

	case lnsSetFile:
		f, err := c.ReadULEB128()
		if err != nil {
			return err
		}
		state.file = f

	case lnsSetColumn:
		col, err := c.ReadULEB128()
		if err != nil {
			return err
		}
		state.column = col

	case lnsNegateStmt:
		state.isStmt = !state.isStmt

	case lnsSetBasicBlock:
		state.basicBlock = true

	case lnsConstAddPC:
		adjusted := uint64(255) - uint64(h.opcodeBase)
		state.advancePC(h, adjusted/uint64(h.lineRange))

	case lnsFixedAdvancePC:
		adv, err := c.ReadUint16()
		if err != nil {
			return err
		}
		state.address += uint64(adv)
		state.opIndex = 0

	case lnsSetPrologueEnd:
		state.prologueEnd = true

	case lnsSetEpilogueBegin:
		state.epilogueBeg = true

	case lnsSetISA:
		isa, err := c.ReadULEB128()
		if err != nil {
			return err
		}
		state.isa = isa

	default:
		n := int(h.standardOpcodeLens[opcode-1])
		for i := 0; i < n; i++ {
			if _, err := c.ReadULEB128(); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkLineMatch reports whether entry brackets addr: a non-end_sequence
// row is authoritative for every address from its own up to (but not
// including) the next row's, per §4.7's "bracket matching" rule.
func checkLineMatch(entries []LineEntry, addr uint64) (LineEntry, bool) {
	var best LineEntry
	found := false
	for i, e := range entries {
		if e.EndSequence {
			continue
		}
		var next uint64
		haveNext := false
		if i+1 < len(entries) {
			next = entries[i+1].Address
			haveNext = true
		}
		if addr < e.Address {
			continue
		}
		if haveNext && addr >= next {
			continue
		}
		if !found || e.Address > best.Address {
			best = e
			found = true
		}
	}
	return best, found
}

// getLineNumberInfo decodes cu's line number program in full and returns
// the source file/line bracketing addr, per §4.7 and §6's
// GetLineNumberInfo operation.
func getLineNumberInfo(reg *Registry, cu *CompileUnit, addr uint64) (LineEntry, bool, error) {
	if !cu.HasStmtListOffset {
		return LineEntry{}, false, nil
	}

	section := reg.Bytes(SectionDebugLine)
	if section == nil {
		return LineEntry{}, false, missing(".debug_line section not present")
	}

	c := NewCursor(section, cu.byteOrder, cu.AddrSize)
	if err := c.SeekTo(int(cu.StmtListOffset)); err != nil {
		return LineEntry{}, false, bad("stmt_list offset 0x%x out of range: %v", cu.StmtListOffset, err)
	}

	uc := cu.toUnitContext()
	h, err := parseLineProgramHeader(reg, c, uc)
	if err != nil {
		return LineEntry{}, false, err
	}

	var entries []LineEntry
	if err := runLineProgram(c, h, uc, func(e LineEntry) { entries = append(entries, e) }); err != nil {
		return LineEntry{}, false, err
	}

	entry, ok := checkLineMatch(entries, addr)
	return entry, ok, nil
}
