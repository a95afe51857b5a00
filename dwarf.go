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
	"log/slog"
)

// Dwarf is the entry point of the package: a set of debug sections plus the
// compile units and functions scanned out of .debug_info, and (optionally)
// the call frame information decoded from .eh_frame/.debug_frame (§6).
type Dwarf struct {
	reg       *Registry
	order     binary.ByteOrder
	addrSize  int
	validate  MemoryValidator

	abbrev *abbrevCache

	functions     []*Function
	compileUnits  []*CompileUnit

	ehFrame      *frameSection
	debugFrame   *frameSection
	ehFrameHdr   *ExceptionFrameHeader

	log *slog.Logger
}

// OpenOptions configures Open. ByteOrder and AddrSize must match the target
// binary's ELF/Mach-O header. Validate is stored on the returned Dwarf, but
// no read made by Open or by the query methods consults it: the cursors they
// build never have a memory base installed. Logger defaults to
// slog.Default() when nil.
type OpenOptions struct {
	ByteOrder binary.ByteOrder
	AddrSize  int
	Validate  MemoryValidator
	Logger    *slog.Logger
}

// Open builds a Dwarf from a populated Registry, running both scanning
// passes over .debug_info (§4.4) and, when present, decoding
// .eh_frame/.debug_frame and .eh_frame_hdr (§4.8, §4.9). .debug_info and
// .debug_abbrev are required; Open fails if either is missing. It does not
// read or own any file; reg's sections must outlive the returned Dwarf
// unless they were marked Owned.
func Open(reg *Registry, opts OpenOptions) (*Dwarf, error) {
	if opts.AddrSize != 4 && opts.AddrSize != 8 {
		return nil, bad("unsupported native address size %d", opts.AddrSize)
	}
	if !reg.Has(SectionDebugInfo) || !reg.Has(SectionDebugAbbrev) {
		return nil, bad("%s and %s are required", SectionDebugInfo, SectionDebugAbbrev)
	}
	order := opts.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dwarf{
		reg:      reg,
		order:    order,
		addrSize: opts.AddrSize,
		validate: opts.Validate,
		abbrev:   newAbbrevCache(reg.Bytes(SectionDebugAbbrev)),
		log:      logger,
	}

	fns, err := scanFunctions(reg, d.abbrev, d.addrSize, d.order)
	if err != nil {
		return nil, err
	}
	d.functions = fns

	cus, err := scanCompileUnits(reg, d.abbrev, d.addrSize, d.order)
	if err != nil {
		return nil, err
	}
	d.compileUnits = cus

	d.log.Debug("scanned .debug_info", "compile_units", len(d.compileUnits), "functions", len(d.functions))

	if reg.Has(SectionEhFrame) {
		s := reg.Get(SectionEhFrame)
		fs, err := parseFrameSection(s.Data, d.order, d.addrSize, true, s.virtualOffset(0))
		if err != nil {
			return nil, err
		}
		d.ehFrame = fs
		d.log.Debug("scanned .eh_frame", "fdes", len(fs.fdes))
	}

	if reg.Has(SectionDebugFrame) {
		s := reg.Get(SectionDebugFrame)
		fs, err := parseFrameSection(s.Data, d.order, d.addrSize, false, s.virtualOffset(0))
		if err != nil {
			return nil, err
		}
		d.debugFrame = fs
		d.log.Debug("scanned .debug_frame", "fdes", len(fs.fdes))
	}

	if reg.Has(SectionEhFrameHdr) {
		s := reg.Get(SectionEhFrameHdr)
		hdr, err := parseEhFrameHdr(s.Data, d.order, d.addrSize, s.virtualOffset(0))
		if err != nil {
			// a malformed .eh_frame_hdr is not fatal: ScanAllUnwindInfo
			// falls back to the full .eh_frame/.debug_frame scan (§4.9).
			d.log.Warn("ignoring malformed .eh_frame_hdr", "error", err)
		} else {
			d.ehFrameHdr = hdr
		}
	}

	return d, nil
}

// GetSymbolName returns the name of the innermost function-like entry
// containing addr, per §6. Functions retained without a PC range are never
// matched; when several overlap (inlined subroutines nested in their
// caller) the most recently scanned, narrowest-starting one wins, matching
// the scan's depth-first order.
func (d *Dwarf) GetSymbolName(addr uint64) (string, bool) {
	var best *Function
	for _, fn := range d.functions {
		if !fn.Contains(addr) {
			continue
		}
		if best == nil || fn.PcRange.Start >= best.PcRange.Start {
			best = fn
		}
	}
	if best == nil || best.Name == "" {
		return "", false
	}
	return best.Name, true
}

// FindCompileUnit returns the compile unit containing addr, per §6.
func (d *Dwarf) FindCompileUnit(addr uint64) (*CompileUnit, error) {
	for _, cu := range d.compileUnits {
		ok, err := cu.Contains(d.reg, addr)
		if err != nil {
			return nil, err
		}
		if ok {
			return cu, nil
		}
	}
	return nil, nil
}

// GetLineNumberInfo returns the source file and line bracketing addr within
// cu's line number program, per §6 and §4.7.
func (d *Dwarf) GetLineNumberInfo(cu *CompileUnit, addr uint64) (LineEntry, bool, error) {
	return getLineNumberInfo(d.reg, cu, addr)
}

// ScanAllUnwindInfo returns the FDE covering pc by binary search of the
// PcBegin-sorted FDE lists Open decoded, trying .eh_frame first and
// .debug_frame only when .eh_frame has nothing for pc. When .eh_frame_hdr
// was parsed its table is searched first, but the FDE returned always comes
// from the .eh_frame list: the table's FDE address is not used to locate or
// decode an entry.
func (d *Dwarf) ScanAllUnwindInfo(pc uint64) (*FDE, bool) {
	if d.ehFrameHdr != nil && d.ehFrame != nil {
		if _, ok := d.ehFrameHdr.findEntry(pc); ok {
			if fde, ok := d.ehFrame.findFDE(pc); ok {
				return fde, true
			}
		}
	}
	if d.ehFrame != nil {
		if fde, ok := d.ehFrame.findFDE(pc); ok {
			return fde, true
		}
	}
	if d.debugFrame != nil {
		if fde, ok := d.debugFrame.findFDE(pc); ok {
			return fde, true
		}
	}
	return nil, false
}

// CompileUnits returns every compile unit retained by the second scanning
// pass, in the order .debug_info presented them.
func (d *Dwarf) CompileUnits() []*CompileUnit { return d.compileUnits }

// Functions returns every function-like entry retained by the first
// scanning pass, in the order .debug_info presented them.
func (d *Dwarf) Functions() []*Function { return d.functions }

// Deinit releases every owned section's backing storage. The Dwarf must
// not be used afterwards.
func (d *Dwarf) Deinit() {
	d.reg.release()
}
