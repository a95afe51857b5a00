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

// Package dwarf decodes DWARF debugging information and eh_frame/debug_frame
// call frame data out of caller-supplied byte sections, without depending on
// any particular object file format or source of those sections.
//
// A caller populates a Registry with the sections it has (from an ELF file,
// a Mach-O file, or bytes read directly out of a live process) and calls
// Open. The returned Dwarf answers four queries: the name of the function
// containing an address, the compile unit containing an address, the source
// line bracketing an address within a compile unit, and the call frame
// description covering a program counter.
//
// Every read is bounds-checked against the supplied sections; a truncated
// or structurally invalid section produces an error wrapping
// ErrInvalidDebugInfo rather than a panic or an out-of-bounds access. A
// well-formed section that simply has no answer to a query produces an
// error (or a false second return) rather than one wrapping
// ErrInvalidDebugInfo.
package dwarf
