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

import "fmt"

// MemoryValidator reports whether n bytes starting at addr are safe to
// dereference. It is consulted by a Cursor's checked reads only when a
// memory base has been installed via Cursor.SetMemoryBase, for a caller
// reading bytes directly out of a live process rather than out of a section
// loaded from a file (§4.1, §5). Open and the Dwarf query methods never
// install a memory base.
//
// A nil MemoryValidator disables the check entirely.
type MemoryValidator func(addr uint64, n int) bool

// invalidMemory builds the error a checked read fails with when the
// installed MemoryValidator rejects an address.
func invalidMemory(addr uint64, n int) error {
	return fmt.Errorf("dwarf: memory access of %d bytes at 0x%x rejected: %w: %w", n, addr, ErrInvalidMemory, ErrInvalidDebugInfo)
}

// AlwaysValid is a MemoryValidator that accepts every address; useful in
// tests and when reading sections known to be backed by a complete file.
func AlwaysValid(addr uint64, n int) bool { return true }
