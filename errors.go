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
	"errors"
	"fmt"
)

// ErrInvalidDebugInfo is the sentinel wrapped by every error reporting a
// structural violation of the DWARF or eh_frame wire format: a truncated
// read, an unknown enumerator, an impossible header, an out-of-bounds
// index, or an ambiguous augmentation string. The binary's debug data is
// broken; callers should report and stop.
var ErrInvalidDebugInfo = errors.New("invalid debug info")

// ErrMissingDebugInfo is the sentinel wrapped by every error reporting that
// a well-formed section simply lacks the requested information: no
// compile unit contains a queried address, no line row brackets it, a
// required attribute is absent. Callers should fall back, not abort.
var ErrMissingDebugInfo = errors.New("missing debug info")

// ErrInvalidMemory is returned by a checked Cursor read when the supplied
// MemoryValidator rejects the address being dereferenced. Used only when
// reading live process memory.
var ErrInvalidMemory = errors.New("invalid memory access")

// bad wraps a formatted message in ErrInvalidDebugInfo.
func bad(format string, args ...any) error {
	return fmt.Errorf("dwarf: %s: %w", fmt.Sprintf(format, args...), ErrInvalidDebugInfo)
}

// missing wraps a formatted message in ErrMissingDebugInfo.
func missing(format string, args ...any) error {
	return fmt.Errorf("dwarf: %s: %w", fmt.Sprintf(format, args...), ErrMissingDebugInfo)
}

// IsInvalid reports whether err is (or wraps) ErrInvalidDebugInfo.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidDebugInfo)
}

// IsMissing reports whether err is (or wraps) ErrMissingDebugInfo.
func IsMissing(err error) bool {
	return errors.Is(err, ErrMissingDebugInfo)
}
