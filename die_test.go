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
	"testing"

	"github.com/stretchr/testify/require"
)

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// buildSingleUnitDebugInfo assembles a one-CU v4 .debug_info/.debug_abbrev
// pair: a compile_unit root (name, low_pc, comp_dir) with one subprogram
// child (name, low_pc, high_pc as a udata offset).
func buildSingleUnitDebugInfo() (debugInfo, debugAbbrev, debugStr []byte) {
	// code 1: compile_unit, has children, name/low_pc/comp_dir
	debugAbbrev = append(debugAbbrev, 0x01, byte(TagCompileUnit), 0x01)
	debugAbbrev = append(debugAbbrev, byte(AttrName), byte(FormStrp))
	debugAbbrev = append(debugAbbrev, byte(AttrLowpc), byte(FormAddr))
	debugAbbrev = append(debugAbbrev, byte(AttrCompDir), byte(FormStrp))
	debugAbbrev = append(debugAbbrev, 0x00, 0x00)
	// code 2: subprogram, no children, name/low_pc/high_pc
	debugAbbrev = append(debugAbbrev, 0x02, byte(TagSubprogram), 0x00)
	debugAbbrev = append(debugAbbrev, byte(AttrName), byte(FormStrp))
	debugAbbrev = append(debugAbbrev, byte(AttrLowpc), byte(FormAddr))
	debugAbbrev = append(debugAbbrev, byte(AttrHighpc), byte(FormData4))
	debugAbbrev = append(debugAbbrev, 0x00, 0x00)
	debugAbbrev = append(debugAbbrev, 0x00)

	debugStr = append(debugStr, "cu.c\x00"...) // offset 0
	debugStr = append(debugStr, "main\x00"...) // offset 5
	debugStr = append(debugStr, "/src\x00"...) // offset 10

	var root []byte
	root = append(root, uleb(1)...)
	root = append(root, le32(0)...)  // name -> "cu.c"
	root = append(root, le64(0x400000)...)
	root = append(root, le32(10)...) // comp_dir -> "/src"

	var child []byte
	child = append(child, uleb(2)...)
	child = append(child, le32(5)...) // name -> "main"
	child = append(child, le64(0x400000)...)
	child = append(child, le32(0x20)...) // high_pc offset

	body := append([]byte{}, byte(4), byte(0)) // version 4, little-endian uint16
	body = append(body, le32(0)...)             // abbrev_offset
	body = append(body, 0x08)                   // address_size
	body = append(body, root...)
	body = append(body, child...)
	body = append(body, 0x00) // end of root's children

	debugInfo = append(debugInfo, le32(uint32(len(body)))...)
	debugInfo = append(debugInfo, body...)
	return debugInfo, debugAbbrev, debugStr
}

func TestScanFunctionsAndCompileUnits(t *testing.T) {
	info, abbrev, str := buildSingleUnitDebugInfo()

	reg := &Registry{}
	reg.Set(SectionDebugInfo, &Section{Data: info})
	reg.Set(SectionDebugStr, &Section{Data: str})

	cache := newAbbrevCache(abbrev)

	functions, err := scanFunctions(reg, cache, 8, binary.LittleEndian)
	require.NoError(t, err)
	require.Len(t, functions, 1)
	require.Equal(t, "main", functions[0].Name)
	require.Equal(t, PcRange{Start: 0x400000, End: 0x400020}, *functions[0].PcRange)

	units, err := scanCompileUnits(reg, cache, 8, binary.LittleEndian)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.EqualValues(t, 0x400000, units[0].LowPC)
	require.Equal(t, "/src", units[0].CompDir)

	ok, err := units[0].Contains(reg, 0x400010)
	require.NoError(t, err)
	require.False(t, ok) // the CU root itself carries no high_pc, so PcRange is nil
}

func TestScanFunctionsTruncatedUnitIsInvalid(t *testing.T) {
	info, abbrev, str := buildSingleUnitDebugInfo()
	info = info[:len(info)-5] // cut off before the children terminator

	reg := &Registry{}
	reg.Set(SectionDebugInfo, &Section{Data: info})
	reg.Set(SectionDebugStr, &Section{Data: str})
	cache := newAbbrevCache(abbrev)

	_, err := scanFunctions(reg, cache, 8, binary.LittleEndian)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestDerivePcRangeLowHighPC(t *testing.T) {
	die := &DIE{Attrs: []DIEAttr{
		{Attr: AttrLowpc, Value: FormValue{Kind: FormKindAddr, Uint: 0x1000}},
		{Attr: AttrHighpc, Value: FormValue{Kind: FormKindUdata, Uint: 0x50}},
	}}
	uc := &unitContext{AddrSize: 8, ByteOrder: binary.LittleEndian}

	r, err := derivePcRange(nil, uc, die)
	require.NoError(t, err)
	require.Equal(t, PcRange{Start: 0x1000, End: 0x1050}, *r)
}

func TestDerivePcRangeNoAttrsReturnsNil(t *testing.T) {
	die := &DIE{}
	uc := &unitContext{AddrSize: 8, ByteOrder: binary.LittleEndian}
	r, err := derivePcRange(nil, uc, die)
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestDerivePcRangeViaRanges(t *testing.T) {
	var rangesSection []byte
	rangesSection = append(rangesSection, le32(0x10)...)
	rangesSection = append(rangesSection, le32(0x20)...)
	rangesSection = append(rangesSection, le32(0x30)...)
	rangesSection = append(rangesSection, le32(0x40)...)
	rangesSection = append(rangesSection, le32(0)...)
	rangesSection = append(rangesSection, le32(0)...)

	reg := &Registry{}
	reg.Set(SectionDebugRanges, &Section{Data: rangesSection})

	uc := &unitContext{Version: 4, AddrSize: 4, ByteOrder: binary.LittleEndian}
	die := &DIE{Attrs: []DIEAttr{
		{Attr: AttrRanges, Value: FormValue{Kind: FormKindSecOffset, Uint: 0}},
	}}

	r, err := derivePcRange(reg, uc, die)
	require.NoError(t, err)
	require.Equal(t, PcRange{Start: 0x10, End: 0x40}, *r)
}

func TestResolveFunctionNameDirect(t *testing.T) {
	die := &DIE{Attrs: []DIEAttr{
		{Attr: AttrName, Value: FormValue{Kind: FormKindString, Bytes: []byte("direct")}},
	}}
	uc := &unitContext{}
	name, ok, err := resolveFunctionName(nil, nil, uc, die)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "direct", name)
}

func TestResolveFunctionNameChasesAbstractOrigin(t *testing.T) {
	var abbrev []byte
	abbrev = append(abbrev, 0x01, byte(TagSubprogram), 0x00)
	abbrev = append(abbrev, byte(AttrName), byte(FormStrp))
	abbrev = append(abbrev, 0x00, 0x00)
	abbrev = append(abbrev, 0x00)

	str := append([]byte{}, "target_name\x00"...)

	var info []byte
	info = append(info, uleb(1)...)
	info = append(info, le32(0)...) // name -> "target_name"

	reg := &Registry{}
	reg.Set(SectionDebugInfo, &Section{Data: info})
	reg.Set(SectionDebugStr, &Section{Data: str})

	cache := newAbbrevCache(abbrev)
	uc := &unitContext{HeaderOffset: 0, UnitEnd: uint64(len(info)), Format: Format32, AddrSize: 8, ByteOrder: binary.LittleEndian, AbbrevOffset: 0}

	cur := &DIE{Attrs: []DIEAttr{
		{Attr: AttrAbstractOrigin, Value: FormValue{Kind: FormKindRef, Uint: 0}},
	}}

	name, ok, err := resolveFunctionName(reg, cache, uc, cur)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "target_name", name)
}

func TestResolveFunctionNameStopsAtThreeHops(t *testing.T) {
	var abbrev []byte
	abbrev = append(abbrev, 0x01, byte(TagSubprogram), 0x00)
	abbrev = append(abbrev, byte(AttrName), byte(FormStrp))
	abbrev = append(abbrev, 0x00, 0x00)
	abbrev = append(abbrev, 0x02, byte(TagSubprogram), 0x00)
	abbrev = append(abbrev, byte(AttrAbstractOrigin), byte(FormRef4))
	abbrev = append(abbrev, 0x00, 0x00)
	abbrev = append(abbrev, 0x00)

	str := append([]byte{}, "too_far\x00"...)

	var info []byte
	offsetE := len(info)
	info = append(info, uleb(1)...)
	info = append(info, le32(0)...) // "too_far"

	offsetD := len(info)
	info = append(info, uleb(2)...)
	info = append(info, le32(uint32(offsetE))...)

	offsetC := len(info)
	info = append(info, uleb(2)...)
	info = append(info, le32(uint32(offsetD))...)

	offsetB := len(info)
	info = append(info, uleb(2)...)
	info = append(info, le32(uint32(offsetC))...)

	reg := &Registry{}
	reg.Set(SectionDebugInfo, &Section{Data: info})
	reg.Set(SectionDebugStr, &Section{Data: str})

	cache := newAbbrevCache(abbrev)
	uc := &unitContext{HeaderOffset: 0, UnitEnd: uint64(len(info)), Format: Format32, AddrSize: 8, ByteOrder: binary.LittleEndian, AbbrevOffset: 0}

	cur := &DIE{Attrs: []DIEAttr{
		{Attr: AttrAbstractOrigin, Value: FormValue{Kind: FormKindRef, Uint: uint64(offsetB)}},
	}}

	name, ok, err := resolveFunctionName(reg, cache, uc, cur)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, name)
}

func TestFunctionContains(t *testing.T) {
	f := &Function{PcRange: &PcRange{Start: 0x100, End: 0x200}}
	require.True(t, f.Contains(0x150))
	require.False(t, f.Contains(0x200))
	require.False(t, f.Contains(0x50))

	f2 := &Function{}
	require.False(t, f2.Contains(0x100))
}
