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

func TestParseFormValueFlagPresent(t *testing.T) {
	c := NewCursor(nil, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormFlagPresent, Format32, 0, false)
	require.NoError(t, err)
	require.Equal(t, FormKindFlag, v.Kind)
	require.True(t, v.Flag)
}

func TestParseFormValueUdataAndSdata(t *testing.T) {
	data := []byte{0xe5, 0x8e, 0x26} // uleb128 624485
	c := NewCursor(data, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormUdata, Format32, 0, false)
	require.NoError(t, err)
	require.EqualValues(t, 624485, v.Uint)

	data = []byte{0x9b, 0xf1, 0x59} // sleb128 -624485
	c = NewCursor(data, binary.LittleEndian, 8)
	v, err = parseFormValue(c, FormSdata, Format32, 0, false)
	require.NoError(t, err)
	require.EqualValues(t, -624485, v.Int)
}

func TestParseFormValueStrx1(t *testing.T) {
	c := NewCursor([]byte{0x07}, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormStrx1, Format32, 0, false)
	require.NoError(t, err)
	require.Equal(t, FormKindStrx, v.Kind)
	require.EqualValues(t, 7, v.Uint)
}

func TestParseFormValueAddrx2(t *testing.T) {
	data := []byte{0x34, 0x12}
	c := NewCursor(data, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormAddrx2, Format32, 0, false)
	require.NoError(t, err)
	require.Equal(t, FormKindAddrx, v.Kind)
	require.EqualValues(t, 0x1234, v.Uint)
}

func TestParseFormValueBlock1(t *testing.T) {
	data := []byte{0x03, 0xde, 0xad, 0xbe}
	c := NewCursor(data, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormBlock1, Format32, 0, false)
	require.NoError(t, err)
	require.Equal(t, FormKindBlock, v.Kind)
	require.Equal(t, []byte{0xde, 0xad, 0xbe}, v.Bytes)
}

func TestParseFormValueImplicitConstRequiresPayload(t *testing.T) {
	c := NewCursor(nil, binary.LittleEndian, 8)
	_, err := parseFormValue(c, FormImplicitConst, Format32, 0, false)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestParseFormValueImplicitConst(t *testing.T) {
	c := NewCursor(nil, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormImplicitConst, Format32, -7, true)
	require.NoError(t, err)
	require.Equal(t, FormKindSdata, v.Kind)
	require.EqualValues(t, -7, v.Int)
}

func TestParseFormValueIndirect(t *testing.T) {
	// indirect points at DW_FORM_udata (0x0f), then a uleb128 payload.
	data := []byte{0x0f, 0x2a}
	c := NewCursor(data, binary.LittleEndian, 8)
	v, err := parseFormValue(c, FormIndirect, Format32, 0, false)
	require.NoError(t, err)
	require.Equal(t, FormKindUdata, v.Kind)
	require.EqualValues(t, 42, v.Uint)
}

func TestParseFormValueUnknownFormIsInvalid(t *testing.T) {
	c := NewCursor(nil, binary.LittleEndian, 8)
	_, err := parseFormValue(c, Form(0x99), Format32, 0, false)
	require.Error(t, err)
	require.True(t, IsInvalid(err))
}

func TestFormValueAsUintAndAsString(t *testing.T) {
	v := FormValue{Kind: FormKindString, Bytes: []byte("hello")}
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "hello", s)

	_, ok = v.AsUint()
	require.False(t, ok)

	v = FormValue{Kind: FormKindUdata, Uint: 5}
	u, ok := v.AsUint()
	require.True(t, ok)
	require.EqualValues(t, 5, u)
}
