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

package main

import (
	"debug/elf"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	dwarf "github.com/jetsetilly/dwarfcore"
	"github.com/jetsetilly/dwarfcore/logger"
)

// Color definitions, following the teacher's cmd/cpu/debug.go palette:
// red/bold for structural failures, yellow for "not found", green for a
// resolved answer.
var (
	colorError   = color.New(color.FgRed, color.Bold)
	colorWarn    = color.New(color.FgYellow)
	colorValue   = color.New(color.FgGreen, color.Bold)
	colorAddr    = color.New(color.FgCyan)
	colorSummary = color.New(color.FgWhite, color.Bold)
)

// elfSectionName maps a SectionID to the section name debug/elf reports
// it under; ELF uses the canonical ".debug_*"/".eh_frame*" names directly.
func elfSectionName(id dwarf.SectionID) string { return id.String() }

// machoSectionName maps a SectionID to the "__xxx" name Mach-O object
// files carry it under, inside the __DWARF segment (debug sections) or
// __TEXT segment (eh_frame).
func machoSectionName(id dwarf.SectionID) string {
	switch id {
	case dwarf.SectionEhFrame:
		return "__eh_frame"
	case dwarf.SectionEhFrameHdr:
		return "__eh_frame_hdr"
	default:
		name := id.String() // e.g. ".debug_info"
		return "__" + name[1:]
	}
}

// openRegistry opens path as an ELF or Mach-O file and populates a
// dwarfcore.Registry with whichever of the up to 14 named sections it
// finds. The returned closer must be called once the caller is done
// querying the registry's sections.
func openRegistry(path string) (*dwarf.Registry, binary.ByteOrder, int, func(), error) {
	if f, err := elf.Open(path); err == nil {
		reg := &dwarf.Registry{}
		for id := dwarf.SectionID(0); id < dwarf.SectionEhFrameHdr+1; id++ {
			sec := f.Section(elfSectionName(id))
			if sec == nil {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				logger.Logf("cmd", "skipping %s: %v", elfSectionName(id), err)
				continue
			}
			reg.Set(id, &dwarf.Section{Data: data, VirtualAddress: sec.Addr, HasVirtual: sec.Addr != 0})
		}
		addrSize := 4
		if f.Class == elf.ELFCLASS64 {
			addrSize = 8
		}
		return reg, f.ByteOrder, addrSize, func() { f.Close() }, nil
	}

	if f, err := macho.Open(path); err == nil {
		reg := &dwarf.Registry{}
		for id := dwarf.SectionID(0); id < dwarf.SectionEhFrameHdr+1; id++ {
			sec := f.Section(machoSectionName(id))
			if sec == nil {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				logger.Logf("cmd", "skipping %s: %v", machoSectionName(id), err)
				continue
			}
			reg.Set(id, &dwarf.Section{Data: data, VirtualAddress: sec.Addr, HasVirtual: sec.Addr != 0})
		}
		addrSize := 4
		if f.Magic == macho.Magic64 {
			addrSize = 8
		}
		return reg, f.ByteOrder, addrSize, func() { f.Close() }, nil
	}

	return nil, nil, 0, nil, fmt.Errorf("dwarfdump: %s is neither a readable ELF nor Mach-O file", path)
}

func openDwarf(path string) (*dwarf.Dwarf, func(), error) {
	reg, order, addrSize, closer, err := openRegistry(path)
	if err != nil {
		return nil, nil, err
	}

	d, err := dwarf.Open(reg, dwarf.OpenOptions{ByteOrder: order, AddrSize: addrSize})
	if err != nil {
		closer()
		return nil, nil, err
	}
	return d, closer, nil
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

// reportErr colors an error by the sentinel kind it wraps: red/bold for a
// structural ErrInvalidDebugInfo, yellow for a fall-back ErrMissingDebugInfo.
func reportErr(err error) {
	switch {
	case dwarf.IsInvalid(err):
		colorError.Fprintln(os.Stderr, err)
	case dwarf.IsMissing(err):
		colorWarn.Fprintln(os.Stderr, err)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
}

var symbolCmd = &cobra.Command{
	Use:   "symbol <binary> <addr>",
	Short: "Resolve addr to the name of the innermost function containing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		d, closer, err := openDwarf(args[0])
		if err != nil {
			reportErr(err)
			return err
		}
		defer closer()
		defer d.Deinit()

		name, ok := d.GetSymbolName(addr)
		if !ok {
			colorWarn.Printf("no function contains %s\n", colorAddr.Sprintf("0x%x", addr))
			return nil
		}
		colorValue.Println(name)
		return nil
	},
}

var lineCmd = &cobra.Command{
	Use:   "line <binary> <addr>",
	Short: "Resolve addr to a source file and line number",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		d, closer, err := openDwarf(args[0])
		if err != nil {
			reportErr(err)
			return err
		}
		defer closer()
		defer d.Deinit()

		cu, err := d.FindCompileUnit(addr)
		if err != nil {
			reportErr(err)
			return err
		}
		if cu == nil {
			colorWarn.Printf("no compile unit contains %s\n", colorAddr.Sprintf("0x%x", addr))
			return nil
		}

		line, ok, err := d.GetLineNumberInfo(cu, addr)
		if err != nil {
			reportErr(err)
			return err
		}
		if !ok {
			colorWarn.Printf("no line entry brackets %s\n", colorAddr.Sprintf("0x%x", addr))
			return nil
		}
		colorValue.Printf("%s:%d\n", line.File, line.Line)
		return nil
	},
}

var unwindCmd = &cobra.Command{
	Use:   "unwind <binary> <addr>",
	Short: "Find the FDE covering addr in .eh_frame/.debug_frame",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		d, closer, err := openDwarf(args[0])
		if err != nil {
			reportErr(err)
			return err
		}
		defer closer()
		defer d.Deinit()

		fde, ok := d.ScanAllUnwindInfo(addr)
		if !ok {
			colorWarn.Printf("no FDE covers %s\n", colorAddr.Sprintf("0x%x", addr))
			return nil
		}
		colorValue.Printf("pc_begin=0x%x pc_range=0x%x augmentation=%q\n", fde.PcBegin, fde.PcRange, fde.CIE.Augmentation)
		return nil
	},
}

var unitsCmd = &cobra.Command{
	Use:   "units <binary>",
	Short: "List every compile unit scanned from .debug_info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closer, err := openDwarf(args[0])
		if err != nil {
			reportErr(err)
			return err
		}
		defer closer()
		defer d.Deinit()

		for _, cu := range d.CompileUnits() {
			colorSummary.Printf("%s  ", cu.CompDir)
			fmt.Printf("low_pc=%s\n", colorAddr.Sprintf("0x%x", cu.LowPC))
		}
		return nil
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions <binary>",
	Short: "List every function-like DIE retained from .debug_info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closer, err := openDwarf(args[0])
		if err != nil {
			reportErr(err)
			return err
		}
		defer closer()
		defer d.Deinit()

		for _, fn := range d.Functions() {
			if fn.PcRange == nil {
				colorValue.Println(fn.Name)
				continue
			}
			colorValue.Print(fn.Name)
			fmt.Printf(" [%s, %s)\n", colorAddr.Sprintf("0x%x", fn.PcRange.Start), colorAddr.Sprintf("0x%x", fn.PcRange.End))
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Dump the ring buffer of recent dwarfcore activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return logger.Write(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(symbolCmd, lineCmd, unwindCmd, unitsCmd, functionsCmd, logCmd)
}
