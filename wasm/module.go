package wasm

import (
	"bytes"
	"slices"
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is a function import.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Function is a defined function. Body holds the instructions without the
// local declarations and without the final END.
type Function struct {
	Name   string
	Type   uint32
	Locals []ValType
	Body   []byte
}

// Global is a module global initialized with a constant.
type Global struct {
	Type    ValType
	Mutable bool
	Init    int64
}

type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// DataSegment is an active segment in memory 0.
type DataSegment struct {
	Offset uint32
	Bytes  []byte
}

// Module is an in-memory module. Function indices count imports first.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []Function
	Table     []uint32 // function indices, installed at table offset 0
	MemoryMin uint32   // pages; memory is omitted when HasMemory is false
	HasMemory bool
	Globals   []Global
	Exports   []Export
	Data      []DataSegment
	// Names emits the custom "name" section.
	Names bool
}

// AddType returns the index of ft, appending it when it is new.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if slices.Equal(t.Params, ft.Params) && slices.Equal(t.Results, ft.Results) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// FuncName returns the name of function index idx.
func (m *Module) FuncName(idx uint32) string {
	if int(idx) < len(m.Imports) {
		return m.Imports[idx].Name
	}
	idx -= uint32(len(m.Imports))
	if int(idx) < len(m.Funcs) {
		return m.Funcs[idx].Name
	}
	return ""
}

// Encode serializes the module. Sections are written in the canonical order.
func (m *Module) Encode() []byte {
	var buf bytes.Buffer

	// WASM header
	writeBytes(&buf, []byte{0x00, 0x61, 0x73, 0x6D}) // magic
	writeBytes(&buf, []byte{0x01, 0x00, 0x00, 0x00}) // version

	m.emitTypeSection(&buf)
	m.emitImportSection(&buf)
	m.emitFunctionSection(&buf)
	m.emitTableSection(&buf)
	m.emitMemorySection(&buf)
	m.emitGlobalSection(&buf)
	m.emitExportSection(&buf)
	m.emitElementSection(&buf)
	m.emitCodeSection(&buf)
	m.emitDataSection(&buf)
	if m.Names {
		m.emitNameSection(&buf)
	}
	return buf.Bytes()
}

func (m *Module) emitTypeSection(buf *bytes.Buffer) {
	if len(m.Types) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Types)))
	for _, t := range m.Types {
		writeByte(&section, 0x60) // func type
		writeValTypes(&section, t.Params)
		writeValTypes(&section, t.Results)
	}
	writeSection(buf, SectionType, &section)
}

func writeValTypes(buf *bytes.Buffer, vts []ValType) {
	writeLEB128(buf, uint32(len(vts)))
	for _, v := range vts {
		writeByte(buf, byte(v))
	}
}

func (m *Module) emitImportSection(buf *bytes.Buffer) {
	if len(m.Imports) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		writeName(&section, imp.Module)
		writeName(&section, imp.Name)
		writeByte(&section, byte(ExportFunc))
		writeLEB128(&section, imp.Type)
	}
	writeSection(buf, SectionImport, &section)
}

func (m *Module) emitFunctionSection(buf *bytes.Buffer) {
	if len(m.Funcs) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		writeLEB128(&section, f.Type)
	}
	writeSection(buf, SectionFunction, &section)
}

func (m *Module) emitTableSection(buf *bytes.Buffer) {
	if len(m.Table) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, 1)
	writeByte(&section, byte(FuncRef))
	writeByte(&section, 0x00) // limits: min only
	writeLEB128(&section, uint32(len(m.Table)))
	writeSection(buf, SectionTable, &section)
}

func (m *Module) emitMemorySection(buf *bytes.Buffer) {
	if !m.HasMemory {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, 1)
	writeByte(&section, 0x00) // limits: min only
	writeLEB128(&section, m.MemoryMin)
	writeSection(buf, SectionMemory, &section)
}

func (m *Module) emitGlobalSection(buf *bytes.Buffer) {
	if len(m.Globals) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeByte(&section, byte(g.Type))
		if g.Mutable {
			writeByte(&section, 0x01)
		} else {
			writeByte(&section, 0x00)
		}
		switch g.Type {
		case I64:
			writeByte(&section, I64_CONST)
			writeLEB128Signed(&section, g.Init)
		case F64:
			writeByte(&section, F64_CONST)
			writeF64(&section, float64(g.Init))
		default:
			writeByte(&section, I32_CONST)
			writeLEB128Signed(&section, int64(int32(g.Init)))
		}
		writeByte(&section, END)
	}
	writeSection(buf, SectionGlobal, &section)
}

func (m *Module) emitExportSection(buf *bytes.Buffer) {
	if len(m.Exports) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Exports)))
	for _, e := range m.Exports {
		writeName(&section, e.Name)
		writeByte(&section, byte(e.Kind))
		writeLEB128(&section, e.Index)
	}
	writeSection(buf, SectionExport, &section)
}

func (m *Module) emitElementSection(buf *bytes.Buffer) {
	if len(m.Table) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, 1)
	writeByte(&section, 0x00) // active, table 0
	writeByte(&section, I32_CONST)
	writeLEB128Signed(&section, 0)
	writeByte(&section, END)
	writeLEB128(&section, uint32(len(m.Table)))
	for _, idx := range m.Table {
		writeLEB128(&section, idx)
	}
	writeSection(buf, SectionElement, &section)
}

func (m *Module) emitCodeSection(buf *bytes.Buffer) {
	if len(m.Funcs) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		var body bytes.Buffer
		writeLocals(&body, f.Locals)
		writeBytes(&body, f.Body)
		writeByte(&body, END)

		writeLEB128(&section, uint32(body.Len()))
		writeBytes(&section, body.Bytes())
	}
	writeSection(buf, SectionCode, &section)
}

// writeLocals run-length encodes consecutive locals of the same type.
func writeLocals(buf *bytes.Buffer, locals []ValType) {
	type group struct {
		n int
		t ValType
	}
	var groups []group
	for _, l := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == l {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{1, l})
	}
	writeLEB128(buf, uint32(len(groups)))
	for _, g := range groups {
		writeLEB128(buf, uint32(g.n))
		writeByte(buf, byte(g.t))
	}
}

func (m *Module) emitDataSection(buf *bytes.Buffer) {
	if len(m.Data) == 0 {
		return
	}
	var section bytes.Buffer
	writeLEB128(&section, uint32(len(m.Data)))
	for _, d := range m.Data {
		writeByte(&section, 0x00) // active, memory 0
		writeByte(&section, I32_CONST)
		writeLEB128Signed(&section, int64(int32(d.Offset)))
		writeByte(&section, END)
		writeLEB128(&section, uint32(len(d.Bytes)))
		writeBytes(&section, d.Bytes)
	}
	writeSection(buf, SectionData, &section)
}

func (m *Module) emitNameSection(buf *bytes.Buffer) {
	var names bytes.Buffer
	total := uint32(len(m.Imports) + len(m.Funcs))
	writeLEB128(&names, total)
	for i := uint32(0); i < total; i++ {
		writeLEB128(&names, i)
		writeName(&names, m.FuncName(i))
	}

	var section bytes.Buffer
	writeName(&section, "name")
	writeByte(&section, 0x01) // function names subsection
	writeLEB128(&section, uint32(names.Len()))
	writeBytes(&section, names.Bytes())
	writeSection(buf, SectionCustom, &section)
}
