// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

import (
	"bytes"
	"encoding/binary"
)

// Value types
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
)

// Descriptor kinds
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import is one import entry. Desc holds the raw descriptor bytes after the kind.
type Import struct {
	Module string
	Name   string
	Kind   byte
	Desc   []byte
}

// Export is one export entry.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Func is a defined function: a type index and its body instructions,
// without locals or the trailing end opcode.
type Func struct {
	Type uint32
	Body []byte
}

// Module describes a module to encode.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []uint32 // minimum pages
	Exports  []Export
	Custom   map[string][]byte
}

// FuncImport returns a function import of type index typeIdx.
func FuncImport(module, name string, typeIdx uint32) Import {
	w := &Writer{}
	w.WriteU32(typeIdx)
	return Import{Module: module, Name: name, Kind: KindFunc, Desc: w.Bytes()}
}

// MemoryImport returns a memory import with min pages.
func MemoryImport(module, name string, min uint32) Import {
	w := &Writer{}
	w.Byte(0x00)
	w.WriteU32(min)
	return Import{Module: module, Name: name, Kind: KindMemory, Desc: w.Bytes()}
}

// TableImport returns a funcref table import with min and max elements.
func TableImport(module, name string, min, max uint32) Import {
	w := &Writer{}
	w.Byte(0x70)
	w.Byte(0x01)
	w.WriteU32(min)
	w.WriteU32(max)
	return Import{Module: module, Name: name, Kind: KindTable, Desc: w.Bytes()}
}

// GlobalImport returns an immutable i32 global import.
func GlobalImport(module, name string) Import {
	return Import{Module: module, Name: name, Kind: KindGlobal, Desc: []byte{I32, 0x00}}
}

// Encode encodes the module to WebAssembly binary format.
func (m *Module) Encode() []byte {
	w := &Writer{}
	w.WriteBytes([]byte{0x00, 0x61, 0x73, 0x6D})
	w.WriteU32LE(1)

	if len(m.Types) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(0x60)
			sec.WriteU32(uint32(len(ft.Params)))
			sec.WriteBytes(ft.Params)
			sec.WriteU32(uint32(len(ft.Results)))
			sec.WriteBytes(ft.Results)
		}
		w.Section(0x01, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Kind)
			sec.WriteBytes(imp.Desc)
		}
		w.Section(0x02, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.WriteU32(f.Type)
		}
		w.Section(0x03, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Memories)))
		for _, min := range m.Memories {
			sec.Byte(0x00)
			sec.WriteU32(min)
		}
		w.Section(0x05, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(e.Kind)
			sec.WriteU32(e.Index)
		}
		w.Section(0x07, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := &Writer{}
			body.WriteU32(0) // no local declarations
			body.WriteBytes(f.Body)
			body.Byte(0x0B)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		w.Section(0x0A, sec.Bytes())
	}

	for name, data := range m.Custom {
		sec := &Writer{}
		sec.WriteName(name)
		sec.WriteBytes(data)
		w.Section(0x00, sec.Bytes())
	}

	return w.Bytes()
}

// Add returns a module exporting add(i32, i32) -> i32 and a one page memory.
func Add() []byte {
	m := &Module{
		Types:    []FuncType{{Params: []byte{I32, I32}, Results: []byte{I32}}},
		Funcs:    []Func{{Type: 0, Body: []byte{0x20, 0x00, 0x20, 0x01, 0x6A}}},
		Memories: []uint32{1},
		Exports: []Export{
			{Name: "add", Kind: KindFunc, Index: 0},
			{Name: "memory", Kind: KindMemory, Index: 0},
		},
	}
	return m.Encode()
}

// WithImports returns a module importing from "env" and "./math.js" in
// interleaved order and exporting run, default and a non-identifier name.
func WithImports() []byte {
	m := &Module{
		Types: []FuncType{
			{Params: []byte{I32}},
			{Params: []byte{I32, I32}, Results: []byte{I32}},
			{Results: []byte{I32}},
		},
		Imports: []Import{
			FuncImport("env", "log", 0),
			FuncImport("./math.js", "mul", 1),
			MemoryImport("env", "memory", 1),
			FuncImport("env", "log", 0),
			GlobalImport("./math.js", "offset"),
		},
		Funcs: []Func{
			{Type: 2, Body: []byte{0x41, 0x07}}, // i32.const 7
		},
		Exports: []Export{
			{Name: "run", Kind: KindFunc, Index: 3},
			{Name: "default", Kind: KindFunc, Index: 3},
			{Name: "get-value", Kind: KindFunc, Index: 3},
		},
	}
	return m.Encode()
}

// Writer provides buffered writing utilities for WASM binary encoding.
type Writer struct {
	buf bytes.Buffer
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteName writes a UTF-8 encoded name (length-prefixed).
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteU32LE writes a little-endian uint32 (fixed 4 bytes).
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// Section writes a section with its id and size prefix.
func (w *Writer) Section(id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}
