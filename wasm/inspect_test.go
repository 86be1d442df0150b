package wasm_test

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-loader/internal/wasmtest"
	"github.com/wippyai/wasm-loader/wasm"
)

func TestInspectMinimalModule(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	s, err := wasm.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(s.Imports) != 0 || len(s.Exports) != 0 {
		t.Errorf("expected empty surface, got %+v", s)
	}
}

func TestInspectAdd(t *testing.T) {
	s, err := wasm.Inspect(wasmtest.Add())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(s.Imports) != 0 {
		t.Errorf("expected no imports, got %+v", s.Imports)
	}
	if want := []string{"add", "memory"}; !reflect.DeepEqual(s.Exports, want) {
		t.Errorf("Exports = %v, want %v", s.Exports, want)
	}
	if !s.HasExport("add") || s.HasExport("sub") {
		t.Error("HasExport mismatch")
	}
}

func TestInspectImportGrouping(t *testing.T) {
	s, err := wasm.Inspect(wasmtest.WithImports())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	want := []wasm.ImportGroup{
		{Module: "env", Names: []string{"log", "memory"}},
		{Module: "./math.js", Names: []string{"mul", "offset"}},
	}
	if !reflect.DeepEqual(s.Imports, want) {
		t.Errorf("Imports = %+v, want %+v", s.Imports, want)
	}
	if s.ImportCount() != 4 {
		t.Errorf("ImportCount = %d, want 4", s.ImportCount())
	}
	if wantExports := []string{"run", "default", "get-value"}; !reflect.DeepEqual(s.Exports, wantExports) {
		t.Errorf("Exports = %v, want %v", s.Exports, wantExports)
	}
}

func TestInspectAllImportKinds(t *testing.T) {
	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{{}},
		Imports: []wasmtest.Import{
			wasmtest.TableImport("b", "table", 1, 10),
			wasmtest.MemoryImport("a", "mem", 2),
			wasmtest.GlobalImport("b", "g"),
			wasmtest.FuncImport("a", "f", 0),
			// memory64 with max
			{Module: "c", Name: "mem64", Kind: wasmtest.KindMemory, Desc: []byte{0x05, 0x01, 0x02}},
			// custom page size, then with max
			{Module: "d", Name: "small", Kind: wasmtest.KindMemory, Desc: []byte{0x08, 0x01, 0x00}},
			{Module: "d", Name: "small-max", Kind: wasmtest.KindMemory, Desc: []byte{0x09, 0x01, 0x02, 0x10}},
			// (ref null 0) global
			{Module: "c", Name: "ref", Kind: wasmtest.KindGlobal, Desc: []byte{0x63, 0x00, 0x00}},
			// tag
			{Module: "c", Name: "tag", Kind: 4, Desc: []byte{0x00, 0x00}},
		},
	}
	s, err := wasm.Inspect(m.Encode())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	want := []wasm.ImportGroup{
		{Module: "b", Names: []string{"table", "g"}},
		{Module: "a", Names: []string{"mem", "f"}},
		{Module: "c", Names: []string{"mem64", "ref", "tag"}},
		{Module: "d", Names: []string{"small", "small-max"}},
	}
	if !reflect.DeepEqual(s.Imports, want) {
		t.Errorf("Imports = %+v, want %+v", s.Imports, want)
	}
}

func TestInspectSkipsCustomSections(t *testing.T) {
	m := &wasmtest.Module{
		Exports: []wasmtest.Export{{Name: "memory", Kind: wasmtest.KindMemory}},
		Custom:  map[string][]byte{"name": {0x01, 0x02, 0x03}},
	}
	m.Memories = []uint32{1}
	s, err := wasm.Inspect(m.Encode())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !reflect.DeepEqual(s.Exports, []string{"memory"}) {
		t.Errorf("Exports = %v", s.Exports)
	}
}

func TestInspectDeterministic(t *testing.T) {
	data := wasmtest.WithImports()
	a, err := wasm.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, err := wasm.Inspect(data)
		if err != nil {
			t.Fatalf("Inspect: %v", err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("run %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestInspectErrors(t *testing.T) {
	valid := wasmtest.Add()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, nil},
		{"truncated header", []byte{0x00, 0x61, 0x73}, nil},
		{"invalid magic", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, wasm.ErrInvalidMagic},
		{"invalid version", []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, wasm.ErrInvalidVersion},
		{"truncated section", valid[:len(valid)-3], nil},
		{"unknown section", append(header(), 0x20, 0x00), nil},
		{"out of order", append(header(), 0x07, 0x01, 0x00, 0x02, 0x01, 0x00), nil},
		{"bad import kind", append(header(), 0x02, 0x06, 0x01, 0x01, 'a', 0x01, 'b', 0x09), nil},
		{"unknown limits flags", append(header(), 0x02, 0x08, 0x01, 0x01, 'a', 0x01, 'b', 0x02, 0x10, 0x00), nil},
		{"bad export kind", append(header(), 0x07, 0x05, 0x01, 0x01, 'x', 0x09, 0x00), nil},
		{"invalid utf8 name", append(header(), 0x07, 0x05, 0x01, 0x01, 0xff, 0x00, 0x00), nil},
		{"trailing bytes", append(header(), 0x07, 0x06, 0x01, 0x01, 'x', 0x00, 0x00, 0xAA), wasm.ErrTrailingBytes},
		{"count exceeds entries", append(header(), 0x07, 0x05, 0x02, 0x01, 'x', 0x00, 0x00), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := wasm.Inspect(tt.data)
			if err == nil {
				t.Fatalf("expected error, got surface %+v", s)
			}
			if s != nil {
				t.Errorf("expected nil surface on error, got %+v", s)
			}
			var pe *wasm.ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T: %v", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestInspectMatchesWazero cross-checks the surface against wazero's view of
// the same module.
func TestInspectMatchesWazero(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{
			{Params: []byte{wasmtest.I32}},
			{Params: []byte{wasmtest.I32, wasmtest.I32}, Results: []byte{wasmtest.I32}},
		},
		Imports: []wasmtest.Import{
			wasmtest.FuncImport("env", "log", 0),
			wasmtest.FuncImport("host", "mul", 1),
			wasmtest.FuncImport("env", "trace", 0),
		},
		Funcs:    []wasmtest.Func{{Type: 1, Body: []byte{0x20, 0x00, 0x20, 0x01, 0x6A}}},
		Memories: []uint32{1},
		Exports: []wasmtest.Export{
			{Name: "add", Kind: wasmtest.KindFunc, Index: 3},
			{Name: "memory", Kind: wasmtest.KindMemory, Index: 0},
		},
	}
	data := m.Encode()

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		t.Fatalf("wazero compile: %v", err)
	}
	s, err := wasm.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	var wazeroImports [][2]string
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		wazeroImports = append(wazeroImports, [2]string{module, name})
	}
	var ours [][2]string
	for _, g := range s.Imports {
		for _, n := range g.Names {
			ours = append(ours, [2]string{g.Module, n})
		}
	}
	sortPairs(wazeroImports)
	sortPairs(ours)
	if !reflect.DeepEqual(ours, wazeroImports) {
		t.Errorf("imports = %v, wazero = %v", ours, wazeroImports)
	}

	var wazeroExports []string
	for name := range compiled.ExportedFunctions() {
		wazeroExports = append(wazeroExports, name)
	}
	for name := range compiled.ExportedMemories() {
		wazeroExports = append(wazeroExports, name)
	}
	sort.Strings(wazeroExports)
	exports := append([]string(nil), s.Exports...)
	sort.Strings(exports)
	if !reflect.DeepEqual(exports, wazeroExports) {
		t.Errorf("exports = %v, wazero = %v", exports, wazeroExports)
	}
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func sortPairs(p [][2]string) {
	sort.Slice(p, func(i, j int) bool {
		if p[i][0] != p[j][0] {
			return p[i][0] < p[j][0]
		}
		return p[i][1] < p[j][1]
	})
}
