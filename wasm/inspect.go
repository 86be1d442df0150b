package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-loader/wasm/internal/binary"
)

// Parsing errors returned by Inspect.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrTrailingBytes  = errors.New("trailing bytes in section")
)

// ParseError describes a decode failure at a byte position.
type ParseError = binary.ParseError

// ImportGroup lists the members a module imports from one origin module.
type ImportGroup struct {
	Module string   `json:"from"`
	Names  []string `json:"names"`
}

// Surface is the import/export surface of a module.
type Surface struct {
	Imports []ImportGroup `json:"imports"`
	Exports []string      `json:"exports"`
}

// ImportCount returns the number of distinct imported members.
func (s *Surface) ImportCount() int {
	n := 0
	for _, g := range s.Imports {
		n += len(g.Names)
	}
	return n
}

// HasExport reports whether name is exported.
func (s *Surface) HasExport(name string) bool {
	for _, e := range s.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// Inspect decodes the import and export tables of a WebAssembly binary.
func Inspect(data []byte) (*Surface, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, r.WrapError("header", ErrInvalidMagic)
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, r.WrapError("header", ErrInvalidVersion)
	}

	s := &Surface{Imports: []ImportGroup{}, Exports: []string{}}

	var lastSectionOrder int
	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order == 0 {
				return nil, r.WrapError("section header", fmt.Errorf("unknown section ID: 0x%02x", sectionID))
			}
			if order <= lastSectionOrder {
				return nil, r.WrapError("section header", fmt.Errorf("section %d appears out of order", sectionID))
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		switch sectionID {
		case SectionImport, SectionExport:
			start := r.Position()
			sectionData, err := r.ReadBytes(int(sectionSize))
			if err != nil {
				return nil, r.WrapError("section data", err)
			}
			sr := binary.NewReader(sectionData)
			name := "import section"
			parse := parseImportSection
			if sectionID == SectionExport {
				name = "export section"
				parse = parseExportSection
			}
			if err := parse(sr, s); err != nil {
				return nil, &ParseError{Section: name, Position: start + sr.Position(), Err: err}
			}
			if sr.Len() != 0 {
				return nil, &ParseError{Section: name, Position: start + sr.Position(), Err: ErrTrailingBytes}
			}
		default:
			if err := r.Skip(int(sectionSize)); err != nil {
				return nil, r.WrapError("section data", err)
			}
		}
	}

	return s, nil
}

// sectionOrder returns the canonical ordering for a section ID, or 0 when the
// ID is unknown. The order differs from the numeric IDs for tag and data count.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 0
	}
}

func parseImportSection(r *binary.Reader, s *Surface) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})

	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if err := skipImportDesc(r, kind); err != nil {
			return fmt.Errorf("import %q.%q: %w", module, name, err)
		}

		gi, ok := index[module]
		if !ok {
			gi = len(s.Imports)
			index[module] = gi
			seen[module] = make(map[string]struct{})
			s.Imports = append(s.Imports, ImportGroup{Module: module})
		}
		if _, dup := seen[module][name]; dup {
			continue
		}
		seen[module][name] = struct{}{}
		s.Imports[gi].Names = append(s.Imports[gi].Names, name)
	}
	return nil
}

func skipImportDesc(r *binary.Reader, kind byte) error {
	switch kind {
	case KindFunc:
		_, err := r.ReadU32()
		return err
	case KindTable:
		return skipTableType(r)
	case KindMemory:
		return skipLimits(r)
	case KindGlobal:
		if err := skipValType(r); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	case KindTag:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	default:
		return fmt.Errorf("unknown import kind: %d", kind)
	}
}

func parseExportSection(r *binary.Reader, s *Surface) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindTag {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		s.Exports = append(s.Exports, name)
	}
	return nil
}

// skipValType consumes a value type, including the heap type of typed references.
func skipValType(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b == valRefNull || b == valRef {
		_, err := r.ReadS64()
		return err
	}
	return nil
}

func skipTableType(r *binary.Reader) error {
	first, err := r.ReadByte()
	if err != nil {
		return err
	}
	if first == tableInitPrefix {
		// Tables with init expressions are only legal in the table section.
		return fmt.Errorf("unexpected table init prefix in import")
	}
	if first == valRefNull || first == valRef {
		if _, err := r.ReadS64(); err != nil {
			return err
		}
	}
	return skipLimits(r)
}

func skipLimits(r *binary.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flags&^(limitsHasMax|limitsShared|limitsMemory64|limitsPageSize) != 0 {
		return fmt.Errorf("unknown limits flags: 0x%02x", flags)
	}
	read := func() error {
		if flags&limitsMemory64 != 0 {
			_, err := r.ReadU64()
			return err
		}
		_, err := r.ReadU32()
		return err
	}
	if err := read(); err != nil {
		return err
	}
	if flags&limitsHasMax != 0 {
		if err := read(); err != nil {
			return err
		}
	}
	if flags&limitsPageSize != 0 {
		_, err := r.ReadU32()
		return err
	}
	return nil
}
