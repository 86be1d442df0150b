// Package codegen generates the ES module source that replaces a reference to
// a wasm asset.
package codegen

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/loader"
	"github.com/wippyai/wasm-loader/placement"
	"github.com/wippyai/wasm-loader/wasm"
)

// Names bound by generated modules.
const (
	initFunc     = "__wasm_init"
	instanceVar  = "__wasm_instance"
	importPrefix = "__wasm_import_"
	exportPrefix = "__wasm_export_"
	reservedPref = "__wasm_"
)

// Input describes one reference to generate.
type Input struct {
	// LoaderID is the module id the loader is imported from. Defaults to loader.ID.
	LoaderID string
	// Asset is the source path, used in error messages.
	Asset    string
	Request  placement.Request
	Decision placement.Decision
	// Surface is required unless Request.Init or Request.URL is set.
	Surface *wasm.Surface
}

// Emit returns the module source for a reference.
func Emit(in Input) (string, error) {
	if in.Request.Sync && in.Request.URL {
		return "", errors.Internal(errors.PhaseCodegen, in.Asset, "`sync` and `url` must be rejected before codegen")
	}
	if in.Request.Sync && in.Decision.Kind == placement.External {
		return "", errors.SyncExternalConflict(in.Asset)
	}
	if err := in.Decision.Validate(in.Asset); err != nil {
		return "", err
	}

	g := &generator{}

	if in.Request.URL {
		if in.Decision.Kind != placement.External {
			return "", errors.Usage(in.Asset, "`url` parameter can only be used with non-inlined files", "url")
		}
		g.emitLinef("export default %s;", quote(in.Decision.PublicPath))
		return g.String(), nil
	}

	if !in.Request.Init && in.Surface == nil {
		return "", errors.Internal(errors.PhaseCodegen, in.Asset, "full linkage requires an inspected module surface")
	}

	loaderID := in.LoaderID
	if loaderID == "" {
		loaderID = loader.ID
	}

	g.emitLinef("import { %s } from %s;", loader.ExportName, quote(loaderID))
	if !in.Request.Init {
		for i, group := range in.Surface.Imports {
			g.emitLinef("import * as %s%d from %s;", importPrefix, i, quote(group.Module))
		}
	}
	g.emitLine("")

	g.generateInit(in)

	if in.Request.Init {
		return g.String(), nil
	}

	g.emitLine("")
	g.generateInstance(in)
	g.generateExports(in.Surface.Exports)
	return g.String(), nil
}

func (g *generator) generateInit(in Input) {
	path, src := "null", "null"
	if in.Decision.Kind == placement.External {
		path = quote(in.Decision.PublicPath)
	} else {
		src = quote(in.Decision.Encoded)
	}

	prefix := ""
	if in.Request.Init {
		prefix = "export default "
	}
	g.emitLinef("%sfunction %s(imports) {", prefix, initFunc)
	g.incIndent()
	g.emitLinef("return %s(%t, %s, %s, imports);", loader.ExportName, in.Request.Sync, path, src)
	g.decIndent()
	g.emitLine("}")
}

func (g *generator) generateInstance(in Input) {
	call := "await " + initFunc
	if in.Request.Sync {
		call = initFunc
	}

	if len(in.Surface.Imports) == 0 {
		g.emitLinef("const %s = %s({});", instanceVar, call)
		return
	}

	g.emitLinef("const %s = %s({", instanceVar, call)
	g.incIndent()
	for i, group := range in.Surface.Imports {
		g.emitLinef("%s: {", quote(group.Module))
		g.incIndent()
		for _, name := range group.Names {
			g.emitLinef("%s: %s%d[%s],", quote(name), importPrefix, i, quote(name))
		}
		g.decIndent()
		g.emitLine("},")
	}
	g.decIndent()
	g.emitLine("});")
}

func (g *generator) generateExports(names []string) {
	for i, name := range names {
		member := fmt.Sprintf("%s.exports[%s]", instanceVar, quote(name))
		switch {
		case name == "default":
			g.emitLinef("export default %s;", member)
		case IsIdentifier(name):
			g.emitLinef("export const %s = %s;", name, member)
		default:
			alias := fmt.Sprintf("%s%d", exportPrefix, i)
			g.emitLinef("const %s = %s;", alias, member)
			g.emitLinef("export { %s as %s };", alias, quote(name))
		}
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reservedWords = map[string]struct{}{
	"arguments": {}, "await": {}, "break": {}, "case": {}, "catch": {}, "class": {},
	"const": {}, "continue": {}, "debugger": {}, "default": {}, "delete": {}, "do": {},
	"else": {}, "enum": {}, "eval": {}, "export": {}, "extends": {}, "false": {},
	"finally": {}, "for": {}, "function": {}, "if": {}, "implements": {}, "import": {},
	"in": {}, "instanceof": {}, "interface": {}, "let": {}, "new": {}, "null": {},
	"package": {}, "private": {}, "protected": {}, "public": {}, "return": {},
	"static": {}, "super": {}, "switch": {}, "this": {}, "throw": {}, "true": {},
	"try": {}, "typeof": {}, "var": {}, "void": {}, "while": {}, "with": {}, "yield": {},
}

// IsIdentifier reports whether name can be exported with `export const`.
// Names in the generator's own namespace are excluded.
func IsIdentifier(name string) bool {
	if !identRe.MatchString(name) || strings.HasPrefix(name, reservedPref) {
		return false
	}
	_, reserved := reservedWords[name]
	return !reserved
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return string(b)
}

// generator accumulates module source.
type generator struct {
	sb     strings.Builder
	indent int
}

func (g *generator) emitLinef(format string, args ...any) {
	g.emitLine(fmt.Sprintf(format, args...))
}

func (g *generator) emitLine(s string) {
	if s == "" {
		g.sb.WriteString("\n")
		return
	}
	g.sb.WriteString(g.indentStr())
	g.sb.WriteString(s)
	g.sb.WriteString("\n")
}

func (g *generator) incIndent() { g.indent++ }
func (g *generator) decIndent() { g.indent-- }

func (g *generator) indentStr() string {
	return strings.Repeat("  ", g.indent)
}

func (g *generator) String() string {
	return g.sb.String()
}
