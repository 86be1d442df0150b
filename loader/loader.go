// Package loader renders the runtime module that decodes, fetches and
// instantiates wasm payloads for generated reference modules.
//
// The rendered module is a singleton per build output. It exports one
// function:
//
//	loadModule(sync, filepath, src, imports)
//
// Exactly one of filepath and src is non-null. When imports is supplied (even
// an empty object) the result is a WebAssembly.Instance, otherwise a compiled
// WebAssembly.Module. Async calls return a Promise of either.
package loader

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-loader/target"
)

// ID is the default module id under which hosts serve the loader. The NUL
// prefix keeps it from colliding with any file on disk.
const ID = "\x00wasm-loader.js"

// ExportName is the function exported by the loader module.
const ExportName = "loadModule"

// runtime is one of the closed set of runtimes a loader can target.
type runtime uint8

const (
	runtimeNode runtime = iota + 1
	runtimeBrowser
)

// variant is the code shape selected for a target.Env.
type variant struct {
	probe    bool      // detect the runtime at execution time
	external bool      // include code for non-inlined payloads
	runtimes []runtime // runtimes with code in the module, probe order
}

func variantFor(env target.Env) (variant, error) {
	switch env {
	case target.Auto:
		return variant{probe: true, external: true, runtimes: []runtime{runtimeNode, runtimeBrowser}}, nil
	case target.AutoInline:
		return variant{probe: true, runtimes: []runtime{runtimeNode, runtimeBrowser}}, nil
	case target.Browser:
		return variant{external: true, runtimes: []runtime{runtimeBrowser}}, nil
	case target.Node:
		return variant{external: true, runtimes: []runtime{runtimeNode}}, nil
	default:
		return variant{}, fmt.Errorf("loader: unknown target environment %q", env)
	}
}

// Render returns the loader module source for env.
func Render(env target.Env) (string, error) {
	v, err := variantFor(env)
	if err != nil {
		return "", err
	}

	w := &writer{}
	w.line("// wasm loader (target: " + string(env) + ")")
	w.line("export function " + ExportName + "(sync, filepath, src, imports) {")
	w.indent++

	writeInstantiateOrCompile(w)
	writeSyncGuard(w, v)

	w.line("let buf = null")
	if v.probe {
		w.fragment(probeRuntime)
	}
	if v.external {
		writeExternal(w, v)
	}
	writeDecode(w, v)
	writeFinish(w)

	w.indent--
	w.line("}")
	return w.String(), nil
}

// MustRender is Render for environments known to be valid.
func MustRender(env target.Env) string {
	src, err := Render(env)
	if err != nil {
		panic(err)
	}
	return src
}

func writeInstantiateOrCompile(w *writer) {
	w.fragment(`function instantiateOrCompile(source, imports, stream) {
  if (stream && typeof WebAssembly.instantiateStreaming !== 'function') {
    return Promise.resolve(source)
      .then((response) => response.arrayBuffer())
      .then((bytes) => instantiateOrCompile(bytes, imports))
  }

  const instantiate = stream ? WebAssembly.instantiateStreaming : WebAssembly.instantiate
  const compile = stream ? WebAssembly.compileStreaming : WebAssembly.compile

  if (imports) {
    return instantiate(source, imports).then(({ instance }) => instance)
  }
  return compile(source)
}`)
	w.blank()
}

func writeSyncGuard(w *writer, v variant) {
	if !v.external {
		return
	}
	w.fragment(`if (sync && filepath) {
  throw new Error('wasm: non-inlined module ' + filepath + ' can not be compiled synchronously')
}`)
	w.blank()
}

func writeExternal(w *writer, v variant) {
	for i, rt := range v.runtimes {
		cond := "filepath"
		if v.probe && i < len(v.runtimes)-1 {
			cond = "filepath && " + rt.probeCondition()
		}
		switch {
		case i == 0:
			w.line("if (" + cond + ") {")
		default:
			w.line("} else if (" + cond + ") {")
		}
		w.indent++
		w.fragment(rt.readFile())
		w.indent--
	}
	w.line("}")
	w.blank()
}

func writeDecode(w *writer, v variant) {
	if len(v.runtimes) == 1 {
		w.fragment(v.runtimes[0].decode())
		w.blank()
		return
	}
	for i, rt := range v.runtimes {
		switch {
		case i == 0:
			w.line("if (" + rt.probeCondition() + ") {")
		case i == len(v.runtimes)-1:
			w.line("} else {")
		default:
			w.line("} else if (" + rt.probeCondition() + ") {")
		}
		w.indent++
		w.fragment(rt.decode())
		w.indent--
	}
	w.line("}")
	w.blank()
}

func writeFinish(w *writer) {
	w.fragment(`if (sync) {
  const mod = new WebAssembly.Module(buf)
  return imports ? new WebAssembly.Instance(mod, imports) : mod
}
return instantiateOrCompile(buf, imports)`)
}

const probeRuntime = `const runtime = typeof process !== 'undefined' && process.versions != null && process.versions.node != null
  ? 'node'
  : 'browser'
`

func (rt runtime) probeCondition() string {
	if rt == runtimeNode {
		return "runtime === 'node'"
	}
	return "runtime === 'browser'"
}

func (rt runtime) readFile() string {
	if rt == runtimeNode {
		return `const { readFile } = process.getBuiltinModule('fs/promises')
const path = process.getBuiltinModule('path')

return readFile(path.resolve(import.meta.dirname, filepath)).then(
  (buffer) => instantiateOrCompile(buffer, imports)
)`
	}
	return `return instantiateOrCompile(fetch(filepath), imports, true)`
}

func (rt runtime) decode() string {
	if rt == runtimeNode {
		return `const { Buffer } = process.getBuiltinModule('buffer')
buf = Buffer.from(src, 'base64')`
	}
	return `const raw = globalThis.atob(src)
const len = raw.length
buf = new Uint8Array(new ArrayBuffer(len))
for (let i = 0; i < len; i++) {
  buf[i] = raw.charCodeAt(i)
}`
}

// writer accumulates indented JavaScript source.
type writer struct {
	sb     strings.Builder
	indent int
}

func (w *writer) line(s string) {
	w.sb.WriteString(strings.Repeat("  ", w.indent))
	w.sb.WriteString(s)
	w.sb.WriteByte('\n')
}

func (w *writer) blank() {
	w.sb.WriteByte('\n')
}

// fragment writes a multi-line snippet at the current indentation.
func (w *writer) fragment(src string) {
	for _, l := range strings.Split(strings.TrimRight(src, "\n"), "\n") {
		if l == "" {
			w.blank()
			continue
		}
		w.line(l)
	}
}

func (w *writer) String() string {
	return w.sb.String()
}
