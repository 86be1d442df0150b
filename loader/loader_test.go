package loader

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-loader/target"
)

func TestRenderVariants(t *testing.T) {
	tests := []struct {
		env     target.Env
		present []string
		absent  []string
	}{
		{
			env: target.Auto,
			present: []string{
				"runtime === 'node'",
				"if (filepath && runtime === 'node') {",
				"} else if (filepath) {",
				"process.getBuiltinModule('fs/promises')",
				"instantiateOrCompile(fetch(filepath), imports, true)",
				"Buffer.from(src, 'base64')",
				"globalThis.atob(src)",
				"if (sync && filepath) {",
			},
		},
		{
			env: target.AutoInline,
			present: []string{
				"runtime === 'node'",
				"Buffer.from(src, 'base64')",
				"globalThis.atob(src)",
			},
			absent: []string{"fetch(", "fs/promises", "if (sync && filepath)"},
		},
		{
			env: target.Browser,
			present: []string{
				"instantiateOrCompile(fetch(filepath), imports, true)",
				"globalThis.atob(src)",
			},
			absent: []string{"process", "Buffer.from", "runtime ==="},
		},
		{
			env: target.Node,
			present: []string{
				"process.getBuiltinModule('fs/promises')",
				"path.resolve(import.meta.dirname, filepath)",
				"Buffer.from(src, 'base64')",
			},
			absent: []string{"fetch(", "atob", "runtime ==="},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.env), func(t *testing.T) {
			src, err := Render(tt.env)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, s := range tt.present {
				if !strings.Contains(src, s) {
					t.Errorf("missing %q in:\n%s", s, src)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(src, s) {
					t.Errorf("unexpected %q in:\n%s", s, src)
				}
			}
		})
	}
}

func TestRenderCommonShape(t *testing.T) {
	for _, env := range target.Envs {
		src := MustRender(env)

		if !strings.Contains(src, "export function loadModule(sync, filepath, src, imports) {") {
			t.Errorf("%s: missing export", env)
		}
		if strings.Count(src, "export ") != 1 {
			t.Errorf("%s: expected exactly one export", env)
		}
		for _, s := range []string{
			"new WebAssembly.Module(buf)",
			"new WebAssembly.Instance(mod, imports)",
			"then(({ instance }) => instance)",
			"return instantiateOrCompile(buf, imports)",
		} {
			if !strings.Contains(src, s) {
				t.Errorf("%s: missing %q", env, s)
			}
		}
		if o, c := strings.Count(src, "{"), strings.Count(src, "}"); o != c {
			t.Errorf("%s: unbalanced braces %d/%d", env, o, c)
		}
		if o, c := strings.Count(src, "("), strings.Count(src, ")"); o != c {
			t.Errorf("%s: unbalanced parens %d/%d", env, o, c)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	for _, env := range target.Envs {
		if MustRender(env) != MustRender(env) {
			t.Errorf("%s: output differs between calls", env)
		}
	}
}

func TestRenderUnknownEnv(t *testing.T) {
	if _, err := Render("deno"); err == nil {
		t.Error("expected error for unknown env")
	}
}

func TestWriterFragmentIndent(t *testing.T) {
	w := &writer{indent: 1}
	w.fragment("a\n\n  b\n")
	if got, want := w.String(), "  a\n\n    b\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
