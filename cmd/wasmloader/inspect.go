package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/placement"
	"github.com/wippyai/wasm-loader/wasm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] file.wasm",
	Short: "Print the import/export surface of a wasm binary",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "print the surface as JSON")
	inspectCmd.Flags().Bool("verify", false, "cross-check the surface by compiling with wazero")
	inspectCmd.Flags().BoolP("interactive", "i", false, "browse the surface and call functions in a TUI")
}

// inspectReport is the JSON form of an inspection.
type inspectReport struct {
	Path string `json:"path"`
	Size int    `json:"size"`
	Hash string `json:"hash"`
	*wasm.Surface
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive {
		return runInteractive(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Load(path, err)
	}
	surface, err := wasm.Inspect(data)
	if err != nil {
		return errors.Format(path, err)
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(inspectReport{Path: path, Size: len(data), Hash: placement.Hash(data), Surface: surface}); err != nil {
			return err
		}
	} else {
		printSurface(out, path, data, surface)
	}

	verify, _ := cmd.Flags().GetBool("verify")
	if !verify {
		return nil
	}
	mismatches, err := verifySurface(cmd.Context(), data, surface)
	if err != nil {
		return fmt.Errorf("wazero compile: %w", err)
	}
	if len(mismatches) > 0 {
		for _, m := range mismatches {
			warnf(cmd.ErrOrStderr(), "%s", m)
		}
		return fmt.Errorf("%s: surface differs from wazero in %d place(s)", path, len(mismatches))
	}
	statusf(cmd.ErrOrStderr(), "%s verified with wazero", path)
	return nil
}

func printSurface(w io.Writer, path string, data []byte, s *wasm.Surface) {
	fmt.Fprintf(w, "%s %s (%d bytes, hash %s)\n\n", render(titleStyle, "wasm"), filepath.Base(path), len(data), placement.Hash(data))

	fmt.Fprintf(w, "imports: %d from %d module(s)\n", s.ImportCount(), len(s.Imports))
	for _, g := range s.Imports {
		fmt.Fprintf(w, "  %s\n", render(moduleStyle, g.Module))
		for _, n := range g.Names {
			fmt.Fprintf(w, "    %s\n", render(nameStyle, n))
		}
	}

	fmt.Fprintf(w, "\nexports: %d\n", len(s.Exports))
	for _, e := range s.Exports {
		fmt.Fprintf(w, "  %s\n", render(nameStyle, e))
	}
}

// verifySurface compiles data with wazero and reports every function or
// memory import and export wazero sees that the surface lacks.
func verifySurface(ctx context.Context, data []byte, s *wasm.Surface) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	imported := make(map[string]bool)
	for _, g := range s.Imports {
		for _, n := range g.Names {
			imported[g.Module+"\x00"+n] = true
		}
	}

	var mismatches []string
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if !imported[module+"\x00"+name] {
			mismatches = append(mismatches, fmt.Sprintf("missing function import %s.%s", module, name))
		}
	}
	for _, def := range compiled.ImportedMemories() {
		module, name, _ := def.Import()
		if !imported[module+"\x00"+name] {
			mismatches = append(mismatches, fmt.Sprintf("missing memory import %s.%s", module, name))
		}
	}
	for name := range compiled.ExportedFunctions() {
		if !s.HasExport(name) {
			mismatches = append(mismatches, "missing function export "+name)
		}
	}
	for name := range compiled.ExportedMemories() {
		if !s.HasExport(name) {
			mismatches = append(mismatches, "missing memory export "+name)
		}
	}
	sort.Strings(mismatches)
	return mismatches, nil
}
