package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-loader/plugin"
	"github.com/wippyai/wasm-loader/target"
)

// loaderFile is the file name gen writes the loader module to.
const loaderFile = "wasm-loader.js"

var genCmd = &cobra.Command{
	Use:   "gen [flags] ref.wasm[?modifiers]...",
	Short: "Generate reference modules and artifacts for wasm files",
	Long: `Gen runs the reference pipeline over the given files. Each argument is a
path with optional modifiers, e.g. add.wasm?init&sync. Without --out-dir the
generated modules are printed to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGen,
}

func init() {
	genCmd.Flags().String("out-dir", "", "directory for generated modules, the loader and artifacts")
	genCmd.Flags().String("platform", "", "build platform (browser|node|neutral)")
	genCmd.Flags().String("manifest", "", "write a JSON manifest of outputs to this file")
	addOptionFlags(genCmd)
}

// genManifest lists the outputs of one gen run.
type genManifest struct {
	Env       target.Env       `json:"env"`
	Modules   []genModule      `json:"modules"`
	Artifacts []plugin.Emitted `json:"artifacts"`
}

type genModule struct {
	Ref  string `json:"ref"`
	File string `json:"file,omitempty"`
}

func runGen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	outDir, _ := cmd.Flags().GetString("out-dir")
	platform, _ := cmd.Flags().GetString("platform")
	manifestPath, _ := cmd.Flags().GetString("manifest")

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if outDir != "" {
		opts.LoaderID = "./" + loaderFile
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	host := plugin.NewFSHost(cwd, outDir, target.Platform(platform))
	host.DryRun = outDir == ""
	p, err := plugin.New(opts, host)
	if err != nil {
		return err
	}
	p.BuildStart(ctx)

	ids := make([]string, len(args))
	for i, ref := range args {
		id, ok, err := p.Resolve(ctx, ref, "")
		if err != nil {
			return err
		}
		if !ok {
			file, _ := plugin.SplitID(ref)
			if id, err = host.ResolveReference(ctx, file, ""); err != nil {
				return fmt.Errorf("resolve %s: %w", ref, err)
			}
		}
		ids[i] = id
	}

	results, loadErr := p.LoadAll(ctx, ids)

	manifest := genManifest{Env: p.Env()}
	out := cmd.OutOrStdout()
	if outDir == "" {
		for i, r := range results {
			if r.Err != nil {
				continue
			}
			fmt.Fprintf(out, "// %s\n%s\n", args[i], r.Code)
			manifest.Modules = append(manifest.Modules, genModule{Ref: args[i]})
		}
	} else {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		loaderSrc, err := p.Load(ctx, p.LoaderID())
		if err != nil {
			return err
		}

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		g.Go(func() error {
			return os.WriteFile(filepath.Join(outDir, loaderFile), []byte(loaderSrc), 0o644)
		})
		names := moduleFileNames(ids)
		for i, r := range results {
			if r.Err != nil {
				continue
			}
			name := names[i]
			manifest.Modules = append(manifest.Modules, genModule{Ref: args[i], File: name})
			g.Go(func() error {
				return os.WriteFile(filepath.Join(outDir, name), []byte(r.Code), 0o644)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Err != nil {
			warnf(cmd.ErrOrStderr(), "%v", r.Err)
		}
	}

	// Artifacts of the references that loaded are emitted even when others
	// failed, so every written module finds its binary.
	emitted, err := p.GenerateBundle(ctx)
	if err != nil {
		return err
	}
	manifest.Artifacts = emitted
	for _, e := range emitted {
		if host.DryRun {
			warnf(cmd.ErrOrStderr(), "%s not written, pass --out-dir", e.FileName)
			continue
		}
		statusf(cmd.ErrOrStderr(), "%s (%d bytes) from %s", e.FileName, e.Size, strings.Join(e.Sources, ", "))
	}

	if manifestPath != "" {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(manifestPath, append(data, '\n'), 0o644); err != nil {
			return err
		}
	}
	if loadErr != nil {
		return fmt.Errorf("%d of %d reference(s) failed", countErrors(results), len(results))
	}
	return nil
}

// moduleFileNames derives an output file per id: the asset base name, the
// sorted modifiers, and a numeric suffix when two ids collide.
func moduleFileNames(ids []string) []string {
	names := make([]string, len(ids))
	seen := make(map[string]int)
	for i, id := range ids {
		file, query := plugin.SplitID(id)
		req, _ := plugin.ParseRequest(file, query)
		name := filepath.Base(file)
		for _, mod := range req.Modifiers() {
			name += "." + mod
		}
		if n := seen[name]; n > 0 {
			seen[name]++
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		names[i] = name + ".js"
	}
	return names
}

func countErrors(results []plugin.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
