// Package esbuild adapts the wasm reference plugin to esbuild's Go plugin API.
package esbuild

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/plugin"
	"github.com/wippyai/wasm-loader/target"
)

// Name is the plugin name reported in esbuild diagnostics.
const Name = "wasm-loader"

// LoaderID is the import specifier generated modules use for the loader.
const LoaderID = "wasm-loader:runtime"

const (
	wasmNamespace   = "wasm"
	loaderNamespace = "wasm-loader"
	wasmFilter      = `\.wasm(\?.*)?$`
)

// resolveGuard marks resolutions issued by the plugin itself so its own
// OnResolve callback steps aside.
type resolveGuard struct{}

// Plugin returns an esbuild plugin handling wasm references with opts.
// opts.LoaderID is replaced by LoaderID.
func Plugin(opts plugin.Options) api.Plugin {
	opts.LoaderID = LoaderID
	return api.Plugin{
		Name: Name,
		Setup: func(build api.PluginBuild) {
			setup(build, opts)
		},
	}
}

func setup(build api.PluginBuild, opts plugin.Options) {
	ctx := context.Background()
	h := &host{build: build}

	p, err := plugin.New(opts, h)
	if err != nil {
		build.OnStart(func() (api.OnStartResult, error) {
			return api.OnStartResult{Errors: messages(err)}, nil
		})
		return
	}

	build.OnStart(func() (api.OnStartResult, error) {
		h.reset()
		p.BuildStart(ctx)
		return api.OnStartResult{}, nil
	})

	build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(LoaderID) + "$"},
		func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			return api.OnResolveResult{Path: LoaderID, Namespace: loaderNamespace}, nil
		})

	build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: loaderNamespace},
		func(args api.OnLoadArgs) (api.OnLoadResult, error) {
			src, err := p.Load(ctx, LoaderID)
			if err != nil {
				return api.OnLoadResult{Errors: messages(err)}, nil
			}
			return api.OnLoadResult{Contents: &src, Loader: api.LoaderJS}, nil
		})

	build.OnResolve(api.OnResolveOptions{Filter: wasmFilter},
		func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			if _, ok := args.PluginData.(resolveGuard); ok {
				return api.OnResolveResult{}, nil
			}
			id, ok, err := p.Resolve(ctx, args.Path, args.Importer)
			if err != nil {
				return api.OnResolveResult{Errors: messages(err)}, nil
			}
			if !ok {
				file, query := plugin.SplitID(args.Path)
				if query != "" {
					// filtered out
					return api.OnResolveResult{}, nil
				}
				// Bare references carry no modifiers.
				if id, err = h.resolve(file, args.Importer, args.ResolveDir); err != nil {
					return api.OnResolveResult{Errors: messages(errors.Resolve(args.Path, err))}, nil
				}
				if !p.Match(id) {
					return api.OnResolveResult{}, nil
				}
			}

			file, query := plugin.SplitID(id)
			res := api.OnResolveResult{Path: file, Namespace: wasmNamespace, PluginData: id}
			if query != "" {
				res.Suffix = "?" + query
			}
			return res, nil
		})

	build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: wasmNamespace},
		func(args api.OnLoadArgs) (api.OnLoadResult, error) {
			id, _ := args.PluginData.(string)
			if id == "" {
				id = args.Path + args.Suffix
			}
			src, err := p.Load(ctx, id)
			if err != nil {
				return api.OnLoadResult{Errors: messages(err)}, nil
			}
			return api.OnLoadResult{
				Contents:   &src,
				ResolveDir: filepath.Dir(args.Path),
				Loader:     api.LoaderJS,
				WatchFiles: []string{args.Path},
			}, nil
		})

	build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
		if len(result.Errors) > 0 {
			return api.OnEndResult{}, nil
		}
		if _, err := p.GenerateBundle(ctx); err != nil {
			return api.OnEndResult{Errors: messages(err)}, nil
		}
		files, err := h.flush()
		if err != nil {
			return api.OnEndResult{Errors: messages(err)}, nil
		}
		result.OutputFiles = append(result.OutputFiles, files...)
		return api.OnEndResult{}, nil
	})
}

// host implements plugin.Host on top of an esbuild build.
type host struct {
	build api.PluginBuild

	mu      sync.Mutex
	pending []api.OutputFile
}

func (h *host) reset() {
	h.mu.Lock()
	h.pending = nil
	h.mu.Unlock()
}

func (h *host) ResolveReference(_ context.Context, path, importer string) (string, error) {
	return h.resolve(path, importer, "")
}

// resolve runs esbuild's own resolver so aliases and package exports apply.
func (h *host) resolve(path, importer, resolveDir string) (string, error) {
	if resolveDir == "" {
		resolveDir = h.workingDir()
		if importer != "" {
			resolveDir = filepath.Dir(importer)
		}
	}
	res := h.build.Resolve(path, api.ResolveOptions{
		PluginName: Name,
		Importer:   importer,
		ResolveDir: resolveDir,
		Kind:       api.ResolveJSImportStatement,
		PluginData: resolveGuard{},
	})
	if len(res.Errors) > 0 {
		return "", stderrors.New(res.Errors[0].Text)
	}
	if res.External {
		return "", fmt.Errorf("%s is marked external", path)
	}
	return res.Path, nil
}

func (h *host) ReadBytes(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Watch is a no-op; OnLoad reports the asset through WatchFiles.
func (h *host) Watch(string) {}

func (h *host) EmitArtifact(_ context.Context, fileName string, data []byte) error {
	out := h.outDir()
	if out == "" {
		return errors.Config("external wasm artifacts require the outdir option")
	}
	h.mu.Lock()
	h.pending = append(h.pending, api.OutputFile{
		Path:     filepath.Join(out, filepath.FromSlash(fileName)),
		Contents: data,
	})
	h.mu.Unlock()
	return nil
}

// flush writes pending artifacts when the build writes to disk and returns
// them for the build result.
func (h *host) flush() ([]api.OutputFile, error) {
	h.mu.Lock()
	files := h.pending
	h.pending = nil
	h.mu.Unlock()

	if h.build.InitialOptions.Write {
		for _, f := range files {
			if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
				return nil, errors.Emit(f.Path, err)
			}
			if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
				return nil, errors.Emit(f.Path, err)
			}
			plugin.Logger().Debug("wrote wasm artifact", zap.String("path", f.Path))
		}
	}
	return files, nil
}

func (h *host) BuildPlatform() target.Platform {
	switch h.build.InitialOptions.Platform {
	case api.PlatformBrowser:
		return target.PlatformBrowser
	case api.PlatformNode:
		return target.PlatformNode
	case api.PlatformNeutral:
		return target.PlatformNeutral
	default:
		return target.PlatformUnknown
	}
}

func (h *host) workingDir() string {
	if dir := h.build.InitialOptions.AbsWorkingDir; dir != "" {
		return dir
	}
	dir, _ := os.Getwd()
	return dir
}

func (h *host) outDir() string {
	opts := h.build.InitialOptions
	out := opts.Outdir
	if out == "" && opts.Outfile != "" {
		out = filepath.Dir(opts.Outfile)
	}
	if out != "" && !filepath.IsAbs(out) {
		out = filepath.Join(h.workingDir(), out)
	}
	return out
}

// messages converts err into esbuild diagnostics, one per joined error.
func messages(err error) []api.Message {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]api.Message, 0, len(errs))
	for _, e := range errs {
		msg := api.Message{PluginName: Name, Text: e.Error(), Detail: e}
		var le *errors.Error
		if stderrors.As(e, &le) {
			msg.ID = string(le.Phase) + "/" + string(le.Kind)
		}
		out = append(out, msg)
	}
	return out
}
