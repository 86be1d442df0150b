package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/wippyai/wasm-loader/placement"
	"github.com/wippyai/wasm-loader/target"
)

// Host is the bundler a Plugin runs inside. Implementations report failures
// as returned errors; adapters translate them into the bundler's own
// diagnostics.
type Host interface {
	// ResolveReference resolves a reference path relative to its importer
	// and returns the absolute asset path.
	ResolveReference(ctx context.Context, path, importer string) (string, error)
	// ReadBytes returns the contents of a resolved asset.
	ReadBytes(ctx context.Context, path string) ([]byte, error)
	// Watch registers the asset as a build input.
	Watch(path string)
	// EmitArtifact writes an output file relative to the output directory.
	EmitArtifact(ctx context.Context, fileName string, data []byte) error
	// BuildPlatform reports the platform the build targets.
	BuildPlatform() target.Platform
}

// FSHost is a Host backed by the local file system.
type FSHost struct {
	// Root resolves references that have no importer.
	Root string
	// OutDir receives emitted artifacts.
	OutDir   string
	Platform target.Platform
	// DryRun validates artifact names without writing them.
	DryRun bool

	mu      sync.Mutex
	watched map[string]struct{}
}

// NewFSHost creates a file system host.
func NewFSHost(root, outDir string, platform target.Platform) *FSHost {
	return &FSHost{Root: root, OutDir: outDir, Platform: platform}
}

func (h *FSHost) ResolveReference(_ context.Context, path, importer string) (string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		base := h.Root
		if importer != "" {
			base = filepath.Dir(importer)
		}
		resolved = filepath.Join(base, path)
	}
	resolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", resolved)
	}
	return resolved, nil
}

func (h *FSHost) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (h *FSHost) Watch(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watched == nil {
		h.watched = make(map[string]struct{})
	}
	h.watched[path] = struct{}{}
}

// Watched returns the registered inputs in sorted order.
func (h *FSHost) Watched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.watched))
	for p := range h.watched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (h *FSHost) EmitArtifact(ctx context.Context, fileName string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := placement.CheckFileName(fileName); err != nil {
		return err
	}
	if h.DryRun {
		return nil
	}
	dst := filepath.Join(h.OutDir, filepath.FromSlash(fileName))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (h *FSHost) BuildPlatform() target.Platform {
	return h.Platform
}
