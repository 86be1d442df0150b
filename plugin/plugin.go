// Package plugin coordinates wasm asset references for a bundler host.
//
// A Plugin owns the state of one build at a time. The host calls BuildStart,
// then Resolve and Load for every module id it encounters, and finally
// GenerateBundle to emit the external artifacts recorded along the way.
// Resolve and Load are safe for concurrent use within a build.
package plugin

import (
	"bytes"
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-loader/codegen"
	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/loader"
	"github.com/wippyai/wasm-loader/placement"
	"github.com/wippyai/wasm-loader/target"
	"github.com/wippyai/wasm-loader/wasm"
)

// DefaultConcurrency bounds LoadAll when Options.Concurrency is unset.
const DefaultConcurrency = 8

// Options configures a Plugin.
type Options struct {
	// Include and Exclude filter asset paths. Entries are doublestar globs or
	// /regexp/ strings.
	Include []string
	Exclude []string
	// Root anchors relative globs.
	Root string

	// MaxInlineSize is the largest payload inlined, in bytes. 0 externalizes
	// every payload.
	MaxInlineSize int64
	// FileName is the output name template, DefaultFileName when empty.
	FileName string
	// PublicPath prefixes the runtime path of external artifacts.
	PublicPath string
	// TargetEnv overrides the environment derived from the build platform.
	TargetEnv target.Env

	// LoaderID is the module id of the loader, loader.ID when empty.
	LoaderID string
	// Concurrency bounds LoadAll.
	Concurrency int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxInlineSize: placement.DefaultMaxInlineSize,
		FileName:      placement.DefaultFileName,
		LoaderID:      loader.ID,
		Concurrency:   DefaultConcurrency,
	}
}

// Plugin handles wasm references for a Host.
type Plugin struct {
	opts   Options
	host   Host
	filter *Filter

	mu    sync.Mutex
	state *buildState
}

// buildState is the per-build state replaced by BuildStart.
type buildState struct {
	env     target.Env
	policy  placement.Policy
	pending *placement.Table

	mu       sync.Mutex
	surfaces map[string]*wasm.Surface
}

// Result is the outcome of loading one module id.
type Result struct {
	ID   string
	Code string
	Err  error
}

// Emitted describes an artifact written by GenerateBundle.
type Emitted struct {
	FileName   string   `json:"fileName"`
	PublicPath string   `json:"publicPath"`
	Sources    []string `json:"sources"`
	Size       int      `json:"size"`
	Hash       string   `json:"hash"`
}

// New validates opts and creates a Plugin bound to host.
func New(opts Options, host Host) (*Plugin, error) {
	if host == nil {
		return nil, errors.Config("plugin requires a host")
	}
	if opts.MaxInlineSize < 0 {
		return nil, errors.Config("maxInlineSize must not be negative, got %d", opts.MaxInlineSize)
	}
	if opts.FileName == "" {
		opts.FileName = placement.DefaultFileName
	}
	if !strings.Contains(opts.FileName, placement.PlaceholderHash) {
		Logger().Warn("file name template has no [hash], distinct payloads may collide",
			zap.String("fileName", opts.FileName))
	}
	if opts.LoaderID == "" {
		opts.LoaderID = loader.ID
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	env, err := target.Parse(string(opts.TargetEnv))
	if err != nil {
		return nil, errors.Config("%v", err)
	}
	opts.TargetEnv = env

	filter, err := NewFilter(opts.Root, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	p := &Plugin{opts: opts, host: host, filter: filter}
	p.BuildStart(context.Background())
	return p, nil
}

// Options returns the effective options.
func (p *Plugin) Options() Options {
	return p.opts
}

// LoaderID returns the module id the loader is served under.
func (p *Plugin) LoaderID() string {
	return p.opts.LoaderID
}

// BuildStart resets the build state and resolves the target environment from
// the host platform.
func (p *Plugin) BuildStart(_ context.Context) {
	env := target.Resolve(p.opts.TargetEnv, p.host.BuildPlatform())
	st := &buildState{
		env: env,
		policy: placement.Policy{
			Env:           env,
			MaxInlineSize: p.opts.MaxInlineSize,
			FileName:      p.opts.FileName,
			PublicPath:    p.opts.PublicPath,
		},
		pending:  placement.NewTable(),
		surfaces: make(map[string]*wasm.Surface),
	}

	p.mu.Lock()
	p.state = st
	p.mu.Unlock()

	Logger().Debug("build started", zap.String("env", string(env)))
}

// Env returns the target environment of the current build.
func (p *Plugin) Env() target.Env {
	return p.current().env
}

func (p *Plugin) current() *buildState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Match reports whether the plugin handles id.
func (p *Plugin) Match(id string) bool {
	if id == p.opts.LoaderID {
		return true
	}
	file, _ := SplitID(id)
	if !strings.HasSuffix(file, ".wasm") {
		return false
	}
	return p.filter.Match(file)
}

// Resolve maps a reference to the id the plugin loads. Ids without a query
// are left to the host and reported as not handled, as are resolved paths
// rejected by the filter.
func (p *Plugin) Resolve(ctx context.Context, id, importer string) (string, bool, error) {
	if id == p.opts.LoaderID {
		return id, true, nil
	}
	file, query := SplitID(id)
	if query == "" || !strings.HasSuffix(file, ".wasm") {
		return "", false, nil
	}
	resolved, err := p.host.ResolveReference(ctx, file, importer)
	if err != nil {
		return "", false, errors.Resolve(id, err)
	}
	if !p.filter.Match(resolved) {
		return "", false, nil
	}
	return resolved + "?" + query, true, nil
}

// Asset is one binary read during a build.
type Asset struct {
	Path  string
	Bytes []byte
}

// Size returns the length of the binary in bytes.
func (a Asset) Size() int64 { return int64(len(a.Bytes)) }

// Load returns the module source for id.
func (p *Plugin) Load(ctx context.Context, id string) (string, error) {
	st := p.current()
	if id == p.opts.LoaderID {
		return loader.Render(st.env)
	}

	file, query := SplitID(id)
	req, err := ParseRequest(file, query)
	if err != nil {
		return "", err
	}
	if err := req.Validate(file); err != nil {
		return "", err
	}

	data, err := p.host.ReadBytes(ctx, file)
	if err != nil {
		return "", errors.Load(file, err)
	}
	p.host.Watch(file)
	asset := Asset{Path: file, Bytes: data}

	var surface *wasm.Surface
	if !req.Init && !req.URL {
		if surface, err = st.inspect(asset); err != nil {
			return "", err
		}
	}

	prior, _ := st.pending.Get(asset.Path)
	decision, artifact, err := st.policy.Decide(placement.Input{
		Path:    asset.Path,
		Bytes:   asset.Bytes,
		Request: req,
		Prior:   prior,
	})
	if err != nil {
		return "", err
	}
	if artifact != nil {
		st.pending.Put(artifact)
	}

	Logger().Debug("placed wasm asset",
		zap.String("path", asset.Path),
		zap.Int64("size", asset.Size()),
		zap.Stringer("kind", decision.Kind),
		zap.Stringer("mode", decision.Mode),
		zap.String("fileName", decision.FileName),
		zap.Strings("modifiers", req.Modifiers()))

	return codegen.Emit(codegen.Input{
		LoaderID: p.opts.LoaderID,
		Asset:    asset.Path,
		Request:  req,
		Decision: decision,
		Surface:  surface,
	})
}

// inspect parses the asset surface once per path and content.
func (st *buildState) inspect(a Asset) (*wasm.Surface, error) {
	key := a.Path + "#" + placement.Hash(a.Bytes)

	st.mu.Lock()
	s, ok := st.surfaces[key]
	st.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := wasm.Inspect(a.Bytes)
	if err != nil {
		return nil, errors.Format(a.Path, err)
	}

	st.mu.Lock()
	st.surfaces[key] = s
	st.mu.Unlock()
	return s, nil
}

// LoadAll loads ids concurrently. Every id gets a Result; a failing id does
// not stop the others. The returned error joins all per-id failures.
func (p *Plugin) LoadAll(ctx context.Context, ids []string) ([]Result, error) {
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			code, err := p.Load(gctx, id)
			results[i] = Result{ID: id, Code: code, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, stderrors.Join(errs...)
}

// GenerateBundle emits every pending artifact through the host and resets
// the pending table. Identical payloads sharing an output name are emitted
// once; distinct payloads under one name fail the bundle before anything is
// written.
func (p *Plugin) GenerateBundle(ctx context.Context) ([]Emitted, error) {
	st := p.current()
	pending := st.pending.Drain()

	type group struct {
		artifact *placement.Artifact
		sources  []string
	}
	groups := make(map[string]*group)
	var conflicts []error
	for _, a := range pending {
		g, ok := groups[a.FileName]
		if !ok {
			groups[a.FileName] = &group{artifact: a, sources: []string{a.Source}}
			continue
		}
		if !bytes.Equal(g.artifact.Bytes, a.Bytes) {
			conflicts = append(conflicts, errors.Conflict(a.FileName, g.artifact.Source, a.Source))
			continue
		}
		g.sources = append(g.sources, a.Source)
	}
	if len(conflicts) > 0 {
		return nil, stderrors.Join(conflicts...)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	emitted := make([]Emitted, 0, len(names))
	for _, name := range names {
		g := groups[name]
		if err := p.host.EmitArtifact(ctx, name, g.artifact.Bytes); err != nil {
			return emitted, errors.Emit(name, err)
		}
		Logger().Info("emitted wasm artifact",
			zap.String("fileName", name),
			zap.Int("size", len(g.artifact.Bytes)),
			zap.Strings("sources", g.sources))
		emitted = append(emitted, Emitted{
			FileName:   name,
			PublicPath: g.artifact.PublicPath,
			Sources:    g.sources,
			Size:       len(g.artifact.Bytes),
			Hash:       placement.Hash(g.artifact.Bytes),
		})
	}
	return emitted, nil
}
