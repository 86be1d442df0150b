// Package wasmloader turns references to WebAssembly binaries into ES
// modules that load, compile and instantiate them.
//
// A reference is a path to a .wasm file with optional query modifiers:
//
//	import { add } from "./math.wasm";            // instance exports
//	import init from "./math.wasm?init";          // initializer only
//	import url from "./math.wasm?url";            // public path of the artifact
//	import { add } from "./math.wasm?sync";       // synchronous, always inline
//
// Small binaries are inlined as base64, the rest are emitted as hashed
// artifacts. Generated modules import a shared loader module that performs
// the environment-specific fetch, read or decode.
//
// # Packages
//
//	wasmloader/
//	├── wasm/         Binary inspection: import groups and export names
//	├── target/       Runtime environment resolution
//	├── placement/    Inline or external placement and artifact naming
//	├── loader/       Loader module templates per environment
//	├── codegen/      Per-reference ES module generation
//	├── plugin/       Orchestrator against an abstract bundler host
//	├── esbuild/      esbuild adapter for the orchestrator
//	├── config/       Project file discovery and decoding
//	├── errors/       Structured errors by phase and kind
//	└── cmd/wasmloader/  CLI: inspect, loader, gen and build
//
// # Quick Start
//
// Bundle with esbuild:
//
//	result := api.Build(api.BuildOptions{
//	    EntryPoints: []string{"src/main.js"},
//	    Bundle:      true,
//	    Outdir:      "dist",
//	    Write:       true,
//	    Format:      api.FormatESModule,
//	    Plugins:     []api.Plugin{esbuild.Plugin(plugin.DefaultOptions())},
//	})
//
// Or drive the orchestrator directly against the file system:
//
//	host := plugin.NewFSHost(root, "dist", target.PlatformBrowser)
//	p, err := plugin.New(plugin.DefaultOptions(), host)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	code, err := p.Load(ctx, "/abs/path/math.wasm?init")
//	...
//	emitted, err := p.GenerateBundle(ctx)
package wasmloader
