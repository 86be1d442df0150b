// Package config loads wasm-loader options from a project file.
//
// A project file is named wasmloader.yaml, wasmloader.yml, wasmloader.toml or
// wasmloader.json and holds the plugin options at the top level:
//
//	include: ["src/**/*.wasm"]
//	maxInlineSize: 0
//	fileName: "wasm/[name]-[hash][extname]"
//	publicPath: /assets/
//	targetEnv: browser
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/plugin"
	"github.com/wippyai/wasm-loader/target"
)

// Names lists the project file names Find looks for, in priority order.
var Names = []string{"wasmloader.yaml", "wasmloader.yml", "wasmloader.toml", "wasmloader.json"}

// File is a decoded project file. Pointer fields distinguish unset values
// from explicit zeros.
type File struct {
	Include       []string `yaml:"include" toml:"include" json:"include"`
	Exclude       []string `yaml:"exclude" toml:"exclude" json:"exclude"`
	MaxInlineSize *int64   `yaml:"maxInlineSize" toml:"maxInlineSize" json:"maxInlineSize"`
	FileName      *string  `yaml:"fileName" toml:"fileName" json:"fileName"`
	PublicPath    *string  `yaml:"publicPath" toml:"publicPath" json:"publicPath"`
	TargetEnv     *string  `yaml:"targetEnv" toml:"targetEnv" json:"targetEnv"`
	Concurrency   *int     `yaml:"concurrency" toml:"concurrency" json:"concurrency"`

	// Path is the file the values were read from, empty for defaults.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// Load decodes the project file at path, choosing the format by extension.
// Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Value(path).
			Detail("read config").
			Cause(err).
			Build()
	}

	f := &File{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, parseError(path, "YAML", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, parseError(path, "TOML", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, parseError(path, "TOML", fmt.Errorf("unknown key %q", undecoded[0].String()))
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(f); err != nil {
			return nil, parseError(path, "JSON", err)
		}
	default:
		return nil, errors.Config("%s: unsupported config format %q", path, ext)
	}

	f.Path = path
	return f, nil
}

func parseError(path, format string, err error) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidData).
		Value(path).
		Detail("%s: failed to parse %s", path, format).
		Cause(err).
		Build()
}

// Find looks for a project file in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range Names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !stderrors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the file at path, or the nearest project file above
// startDir when path is empty. A missing project file yields an empty File.
func Discover(path, startDir string) (*File, error) {
	if path != "" {
		return Load(path)
	}
	found, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &File{}, nil
	}
	return Load(found)
}

// Options converts the file into plugin options, applying defaults for unset
// values. Relative globs are anchored at the directory holding the file.
func (f *File) Options() (plugin.Options, error) {
	opts := plugin.DefaultOptions()
	opts.Include = f.Include
	opts.Exclude = f.Exclude
	if f.Path != "" {
		root, err := filepath.Abs(filepath.Dir(f.Path))
		if err != nil {
			return plugin.Options{}, err
		}
		opts.Root = root
	}
	if f.MaxInlineSize != nil {
		if *f.MaxInlineSize < 0 {
			return plugin.Options{}, errors.Config("maxInlineSize must not be negative, got %d", *f.MaxInlineSize)
		}
		opts.MaxInlineSize = *f.MaxInlineSize
	}
	if f.FileName != nil {
		opts.FileName = *f.FileName
	}
	if f.PublicPath != nil {
		opts.PublicPath = *f.PublicPath
	}
	if f.TargetEnv != nil {
		env, err := target.Parse(*f.TargetEnv)
		if err != nil {
			return plugin.Options{}, errors.Config("targetEnv: %v", err)
		}
		opts.TargetEnv = env
	}
	if f.Concurrency != nil {
		opts.Concurrency = *f.Concurrency
	}
	return opts, nil
}
