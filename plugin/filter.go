package plugin

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wippyai/wasm-loader/errors"
)

// pattern matches asset paths either as a doublestar glob or, when written
// as /expr/, as a regular expression.
type pattern struct {
	raw  string
	glob string
	re   *regexp.Regexp
}

func compilePattern(raw string) (pattern, error) {
	if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		re, err := regexp.Compile(raw[1 : len(raw)-1])
		if err != nil {
			return pattern{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(raw).
				Detail("invalid filter expression %q", raw).
				Cause(err).
				Build()
		}
		return pattern{raw: raw, re: re}, nil
	}
	glob := filepath.ToSlash(raw)
	if !doublestar.ValidatePattern(glob) {
		return pattern{}, errors.Config("invalid filter glob %q", raw)
	}
	return pattern{raw: raw, glob: glob}, nil
}

func (p pattern) match(paths ...string) bool {
	for _, path := range paths {
		if p.re != nil {
			if p.re.MatchString(path) {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(p.glob, path); ok {
			return true
		}
	}
	return false
}

// Filter selects the wasm assets a build handles. An empty include list
// admits every path; exclude wins over include.
type Filter struct {
	root    string
	include []pattern
	exclude []pattern
}

// NewFilter compiles include and exclude patterns. Relative globs are also
// tried against paths relative to root when root is set.
func NewFilter(root string, include, exclude []string) (*Filter, error) {
	f := &Filter{root: root}
	for _, raw := range include {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, p)
	}
	for _, raw := range exclude {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, p)
	}
	return f, nil
}

// Match reports whether the asset at path passes the filter.
func (f *Filter) Match(path string) bool {
	candidates := []string{filepath.ToSlash(path)}
	if f.root != "" {
		if rel, err := filepath.Rel(f.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			candidates = append(candidates, filepath.ToSlash(rel))
		}
	}

	for _, p := range f.exclude {
		if p.match(candidates...) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, p := range f.include {
		if p.match(candidates...) {
			return true
		}
	}
	return false
}
