// Package placement decides whether a wasm payload is inlined into generated
// source or emitted as a standalone artifact.
package placement

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/target"
)

// Kind is where the payload lives at runtime.
type Kind uint8

const (
	Inline Kind = iota
	External
)

func (k Kind) String() string {
	if k == External {
		return "external"
	}
	return "inline"
}

// Mode is how the payload is compiled at runtime.
type Mode uint8

const (
	Async Mode = iota
	Sync
)

func (m Mode) String() string {
	if m == Sync {
		return "sync"
	}
	return "async"
}

// Defaults used when options leave a field unset.
const (
	DefaultMaxInlineSize = 14 * 1024
	DefaultFileName      = "[hash][extname]"
)

// Placeholders recognized in file name templates.
const (
	PlaceholderHash    = "[hash]"
	PlaceholderExtname = "[extname]"
	PlaceholderName    = "[name]"
)

// HashLength is the number of hex characters of the SHA-1 digest used for [hash].
const HashLength = 16

// Request carries the modifiers of one asset reference.
type Request struct {
	Sync bool // ?sync: compile synchronously, forces inline
	URL  bool // ?url: export the external public path only
	Init bool // ?init: export the initializer, skip import/export linkage
}

// Modifiers returns the names of the set modifiers in query order.
func (r Request) Modifiers() []string {
	var mods []string
	if r.Init {
		mods = append(mods, "init")
	}
	if r.Sync {
		mods = append(mods, "sync")
	}
	if r.URL {
		mods = append(mods, "url")
	}
	return mods
}

// Validate rejects modifier combinations that can never be satisfied.
func (r Request) Validate(asset string) error {
	if r.Sync && r.URL {
		return errors.Usage(asset, "`sync` and `url` parameters cannot be used together", "sync", "url")
	}
	return nil
}

// Mode returns the compilation mode the request asks for.
func (r Request) Mode() Mode {
	if r.Sync {
		return Sync
	}
	return Async
}

// Decision is the placement of one payload. Kind and Mode are independent;
// Validate rejects the illegal Sync+External pairing.
type Decision struct {
	Kind Kind
	Mode Mode

	// Encoded is the base64 payload for Inline decisions.
	Encoded string

	// FileName and PublicPath are set for External decisions.
	FileName   string
	PublicPath string
}

// Validate checks that the decision can be rendered.
func (d Decision) Validate(asset string) error {
	if d.Kind == External {
		if d.Mode == Sync {
			return errors.SyncExternalConflict(asset)
		}
		if d.PublicPath == "" && d.FileName == "" {
			return errors.Internal(errors.PhasePlace, asset, "external decision without a file name")
		}
	}
	return nil
}

// Artifact is an external payload waiting to be emitted.
type Artifact struct {
	Source     string
	FileName   string
	PublicPath string
	Bytes      []byte
}

// Policy holds the build-wide placement options.
type Policy struct {
	Env           target.Env
	MaxInlineSize int64 // 0 means always external
	FileName      string
	PublicPath    string
}

// Input is one placement query.
type Input struct {
	Path    string
	Bytes   []byte
	Request Request

	// Prior is the external artifact already recorded for Path in this build.
	Prior *Artifact
}

// Decide applies the placement policy. For External decisions the returned
// artifact must be recorded by the caller.
func (p Policy) Decide(in Input) (Decision, *Artifact, error) {
	if err := in.Request.Validate(in.Path); err != nil {
		return Decision{}, nil, err
	}

	if in.Request.URL {
		if in.Prior != nil {
			return external(in.Prior), in.Prior, nil
		}
		if p.inline(in.Bytes) {
			return Decision{}, nil, errors.Usage(in.Path, "`url` parameter can only be used with non-inlined files", "url")
		}
		return p.externalize(in)
	}

	if in.Request.Sync || p.inline(in.Bytes) {
		return Decision{
			Kind:    Inline,
			Mode:    in.Request.Mode(),
			Encoded: Encode(in.Bytes),
		}, nil, nil
	}
	return p.externalize(in)
}

// inline evaluates the size and environment rules shared by every request.
func (p Policy) inline(data []byte) bool {
	if p.Env.Inline() {
		return true
	}
	if p.MaxInlineSize == 0 {
		return false
	}
	return int64(len(data)) <= p.MaxInlineSize
}

func (p Policy) externalize(in Input) (Decision, *Artifact, error) {
	tmpl := p.FileName
	if tmpl == "" {
		tmpl = DefaultFileName
	}
	name, err := FileName(tmpl, in.Path, in.Bytes)
	if err != nil {
		return Decision{}, nil, err
	}
	a := &Artifact{
		Source:     in.Path,
		FileName:   name,
		PublicPath: p.PublicPath + name,
		Bytes:      in.Bytes,
	}
	return external(a), a, nil
}

func external(a *Artifact) Decision {
	return Decision{
		Kind:       External,
		Mode:       Async,
		FileName:   a.FileName,
		PublicPath: a.PublicPath,
	}
}

// Hash returns the content hash used for the [hash] placeholder.
func Hash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

// Encode returns the inline text encoding of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// FileName resolves a file name template for the asset at source. The result
// is a clean slash-separated path relative to the output directory.
func FileName(template, source string, data []byte) (string, error) {
	ext := filepath.Ext(source)
	base := strings.TrimSuffix(filepath.Base(source), ext)

	name := strings.ReplaceAll(template, PlaceholderHash, Hash(data))
	name = strings.ReplaceAll(name, PlaceholderExtname, ext)
	name = strings.ReplaceAll(name, PlaceholderName, base)

	if err := CheckFileName(name); err != nil {
		return "", errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Asset(source).
			Detail("file name template %q: %v", template, err).
			Build()
	}
	return path.Clean(filepath.ToSlash(name)), nil
}

// CheckFileName rejects output names that are empty, absolute or escape the
// output directory.
func CheckFileName(name string) error {
	clean := path.Clean(filepath.ToSlash(name))
	switch {
	case strings.TrimSpace(name) == "" || clean == ".":
		return errors.Config("resolves to an empty file name")
	case path.IsAbs(clean) || filepath.IsAbs(name):
		return errors.Config("resolves to absolute path %q", clean)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return errors.Config("escapes the output directory: %q", clean)
	}
	return nil
}
