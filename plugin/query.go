package plugin

import (
	"net/url"
	"strings"

	"github.com/wippyai/wasm-loader/errors"
	"github.com/wippyai/wasm-loader/placement"
)

// Modifier query keys.
const (
	ModSync = "sync"
	ModURL  = "url"
	ModInit = "init"
)

// SplitID separates a module id into its file path and raw query.
func SplitID(id string) (file, query string) {
	file, query, _ = strings.Cut(id, "?")
	return file, query
}

// ParseRequest reads the modifiers of a reference query. Presence of a key
// sets the modifier regardless of its value; unknown keys are ignored.
func ParseRequest(asset, query string) (placement.Request, error) {
	if query == "" {
		return placement.Request{}, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return placement.Request{}, errors.New(errors.PhaseResolve, errors.KindUsage).
			Asset(asset).
			Detail("malformed query %q", query).
			Cause(err).
			Build()
	}
	_, sync := values[ModSync]
	_, isURL := values[ModURL]
	_, init := values[ModInit]
	return placement.Request{Sync: sync, URL: isURL, Init: init}, nil
}
