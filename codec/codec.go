// Package codec centralizes snapshot payload encoding.
//
// Every persisted artifact records the name of the codec that produced it,
// so codecs registered here must keep their names and wire formats stable.
package codec

import "fmt"

// Codec serializes values to bytes and back. Implementations hold no
// state and are safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used when none is selected explicitly.
//
// It only affects newly written artifacts: persisted files record their
// codec name in the header and are decoded by resolving that name, so
// changing the default never orphans existing files.
var Default Codec = GoJSON{}

// ByName resolves a built-in codec by its stable name.
//
// Self-describing persistence formats (snapshots) store the codec name in
// their header and resolve it here when reading.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "json-pretty":
		return JSONPretty{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal marshals v with c, or Default when c is nil, and panics on
// failure. Intended for tests and benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s: marshal: %w", c.Name(), err))
	}
	return b
}
