package codec

import (
	"encoding/json"
)

// JSON encodes with the standard library. It is the most portable choice:
// no dependency beyond the runtime, stable field ordering, and any JSON
// tool can read the payload.
//
// Snapshot payloads are flat structs of counters and per-type groups, well
// inside what encoding/json handles; codecs only need to cover that shape.
type JSON struct{}

// Marshal encodes v.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json".
func (JSON) Name() string { return "json" }

// JSONPretty is JSON with two-space indentation. Snapshots are diagnostic
// artifacts people open in editors and diff against each other; the larger
// payload reads back with the plain JSON decoder, so files stay compatible.
type JSONPretty struct{}

// Marshal encodes v with indentation.
func (JSONPretty) Marshal(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

// Unmarshal decodes data into v.
func (JSONPretty) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json-pretty".
func (JSONPretty) Name() string { return "json-pretty" }
