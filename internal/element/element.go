// Package element holds the drawing primitive shared by the collaboration
// server and client, the per-client Version Tracker and the Reconciliation
// Engine that merges local and remote element states.
package element

import (
	"bytes"
	"math/rand/v2"
	"strconv"

	"github.com/goccy/go-json"
)

// Known JSON field names. Everything else lands in Element.Extra.
const (
	fieldID           = "id"
	fieldType         = "type"
	fieldVersion      = "version"
	fieldVersionNonce = "versionNonce"
	fieldIsDeleted    = "isDeleted"
)

// Element 드로잉 요소 (shape, text, image reference ...)
//
// Geometry, style and content are opaque to reconciliation and kept verbatim
// in Extra so a round trip never loses fields the server does not know about.
type Element struct {
	ID           string
	Type         string
	Version      int64
	VersionNonce int64
	IsDeleted    bool
	Extra        map[string]json.RawMessage
}

// UnmarshalJSON decodes permissively: missing or non-numeric version fields become 0.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Element{}
	e.ID = rawString(raw[fieldID])
	e.Type = rawString(raw[fieldType])
	e.Version = rawInt(raw[fieldVersion])
	e.VersionNonce = rawInt(raw[fieldVersionNonce])
	e.IsDeleted = rawBool(raw[fieldIsDeleted])

	for _, k := range []string{fieldID, fieldType, fieldVersion, fieldVersionNonce, fieldIsDeleted} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// MarshalJSON emits known fields followed by the passthrough bag.
func (e Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		out[k] = v
	}
	out[fieldID] = e.ID
	if e.Type != "" {
		out[fieldType] = e.Type
	}
	out[fieldVersion] = e.Version
	out[fieldVersionNonce] = e.VersionNonce
	out[fieldIsDeleted] = e.IsDeleted
	return json.Marshal(out)
}

// Clone returns a deep copy; Extra values are copied so later edits do not alias.
func (e Element) Clone() Element {
	c := e
	if e.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// Bump records a local mutation: version+1 and a fresh nonce.
func (e *Element) Bump() {
	e.Version++
	e.VersionNonce = NewNonce()
}

// Set stores an opaque field in the passthrough bag.
func (e *Element) Set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if e.Extra == nil {
		e.Extra = make(map[string]json.RawMessage)
	}
	e.Extra[key] = b
	return nil
}

// Get decodes an opaque field into dst. Returns false if the field is absent.
func (e Element) Get(key string, dst any) bool {
	v, ok := e.Extra[key]
	if !ok {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}

// NewNonce returns a random non-negative 31-bit nonce.
func NewNonce() int64 {
	return int64(rand.Int32())
}

// FilterVisible drops tombstones, preserving order.
func FilterVisible(elements []Element) []Element {
	out := make([]Element, 0, len(elements))
	for _, el := range elements {
		if !el.IsDeleted {
			out = append(out, el)
		}
	}
	return out
}

// CloneAll deep-copies a sequence.
func CloneAll(elements []Element) []Element {
	out := make([]Element, len(elements))
	for i, el := range elements {
		out[i] = el.Clone()
	}
	return out
}

func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// numeric ids are tolerated
	return string(bytes.Trim(v, `"`))
}

func rawInt(v json.RawMessage) int64 {
	if len(v) == 0 {
		return 0
	}
	if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return int64(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func rawBool(v json.RawMessage) bool {
	var b bool
	if len(v) == 0 || json.Unmarshal(v, &b) != nil {
		return false
	}
	return b
}
