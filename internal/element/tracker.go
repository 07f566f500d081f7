package element

import "sync"

type versionKey struct {
	version int64
	nonce   int64
}

// Tracker 요소별 마지막으로 확인한 (version, versionNonce) 기록
//
// HasChanged registers unseen ids as a side effect, so the first observation
// of an element both reports a change and marks it seen. Seen ids are only
// updated through RecordVersion, which callers invoke once they have actually
// broadcast the element.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]versionKey
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]versionKey)}
}

// RecordVersion unconditionally stores the element's current version pair.
func (t *Tracker) RecordVersion(el Element) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen[el.ID] = versionKey{version: el.Version, nonce: el.VersionNonce}
}

// HasChanged reports whether el differs from the last recorded pair.
func (t *Tracker) HasChanged(el Element) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.seen[el.ID]
	if !ok {
		t.seen[el.ID] = versionKey{version: el.Version, nonce: el.VersionNonce}
		return true
	}
	return prev.version != el.Version || prev.nonce != el.VersionNonce
}

// Changed returns the subset of elements HasChanged reports, in order.
func (t *Tracker) Changed(elements []Element) []Element {
	var out []Element
	for _, el := range elements {
		if t.HasChanged(el) {
			out = append(out, el)
		}
	}
	return out
}

// Pending returns the elements that differ from their recorded pair, unseen
// ids included, without recording anything.
func (t *Tracker) Pending(elements []Element) []Element {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Element
	for _, el := range elements {
		prev, ok := t.seen[el.ID]
		if !ok || prev.version != el.Version || prev.nonce != el.VersionNonce {
			out = append(out, el)
		}
	}
	return out
}

// Len returns the number of tracked ids.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// Reset forgets every recorded version (session end).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]versionKey)
}
