// Package collabclient is the client half of a collaboration session: the
// local scene, change detection and throttled broadcast, the per-tick merge
// of remote updates, debounced persistence and the websocket transport.
package collabclient

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"drawboard/internal/element"
	"drawboard/internal/errs"
	"drawboard/internal/protocol"
)

// Collaborator 원격 사용자의 커서 상태
type Collaborator struct {
	UserID    string           `json:"userId"`
	Color     string           `json:"color"`
	Button    string           `json:"button"`
	Pointer   protocol.Pointer `json:"pointer"`
	UpdatedAt time.Time        `json:"-"`
}

// ChangeFunc receives the scene after a local edit.
type ChangeFunc func(elements []element.Element, appState map[string]any)

// Scene 로컬 드로잉 상태 (요소 순서 유지, 삭제 표시 포함)
type Scene struct {
	mu            sync.RWMutex
	elements      []element.Element
	selected      map[string]struct{}
	appState      map[string]any
	collaborators map[string]Collaborator
	onChange      ChangeFunc
}

// NewScene seeds the scene with a loaded drawing.
func NewScene(elements []element.Element, appState map[string]any) *Scene {
	if appState == nil {
		appState = map[string]any{}
	}
	return &Scene{
		elements:      element.CloneAll(elements),
		selected:      make(map[string]struct{}),
		appState:      maps.Clone(appState),
		collaborators: make(map[string]Collaborator),
	}
}

// OnChange sets the callback fired after every local edit.
func (s *Scene) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Elements 요소 목록 사본 (삭제 표시 포함)
func (s *Scene) Elements() []element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return element.CloneAll(s.elements)
}

// Element returns a copy of the element with the given id.
func (s *Scene) Element(id string) (element.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.elements[i].Clone(), true
	}
	return element.Element{}, false
}

// AppState 앱 상태 사본
func (s *Scene) AppState() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.appState)
}

// Collaborators 원격 커서 사본
func (s *Scene) Collaborators() map[string]Collaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.collaborators)
}

// Select replaces the local selection.
func (s *Scene) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
}

// SelectedIDs 선택된 요소 ID
func (s *Scene) SelectedIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.selected)
}

// SelectedList returns the selection sorted by id.
func (s *Scene) SelectedList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Add appends a new element. An empty id is filled in and the version pair is
// bumped so the element is broadcast as a fresh edit.
func (s *Scene) Add(el element.Element) element.Element {
	el = el.Clone()
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	el.Bump()

	s.mu.Lock()
	if i := s.indexOf(el.ID); i >= 0 {
		s.elements[i] = el
	} else {
		s.elements = append(s.elements, el)
	}
	s.mu.Unlock()

	s.changed()
	return el.Clone()
}

// Mutate applies fn to the element and bumps its version pair.
func (s *Scene) Mutate(id string, fn func(el *element.Element)) (element.Element, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return element.Element{}, errs.ErrNotFound
	}
	el := s.elements[i].Clone()
	fn(&el)
	el.ID = id
	el.Bump()
	s.elements[i] = el
	s.mu.Unlock()

	s.changed()
	return el.Clone(), nil
}

// Delete marks the element deleted. The tombstone stays in the scene.
func (s *Scene) Delete(id string) error {
	_, err := s.Mutate(id, func(el *element.Element) { el.IsDeleted = true })
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.selected, id)
	s.mu.Unlock()
	return nil
}

// SetAppState sets one app-state key as a local edit.
func (s *Scene) SetAppState(key string, value any) {
	s.mu.Lock()
	s.appState[key] = value
	s.mu.Unlock()
	s.changed()
}

// ApplyRemote reconciles remote elements into the scene and merges cursors in
// one update. It does not fire the change callback. Only remote elements that
// were adopted are returned; ids where the local copy won are left out.
func (s *Scene) ApplyRemote(remote []element.Element, cursors map[string]Collaborator) []element.Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched []element.Element
	if len(remote) > 0 {
		s.elements = element.Reconcile(s.elements, remote)
		for _, r := range remote {
			i := s.indexOf(r.ID)
			if i < 0 {
				continue
			}
			if cur := s.elements[i]; cur.Version == r.Version && cur.VersionNonce == r.VersionNonce {
				touched = append(touched, cur.Clone())
			}
		}
	}
	for id, c := range cursors {
		s.collaborators[id] = c
	}
	return touched
}

// RemoveCollaborators drops cursors of users not in keep.
func (s *Scene) RemoveCollaborators(keep map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.collaborators {
		if _, ok := keep[id]; !ok {
			delete(s.collaborators, id)
		}
	}
}

func (s *Scene) indexOf(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Scene) changed() {
	s.mu.RLock()
	fn := s.onChange
	if fn == nil {
		s.mu.RUnlock()
		return
	}
	els := element.CloneAll(s.elements)
	app := maps.Clone(s.appState)
	s.mu.RUnlock()

	fn(els, app)
}
