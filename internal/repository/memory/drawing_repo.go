// Package memory is an in-process DrawingRepository used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"drawboard/internal/element"
	"drawboard/internal/errs"
	"drawboard/internal/repository"
)

// DrawingRepo map-backed drawing store.
type DrawingRepo struct {
	mu       sync.RWMutex
	drawings map[string]*repository.Drawing
}

var _ repository.DrawingRepository = (*DrawingRepo)(nil)

// NewDrawingRepo creates an empty store.
func NewDrawingRepo() *DrawingRepo {
	return &DrawingRepo{drawings: make(map[string]*repository.Drawing)}
}

func (r *DrawingRepo) Create(_ context.Context, d *repository.Drawing) (*repository.Drawing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := clone(d)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	r.drawings[c.ID] = c
	return clone(c), nil
}

func (r *DrawingRepo) Get(_ context.Context, id string) (*repository.Drawing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drawings[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(d), nil
}

func (r *DrawingRepo) Update(_ context.Context, id string, patch repository.Patch) (*repository.Drawing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drawings[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Elements != nil {
		d.Elements = element.CloneAll(*patch.Elements)
	}
	if patch.AppState != nil {
		d.AppState = copyMap(patch.AppState)
	}
	if patch.Files != nil {
		d.Files = make(map[string]repository.FileDescriptor, len(patch.Files))
		for k, v := range patch.Files {
			d.Files[k] = v
		}
	}
	d.Version++
	d.UpdatedAt = time.Now()
	return clone(d), nil
}

func (r *DrawingRepo) ListByOwner(_ context.Context, ownerID int64) ([]repository.Drawing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Drawing, 0)
	for _, d := range r.drawings {
		if d.OwnerID == ownerID {
			out = append(out, *clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func clone(d *repository.Drawing) *repository.Drawing {
	c := *d
	c.Elements = element.CloneAll(d.Elements)
	c.AppState = copyMap(d.AppState)
	if d.Files != nil {
		c.Files = make(map[string]repository.FileDescriptor, len(d.Files))
		for k, v := range d.Files {
			c.Files[k] = v
		}
	}
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
