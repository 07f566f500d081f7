// Package repository defines the drawing store consumed by the collaboration
// core and the HTTP API. Implementations live in subpackages.
package repository

import (
	"context"
	"time"

	"drawboard/internal/element"
)

// FileDescriptor attachment payload descriptor (binary lives elsewhere).
type FileDescriptor struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataURL,omitempty"`
	Created  int64  `json:"created,omitempty"`
}

// Drawing 드로잉 도메인 모델
type Drawing struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	OwnerID   int64                     `json:"ownerId"`
	Elements  []element.Element         `json:"elements"`
	AppState  map[string]any            `json:"appState"`
	Files     map[string]FileDescriptor `json:"files"`
	Version   int64                     `json:"version"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name     *string                   `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Elements *[]element.Element        `json:"elements,omitempty"`
	AppState map[string]any            `json:"appState,omitempty"`
	Files    map[string]FileDescriptor `json:"files,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Elements == nil && p.AppState == nil && p.Files == nil
}

// DrawingRepository persistent drawing store.
//
// Update bumps the server-side version on every call and returns the updated
// record; concurrent writers are last-write-wins.
type DrawingRepository interface {
	Create(ctx context.Context, d *Drawing) (*Drawing, error)
	Get(ctx context.Context, id string) (*Drawing, error)
	Update(ctx context.Context, id string, patch Patch) (*Drawing, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Drawing, error)
}
