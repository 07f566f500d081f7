// Package postgres is the gorm/PostgreSQL DrawingRepository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawboard/internal/element"
	"drawboard/internal/errs"
	"drawboard/internal/model"
	"drawboard/internal/repository"
)

// DrawingRepo gorm 기반 드로잉 저장소
type DrawingRepo struct {
	db *gorm.DB
}

var _ repository.DrawingRepository = (*DrawingRepo)(nil)

// NewDrawingRepo DrawingRepo 생성
func NewDrawingRepo(db *gorm.DB) *DrawingRepo {
	return &DrawingRepo{db: db}
}

func (r *DrawingRepo) Create(ctx context.Context, d *repository.Drawing) (*repository.Drawing, error) {
	row, err := toRow(d)
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.Version = 1

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create drawing: %w", err)
	}
	return toDomain(row)
}

func (r *DrawingRepo) Get(ctx context.Context, id string) (*repository.Drawing, error) {
	var row model.Drawing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get drawing: %w", err)
	}
	return toDomain(&row)
}

// Update applies the patch and increments version in a single UPDATE ... RETURNING.
func (r *DrawingRepo) Update(ctx context.Context, id string, patch repository.Patch) (*repository.Drawing, error) {
	updates, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	updates["version"] = gorm.Expr("version + 1")

	var row model.Drawing
	res := r.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update drawing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrNotFound
	}
	return toDomain(&row)
}

func (r *DrawingRepo) ListByOwner(ctx context.Context, ownerID int64) ([]repository.Drawing, error) {
	var rows []model.Drawing
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}

	out := make([]repository.Drawing, 0, len(rows))
	for i := range rows {
		d, err := toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func patchColumns(p repository.Patch) (map[string]any, error) {
	cols := make(map[string]any, 4)
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Elements != nil {
		b, err := json.Marshal(*p.Elements)
		if err != nil {
			return nil, fmt.Errorf("encode elements: %w", err)
		}
		cols["elements"] = string(b)
	}
	if p.AppState != nil {
		b, err := json.Marshal(p.AppState)
		if err != nil {
			return nil, fmt.Errorf("encode app state: %w", err)
		}
		cols["app_state"] = string(b)
	}
	if p.Files != nil {
		b, err := json.Marshal(p.Files)
		if err != nil {
			return nil, fmt.Errorf("encode files: %w", err)
		}
		cols["files"] = string(b)
	}
	return cols, nil
}

func toRow(d *repository.Drawing) (*model.Drawing, error) {
	els := d.Elements
	if els == nil {
		els = []element.Element{}
	}
	elements, err := json.Marshal(els)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	appState, err := json.Marshal(nonNilMap(d.AppState))
	if err != nil {
		return nil, fmt.Errorf("encode app state: %w", err)
	}
	files := d.Files
	if files == nil {
		files = map[string]repository.FileDescriptor{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}

	name := d.Name
	if name == "" {
		name = "Untitled"
	}
	return &model.Drawing{
		ID:       d.ID,
		Name:     name,
		OwnerID:  d.OwnerID,
		Elements: string(elements),
		AppState: string(appState),
		Files:    string(filesJSON),
		Version:  d.Version,
	}, nil
}

func toDomain(row *model.Drawing) (*repository.Drawing, error) {
	d := &repository.Drawing{
		ID:        row.ID,
		Name:      row.Name,
		OwnerID:   row.OwnerID,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Elements:  []element.Element{},
		AppState:  map[string]any{},
		Files:     map[string]repository.FileDescriptor{},
	}
	if row.Elements != "" {
		if err := json.Unmarshal([]byte(row.Elements), &d.Elements); err != nil {
			return nil, fmt.Errorf("decode elements of %s: %w", row.ID, err)
		}
	}
	if row.AppState != "" {
		if err := json.Unmarshal([]byte(row.AppState), &d.AppState); err != nil {
			return nil, fmt.Errorf("decode app state of %s: %w", row.ID, err)
		}
	}
	if row.Files != "" {
		if err := json.Unmarshal([]byte(row.Files), &d.Files); err != nil {
			return nil, fmt.Errorf("decode files of %s: %w", row.ID, err)
		}
	}
	return d, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
