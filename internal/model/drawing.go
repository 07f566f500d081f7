package model

import (
	"time"
)

// Drawing 드로잉 (요소/앱 상태/파일은 JSONB)
type Drawing struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null;default:'Untitled'" json:"name"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	Elements  string    `gorm:"type:jsonb;not null;default:'[]'" json:"elements"`
	AppState  string    `gorm:"type:jsonb;not null;default:'{}'" json:"app_state"`
	Files     string    `gorm:"type:jsonb;not null;default:'{}'" json:"files"`
	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (Drawing) TableName() string {
	return "drawings"
}
