package model

import (
	"gorm.io/datatypes"
)

// swagger:model Track
type Track struct {
	BaseModel
	Slug        string        `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Title       string        `gorm:"size:255;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Units       []ContentUnit `gorm:"foreignKey:TrackID" json:"units,omitempty"`
}

func (Track) TableName() string {
	return "tracks"
}

// ContentUnit 学习路径中的一个步骤，(track_id, ordinal) 唯一
// swagger:model ContentUnit
type ContentUnit struct {
	BaseModel
	TrackID  uint           `gorm:"not null;uniqueIndex:idx_track_ordinal" json:"trackId"`
	Ordinal  int            `gorm:"not null;uniqueIndex:idx_track_ordinal" json:"ordinal"`
	Kind     UnitKind       `gorm:"size:20;not null" json:"kind"`
	Title    string         `gorm:"size:255;not null" json:"title"`
	RewardXP int            `gorm:"not null;default:0" json:"rewardXp"`
	Content  datatypes.JSON `json:"content"`
}

func (ContentUnit) TableName() string {
	return "content_units"
}
