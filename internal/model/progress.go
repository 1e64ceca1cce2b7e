package model

import "time"

type ProgressStatus string

const (
	StatusLocked    ProgressStatus = "locked"
	StatusUnlocked  ProgressStatus = "unlocked"
	StatusCompleted ProgressStatus = "completed"
)

// ProgressRecord 每个 (user, unit) 一行，永不删除
// swagger:model ProgressRecord
type ProgressRecord struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_user_unit" json:"userId"`
	UnitID      uint           `gorm:"not null;uniqueIndex:idx_user_unit" json:"unitId"`
	TrackID     uint           `gorm:"not null;index" json:"trackId"`
	Status      ProgressStatus `gorm:"size:20;not null;default:'locked'" json:"status"`
	BestScore   *int           `json:"bestScore"`
	CompletedAt *time.Time     `json:"completedAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}
