package repository

import (
	"context"

	"skillpath_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// Find 不存在时返回 (nil, nil)
func (r *ProgressRepository) Find(ctx context.Context, userID, unitID uint) (*model.ProgressRecord, error) {
	var records []model.ProgressRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		Limit(1).
		Find(&records).Error
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// FindForUpdate 行锁读取；sqlite 忽略 FOR UPDATE，由单写者保证串行
func (r *ProgressRepository) FindForUpdate(ctx context.Context, userID, unitID uint) (*model.ProgressRecord, error) {
	var record model.ProgressRecord
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		First(&record).Error
	return &record, err
}

func (r *ProgressRepository) ListForTrack(ctx context.Context, userID, trackID uint) ([]model.ProgressRecord, error) {
	var records []model.ProgressRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Find(&records).Error
	return records, err
}

// EnsureRow 不存在则插入，已存在时不做任何修改
func (r *ProgressRepository) EnsureRow(ctx context.Context, record *model.ProgressRecord) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	return res.RowsAffected > 0, res.Error
}

// Save 更新已锁定的记录
func (r *ProgressRepository) Save(ctx context.Context, record *model.ProgressRecord) error {
	return r.DB.WithContext(ctx).
		Model(&model.ProgressRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"status":       record.Status,
			"best_score":   record.BestScore,
			"completed_at": record.CompletedAt,
		}).Error
}

// Unlock 只把 locked 提升为 unlocked，不会降级已完成的记录
func (r *ProgressRepository) Unlock(ctx context.Context, userID, unitID uint) error {
	return r.DB.WithContext(ctx).
		Model(&model.ProgressRecord{}).
		Where("user_id = ? AND unit_id = ? AND status = ?", userID, unitID, model.StatusLocked).
		Update("status", model.StatusUnlocked).Error
}

func (r *ProgressRepository) CountCompletedForUnit(ctx context.Context, unitID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.ProgressRecord{}).
		Where("unit_id = ? AND status = ?", unitID, model.StatusCompleted).
		Count(&count).Error
	return count, err
}

// TrackPair 学员与路径
type TrackPair struct {
	UserID  uint
	TrackID uint
}

// CompletedTracksWithoutTask 已完成全部单元但尚无证书任务的 (学员, 路径)
func (r *ProgressRepository) CompletedTracksWithoutTask(ctx context.Context, limit int) ([]TrackPair, error) {
	var pairs []TrackPair
	err := r.DB.WithContext(ctx).Raw(`
SELECT p.user_id AS user_id, p.track_id AS track_id
FROM progress_records p
JOIN content_units u ON u.id = p.unit_id AND u.deleted_at IS NULL
WHERE p.status = ?
  AND NOT EXISTS (
    SELECT 1 FROM credential_tasks t WHERE t.user_id = p.user_id AND t.track_id = p.track_id
  )
GROUP BY p.user_id, p.track_id
HAVING COUNT(*) = (
  SELECT COUNT(*) FROM content_units cu WHERE cu.track_id = p.track_id AND cu.deleted_at IS NULL
)
ORDER BY p.user_id, p.track_id
LIMIT ?`, model.StatusCompleted, limit).Scan(&pairs).Error
	return pairs, err
}

// LatestCompletion 学员在路径中最后一次完成的时间
func (r *ProgressRepository) LatestCompletion(ctx context.Context, userID, trackID uint) (*model.ProgressRecord, error) {
	var record model.ProgressRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND track_id = ? AND status = ?", userID, trackID, model.StatusCompleted).
		Order("completed_at DESC").
		First(&record).Error
	return &record, err
}
