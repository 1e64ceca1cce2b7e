package repository

import (
	"context"
	"time"

	"skillpath_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CredentialRepository struct {
	DB *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{DB: db}
}

// FindByUserTrack 不存在时返回 (nil, nil)
func (r *CredentialRepository) FindByUserTrack(ctx context.Context, userID, trackID uint) (*model.Credential, error) {
	var creds []model.Credential
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Limit(1).
		Find(&creds).Error
	if err != nil || len(creds) == 0 {
		return nil, err
	}
	return &creds[0], nil
}

func (r *CredentialRepository) FindByHash(ctx context.Context, hash string) (*model.Credential, error) {
	var cred model.Credential
	err := r.DB.WithContext(ctx).Where("verification_hash = ?", hash).First(&cred).Error
	return &cred, err
}

// Create 违反 (user, track) 或 hash 唯一约束时返回错误，由调用方区分
func (r *CredentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	return r.DB.WithContext(ctx).Create(cred).Error
}

func (r *CredentialRepository) ListByUser(ctx context.Context, userID uint) ([]model.Credential, error) {
	var creds []model.Credential
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&creds).Error
	return creds, err
}

type CredentialTaskRepository struct {
	DB *gorm.DB
}

func NewCredentialTaskRepository(db *gorm.DB) *CredentialTaskRepository {
	return &CredentialTaskRepository{DB: db}
}

func (r *CredentialTaskRepository) WithTx(tx *gorm.DB) *CredentialTaskRepository {
	return &CredentialTaskRepository{DB: tx}
}

// Enqueue 每个 (user, track) 只入队一次
func (r *CredentialTaskRepository) Enqueue(ctx context.Context, task *model.CredentialTask) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(task)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CredentialTaskRepository) FindByUserTrack(ctx context.Context, userID, trackID uint) (*model.CredentialTask, error) {
	var task model.CredentialTask
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		First(&task).Error
	return &task, err
}

// FindDue 到期的待处理任务，按到期时间排序
func (r *CredentialTaskRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]model.CredentialTask, error) {
	var tasks []model.CredentialTask
	err := r.DB.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.TaskPending, now).
		Order("next_attempt_at ASC, id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *CredentialTaskRepository) MarkDone(ctx context.Context, taskID, credentialID uint, artifactURL string) error {
	return r.DB.WithContext(ctx).
		Model(&model.CredentialTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":        model.TaskDone,
			"credential_id": credentialID,
			"artifact_url":  artifactURL,
			"last_error":    "",
		}).Error
}

// MarkFailed 记录失败并推迟下一次尝试；credentialID 非空表示证书已签发仅渲染失败
func (r *CredentialTaskRepository) MarkFailed(ctx context.Context, task *model.CredentialTask) error {
	return r.DB.WithContext(ctx).
		Model(&model.CredentialTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"attempts":        task.Attempts,
			"last_error":      task.LastError,
			"next_attempt_at": task.NextAttemptAt,
			"credential_id":   task.CredentialID,
		}).Error
}

func (r *CredentialTaskRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.CredentialTask{}).
		Where("status = ?", model.TaskPending).
		Count(&count).Error
	return count, err
}
