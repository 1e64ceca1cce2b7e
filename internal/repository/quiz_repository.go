package repository

import (
	"context"

	"skillpath_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

// FindLatest 某个 slug 的最新版本
func (r *QuizRepository) FindLatest(ctx context.Context, slug string) (*model.QuizDefinition, error) {
	var quiz model.QuizDefinition
	err := r.DB.WithContext(ctx).
		Where("slug = ?", slug).
		Order("version DESC").
		First(&quiz).Error
	return &quiz, err
}

func (r *QuizRepository) LatestVersion(ctx context.Context, slug string) (int, error) {
	var version int
	err := r.DB.WithContext(ctx).
		Model(&model.QuizDefinition{}).
		Where("slug = ?", slug).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	return version, err
}

// Create 版本号由调用方确定，(slug, version) 冲突时返回唯一约束错误
func (r *QuizRepository) Create(ctx context.Context, quiz *model.QuizDefinition) error {
	return r.DB.WithContext(ctx).Create(quiz).Error
}

func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *model.QuizAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

// ListAttempts 按提交顺序返回学员在某单元上的全部答题记录
func (r *QuizRepository) ListAttempts(ctx context.Context, userID, unitID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		Order("id ASC").
		Find(&attempts).Error
	return attempts, err
}
