package repository

import (
	"context"

	"skillpath_backend/internal/model"

	"gorm.io/gorm"
)

type TrackRepository struct {
	DB *gorm.DB
}

func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{DB: db}
}

func (r *TrackRepository) WithTx(tx *gorm.DB) *TrackRepository {
	return &TrackRepository{DB: tx}
}

func (r *TrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	return r.DB.WithContext(ctx).Create(track).Error
}

func (r *TrackRepository) FindTrackByID(ctx context.Context, id uint) (*model.Track, error) {
	var track model.Track
	err := r.DB.WithContext(ctx).First(&track, id).Error
	return &track, err
}

func (r *TrackRepository) FindTrackBySlug(ctx context.Context, slug string) (*model.Track, error) {
	var track model.Track
	err := r.DB.WithContext(ctx).Where("slug = ?", slug).First(&track).Error
	return &track, err
}

func (r *TrackRepository) ListTracks(ctx context.Context) ([]model.Track, error) {
	var tracks []model.Track
	err := r.DB.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB {
			return db.Order("ordinal ASC")
		}).
		Order("id ASC").
		Find(&tracks).Error
	return tracks, err
}

func (r *TrackRepository) CreateUnit(ctx context.Context, unit *model.ContentUnit) error {
	return r.DB.WithContext(ctx).Create(unit).Error
}

func (r *TrackRepository) FindUnitByID(ctx context.Context, id uint) (*model.ContentUnit, error) {
	var unit model.ContentUnit
	err := r.DB.WithContext(ctx).First(&unit, id).Error
	return &unit, err
}

// ListUnits 按 ordinal 升序
func (r *TrackRepository) ListUnits(ctx context.Context, trackID uint) ([]model.ContentUnit, error) {
	var units []model.ContentUnit
	err := r.DB.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("ordinal ASC").
		Find(&units).Error
	return units, err
}

func (r *TrackRepository) UpdateUnit(ctx context.Context, unit *model.ContentUnit) error {
	return r.DB.WithContext(ctx).
		Model(unit).
		Select("ordinal", "kind", "title", "reward_xp", "content").
		Updates(unit).Error
}
