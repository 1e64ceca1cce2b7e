package repository

import (
	"context"

	"skillpath_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type XPRepository struct {
	DB *gorm.DB
}

func NewXPRepository(db *gorm.DB) *XPRepository {
	return &XPRepository{DB: db}
}

func (r *XPRepository) WithTx(tx *gorm.DB) *XPRepository {
	return &XPRepository{DB: tx}
}

// Insert 唯一键冲突时不写入并返回 false
func (r *XPRepository) Insert(ctx context.Context, entry *model.XPLedgerEntry) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Total 每次实时求和
func (r *XPRepository) Total(ctx context.Context, userID uint) (int, error) {
	var total int
	err := r.DB.WithContext(ctx).
		Model(&model.XPLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *XPRepository) ListForUser(ctx context.Context, userID uint, limit int) ([]model.XPLedgerEntry, error) {
	var entries []model.XPLedgerEntry
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

type LeaderboardRow struct {
	UserID uint   `json:"userId"`
	Name   string `json:"name"`
	XP     int    `json:"xp"`
}

func (r *XPRepository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := r.DB.WithContext(ctx).
		Table("xp_ledger_entries AS x").
		Select("x.user_id AS user_id, u.name AS name, SUM(x.amount) AS xp").
		Joins("JOIN users u ON u.id = x.user_id AND u.deleted_at IS NULL").
		Group("x.user_id, u.name").
		Order("xp DESC, x.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
