package service

import (
	"context"
	"fmt"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/monitoring"

	"go.uber.org/zap"
)

type XPService struct {
	XPRepo *repository.XPRepository
	Log    *zap.Logger
}

func NewXPService(xpRepo *repository.XPRepository, log *zap.Logger) *XPService {
	return &XPService{
		XPRepo: xpRepo,
		Log:    log.Named("xp"),
	}
}

// AwardResult Awarded=false 表示该来源已经发放过，不是错误
type AwardResult struct {
	Awarded bool `json:"awarded"`
	Amount  int  `json:"amount"`
}

type XPSummary struct {
	TotalXP      int `json:"totalXp"`
	CurrentLevel int `json:"currentLevel"`
	NextLevelXP  int `json:"nextLevelXp"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID uint   `json:"userId"`
	User   string `json:"user"`
	XP     int    `json:"xp"`
}

func (s *XPService) Award(ctx context.Context, userID uint, amount int, sourceKind string, sourceID uint) (AwardResult, error) {
	res, err := awardXP(ctx, s.XPRepo, userID, amount, sourceKind, sourceID)
	if err != nil {
		return res, err
	}
	if !res.Awarded {
		s.Log.Info("xp already awarded",
			zap.Uint("userId", userID),
			zap.String("sourceKind", sourceKind),
			zap.Uint("sourceId", sourceID))
	}
	return res, nil
}

// awardXP 供事务内复用；唯一冲突返回 Awarded=false
func awardXP(ctx context.Context, repo *repository.XPRepository, userID uint, amount int, sourceKind string, sourceID uint) (AwardResult, error) {
	if amount < 0 {
		return AwardResult{}, fmt.Errorf("%w: negative xp amount %d", util.ErrInvalidContent, amount)
	}
	inserted, err := repo.Insert(ctx, &model.XPLedgerEntry{
		UserID:     userID,
		SourceKind: sourceKind,
		SourceID:   sourceID,
		Amount:     amount,
	})
	if err != nil {
		return AwardResult{}, util.Transient(err)
	}
	if !inserted {
		return AwardResult{Awarded: false, Amount: 0}, nil
	}
	monitoring.XPAwarded.Add(float64(amount))
	return AwardResult{Awarded: true, Amount: amount}, nil
}

// TotalXP 每次从流水实时求和
func (s *XPService) TotalXP(ctx context.Context, userID uint) (int, error) {
	total, err := s.XPRepo.Total(ctx, userID)
	if err != nil {
		return 0, util.Transient(err)
	}
	return total, nil
}

func (s *XPService) Summary(ctx context.Context, userID uint) (*XPSummary, error) {
	total, err := s.TotalXP(ctx, userID)
	if err != nil {
		return nil, err
	}
	level, next := calculateLevel(total)
	return &XPSummary{
		TotalXP:      total,
		CurrentLevel: level,
		NextLevelXP:  next,
	}, nil
}

// History 最近的经验值流水，新的在前
func (s *XPService) History(ctx context.Context, userID uint, limit int) ([]model.XPLedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := s.XPRepo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, util.Transient(err)
	}
	return entries, nil
}

func (s *XPService) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.XPRepo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, util.Transient(err)
	}

	leaderboard := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		leaderboard[i] = LeaderboardEntry{
			Rank:   i + 1,
			UserID: row.UserID,
			User:   row.Name,
			XP:     row.XP,
		}
	}
	return leaderboard, nil
}

// calculateLevel 每 XPPerLevel 升一级，从 1 级开始
func calculateLevel(xp int) (level int, nextLevelXP int) {
	level = xp/util.XPPerLevel + 1
	nextLevelXP = level * util.XPPerLevel
	return level, nextLevelXP
}
