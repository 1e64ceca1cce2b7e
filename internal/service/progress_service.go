package service

import (
	"context"
	"fmt"
	"time"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProgressService struct {
	DB           *gorm.DB
	TrackRepo    *repository.TrackRepository
	ProgressRepo *repository.ProgressRepository
	Log          *zap.Logger
	now          func() time.Time
}

func NewProgressService(db *gorm.DB, trackRepo *repository.TrackRepository, progressRepo *repository.ProgressRepository, log *zap.Logger) *ProgressService {
	return &ProgressService{
		DB:           db,
		TrackRepo:    trackRepo,
		ProgressRepo: progressRepo,
		Log:          log.Named("progress"),
		now:          time.Now,
	}
}

type UnitProgress struct {
	UnitID      uint                 `json:"unitId"`
	Ordinal     int                  `json:"ordinal"`
	Kind        model.UnitKind       `json:"kind"`
	Title       string               `json:"title"`
	RewardXP    int                  `json:"rewardXp"`
	Status      model.ProgressStatus `json:"status"`
	Score       *int                 `json:"score"`
	CompletedAt *time.Time           `json:"completedAt"`
}

type TrackProgress struct {
	TrackID        uint           `json:"trackId"`
	Title          string         `json:"title"`
	Units          []UnitProgress `json:"units"`
	CompletedUnits int            `json:"completedUnits"`
	TotalUnits     int            `json:"totalUnits"`
	Completed      bool           `json:"completed"`
}

// Get 单元不存在返回 ErrUnitNotFound；尚无记录返回 (nil, nil)
func (s *ProgressService) Get(ctx context.Context, userID, unitID uint) (*model.ProgressRecord, error) {
	if _, err := loadUnit(ctx, s.TrackRepo, unitID); err != nil {
		return nil, err
	}
	rec, err := s.ProgressRepo.Find(ctx, userID, unitID)
	if err != nil {
		return nil, util.Transient(err)
	}
	return rec, nil
}

// UpsertCompleted 幂等地标记完成；score 为 nil 时保留原分数
func (s *ProgressService) UpsertCompleted(ctx context.Context, userID, unitID uint, score *int) (*model.ProgressRecord, error) {
	unit, err := loadUnit(ctx, s.TrackRepo, unitID)
	if err != nil {
		return nil, err
	}

	var rec *model.ProgressRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		rec, _, txErr = upsertCompleted(ctx, s.ProgressRepo.WithTx(tx), unit, userID, score, s.now())
		return txErr
	})
	if err != nil {
		return nil, util.Transient(err)
	}
	return rec, nil
}

// TrackProgress 返回投影后的状态；学员已开始该路径时同步落库
func (s *ProgressService) TrackProgress(ctx context.Context, userID, trackID uint) (*TrackProgress, error) {
	track, err := s.TrackRepo.FindTrackByID(ctx, trackID)
	if err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrTrackNotFound
		}
		return nil, util.Transient(err)
	}
	units, err := s.TrackRepo.ListUnits(ctx, trackID)
	if err != nil {
		return nil, util.Transient(err)
	}
	records, err := s.ProgressRepo.ListForTrack(ctx, userID, trackID)
	if err != nil {
		return nil, util.Transient(err)
	}

	if len(records) > 0 {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, txErr := syncTrack(ctx, s.ProgressRepo.WithTx(tx), units, records, userID, trackID)
			return txErr
		})
		if err != nil {
			return nil, util.Transient(err)
		}
	}

	byUnit := make(map[uint]model.ProgressRecord, len(records))
	for _, rec := range records {
		byUnit[rec.UnitID] = rec
	}
	projection := ComputeUnlocks(units, statusIndex(records))

	view := &TrackProgress{
		TrackID:    track.ID,
		Title:      track.Title,
		Units:      make([]UnitProgress, 0, len(units)),
		TotalUnits: len(units),
		Completed:  TrackComplete(units, projection),
	}
	for _, unit := range units {
		up := UnitProgress{
			UnitID:   unit.ID,
			Ordinal:  unit.Ordinal,
			Kind:     unit.Kind,
			Title:    unit.Title,
			RewardXP: unit.RewardXP,
			Status:   projection[unit.ID],
		}
		if rec, ok := byUnit[unit.ID]; ok {
			up.Score = rec.BestScore
			up.CompletedAt = rec.CompletedAt
		}
		if up.Status == model.StatusCompleted {
			view.CompletedUnits++
		}
		view.Units = append(view.Units, up)
	}
	return view, nil
}

func loadUnit(ctx context.Context, repo *repository.TrackRepository, unitID uint) (*model.ContentUnit, error) {
	unit, err := repo.FindUnitByID(ctx, unitID)
	if err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrUnitNotFound
		}
		return nil, util.Transient(err)
	}
	return unit, nil
}

// upsertCompleted 先插入占位行，再加行锁更新，避免并发插入冲突中止事务。
// 完成时间只在第一次完成时写入；分数按最后一次提交覆盖。
func upsertCompleted(ctx context.Context, repo *repository.ProgressRepository, unit *model.ContentUnit, userID uint, score *int, now time.Time) (*model.ProgressRecord, bool, error) {
	if _, err := repo.EnsureRow(ctx, &model.ProgressRecord{
		UserID:  userID,
		UnitID:  unit.ID,
		TrackID: unit.TrackID,
		Status:  model.StatusUnlocked,
	}); err != nil {
		return nil, false, fmt.Errorf("ensure progress row: %w", err)
	}

	rec, err := repo.FindForUpdate(ctx, userID, unit.ID)
	if err != nil {
		return nil, false, fmt.Errorf("lock progress row: %w", err)
	}

	firstCompletion := false
	if rec.Status != model.StatusCompleted {
		rec.Status = model.StatusCompleted
		firstCompletion = true
	}
	if rec.CompletedAt == nil {
		completedAt := now
		rec.CompletedAt = &completedAt
	}
	if score != nil {
		s := *score
		rec.BestScore = &s
	}

	if err := repo.Save(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("save progress: %w", err)
	}
	return rec, firstCompletion, nil
}

// syncTrack 将持久化状态提升到投影状态：缺失的行按投影补齐，locked 升为 unlocked
func syncTrack(ctx context.Context, repo *repository.ProgressRepository, units []model.ContentUnit, records []model.ProgressRecord, userID, trackID uint) (map[uint]model.ProgressStatus, error) {
	persisted := statusIndex(records)
	projection := ComputeUnlocks(units, persisted)

	for _, unit := range units {
		want := projection[unit.ID]
		have, exists := persisted[unit.ID]
		switch {
		case !exists:
			if _, err := repo.EnsureRow(ctx, &model.ProgressRecord{
				UserID:  userID,
				UnitID:  unit.ID,
				TrackID: trackID,
				Status:  want,
			}); err != nil {
				return nil, err
			}
		case have == model.StatusLocked && want == model.StatusUnlocked:
			if err := repo.Unlock(ctx, userID, unit.ID); err != nil {
				return nil, err
			}
		}
	}
	return projection, nil
}
