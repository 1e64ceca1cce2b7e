package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const publishRetryLimit = 3

// ContentService 路径、单元与测验的编写
type ContentService struct {
	TrackRepo    *repository.TrackRepository
	QuizRepo     *repository.QuizRepository
	ProgressRepo *repository.ProgressRepository
	Log          *zap.Logger
}

func NewContentService(trackRepo *repository.TrackRepository, quizRepo *repository.QuizRepository, progressRepo *repository.ProgressRepository, log *zap.Logger) *ContentService {
	return &ContentService{
		TrackRepo:    trackRepo,
		QuizRepo:     quizRepo,
		ProgressRepo: progressRepo,
		Log:          log.Named("content"),
	}
}

type TrackRequest struct {
	Slug        string `json:"slug" yaml:"slug" binding:"required,max=100"`
	Title       string `json:"title" yaml:"title" binding:"required,max=255"`
	Description string `json:"description" yaml:"description"`
}

type UnitRequest struct {
	Ordinal  int             `json:"ordinal"`
	Kind     model.UnitKind  `json:"kind" binding:"required"`
	Title    string          `json:"title" binding:"required,max=255"`
	RewardXP int             `json:"rewardXp"`
	Content  json.RawMessage `json:"content"`
}

type QuizRequest struct {
	Slug         string               `json:"slug" yaml:"slug" binding:"required,max=100"`
	Title        string               `json:"title" yaml:"title" binding:"required,max=255"`
	PassingScore *int                 `json:"passingScore" yaml:"passingScore"`
	Questions    []model.QuizQuestion `json:"questions" yaml:"questions" binding:"required"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrInvalidContent, fmt.Sprintf(format, args...))
}

func (s *ContentService) ListTracks(ctx context.Context) ([]model.Track, error) {
	tracks, err := s.TrackRepo.ListTracks(ctx)
	if err != nil {
		return nil, util.Transient(err)
	}
	return tracks, nil
}

func (s *ContentService) CreateTrack(ctx context.Context, req TrackRequest) (*model.Track, error) {
	slug := strings.TrimSpace(req.Slug)
	title := strings.TrimSpace(req.Title)
	if slug == "" || title == "" {
		return nil, invalid("slug and title are required")
	}
	track := &model.Track{
		Slug:        slug,
		Title:       title,
		Description: req.Description,
	}
	if err := s.TrackRepo.CreateTrack(ctx, track); err != nil {
		if util.IsUniqueViolation(err) {
			return nil, invalid("track slug %q already exists", slug)
		}
		return nil, util.Transient(err)
	}
	s.Log.Info("track created", zap.Uint("trackId", track.ID), zap.String("slug", slug))
	return track, nil
}

// validateUnit 校验类型、奖励、内容变体；测验单元要求引用的测验已发布
func (s *ContentService) validateUnit(ctx context.Context, req UnitRequest) (datatypes.JSON, error) {
	if !req.Kind.Valid() {
		return nil, invalid("unknown unit kind %q", req.Kind)
	}
	if req.RewardXP < 0 {
		return nil, invalid("rewardXp must be non-negative")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, invalid("title required")
	}
	content, err := model.DecodeContent(req.Kind, req.Content)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if err := content.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if qc, ok := content.(model.QuizContent); ok {
		if _, err := s.QuizRepo.FindLatest(ctx, qc.QuizSlug); err != nil {
			if util.IsRecordNotFound(err) {
				return nil, invalid("quiz %q is not published", qc.QuizSlug)
			}
			return nil, util.Transient(err)
		}
	}
	return model.EncodeContent(content)
}

func (s *ContentService) AddUnit(ctx context.Context, trackID uint, req UnitRequest) (*model.ContentUnit, error) {
	if _, err := s.TrackRepo.FindTrackByID(ctx, trackID); err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrTrackNotFound
		}
		return nil, util.Transient(err)
	}
	content, err := s.validateUnit(ctx, req)
	if err != nil {
		return nil, err
	}

	unit := &model.ContentUnit{
		TrackID:  trackID,
		Ordinal:  req.Ordinal,
		Kind:     req.Kind,
		Title:    strings.TrimSpace(req.Title),
		RewardXP: req.RewardXP,
		Content:  content,
	}
	if err := s.TrackRepo.CreateUnit(ctx, unit); err != nil {
		if util.IsUniqueViolation(err) {
			return nil, invalid("ordinal %d already used in track %d", req.Ordinal, trackID)
		}
		return nil, util.Transient(err)
	}
	s.Log.Info("unit added",
		zap.Uint("trackId", trackID),
		zap.Uint("unitId", unit.ID),
		zap.Int("ordinal", unit.Ordinal))
	return unit, nil
}

// UpdateUnit 只要有学员完成过该单元就不可再修改
func (s *ContentService) UpdateUnit(ctx context.Context, unitID uint, req UnitRequest) (*model.ContentUnit, error) {
	unit, err := loadUnit(ctx, s.TrackRepo, unitID)
	if err != nil {
		return nil, err
	}
	completed, err := s.ProgressRepo.CountCompletedForUnit(ctx, unitID)
	if err != nil {
		return nil, util.Transient(err)
	}
	if completed > 0 {
		return nil, util.ErrUnitImmutable
	}
	content, err := s.validateUnit(ctx, req)
	if err != nil {
		return nil, err
	}

	unit.Ordinal = req.Ordinal
	unit.Kind = req.Kind
	unit.Title = strings.TrimSpace(req.Title)
	unit.RewardXP = req.RewardXP
	unit.Content = content
	if err := s.TrackRepo.UpdateUnit(ctx, unit); err != nil {
		if util.IsUniqueViolation(err) {
			return nil, invalid("ordinal %d already used in track %d", req.Ordinal, unit.TrackID)
		}
		return nil, util.Transient(err)
	}
	return unit, nil
}

// PublishQuiz 发布新版本，已发布的版本保持不变
func (s *ContentService) PublishQuiz(ctx context.Context, req QuizRequest) (*model.QuizDefinition, error) {
	quiz := &model.QuizDefinition{
		Slug:         strings.TrimSpace(req.Slug),
		Title:        strings.TrimSpace(req.Title),
		PassingScore: req.PassingScore,
		Questions:    datatypes.JSONSlice[model.QuizQuestion](req.Questions),
	}
	if err := quiz.Validate(); err != nil {
		return nil, invalid("%v", err)
	}

	for attempt := 0; attempt < publishRetryLimit; attempt++ {
		latest, err := s.QuizRepo.LatestVersion(ctx, quiz.Slug)
		if err != nil {
			return nil, util.Transient(err)
		}
		quiz.ID = 0
		quiz.Version = latest + 1
		err = s.QuizRepo.Create(ctx, quiz)
		if err == nil {
			s.Log.Info("quiz published", zap.String("slug", quiz.Slug), zap.Int("version", quiz.Version))
			return quiz, nil
		}
		if !util.IsUniqueViolation(err) {
			return nil, util.Transient(err)
		}
	}
	return nil, util.Transient(fmt.Errorf("quiz %q: concurrent publish did not settle", quiz.Slug))
}
