package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"skillpath_backend/internal/config"
	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/monitoring"
	"skillpath_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CompletionService 提交测验与完成单元的编排：
// 评分 → 进度 → 经验值 → 解锁 → 证书任务入队（同一事务），提交后再签发与渲染证书
type CompletionService struct {
	DB           *gorm.DB
	TrackRepo    *repository.TrackRepository
	QuizRepo     *repository.QuizRepository
	ProgressRepo *repository.ProgressRepository
	XPRepo       *repository.XPRepository
	TaskRepo     *repository.CredentialTaskRepository
	Outbox       *CredentialOutboxService
	Config       *config.ProgressionConfig
	Log          *zap.Logger
	now          func() time.Time
}

func NewCompletionService(
	db *gorm.DB,
	trackRepo *repository.TrackRepository,
	quizRepo *repository.QuizRepository,
	progressRepo *repository.ProgressRepository,
	xpRepo *repository.XPRepository,
	taskRepo *repository.CredentialTaskRepository,
	outbox *CredentialOutboxService,
	cfg *config.ProgressionConfig,
	log *zap.Logger,
) *CompletionService {
	return &CompletionService{
		DB:           db,
		TrackRepo:    trackRepo,
		QuizRepo:     quizRepo,
		ProgressRepo: progressRepo,
		XPRepo:       xpRepo,
		TaskRepo:     taskRepo,
		Outbox:       outbox,
		Config:       cfg,
		Log:          log.Named("completion"),
		now:          time.Now,
	}
}

type CompletionResult struct {
	UnitID            uint                 `json:"unitId"`
	TrackID           uint                 `json:"trackId"`
	Status            model.ProgressStatus `json:"status"`
	Score             *int                 `json:"score"`
	CompletedAt       *time.Time           `json:"completedAt"`
	XPAwarded         int                  `json:"xpAwarded"`
	AlreadyAwarded    bool                 `json:"alreadyAwarded"`
	TotalXP           int                  `json:"totalXp"`
	UnlockedUnitIDs   []uint               `json:"unlockedUnitIds"`
	TrackCompleted    bool                 `json:"trackCompleted"`
	CredentialPending bool                 `json:"credentialPending"`
	Credential        *model.Credential    `json:"credential,omitempty"`
	ArtifactURL       string               `json:"artifactUrl,omitempty"`
}

type QuizSubmissionResult struct {
	AttemptID   uint                   `json:"attemptId"`
	QuizID      uint                   `json:"quizId"`
	QuizVersion int                    `json:"quizVersion"`
	Score       int                    `json:"score"`
	Passed      bool                   `json:"passed"`
	Threshold   int                    `json:"threshold"`
	PerQuestion []model.QuestionResult `json:"perQuestion"`
	Completion  *CompletionResult      `json:"completion,omitempty"`
}

// SubmitQuiz 评分并记录答题；通过时完成该单元
func (s *CompletionService) SubmitQuiz(ctx context.Context, userID, unitID uint, answers Answers) (result *QuizSubmissionResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "CompletionService.SubmitQuiz")
	defer func() {
		endSpan(span, err)
	}()
	span.SetAttributes(attribute.Int64("user.id", int64(userID)), attribute.Int64("unit.id", int64(unitID)))

	unit, err := loadUnit(ctx, s.TrackRepo, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Kind != model.KindQuiz {
		return nil, fmt.Errorf("%w: unit %d is not a quiz", util.ErrInvalidSubmission, unitID)
	}
	content, err := unit.DecodeContent()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidContent, err)
	}
	quizContent, ok := content.(model.QuizContent)
	if !ok {
		return nil, fmt.Errorf("%w: unit %d has no quiz reference", util.ErrInvalidContent, unitID)
	}
	quiz, err := s.QuizRepo.FindLatest(ctx, quizContent.QuizSlug)
	if err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrQuizNotFound
		}
		return nil, util.Transient(err)
	}

	if err := s.ensureAccessible(ctx, userID, unit); err != nil {
		return nil, err
	}

	scored := ScoreQuiz(quiz, answers, s.Config.DefaultPassingScore)

	// 答题记录独立写入，后续事务回滚也不会丢失
	rawAnswers, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidSubmission, err)
	}
	attempt := &model.QuizAttempt{
		UserID:      userID,
		QuizID:      quiz.ID,
		QuizVersion: quiz.Version,
		UnitID:      unit.ID,
		Answers:     datatypes.JSON(rawAnswers),
		Score:       scored.Score,
		Passed:      scored.Passed,
		PerQuestion: scored.PerQuestion,
	}
	if err := s.QuizRepo.CreateAttempt(ctx, attempt); err != nil {
		return nil, util.Transient(err)
	}
	monitoring.QuizAttempts.WithLabelValues(strconv.FormatBool(scored.Passed)).Inc()

	result = &QuizSubmissionResult{
		AttemptID:   attempt.ID,
		QuizID:      quiz.ID,
		QuizVersion: quiz.Version,
		Score:       scored.Score,
		Passed:      scored.Passed,
		Threshold:   scored.Threshold,
		PerQuestion: scored.PerQuestion,
	}
	if !scored.Passed {
		s.Log.Info("quiz attempt failed",
			zap.Uint("userId", userID),
			zap.Uint("unitId", unitID),
			zap.Int("score", scored.Score),
			zap.Int("threshold", scored.Threshold))
		return result, nil
	}

	score := scored.Score
	completion, err := s.complete(ctx, userID, unit, &score)
	if err != nil {
		return nil, err
	}
	result.Completion = completion
	return result, nil
}

// CompleteUnit 非测验单元的完成；测验单元必须走 SubmitQuiz
func (s *CompletionService) CompleteUnit(ctx context.Context, userID, unitID uint, score *int) (result *CompletionResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "CompletionService.CompleteUnit")
	defer func() {
		endSpan(span, err)
	}()
	span.SetAttributes(attribute.Int64("user.id", int64(userID)), attribute.Int64("unit.id", int64(unitID)))

	if score != nil && (*score < 0 || *score > 100) {
		return nil, fmt.Errorf("%w: score %d out of range", util.ErrInvalidSubmission, *score)
	}

	unit, err := loadUnit(ctx, s.TrackRepo, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Kind == model.KindQuiz {
		return nil, fmt.Errorf("%w: quiz units are completed by submitting the quiz", util.ErrInvalidSubmission)
	}
	if err := s.ensureAccessible(ctx, userID, unit); err != nil {
		return nil, err
	}
	return s.complete(ctx, userID, unit, score)
}

// ListAttempts 学员在某测验单元上的答题历史
func (s *CompletionService) ListAttempts(ctx context.Context, userID, unitID uint) ([]model.QuizAttempt, error) {
	unit, err := loadUnit(ctx, s.TrackRepo, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Kind != model.KindQuiz {
		return nil, fmt.Errorf("%w: unit %d is not a quiz", util.ErrInvalidSubmission, unitID)
	}
	attempts, err := s.QuizRepo.ListAttempts(ctx, userID, unitID)
	if err != nil {
		return nil, util.Transient(err)
	}
	return attempts, nil
}

// ensureAccessible 按投影判断单元是否已解锁
func (s *CompletionService) ensureAccessible(ctx context.Context, userID uint, unit *model.ContentUnit) error {
	units, err := s.TrackRepo.ListUnits(ctx, unit.TrackID)
	if err != nil {
		return util.Transient(err)
	}
	records, err := s.ProgressRepo.ListForTrack(ctx, userID, unit.TrackID)
	if err != nil {
		return util.Transient(err)
	}
	if ComputeUnlocks(units, statusIndex(records))[unit.ID] == model.StatusLocked {
		return fmt.Errorf("%w: unit %d", util.ErrUnitLocked, unit.ID)
	}
	return nil
}

func (s *CompletionService) complete(ctx context.Context, userID uint, unit *model.ContentUnit, score *int) (*CompletionResult, error) {
	result := &CompletionResult{
		UnitID:  unit.ID,
		TrackID: unit.TrackID,
	}
	now := s.now()

	txCtx, cancel := context.WithTimeout(ctx, s.Config.TxTimeout)
	defer cancel()

	started := time.Now()
	err := s.DB.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		progressRepo := s.ProgressRepo.WithTx(tx)

		rec, first, err := upsertCompleted(txCtx, progressRepo, unit, userID, score, now)
		if err != nil {
			return err
		}
		result.Status = rec.Status
		result.Score = rec.BestScore
		result.CompletedAt = rec.CompletedAt

		award, err := awardXP(txCtx, s.XPRepo.WithTx(tx), userID, unit.RewardXP, model.SourceUnitCompletion, unit.ID)
		if err != nil {
			return err
		}
		result.XPAwarded = award.Amount
		result.AlreadyAwarded = !award.Awarded
		if !award.Awarded {
			s.Log.Info("unit already rewarded",
				zap.Uint("userId", userID),
				zap.Uint("unitId", unit.ID),
				zap.Bool("firstCompletion", first))
		}

		units, err := s.TrackRepo.WithTx(tx).ListUnits(txCtx, unit.TrackID)
		if err != nil {
			return err
		}
		records, err := progressRepo.ListForTrack(txCtx, userID, unit.TrackID)
		if err != nil {
			return err
		}
		before := statusIndex(records)
		projection, err := syncTrack(txCtx, progressRepo, units, records, userID, unit.TrackID)
		if err != nil {
			return err
		}
		for _, u := range units {
			if projection[u.ID] == model.StatusUnlocked && before[u.ID] != model.StatusUnlocked {
				result.UnlockedUnitIDs = append(result.UnlockedUnitIDs, u.ID)
			}
		}

		if !TrackComplete(units, projection) {
			return nil
		}
		result.TrackCompleted = true

		completedAt := now
		latest, err := progressRepo.LatestCompletion(txCtx, userID, unit.TrackID)
		if err != nil && !util.IsRecordNotFound(err) {
			return err
		}
		if err == nil && latest.CompletedAt != nil {
			completedAt = *latest.CompletedAt
		}
		_, err = s.TaskRepo.WithTx(tx).Enqueue(txCtx, &model.CredentialTask{
			UserID:        userID,
			TrackID:       unit.TrackID,
			CompletedAt:   completedAt,
			Status:        model.TaskPending,
			NextAttemptAt: now,
		})
		return err
	})
	monitoring.CompletionDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		if util.IsDomainError(err) {
			return nil, err
		}
		s.Log.Warn("completion transaction rolled back",
			zap.Uint("userId", userID),
			zap.Uint("unitId", unit.ID),
			zap.Error(err))
		return nil, util.Transient(err)
	}

	monitoring.UnitCompletions.WithLabelValues(string(unit.Kind), strconv.FormatBool(!result.AlreadyAwarded)).Inc()

	if total, err := s.XPRepo.Total(ctx, userID); err == nil {
		result.TotalXP = total
	} else {
		s.Log.Warn("read total xp", zap.Uint("userId", userID), zap.Error(err))
	}

	if result.TrackCompleted {
		s.fulfillCredential(ctx, userID, result)
	}
	return result, nil
}

// fulfillCredential 在事务之外签发与渲染；失败只记录日志，任务留给后台重试
func (s *CompletionService) fulfillCredential(ctx context.Context, userID uint, result *CompletionResult) {
	fulfilled, err := s.Outbox.FulfillFor(ctx, userID, result.TrackID)
	if fulfilled != nil {
		result.Credential = fulfilled.Credential
		result.ArtifactURL = fulfilled.ArtifactURL
		result.CredentialPending = fulfilled.Pending
	}
	if err != nil {
		result.CredentialPending = true
		if !errors.Is(err, context.Canceled) {
			s.Log.Warn("credential fulfilment deferred",
				zap.Uint("userId", userID),
				zap.Uint("trackId", result.TrackID),
				zap.Error(err))
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
