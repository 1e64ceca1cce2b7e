package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"skillpath_backend/internal/config"
	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const (
	baseRetryDelay = time.Minute
	maxRetryDelay  = time.Hour
	maxErrorLength = 1000

	defaultOutboxInterval = time.Minute
	defaultOutboxBatch    = 50
	defaultFulfilTimeout  = 10 * time.Second
	storeTimeout          = 5 * time.Second
)

// CredentialOutboxService 处理提交后的证书签发与渲染；失败的任务保留并退避重试，不会丢弃
type CredentialOutboxService struct {
	TaskRepo     *repository.CredentialTaskRepository
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	TrackRepo    *repository.TrackRepository
	Credentials  *CredentialService
	Renderer     CertificateRenderer
	Log          *zap.Logger

	mu            sync.RWMutex
	interval      time.Duration
	batchSize     int
	fulfilTimeout time.Duration
	now           func() time.Time
}

func NewCredentialOutboxService(
	taskRepo *repository.CredentialTaskRepository,
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	trackRepo *repository.TrackRepository,
	credentials *CredentialService,
	renderer CertificateRenderer,
	cfg *config.CredentialConfig,
	log *zap.Logger,
) *CredentialOutboxService {
	s := &CredentialOutboxService{
		TaskRepo:     taskRepo,
		ProgressRepo: progressRepo,
		UserRepo:     userRepo,
		TrackRepo:    trackRepo,
		Credentials:  credentials,
		Renderer:     renderer,
		Log:          log.Named("credential-outbox"),
		now:          time.Now,
	}
	s.apply(cfg)
	return s
}

// FulfillResult Pending=true 表示证书或证书文件尚未就绪，稍后由后台重试
type FulfillResult struct {
	Credential  *model.Credential
	ArtifactURL string
	Pending     bool
}

type ProcessStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ReconcileStats struct {
	Enqueued int          `json:"enqueued"`
	Pending  ProcessStats `json:"pending"`
}

// UpdateConfig 热更新轮询间隔、批量大小与单次签发超时
func (s *CredentialOutboxService) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(&cfg.Credentials)
	s.Log.Info("outbox settings updated",
		zap.Duration("interval", s.interval),
		zap.Int("batchSize", s.batchSize),
		zap.Duration("fulfilTimeout", s.fulfilTimeout))
}

// apply 非正值回退到默认值，time.NewTimer/Reset 不能拿到 0
func (s *CredentialOutboxService) apply(cfg *config.CredentialConfig) {
	s.interval = cfg.OutboxInterval
	if s.interval <= 0 {
		s.interval = defaultOutboxInterval
	}
	s.batchSize = cfg.OutboxBatchSize
	if s.batchSize < 1 {
		s.batchSize = defaultOutboxBatch
	}
	s.fulfilTimeout = cfg.FulfilTimeout
	if s.fulfilTimeout <= 0 {
		s.fulfilTimeout = defaultFulfilTimeout
	}
}

func (s *CredentialOutboxService) settings() (time.Duration, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval, s.batchSize
}

func (s *CredentialOutboxService) timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fulfilTimeout
}

// storeContext 记录任务结果不受调用方取消或超时影响
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// FulfillFor 完成事务提交后调用；任务已完成时直接返回已有证书
func (s *CredentialOutboxService) FulfillFor(ctx context.Context, userID, trackID uint) (*FulfillResult, error) {
	task, err := s.TaskRepo.FindByUserTrack(ctx, userID, trackID)
	if err != nil {
		if util.IsRecordNotFound(err) {
			return nil, fmt.Errorf("credential task for user %d track %d: %w", userID, trackID, util.ErrNotFound)
		}
		return nil, util.Transient(err)
	}
	return s.fulfill(ctx, task)
}

func (s *CredentialOutboxService) fulfill(ctx context.Context, task *model.CredentialTask) (*FulfillResult, error) {
	if task.Status == model.TaskDone {
		cred, err := s.Credentials.Repo.FindByUserTrack(ctx, task.UserID, task.TrackID)
		if err != nil {
			return nil, util.Transient(err)
		}
		return &FulfillResult{Credential: cred, ArtifactURL: task.ArtifactURL}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	user, err := s.UserRepo.FindByID(ctx, task.UserID)
	if err != nil {
		return s.fail(ctx, task, nil, "load-user", err)
	}
	track, err := s.TrackRepo.FindTrackByID(ctx, task.TrackID)
	if err != nil {
		return s.fail(ctx, task, nil, "load-track", err)
	}

	// 姓名与标题在签发时快照
	issued, err := s.Credentials.Issue(ctx, IssueRequest{
		UserID:         task.UserID,
		TrackID:        task.TrackID,
		RecipientName:  user.Name,
		TrackTitle:     track.Title,
		CompletionDate: task.CompletedAt,
	})
	if err != nil {
		return s.fail(ctx, task, nil, "issue", err)
	}
	cred := issued.Credential

	url, err := s.Renderer.Render(ctx, CertificateDocument{
		RecipientName:    cred.RecipientName,
		TrackTitle:       cred.TrackTitle,
		VerificationHash: cred.VerificationHash,
		CompletionDate:   cred.CompletionDate.Format(util.DateFormat),
	})
	if err != nil {
		return s.fail(ctx, task, cred, "render", err)
	}

	storeCtx, storeCancel := storeContext(ctx)
	defer storeCancel()
	if err := s.TaskRepo.MarkDone(storeCtx, task.ID, cred.ID, url); err != nil {
		return &FulfillResult{Credential: cred, ArtifactURL: url, Pending: true}, util.Transient(err)
	}
	task.Status = model.TaskDone
	task.ArtifactURL = url
	return &FulfillResult{Credential: cred, ArtifactURL: url}, nil
}

// fail 记录失败并安排下一次尝试；返回的结果仍带上已签发的证书
func (s *CredentialOutboxService) fail(ctx context.Context, task *model.CredentialTask, cred *model.Credential, stage string, cause error) (*FulfillResult, error) {
	monitoring.CredentialTaskFailures.WithLabelValues(stage).Inc()

	task.Attempts++
	task.LastError = truncate(fmt.Sprintf("%s: %v", stage, cause), maxErrorLength)
	task.NextAttemptAt = s.now().Add(retryDelay(task.Attempts))
	if cred != nil {
		id := cred.ID
		task.CredentialID = &id
	}

	s.Log.Warn("credential task failed",
		zap.Uint("taskId", task.ID),
		zap.Uint("userId", task.UserID),
		zap.Uint("trackId", task.TrackID),
		zap.String("stage", stage),
		zap.Int("attempts", task.Attempts),
		zap.Time("nextAttemptAt", task.NextAttemptAt),
		zap.Error(cause))

	storeCtx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.TaskRepo.MarkFailed(storeCtx, task); err != nil {
		s.Log.Error("record credential task failure", zap.Uint("taskId", task.ID), zap.Error(err))
	}
	return &FulfillResult{Credential: cred, Pending: true}, fmt.Errorf("credential %s: %w", stage, cause)
}

// retryDelay 指数退避，上限一小时
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := baseRetryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ProcessPending 处理到期任务，单个任务失败不影响其余任务
func (s *CredentialOutboxService) ProcessPending(ctx context.Context, limit int) (ProcessStats, error) {
	var stats ProcessStats
	if limit <= 0 {
		_, limit = s.settings()
	}

	tasks, err := s.TaskRepo.FindDue(ctx, s.now(), limit)
	if err != nil {
		return stats, util.Transient(err)
	}

	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		if _, err := s.fulfill(ctx, &tasks[i]); err != nil {
			stats.Failed++
			continue
		}
		stats.Succeeded++
	}
	if stats.Processed > 0 {
		s.Log.Info("credential outbox processed",
			zap.Int("processed", stats.Processed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

// Reconcile 找出已完成路径但缺少任务的学员，补登任务后处理待办
func (s *CredentialOutboxService) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	_, batch := s.settings()

	pairs, err := s.ProgressRepo.CompletedTracksWithoutTask(ctx, batch)
	if err != nil {
		return stats, util.Transient(err)
	}

	for _, pair := range pairs {
		latest, err := s.ProgressRepo.LatestCompletion(ctx, pair.UserID, pair.TrackID)
		if err != nil {
			return stats, util.Transient(err)
		}
		completedAt := s.now()
		if latest.CompletedAt != nil {
			completedAt = *latest.CompletedAt
		}
		inserted, err := s.TaskRepo.Enqueue(ctx, &model.CredentialTask{
			UserID:        pair.UserID,
			TrackID:       pair.TrackID,
			CompletedAt:   completedAt,
			Status:        model.TaskPending,
			NextAttemptAt: s.now(),
		})
		if err != nil {
			return stats, util.Transient(err)
		}
		if inserted {
			stats.Enqueued++
			s.Log.Info("reconciled missing credential task",
				zap.Uint("userId", pair.UserID),
				zap.Uint("trackId", pair.TrackID))
		}
	}

	stats.Pending, err = s.ProcessPending(ctx, batch)
	return stats, err
}

// Run 后台轮询，ctx 取消后退出
func (s *CredentialOutboxService) Run(ctx context.Context) {
	interval, _ := s.settings()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.ProcessPending(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
				s.Log.Error("credential outbox error", zap.Error(err))
			}
			interval, _ = s.settings()
			timer.Reset(interval)
		}
	}
}
