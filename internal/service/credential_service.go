package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"skillpath_backend/internal/config"
	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const (
	saltSize          = 32
	verifyCachePrefix = "credential:verify:"
)

var errHashCollision = errors.New("verification hash collision")

type CredentialService struct {
	Repo   *repository.CredentialRepository
	Redis  *redis.Client
	Config *config.CredentialConfig
	Log    *zap.Logger

	group  singleflight.Group
	now    func() time.Time
	random io.Reader
}

func NewCredentialService(repo *repository.CredentialRepository, rdb *redis.Client, cfg *config.CredentialConfig, log *zap.Logger) *CredentialService {
	return &CredentialService{
		Repo:   repo,
		Redis:  rdb,
		Config: cfg,
		Log:    log.Named("credential"),
		now:    time.Now,
		random: rand.Reader,
	}
}

type IssueRequest struct {
	UserID         uint
	TrackID        uint
	RecipientName  string
	TrackTitle     string
	CompletionDate time.Time
}

// IssueResult Created=false 表示返回的是已存在的证书
type IssueResult struct {
	Credential *model.Credential
	Created    bool
}

// CredentialVerification 公开验证接口返回的字段
type CredentialVerification struct {
	RecipientName  string    `json:"recipientName"`
	TrackTitle     string    `json:"trackTitle"`
	CompletionDate time.Time `json:"completionDate"`
	IssuedAt       time.Time `json:"issuedAt"`
}

// Issue 每个 (user, track) 最多一张证书；并发签发时唯一约束决定胜者
func (s *CredentialService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	existing, err := s.Repo.FindByUserTrack(ctx, req.UserID, req.TrackID)
	if err != nil {
		return nil, util.Transient(err)
	}
	if existing != nil {
		return &IssueResult{Credential: existing, Created: false}, nil
	}

	limit := s.Config.HashRetryLimit
	if limit < 1 {
		limit = 1
	}

	for attempt := 0; attempt < limit; attempt++ {
		now := s.now()
		hash, err := s.verificationHash(req.UserID, req.TrackID, now)
		if err != nil {
			return nil, err
		}

		completion := req.CompletionDate
		if completion.IsZero() {
			completion = now
		}
		cred := &model.Credential{
			UserID:           req.UserID,
			TrackID:          req.TrackID,
			RecipientName:    req.RecipientName,
			TrackTitle:       req.TrackTitle,
			VerificationHash: hash,
			CompletionDate:   completion,
			IssuedAt:         now,
		}

		err = s.Repo.Create(ctx, cred)
		if err == nil {
			monitoring.CredentialsIssued.Inc()
			s.Log.Info("credential issued",
				zap.Uint("userId", req.UserID),
				zap.Uint("trackId", req.TrackID),
				zap.Uint("credentialId", cred.ID))
			return &IssueResult{Credential: cred, Created: true}, nil
		}
		if !util.IsUniqueViolation(err) {
			return nil, util.Transient(err)
		}

		// 冲突可能来自 (user, track)：并发签发已成功
		winner, findErr := s.Repo.FindByUserTrack(ctx, req.UserID, req.TrackID)
		if findErr != nil {
			return nil, util.Transient(findErr)
		}
		if winner != nil {
			return &IssueResult{Credential: winner, Created: false}, nil
		}
		s.Log.Warn("verification hash collision, regenerating",
			zap.Uint("userId", req.UserID),
			zap.Uint("trackId", req.TrackID),
			zap.Int("attempt", attempt+1))
	}
	return nil, util.Transient(fmt.Errorf("%w after %d attempts", errHashCollision, limit))
}

// verificationHash BLAKE2b-256(user ‖ track ‖ time ‖ salt)，十六进制
func (s *CredentialService) verificationHash(userID, trackID uint, at time.Time) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(trackID))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))
	h.Write(buf[:])
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func validHash(hash string) bool {
	if len(hash) != blake2b.Size256*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// Verify 公开查询；证书不可变，结果可长期缓存
func (s *CredentialService) Verify(ctx context.Context, hash string) (*CredentialVerification, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !validHash(hash) {
		return nil, util.ErrCredentialNotFound
	}

	if cached := s.cacheGet(ctx, hash); cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(hash, func() (interface{}, error) {
		// 合并后的查询由所有等待者共享，不随第一个调用方取消
		ctx := context.WithoutCancel(ctx)
		cred, err := s.Repo.FindByHash(ctx, hash)
		if err != nil {
			if util.IsRecordNotFound(err) {
				return nil, util.ErrCredentialNotFound
			}
			return nil, util.Transient(err)
		}
		view := &CredentialVerification{
			RecipientName:  cred.RecipientName,
			TrackTitle:     cred.TrackTitle,
			CompletionDate: cred.CompletionDate,
			IssuedAt:       cred.IssuedAt,
		}
		s.cacheSet(ctx, hash, view)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CredentialVerification), nil
}

func (s *CredentialService) ListForLearner(ctx context.Context, userID uint) ([]model.Credential, error) {
	creds, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, util.Transient(err)
	}
	return creds, nil
}

func (s *CredentialService) cacheGet(ctx context.Context, hash string) *CredentialVerification {
	if s.Redis == nil {
		return nil
	}
	raw, err := s.Redis.Get(ctx, verifyCachePrefix+hash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.Log.Warn("verification cache read failed", zap.Error(err))
		}
		return nil
	}
	var view CredentialVerification
	if err := json.Unmarshal(raw, &view); err != nil {
		s.Log.Warn("verification cache entry corrupt", zap.Error(err))
		return nil
	}
	return &view
}

func (s *CredentialService) cacheSet(ctx context.Context, hash string, view *CredentialVerification) {
	if s.Redis == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, verifyCachePrefix+hash, raw, s.Config.VerifyCacheTTL).Err(); err != nil {
		s.Log.Warn("verification cache write failed", zap.Error(err))
	}
}
