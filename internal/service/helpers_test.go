package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"skillpath_backend/internal/config"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/testutil"
	"skillpath_backend/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, doc CertificateDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", util.ErrRenderingUnavailable
	}
	return "memory://credentials/" + doc.VerificationHash + ".png", nil
}

func (f *fakeRenderer) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	completion  *CompletionService
	credentials *CredentialService
	outbox      *CredentialOutboxService
	content     *ContentService
	progress    *ProgressService
	xp          *XPService
	users       *UserService
	renderer    *fakeRenderer
}

func testConfig() *config.Config {
	return &config.Config{
		Progression: config.ProgressionConfig{
			DefaultPassingScore: 80,
			TxTimeout:           5 * time.Second,
		},
		Credentials: config.CredentialConfig{
			HashRetryLimit:  3,
			VerifyCacheTTL:  time.Hour,
			OutboxInterval:  time.Minute,
			OutboxBatchSize: 50,
			FulfilTimeout:   5 * time.Second,
			IssuerName:      "SkillPath",
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenTestDB(t)
	cfg := testConfig()
	log := zap.NewNop()

	userRepo := repository.NewUserRepository(db)
	trackRepo := repository.NewTrackRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	xpRepo := repository.NewXPRepository(db)
	credRepo := repository.NewCredentialRepository(db)
	taskRepo := repository.NewCredentialTaskRepository(db)

	renderer := &fakeRenderer{}
	credentials := NewCredentialService(credRepo, nil, &cfg.Credentials, log)
	outbox := NewCredentialOutboxService(taskRepo, progressRepo, userRepo, trackRepo, credentials, renderer, &cfg.Credentials, log)

	return &testEnv{
		db:          db,
		cfg:         cfg,
		completion:  NewCompletionService(db, trackRepo, quizRepo, progressRepo, xpRepo, taskRepo, outbox, &cfg.Progression, log),
		credentials: credentials,
		outbox:      outbox,
		content:     NewContentService(trackRepo, quizRepo, progressRepo, log),
		progress:    NewProgressService(db, trackRepo, progressRepo, log),
		xp:          NewXPService(xpRepo, log),
		users:       NewUserService(userRepo, log),
		renderer:    renderer,
	}
}
