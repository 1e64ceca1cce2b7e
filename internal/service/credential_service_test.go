package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	completed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first, err := env.credentials.Issue(ctx, IssueRequest{UserID: 1, TrackID: 2, RecipientName: "Ada", TrackTitle: "Go", CompletionDate: completed})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Len(t, first.Credential.VerificationHash, 64)

	second, err := env.credentials.Issue(ctx, IssueRequest{UserID: 1, TrackID: 2, RecipientName: "Renamed", TrackTitle: "Go 2"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Credential.ID, second.Credential.ID)
	assert.Equal(t, first.Credential.VerificationHash, second.Credential.VerificationHash)
	assert.Equal(t, "Ada", second.Credential.RecipientName)
}

func TestIssueConcurrentCreatesOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 单连接测试库会串行化写入；真正的并发插入冲突由 credentials 的唯一索引拦截，见 TestCredentialUniquePerUserTrack
	const workers = 8
	results := make([]*IssueResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.credentials.Issue(ctx, IssueRequest{UserID: 5, TrackID: 6, RecipientName: "Ada", TrackTitle: "Go"})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		assert.Equal(t, results[0].Credential.VerificationHash, results[i].Credential.VerificationHash)
	}
	assert.Equal(t, 1, created)

	var count int64
	require.NoError(t, env.db.Model(&model.Credential{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIssueRegeneratesHashOnCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.credentials.now = func() time.Time { return fixed }

	// 另一张证书已占用学员 2 第一次尝试会生成的 hash
	colliding := mustHash(t, env, 2, 1, fixed)
	require.NoError(t, env.db.Create(&model.Credential{
		UserID: 1, TrackID: 1, RecipientName: "Ada", TrackTitle: "Go",
		VerificationHash: colliding, CompletionDate: fixed, IssuedAt: fixed,
	}).Error)

	env.credentials.random = &sequenceReader{}
	issued, err := env.credentials.Issue(ctx, IssueRequest{UserID: 2, TrackID: 1, RecipientName: "Bob", TrackTitle: "Go"})
	require.NoError(t, err)
	assert.True(t, issued.Created)
	assert.NotEqual(t, colliding, issued.Credential.VerificationHash)
}

func TestIssueGivesUpAfterRetryLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.credentials.now = func() time.Time { return fixed }
	colliding := mustHash(t, env, 2, 1, fixed)
	require.NoError(t, env.db.Create(&model.Credential{
		UserID: 1, TrackID: 1, RecipientName: "Ada", TrackTitle: "Go",
		VerificationHash: colliding, CompletionDate: fixed, IssuedAt: fixed,
	}).Error)

	// 盐值恒为零，每次都碰撞
	env.credentials.random = zeroReader{}
	_, err := env.credentials.Issue(ctx, IssueRequest{UserID: 2, TrackID: 1, RecipientName: "Bob", TrackTitle: "Go"})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrTransientStore)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// sequenceReader 第一次返回全零盐值，之后返回递增字节
type sequenceReader struct{ n byte }

func (r *sequenceReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
	}
	r.n++
	return len(p), nil
}

func mustHash(t *testing.T, env *testEnv, userID, trackID uint, at time.Time) string {
	t.Helper()
	saved := env.credentials.random
	env.credentials.random = bytes.NewReader(make([]byte, saltSize))
	defer func() { env.credentials.random = saved }()
	h, err := env.credentials.verificationHash(userID, trackID, at)
	require.NoError(t, err)
	return h
}

func TestVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.credentials.Issue(ctx, IssueRequest{UserID: 1, TrackID: 1, RecipientName: "Ada", TrackTitle: "Go"})
	require.NoError(t, err)

	view, err := env.credentials.Verify(ctx, issued.Credential.VerificationHash)
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.RecipientName)
	assert.Equal(t, "Go", view.TrackTitle)

	_, err = env.credentials.Verify(ctx, "not-a-hash")
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = env.credentials.Verify(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, util.ErrCredentialNotFound)
}

func TestVerifySurvivesCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	issued, err := env.credentials.Issue(context.Background(), IssueRequest{UserID: 1, TrackID: 1, RecipientName: "Ada", TrackTitle: "Go"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	view, err := env.credentials.Verify(ctx, issued.Credential.VerificationHash)
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.RecipientName)
}

func newCachedCredentialService(t *testing.T, env *testEnv) (*CredentialService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCredentialService(env.credentials.Repo, rdb, &env.cfg.Credentials, zap.NewNop()), mr
}

func TestVerifyUsesRedisCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, mr := newCachedCredentialService(t, env)

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, TrackID: 1, RecipientName: "Ada", TrackTitle: "Go"})
	require.NoError(t, err)
	hash := issued.Credential.VerificationHash
	key := verifyCachePrefix + hash

	view, err := svc.Verify(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.RecipientName)
	require.True(t, mr.Exists(key))
	assert.Equal(t, env.cfg.Credentials.VerifyCacheTTL, mr.TTL(key))

	// 命中缓存时不再读库
	require.NoError(t, env.db.Exec("UPDATE credentials SET recipient_name = ? WHERE id = ?", "Changed", issued.Credential.ID).Error)
	view, err = svc.Verify(ctx, strings.ToUpper(hash))
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.RecipientName)

	// 损坏的缓存条目被忽略并重新写入
	require.NoError(t, mr.Set(key, "{not json"))
	view, err = svc.Verify(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "Changed", view.RecipientName)
	raw, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, raw, "Changed")

	// 未命中的哈希不写缓存
	missing := strings.Repeat("0", 64)
	_, err = svc.Verify(ctx, missing)
	assert.ErrorIs(t, err, util.ErrCredentialNotFound)
	assert.False(t, mr.Exists(verifyCachePrefix+missing))
}

func TestVerifyFallsBackWhenRedisDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, mr := newCachedCredentialService(t, env)

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 2, TrackID: 3, RecipientName: "Grace", TrackTitle: "Go"})
	require.NoError(t, err)
	mr.Close()

	view, err := svc.Verify(ctx, issued.Credential.VerificationHash)
	require.NoError(t, err)
	assert.Equal(t, "Grace", view.RecipientName)
}
