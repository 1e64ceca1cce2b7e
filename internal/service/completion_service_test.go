package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/testutil"
	"skillpath_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countRows(t *testing.T, env *testEnv, m interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(m).Where(where, args...).Count(&n).Error)
	return n
}

func TestFourUnitTrackScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	testutil.CreateQuiz(t, env.db, "go-basics", 10, nil)
	track, units := testutil.CreateTrack(t, env.db, "Go Foundations",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 10},
		testutil.UnitSpec{Kind: model.KindCoding, RewardXP: 20},
		testutil.UnitSpec{Kind: model.KindQuiz, RewardXP: 30, QuizSlug: "go-basics"},
		testutil.UnitSpec{Kind: model.KindInterview, RewardXP: 40},
	)

	// 未解锁的单元不可提交
	_, err := env.completion.CompleteUnit(ctx, learner.ID, units[1].ID, nil)
	assert.ErrorIs(t, err, util.ErrUnitLocked)

	res, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.XPAwarded)
	assert.False(t, res.AlreadyAwarded)
	assert.Contains(t, res.UnlockedUnitIDs, units[1].ID)
	firstCompletedAt := *res.CompletedAt

	again, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.NoError(t, err)
	assert.True(t, again.AlreadyAwarded)
	assert.Equal(t, 0, again.XPAwarded)
	assert.Equal(t, 10, again.TotalXP)
	assert.True(t, firstCompletedAt.Equal(*again.CompletedAt))

	_, err = env.completion.CompleteUnit(ctx, learner.ID, units[1].ID, util.IntPtr(95))
	require.NoError(t, err)

	// 测验单元只能通过提交测验完成
	_, err = env.completion.CompleteUnit(ctx, learner.ID, units[2].ID, nil)
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)

	failed, err := env.completion.SubmitQuiz(ctx, learner.ID, units[2].ID, answersCorrect(10, 7))
	require.NoError(t, err)
	assert.False(t, failed.Passed)
	assert.Equal(t, 70, failed.Score)
	assert.Nil(t, failed.Completion)
	rec, err := env.progress.Get(ctx, learner.ID, units[2].ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEqual(t, model.StatusCompleted, rec.Status)

	// 最后一个单元仍然锁定
	_, err = env.completion.CompleteUnit(ctx, learner.ID, units[3].ID, nil)
	assert.ErrorIs(t, err, util.ErrUnitLocked)

	passed, err := env.completion.SubmitQuiz(ctx, learner.ID, units[2].ID, answersCorrect(10, 8))
	require.NoError(t, err)
	assert.True(t, passed.Passed)
	require.NotNil(t, passed.Completion)
	assert.Equal(t, 30, passed.Completion.XPAwarded)
	assert.Equal(t, 80, *passed.Completion.Score)
	assert.EqualValues(t, 2, countRows(t, env, &model.QuizAttempt{}, "user_id = ?", learner.ID))

	final, err := env.completion.CompleteUnit(ctx, learner.ID, units[3].ID, nil)
	require.NoError(t, err)
	assert.True(t, final.TrackCompleted)
	assert.False(t, final.CredentialPending)
	require.NotNil(t, final.Credential)
	assert.Equal(t, 100, final.TotalXP)
	hash := final.Credential.VerificationHash

	// 重复完成不会产生新的证书
	for i := 0; i < 3; i++ {
		retry, err := env.completion.CompleteUnit(ctx, learner.ID, units[3].ID, nil)
		require.NoError(t, err)
		assert.True(t, retry.AlreadyAwarded)
		require.NotNil(t, retry.Credential)
		assert.Equal(t, hash, retry.Credential.VerificationHash)
	}
	assert.EqualValues(t, 1, countRows(t, env, &model.Credential{}, "user_id = ? AND track_id = ?", learner.ID, track.ID))
	assert.EqualValues(t, 1, countRows(t, env, &model.CredentialTask{}, "user_id = ? AND track_id = ?", learner.ID, track.ID))
	assert.EqualValues(t, 4, countRows(t, env, &model.XPLedgerEntry{}, "user_id = ?", learner.ID))

	view, err := env.progress.TrackProgress(ctx, learner.ID, track.ID)
	require.NoError(t, err)
	assert.True(t, view.Completed)
	assert.Equal(t, 4, view.CompletedUnits)
}

func TestQuizAttemptRecordedWhenFailing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	testutil.CreateQuiz(t, env.db, "quiz", 10, nil)
	_, units := testutil.CreateTrack(t, env.db, "Quiz only",
		testutil.UnitSpec{Kind: model.KindQuiz, RewardXP: 50, QuizSlug: "quiz"},
	)

	res, err := env.completion.SubmitQuiz(ctx, learner.ID, units[0].ID, answersCorrect(10, 7))
	require.NoError(t, err)
	assert.False(t, res.Passed)

	assert.EqualValues(t, 1, countRows(t, env, &model.QuizAttempt{}, "user_id = ? AND passed = ?", learner.ID, false))
	assert.EqualValues(t, 0, countRows(t, env, &model.XPLedgerEntry{}, "user_id = ?", learner.ID))
	rec, err := env.progress.Get(ctx, learner.ID, units[0].ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = env.completion.SubmitQuiz(ctx, learner.ID, units[0].ID, answersCorrect(10, 9))
	require.NoError(t, err)
	attempts, err := env.completion.ListAttempts(ctx, learner.ID, units[0].ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 70, attempts[0].Score)
	assert.False(t, attempts[0].Passed)
	assert.Equal(t, 90, attempts[1].Score)
	assert.True(t, attempts[1].Passed)
	assert.Equal(t, 1, attempts[1].QuizVersion)
}

func TestListAttemptsRejectsNonQuizUnit(t *testing.T) {
	env := newTestEnv(t)
	learner := testutil.CreateUser(t, env.db, "ada")
	_, units := testutil.CreateTrack(t, env.db, "Reading", testutil.UnitSpec{Kind: model.KindReading})

	_, err := env.completion.ListAttempts(context.Background(), learner.ID, units[0].ID)
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)
	_, err = env.completion.ListAttempts(context.Background(), learner.ID, 999)
	assert.ErrorIs(t, err, util.ErrUnitNotFound)
}

func TestSubmitQuizUsesLatestVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")

	q := QuizRequest{Slug: "versioned", Title: "Versioned", Questions: []model.QuizQuestion{
		{Type: model.QuestionTrueFalse, Prompt: "p", CorrectBool: true},
	}}
	v1, err := env.content.PublishQuiz(ctx, q)
	require.NoError(t, err)
	q.Questions[0].CorrectBool = false
	v2, err := env.content.PublishQuiz(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)

	_, units := testutil.CreateTrack(t, env.db, "Versioned",
		testutil.UnitSpec{Kind: model.KindQuiz, RewardXP: 5, QuizSlug: "versioned"},
	)
	res, err := env.completion.SubmitQuiz(ctx, learner.ID, units[0].ID, Answers{0: false})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, v2.ID, res.QuizID)
	assert.Equal(t, 2, res.QuizVersion)
}

func TestRenameKeepsCredentialSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "Ada Lovelace")
	_, units := testutil.CreateTrack(t, env.db, "Short track",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
	)

	res, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Credential)

	_, err = env.users.UpdateProfile(ctx, learner.ID, ProfileRequest{Name: "Ada King"})
	require.NoError(t, err)

	view, err := env.credentials.Verify(ctx, res.Credential.VerificationHash)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", view.RecipientName)
	assert.Equal(t, "Short track", view.TrackTitle)
}

func TestRenderingFailureLeavesTaskPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	track, units := testutil.CreateTrack(t, env.db, "Render",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
	)
	env.renderer.setFail(true)

	res, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.NoError(t, err)
	assert.True(t, res.TrackCompleted)
	assert.True(t, res.CredentialPending)
	assert.Equal(t, 5, res.XPAwarded)

	task, err := env.outbox.TaskRepo.FindByUserTrack(ctx, learner.ID, track.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Contains(t, task.LastError, "render")
	require.NotNil(t, task.CredentialID)

	// 到期前不会重试
	stats, err := env.outbox.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)

	env.renderer.setFail(false)
	env.outbox.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	stats, err = env.outbox.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ProcessStats{Processed: 1, Succeeded: 1}, stats)

	task, err = env.outbox.TaskRepo.FindByUserTrack(ctx, learner.ID, track.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, task.Status)
	assert.NotEmpty(t, task.ArtifactURL)
	assert.EqualValues(t, 1, countRows(t, env, &model.Credential{}, "user_id = ?", learner.ID))
}

type blockingRenderer struct{}

func (blockingRenderer) Render(ctx context.Context, doc CertificateDocument) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSlowRendererDoesNotBlockCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	track, units := testutil.CreateTrack(t, env.db, "Slow render",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
	)
	cfg := testConfig()
	cfg.Credentials.FulfilTimeout = 100 * time.Millisecond
	env.outbox.UpdateConfig(cfg)
	env.outbox.Renderer = blockingRenderer{}

	started := time.Now()
	res, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 3*time.Second)
	assert.True(t, res.TrackCompleted)
	assert.True(t, res.CredentialPending)
	require.NotNil(t, res.Credential)
	assert.Equal(t, 5, res.XPAwarded)

	// 超时后任务失败仍被记录
	task, err := env.outbox.TaskRepo.FindByUserTrack(ctx, learner.ID, track.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Contains(t, task.LastError, "render")
	assert.Contains(t, task.LastError, context.DeadlineExceeded.Error())
}

func TestLatestCompletionErrorRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	track, units := testutil.CreateTrack(t, env.db, "Latest",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
	)
	require.NoError(t, env.db.Callback().Query().After("gorm:query").Register("test:fail_latest_completion", func(db *gorm.DB) {
		if strings.Contains(db.Statement.SQL.String(), "completed_at DESC") {
			_ = db.AddError(errors.New("disk I/O error"))
		}
	}))

	_, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrTransientStore)

	assert.EqualValues(t, 0, countRows(t, env, &model.CredentialTask{}, "user_id = ? AND track_id = ?", learner.ID, track.ID))
	assert.EqualValues(t, 0, countRows(t, env, &model.XPLedgerEntry{}, "user_id = ?", learner.ID))
	rec, err := env.progress.Get(ctx, learner.ID, units[0].ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestXPFailureRollsBackProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	_, units := testutil.CreateTrack(t, env.db, "Broken ledger",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 5},
	)
	require.NoError(t, env.db.Migrator().DropTable(&model.XPLedgerEntry{}))

	_, err := env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrTransientStore)

	rec, err := env.progress.Get(ctx, learner.ID, units[0].ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConcurrentDuplicateCompletions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	_, units := testutil.CreateTrack(t, env.db, "Race",
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 25},
		testutil.UnitSpec{Kind: model.KindReading, RewardXP: 25},
	)

	// 测试库只有一个连接，事务在此被串行化；存储层的并发重复由唯一索引兜底，见 repository 包的测试
	const workers = 6
	results := make([]*CompletionResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.completion.CompleteUnit(ctx, learner.ID, units[0].ID, util.IntPtr(50+i))
		}(i)
	}
	wg.Wait()

	awarded := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyAwarded {
			awarded++
		}
	}
	assert.Equal(t, 1, awarded)
	assert.EqualValues(t, 1, countRows(t, env, &model.XPLedgerEntry{}, "user_id = ?", learner.ID))
	assert.EqualValues(t, 1, countRows(t, env, &model.ProgressRecord{}, "user_id = ? AND unit_id = ?", learner.ID, units[0].ID))

	total, err := env.xp.TotalXP(ctx, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
}

func TestCompleteUnitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.completion.CompleteUnit(ctx, 1, 999, nil)
	assert.ErrorIs(t, err, util.ErrUnitNotFound)

	_, err = env.completion.CompleteUnit(ctx, 1, 1, util.IntPtr(101))
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)
}
