package service

import (
	"context"
	"testing"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestXPServiceDoubleAward(t *testing.T) {
	db := testutil.OpenTestDB(t)
	svc := NewXPService(repository.NewXPRepository(db), zap.NewNop())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "ada")

	first, err := svc.Award(ctx, user.ID, 150, model.SourceUnitCompletion, 1)
	require.NoError(t, err)
	assert.Equal(t, AwardResult{Awarded: true, Amount: 150}, first)

	second, err := svc.Award(ctx, user.ID, 150, model.SourceUnitCompletion, 1)
	require.NoError(t, err)
	assert.Equal(t, AwardResult{Awarded: false, Amount: 0}, second)

	_, err = svc.Award(ctx, user.ID, 100, model.SourceUnitCompletion, 2)
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, &XPSummary{TotalXP: 250, CurrentLevel: 2, NextLevelXP: 400}, summary)
}

func TestXPServiceHistoryNewestFirst(t *testing.T) {
	db := testutil.OpenTestDB(t)
	svc := NewXPService(repository.NewXPRepository(db), zap.NewNop())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "ada")
	other := testutil.CreateUser(t, db, "grace")

	for i := uint(1); i <= 3; i++ {
		_, err := svc.Award(ctx, user.ID, int(i)*10, model.SourceUnitCompletion, i)
		require.NoError(t, err)
	}
	_, err := svc.Award(ctx, other.ID, 99, model.SourceUnitCompletion, 1)
	require.NoError(t, err)

	entries, err := svc.History(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint(3), entries[0].SourceID)
	assert.Equal(t, 30, entries[0].Amount)
	assert.Equal(t, uint(2), entries[1].SourceID)

	all, err := svc.History(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestXPServiceRejectsNegativeAmount(t *testing.T) {
	db := testutil.OpenTestDB(t)
	svc := NewXPService(repository.NewXPRepository(db), zap.NewNop())

	_, err := svc.Award(context.Background(), 1, -5, model.SourceUnitCompletion, 1)
	require.Error(t, err)
}

func TestCalculateLevel(t *testing.T) {
	level, next := calculateLevel(0)
	assert.Equal(t, 1, level)
	assert.Equal(t, 200, next)

	level, next = calculateLevel(200)
	assert.Equal(t, 2, level)
	assert.Equal(t, 400, next)
}
