package service

import (
	"testing"

	"skillpath_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func units(ids ...uint) []model.ContentUnit {
	out := make([]model.ContentUnit, len(ids))
	for i, id := range ids {
		out[i] = model.ContentUnit{BaseModel: model.BaseModel{ID: id}, Ordinal: (i + 1) * 10}
	}
	return out
}

func TestComputeUnlocksFreshTrack(t *testing.T) {
	got := ComputeUnlocks(units(1, 2, 3), nil)
	assert.Equal(t, map[uint]model.ProgressStatus{
		1: model.StatusUnlocked,
		2: model.StatusLocked,
		3: model.StatusLocked,
	}, got)
}

func TestComputeUnlocksFollowsCompletion(t *testing.T) {
	got := ComputeUnlocks(units(1, 2, 3), map[uint]model.ProgressStatus{1: model.StatusCompleted})
	assert.Equal(t, model.StatusCompleted, got[1])
	assert.Equal(t, model.StatusUnlocked, got[2])
	assert.Equal(t, model.StatusLocked, got[3])
}

func TestComputeUnlocksNeverDowngradesCompleted(t *testing.T) {
	// 中间插入新单元后，后面已完成的单元保持 completed
	got := ComputeUnlocks(units(1, 9, 2), map[uint]model.ProgressStatus{
		1: model.StatusCompleted,
		2: model.StatusCompleted,
	})
	assert.Equal(t, model.StatusCompleted, got[1])
	assert.Equal(t, model.StatusUnlocked, got[9])
	assert.Equal(t, model.StatusCompleted, got[2])
}

func TestComputeUnlocksIgnoresStalePersistedLock(t *testing.T) {
	got := ComputeUnlocks(units(1, 2), map[uint]model.ProgressStatus{1: model.StatusLocked, 2: model.StatusUnlocked})
	assert.Equal(t, model.StatusUnlocked, got[1])
	assert.Equal(t, model.StatusLocked, got[2])
}

func TestComputeUnlocksMonotonic(t *testing.T) {
	us := units(1, 2, 3, 4)
	statuses := map[uint]model.ProgressStatus{}
	prev := ComputeUnlocks(us, statuses)
	for _, u := range us {
		statuses[u.ID] = model.StatusCompleted
		next := ComputeUnlocks(us, statuses)
		for id, before := range prev {
			if before == model.StatusCompleted {
				assert.Equal(t, model.StatusCompleted, next[id])
			}
			if before == model.StatusUnlocked {
				assert.NotEqual(t, model.StatusLocked, next[id])
			}
		}
		prev = next
	}
}

func TestTrackComplete(t *testing.T) {
	assert.False(t, TrackComplete(nil, nil))
	assert.False(t, TrackComplete(units(1, 2), map[uint]model.ProgressStatus{1: model.StatusCompleted}))
	assert.True(t, TrackComplete(units(1, 2), map[uint]model.ProgressStatus{1: model.StatusCompleted, 2: model.StatusCompleted}))
}
