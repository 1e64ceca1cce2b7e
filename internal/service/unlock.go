package service

import "skillpath_backend/internal/model"

// ComputeUnlocks 按 ordinal 顺序单次遍历得出每个单元的可访问状态。
// units 必须已按 ordinal 升序；已完成的单元永远保持 completed。
func ComputeUnlocks(units []model.ContentUnit, statuses map[uint]model.ProgressStatus) map[uint]model.ProgressStatus {
	projection := make(map[uint]model.ProgressStatus, len(units))
	prevCompleted := true
	for _, unit := range units {
		status := model.StatusLocked
		switch {
		case statuses[unit.ID] == model.StatusCompleted:
			status = model.StatusCompleted
		case prevCompleted:
			status = model.StatusUnlocked
		}
		projection[unit.ID] = status
		prevCompleted = status == model.StatusCompleted
	}
	return projection
}

// TrackComplete 空路径永远不算完成
func TrackComplete(units []model.ContentUnit, statuses map[uint]model.ProgressStatus) bool {
	if len(units) == 0 {
		return false
	}
	for _, unit := range units {
		if statuses[unit.ID] != model.StatusCompleted {
			return false
		}
	}
	return true
}

func statusIndex(records []model.ProgressRecord) map[uint]model.ProgressStatus {
	statuses := make(map[uint]model.ProgressStatus, len(records))
	for _, rec := range records {
		statuses[rec.UnitID] = rec.Status
	}
	return statuses
}
