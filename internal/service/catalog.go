package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Catalog seed 文件结构
type Catalog struct {
	Users   []CatalogUser  `yaml:"users"`
	Quizzes []QuizRequest  `yaml:"quizzes"`
	Tracks  []CatalogTrack `yaml:"tracks"`
}

type CatalogUser struct {
	Name  string         `yaml:"name"`
	Email string         `yaml:"email"`
	Role  model.UserRole `yaml:"role"`
}

type CatalogTrack struct {
	TrackRequest `yaml:",inline"`
	Units        []CatalogUnit `yaml:"units"`
}

type CatalogUnit struct {
	Ordinal  int                    `yaml:"ordinal"`
	Kind     model.UnitKind         `yaml:"kind"`
	Title    string                 `yaml:"title"`
	RewardXP int                    `yaml:"rewardXp"`
	Content  map[string]interface{} `yaml:"content"`
}

type ImportStats struct {
	Users   int `json:"users"`
	Quizzes int `json:"quizzes"`
	Tracks  int `json:"tracks"`
	Units   int `json:"units"`
}

func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}

// Importer 导入 seed 数据；重复导入时跳过已存在的用户、测验、路径和单元
type Importer struct {
	Content  *ContentService
	UserRepo *repository.UserRepository
	Log      *zap.Logger
}

func NewImporter(content *ContentService, userRepo *repository.UserRepository, log *zap.Logger) *Importer {
	return &Importer{Content: content, UserRepo: userRepo, Log: log.Named("catalog")}
}

func (im *Importer) Import(ctx context.Context, c *Catalog) (ImportStats, error) {
	var stats ImportStats

	for _, u := range c.Users {
		if _, err := im.UserRepo.FindByEmail(ctx, u.Email); err == nil {
			continue
		} else if !util.IsRecordNotFound(err) {
			return stats, err
		}
		role := u.Role
		if role == "" {
			role = model.Learner
		}
		if err := im.UserRepo.Create(ctx, &model.User{Name: u.Name, Email: u.Email, Role: role}); err != nil {
			return stats, fmt.Errorf("user %s: %w", u.Email, err)
		}
		stats.Users++
	}

	for _, q := range c.Quizzes {
		if _, err := im.Content.QuizRepo.FindLatest(ctx, q.Slug); err == nil {
			continue
		} else if !util.IsRecordNotFound(err) {
			return stats, err
		}
		if _, err := im.Content.PublishQuiz(ctx, q); err != nil {
			return stats, fmt.Errorf("quiz %s: %w", q.Slug, err)
		}
		stats.Quizzes++
	}

	for _, t := range c.Tracks {
		track, err := im.Content.TrackRepo.FindTrackBySlug(ctx, t.Slug)
		if err != nil {
			if !util.IsRecordNotFound(err) {
				return stats, err
			}
			if track, err = im.Content.CreateTrack(ctx, t.TrackRequest); err != nil {
				return stats, fmt.Errorf("track %s: %w", t.Slug, err)
			}
			stats.Tracks++
		}

		for _, u := range t.Units {
			raw, err := json.Marshal(u.Content)
			if err != nil {
				return stats, fmt.Errorf("track %s unit %d: %w", t.Slug, u.Ordinal, err)
			}
			_, err = im.Content.AddUnit(ctx, track.ID, UnitRequest{
				Ordinal:  u.Ordinal,
				Kind:     u.Kind,
				Title:    u.Title,
				RewardXP: u.RewardXP,
				Content:  raw,
			})
			if err != nil {
				// 已存在的 ordinal 视为已导入
				if errors.Is(err, util.ErrInvalidContent) && im.unitExists(ctx, track.ID, u.Ordinal) {
					continue
				}
				return stats, fmt.Errorf("track %s unit %d: %w", t.Slug, u.Ordinal, err)
			}
			stats.Units++
		}
	}

	im.Log.Info("catalog imported",
		zap.Int("users", stats.Users),
		zap.Int("quizzes", stats.Quizzes),
		zap.Int("tracks", stats.Tracks),
		zap.Int("units", stats.Units))
	return stats, nil
}

func (im *Importer) unitExists(ctx context.Context, trackID uint, ordinal int) bool {
	units, err := im.Content.TrackRepo.ListUnits(ctx, trackID)
	if err != nil {
		return false
	}
	for _, u := range units {
		if u.Ordinal == ordinal {
			return true
		}
	}
	return false
}
