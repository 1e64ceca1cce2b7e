// Package testutil 测试用数据库与数据构造
package testutil

import (
	"fmt"
	"testing"

	"skillpath_backend/internal/model"
	"skillpath_backend/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 每个测试独立的内存 sqlite，已完成迁移
func OpenTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, name string) *model.User {
	t.Helper()
	user := &model.User{
		Name:  name,
		Email: fmt.Sprintf("%s-%s@example.test", name, uuid.NewString()[:8]),
		Role:  model.Learner,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// UnitSpec 构造单元的简化描述
type UnitSpec struct {
	Kind     model.UnitKind
	RewardXP int
	QuizSlug string
}

// CreateTrack 按顺序创建路径及单元，ordinal 间隔 10
func CreateTrack(t testing.TB, db *gorm.DB, title string, units ...UnitSpec) (*model.Track, []model.ContentUnit) {
	t.Helper()
	track := &model.Track{
		Slug:  "track-" + uuid.NewString()[:8],
		Title: title,
	}
	require.NoError(t, db.Create(track).Error)

	created := make([]model.ContentUnit, 0, len(units))
	for i, spec := range units {
		content, err := model.EncodeContent(sampleContent(spec))
		require.NoError(t, err)
		unit := model.ContentUnit{
			TrackID:  track.ID,
			Ordinal:  (i + 1) * 10,
			Kind:     spec.Kind,
			Title:    fmt.Sprintf("%s unit %d", title, i+1),
			RewardXP: spec.RewardXP,
			Content:  content,
		}
		require.NoError(t, db.Create(&unit).Error)
		created = append(created, unit)
	}
	return track, created
}

func sampleContent(spec UnitSpec) model.UnitContent {
	switch spec.Kind {
	case model.KindCoding:
		return model.CodingContent{Prompt: "reverse a string", Language: "go"}
	case model.KindQuiz:
		return model.QuizContent{QuizSlug: spec.QuizSlug}
	case model.KindInterview:
		return model.InterviewContent{Questions: []string{"tell me about a bug you fixed"}}
	default:
		return model.ReadingContent{Body: "read me", EstimatedMinutes: 5}
	}
}

// CreateQuiz 创建一份题目全为判断题的测验，正确答案均为 true
func CreateQuiz(t testing.TB, db *gorm.DB, slug string, questions int, passing *int) *model.QuizDefinition {
	t.Helper()
	qs := make([]model.QuizQuestion, questions)
	for i := range qs {
		qs[i] = model.QuizQuestion{
			Type:        model.QuestionTrueFalse,
			Prompt:      fmt.Sprintf("statement %d holds", i),
			CorrectBool: true,
		}
	}
	quiz := &model.QuizDefinition{
		Slug:         slug,
		Version:      1,
		Title:        slug,
		PassingScore: passing,
		Questions:    datatypes.JSONSlice[model.QuizQuestion](qs),
	}
	require.NoError(t, db.Create(quiz).Error)
	return quiz
}
