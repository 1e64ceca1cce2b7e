package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/testutil"
	"skillpath_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readingRequest(ordinal int) UnitRequest {
	return UnitRequest{
		Ordinal:  ordinal,
		Kind:     model.KindReading,
		Title:    "Intro",
		RewardXP: 10,
		Content:  json.RawMessage(`{"body":"hello","estimatedMinutes":3}`),
	}
}

func TestAddUnitRejectsOrdinalTie(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	track, err := env.content.CreateTrack(ctx, TrackRequest{Slug: "go", Title: "Go"})
	require.NoError(t, err)

	_, err = env.content.AddUnit(ctx, track.ID, readingRequest(10))
	require.NoError(t, err)
	_, err = env.content.AddUnit(ctx, track.ID, readingRequest(30))
	require.NoError(t, err)

	_, err = env.content.AddUnit(ctx, track.ID, readingRequest(10))
	assert.ErrorIs(t, err, util.ErrInvalidContent)

	_, err = env.content.CreateTrack(ctx, TrackRequest{Slug: "go", Title: "Again"})
	assert.ErrorIs(t, err, util.ErrInvalidContent)
}

func TestAddUnitValidatesContentVariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	track, err := env.content.CreateTrack(ctx, TrackRequest{Slug: "go", Title: "Go"})
	require.NoError(t, err)

	cases := []UnitRequest{
		{Ordinal: 1, Kind: "video", Title: "x", Content: json.RawMessage(`{}`)},
		{Ordinal: 1, Kind: model.KindReading, Title: "x", RewardXP: -1, Content: json.RawMessage(`{"body":"b"}`)},
		{Ordinal: 1, Kind: model.KindCoding, Title: "x", Content: json.RawMessage(`{"prompt":"p"}`)},
		{Ordinal: 1, Kind: model.KindQuiz, Title: "x", Content: json.RawMessage(`{"quizSlug":"missing"}`)},
		{Ordinal: 1, Kind: model.KindInterview, Title: "x", Content: json.RawMessage(`{"questions":[]}`)},
	}
	for _, req := range cases {
		_, err := env.content.AddUnit(ctx, track.ID, req)
		assert.ErrorIs(t, err, util.ErrInvalidContent, "kind %s", req.Kind)
	}

	_, err = env.content.AddUnit(ctx, 999, readingRequest(1))
	assert.ErrorIs(t, err, util.ErrTrackNotFound)
}

func TestUpdateUnitImmutableAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, env.db, "ada")
	track, err := env.content.CreateTrack(ctx, TrackRequest{Slug: "go", Title: "Go"})
	require.NoError(t, err)
	unit, err := env.content.AddUnit(ctx, track.ID, readingRequest(10))
	require.NoError(t, err)
	_, err = env.content.AddUnit(ctx, track.ID, readingRequest(20))
	require.NoError(t, err)

	edit := readingRequest(10)
	edit.Title = "Intro v2"
	updated, err := env.content.UpdateUnit(ctx, unit.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Intro v2", updated.Title)

	_, err = env.completion.CompleteUnit(ctx, learner.ID, unit.ID, nil)
	require.NoError(t, err)

	_, err = env.content.UpdateUnit(ctx, unit.ID, edit)
	assert.ErrorIs(t, err, util.ErrUnitImmutable)
}

func TestPublishQuizValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad := []QuizRequest{
		{Slug: "q", Title: "Q"},
		{Slug: "q", Title: "Q", Questions: []model.QuizQuestion{{Type: model.QuestionMultipleChoice, Prompt: "p", Options: []string{"a", "b", "c"}}}},
		{Slug: "q", Title: "Q", Questions: []model.QuizQuestion{{Type: model.QuestionMultipleChoice, Prompt: "p", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 4}}},
		{Slug: "q", Title: "Q", Questions: []model.QuizQuestion{{Type: model.QuestionFillBlank, Prompt: "p"}}},
		{Slug: "q", Title: "Q", Questions: []model.QuizQuestion{{Type: "essay", Prompt: "p"}}},
		{Slug: "q", Title: "Q", PassingScore: util.IntPtr(120), Questions: []model.QuizQuestion{{Type: model.QuestionTrueFalse, Prompt: "p"}}},
	}
	for i, req := range bad {
		_, err := env.content.PublishQuiz(ctx, req)
		assert.ErrorIs(t, err, util.ErrInvalidContent, "case %d", i)
	}
}

func TestImportCatalogIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	importer := NewImporter(env.content, env.users.UserRepo, env.users.Log)

	catalog, err := LoadCatalog(strings.NewReader(`
users:
  - name: Ada
    email: ada@example.test
quizzes:
  - slug: basics
    title: Basics
    passingScore: 80
    questions:
      - type: multiple_choice
        prompt: Which keyword starts a goroutine?
        options: [go, async, spawn, thread]
        correctIndex: 0
      - type: fill_blank
        prompt: The zero value of a pointer is
        correctText: nil
tracks:
  - slug: go
    title: Go Foundations
    units:
      - ordinal: 10
        kind: reading
        title: Welcome
        rewardXp: 10
        content:
          body: Hello
      - ordinal: 20
        kind: quiz
        title: Basics quiz
        rewardXp: 20
        content:
          quizSlug: basics
`))
	require.NoError(t, err)

	stats, err := importer.Import(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Users: 1, Quizzes: 1, Tracks: 1, Units: 2}, stats)

	stats, err = importer.Import(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{}, stats)

	tracks, err := env.content.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Len(t, tracks[0].Units, 2)
}

func TestLoadCatalogRejectsUnknownFields(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("tracks:\n  - slug: go\n    colour: red\n"))
	require.Error(t, err)
}
