package model

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
)

// MultipleChoiceOptions 选择题固定四个选项
const MultipleChoiceOptions = 4

// QuizQuestion 题目与标准答案；按题型只使用对应的 Correct* 字段
type QuizQuestion struct {
	Type         QuestionType `json:"type" yaml:"type"`
	Prompt       string       `json:"prompt" yaml:"prompt"`
	Options      []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectIndex int          `json:"correctIndex,omitempty" yaml:"correctIndex,omitempty"`
	CorrectBool  bool         `json:"correctBool,omitempty" yaml:"correctBool,omitempty"`
	CorrectText  string       `json:"correctText,omitempty" yaml:"correctText,omitempty"`
}

func (q QuizQuestion) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("prompt required")
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) != MultipleChoiceOptions {
			return fmt.Errorf("multiple choice needs exactly %d options, got %d", MultipleChoiceOptions, len(q.Options))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= MultipleChoiceOptions {
			return fmt.Errorf("correctIndex %d out of range", q.CorrectIndex)
		}
	case QuestionTrueFalse:
	case QuestionFillBlank:
		if strings.TrimSpace(q.CorrectText) == "" {
			return errors.New("fill blank needs a canonical answer")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}

// QuizDefinition 发布后不可变，修改即发布新版本
// swagger:model QuizDefinition
type QuizDefinition struct {
	AppendOnlyModel
	Slug         string                           `gorm:"size:100;not null;uniqueIndex:idx_quiz_slug_version" json:"slug"`
	Version      int                              `gorm:"not null;uniqueIndex:idx_quiz_slug_version" json:"version"`
	Title        string                           `gorm:"size:255;not null" json:"title"`
	PassingScore *int                             `json:"passingScore"`
	Questions    datatypes.JSONSlice[QuizQuestion] `json:"questions"`
}

func (QuizDefinition) TableName() string {
	return "quiz_definitions"
}

// Threshold 未设置及格线时使用默认值
func (q *QuizDefinition) Threshold(defaultScore int) int {
	if q.PassingScore != nil {
		return *q.PassingScore
	}
	return defaultScore
}

func (q *QuizDefinition) Validate() error {
	if strings.TrimSpace(q.Slug) == "" {
		return errors.New("slug required")
	}
	if len(q.Questions) == 0 {
		return errors.New("quiz needs at least one question")
	}
	if q.PassingScore != nil && (*q.PassingScore < 0 || *q.PassingScore > 100) {
		return fmt.Errorf("passingScore %d out of range", *q.PassingScore)
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

type QuestionResult struct {
	Index    int  `json:"index"`
	Answered bool `json:"answered"`
	Correct  bool `json:"correct"`
}

// QuizAttempt 每次提交一条，评分后不再修改
// swagger:model QuizAttempt
type QuizAttempt struct {
	AppendOnlyModel
	UserID      uint                                `gorm:"not null;index" json:"userId"`
	QuizID      uint                                `gorm:"not null;index" json:"quizId"`
	QuizVersion int                                 `gorm:"not null" json:"quizVersion"`
	UnitID      uint                                `gorm:"not null;index" json:"unitId"`
	Answers     datatypes.JSON                      `json:"answers"`
	Score       int                                 `gorm:"not null" json:"score"`
	Passed      bool                                `gorm:"not null" json:"passed"`
	PerQuestion datatypes.JSONSlice[QuestionResult] `json:"perQuestion"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
