package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

type UnitKind string

const (
	KindReading   UnitKind = "reading"
	KindCoding    UnitKind = "coding"
	KindQuiz      UnitKind = "quiz"
	KindInterview UnitKind = "interview"
)

var ErrUnknownUnitKind = errors.New("unknown unit kind")

func (k UnitKind) Valid() bool {
	switch k {
	case KindReading, KindCoding, KindQuiz, KindInterview:
		return true
	}
	return false
}

// UnitContent 按单元类型区分的内容，每种类型只携带自己的字段
type UnitContent interface {
	Kind() UnitKind
	Validate() error
}

type ReadingContent struct {
	Body             string `json:"body" yaml:"body"`
	EstimatedMinutes int    `json:"estimatedMinutes" yaml:"estimatedMinutes"`
}

func (ReadingContent) Kind() UnitKind { return KindReading }

func (c ReadingContent) Validate() error {
	if strings.TrimSpace(c.Body) == "" {
		return errors.New("reading body required")
	}
	if c.EstimatedMinutes < 0 {
		return errors.New("estimatedMinutes must be non-negative")
	}
	return nil
}

type CodingContent struct {
	Prompt      string `json:"prompt" yaml:"prompt"`
	Language    string `json:"language" yaml:"language"`
	StarterCode string `json:"starterCode" yaml:"starterCode"`
}

func (CodingContent) Kind() UnitKind { return KindCoding }

func (c CodingContent) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return errors.New("coding prompt required")
	}
	if strings.TrimSpace(c.Language) == "" {
		return errors.New("coding language required")
	}
	return nil
}

// QuizContent 引用测验 slug，提交时使用最新版本
type QuizContent struct {
	QuizSlug string `json:"quizSlug" yaml:"quizSlug"`
}

func (QuizContent) Kind() UnitKind { return KindQuiz }

func (c QuizContent) Validate() error {
	if strings.TrimSpace(c.QuizSlug) == "" {
		return errors.New("quizSlug required")
	}
	return nil
}

type InterviewContent struct {
	Questions []string `json:"questions" yaml:"questions"`
}

func (InterviewContent) Kind() UnitKind { return KindInterview }

func (c InterviewContent) Validate() error {
	if len(c.Questions) == 0 {
		return errors.New("interview needs at least one question")
	}
	for i, q := range c.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("interview question %d is empty", i)
		}
	}
	return nil
}

// DecodeContent 根据 kind 解析内容
func DecodeContent(kind UnitKind, raw []byte) (UnitContent, error) {
	var (
		content UnitContent
		err     error
	)
	switch kind {
	case KindReading:
		var c ReadingContent
		err = unmarshalContent(raw, &c)
		content = c
	case KindCoding:
		var c CodingContent
		err = unmarshalContent(raw, &c)
		content = c
	case KindQuiz:
		var c QuizContent
		err = unmarshalContent(raw, &c)
		content = c
	case KindInterview:
		var c InterviewContent
		err = unmarshalContent(raw, &c)
		content = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnitKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", kind, err)
	}
	return content, nil
}

func unmarshalContent(raw []byte, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// EncodeContent 序列化内容
func EncodeContent(c UnitContent) (datatypes.JSON, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (u *ContentUnit) DecodeContent() (UnitContent, error) {
	return DecodeContent(u.Kind, u.Content)
}
