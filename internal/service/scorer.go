package service

import (
	"encoding/json"
	"math"
	"strings"

	"skillpath_backend/internal/model"
)

// Answers 按题目下标提交的答案，值类型取决于题型
type Answers map[int]interface{}

type ScoreResult struct {
	Score       int                    `json:"score"`
	Passed      bool                   `json:"passed"`
	Threshold   int                    `json:"threshold"`
	PerQuestion []model.QuestionResult `json:"perQuestion"`
}

// ScoreQuiz 纯函数；未作答视为错误，空测验得 0 分且不通过
func ScoreQuiz(quiz *model.QuizDefinition, answers Answers, defaultThreshold int) ScoreResult {
	threshold := quiz.Threshold(defaultThreshold)
	total := len(quiz.Questions)
	result := ScoreResult{
		Threshold:   threshold,
		PerQuestion: make([]model.QuestionResult, 0, total),
	}
	if total == 0 {
		return result
	}

	correct := 0
	for i, q := range quiz.Questions {
		value, answered := answers[i]
		ok := answered && isCorrect(q, value)
		if ok {
			correct++
		}
		result.PerQuestion = append(result.PerQuestion, model.QuestionResult{
			Index:    i,
			Answered: answered,
			Correct:  ok,
		})
	}

	result.Score = roundPercent(correct, total)
	result.Passed = result.Score >= threshold
	return result
}

// roundPercent correct/total*100 四舍五入（0.5 进位）
func roundPercent(correct, total int) int {
	return (correct*200 + total) / (2 * total)
}

func isCorrect(q model.QuizQuestion, value interface{}) bool {
	switch q.Type {
	case model.QuestionMultipleChoice:
		idx, ok := integerValue(value)
		return ok && idx == int64(q.CorrectIndex)
	case model.QuestionTrueFalse:
		b, ok := value.(bool)
		return ok && b == q.CorrectBool
	case model.QuestionFillBlank:
		s, ok := value.(string)
		return ok && strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(q.CorrectText))
	default:
		return false
	}
}

// integerValue 只接受整数值；带小数部分的数字、字符串、布尔均视为无效
func integerValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) || math.Trunc(v) != v {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return integerValue(f)
	default:
		return 0, false
	}
}
