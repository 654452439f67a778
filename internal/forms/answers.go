package forms

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"incidentdesk/internal/common"
)

// TextValue 文本答案，兼容字符串与字符串数组（多选题）
type TextValue []string

// UnmarshalJSON 接受 "a" 或 ["a","b"]
func (v *TextValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = TextValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("value_text must be a string or an array of strings")
	}
	*v = TextValue(many)
	return nil
}

// Joined 逗号拼接
func (v TextValue) Joined() string {
	parts := make([]string, 0, len(v))
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

// AnswerInput 单题答案输入
type AnswerInput struct {
	QuestionID   uint       `json:"question_id" binding:"required"`
	ValueText    TextValue  `json:"value_text,omitempty" swaggertype:"string"`
	ValueNumber  *float64   `json:"value_number,omitempty"`
	ValueDate    *time.Time `json:"value_date,omitempty"`
	ValueBoolean *bool      `json:"value_boolean,omitempty"`
}

// validateAnswers 按题目类型校验答案并转换为答案行，任何写入前执行
func validateAnswers(questions []FormQuestion, answers []AnswerInput) ([]SubmissionValue, error) {
	byID := make(map[uint]*FormQuestion, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	seen := make(map[uint]struct{}, len(answers))
	values := make([]SubmissionValue, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, common.ErrInvalid(fmt.Sprintf("Invalid question_id %d", a.QuestionID))
		}
		if _, dup := seen[a.QuestionID]; dup {
			return nil, common.ErrInvalid(fmt.Sprintf("Duplicate answer for %s", q.Label))
		}
		seen[a.QuestionID] = struct{}{}

		value, err := convertAnswer(q, a)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}

	for i := range questions {
		q := &questions[i]
		if _, ok := seen[q.ID]; q.IsRequired && !ok {
			return nil, common.ErrInvalid("Missing required field: " + q.Label)
		}
	}
	return values, nil
}

func convertAnswer(q *FormQuestion, a AnswerInput) (SubmissionValue, error) {
	value := SubmissionValue{QuestionID: q.ID}
	invalid := func(msg string) (SubmissionValue, error) {
		return SubmissionValue{}, common.ErrInvalid(q.Label + " " + msg)
	}

	switch q.Type {
	case QuestionText, QuestionLongText:
		text := a.ValueText.Joined()
		if q.IsRequired && text == "" {
			return invalid("is required")
		}
		value.ValueText = optionalText(text)

	case QuestionDropdown:
		text := a.ValueText.Joined()
		if len(a.ValueText) > 1 {
			return invalid("accepts a single option")
		}
		if q.IsRequired && text == "" {
			return invalid("is required")
		}
		if text != "" && !q.allowsOption(text) {
			return invalid("has an unknown option: " + text)
		}
		value.ValueText = optionalText(text)

	case QuestionMultiSelect:
		text := a.ValueText.Joined()
		if q.IsRequired && text == "" {
			return invalid("must select at least one option")
		}
		if text != "" {
			for _, opt := range strings.Split(text, ",") {
				if !q.allowsOption(opt) {
					return invalid("has an unknown option: " + opt)
				}
			}
		}
		value.ValueText = optionalText(text)

	case QuestionCheckbox:
		if a.ValueBoolean == nil {
			return invalid("must be true or false")
		}
		value.ValueBoolean = a.ValueBoolean

	case QuestionNumber, QuestionInt:
		if a.ValueNumber == nil {
			if q.IsRequired {
				return invalid("must be a number")
			}
			break
		}
		if q.Type == QuestionInt && *a.ValueNumber != math.Trunc(*a.ValueNumber) {
			return invalid("must be an integer")
		}
		value.ValueNumber = a.ValueNumber

	case QuestionDate, QuestionDateTime:
		if a.ValueDate == nil {
			if q.IsRequired {
				return invalid("must be a date")
			}
			break
		}
		value.ValueDate = a.ValueDate

	default:
		return invalid("has an unsupported type " + q.Type)
	}
	return value, nil
}

func (q *FormQuestion) allowsOption(v string) bool {
	return slices.ContainsFunc(q.Options, func(o FormQuestionOption) bool { return o.Value == v })
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Display 答案的文本表示，用于变更记录
func (v *SubmissionValue) Display() string {
	switch {
	case v.ValueText != nil:
		return *v.ValueText
	case v.ValueNumber != nil:
		return strconv.FormatFloat(*v.ValueNumber, 'f', -1, 64)
	case v.ValueDate != nil:
		return v.ValueDate.UTC().Format(time.RFC3339)
	case v.ValueBoolean != nil:
		return strconv.FormatBool(*v.ValueBoolean)
	default:
		return ""
	}
}

// isValidQuestionType 模板创建时校验题目类型
func isValidQuestionType(t string) bool {
	switch t {
	case QuestionText, QuestionLongText, QuestionNumber, QuestionInt, QuestionDate,
		QuestionDateTime, QuestionCheckbox, QuestionDropdown, QuestionMultiSelect:
		return true
	}
	return false
}
