package org

// 审批人资格类型
const (
	ApproveByLevel      = "position_level"
	ApproveByLevelRange = "position_level_range"
	ApproveByAuto       = "auto"
)

// ApproverCriteria 某一审批步骤对审批人的要求
type ApproverCriteria struct {
	Type           string
	Value          *int
	Min            *int
	Max            *int
	SameDepartment bool
}

// MatchesLevel 职级是否满足要求；auto 不限制职级
func (c ApproverCriteria) MatchesLevel(level int) bool {
	switch c.Type {
	case ApproveByLevel:
		return c.Value != nil && level == *c.Value
	case ApproveByLevelRange:
		return c.Min != nil && c.Max != nil && *c.Min <= level && level <= *c.Max
	default:
		return true
	}
}
