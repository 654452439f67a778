package cases

import (
	"fmt"

	"incidentdesk/internal/config"
	"incidentdesk/internal/metrics"

	"github.com/Knetic/govaluate"
)

// 默认判定表达式
const (
	DefaultCrisisExpression = "damage > crisis_damage || substance_positive || fatalities >= 1"
	DefaultMajorExpression  = "damage > major_damage || hospitalized >= 1"
)

// Facts 优先级判定输入
type Facts struct {
	Damage            float64
	SubstancePositive bool
	Fatalities        int
	Hospitalized      int
	Injured           int
}

// Classifier 按表达式依次判定 Crisis、Major，均不满足为 Minor
type Classifier struct {
	crisis       *govaluate.EvaluableExpression
	major        *govaluate.EvaluableExpression
	crisisDamage float64
	majorDamage  float64
}

// NewClassifier 编译配置中的表达式，空表达式使用默认值
func NewClassifier(cfg config.PriorityConfig) (*Classifier, error) {
	crisisExpr := cfg.CrisisExpression
	if crisisExpr == "" {
		crisisExpr = DefaultCrisisExpression
	}
	majorExpr := cfg.MajorExpression
	if majorExpr == "" {
		majorExpr = DefaultMajorExpression
	}

	crisis, err := govaluate.NewEvaluableExpression(crisisExpr)
	if err != nil {
		return nil, fmt.Errorf("解析 Crisis 表达式失败: %w", err)
	}
	major, err := govaluate.NewEvaluableExpression(majorExpr)
	if err != nil {
		return nil, fmt.Errorf("解析 Major 表达式失败: %w", err)
	}

	c := &Classifier{
		crisis:       crisis,
		major:        major,
		crisisDamage: cfg.CrisisDamage,
		majorDamage:  cfg.MajorDamage,
	}
	if c.crisisDamage == 0 {
		c.crisisDamage = 500000
	}
	if c.majorDamage == 0 {
		c.majorDamage = 50000
	}

	// 用零值试算一次，提前暴露未知变量
	if _, err := c.Classify(Facts{}); err != nil {
		return nil, err
	}
	return c, nil
}

// Classify 判定优先级
func (c *Classifier) Classify(f Facts) (string, error) {
	params := map[string]any{
		"damage":             f.Damage,
		"substance_positive": f.SubstancePositive,
		"fatalities":         float64(f.Fatalities),
		"hospitalized":       float64(f.Hospitalized),
		"injured":            float64(f.Injured),
		"crisis_damage":      c.crisisDamage,
		"major_damage":       c.majorDamage,
	}

	hit, err := evaluate(c.crisis, params)
	if err != nil {
		return "", fmt.Errorf("计算 Crisis 条件失败: %w", err)
	}
	if hit {
		return PriorityCrisis, nil
	}
	hit, err = evaluate(c.major, params)
	if err != nil {
		return "", fmt.Errorf("计算 Major 条件失败: %w", err)
	}
	if hit {
		return PriorityMajor, nil
	}
	return PriorityMinor, nil
}

// ForReport 报告的优先级：只看损失金额
func (c *Classifier) ForReport(r *CaseReport) (string, error) {
	p, err := c.Classify(Facts{Damage: r.Damage()})
	if err == nil {
		metrics.CasePriorityTotal.WithLabelValues("case_report", p).Inc()
	}
	return p, err
}

// ForAccident 事故的优先级
func (c *Classifier) ForAccident(a *AccidentCase) (string, error) {
	p, err := c.Classify(Facts{
		Damage:            a.Damage(),
		SubstancePositive: a.SubstancePositive(),
		Fatalities:        a.Fatalities,
		Hospitalized:      a.InjuredHospitalized,
		Injured:           a.InjuredNotHospitalized,
	})
	if err == nil {
		metrics.CasePriorityTotal.WithLabelValues("accident_case", p).Inc()
	}
	return p, err
}

func evaluate(expr *govaluate.EvaluableExpression, params map[string]any) (bool, error) {
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	hit, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("表达式结果不是布尔值: %v", result)
	}
	return hit, nil
}
