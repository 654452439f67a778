package cases

import (
	"testing"

	"incidentdesk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestClassifier(t *testing.T) {
	c, err := NewClassifier(config.PriorityConfig{})
	require.NoError(t, err)

	cases := []struct {
		name  string
		facts Facts
		want  string
	}{
		{"高额损失", Facts{Damage: 600000}, PriorityCrisis},
		{"边界值不算 Crisis", Facts{Damage: 500000}, PriorityMajor},
		{"药检阳性", Facts{Damage: 10, SubstancePositive: true}, PriorityCrisis},
		{"有死亡", Facts{Fatalities: 1}, PriorityCrisis},
		{"中等损失", Facts{Damage: 60000}, PriorityMajor},
		{"有住院", Facts{Hospitalized: 2}, PriorityMajor},
		{"小额损失", Facts{Damage: 3000}, PriorityMinor},
		{"轻伤不影响", Facts{Injured: 3}, PriorityMinor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Classify(tc.facts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifierCustomExpressions(t *testing.T) {
	c, err := NewClassifier(config.PriorityConfig{
		CrisisExpression: "fatalities >= 1",
		MajorExpression:  "damage > major_damage || injured >= 5",
		MajorDamage:      1000,
	})
	require.NoError(t, err)

	got, err := c.Classify(Facts{Damage: 600000})
	require.NoError(t, err)
	assert.Equal(t, PriorityMajor, got)

	got, err = c.Classify(Facts{Injured: 5})
	require.NoError(t, err)
	assert.Equal(t, PriorityMajor, got)

	t.Run("表达式语法错误", func(t *testing.T) {
		_, err := NewClassifier(config.PriorityConfig{CrisisExpression: "damage >"})
		assert.Error(t, err)
	})

	t.Run("未知变量", func(t *testing.T) {
		_, err := NewClassifier(config.PriorityConfig{MajorExpression: "speed > 100"})
		assert.Error(t, err)
	})
}

func TestDamageFacts(t *testing.T) {
	r := &CaseReport{EstimatedCost: f64(3000), ActualPrice: f64(0)}
	assert.InDelta(t, 3000, r.Damage(), 0.001, "实际金额为 0 时取估计")
	r.ActualPrice = f64(600000)
	assert.InDelta(t, 600000, r.Damage(), 0.001)

	a := &AccidentCase{EstimatedGoodsDamage: f64(100), EstimatedVehicleDamage: f64(200)}
	assert.InDelta(t, 300, a.Damage(), 0.001)
	a.ActualVehicleDamage = f64(50)
	assert.InDelta(t, 50, a.Damage(), 0.001)

	assert.False(t, a.SubstancePositive())
	a.DrugTestResult = " Positive "
	assert.True(t, a.SubstancePositive())
	a.DrugTestResult = ""
	a.AlcoholTestResult = f64(0.02)
	assert.True(t, a.SubstancePositive())
}
