package recommendation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcerns_BelowThresholdSortedAscending(t *testing.T) {
	p := SkinProfileContext{Metrics: SkinMetrics{
		MetricHydration:  50,
		MetricAcne:       90,
		MetricSmoothness: 55,
		MetricRedness:    70,
		MetricDarkSpots:  69.9,
	}}

	concerns := Concerns(p)
	require.Len(t, concerns, 3)
	assert.Equal(t, MetricHydration, concerns[0].Metric)
	assert.Equal(t, MetricSmoothness, concerns[1].Metric)
	assert.Equal(t, MetricDarkSpots, concerns[2].Metric)
}

func TestConcerns_IgnoresUnknownMetrics(t *testing.T) {
	p := SkinProfileContext{Metrics: SkinMetrics{"pores": 10}}
	assert.Empty(t, Concerns(p))
}

func TestRankIngredients_CrossCuttingFirst(t *testing.T) {
	concerns := []Concern{
		{Metric: MetricAcne, Score: 40},
		{Metric: MetricDarkSpots, Score: 45},
		{Metric: MetricRedness, Score: 50},
	}

	ranked := RankIngredients(concerns)
	require.NotEmpty(t, ranked)
	// Niacinamide 與 Azelaic Acid 同時出現在三個指標
	assert.Equal(t, "Niacinamide", ranked[0])
	assert.Equal(t, "Azelaic Acid", ranked[1])
	assert.LessOrEqual(t, len(ranked), 10)
}

func TestRankIngredients_CapsAtTen(t *testing.T) {
	var concerns []Concern
	for _, m := range MetricNames {
		concerns = append(concerns, Concern{Metric: m, Score: 10})
	}
	assert.Len(t, RankIngredients(concerns), 10)
}

func TestBuildQuery_UsesTwoLowestConcerns(t *testing.T) {
	p := SkinProfileContext{
		Metrics:  SkinMetrics{MetricHydration: 50, MetricSmoothness: 55, MetricAcne: 60},
		SkinType: "Oily",
		AgeGroup: "35_44",
		Location: Location{City: "Austin", State: "TX", ZipCode: "78701"},
		Budget:   "under $30",
	}

	query, directive := BuildQuery(p, 5)

	assert.Contains(t, query, "Find 5 real")
	assert.Contains(t, query, "oily skin")
	assert.Contains(t, query, "age 35-44")
	assert.Contains(t, query, "hydration (score 50/100) and skin texture (score 55/100)")
	assert.NotContains(t, query, "acne and blemishes")
	assert.Contains(t, query, "Hyaluronic Acid")
	assert.Contains(t, query, "Austin, TX 78701")
	assert.Contains(t, query, "under $30")
	assert.Contains(t, directive, "PRODUCT RECOMMENDATIONS")
	assert.Contains(t, directive, "Product Name | Price | Description | Link | Availability")
}

func TestBuildQuery_GeneralMaintenanceWithoutConcerns(t *testing.T) {
	p := SkinProfileContext{Metrics: SkinMetrics{MetricHydration: 95}}

	query, directive := BuildQuery(p, 0)

	assert.Contains(t, query, "general maintenance")
	assert.Contains(t, query, "normal skin")
	assert.Contains(t, query, "age 25-34")
	assert.Contains(t, query, "Find 1 real")
	assert.NotEmpty(t, directive)
}

func TestFormatAgeBracket(t *testing.T) {
	tests := map[string]string{
		"under_18": "Under 18",
		"18_24":    "18-24",
		"55_PLUS":  "55+",
		"":         "25-34",
		"unknown":  "25-34",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatAgeBracket(in), in)
	}
}
