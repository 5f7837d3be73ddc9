package recommendation

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// ConcernThreshold 低於此分數的指標視為需改善
	ConcernThreshold    = 70.0
	maxQueryIngredients = 10
	queryConcernCount   = 2
	scoringConcernCount = 3
)

// Concern 需改善的指標
type Concern struct {
	Metric string
	Label  string
	Score  float64
}

// Concerns 返回低於門檻的指標，分數由低到高
func Concerns(p SkinProfileContext) []Concern {
	var out []Concern
	for _, name := range MetricNames {
		score, ok := p.Metrics[name]
		if !ok || score >= ConcernThreshold {
			continue
		}
		out = append(out, Concern{Metric: name, Label: metricProfiles[name].label, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// topConcerns 取最低的 n 個指標
func topConcerns(p SkinProfileContext, n int) []Concern {
	c := Concerns(p)
	if len(c) > n {
		c = c[:n]
	}
	return c
}

// RankIngredients 依出現次數排序候選成分，同次數保留首次出現順序
func RankIngredients(concerns []Concern) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range concerns {
		for _, ing := range metricProfiles[c.Metric].ingredients {
			if _, seen := counts[ing]; !seen {
				order = append(order, ing)
			}
			counts[ing]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxQueryIngredients {
		order = order[:maxQueryIngredients]
	}
	return order
}

// BuildQuery 依膚況組出搜尋查詢與系統指令
func BuildQuery(p SkinProfileContext, count int) (query, directive string) {
	if count <= 0 {
		count = 1
	}
	skinType := skinTypeOf(p)
	age := FormatAgeBracket(p.AgeGroup)
	concerns := Concerns(p)

	var b strings.Builder
	fmt.Fprintf(&b, "Find %d real, currently purchasable skincare products for %s skin, age %s", count, skinType, age)

	if len(concerns) == 0 {
		b.WriteString(", for general maintenance of healthy skin: a gentle cleanser, a daily moisturizer and a broad-spectrum sunscreen.")
	} else {
		focus := concerns
		if len(focus) > queryConcernCount {
			focus = focus[:queryConcernCount]
		}
		labels := make([]string, 0, len(focus))
		for _, c := range focus {
			labels = append(labels, fmt.Sprintf("%s (score %.0f/100)", c.Label, c.Score))
		}
		fmt.Fprintf(&b, ", focused on improving %s.", strings.Join(labels, " and "))
		if ings := RankIngredients(concerns); len(ings) > 0 {
			fmt.Fprintf(&b, " Prioritize products with key ingredients such as %s.", strings.Join(ings, ", "))
		}
	}

	if p.Budget != "" {
		fmt.Fprintf(&b, " Budget preference: %s.", p.Budget)
	}
	if loc := p.Location.String(); loc != "" {
		fmt.Fprintf(&b, " Prefer products sold in stores near %s or by major online retailers that ship there.", loc)
	}
	b.WriteString(" Include the price and a direct purchase link for every product.")

	return b.String(), buildDirective(count)
}

func buildDirective(count int) string {
	return fmt.Sprintf(`You are a skincare product research assistant. Recommend only real products that can be bought today, at most %d.
Start your answer with a line "PRODUCT RECOMMENDATIONS:" and write one block per product, separated by a blank line, using exactly these labels:
Product Name: <full product name>
Brand: <brand>
Category: <cleanser|toner|serum|moisturizer|sunscreen|treatment>
Key Ingredients: <comma separated>
Price Range: <$low-$high>
Match Reasoning: <one sentence>
Usage Instructions: <one sentence>
Local Availability: <stores near the user>
Link: <https purchase link>
If you cannot follow this format, answer with a single table: Product Name | Price | Description | Link | Availability.`, count)
}

func skinTypeOf(p SkinProfileContext) string {
	if t := strings.TrimSpace(p.SkinType); t != "" {
		return strings.ToLower(t)
	}
	return "normal"
}
