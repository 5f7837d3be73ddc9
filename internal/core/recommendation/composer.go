package recommendation

import (
	"regexp"
	"sort"
	"strconv"
)

const (
	defaultLowCost  = 15.0
	defaultHighCost = 25.0
)

var (
	stepOrder = map[string]int{
		CategoryCleanser:    1,
		CategoryToner:       2,
		CategorySerum:       3,
		CategoryMoisturizer: 4,
		CategorySunscreen:   5,
	}
	// 早晚都使用的類別，其餘僅晚間
	dailyCategories = map[string]bool{
		CategoryCleanser:    true,
		CategoryMoisturizer: true,
		CategorySunscreen:   true,
	}
	priceNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

const otherStep = 6

// ComposeRoutine 依類別步驟順序排出早晚保養流程
func ComposeRoutine(recs []NormalizedRecommendation) Routine {
	routine := Routine{Morning: []RoutineStep{}, Evening: []RoutineStep{}}
	for _, r := range recs {
		step := RoutineStep{
			Product:      r.Name,
			Category:     r.Category,
			StepOrder:    stepFor(r.Category),
			Instructions: r.UsageInstructions,
		}
		if dailyCategories[r.Category] {
			routine.Morning = append(routine.Morning, step)
		}
		routine.Evening = append(routine.Evening, step)
	}

	sort.SliceStable(routine.Morning, func(i, j int) bool { return routine.Morning[i].StepOrder < routine.Morning[j].StepOrder })
	sort.SliceStable(routine.Evening, func(i, j int) bool { return routine.Evening[i].StepOrder < routine.Evening[j].StepOrder })
	return routine
}

func stepFor(category string) int {
	if s, ok := stepOrder[category]; ok {
		return s
	}
	return otherStep
}

// ComposeShoppingList 基礎類別列為優先購買，並加總價格區間
func ComposeShoppingList(recs []NormalizedRecommendation) ShoppingList {
	list := ShoppingList{
		ImmediatePriorities: []ShoppingItem{},
		NextAdditions:       []ShoppingItem{},
	}

	var low, high float64
	for _, r := range recs {
		lo, hi := PriceBounds(r.PriceRange)
		low += lo
		high += hi

		item := ShoppingItem{
			Product:    r.Name,
			Category:   r.Category,
			PriceRange: r.PriceRange,
			DirectLink: r.ProductURL,
		}
		if r.Availability != nil {
			item.WhereToBuy = r.Availability.OnlineStores
		}

		if dailyCategories[r.Category] {
			list.ImmediatePriorities = append(list.ImmediatePriorities, item)
		} else {
			list.NextAdditions = append(list.NextAdditions, item)
		}
	}

	list.TotalEstimatedCost = "$" + formatAmount(low) + "-$" + formatAmount(high)
	return list
}

// PriceBounds 解析價格區間的上下限，無法解析時為 15/25
func PriceBounds(priceRange string) (float64, float64) {
	nums := priceNumber.FindAllString(priceRange, -1)
	switch len(nums) {
	case 0:
		return defaultLowCost, defaultHighCost
	case 1:
		v, err := strconv.ParseFloat(nums[0], 64)
		if err != nil {
			return defaultLowCost, defaultHighCost
		}
		return v, v
	default:
		lo, err1 := strconv.ParseFloat(nums[0], 64)
		hi, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 != nil || err2 != nil {
			return defaultLowCost, defaultHighCost
		}
		return lo, hi
	}
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
