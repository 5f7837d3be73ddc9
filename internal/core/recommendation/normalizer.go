package recommendation

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultPriceRange 無法取得價格時使用
	DefaultPriceRange = "$15-30"
	unknownBrand      = "Unknown Brand"
	unnamedProduct    = "Unnamed Product"
	placeholderIngr   = "See product details"
	defaultReasoning  = "Well-suited for your skin type and concerns"
	imageURLTemplate  = "https://picsum.photos/seed/%08x/400/400"

	baseScore     = 7.5
	concernBoost  = 0.5
	maxScore      = 10.0
	maxIngredient = 5
	nameKeyLength = 30
)

var (
	priceRangePattern  = regexp.MustCompile(`([$£€])\s*(\d+(?:\.\d{1,2})?)\s*(?:-|–|—|to)\s*([$£€])?\s*(\d+(?:\.\d{1,2})?)(\s*(?i:fl\.?\s*oz|ml|oz|g)\b)?`)
	singlePricePattern = regexp.MustCompile(`([$£€])\s*(\d+(?:\.\d{1,2})?)`)
	knownCategories    = map[string]bool{
		CategoryCleanser:    true,
		CategoryToner:       true,
		CategorySerum:       true,
		CategoryMoisturizer: true,
		CategorySunscreen:   true,
		CategoryTreatment:   true,
	}
)

// Normalizer 將候選商品轉為正規化推薦，每個欄位規則皆為全函式
type Normalizer struct{}

// NewNormalizer 創建正規化器
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize 任何輸入都返回名稱、品牌、類別與價格區間皆已填入的推薦
func (n *Normalizer) Normalize(c ProductCandidate, p SkinProfileContext, source string) NormalizedRecommendation {
	name := stripEmphasis(deref(c.Name))
	named := name != ""
	if !named {
		name = unnamedProduct
	}

	brand := brandFor(deref(c.Brand), name, named)
	description := deref(c.Description)
	category := categoryFor(deref(c.Category), name, description)
	priceRange, current := ParsePrice(deref(c.Price), description, deref(c.SourceBlock))

	rec := NormalizedRecommendation{
		ID:                 recommendationID(brand, name),
		Name:               name,
		Brand:              brand,
		Category:           category,
		PriceRange:         priceRange,
		CurrentPrice:       current,
		Source:             source,
		Description:        description,
		ImageURL:           ImageURLFor(brand, name),
		KeyIngredients:     keyIngredients(name, deref(c.Ingredients), description),
		CompatibilityScore: compatibilityScore(p, name, description, deref(c.Ingredients)),
		MatchReasoning:     deref(c.MatchReasoning),
		UsageInstructions:  deref(c.Usage),
		AffiliateLink:      normalizeURL(deref(c.AffiliateLink)),
		TrackingLink:       normalizeURL(deref(c.TrackingLink)),
	}
	if rec.MatchReasoning == "" {
		rec.MatchReasoning = matchReasoning(p, name+" "+deref(c.Ingredients))
	}
	if rec.UsageInstructions == "" {
		rec.UsageInstructions = usageFor(category)
	}

	rec.ProductURL = purchaseURL(c, rec.AffiliateLink, rec.TrackingLink, brand, name)
	if r, ok := retailerFromURL(rec.ProductURL); ok {
		rec.Retailer = r.name
	}
	rec.Availability = availabilityFor(c, rec.Retailer, p.Location)

	return rec
}

// ImageURLFor 相同品牌與名稱永遠得到相同的圖片網址
func ImageURLFor(brand, name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(brand + name))
	return fmt.Sprintf(imageURLTemplate, h.Sum32())
}

// ParsePrice 依序在各段文字中尋找帶幣別的價格；第二個數字無幣別且帶容量單位時不視為區間
func ParsePrice(texts ...string) (string, *float64) {
	for _, t := range texts {
		if m := priceRangePattern.FindStringSubmatch(t); m != nil && (m[3] != "" || m[5] == "") {
			return m[1] + m[2] + "-" + m[1] + m[4], parseFloat(m[2])
		}
		if m := singlePricePattern.FindStringSubmatch(t); m != nil {
			return m[1] + m[2], parseFloat(m[2])
		}
	}
	return DefaultPriceRange, nil
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// brandFor 明確品牌 → 名稱中的已知品牌 → 名稱第一個字
func brandFor(explicit, name string, named bool) string {
	if explicit = stripEmphasis(explicit); explicit != "" {
		if known, ok := findBrand(explicit); ok {
			return known
		}
		return explicit
	}
	if !named {
		return unknownBrand
	}
	if known, ok := findBrand(name); ok {
		return known
	}
	for _, w := range strings.Fields(name) {
		if w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }); w != "" {
			return w
		}
	}
	return unknownBrand
}

// categoryFor 明確類別優先，否則以名稱、描述比對關鍵字
func categoryFor(explicit, name, description string) string {
	if lower := strings.ToLower(strings.TrimSpace(explicit)); lower != "" {
		if knownCategories[lower] {
			return lower
		}
		if cat, ok := matchCategory(lower); ok {
			return cat
		}
	}
	for _, text := range []string{name, description} {
		if cat, ok := matchCategory(strings.ToLower(text)); ok {
			return cat
		}
	}
	return CategoryTreatment
}

func matchCategory(lower string) (string, bool) {
	for _, rule := range categoryRules {
		if containsAny(lower, rule.keywords) {
			return rule.category, true
		}
	}
	return "", false
}

func usageFor(category string) string {
	if u, ok := usageTemplates[category]; ok {
		return u
	}
	return defaultUsage
}

// keyIngredients 依文字中出現順序取前幾個已知成分
func keyIngredients(texts ...string) []string {
	text := strings.Join(texts, " ")

	type hit struct {
		at   int
		term string
	}
	var hits []hit
	for _, ing := range ingredientPatterns {
		if loc := ing.pattern.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{at: loc[0], term: ing.term})
		}
	}
	if len(hits) == 0 {
		return []string{placeholderIngr}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	if len(hits) > maxIngredient {
		hits = hits[:maxIngredient]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.term)
	}
	return out
}

// compatibilityScore 基礎分數加上命中的主要需改善指標
func compatibilityScore(p SkinProfileContext, texts ...string) float64 {
	lower := strings.ToLower(strings.Join(texts, " "))
	score := baseScore
	for _, c := range topConcerns(p, scoringConcernCount) {
		if containsAny(lower, metricProfiles[c.Metric].keywords) {
			score += concernBoost
		}
	}
	if score > maxScore {
		score = maxScore
	}
	return score
}

func matchReasoning(p SkinProfileContext, text string) string {
	lower := strings.ToLower(text)
	var reasons []string
	for _, c := range Concerns(p) {
		mp := metricProfiles[c.Metric]
		if containsAny(lower, mp.keywords) {
			reasons = append(reasons, mp.reason)
		}
	}
	if len(reasons) == 0 {
		return defaultReasoning
	}
	return "Recommended because it " + strings.Join(reasons, " and ")
}

// purchaseURL 聯盟連結 → 追蹤連結 → 明確網址 → 零售商搜尋 → 一般搜尋
func purchaseURL(c ProductCandidate, affiliate, tracking, brand, name string) string {
	if affiliate != "" {
		return affiliate
	}
	if tracking != "" {
		return tracking
	}
	if explicit := normalizeURL(deref(c.StoreLink)); explicit != "" {
		return explicit
	}

	query := searchTerms(brand, name)
	for _, r := range findRetailers(storeText(c) + " " + deref(c.Availability)) {
		for _, known := range knownRetailers {
			if known.name != r {
				continue
			}
			if tpl, ok := retailerSearchTemplates[known.key]; ok {
				return fmt.Sprintf(tpl, url.QueryEscape(query))
			}
		}
	}
	return fmt.Sprintf(webSearchTemplate, url.QueryEscape(query))
}

func searchTerms(brand, name string) string {
	if brand == unknownBrand || strings.Contains(strings.ToLower(name), strings.ToLower(brand)) {
		return name
	}
	return brand + " " + name
}

// normalizeURL 取出文字中的網址並統一為 https
func normalizeURL(text string) string {
	u := urlInText.FindString(text)
	if u == "" {
		return ""
	}
	u = strings.TrimRight(u, ".,;")
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "https://"):
		return u
	case strings.HasPrefix(lower, "http://"):
		return "https://" + u[len("http://"):]
	default:
		return "https://" + u
	}
}

func availabilityFor(c ProductCandidate, retailer string, loc Location) *Availability {
	online := findRetailers(storeText(c))
	if retailer != "" {
		online = append(online, retailer)
	}

	note := "Available online"
	if loc.City != "" {
		note = "Available online, ships to " + loc.City
	}
	return &Availability{
		LocalStores:  uniqueSorted(findRetailers(deref(c.Availability))),
		OnlineStores: uniqueSorted(online),
		LocationNote: note,
	}
}

// storeText 連結與連結欄的通路文字
func storeText(c ProductCandidate) string {
	return strings.TrimSpace(deref(c.StoreLink) + " " + deref(c.Stores))
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func recommendationID(brand, name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(brand + "|" + name)))
	return fmt.Sprintf("rec_%08x", h.Sum32())
}

// nameKey 名稱前 30 個英數字元，用於去重
func nameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if b.Len() >= nameKeyLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
