package recommendation

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// metricProfile 單一指標對應的描述、關鍵字與成分
type metricProfile struct {
	label       string
	keywords    []string
	ingredients []string
	reason      string
}

var metricProfiles = map[string]metricProfile{
	MetricHydration: {
		label:       "hydration",
		keywords:    []string{"hydrat", "moistur", "hyaluronic"},
		ingredients: []string{"Hyaluronic Acid", "Glycerin", "Ceramides", "Squalane"},
		reason:      "addresses hydration needs",
	},
	MetricAcne: {
		label:       "acne and blemishes",
		keywords:    []string{"acne", "salicylic", "bha", "blemish", "clear", "benzoyl"},
		ingredients: []string{"Salicylic Acid", "Benzoyl Peroxide", "Niacinamide", "Adapalene", "Azelaic Acid", "Zinc"},
		reason:      "targets acne concerns",
	},
	MetricDarkSpots: {
		label:       "dark spots",
		keywords:    []string{"dark spot", "pigment", "bright", "vitamin c", "tone"},
		ingredients: []string{"Vitamin C", "Niacinamide", "Alpha Arbutin", "Kojic Acid", "Azelaic Acid"},
		reason:      "helps with dark spots",
	},
	MetricFineLines: {
		label:       "fine lines and wrinkles",
		keywords:    []string{"retinol", "wrinkle", "anti-aging", "fine line", "peptide"},
		ingredients: []string{"Retinol", "Peptides", "Bakuchiol", "Hyaluronic Acid"},
		reason:      "reduces signs of aging",
	},
	MetricRedness: {
		label:       "redness and sensitivity",
		keywords:    []string{"calm", "sooth", "centella", "sensitive", "redness"},
		ingredients: []string{"Centella Asiatica", "Allantoin", "Azelaic Acid", "Niacinamide"},
		reason:      "calms sensitive skin",
	},
	MetricSmoothness: {
		label:       "skin texture",
		keywords:    []string{"smooth", "texture", "exfoli", "resurfac", "glycolic"},
		ingredients: []string{"Glycolic Acid", "AHA", "Niacinamide", "Retinol"},
		reason:      "smooths uneven texture",
	},
	MetricRadiance: {
		label:       "dullness",
		keywords:    []string{"radian", "glow", "bright", "dull", "vitamin c"},
		ingredients: []string{"Vitamin C", "Niacinamide", "Alpha Arbutin", "AHA"},
		reason:      "restores radiance",
	},
	MetricFirmness: {
		label:       "loss of firmness",
		keywords:    []string{"firm", "peptide", "collagen", "lift"},
		ingredients: []string{"Peptides", "Retinol", "Bakuchiol", "Vitamin C"},
		reason:      "supports firmness",
	},
	MetricDarkCircle: {
		label:       "dark circles",
		keywords:    []string{"eye", "dark circle", "caffeine", "puff"},
		ingredients: []string{"Caffeine", "Peptides", "Vitamin C", "Vitamin E"},
		reason:      "brightens the under-eye area",
	},
	MetricOverall: {
		label:       "overall skin health",
		keywords:    []string{"barrier", "ceramide", "repair"},
		ingredients: []string{"Ceramides", "Niacinamide", "Glycerin", "Squalane"},
		reason:      "supports the skin barrier",
	},
}

// knownBrands 品牌字典
var knownBrands = []string{
	"CeraVe", "Neutrogena", "Olay", "The Ordinary", "Paula's Choice",
	"Clinique", "Cetaphil", "La Roche-Posay", "Aveeno", "Differin",
	"SkinCeuticals", "Drunk Elephant", "Dermalogica", "Kiehl's",
	"Fresh", "Origins", "Tatcha", "Sunday Riley", "Glow Recipe",
	"Eucerin", "Vanicream", "First Aid Beauty", "Bioderma", "EltaMD",
	"Supergoop", "COSRX", "The INKEY List", "Youth To The People",
}

// commonWordBrands 同時是一般英文單字的品牌，只比對大小寫完全相同的寫法
var commonWordBrands = map[string]bool{
	"Fresh":   true,
	"Origins": true,
}

// ingredientVocabulary 成分字典
var ingredientVocabulary = []string{
	"Niacinamide", "Hyaluronic Acid", "Retinol", "Vitamin C", "Ceramides",
	"Salicylic Acid", "Glycolic Acid", "Peptides", "Caffeine", "Zinc",
	"Vitamin E", "Squalane", "Glycerin", "AHA", "BHA", "PHA",
	"Benzoyl Peroxide", "Adapalene", "Azelaic Acid", "Kojic Acid",
	"Centella Asiatica", "Allantoin", "Bakuchiol", "Alpha Arbutin",
}

// retailer 零售商字典項目
type retailer struct {
	key     string
	name    string
	pattern *regexp.Regexp
}

// knownRetailers 零售商字典，key 用於網址子字串比對
var knownRetailers = []retailer{
	newRetailer("sephora", "Sephora"),
	newRetailer("ulta", "Ulta"),
	newRetailer("amazon", "Amazon"),
	newRetailer("target", "Target"),
	newRetailer("cvs", "CVS"),
	newRetailer("walgreens", "Walgreens"),
	newRetailer("walmart", "Walmart"),
	newRetailer("dermstore", "Dermstore"),
	newRetailer("nordstrom", "Nordstrom"),
	newRetailer("bluemercury", "Bluemercury"),
	newRetailer("cultbeauty", "Cult Beauty"),
}

// retailerSearchTemplates 零售商站內搜尋網址
var retailerSearchTemplates = map[string]string{
	"amazon":  "https://www.amazon.com/s?k=%s",
	"sephora": "https://www.sephora.com/search?keyword=%s",
	"ulta":    "https://www.ulta.com/search?q=%s",
	"target":  "https://www.target.com/s?searchTerm=%s",
	"walmart": "https://www.walmart.com/search?q=%s",
	"cvs":     "https://www.cvs.com/search?searchTerm=%s",
}

const webSearchTemplate = "https://www.google.com/search?q=%s"

// 商品類別
const (
	CategoryCleanser    = "cleanser"
	CategoryToner       = "toner"
	CategorySerum       = "serum"
	CategoryMoisturizer = "moisturizer"
	CategorySunscreen   = "sunscreen"
	CategoryTreatment   = "treatment"
)

// categoryRule 類別關鍵字規則，依序比對
type categoryRule struct {
	category string
	keywords []string
}

var categoryRules = []categoryRule{
	{CategoryCleanser, []string{"cleanser", "cleansing", "face wash", "facial wash", "foaming wash", "micellar"}},
	{CategorySerum, []string{"serum", "ampoule"}},
	{CategorySunscreen, []string{"sunscreen", "spf", "sun protection", "sunblock", "uv defense"}},
	{CategoryMoisturizer, []string{"moisturizer", "moisturiser", "moisturizing cream", "cream", "lotion", "water gel", "hydrator"}},
	{CategoryToner, []string{"toner", "essence", "facial mist"}},
}

var usageTemplates = map[string]string{
	CategoryCleanser:    "Apply to damp skin, massage gently, rinse with lukewarm water. Use morning and evening.",
	CategorySerum:       "Apply 2-3 drops to clean skin before moisturizer. Start with evening use.",
	CategoryMoisturizer: "Apply to clean skin as the last step of your routine. Use morning and evening.",
	CategorySunscreen:   "Apply generously 15 minutes before sun exposure. Reapply every 2 hours.",
	CategoryToner:       "Apply to clean skin with a cotton pad or gentle patting motions.",
	CategoryTreatment:   "Follow package instructions for best results.",
}

const defaultUsage = "Follow package instructions for best results."

var ageBrackets = map[string]string{
	"under_18": "Under 18",
	"18_24":    "18-24",
	"25_34":    "25-34",
	"35_44":    "35-44",
	"45_54":    "45-54",
	"55_plus":  "55+",
}

const defaultAgeBracket = "25-34"

// FormatAgeBracket 將年齡分組代碼轉為顯示文字
func FormatAgeBracket(group string) string {
	if v, ok := ageBrackets[strings.ToLower(strings.TrimSpace(group))]; ok {
		return v
	}
	return defaultAgeBracket
}

var (
	brandPatterns      = compileBrands(sortedByLength(knownBrands))
	ingredientPatterns = compileTerms(ingredientVocabulary)
)

// termPattern 字典詞與其比對規則
type termPattern struct {
	term    string
	pattern *regexp.Regexp
}

func newRetailer(key, name string) retailer {
	return retailer{key: key, name: name, pattern: wordPattern(name)}
}

// wordPattern 以單字邊界、不分大小寫比對
func wordPattern(term string) *regexp.Regexp {
	return boundedPattern("(?i)", term)
}

func boundedPattern(flags, term string) *regexp.Regexp {
	return regexp.MustCompile(flags + `(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(term) + `(?:$|[^\p{L}\p{N}])`)
}

func compileBrands(brands []string) []termPattern {
	out := make([]termPattern, 0, len(brands))
	for _, b := range brands {
		p := wordPattern(b)
		if commonWordBrands[b] {
			p = boundedPattern("", b)
		}
		out = append(out, termPattern{term: b, pattern: p})
	}
	return out
}

func compileTerms(terms []string) []termPattern {
	out := make([]termPattern, 0, len(terms))
	for _, t := range terms {
		out = append(out, termPattern{term: t, pattern: wordPattern(t)})
	}
	return out
}

// sortedByLength 較長的詞優先，避免短品牌名搶先命中
func sortedByLength(terms []string) []string {
	out := append([]string(nil), terms...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// findBrand 在文字中查找已知品牌
func findBrand(text string) (string, bool) {
	for _, b := range brandPatterns {
		if b.pattern.MatchString(text) {
			return b.term, true
		}
	}
	return "", false
}

// findRetailers 依字典順序列出文字中提到的零售商
func findRetailers(text string) []string {
	var out []string
	for _, r := range knownRetailers {
		if r.pattern.MatchString(text) {
			out = append(out, r.name)
		}
	}
	return out
}

// retailerFromURL 以網址網域子字串比對零售商
func retailerFromURL(u string) (retailer, bool) {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return retailer{}, false
	}
	host := strings.ToLower(parsed.Host)
	for _, r := range knownRetailers {
		if strings.Contains(host, r.key) {
			return r, true
		}
	}
	return retailer{}, false
}

// containsAny 判斷小寫文字是否包含任一關鍵字
func containsAny(lowerText string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lowerText, k) {
			return true
		}
	}
	return false
}
