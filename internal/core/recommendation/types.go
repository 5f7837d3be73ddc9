package recommendation

import (
	"time"
)

// 膚況指標名稱
const (
	MetricOverall    = "overall_skin_health_score"
	MetricHydration  = "hydration"
	MetricSmoothness = "smoothness"
	MetricRadiance   = "radiance"
	MetricDarkSpots  = "dark_spots"
	MetricFirmness   = "firmness"
	MetricFineLines  = "fine_lines_wrinkles"
	MetricAcne       = "acne"
	MetricDarkCircle = "dark_circles"
	MetricRedness    = "redness"
)

// MetricNames 所有已知指標，順序即同分時的優先順序
var MetricNames = []string{
	MetricHydration,
	MetricAcne,
	MetricDarkSpots,
	MetricFineLines,
	MetricRedness,
	MetricSmoothness,
	MetricRadiance,
	MetricFirmness,
	MetricDarkCircle,
	MetricOverall,
}

// 推薦來源標籤
const (
	SourceSearch    = "perplexity_search"
	SourceFavorites = "user_favorites"
	SourceFallback  = "fallback_catalog"
)

// SkinMetrics 指標分數 (0-100，越高越好)
type SkinMetrics map[string]float64

// Score 返回指標分數，缺少的指標視為 100
func (m SkinMetrics) Score(name string) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return 100
}

// Location 使用者所在地
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

// String 以「城市, 州 郵遞區號」格式輸出
func (l Location) String() string {
	out := l.City
	if l.State != "" {
		if out != "" {
			out += ", "
		}
		out += l.State
	}
	if l.ZipCode != "" {
		if out != "" {
			out += " "
		}
		out += l.ZipCode
	}
	return out
}

// SkinProfileContext 單次請求的膚況上下文，建立後不再修改
type SkinProfileContext struct {
	Metrics  SkinMetrics `json:"metrics"`
	SkinType string      `json:"skinType"`
	AgeGroup string      `json:"ageGroup"`
	Location Location    `json:"location"`
	Budget   string      `json:"budget,omitempty"`
}

// ProductCandidate 解析階段產出的候選商品，所有欄位皆可缺省
type ProductCandidate struct {
	Name           *string
	Brand          *string
	Category       *string
	Price          *string
	Description    *string
	StoreLink      *string
	Stores         *string // 連結欄中非網址的通路文字
	Availability   *string
	Ingredients    *string
	MatchReasoning *string
	Usage          *string
	AffiliateLink  *string
	TrackingLink   *string
	SourceBlock    *string
}

// Availability 商品通路
type Availability struct {
	LocalStores  []string `json:"localStores"`
	OnlineStores []string `json:"onlineStores"`
	LocationNote string   `json:"locationNote,omitempty"`
}

// NormalizedRecommendation 正規化後的推薦商品
type NormalizedRecommendation struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Brand              string        `json:"brand"`
	Category           string        `json:"category"`
	PriceRange         string        `json:"priceRange"`
	CompatibilityScore float64       `json:"compatibilityScore"`
	Source             string        `json:"source"`
	Description        string        `json:"description,omitempty"`
	ImageURL           string        `json:"imageUrl,omitempty"`
	CurrentPrice       *float64      `json:"currentPrice,omitempty"`
	Availability       *Availability `json:"availability,omitempty"`
	MatchReasoning     string        `json:"matchReasoning,omitempty"`
	UsageInstructions  string        `json:"usageInstructions,omitempty"`
	KeyIngredients     []string      `json:"keyIngredients,omitempty"`
	ProductURL         string        `json:"productUrl,omitempty"`
	AffiliateLink      string        `json:"affiliateLink,omitempty"`
	TrackingLink       string        `json:"trackingLink,omitempty"`
	Retailer           string        `json:"retailer,omitempty"`
}

// InteractionType 互動類型
type InteractionType string

const (
	InteractionViewed    InteractionType = "viewed"
	InteractionLiked     InteractionType = "liked"
	InteractionSaved     InteractionType = "saved"
	InteractionPurchased InteractionType = "purchased"
)

// PositiveInteractions 可作為快取推薦來源的互動類型
var PositiveInteractions = []InteractionType{InteractionLiked, InteractionSaved, InteractionPurchased}

// Valid 檢查互動類型是否合法
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionViewed, InteractionLiked, InteractionSaved, InteractionPurchased:
		return true
	}
	return false
}

// Positive 判斷是否為正向互動
func (t InteractionType) Positive() bool {
	return t == InteractionLiked || t == InteractionSaved || t == InteractionPurchased
}

// CacheEntry 使用者推薦快取條目
type CacheEntry struct {
	ID              string                   `json:"id"`
	UserID          string                   `json:"userId"`
	Recommendation  NormalizedRecommendation `json:"recommendation"`
	InteractionType InteractionType          `json:"interactionType"`
	CreatedAt       time.Time                `json:"createdAt"`
	ExpiresAt       time.Time                `json:"expiresAt"`
}

// Interaction 互動紀錄，不受快取 TTL 影響
type Interaction struct {
	ID                string                   `json:"id"`
	UserID            string                   `json:"userId"`
	Product           NormalizedRecommendation `json:"product"`
	Type              InteractionType          `json:"interactionType"`
	RelatedAnalysisID string                   `json:"relatedAnalysisId,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
}

// RoutineStep 保養步驟
type RoutineStep struct {
	Product      string `json:"product"`
	Category     string `json:"category"`
	StepOrder    int    `json:"stepOrder"`
	Instructions string `json:"instructions,omitempty"`
}

// Routine 早晚保養流程
type Routine struct {
	Morning []RoutineStep `json:"morning"`
	Evening []RoutineStep `json:"evening"`
}

// ShoppingItem 購物清單項目
type ShoppingItem struct {
	Product    string   `json:"product"`
	Category   string   `json:"category"`
	PriceRange string   `json:"priceRange"`
	WhereToBuy []string `json:"whereToBuy,omitempty"`
	DirectLink string   `json:"directLink,omitempty"`
}

// ShoppingList 分級購物清單
type ShoppingList struct {
	ImmediatePriorities []ShoppingItem `json:"immediatePriorities"`
	NextAdditions       []ShoppingItem `json:"nextAdditions"`
	TotalEstimatedCost  string         `json:"totalEstimatedCost"`
}

// SourceMix 快取與新搜尋結果的比例
type SourceMix struct {
	CachedCount  int  `json:"cachedCount"`
	FreshCount   int  `json:"freshCount"`
	FallbackUsed bool `json:"fallbackUsed"`
}

// Bundle 推薦結果
type Bundle struct {
	Recommendations   []NormalizedRecommendation `json:"recommendations"`
	RoutineSuggestion Routine                    `json:"routineSuggestion"`
	ShoppingList      ShoppingList               `json:"shoppingList"`
	SourceMix         SourceMix                  `json:"sourceMix"`
	Citations         []string                   `json:"citations,omitempty"`
	Location          Location                   `json:"location"`
	GeneratedAt       time.Time                  `json:"generatedAt"`
}
