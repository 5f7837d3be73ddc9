package recommendation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skin-recommender/internal/core/ai/provider"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"go.uber.org/zap"
)

// Request 推薦請求
type Request struct {
	UserID  string
	Profile SkinProfileContext
	Limit   int
}

// Validate 驗證請求
func (r *Request) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return common.NewValidationError("user_id is required")
	}
	for name, v := range r.Profile.Metrics {
		if v < 0 || v > 100 {
			return common.NewValidationError(fmt.Sprintf("metric %s must be between 0 and 100", name))
		}
	}
	return nil
}

// Service 推薦流程協調者：合併快取與新搜尋結果並組出完整推薦
type Service struct {
	config     *config.Config
	searcher   provider.Searcher
	store      Store
	normalizer *Normalizer
	ranking    RankingSignal
	now        func() time.Time
}

// Option 服務選項
type Option func(*Service)

// WithRankingSignal 設定正向互動的排序訊號
func WithRankingSignal(r RankingSignal) Option {
	return func(s *Service) {
		if r != nil {
			s.ranking = r
		}
	}
}

// WithClock 設定時間來源，測試使用
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 創建推薦服務
func NewService(cfg *config.Config, searcher provider.Searcher, store Store, opts ...Option) *Service {
	s := &Service{
		config:     cfg,
		searcher:   searcher,
		store:      store,
		normalizer: NewNormalizer(),
		ranking:    NopRankingSignal{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLimit 未指定時使用預設數量，超過上限時截斷
func (s *Service) ResolveLimit(limit int) int {
	rc := s.config.Recommendation
	if limit <= 0 {
		return rc.DefaultLimit
	}
	if limit > rc.MaxLimit {
		return rc.MaxLimit
	}
	return limit
}

// GetRecommendations 合併快取與新搜尋結果；除了請求驗證錯誤外一律返回非空結果
func (s *Service) GetRecommendations(ctx context.Context, req *Request) (*Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	limit := s.ResolveLimit(req.Limit)
	maxCached := limit
	if s.config.Recommendation.MaxCached < maxCached {
		maxCached = s.config.Recommendation.MaxCached
	}

	seen := newSeenSet()
	cached := s.getCached(ctx, req.UserID, req.Profile, maxCached, now, seen)

	var (
		fresh        []NormalizedRecommendation
		citations    []string
		fallbackUsed bool
	)
	if needed := limit - len(cached); needed > 0 {
		fresh, citations, fallbackUsed = s.fetchFresh(ctx, req, needed, seen)
		if len(fresh) > 0 && !fallbackUsed {
			s.cacheFresh(ctx, req.UserID, fresh, now)
		}
	}

	if len(cached) == 0 && len(fresh) == 0 {
		common.LogWarn("快取與搜尋皆無結果，使用備援目錄", zap.String("user_id", req.UserID))
		fresh = s.normalizeAll(FallbackCatalog(req.Profile.SkinType), req.Profile, SourceFallback, limit, newSeenSet())
		fallbackUsed = true
	}

	recs := make([]NormalizedRecommendation, 0, len(cached)+len(fresh))
	recs = append(recs, cached...)
	recs = append(recs, fresh...)
	if len(recs) > limit {
		recs = recs[:limit]
	}

	cachedCount := len(cached)
	if cachedCount > len(recs) {
		cachedCount = len(recs)
	}

	common.LogInfo("推薦已產生",
		zap.String("user_id", req.UserID),
		zap.Int("limit", limit),
		zap.Int("cached", cachedCount),
		zap.Int("fresh", len(recs)-cachedCount),
		zap.Bool("fallback", fallbackUsed),
	)

	return &Bundle{
		Recommendations:   recs,
		RoutineSuggestion: ComposeRoutine(recs),
		ShoppingList:      ComposeShoppingList(recs),
		SourceMix: SourceMix{
			CachedCount:  cachedCount,
			FreshCount:   len(recs) - cachedCount,
			FallbackUsed: fallbackUsed,
		},
		Citations:   citations,
		Location:    req.Profile.Location,
		GeneratedAt: now.UTC(),
	}, nil
}

// getCached 讀取 TTL 內的正向互動商品，新到舊
func (s *Service) getCached(ctx context.Context, userID string, p SkinProfileContext, n int, now time.Time, seen *seenSet) []NormalizedRecommendation {
	if n <= 0 || s.store == nil {
		return nil
	}

	entries, err := s.store.RecentEntries(ctx, userID, PositiveInteractions, now.Add(-s.config.Cache.TTL), s.config.Cache.MaxItemsPerUser)
	if err != nil {
		common.LogWarn("讀取推薦快取失敗，改用新搜尋結果",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	var out []NormalizedRecommendation
	for _, e := range entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			continue
		}
		rec := e.Recommendation
		if !s.isRelevant(rec, p) || !seen.add(rec) {
			continue
		}
		rec.Source = SourceFavorites
		out = append(out, rec)
		if len(out) == n {
			break
		}
	}

	if len(out) > 0 {
		common.LogCacheHit("recommendation", len(out))
	} else {
		common.LogCacheMiss("recommendation")
	}
	return out
}

// isRelevant 判斷快取商品是否仍適合目前膚況
func (s *Service) isRelevant(rec NormalizedRecommendation, p SkinProfileContext) bool {
	if s.config.Cache.Relevance != config.RelevanceConcerns {
		return true
	}
	concerns := Concerns(p)
	if len(concerns) == 0 {
		return true
	}
	text := strings.ToLower(strings.Join([]string{
		rec.Name, rec.Description, strings.Join(rec.KeyIngredients, " "), rec.MatchReasoning,
	}, " "))
	for _, c := range concerns {
		if containsAny(text, metricProfiles[c.Metric].keywords) {
			return true
		}
	}
	return false
}

// fetchFresh 查詢 → 搜尋 → 解析 → 正規化
func (s *Service) fetchFresh(ctx context.Context, req *Request, needed int, seen *seenSet) ([]NormalizedRecommendation, []string, bool) {
	if s.searcher == nil {
		return nil, nil, false
	}

	query, directive := BuildQuery(req.Profile, needed)
	result, err := s.searcher.Search(ctx, &provider.Request{Query: query, Directive: directive})
	if err != nil {
		common.LogWarn("外部搜尋失敗", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, nil, false
	}
	if result.Empty() {
		common.LogWarn("外部搜尋無內容", zap.String("user_id", req.UserID))
		return nil, nil, false
	}

	chain := DefaultChain(req.Profile.SkinType)
	candidates, stage := chain.Parse(result.Text)
	source := SourceSearch
	fallback := stage == StageFallback
	if fallback {
		source = SourceFallback
		common.LogWarn("搜尋結果無法解析，改用備援目錄",
			zap.String("user_id", req.UserID),
			zap.Int("text_length", len(result.Text)),
			zap.Strings("stages", chain.Stages()),
		)
	} else {
		common.LogDebug("搜尋結果已解析",
			zap.String("user_id", req.UserID),
			zap.String("stage", stage),
			zap.Int("candidates", len(candidates)),
		)
	}

	return s.normalizeAll(candidates, req.Profile, source, needed, seen), result.Citations, fallback
}

func (s *Service) normalizeAll(candidates []ProductCandidate, p SkinProfileContext, source string, limit int, seen *seenSet) []NormalizedRecommendation {
	out := make([]NormalizedRecommendation, 0, len(candidates))
	for _, c := range candidates {
		rec := s.normalizer.Normalize(c, p, source)
		if !seen.add(rec) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out
}

// cacheFresh 寫入新搜尋結果並清除過期條目
func (s *Service) cacheFresh(ctx context.Context, userID string, recs []NormalizedRecommendation, now time.Time) {
	if s.store == nil {
		return
	}
	for _, rec := range recs {
		entry := &CacheEntry{
			ID:              common.GenerateUUID(),
			UserID:          userID,
			Recommendation:  rec,
			InteractionType: InteractionViewed,
			CreatedAt:       now,
			ExpiresAt:       now.Add(s.config.Cache.TTL),
		}
		if err := s.store.InsertEntry(ctx, entry); err != nil {
			common.LogWarn("寫入推薦快取失敗", zap.String("user_id", userID), zap.Error(err))
			return
		}
	}
	s.purge(ctx, userID, now)
}

func (s *Service) purge(ctx context.Context, userID string, now time.Time) {
	removed, err := s.store.PurgeExpired(ctx, userID, now)
	if err != nil {
		common.LogWarn("清除過期快取失敗", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if removed > 0 {
		common.LogDebug("已清除過期快取", zap.String("user_id", userID), zap.Int("count", removed))
	}
}

// TrackInteraction 記錄使用者對商品的互動
func (s *Service) TrackInteraction(ctx context.Context, in *Interaction) error {
	if strings.TrimSpace(in.UserID) == "" {
		return common.NewValidationError("user_id is required")
	}
	if !in.Type.Valid() {
		return common.NewValidationError(fmt.Sprintf("unknown interaction type: %s", in.Type))
	}
	if strings.TrimSpace(in.Product.Name) == "" {
		return common.NewValidationError("product name is required")
	}
	if s.store == nil {
		return common.ErrCacheUnavailable
	}

	now := s.now()
	if in.ID == "" {
		in.ID = common.GenerateUUID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.Product = completeSnapshot(in.Product)

	entry := &CacheEntry{
		ID:              common.GenerateUUID(),
		UserID:          in.UserID,
		Recommendation:  in.Product,
		InteractionType: in.Type,
		CreatedAt:       in.CreatedAt,
		ExpiresAt:       in.CreatedAt.Add(s.config.Cache.TTL),
	}
	if err := s.store.InsertEntry(ctx, entry); err != nil {
		return common.ErrCacheUnavailable.Wrap(err)
	}
	if err := s.store.AppendInteraction(ctx, in); err != nil {
		return common.ErrCacheUnavailable.Wrap(err)
	}
	s.purge(ctx, in.UserID, now)

	if in.Type.Positive() {
		if err := s.ranking.Record(ctx, in.UserID, in.Product, in.Type); err != nil {
			common.LogWarn("排序訊號記錄失敗", zap.String("user_id", in.UserID), zap.Error(err))
		}
	}

	common.LogInfo("互動已記錄",
		zap.String("user_id", in.UserID),
		zap.String("interaction_id", in.ID),
		zap.String("type", string(in.Type)),
	)
	return nil
}

// completeSnapshot 補齊外部傳入商品的必填欄位
func completeSnapshot(rec NormalizedRecommendation) NormalizedRecommendation {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Brand == "" {
		rec.Brand = brandFor("", rec.Name, rec.Name != "")
	}
	if !knownCategories[rec.Category] {
		rec.Category = categoryFor(rec.Category, rec.Name, rec.Description)
	}
	if rec.PriceRange == "" {
		rec.PriceRange = DefaultPriceRange
	}
	if rec.ID == "" {
		rec.ID = recommendationID(rec.Brand, rec.Name)
	}
	if rec.ImageURL == "" {
		rec.ImageURL = ImageURLFor(rec.Brand, rec.Name)
	}
	if rec.CompatibilityScore <= 0 {
		rec.CompatibilityScore = baseScore
	}
	if rec.CompatibilityScore > maxScore {
		rec.CompatibilityScore = maxScore
	}
	return rec
}

// seenSet 以網址與名稱鍵去重
type seenSet struct {
	urls  map[string]bool
	names map[string]bool
}

func newSeenSet() *seenSet {
	return &seenSet{urls: make(map[string]bool), names: make(map[string]bool)}
}

// add 未出現過時加入並返回 true
func (s *seenSet) add(rec NormalizedRecommendation) bool {
	key := nameKey(rec.Name)
	if rec.ProductURL != "" && s.urls[rec.ProductURL] {
		return false
	}
	if key != "" && s.names[key] {
		return false
	}
	if rec.ProductURL != "" {
		s.urls[rec.ProductURL] = true
	}
	if key != "" {
		s.names[key] = true
	}
	return true
}
