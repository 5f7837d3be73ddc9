package recommendation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"skin-recommender/internal/core/ai/perplexity"
	"skin-recommender/internal/core/ai/provider"
	"skin-recommender/internal/core/ai/ratelimit"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore 測試用記憶體儲存
type fakeStore struct {
	mu           sync.Mutex
	entries      []CacheEntry
	interactions []Interaction
	readErr      error
	writeErr     error
	purged       int
}

func (f *fakeStore) InsertEntry(_ context.Context, entry *CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeStore) RecentEntries(_ context.Context, userID string, types []InteractionType, since time.Time, limit int) ([]CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []CacheEntry
	for _, e := range f.entries {
		if e.UserID == userID && MatchesType(e.InteractionType, types) && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) PurgeExpired(_ context.Context, userID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	removed := 0
	for _, e := range f.entries {
		if e.UserID == userID && now.After(e.ExpiresAt) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	f.purged += removed
	return removed, nil
}

func (f *fakeStore) AppendInteraction(_ context.Context, in *Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, *in)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) entriesOf(t InteractionType) []CacheEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CacheEntry
	for _, e := range f.entries {
		if e.InteractionType == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeSearcher 返回固定文字
type fakeSearcher struct {
	text      string
	citations []string
	err       error
	calls     int
	last      *provider.Request
}

func (f *fakeSearcher) Search(_ context.Context, req *provider.Request) (*provider.Result, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Result{Text: f.text, Citations: f.citations}, nil
}

func (f *fakeSearcher) GetModel() string { return "fake" }

// recordingSignal 記錄排序訊號
type recordingSignal struct {
	types []InteractionType
}

func (r *recordingSignal) Record(_ context.Context, _ string, _ NormalizedRecommendation, t InteractionType) error {
	r.types = append(r.types, t)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Search.MinDelay = time.Millisecond
	cfg.Search.BackoffBase = time.Millisecond
	return cfg
}

func newTestService(cfg *config.Config, searcher provider.Searcher, store Store, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(cfg, searcher, store, opts...)
}

func tableText(rows int) string {
	var b strings.Builder
	b.WriteString("PRODUCT RECOMMENDATIONS:\n\n")
	b.WriteString("| Product Name | Price | Description | Link | Availability |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "| Acme Hydrating Formula %d | $%d-$%d | Hyaluronic acid serum number %d | https://www.ulta.com/p/acme-%d | Ulta, Target |\n",
			i, 10+i, 15+i, i, i)
	}
	return b.String()
}

func profile() SkinProfileContext {
	return SkinProfileContext{
		Metrics:  SkinMetrics{MetricHydration: 50, MetricAcne: 90, MetricSmoothness: 55},
		SkinType: "Dry",
		AgeGroup: "25_34",
		Location: Location{City: "Austin", State: "TX", ZipCode: "78701"},
	}
}

func favorite(userID, name string, t InteractionType, age time.Duration) CacheEntry {
	return CacheEntry{
		ID:     "entry-" + name,
		UserID: userID,
		Recommendation: NormalizedRecommendation{
			Name:       name,
			Brand:      "Acme",
			Category:   CategorySerum,
			PriceRange: "$20",
			ProductURL: "https://www.sephora.com/p/" + strings.ReplaceAll(strings.ToLower(name), " ", "-"),
			Source:     SourceSearch,
		},
		InteractionType: t,
		CreatedAt:       fixedNow.Add(-age),
		ExpiresAt:       fixedNow.Add(-age).Add(24 * time.Hour),
	}
}

func TestGetRecommendations_EndToEnd(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-test", r.Header.Get("Authorization"))

		content, _ := common.ToJSON(tableText(4))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%s}}],"citations":["https://example.com/a"]}`, content)
	}))
	defer server.Close()

	cfg := testConfig()
	client := perplexity.NewClient(provider.Config{
		APIKey:      "pplx-test",
		BaseURL:     server.URL,
		Model:       "sonar",
		Timeout:     time.Second,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
	}, ratelimit.NewLimiter(0))
	store := &fakeStore{}
	svc := newTestService(cfg, client, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	require.Len(t, bundle.Recommendations, 3)
	for _, r := range bundle.Recommendations {
		assert.NotEmpty(t, r.PriceRange)
		assert.True(t, strings.HasPrefix(r.ProductURL, "https://"), r.ProductURL)
		assert.Equal(t, SourceSearch, r.Source)
		assert.Equal(t, "Acme", r.Brand)
		assert.Equal(t, "Ulta", r.Retailer)
	}
	assert.Equal(t, "$11-$16", bundle.Recommendations[0].PriceRange)
	assert.Equal(t, SourceMix{CachedCount: 0, FreshCount: 3}, bundle.SourceMix)
	assert.Equal(t, []string{"https://example.com/a"}, bundle.Citations)
	assert.Equal(t, "Austin", bundle.Location.City)
	assert.Equal(t, fixedNow, bundle.GeneratedAt)
	assert.Equal(t, "$36-$51", bundle.ShoppingList.TotalEstimatedCost)

	viewed := store.entriesOf(InteractionViewed)
	require.Len(t, viewed, 3)
	assert.Equal(t, fixedNow.Add(24*time.Hour), viewed[0].ExpiresAt)
}

func TestGetRecommendations_EmptyUpstreamUsesCatalog(t *testing.T) {
	store := &fakeStore{}
	searcher := &fakeSearcher{text: ""}
	svc := newTestService(testConfig(), searcher, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: SkinProfileContext{}})
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.calls)
	require.Len(t, bundle.Recommendations, 4)
	for _, r := range bundle.Recommendations {
		assert.Equal(t, SourceFallback, r.Source)
	}
	assert.True(t, bundle.SourceMix.FallbackUsed)
	assert.Empty(t, store.entriesOf(InteractionViewed))
}

func TestGetRecommendations_UnparseableUpstreamIsNotCached(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(testConfig(), &fakeSearcher{text: "Sorry, I could not find anything useful."}, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: SkinProfileContext{SkinType: "oily"}})
	require.NoError(t, err)

	require.Len(t, bundle.Recommendations, 5)
	assert.True(t, bundle.SourceMix.FallbackUsed)
	assert.Equal(t, SourceFallback, bundle.Recommendations[0].Source)
	assert.Empty(t, store.entriesOf(InteractionViewed))
}

func TestGetRecommendations_SearchErrorUsesCatalog(t *testing.T) {
	svc := newTestService(testConfig(), &fakeSearcher{err: errors.New("boom")}, nil)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Recommendations)
	assert.True(t, bundle.SourceMix.FallbackUsed)
}

func TestGetRecommendations_MergesCachedFirst(t *testing.T) {
	for limit := 1; limit <= 10; limit++ {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			store := &fakeStore{entries: []CacheEntry{
				favorite("u1", "Liked Serum", InteractionLiked, time.Hour),
				favorite("u1", "Saved Serum", InteractionSaved, 2*time.Hour),
				favorite("u1", "Bought Serum", InteractionPurchased, 3*time.Hour),
				favorite("u1", "Extra Serum", InteractionLiked, 4*time.Hour),
				favorite("u1", "Viewed Serum", InteractionViewed, time.Minute),
				favorite("u2", "Other User Serum", InteractionLiked, time.Minute),
			}}
			svc := newTestService(testConfig(), &fakeSearcher{text: tableText(10)}, store)

			bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: limit})
			require.NoError(t, err)

			recs := bundle.Recommendations
			require.Len(t, recs, limit)

			wantCached := limit
			if wantCached > 3 {
				wantCached = 3
			}
			assert.Equal(t, wantCached, bundle.SourceMix.CachedCount)
			assert.Equal(t, limit-wantCached, bundle.SourceMix.FreshCount)
			assert.False(t, bundle.SourceMix.FallbackUsed)

			for i, r := range recs {
				if i < wantCached {
					assert.Equal(t, SourceFavorites, r.Source)
				} else {
					assert.Equal(t, SourceSearch, r.Source)
				}
			}
			assert.Equal(t, "Liked Serum", recs[0].Name)

			names := make(map[string]bool)
			for _, r := range recs {
				assert.False(t, names[r.Name], "duplicate %s", r.Name)
				names[r.Name] = true
				assert.NotEqual(t, "Viewed Serum", r.Name)
				assert.NotEqual(t, "Other User Serum", r.Name)
			}
		})
	}
}

func TestGetRecommendations_CacheReadErrorDegrades(t *testing.T) {
	store := &fakeStore{readErr: errors.New("connection refused")}
	svc := newTestService(testConfig(), &fakeSearcher{text: tableText(5)}, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: 5})
	require.NoError(t, err)
	assert.Len(t, bundle.Recommendations, 5)
	assert.Equal(t, 0, bundle.SourceMix.CachedCount)
}

func TestGetRecommendations_SkipsExpiredEntries(t *testing.T) {
	expired := favorite("u1", "Stale Serum", InteractionLiked, time.Hour)
	expired.ExpiresAt = fixedNow.Add(-time.Minute)
	store := &fakeStore{entries: []CacheEntry{expired}}
	svc := newTestService(testConfig(), &fakeSearcher{text: tableText(2)}, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, bundle.SourceMix.CachedCount)
	for _, r := range bundle.Recommendations {
		assert.NotEqual(t, "Stale Serum", r.Name)
	}
}

func TestGetRecommendations_DedupesFreshAgainstCached(t *testing.T) {
	cached := favorite("u1", "Acme Hydrating Formula 1", InteractionSaved, time.Hour)
	store := &fakeStore{entries: []CacheEntry{cached}}
	svc := newTestService(testConfig(), &fakeSearcher{text: tableText(3)}, store)

	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: 3})
	require.NoError(t, err)

	require.Len(t, bundle.Recommendations, 3)
	assert.Equal(t, SourceFavorites, bundle.Recommendations[0].Source)
	assert.Equal(t, "Acme Hydrating Formula 2", bundle.Recommendations[1].Name)
	assert.Equal(t, "Acme Hydrating Formula 3", bundle.Recommendations[2].Name)
}

func TestGetRecommendations_ConcernRelevance(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Relevance = config.RelevanceConcerns

	relevant := favorite("u1", "Hydrating Serum", InteractionLiked, time.Hour)
	unrelated := favorite("u1", "Lip Balm", InteractionLiked, 2*time.Hour)
	store := &fakeStore{entries: []CacheEntry{relevant, unrelated}}
	svc := newTestService(cfg, &fakeSearcher{text: tableText(5)}, store)

	p := SkinProfileContext{Metrics: SkinMetrics{MetricHydration: 40}}
	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: p, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, bundle.SourceMix.CachedCount)
	assert.Equal(t, "Hydrating Serum", bundle.Recommendations[0].Name)
}

func TestGetRecommendations_Validation(t *testing.T) {
	svc := newTestService(testConfig(), &fakeSearcher{}, &fakeStore{})

	_, err := svc.GetRecommendations(context.Background(), &Request{UserID: " "})
	assert.True(t, common.IsValidationError(err))

	_, err = svc.GetRecommendations(context.Background(), &Request{
		UserID:  "u1",
		Profile: SkinProfileContext{Metrics: SkinMetrics{MetricAcne: 120}},
	})
	require.Error(t, err)
	assert.True(t, common.IsValidationError(err))
	assert.Contains(t, err.Error(), "acne")
}

func TestResolveLimit(t *testing.T) {
	svc := newTestService(testConfig(), nil, nil)
	assert.Equal(t, 7, svc.ResolveLimit(0))
	assert.Equal(t, 7, svc.ResolveLimit(-3))
	assert.Equal(t, 4, svc.ResolveLimit(4))
	assert.Equal(t, 10, svc.ResolveLimit(25))
}

func TestTrackInteraction(t *testing.T) {
	store := &fakeStore{}
	signal := &recordingSignal{}
	svc := newTestService(testConfig(), &fakeSearcher{text: tableText(5)}, store, WithRankingSignal(signal))

	in := &Interaction{
		UserID:            "u1",
		Type:              InteractionLiked,
		RelatedAnalysisID: "analysis-1",
		Product:           NormalizedRecommendation{Name: "CeraVe Moisturizing Cream"},
	}
	require.NoError(t, svc.TrackInteraction(context.Background(), in))

	assert.NotEmpty(t, in.ID)
	assert.Equal(t, fixedNow, in.CreatedAt)
	assert.Equal(t, "CeraVe", in.Product.Brand)
	assert.Equal(t, CategoryMoisturizer, in.Product.Category)
	assert.Equal(t, DefaultPriceRange, in.Product.PriceRange)

	liked := store.entriesOf(InteractionLiked)
	require.Len(t, liked, 1)
	assert.Equal(t, fixedNow.Add(24*time.Hour), liked[0].ExpiresAt)
	require.Len(t, store.interactions, 1)
	assert.Equal(t, "analysis-1", store.interactions[0].RelatedAnalysisID)
	assert.Equal(t, []InteractionType{InteractionLiked}, signal.types)

	// 正向互動會出現在下一次推薦
	bundle, err := svc.GetRecommendations(context.Background(), &Request{UserID: "u1", Profile: profile(), Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "CeraVe Moisturizing Cream", bundle.Recommendations[0].Name)
	assert.Equal(t, SourceFavorites, bundle.Recommendations[0].Source)
}

func TestTrackInteraction_ViewedSkipsRankingSignal(t *testing.T) {
	store := &fakeStore{}
	signal := &recordingSignal{}
	svc := newTestService(testConfig(), nil, store, WithRankingSignal(signal))

	err := svc.TrackInteraction(context.Background(), &Interaction{
		UserID:  "u1",
		Type:    InteractionViewed,
		Product: NormalizedRecommendation{Name: "Some Toner"},
	})
	require.NoError(t, err)
	assert.Empty(t, signal.types)
	assert.Len(t, store.interactions, 1)
}

func TestTrackInteraction_Errors(t *testing.T) {
	product := NormalizedRecommendation{Name: "Some Toner"}
	tests := []struct {
		name       string
		store      Store
		in         *Interaction
		validation bool
		wantErr    error
	}{
		{"missing user", &fakeStore{}, &Interaction{Type: InteractionLiked, Product: product}, true, nil},
		{"unknown type", &fakeStore{}, &Interaction{UserID: "u1", Type: "shared", Product: product}, true, nil},
		{"missing product", &fakeStore{}, &Interaction{UserID: "u1", Type: InteractionSaved}, true, nil},
		{"no store", nil, &Interaction{UserID: "u1", Type: InteractionSaved, Product: product}, false, common.ErrCacheUnavailable},
		{"write failure", &fakeStore{writeErr: errors.New("disk full")}, &Interaction{UserID: "u1", Type: InteractionSaved, Product: product}, false, common.ErrCacheUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(testConfig(), nil, tt.store)
			err := svc.TrackInteraction(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.validation, common.IsValidationError(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTrackInteraction_PurgesExpired(t *testing.T) {
	old := favorite("u1", "Old Serum", InteractionLiked, 48*time.Hour)
	store := &fakeStore{entries: []CacheEntry{old}}
	svc := newTestService(testConfig(), nil, store)

	err := svc.TrackInteraction(context.Background(), &Interaction{
		UserID:  "u1",
		Type:    InteractionSaved,
		Product: NormalizedRecommendation{Name: "New Serum"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.purged)
	assert.Len(t, store.entriesOf(InteractionLiked), 0)
}
