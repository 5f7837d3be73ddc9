package recommendation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skin-recommender/internal/core/ai/provider"
	"skin-recommender/internal/core/cache"
	"skin-recommender/internal/core/queue"
	core "skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchText = `| Product Name | Price | Description | Link | Availability |
|---|---|---|---|---|
| CeraVe Hydrating Facial Cleanser | $14-$17 | Gentle hydrating cleanser | https://www.target.com/p/cerave | Target |
| The Ordinary Niacinamide 10% + Zinc 1% | $6 | Oil control serum | https://www.ulta.com/p/niacinamide | Ulta |
`

// stubSearcher 返回固定搜尋結果
type stubSearcher struct{}

func (stubSearcher) Search(context.Context, *provider.Request) (*provider.Result, error) {
	return &provider.Result{Text: searchText, Citations: []string{"https://example.com"}}, nil
}

func (stubSearcher) GetModel() string { return "stub" }

type fixture struct {
	router *gin.Engine
	store  *cache.MemoryStore
	queue  *queue.Manager
}

func newFixture(t *testing.T, queueSize int, start bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Cache.CleanupInterval = 0
	cfg.Queue.MaxSize = queueSize
	cfg.Queue.Workers = 1

	store := cache.NewMemoryStore(cfg)
	svc := core.NewService(cfg, stubSearcher{}, store)
	q := queue.NewManager(cfg, svc)
	if start {
		q.Start()
	}
	t.Cleanup(func() {
		_ = q.Close(context.Background())
		_ = store.Close()
	})

	h := NewHandler(svc, q, false)
	r := gin.New()
	r.Use(requestid.New())
	r.POST("/api/v1/recommendations", h.HandleRecommendations)
	r.POST("/api/v1/recommendations/interactions", h.HandleTrackInteraction)

	return &fixture{router: r, store: store, queue: q}
}

func (f *fixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleRecommendations(t *testing.T) {
	f := newFixture(t, 8, true)

	w := f.post("/api/v1/recommendations", `{
		"user_id": "u1",
		"skin_metrics": {"hydration": 50, "acne": 90, "smoothness": 55},
		"profile": {"skin_type": "dry", "age_group": "25_34"},
		"location": {"city": "Austin", "state": "TX", "zip_code": "78701"},
		"limit": 2
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var bundle core.Bundle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	require.Len(t, bundle.Recommendations, 2)
	assert.Equal(t, "CeraVe", bundle.Recommendations[0].Brand)
	assert.Equal(t, "$14-$17", bundle.Recommendations[0].PriceRange)
	assert.Equal(t, core.SourceSearch, bundle.Recommendations[0].Source)
	assert.Equal(t, 2, bundle.SourceMix.FreshCount)
	assert.Equal(t, "Austin", bundle.Location.City)
	assert.Equal(t, []string{"https://example.com"}, bundle.Citations)
	assert.NotEmpty(t, bundle.RoutineSuggestion.Evening)
	assert.Equal(t, "$20-$23", bundle.ShoppingList.TotalEstimatedCost)
}

func TestHandleRecommendations_InvalidRequests(t *testing.T) {
	f := newFixture(t, 8, true)

	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"skin_metrics": {"acne": 40}}`},
		{"metric out of range", `{"user_id": "u1", "skin_metrics": {"acne": 140}}`},
		{"negative metric", `{"user_id": "u1", "skin_metrics": {"hydration": -1}}`},
		{"malformed json", `{"user_id": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.post("/api/v1/recommendations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp common.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, common.ErrCodeInvalidRequest, resp.Code)
		})
	}
}

func TestHandleTrackInteraction(t *testing.T) {
	f := newFixture(t, 8, true)

	w := f.post("/api/v1/recommendations/interactions", `{
		"user_id": "u1",
		"interaction_type": "Saved",
		"related_analysis_id": "analysis-7",
		"product": {"name": "CeraVe Moisturizing Cream", "priceRange": "$18"}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp InteractionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.InteractionID)

	require.NoError(t, f.queue.Close(context.Background()))
	logged := f.store.Interactions("u1")
	require.Len(t, logged, 1)
	assert.Equal(t, resp.InteractionID, logged[0].ID)
	assert.Equal(t, core.InteractionSaved, logged[0].Type)
	assert.Equal(t, "analysis-7", logged[0].RelatedAnalysisID)

	entries, err := f.store.RecentEntries(context.Background(), "u1", core.PositiveInteractions, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CeraVe", entries[0].Recommendation.Brand)
}

func TestHandleTrackInteraction_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		code    string
		prefill int
	}{
		{
			name:   "unknown type",
			body:   `{"user_id": "u1", "interaction_type": "shared", "product": {"name": "X Serum"}}`,
			status: http.StatusBadRequest,
			code:   common.ErrCodeInvalidRequest,
		},
		{
			name:   "missing product name",
			body:   `{"user_id": "u1", "interaction_type": "liked", "product": {}}`,
			status: http.StatusBadRequest,
			code:   common.ErrCodeInvalidRequest,
		},
		{
			name:   "missing user",
			body:   `{"interaction_type": "liked", "product": {"name": "X Serum"}}`,
			status: http.StatusBadRequest,
			code:   common.ErrCodeInvalidRequest,
		},
		{
			name:    "queue full",
			body:    `{"user_id": "u1", "interaction_type": "liked", "product": {"name": "X Serum"}}`,
			status:  http.StatusServiceUnavailable,
			code:    "QUEUE_FULL",
			prefill: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1, false)
			for i := 0; i < tt.prefill; i++ {
				_, err := f.queue.Enqueue(&core.Interaction{UserID: "u0", Type: core.InteractionViewed})
				require.NoError(t, err)
			}

			w := f.post("/api/v1/recommendations/interactions", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp common.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
