package recommendation

import (
	"context"
	"net/http"
	"strings"

	"skin-recommender/internal/api/middleware"
	core "skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecommendationRequest 依膚況分析結果取得商品推薦
type RecommendationRequest struct {
	UserID      string             `json:"user_id" binding:"required"`
	SkinMetrics map[string]float64 `json:"skin_metrics"` // 指標分數 0-100
	Profile     struct {
		SkinType string `json:"skin_type"`
		AgeGroup string `json:"age_group"`
		Budget   string `json:"budget,omitempty"`
	} `json:"profile"`
	Location struct {
		City    string `json:"city"`
		State   string `json:"state"`
		ZipCode string `json:"zip_code"`
	} `json:"location"`
	Limit int `json:"limit,omitempty"` // 0 表示使用預設數量
}

// InteractionRequest 記錄使用者對推薦商品的互動
type InteractionRequest struct {
	UserID            string                        `json:"user_id" binding:"required"`
	Product           core.NormalizedRecommendation `json:"product"`
	InteractionType   string                        `json:"interaction_type" binding:"required"`
	RelatedAnalysisID string                        `json:"related_analysis_id,omitempty"`
}

// InteractionResponse 互動已排入隊列
type InteractionResponse struct {
	Status        string `json:"status"`
	InteractionID string `json:"interaction_id"`
}

// Recommender 產生推薦
type Recommender interface {
	GetRecommendations(ctx context.Context, req *core.Request) (*core.Bundle, error)
}

// Enqueuer 非同步記錄互動
type Enqueuer interface {
	Enqueue(in *core.Interaction) (string, error)
}

// Handler 推薦處理程序
type Handler struct {
	service Recommender
	queue   Enqueuer
	debug   bool
}

// NewHandler 創建新的推薦處理程序
func NewHandler(service Recommender, queue Enqueuer, debug bool) *Handler {
	return &Handler{
		service: service,
		queue:   queue,
		debug:   debug,
	}
}

// HandleRecommendations 產生推薦商品、保養流程與購物清單
func (h *Handler) HandleRecommendations(c *gin.Context) {
	requestID := requestid.Get(c)

	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		h.writeError(c, common.ErrInvalidRequest.Wrap(err))
		return
	}
	c.Set(middleware.UserIDKey, req.UserID)

	bundle, err := h.service.GetRecommendations(c.Request.Context(), &core.Request{
		UserID: strings.TrimSpace(req.UserID),
		Profile: core.SkinProfileContext{
			Metrics:  core.SkinMetrics(req.SkinMetrics),
			SkinType: req.Profile.SkinType,
			AgeGroup: req.Profile.AgeGroup,
			Budget:   req.Profile.Budget,
			Location: core.Location{
				City:    req.Location.City,
				State:   req.Location.State,
				ZipCode: req.Location.ZipCode,
			},
		},
		Limit: req.Limit,
	})
	if err != nil {
		common.LogWarn("推薦請求失敗",
			zap.Error(err),
			zap.String("request_id", requestID),
			zap.String("user_id", req.UserID),
		)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, bundle)
}

// HandleTrackInteraction 驗證後排入隊列，立即返回 202
func (h *Handler) HandleTrackInteraction(c *gin.Context) {
	requestID := requestid.Get(c)

	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		h.writeError(c, common.ErrInvalidRequest.Wrap(err))
		return
	}
	c.Set(middleware.UserIDKey, req.UserID)

	interactionType := core.InteractionType(strings.ToLower(strings.TrimSpace(req.InteractionType)))
	if !interactionType.Valid() {
		h.writeError(c, common.NewValidationError("unknown interaction type: "+req.InteractionType))
		return
	}
	if strings.TrimSpace(req.Product.Name) == "" {
		h.writeError(c, common.NewValidationError("product name is required"))
		return
	}

	id, err := h.queue.Enqueue(&core.Interaction{
		UserID:            strings.TrimSpace(req.UserID),
		Product:           req.Product,
		Type:              interactionType,
		RelatedAnalysisID: req.RelatedAnalysisID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	common.LogInfo("互動已排入隊列",
		zap.String("request_id", requestID),
		zap.String("interaction_id", id),
		zap.String("type", string(interactionType)),
	)
	c.JSON(http.StatusAccepted, InteractionResponse{
		Status:        "accepted",
		InteractionID: id,
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, resp := common.ToResponse(err, h.debug)
	c.AbortWithStatusJSON(status, resp)
}
