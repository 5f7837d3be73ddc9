package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"skin-recommender/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDKey handler 設定後會寫入請求日誌
const UserIDKey = "user_id"

// probePaths 健康探測只記錄 debug 日誌
var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
	"/live":   true,
}

// Logger 請求完成後依狀態碼分級記錄
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := requestFields(c, path, time.Since(start))
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			common.LogError("伺服器錯誤", append(fields, zap.String("error_type", "server_error"))...)
		case status >= http.StatusBadRequest:
			common.LogWarn("用戶端錯誤", append(fields, zap.String("error_type", "client_error"))...)
		case probePaths[path]:
			common.LogDebug("探測請求", fields...)
		default:
			common.LogInfo(common.MsgRequestCompleted, fields...)
		}
	}
}

// requestFields requestid 中間件排在之後，需在 c.Next 之後讀取
func requestFields(c *gin.Context, path string, latency time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.Int("status", c.Writer.Status()),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("ip", c.ClientIP()),
		zap.String("user-agent", c.Request.UserAgent()),
		zap.Duration("latency", latency),
		zap.Int("size", c.Writer.Size()),
		zap.String("request_id", requestid.Get(c)),
	}
	if userID := c.GetString(UserIDKey); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
	}
	return fields
}

// Recovery 攔截 panic 並回傳統一的 500 錯誤
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				common.LogError("Panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.ByteString("stack", debug.Stack()),
				)

				_, resp := common.ToResponse(common.ErrInternalError, false)
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()
	}
}
