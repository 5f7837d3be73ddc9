package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName    = "skin-recommender"
	defaultLogDir  = "logs"
	logFileName    = "skin-recommender.log"
	conciseLogMode = "concise"
)

// 請求與生命週期訊息，concise 模式下只輸出這些
const (
	MsgRequestCompleted = "請求完成"
	MsgServerStarting   = "啟動應用"
	MsgShuttingDown     = "Shutting down server..."
	MsgServerExited     = "Server exited"
)

var (
	// Logger 全局日誌實例，InitLogger 之前為 no-op
	Logger  = zap.NewNop()
	LogMode string

	conciseMessages = map[string]bool{
		MsgRequestCompleted: true,
		MsgServerStarting:   true,
		MsgShuttingDown:     true,
		MsgServerExited:     true,
	}

	// 短級別名稱與顏色
	levelLabels = map[zapcore.Level]string{
		zapcore.DebugLevel: "\033[36mDBG\033[0m",
		zapcore.InfoLevel:  "\033[32mINF\033[0m",
		zapcore.WarnLevel:  "\033[33mWRN\033[0m",
		zapcore.ErrorLevel: "\033[31mERR\033[0m",
		zapcore.FatalLevel: "\033[35mFAT\033[0m",
	}

	// 不寫入日誌的欄位
	sensitiveKeys = []string{"api_key", "authorization", "token", "password", "dsn"}
)

func encoderConfig(colored bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if colored {
		cfg.EncodeLevel = shortLevelEncoder
		cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("15:04:05.000"))
		}
	}
	return cfg
}

func shortLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if label, ok := levelLabels[l]; ok {
		enc.AppendString(label)
		return
	}
	enc.AppendString(l.CapitalString())
}

// InitLogger 初始化日誌系統：彩色終端輸出加上 JSON 檔案
func InitLogger(logLevel string) error {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 讀取 LOG_MODE（必須在 .env 載入後）
	LogMode = os.Getenv("LOG_MODE")

	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = defaultLogDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig(false)), zapcore.AddSync(logFile), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig(true)), zapcore.AddSync(os.Stdout), level),
	)

	Logger = zap.New(core,
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", serviceName)),
	)
	zap.ReplaceGlobals(Logger)

	return nil
}

// LogInfo 記錄信息日誌
func LogInfo(msg string, fields ...zap.Field) {
	if LogMode == conciseLogMode && !conciseMessages[msg] {
		return
	}
	Logger.Info(msg, filterFields(fields)...)
}

// LogError 記錄錯誤日誌
func LogError(msg string, fields ...zap.Field) {
	Logger.Error(msg, filterFields(fields)...)
}

// LogWarn 記錄警告日誌
func LogWarn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, filterFields(fields)...)
}

// LogDebug 記錄調試日誌
func LogDebug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, filterFields(fields)...)
}

// LogFatal 記錄致命錯誤日誌後結束程序
func LogFatal(msg string, fields ...zap.Field) {
	Logger.Fatal(msg, filterFields(fields)...)
}

// Sync 同步日誌緩衝
func Sync() {
	_ = Logger.Sync()
}

// filterFields 過濾敏感欄位；已遮罩的 key 以 masked_ 前綴保留
func filterFields(fields []zap.Field) []zap.Field {
	filtered := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if isSensitive(field.Key) {
			continue
		}
		filtered = append(filtered, field)
	}
	return filtered
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "masked_") {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// LogCacheHit 記錄快取命中
func LogCacheHit(backend string, count int) {
	LogInfo("快取命中", zap.String("backend", backend), zap.Int("count", count))
}

// LogCacheMiss 記錄快取未命中
func LogCacheMiss(backend string) {
	LogDebug("快取未命中", zap.String("backend", backend))
}

// LogSearchCall 記錄外部搜尋調用
func LogSearchCall(model string, attempt int, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("model", model),
		zap.Int("attempt", attempt),
		zap.Duration("耗時", duration),
	}
	if err != nil {
		LogWarn("搜尋請求失敗", append(fields, zap.Error(err))...)
		return
	}
	LogInfo("搜尋請求成功", fields...)
}
