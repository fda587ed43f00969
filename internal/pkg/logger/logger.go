package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 根据日志级别字符串创建默认的 slog 日志记录器。
//
// 参数:
//
//	level: 日志级别字符串（debug / info / warn / error，大小写不敏感）
//
// 返回值:
//
//	*slog.Logger: 输出到标准输出的文本格式日志记录器
func NewDefault(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

// parseLevel 将级别字符串映射为 slog.Level，未知值回退到 Info。
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
