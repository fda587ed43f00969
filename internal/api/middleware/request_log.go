// Package middleware 提供查询 API 的 gin 中间件。
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录每个 HTTP 请求的访问日志。
//
// 在请求处理完成后输出方法、路径、状态码、来源 IP 和耗时。
//
// 参数:
//
//	logger: 日志记录器（为 nil 时跳过输出）
//
// 返回值:
//
//	gin.HandlerFunc: 可注册到路由引擎的中间件
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil {
			return
		}

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", time.Since(start).String()),
		)
	}
}
