package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exohunter/internal/catalog"
	"exohunter/internal/config"
	"exohunter/internal/detail"
	"exohunter/internal/pkg/logger"
	"exohunter/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main 是抓取流水线的入口函数。
//
// 它负责：
// 1. 解析命令行参数并加载配置
// 2. 初始化日志与存储
// 3. 按需执行目录发现阶段和详情抓取阶段
// 4. 启动 Metrics 服务
// 5. 优雅关闭
//
// 不带阶段参数时依次执行两个阶段；-catalog / -details 可单独执行某一阶段。
// 进程随时可以中断，重新运行会从上次中断的地方继续。
func main() {
	var (
		catalogOnly = flag.Bool("catalog", false, "only run catalog discovery")
		detailsOnly = flag.Bool("details", false, "only run detail scraping")
		dbPath      = flag.String("db", "", "database file path (overrides config)")
		configPath  = flag.String("config", "", "config file path")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// 配置错误是致命的：在做任何抓取工作之前中止
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)

	st, err := store.Open(cfg.Database.Path, appLogger)
	if err != nil {
		appLogger.Error("open store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	// 不指定阶段时两个阶段都跑
	runCatalog := *catalogOnly || !*detailsOnly
	runDetails := *detailsOnly || !*catalogOnly

	if runCatalog {
		discoverer := catalog.NewDiscoverer(cfg, st, appLogger)
		count, err := discoverer.Discover(ctx)
		if err != nil {
			// 可恢复的停止：已入库的条目保留，详情阶段照常进行
			appLogger.Warn("catalog discovery aborted",
				slog.Int("new_entries", count),
				slog.String("error", err.Error()))
		} else {
			appLogger.Info("catalog discovery completed", slog.Int("new_entries", count))
		}
	}

	if runDetails && ctx.Err() == nil {
		scheduler := detail.NewScheduler(cfg, st, appLogger)
		summary, err := scheduler.Run(ctx)
		if err != nil {
			appLogger.Error("detail scrape failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		if summary.Remaining > 0 {
			appLogger.Warn("some laptops are still pending, re-run to resume",
				slog.Int("remaining", summary.Remaining),
				slog.Any("pending_slugs", summary.PendingSlugs),
				slog.Any("failed_slugs", summary.FailedSlugs))
		}
	}

	counts, err := st.CountLaptops(context.Background())
	if err == nil {
		appLogger.Info("pipeline state",
			slog.Int64("total", counts.Total),
			slog.Int64("done", counts.Done),
			slog.Int64("pending", counts.Pending))
	}

	appLogger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
}
