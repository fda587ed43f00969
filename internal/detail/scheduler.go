// Package detail 实现详情抓取调度器：一次性读出全部待抓取条目，
// 分发给固定大小的 worker 池并发抓取，每个条目带独立的重试与退避。
package detail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"exohunter/internal/config"
	"exohunter/internal/model"
	"exohunter/internal/parse"
	"exohunter/internal/pkg/httpclient"
	"exohunter/internal/pkg/metrics"
	"exohunter/internal/pkg/queue"
)

// Store 调度器需要的存储操作。
type Store interface {
	PendingLaptops(ctx context.Context) ([]model.Laptop, error)
	SaveDetail(ctx context.Context, detail *model.LaptopDetail) error
}

// Summary 一次调度运行的结果汇总。
//
// Remaining 是运行结束后仍处于待抓取状态的条目数，
// 包括重试耗尽的失败条目和因取消而未处理的条目。
// PendingSlugs 按发现顺序列出全部幸存条目，恒有
// len(PendingSlugs) == Remaining。
type Summary struct {
	Total        int      // 本次运行开始时的待抓取条目数
	Success      int      // 成功写入详情的条目数
	Failed       int      // 重试耗尽仍失败的条目数
	Skipped      int      // 因取消而未处理的条目数
	Remaining    int      // 运行结束后仍待抓取的条目数
	FailedSlugs  []string // 重试耗尽条目的 slug
	PendingSlugs []string // 仍待抓取条目的 slug（失败 + 未处理）
}

// Scheduler 详情抓取调度器。
//
// 待抓取集合在运行开始时一次性确定，运行期间新发现的条目
// 要等下一次运行才会被处理。条目之间没有处理顺序保证。
type Scheduler struct {
	store  Store
	logger *slog.Logger

	userAgent      string
	requestDelay   time.Duration
	requestTimeout time.Duration
	workers        int
	maxRetries     int
	retryBackoff   int
	backoffUnit    time.Duration

	// 每个 worker 领取一个客户端并在其所有条目间复用
	clients chan *http.Client

	success atomic.Int64
	failed  atomic.Int64

	mu          sync.Mutex
	failedSlugs []string
	doneSlugs   map[string]bool
}

// NewScheduler 创建详情抓取调度器。
func NewScheduler(cfg *config.Config, store Store, logger *slog.Logger) *Scheduler {
	workers := cfg.Crawler.Workers
	if workers <= 0 {
		workers = 1
	}

	clients := make(chan *http.Client, workers)
	for i := 0; i < workers; i++ {
		clients <- httpclient.New(cfg.Crawler.RequestTimeout)
	}

	return &Scheduler{
		store:          store,
		logger:         logger,
		userAgent:      cfg.Crawler.UserAgent,
		requestDelay:   cfg.Crawler.RequestDelay,
		requestTimeout: cfg.Crawler.RequestTimeout,
		workers:        workers,
		maxRetries:     cfg.Crawler.MaxRetries,
		retryBackoff:   cfg.Crawler.RetryBackoff,
		backoffUnit:    time.Second,
		clients:        clients,
	}
}

// Run 执行一轮详情抓取，直到待抓取集合处理完毕或 ctx 被取消。
//
// 单个条目的失败只影响它自己：重试耗尽后该条目保持待抓取状态，
// 下一次运行会重新处理。取消是协作式的，已在途的条目
// 要么完整落库要么保持待抓取，不存在中间状态。
//
// 返回值:
//
//	Summary: 运行结果汇总
//	error: 读取待抓取集合失败时返回（单条目失败不算运行错误）
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	pending, err := s.store.PendingLaptops(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load pending laptops: %w", err)
	}

	total := len(pending)
	if total == 0 {
		s.logger.Info("no pending laptops, nothing to do")
		return Summary{}, nil
	}

	// 每轮运行从零开始计数
	s.success.Store(0)
	s.failed.Store(0)
	s.mu.Lock()
	s.failedSlugs = nil
	s.doneSlugs = make(map[string]bool, total)
	s.mu.Unlock()

	s.logger.Info("detail scrape started",
		slog.Int("pending", total),
		slog.Int("workers", s.workers))

	q := queue.NewQueue(s.logger, s.workers, total)
	q.Start(ctx)

	for i := range pending {
		laptop := pending[i]
		job := func(jobCtx context.Context) error {
			return s.processItem(jobCtx, laptop)
		}
		if err := q.EnqueueBlocking(ctx, job); err != nil {
			// 取消发生在入队阶段：剩余条目直接留到下次运行
			break
		}
	}

	q.Shutdown()

	// 幸存条目 = 待抓取集合里没有成功落库的一切，
	// 包括被取消跳过的和入队后没被任何 worker 领取的
	summary := Summary{
		Total:       total,
		Success:     int(s.success.Load()),
		Failed:      int(s.failed.Load()),
		FailedSlugs: s.snapshotFailedSlugs(),
	}
	summary.Skipped = summary.Total - summary.Success - summary.Failed
	summary.PendingSlugs = s.survivingSlugs(pending)
	summary.Remaining = len(summary.PendingSlugs)

	s.logger.Info("detail scrape finished",
		slog.Int("total", summary.Total),
		slog.Int("success", summary.Success),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("remaining", summary.Remaining))

	return summary, nil
}

// processItem 处理单个条目：最多 maxRetries 次尝试，失败间指数退避。
//
// 每次尝试前有一个固定的节奏延迟；退避等待只出现在两次尝试之间，
// 最后一次失败后不再等待。取消让条目立即退出并保持待抓取状态。
func (s *Scheduler) processItem(ctx context.Context, laptop model.Laptop) error {
	client := <-s.clients
	defer func() { s.clients <- client }()

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		if err := sleepCtx(ctx, s.requestDelay); err != nil {
			return nil
		}

		lastErr = s.scrapeOnce(ctx, client, &laptop)
		if lastErr == nil {
			s.success.Add(1)
			s.recordDoneSlug(laptop.Slug)
			metrics.DetailRequestsTotal.WithLabelValues("success").Inc()
			metrics.DetailRequestDuration.Observe(time.Since(start).Seconds())
			s.logger.Info("detail scraped",
				slog.String("slug", laptop.Slug),
				slog.Int("attempt", attempt))
			return nil
		}

		s.logger.Warn("detail scrape attempt failed",
			slog.String("slug", laptop.Slug),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxRetries),
			slog.String("error", lastErr.Error()))

		// 最后一次失败后不再退避
		if attempt < s.maxRetries {
			metrics.DetailRetriesTotal.Inc()
			if err := sleepCtx(ctx, s.backoffDelay(attempt)); err != nil {
				return nil
			}
		}
	}

	s.failed.Add(1)
	metrics.DetailRequestsTotal.WithLabelValues("failed").Inc()
	metrics.DetailRequestDuration.Observe(time.Since(start).Seconds())
	s.recordFailedSlug(laptop.Slug)

	return fmt.Errorf("laptop %s failed after %d attempts: %w", laptop.Slug, s.maxRetries, lastErr)
}

// scrapeOnce 单次尝试：抓取 + 解析 + 落库，任一环节失败即整次失败。
func (s *Scheduler) scrapeOnce(ctx context.Context, client *http.Client, laptop *model.Laptop) error {
	doc, err := httpclient.FetchDocument(ctx, client, laptop.URL, s.userAgent)
	if err != nil {
		return err
	}

	detail, err := parse.ParseDetail(doc).Finalize(laptop)
	if err != nil {
		return fmt.Errorf("parse %s: %w", laptop.Slug, err)
	}

	if err := s.store.SaveDetail(ctx, detail); err != nil {
		return err
	}
	return nil
}

// backoffDelay 第 attempt 次失败后的退避等待: base^attempt 个时间单位。
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	base := s.retryBackoff
	if base <= 1 {
		return time.Duration(attempt) * s.backoffUnit
	}
	delay := 1
	for i := 0; i < attempt; i++ {
		delay *= base
	}
	return time.Duration(delay) * s.backoffUnit
}

func (s *Scheduler) recordFailedSlug(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedSlugs = append(s.failedSlugs, slug)
}

func (s *Scheduler) recordDoneSlug(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneSlugs[slug] = true
}

// survivingSlugs 返回本轮没有成功落库的条目 slug，保持发现顺序。
func (s *Scheduler) survivingSlugs(pending []model.Laptop) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	surviving := make([]string, 0, len(pending)-len(s.doneSlugs))
	for _, l := range pending {
		if !s.doneSlugs[l.Slug] {
			surviving = append(surviving, l.Slug)
		}
	}
	return surviving
}

func (s *Scheduler) snapshotFailedSlugs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedSlugs))
	copy(out, s.failedSlugs)
	return out
}

// sleepCtx 可取消的睡眠：ctx 取消时立即返回其错误。
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
