// Package catalog 实现目录发现：顺序翻页抓取分类列表，
// 在第一个"无货"商品处提前停止，并把新发现的条目幂等写入存储。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"exohunter/internal/config"
	"exohunter/internal/model"
	"exohunter/internal/pkg/httpclient"
	"exohunter/internal/pkg/metrics"

	"github.com/PuerkitoBio/goquery"
)

// 列表页结构标记。
const (
	unavailableToken = "ناموجود" // "无货"哨兵标记
	productPathPart  = "/product/"

	pageRetryDelay = 5 * time.Second // 页面抓取失败后重试前的等待
)

// Store 目录发现器需要的存储操作。
type Store interface {
	InsertLaptops(ctx context.Context, laptops []model.Laptop) (int, error)
}

// stopReason 翻页终止原因。
type stopReason int

const (
	stopNone      stopReason = iota
	stopSentinel             // 发现无货哨兵
	stopEmptyPage            // 页面没有任何商品卡片
)

// Discoverer 顺序翻页的目录发现器。
//
// 严格单线程：提前停止规则的正确性依赖页面顺序。
// 站点把在售商品排在无货商品前面（从数据推断的约定，并非站方保证），
// 因此遇到第一个无货商品就整体停止，而不是过滤后继续——
// 这个停止行为是抓取完整性契约的一部分，不能"修"成可用性过滤。
type Discoverer struct {
	store  Store
	client *http.Client
	logger *slog.Logger

	baseURL   string
	userAgent string
	pageSize  int
	maxPages  int
	pageDelay time.Duration
}

// NewDiscoverer 创建目录发现器。
func NewDiscoverer(cfg *config.Config, store Store, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		store:     store,
		client:    httpclient.New(cfg.Crawler.RequestTimeout),
		logger:    logger,
		baseURL:   cfg.Crawler.BaseURL,
		userAgent: cfg.Crawler.UserAgent,
		pageSize:  cfg.Crawler.PageSize,
		maxPages:  cfg.Crawler.MaxPages,
		pageDelay: cfg.Crawler.PageDelay,
	}
}

// Discover 顺序抓取列表页直到任一终止条件触发。
//
// 终止条件（先到先停）：发现无货哨兵；某页没有任何商品卡片；
// 达到页数安全上限；外部取消。
// 单页抓取失败立即重试一次，第二次仍失败则中止发现阶段——
// 已持久化的部分结果保留，这是一次可恢复的停止而不是进程级错误。
//
// 返回值:
//
//	int: 本次新入库的条目数
//	error: 页面连续失败或存储写入失败时返回（可恢复，调用方决定如何报告）
func (d *Discoverer) Discover(ctx context.Context) (int, error) {
	newCount := 0

	for page := 1; page <= d.maxPages; page++ {
		if ctx.Err() != nil {
			d.logger.Info("discovery cancelled", slog.Int("page", page))
			return newCount, nil
		}

		laptops, reason, err := d.scrapePage(ctx, page)
		if err != nil {
			// 失败策略：同一页只立即重试一次
			metrics.CatalogPagesTotal.WithLabelValues("retried").Inc()
			d.logger.Warn("page fetch failed, retrying once",
				slog.Int("page", page),
				slog.String("error", err.Error()))

			if sleepErr := sleepCtx(ctx, pageRetryDelay); sleepErr != nil {
				return newCount, nil
			}

			laptops, reason, err = d.scrapePage(ctx, page)
			if err != nil {
				metrics.CatalogPagesTotal.WithLabelValues("failed").Inc()
				return newCount, fmt.Errorf("page %d failed after retry: %w", page, err)
			}
		}
		metrics.CatalogPagesTotal.WithLabelValues("success").Inc()

		inserted, err := d.store.InsertLaptops(ctx, laptops)
		if err != nil {
			return newCount, fmt.Errorf("persist page %d: %w", page, err)
		}
		newCount += inserted
		metrics.ItemsDiscoveredTotal.Add(float64(len(laptops)))

		d.logger.Info("catalog page processed",
			slog.Int("page", page),
			slog.Int("found", len(laptops)),
			slog.Int("new", inserted),
			slog.Bool("stop", reason != stopNone))

		switch reason {
		case stopSentinel:
			d.logger.Info("out-of-stock marker found, stopping discovery", slog.Int("page", page))
			return newCount, nil
		case stopEmptyPage:
			d.logger.Info("empty listing page, stopping discovery", slog.Int("page", page))
			return newCount, nil
		}

		// 成功页之间的礼貌延迟
		if page < d.maxPages {
			if err := sleepCtx(ctx, d.pageDelay); err != nil {
				return newCount, nil
			}
		}
	}

	d.logger.Info("page safety cap reached", slog.Int("max_pages", d.maxPages))
	return newCount, nil
}

// scrapePage 抓取一个列表页。
//
// 返回该页按出现顺序提取的在售商品、翻页终止原因、以及抓取错误。
// 哨兵商品本身和它之后的所有卡片都被丢弃。
func (d *Discoverer) scrapePage(ctx context.Context, page int) ([]model.Laptop, stopReason, error) {
	pageURL, err := d.buildPageURL(page)
	if err != nil {
		return nil, stopNone, err
	}

	doc, err := httpclient.FetchDocument(ctx, d.client, pageURL, d.userAgent)
	if err != nil {
		return nil, stopNone, err
	}

	cards := doc.Find("div.grid-product")
	if cards.Length() == 0 {
		// 空页也是终止条件
		return nil, stopEmptyPage, nil
	}

	var laptops []model.Laptop
	reason := stopNone

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		// 无货标记：h5.text-danger 含哨兵文本
		marker := card.Find("h5.text-danger")
		if marker.Length() > 0 && strings.Contains(marker.Text(), unavailableToken) {
			reason = stopSentinel
			return false
		}

		link := card.Find("a.font-latin-yekan.text-truncate-2").First()
		if link.Length() == 0 {
			link = card.Find("a[href*='" + productPathPart + "']").First()
		}
		if link.Length() == 0 {
			return true
		}

		href, _ := link.Attr("href")
		if !strings.Contains(href, productPathPart) {
			return true
		}

		fullURL := d.resolveURL(href)
		slug := ExtractSlug(fullURL)
		name := strings.TrimSpace(link.Text())
		if name == "" {
			name = humanizeSlug(slug)
		}

		laptops = append(laptops, model.Laptop{
			Slug: slug,
			Name: name,
			URL:  fullURL,
		})
		return true
	})

	return laptops, reason, nil
}

// buildPageURL 构造列表页地址：limit 总是携带，page 仅在大于 1 时携带。
func (d *Discoverer) buildPageURL(page int) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	values := u.Query()
	values.Set("limit", strconv.Itoa(d.pageSize))
	if page > 1 {
		values.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// resolveURL 把相对链接解析为绝对地址。
func (d *Discoverer) resolveURL(href string) string {
	base, err := url.Parse(d.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ExtractSlug 从商品链接路径中提取规范化 slug。
//
// "/product/some-laptop-slug" -> "some-laptop-slug"；
// 不符合 /product/ 约定时退回最后一个路径段。
func ExtractSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 && parts[0] == "product" {
		return parts[1]
	}
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return rawURL
}

// humanizeSlug 把 slug 转成可读名称兜底。
func humanizeSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
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
