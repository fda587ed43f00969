package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 爬虫核心指标。
//
// 命名遵循 prometheus 约定：exohunter_<子系统>_<指标>_<单位>。
var (
	// CatalogPagesTotal 列表页抓取总数（按结果分类: success / failed / retried）。
	CatalogPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exohunter_catalog_pages_total",
		Help: "Total catalog listing pages fetched, by outcome.",
	}, []string{"status"})

	// ItemsDiscoveredTotal 从列表页提取出的条目总数。
	ItemsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exohunter_items_discovered_total",
		Help: "Total catalog entries extracted from listing pages.",
	})

	// DetailRequestsTotal 详情页抓取总数（按结果分类: success / failed）。
	DetailRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exohunter_detail_requests_total",
		Help: "Total detail page scrape outcomes, by status.",
	}, []string{"status"})

	// DetailRequestDuration 单个商品从首次尝试到最终结果的耗时分布。
	DetailRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exohunter_detail_request_duration_seconds",
		Help:    "Time spent scraping a single detail page, including retries.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// DetailRetriesTotal 详情页重试次数。
	DetailRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exohunter_detail_retries_total",
		Help: "Total retry attempts for detail pages.",
	})

	// ActiveWorkers 当前正在处理商品的 worker 数。
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exohunter_active_workers",
		Help: "Number of workers currently processing an item.",
	})
)
