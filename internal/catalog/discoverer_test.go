package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exohunter/internal/config"
	"exohunter/internal/model"
)

// memStore 按 slug 去重的内存存储桩。
type memStore struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []model.Laptop
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]bool)}
}

func (m *memStore) InsertLaptops(_ context.Context, laptops []model.Laptop) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, l := range laptops {
		if m.seen[l.Slug] {
			continue
		}
		m.seen[l.Slug] = true
		m.order = append(m.order, l)
		inserted++
	}
	return inserted, nil
}

func (m *memStore) slugs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	for i, l := range m.order {
		out[i] = l.Slug
	}
	return out
}

// productCard 生成一张商品卡片；unavailable 为 true 时带无货哨兵标记。
func productCard(slug string, unavailable bool) string {
	if unavailable {
		return fmt.Sprintf(`<div class="grid-product">
			<h5 class="text-danger">ناموجود</h5>
			<a class="font-latin-yekan text-truncate-2" href="/product/%s">%s</a>
		</div>`, slug, slug)
	}
	return fmt.Sprintf(`<div class="grid-product">
		<a class="font-latin-yekan text-truncate-2" href="/product/%s">%s</a>
	</div>`, slug, slug)
}

// listingServer 按页返回卡片的测试服务器。pages[页号-1] 是该页的卡片 HTML。
func listingServer(t *testing.T, pages []string, requested *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Add(1)
		page := 1
		if v := r.URL.Query().Get("page"); v != "" {
			fmt.Sscanf(v, "%d", &page)
		}
		if page < 1 || page > len(pages) {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprintf(w, "<html><body>%s</body></html>", pages[page-1])
	}))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Crawler: config.CrawlerConfig{
			BaseURL:        baseURL,
			UserAgent:      "test-agent",
			PageSize:       120,
			MaxPages:       10,
			PageDelay:      time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// captureLogger 把日志写入缓冲区，便于断言输出内容。
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})), buf
}

func TestDiscover_StopOnSentinel(t *testing.T) {
	// 第 3 页第 5 个商品无货：第 3 页前 4 个入库，
	// 第 5 个及之后全部丢弃，不再请求后续页面
	var requested atomic.Int64
	page1 := productCard("p1-a", false) + productCard("p1-b", false)
	page2 := productCard("p2-a", false) + productCard("p2-b", false)
	var page3 strings.Builder
	for i := 1; i <= 4; i++ {
		page3.WriteString(productCard(fmt.Sprintf("p3-%d", i), false))
	}
	page3.WriteString(productCard("p3-5-gone", true))
	page3.WriteString(productCard("p3-6-after", false))
	page4 := productCard("p4-a", false)

	srv := listingServer(t, []string{page1, page2, page3.String(), page4}, &requested)
	defer srv.Close()

	store := newMemStore()
	logger, logBuf := captureLogger()
	d := NewDiscoverer(testConfig(srv.URL), store, logger)

	count, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if count != 8 {
		t.Errorf("expected 8 new entries (2+2+4), got %d", count)
	}
	if !strings.Contains(logBuf.String(), "out-of-stock marker found") {
		t.Error("expected out-of-stock stop reason in log output")
	}

	slugs := store.slugs()
	for _, s := range slugs {
		if s == "p3-5-gone" || s == "p3-6-after" || strings.HasPrefix(s, "p4") {
			t.Errorf("slug %q should not have been persisted", s)
		}
	}
	if requested.Load() != 3 {
		t.Errorf("expected exactly 3 page requests, got %d", requested.Load())
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	// 列表不变时跑两次：第二次不产生任何新条目
	var requested atomic.Int64
	page1 := productCard("a", false) + productCard("b", false)
	srv := listingServer(t, []string{page1}, &requested)
	defer srv.Close()

	store := newMemStore()
	d := NewDiscoverer(testConfig(srv.URL), store, testLogger())

	first, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("first discover: %v", err)
	}
	if first != 2 {
		t.Errorf("first run: expected 2 new, got %d", first)
	}

	second, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("second discover: %v", err)
	}
	if second != 0 {
		t.Errorf("second run: expected 0 new, got %d", second)
	}
}

func TestDiscover_EmptyPageStops(t *testing.T) {
	var requested atomic.Int64
	page1 := productCard("only", false)
	srv := listingServer(t, []string{page1}, &requested)
	defer srv.Close()

	store := newMemStore()
	logger, logBuf := captureLogger()
	d := NewDiscoverer(testConfig(srv.URL), store, logger)

	count, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry, got %d", count)
	}
	// 第 2 页为空页，到此终止
	if requested.Load() != 2 {
		t.Errorf("expected 2 page requests, got %d", requested.Load())
	}

	// 空页终止与无货终止在日志里是两个不同的原因
	if !strings.Contains(logBuf.String(), "empty listing page") {
		t.Error("expected empty-page stop reason in log output")
	}
	if strings.Contains(logBuf.String(), "out-of-stock marker found") {
		t.Error("empty-page stop must not be reported as out-of-stock")
	}
}

func TestDiscover_RetriesOnceThenAborts(t *testing.T) {
	// 页面持续失败：恰好重试一次，然后以可恢复错误中止
	var requested atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newMemStore()
	cfg := testConfig(srv.URL)
	d := NewDiscoverer(cfg, store, testLogger())
	// 缩短重试等待，直接覆盖内部延迟不可行，用取消上下文控制总时长
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := d.Discover(ctx)
	if err == nil {
		t.Fatal("expected recoverable error after retry exhaustion")
	}
	if count != 0 {
		t.Errorf("expected 0 entries, got %d", count)
	}
	if requested.Load() != 2 {
		t.Errorf("expected exactly 2 requests (original + one retry), got %d", requested.Load())
	}
}

func TestDiscover_RecoversAfterSingleFailure(t *testing.T) {
	// 第一次失败、重试成功：该页照常入库
	var requested atomic.Int64
	var failed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Add(1)
		if failed.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprintf(w, "<html><body>%s</body></html>", productCard("recovered", false))
	}))
	defer srv.Close()

	store := newMemStore()
	d := NewDiscoverer(testConfig(srv.URL), store, testLogger())

	count, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after recovery, got %d", count)
	}
}

func TestExtractSlug(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"product_path", "https://exo.ir/product/asus-rog-strix", "asus-rog-strix"},
		{"trailing_slash", "https://exo.ir/product/asus-rog-strix/", "asus-rog-strix"},
		{"relative", "/product/hp-victus-15", "hp-victus-15"},
		{"non_product_path", "https://exo.ir/category/laptop", "laptop"},
		{"bare_host", "https://exo.ir", "https://exo.ir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSlug(tt.url); got != tt.expected {
				t.Errorf("ExtractSlug(%q) = %q, expected %q", tt.url, got, tt.expected)
			}
		})
	}
}
