package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// 默认请求头，模拟常规桌面浏览器访问。
const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.9,fa;q=0.8"
)

// New 创建一个带超时的 HTTP 客户端。
//
// 每个 worker 构造一次自己的客户端并在其所有商品间复用，
// 客户端不在 worker 之间共享。
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FetchDocument 发起 GET 请求并把响应体解析为 goquery 文档。
//
// 非 2xx 响应视为失败并返回错误，由调用方的重试策略处理。
//
// 参数:
//
//	ctx: 上下文（携带取消与截止时间）
//	client: HTTP 客户端
//	url: 目标地址
//	userAgent: User-Agent 请求头
//
// 返回值:
//
//	*goquery.Document: 解析后的 HTML 文档
//	error: 请求或解析失败返回错误
func FetchDocument(ctx context.Context, client *http.Client, url string, userAgent string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", defaultAcceptLanguage)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
