// Package api 提供只读的运维查询接口。
//
// 它不触发任何抓取动作，只暴露流水线的当前状态与已入库的数据，
// 抓取本身由 harvester 进程独立驱动。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"exohunter/internal/api/middleware"
	"exohunter/internal/config"
	"exohunter/internal/model"
	"exohunter/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	router *gin.Engine
}

// NewServer 初始化 API 服务器。
//
// 参数:
//
//	cfg: 配置对象
//	logger: 日志记录器
//	st: 已打开的存储实例
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
func NewServer(cfg *config.Config, logger *slog.Logger, st *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  st,
		router: r,
	}
	s.registerRoutes()
	return s
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	apiGroup := s.router.Group("/api")
	apiGroup.GET("/stats", s.handleStats)
	apiGroup.GET("/laptops", s.handleListLaptops)
	apiGroup.GET("/laptops/:slug", s.handleGetLaptop)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var one int
	if err := s.store.DB().WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStats 返回流水线当前进度。
//
// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	counts, err := s.store.CountLaptops(c.Request.Context())
	if err != nil {
		s.logger.Error("count laptops failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count laptops failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   counts.Total,
		"done":    counts.Done,
		"pending": counts.Pending,
	})
}

// laptopResponse 目录条目的响应结构。
type laptopResponse struct {
	ID             uint   `json:"id"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	ScrapedDetails bool   `json:"scraped_details"`
}

// handleListLaptops 返回目录条目列表。
//
// GET /api/laptops?done=1
func (s *Server) handleListLaptops(c *gin.Context) {
	doneOnly := c.Query("done") == "1" || c.Query("done") == "true"

	laptops, err := s.store.Laptops(c.Request.Context(), doneOnly)
	if err != nil {
		s.logger.Error("list laptops failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list laptops failed"})
		return
	}

	out := make([]laptopResponse, 0, len(laptops))
	for _, l := range laptops {
		out = append(out, laptopResponse{
			ID:             l.ID,
			Slug:           l.Slug,
			Name:           l.Name,
			URL:            l.URL,
			ScrapedDetails: l.ScrapedDetails,
		})
	}
	c.JSON(http.StatusOK, out)
}

// laptopDetailResponse 单个商品的完整响应结构。
type laptopDetailResponse struct {
	laptopResponse
	Detail *detailResponse `json:"detail,omitempty"`
}

type detailResponse struct {
	Title          string          `json:"title"`
	ModelCode      string          `json:"model_code,omitempty"`
	Price          *int64          `json:"price,omitempty"`
	CPUModel       string          `json:"cpu_model,omitempty"`
	CPUCores       string          `json:"cpu_cores,omitempty"`
	RAM            string          `json:"ram,omitempty"`
	GPUModel       string          `json:"gpu_model,omitempty"`
	HDD            string          `json:"hdd,omitempty"`
	SSD            string          `json:"ssd,omitempty"`
	ScreenSize     string          `json:"screen_size,omitempty"`
	Series         string          `json:"series,omitempty"`
	Weight         string          `json:"weight,omitempty"`
	RAMMB          *int64          `json:"ram_mb,omitempty"`
	SSDGB          *int64          `json:"ssd_gb,omitempty"`
	HDDGB          *int64          `json:"hdd_gb,omitempty"`
	ScreenInches   *float64        `json:"screen_inches,omitempty"`
	WeightKG       *float64        `json:"weight_kg,omitempty"`
	CPUCoreCount   *int64          `json:"cpu_core_count,omitempty"`
	CPUThreadCount *int64          `json:"cpu_thread_count,omitempty"`
	FullSpecs      json.RawMessage `json:"full_specs,omitempty"`
	ScrapedAt      time.Time       `json:"scraped_at"`
}

// handleGetLaptop 返回单个商品及其详情（如果已抓取）。
//
// GET /api/laptops/:slug
func (s *Server) handleGetLaptop(c *gin.Context) {
	slug := c.Param("slug")

	laptop, detail, err := s.store.LaptopBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "laptop not found"})
			return
		}
		s.logger.Error("get laptop failed",
			slog.String("slug", slug),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get laptop failed"})
		return
	}

	resp := laptopDetailResponse{
		laptopResponse: laptopResponse{
			ID:             laptop.ID,
			Slug:           laptop.Slug,
			Name:           laptop.Name,
			URL:            laptop.URL,
			ScrapedDetails: laptop.ScrapedDetails,
		},
	}
	if detail != nil {
		resp.Detail = toDetailResponse(detail)
	}
	c.JSON(http.StatusOK, resp)
}

func toDetailResponse(d *model.LaptopDetail) *detailResponse {
	resp := &detailResponse{
		Title:          d.Title,
		ModelCode:      d.ModelCode,
		Price:          d.Price,
		CPUModel:       d.CPUModel,
		CPUCores:       d.CPUCores,
		RAM:            d.RAM,
		GPUModel:       d.GPUModel,
		HDD:            d.HDD,
		SSD:            d.SSD,
		ScreenSize:     d.ScreenSize,
		Series:         d.Series,
		Weight:         d.Weight,
		RAMMB:          d.RAMMB,
		SSDGB:          d.SSDGB,
		HDDGB:          d.HDDGB,
		ScreenInches:   d.ScreenInches,
		WeightKG:       d.WeightKG,
		CPUCoreCount:   d.CPUCoreCount,
		CPUThreadCount: d.CPUThreadCount,
		ScrapedAt:      d.ScrapedAt,
	}
	if d.FullSpecsJSON != "" {
		resp.FullSpecs = json.RawMessage(d.FullSpecsJSON)
	}
	return resp
}
