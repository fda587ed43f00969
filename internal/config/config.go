package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Crawler  CrawlerConfig  `json:"crawler"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string `json:"env"`          // 运行环境: local / prod
	LogLevel    string `json:"log_level"`    // 日志级别: debug / info / warn / error
	HTTPAddr    string `json:"http_addr"`    // 查询 API 服务监听地址
	MetricsAddr string `json:"metrics_addr"` // Prometheus 指标监听地址
}

// DatabaseConfig SQLite 数据库配置。
type DatabaseConfig struct {
	Path string `json:"path"` // 数据库文件路径
}

// CrawlerConfig 爬虫行为配置。
type CrawlerConfig struct {
	BaseURL        string        `json:"base_url"`        // 分类列表页地址
	UserAgent      string        `json:"user_agent"`      // 请求 User-Agent
	PageSize       int           `json:"page_size"`       // 每页条目数（limit 参数）
	MaxPages       int           `json:"max_pages"`       // 列表页数安全上限
	PageDelay      time.Duration `json:"page_delay"`      // 列表页之间的礼貌延迟
	RequestDelay   time.Duration `json:"request_delay"`   // 每个 worker 单次请求前的节奏延迟
	RequestTimeout time.Duration `json:"request_timeout"` // 单次 HTTP 请求超时
	Workers        int           `json:"workers"`         // 详情抓取并发 worker 数
	MaxRetries     int           `json:"max_retries"`     // 单个商品最大尝试次数
	RetryBackoff   int           `json:"retry_backoff"`   // 退避基数（秒），等待 base^attempt 秒
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 解析 JSON
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate 校验配置是否可用。
//
// 任何校验失败都属于致命配置错误：调用方必须在开始任何抓取工作前中止，
// 不产生任何部分状态。
func (cfg *Config) Validate() error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is empty")
	}
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("database directory %q does not exist", dir)
		}
	}
	if cfg.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler base_url is empty")
	}
	if cfg.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler workers must be positive, got %d", cfg.Crawler.Workers)
	}
	if cfg.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler max_retries must be positive, got %d", cfg.Crawler.MaxRetries)
	}
	if cfg.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler max_pages must be positive, got %d", cfg.Crawler.MaxPages)
	}
	if cfg.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler request_timeout must be positive, got %s", cfg.Crawler.RequestTimeout)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			HTTPAddr:    ":8081",
			MetricsAddr: ":2112",
		},
		Database: DatabaseConfig{
			Path: "laptops.db",
		},
		Crawler: CrawlerConfig{
			BaseURL:        "https://exo.ir/category/laptop",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			PageSize:       120,
			MaxPages:       50,
			PageDelay:      2 * time.Second,
			RequestDelay:   300 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			Workers:        8,
			MaxRetries:     3,
			RetryBackoff:   2,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaults.Database.Path
	}
	if cfg.Crawler.BaseURL == "" {
		cfg.Crawler.BaseURL = defaults.Crawler.BaseURL
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = defaults.Crawler.UserAgent
	}
	if cfg.Crawler.PageSize == 0 {
		cfg.Crawler.PageSize = defaults.Crawler.PageSize
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = defaults.Crawler.MaxPages
	}
	if cfg.Crawler.PageDelay == 0 {
		cfg.Crawler.PageDelay = defaults.Crawler.PageDelay
	}
	if cfg.Crawler.RequestDelay == 0 {
		cfg.Crawler.RequestDelay = defaults.Crawler.RequestDelay
	}
	if cfg.Crawler.RequestTimeout == 0 {
		cfg.Crawler.RequestTimeout = defaults.Crawler.RequestTimeout
	}
	if cfg.Crawler.Workers == 0 {
		cfg.Crawler.Workers = defaults.Crawler.Workers
	}
	if cfg.Crawler.MaxRetries == 0 {
		cfg.Crawler.MaxRetries = defaults.Crawler.MaxRetries
	}
	if cfg.Crawler.RetryBackoff == 0 {
		cfg.Crawler.RetryBackoff = defaults.Crawler.RetryBackoff
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_path", "EXO_DB_PATH")
	_ = viper.BindEnv("base_url", "EXO_BASE_URL")
	_ = viper.BindEnv("user_agent", "EXO_USER_AGENT")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := viper.GetString("db_path"); v != "" {
		cfg.Database.Path = v
	}
	if v := viper.GetString("base_url"); v != "" {
		cfg.Crawler.BaseURL = v
	}
	if v := viper.GetString("user_agent"); v != "" {
		cfg.Crawler.UserAgent = v
	}
	if v := os.Getenv("CRAWLER_PAGE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.PageSize = i
		}
	}
	if v := os.Getenv("CRAWLER_MAX_PAGES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxPages = i
		}
	}
	if v := os.Getenv("CRAWLER_PAGE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.PageDelay = d
		}
	}
	if v := os.Getenv("CRAWLER_REQUEST_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RequestDelay = d
		}
	}
	if v := os.Getenv("CRAWLER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RequestTimeout = d
		}
	}
	if v := os.Getenv("CRAWLER_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.Workers = i
		}
	}
	if v := os.Getenv("CRAWLER_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxRetries = i
		}
	}
	if v := os.Getenv("CRAWLER_RETRY_BACKOFF"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.RetryBackoff = i
		}
	}
}
