package model

import (
	"time"
)

// Laptop 表示从分类列表页发现的一台笔记本（目录条目）。
//
// Slug 是商品在 exo.ir 的唯一标识（取自 /product/<slug> 链接路径），用于去重。
// 条目只由目录发现器创建；ScrapedDetails 标志只由详情调度器翻转，
// 且必须与一次成功的详情写入在同一事务中完成。
type Laptop struct {
	ID        uint      `gorm:"primaryKey"` // 内部 ID
	CreatedAt time.Time // 首次发现时间

	Slug string `gorm:"type:varchar(191);uniqueIndex;not null"` // 商品唯一标识（唯一索引）
	Name string `gorm:"not null"`                               // 列表页展示名称
	URL  string `gorm:"not null"`                               // 商品详情页链接

	ScrapedDetails bool `gorm:"default:false"` // 详情状态: false=Pending / true=Done
}

// LaptopDetail 表示详情页抓取并归一化后的完整规格记录。
//
// 与 Laptop 一对一（LaptopID 唯一索引），按 LaptopID upsert，
// 同一条目的重试写入是幂等的。
type LaptopDetail struct {
	ID        uint      `gorm:"primaryKey"`
	ScrapedAt time.Time `gorm:"autoCreateTime"` // 抓取时间

	LaptopID  uint   `gorm:"uniqueIndex;not null"` // 父目录条目 ID（唯一索引）
	Slug      string `gorm:"not null"`
	Title     string // 详情页标题（h1）
	ModelCode string // 商品型号编码
	Price     *int64 // 价格（整数；页面无价格时为 NULL）

	// 原始文本规格字段
	CPUModel   string // 处理器型号
	CPUCores   string // 核心/线程原始文本
	RAM        string // 内存原始文本
	GPUModel   string // 显卡型号
	HDD        string // 机械硬盘原始文本
	SSD        string // 固态硬盘原始文本
	ScreenSize string // 屏幕尺寸原始文本
	Series     string // 产品系列
	Weight     string // 重量原始文本

	// 归一化数值字段
	RAMMB          *int64   // 内存（MB）
	SSDGB          *int64   // 固态容量（GB，"无"记为 0）
	HDDGB          *int64   // 机械容量（GB，"无"记为 0）
	ScreenInches   *float64 // 屏幕尺寸（英寸）
	WeightKG       *float64 // 重量（kg）
	CPUCoreCount   *int64   // 核心数
	CPUThreadCount *int64   // 线程数

	// 完整规格表的原样 JSON 快照（有序 label→value），
	// 为尚未提升为独立列的字段保留前向兼容。
	FullSpecsJSON string
}
