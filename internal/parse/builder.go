package parse

import (
	"encoding/json"
	"errors"

	"exohunter/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// ErrMissingTitle 表示详情页连标题都没有解析出来。
//
// 标题是最低限度的识别字段：缺了它整次尝试按失败处理，
// 其余字段缺失只会按策略退化为 nil / 零值。
var ErrMissingTitle = errors.New("detail page title not found")

// 规格标签（波斯语）→ 字段的映射目标。
const (
	labelCPUModel    = "مدل پردازنده"
	labelCPUCores    = "تعداد هسته پردازنده"
	labelRAM         = "ظرفیت RAM"
	labelGPUModel    = "مدل پردازنده گرافیکی"
	labelHDD         = "HDD"
	labelSSD         = "SSD"
	labelScreenSize  = "سایز صفحه نمایش"
	labelSeries      = "سری لپ تاپ"
	labelWeight      = "وزن لپ تاپ"
	labelWeightAlt   = "وزن لپ ‌تاپ" // 带零宽连接符的变体写法
	labelWeightShort = "وزن"         // 规格大表里的简短写法
)

// Builder 在解析过程中累积可选字段。
//
// 字段解析顺序：优先取"关键规格"区块的值；缺失时用规格大表中
// 相同逻辑标签的值兜底；仍然缺失则保持未设置。
// Finalize 前不做任何校验，对畸形输入只是少填几个字段。
type Builder struct {
	Title     string
	ModelCode string
	Price     *int64

	// 原始文本字段
	CPUModel   string
	CPUCores   string
	RAM        string
	GPUModel   string
	HDD        string
	SSD        string
	ScreenSize string
	Series     string
	Weight     string

	// 完整规格表（有序），原样随记录落库
	FullSpecs SpecTable
}

// ParseDetail 解析一个商品详情页，返回累积了全部可解析字段的 Builder。
//
// 纯函数：对任何畸形文档都不会失败，只会返回字段更少的 Builder。
func ParseDetail(doc *goquery.Document) *Builder {
	b := &Builder{}

	b.Title = ExtractTitle(doc)
	b.ModelCode = ExtractModelCode(doc)
	b.Price = ExtractPrice(doc)

	// 1. 关键规格区块优先
	for _, p := range ExtractKeySpecs(doc) {
		b.apply(p.Label, p.Value, false)
	}

	// 2. 规格大表：原样保留 + 兜底填充仍然缺失的字段
	b.FullSpecs = ExtractFullSpecs(doc)
	for _, p := range b.FullSpecs {
		b.apply(p.Label, p.Value, true)
	}

	return b
}

// apply 把一个 label→value 对写入对应字段。
//
// fallback 为 true 时只填充尚未设置的字段（规格大表兜底）；
// "وزن" 简短标签只在兜底阶段生效，避免关键规格区块里的歧义。
func (b *Builder) apply(label, value string, fallback bool) {
	set := func(dst *string) {
		if !fallback || *dst == "" {
			*dst = value
		}
	}

	switch label {
	case labelCPUModel:
		set(&b.CPUModel)
	case labelCPUCores:
		set(&b.CPUCores)
	case labelRAM:
		set(&b.RAM)
	case labelGPUModel:
		set(&b.GPUModel)
	case labelHDD:
		set(&b.HDD)
	case labelSSD:
		set(&b.SSD)
	case labelScreenSize:
		set(&b.ScreenSize)
	case labelSeries:
		set(&b.Series)
	case labelWeight, labelWeightAlt:
		set(&b.Weight)
	case labelWeightShort:
		if fallback {
			set(&b.Weight)
		}
	}
}

// Finalize 校验最低限度字段并生成归一化后的详情记录。
//
// 参数:
//
//	laptop: 父目录条目（提供 LaptopID 与 Slug）
//
// 返回值:
//
//	*model.LaptopDetail: 归一化完成的记录
//	error: 标题缺失返回 ErrMissingTitle
func (b *Builder) Finalize(laptop *model.Laptop) (*model.LaptopDetail, error) {
	if b.Title == "" {
		return nil, ErrMissingTitle
	}

	detail := &model.LaptopDetail{
		LaptopID:  laptop.ID,
		Slug:      laptop.Slug,
		Title:     b.Title,
		ModelCode: b.ModelCode,
		Price:     b.Price,

		CPUModel:   b.CPUModel,
		CPUCores:   b.CPUCores,
		RAM:        b.RAM,
		GPUModel:   b.GPUModel,
		HDD:        b.HDD,
		SSD:        b.SSD,
		ScreenSize: b.ScreenSize,
		Series:     b.Series,
		Weight:     b.Weight,
	}

	// 数值归一化：原始字段未解析到时保持 NULL，
	// 解析到的缺失标记按各字段策略映射（内存→NULL，存储→0）。
	if b.RAM != "" {
		detail.RAMMB = MemoryMB(b.RAM)
	}
	if b.SSD != "" {
		detail.SSDGB = StorageGB(b.SSD)
	}
	if b.HDD != "" {
		detail.HDDGB = StorageGB(b.HDD)
	}
	if b.ScreenSize != "" {
		detail.ScreenInches = ScreenInches(b.ScreenSize)
	}
	if b.Weight != "" {
		detail.WeightKG = WeightKG(b.Weight)
	}
	if b.CPUCores != "" {
		detail.CPUCoreCount = CPUCores(b.CPUCores)
		detail.CPUThreadCount = CPUThreads(b.CPUCores)
	}

	if len(b.FullSpecs) > 0 {
		data, err := json.Marshal(b.FullSpecs)
		if err == nil {
			detail.FullSpecsJSON = string(data)
		}
	}

	return detail, nil
}
