// Package parse 把详情页上不一致、多单位、自由文本的规格字段转换为类型化数值。
//
// 所有函数都是纯函数：不做 I/O，不持有状态，对畸形输入不 panic，
// 按字段策略退化为 nil / 零值。
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 波斯语单位与标记词。
const (
	tokenAbsent   = "ندارد"   // "没有"，显式的缺失标记
	tokenGigabyte = "گیگابایت" // GB
	tokenMegabyte = "مگابایت"  // MB
	tokenTerabyte = "ترابایت"  // TB
	tokenGram     = "گرم"      // 克
	tokenKilo     = "کیلو"     // 千克前缀
)

var (
	numberRe      = regexp.MustCompile(`[\d.]+`)
	nonDigitRe    = regexp.MustCompile(`[^\d]`)
	coreCountRe   = regexp.MustCompile(`(\d+)\s*هسته`) // "N 核"
	threadCountRe = regexp.MustCompile(`(\d+)\s*رشته`) // "M 线程"
)

// firstNumber 提取文本中第一个十进制数，没有则返回 false。
func firstNumber(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// MemoryMB 把内存文本转换为 MB。
//
// "64 گیگابایت" -> 65536，"16 گیگابایت" -> 16384。
// 显式缺失标记（"ندارد"）返回 nil：没有内存的笔记本不成立，按数据缺失处理。
func MemoryMB(text string) *int64 {
	if text == "" || strings.TrimSpace(text) == tokenAbsent {
		return nil
	}
	v, ok := firstNumber(text)
	if !ok {
		return nil
	}
	upper := strings.ToUpper(text)
	var mb int64
	switch {
	case strings.Contains(text, tokenGigabyte) || strings.Contains(upper, "GB"):
		mb = int64(v * 1024)
	case strings.Contains(text, tokenMegabyte) || strings.Contains(upper, "MB"):
		mb = int64(v)
	case strings.Contains(text, tokenTerabyte) || strings.Contains(upper, "TB"):
		mb = int64(v * 1024 * 1024)
	default:
		// 无单位时按 GB 处理
		mb = int64(v * 1024)
	}
	return &mb
}

// StorageGB 把存储容量文本转换为 GB。
//
// "1 ترابایت" -> 1024，"512 گیگابایت" -> 512。
// 显式缺失标记返回 0 而不是 nil：没有副存储是一个有意义的合法值。
// 这与 MemoryMB 的 nil 策略是有意的不对称，必须保持。
func StorageGB(text string) *int64 {
	if text == "" || strings.TrimSpace(text) == tokenAbsent {
		zero := int64(0)
		return &zero
	}
	v, ok := firstNumber(text)
	if !ok {
		return nil
	}
	upper := strings.ToUpper(text)
	var gb int64
	switch {
	case strings.Contains(text, tokenTerabyte) || strings.Contains(upper, "TB"):
		gb = int64(v * 1024)
	case strings.Contains(text, tokenGigabyte) || strings.Contains(upper, "GB"):
		gb = int64(v)
	case strings.Contains(text, tokenMegabyte) || strings.Contains(upper, "MB"):
		gb = int64(v / 1024)
		if gb < 1 {
			gb = 1
		}
	default:
		gb = int64(v)
	}
	return &gb
}

// ScreenInches 把屏幕尺寸文本转换为英寸。
//
// "16 اینچ" -> 16.0，"14.2 اینچ" -> 14.2。
func ScreenInches(text string) *float64 {
	if text == "" {
		return nil
	}
	v, ok := firstNumber(text)
	if !ok {
		return nil
	}
	return &v
}

// WeightKG 把重量文本转换为千克。
//
// "2.4 کیلوگرم" -> 2.4，"1360 گرم" -> 1.36。
// 克单位换算为千克并保留 3 位小数；同一字符串里出现千克标记时千克优先。
func WeightKG(text string) *float64 {
	if text == "" {
		return nil
	}
	v, ok := firstNumber(text)
	if !ok {
		return nil
	}
	if strings.Contains(text, tokenGram) && !strings.Contains(text, tokenKilo) {
		kg := math.Round(v/1000*1000) / 1000
		return &kg
	}
	return &v
}

// CPUCores 提取核心数。
//
// "24 هسته / 32 رشته" -> 24。取第一个匹配。
func CPUCores(text string) *int64 {
	if text == "" {
		return nil
	}
	m := coreCountRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// CPUThreads 提取线程数。
//
// "24 هسته / 32 رشته" -> 32。取第一个匹配。
func CPUThreads(text string) *int64 {
	if text == "" {
		return nil
	}
	m := threadCountRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Price 从价格文本中提取整数价格。
//
// "137,250,000 تومان" -> 137250000。剥离所有非数字字符，结果为空返回 nil。
func Price(text string) *int64 {
	digits := nonDigitRe.ReplaceAllString(text, "")
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
