package parse

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 详情页结构标记。
const (
	keySpecsHeading = "خصوصیات کلیدی" // "关键规格" 区块标题
	modelCodeLabel  = "مدل کالا"      // "商品型号" 标签
	currencyToken   = "تومان"         // 价格货币单位
)

var modelCodeRe = regexp.MustCompile(`مدل کالا:\s*(.+)`)

// SpecPair 规格表中的一个 label→value 对。
type SpecPair struct {
	Label string
	Value string
}

// SpecTable 有序的规格表。
//
// 顺序与页面呈现一致，序列化时原样保留，
// 让尚未提升为独立列的字段可以原样落库。
type SpecTable []SpecPair

// Get 按标签查找值。
func (t SpecTable) Get(label string) (string, bool) {
	for _, p := range t {
		if p.Label == label {
			return p.Value, true
		}
	}
	return "", false
}

// MarshalJSON 按插入顺序序列化为 JSON 对象。
func (t SpecTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExtractTitle 提取商品标题（h1）。
func ExtractTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1.fw-bold").First().Text())
}

// ExtractModelCode 提取商品型号编码。
func ExtractModelCode(doc *goquery.Document) string {
	code := ""
	doc.Find("h6.text-secondary").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if !strings.Contains(text, modelCodeLabel) {
			return true
		}
		if m := modelCodeRe.FindStringSubmatch(text); m != nil {
			code = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	return code
}

// ExtractPrice 提取价格文本并归一化为整数。
//
// 只认带货币标记的 h2 节点；没有货币标记的数字（如折扣百分比）一律忽略。
func ExtractPrice(doc *goquery.Document) *int64 {
	var price *int64
	doc.Find("h2.fw-bold").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if !strings.Contains(text, currencyToken) {
			return true
		}
		price = Price(text)
		return false
	})
	return price
}

// ExtractKeySpecs 从"关键规格"区块提取 label→value 对。
//
// 区块由包含标题文本的 h6 定位，每行是一个 div.d-flex，
// 标签在 span.text-black-50 中，值在 span.text-dark 中
// （缺少值节点时用整行文本减去标签文本兜底）。
func ExtractKeySpecs(doc *goquery.Document) SpecTable {
	var specs SpecTable

	var container *goquery.Selection
	doc.Find("h6").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(sel.Text(), keySpecsHeading) {
			container = sel.Closest("div")
			return false
		}
		return true
	})
	if container == nil || container.Length() == 0 {
		return specs
	}

	container.Find("div.d-flex").Each(func(_ int, row *goquery.Selection) {
		labelEl := row.Find("span.text-black-50").First()
		if labelEl.Length() == 0 {
			return
		}
		rawLabel := strings.TrimSpace(labelEl.Text())
		label := strings.TrimSpace(strings.Trim(rawLabel, ": \u200c\u200b"))

		var value string
		if valueEl := row.Find("span.text-dark").First(); valueEl.Length() > 0 {
			value = strings.TrimSpace(valueEl.Text())
		} else {
			full := strings.TrimSpace(row.Text())
			value = strings.TrimSpace(strings.Replace(full, rawLabel, "", 1))
		}

		if label != "" && value != "" {
			specs = append(specs, SpecPair{Label: label, Value: value})
		}
	})

	return specs
}

// ExtractFullSpecs 从 #tab-specification 的规格大表提取所有 label→value 对。
func ExtractFullSpecs(doc *goquery.Document) SpecTable {
	var specs SpecTable

	doc.Find("#tab-specification table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if label != "" {
			specs = append(specs, SpecPair{Label: label, Value: value})
		}
	})

	return specs
}
