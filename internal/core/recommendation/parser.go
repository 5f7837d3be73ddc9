package recommendation

import (
	"regexp"
	"strings"
)

// 解析階段名稱
const (
	StageLabeled  = "labeled_sections"
	StageTable    = "delimited_table"
	StageKeywords = "keyword_scan"
	StageFallback = "fallback_catalog"
)

// Parser 單一解析階段，無法解析時返回空切片
type Parser interface {
	Name() string
	TryParse(text string) []ProductCandidate
}

// Chain 依序嘗試各解析階段，第一個有結果的階段勝出
type Chain struct {
	stages []Parser
}

// NewChain 創建解析鏈
func NewChain(stages ...Parser) *Chain {
	return &Chain{stages: stages}
}

// DefaultChain 標籤區段 → 表格 → 品牌關鍵字 → 靜態備援目錄
func DefaultChain(skinType string) *Chain {
	return NewChain(
		LabeledSectionParser{},
		TableParser{},
		KeywordScanParser{},
		FallbackParser{SkinType: skinType},
	)
}

// Stages 返回階段名稱，依執行順序
func (c *Chain) Stages() []string {
	names := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return names
}

// Parse 返回候選商品與產出結果的階段名稱
func (c *Chain) Parse(text string) ([]ProductCandidate, string) {
	for _, s := range c.stages {
		if out := s.TryParse(text); len(out) > 0 {
			return out, s.Name()
		}
	}
	return nil, ""
}

var (
	sectionMarker   = regexp.MustCompile(`(?i)product\s+recommendations\s*:?`)
	sectionEnd      = regexp.MustCompile(`(?im)^[\s#*]*(?:routine suggestions?|shopping list|additional notes|notes|sources|citations|references)\b`)
	blankLine       = regexp.MustCompile(`\n[ \t]*\r?\n`)
	listPrefix      = regexp.MustCompile(`^[\s>*\-•#]*(?:\d+[.)]\s*)?`)
	labeledField    = regexp.MustCompile(`^([A-Za-z][A-Za-z /&']{0,40}?)\s*:\s*(.*)$`)
	ruleCell        = regexp.MustCompile(`^[\s\-=_:]*$`)
	urlOnly         = regexp.MustCompile(`(?i)^(?:https?://|www\.)\S+$`)
	urlInText       = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s)\]>|]+`)
	currencyPattern = regexp.MustCompile(`[$£€]\s*\d`)
	emphasis        = strings.NewReplacer("**", "", "__", "", "`", "")
)

// candidateField 標籤對應的欄位設定函式
type candidateField func(c *ProductCandidate, v *string)

var fieldLabels = map[string]candidateField{
	"product name":       func(c *ProductCandidate, v *string) { setOnce(&c.Name, v) },
	"product":            func(c *ProductCandidate, v *string) { setOnce(&c.Name, v) },
	"name":               func(c *ProductCandidate, v *string) { setOnce(&c.Name, v) },
	"brand":              func(c *ProductCandidate, v *string) { setOnce(&c.Brand, v) },
	"category":           func(c *ProductCandidate, v *string) { setOnce(&c.Category, v) },
	"product type":       func(c *ProductCandidate, v *string) { setOnce(&c.Category, v) },
	"type":               func(c *ProductCandidate, v *string) { setOnce(&c.Category, v) },
	"key ingredients":    func(c *ProductCandidate, v *string) { setOnce(&c.Ingredients, v) },
	"ingredients":        func(c *ProductCandidate, v *string) { setOnce(&c.Ingredients, v) },
	"price range":        func(c *ProductCandidate, v *string) { setOnce(&c.Price, v) },
	"price":              func(c *ProductCandidate, v *string) { setOnce(&c.Price, v) },
	"match reasoning":    func(c *ProductCandidate, v *string) { setOnce(&c.MatchReasoning, v) },
	"why it matches":     func(c *ProductCandidate, v *string) { setOnce(&c.MatchReasoning, v) },
	"reasoning":          func(c *ProductCandidate, v *string) { setOnce(&c.MatchReasoning, v) },
	"usage instructions": func(c *ProductCandidate, v *string) { setOnce(&c.Usage, v) },
	"usage":              func(c *ProductCandidate, v *string) { setOnce(&c.Usage, v) },
	"how to use":         func(c *ProductCandidate, v *string) { setOnce(&c.Usage, v) },
	"local availability": func(c *ProductCandidate, v *string) { setOnce(&c.Availability, v) },
	"availability":       func(c *ProductCandidate, v *string) { setOnce(&c.Availability, v) },
	"where to buy":       func(c *ProductCandidate, v *string) { setOnce(&c.Availability, v) },
	"link":               func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"url":                func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"buy link":           func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"purchase link":      func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"store link":         func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"product link":       func(c *ProductCandidate, v *string) { setOnce(&c.StoreLink, v) },
	"affiliate link":     func(c *ProductCandidate, v *string) { setOnce(&c.AffiliateLink, v) },
	"tracking link":      func(c *ProductCandidate, v *string) { setOnce(&c.TrackingLink, v) },
	"description":        func(c *ProductCandidate, v *string) { setOnce(&c.Description, v) },
	"summary":            func(c *ProductCandidate, v *string) { setOnce(&c.Description, v) },
}

var tableHeaders = map[string]bool{
	"product name":    true,
	"product":         true,
	"name":            true,
	"item":            true,
	"brand":           true,
	"product / brand": true,
	"product/brand":   true,
}

// LabeledSectionParser 解析「PRODUCT RECOMMENDATIONS」區段中的標籤欄位
type LabeledSectionParser struct{}

// Name 階段名稱
func (LabeledSectionParser) Name() string { return StageLabeled }

// TryParse 只有取得名稱的區塊才成為候選商品
func (LabeledSectionParser) TryParse(text string) []ProductCandidate {
	loc := sectionMarker.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	section := text[loc[1]:]
	if end := sectionEnd.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}

	var out []ProductCandidate
	for _, block := range blankLine.Split(section, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		var c ProductCandidate
		for _, line := range strings.Split(block, "\n") {
			m := labeledField.FindStringSubmatch(cleanLine(line))
			if m == nil {
				continue
			}
			if set, ok := fieldLabels[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
				set(&c, strPtr(m[2]))
			}
		}
		if c.Name == nil {
			continue
		}
		c.SourceBlock = strPtr(block)
		out = append(out, c)
	}
	return out
}

// TableParser 解析以「|」分隔的表格列
type TableParser struct{}

// Name 階段名稱
func (TableParser) Name() string { return StageTable }

// TryParse 欄位依序為名稱、價格、描述或網址、購買連結、通路
func (TableParser) TryParse(text string) []ProductCandidate {
	if !strings.Contains(text, "|") {
		return nil
	}

	var out []ProductCandidate
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cells := splitRow(line)
		if len(cells) < 2 || skipTableRow(cells[0]) {
			continue
		}

		link, stores := splitLinkCell(cell(cells, 3))
		c := ProductCandidate{
			Name:         strPtr(cell(cells, 0)),
			Price:        strPtr(cell(cells, 1)),
			StoreLink:    link,
			Stores:       stores,
			Availability: strPtr(cell(cells, 4)),
			SourceBlock:  strPtr(strings.TrimSpace(line)),
		}
		c.Description, c.StoreLink = splitDescriptionURL(cell(cells, 2), c.StoreLink)
		out = append(out, c)
	}
	return out
}

// skipTableRow 略過表頭、分隔列與過短的列
func skipTableRow(first string) bool {
	if ruleCell.MatchString(first) {
		return true
	}
	if tableHeaders[strings.ToLower(first)] {
		return true
	}
	return len([]rune(first)) < 3
}

// splitDescriptionURL 沒有連結時，描述欄中的網址補作連結；已有連結時描述原樣保留
func splitDescriptionURL(desc string, link *string) (*string, *string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, link
	}
	if link != nil {
		return strPtr(desc), link
	}
	if urlOnly.MatchString(desc) {
		return nil, strPtr(desc)
	}
	found := urlInText.FindString(desc)
	if found == "" {
		return strPtr(desc), nil
	}
	text := strings.TrimSpace(strings.Replace(desc, found, "", 1))
	text = strings.TrimRight(strings.TrimSpace(strings.Trim(text, "()[]<>")), " -:")
	return strPtr(text), strPtr(found)
}

// KeywordScanParser 逐行掃描，遇到已知品牌即開始新候選商品
type KeywordScanParser struct{}

// Name 階段名稱
func (KeywordScanParser) Name() string { return StageKeywords }

// TryParse 後續含幣別符號的行視為價格，含零售商的行視為通路
func (KeywordScanParser) TryParse(text string) []ProductCandidate {
	var (
		out     []ProductCandidate
		current *ProductCandidate
		block   []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.SourceBlock = strPtr(strings.Join(block, "\n"))
		out = append(out, *current)
		current, block = nil, nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}

		if brand, ok := findBrand(line); ok {
			flush()
			current = &ProductCandidate{
				Name:  strPtr(nameFromLine(line)),
				Brand: strPtr(brand),
			}
			block = []string{line}
			scanDetails(current, line)
			continue
		}

		if current != nil {
			block = append(block, line)
			scanDetails(current, line)
		}
	}
	flush()
	return out
}

// scanDetails 從單行擷取價格、通路與連結
func scanDetails(c *ProductCandidate, line string) {
	if c.Price == nil && currencyPattern.MatchString(line) {
		c.Price = strPtr(line)
	}
	if retailers := findRetailers(line); len(retailers) > 0 {
		joined := strings.Join(retailers, ", ")
		if c.Availability == nil {
			c.Availability = strPtr(joined)
		} else {
			c.Availability = strPtr(*c.Availability + ", " + joined)
		}
	}
	if c.StoreLink == nil {
		if u := urlInText.FindString(line); u != "" {
			c.StoreLink = strPtr(u)
		}
	}
}

// nameFromLine 取分隔符號前的文字作為商品名稱
func nameFromLine(line string) string {
	for _, sep := range []string{" - ", " – ", " — ", ": ", " | ", " ($", " (£", " (€"} {
		if i := strings.Index(line, sep); i >= 3 {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// FallbackParser 靜態備援目錄，永遠有結果
type FallbackParser struct {
	SkinType string
}

// Name 階段名稱
func (FallbackParser) Name() string { return StageFallback }

// TryParse 忽略輸入文字
func (p FallbackParser) TryParse(string) []ProductCandidate {
	return FallbackCatalog(p.SkinType)
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, stripEmphasis(p))
	}
	return cells
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// splitLinkCell 連結欄拆成網址與其餘的通路文字，例如「Amazon」
func splitLinkCell(v string) (link, stores *string) {
	u := urlInText.FindString(v)
	if u == "" {
		return nil, strPtr(v)
	}
	rest := strings.Trim(strings.TrimSpace(strings.Replace(v, u, "", 1)), "()[]<>:- ")
	return strPtr(u), strPtr(rest)
}

func cleanLine(line string) string {
	line = stripEmphasis(line)
	line = listPrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

func stripEmphasis(s string) string {
	return strings.Trim(strings.TrimSpace(emphasis.Replace(s)), "*_ ")
}

// strPtr 空字串視為未設定
func strPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func setOnce(dst **string, v *string) {
	if *dst == nil {
		*dst = v
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
