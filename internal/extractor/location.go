package extractor

import (
	"regexp"
	"strings"

	"portfolio-agent-go/internal/types"
)

const countryUS = "United States"

// 美国州缩写 → 全称
var usStateAbbrevs = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
}

// 小写州全称 → 规范全称
var usStateNames = func() map[string]string {
	m := make(map[string]string, len(usStateAbbrevs))
	for _, name := range usStateAbbrevs {
		m[strings.ToLower(name)] = name
	}
	return m
}()

// cityEntry 常见城市的州/国家归属
type cityEntry struct {
	state   string
	country string
}

// 常见歧义单词城市的人工维护查找表。
// 只收录高置信度条目；查不到就留空，绝不瞎猜。
var knownCities = map[string]cityEntry{
	"seattle":       {"Washington", countryUS},
	"portland":      {"Oregon", countryUS},
	"austin":        {"Texas", countryUS},
	"denver":        {"Colorado", countryUS},
	"chicago":       {"Illinois", countryUS},
	"boston":        {"Massachusetts", countryUS},
	"atlanta":       {"Georgia", countryUS},
	"miami":         {"Florida", countryUS},
	"dallas":        {"Texas", countryUS},
	"houston":       {"Texas", countryUS},
	"phoenix":       {"Arizona", countryUS},
	"philadelphia":  {"Pennsylvania", countryUS},
	"pittsburgh":    {"Pennsylvania", countryUS},
	"detroit":       {"Michigan", countryUS},
	"minneapolis":   {"Minnesota", countryUS},
	"nashville":     {"Tennessee", countryUS},
	"raleigh":       {"North Carolina", countryUS},
	"charlotte":     {"North Carolina", countryUS},
	"san francisco": {"California", countryUS},
	"los angeles":   {"California", countryUS},
	"san diego":     {"California", countryUS},
	"san jose":      {"California", countryUS},
	"new york":      {"New York", countryUS},
	"new york city": {"New York", countryUS},
	"london":        {"", "United Kingdom"},
	"manchester":    {"", "United Kingdom"},
	"edinburgh":     {"", "United Kingdom"},
	"dublin":        {"", "Ireland"},
	"paris":         {"", "France"},
	"berlin":        {"", "Germany"},
	"munich":        {"", "Germany"},
	"amsterdam":     {"", "Netherlands"},
	"zurich":        {"", "Switzerland"},
	"stockholm":     {"", "Sweden"},
	"toronto":       {"Ontario", "Canada"},
	"vancouver":     {"British Columbia", "Canada"},
	"montreal":      {"Quebec", "Canada"},
	"sydney":        {"New South Wales", "Australia"},
	"melbourne":     {"Victoria", "Australia"},
	"singapore":     {"", "Singapore"},
	"tokyo":         {"", "Japan"},
	"beijing":       {"", "China"},
	"shanghai":      {"", "China"},
	"shenzhen":      {"", "China"},
	"hangzhou":      {"", "China"},
	"bangalore":     {"", "India"},
	"bengaluru":     {"", "India"},
	"mumbai":        {"", "India"},
	"hyderabad":     {"", "India"},
	"tel aviv":      {"", "Israel"},
	"dubai":         {"", "United Arab Emirates"},
	"sao paulo":     {"", "Brazil"},
	"mexico city":   {"", "Mexico"},
}

// 小写国家名 → 规范国家名（用于识别 "City, Country" 尾段）
var knownCountries = func() map[string]string {
	names := []string{
		countryUS, "USA", "United Kingdom", "UK", "Canada", "Australia",
		"Germany", "France", "Netherlands", "Switzerland", "Sweden", "Ireland",
		"Singapore", "Japan", "China", "India", "Israel", "Brazil", "Mexico",
		"Spain", "Italy", "Poland", "Portugal", "Norway", "Denmark", "Finland",
		"Austria", "Belgium", "New Zealand", "South Korea", "United Arab Emirates",
	}
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = n
	}
	// 常见别名归一
	m["usa"] = countryUS
	m["us"] = countryUS
	m["u.s."] = countryUS
	m["u.s.a."] = countryUS
	m["uk"] = "United Kingdom"
	m["u.k."] = "United Kingdom"
	return m
}()

var zipRe = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)

// ParseLocation 把自由格式的地点字符串解析为结构化 {city, state, country}。
// 分层启发式：美国州表 → 国家表 → 常见城市表。
// 自一致性不变量：country 永远不等于 city 或 state，
// 冲突时清空 country 而不是输出错误值。
func ParseLocation(text string) *types.Location {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	loc := &types.Location{}

	parts := splitLocationParts(s)
	switch len(parts) {
	case 1:
		parseSingleToken(parts[0], loc)
	default:
		parseMultiPart(parts, loc)
	}

	if loc.City == "" && loc.State == "" && loc.Country == "" {
		return nil
	}

	return enforceSelfConsistency(loc)
}

// NormalizeLocation 对LLM已经给出的部分地点结构做补全与纠偏
func NormalizeLocation(loc *types.Location) *types.Location {
	if loc == nil {
		return nil
	}

	// 州缩写展开
	if full, ok := usStateAbbrevs[strings.ToUpper(strings.TrimSpace(loc.State))]; ok {
		loc.State = full
	}
	// 已识别美国州但国家缺失 → 补 United States
	if loc.Country == "" && loc.State != "" {
		if _, ok := usStateNames[strings.ToLower(loc.State)]; ok {
			loc.Country = countryUS
		}
	}
	// 国家别名归一
	if canonical, ok := knownCountries[strings.ToLower(strings.TrimSpace(loc.Country))]; ok {
		loc.Country = canonical
	}
	// 城市已知但州/国家缺失
	if entry, ok := knownCities[strings.ToLower(strings.TrimSpace(loc.City))]; ok {
		if loc.State == "" {
			loc.State = entry.state
		}
		if loc.Country == "" {
			loc.Country = entry.country
		}
	}

	return enforceSelfConsistency(loc)
}

// splitLocationParts 按逗号切分并清理空段
func splitLocationParts(s string) []string {
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// parseSingleToken 处理单个词元："Seattle"、"WA"、"Germany" 等
func parseSingleToken(token string, loc *types.Location) {
	if full, ok := usStateAbbrevs[strings.ToUpper(token)]; ok {
		loc.State = full
		loc.Country = countryUS
		return
	}
	if full, ok := usStateNames[strings.ToLower(token)]; ok {
		loc.State = full
		loc.Country = countryUS
		return
	}
	if country, ok := knownCountries[strings.ToLower(token)]; ok {
		loc.Country = country
		return
	}
	if entry, ok := knownCities[strings.ToLower(token)]; ok {
		loc.City = token
		loc.State = entry.state
		loc.Country = entry.country
		return
	}
	// 未知单词元按城市处理，州/国家留空
	loc.City = token
}

// parseMultiPart 处理 "City, ST"、"City, ST ZIP, Country"、"City, Country" 等形态
func parseMultiPart(parts []string, loc *types.Location) {
	loc.City = parts[0]

	for _, part := range parts[1:] {
		// "ST ZIP" 形态先剥掉邮编
		fields := strings.Fields(part)
		if len(fields) == 2 && zipRe.MatchString(fields[1]) {
			part = fields[0]
		}

		if full, ok := usStateAbbrevs[strings.ToUpper(part)]; ok {
			loc.State = full
			if loc.Country == "" {
				loc.Country = countryUS
			}
			continue
		}
		if full, ok := usStateNames[strings.ToLower(part)]; ok {
			loc.State = full
			if loc.Country == "" {
				loc.Country = countryUS
			}
			continue
		}
		if country, ok := knownCountries[strings.ToLower(part)]; ok {
			loc.Country = country
			continue
		}
		// 非美国的 "City, Region" 形态：无法确认的段按州/地区处理
		if loc.State == "" {
			loc.State = part
		}
	}

	// 城市在已知城市表中且州仍缺失时补全
	if entry, ok := knownCities[strings.ToLower(loc.City)]; ok {
		if loc.State == "" {
			loc.State = entry.state
		}
		if loc.Country == "" {
			loc.Country = entry.country
		}
	}
}

// enforceSelfConsistency 保证 country != city 且 state != city。
// 违反时清空 country（宁缺毋错）。
func enforceSelfConsistency(loc *types.Location) *types.Location {
	if loc == nil {
		return nil
	}
	if loc.Country != "" && (strings.EqualFold(loc.Country, loc.City) || strings.EqualFold(loc.Country, loc.State)) {
		loc.Country = ""
	}
	if loc.State != "" && strings.EqualFold(loc.State, loc.City) {
		loc.State = ""
	}
	return loc
}
