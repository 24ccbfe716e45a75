package extractor

import (
	"regexp"
	"strings"
)

// rolePattern 有序的角色推断规则。顺序即优先级，先命中先得。
type rolePattern struct {
	re   *regexp.Regexp
	role string
}

// 按特异性从高到低排列
var rolePatterns = []rolePattern{
	{regexp.MustCompile(`(?i)\b(chief\s+technology\s+officer|cto)\b`), "Chief Technology Officer"},
	{regexp.MustCompile(`(?i)\b(chief\s+executive\s+officer|ceo)\b`), "Chief Executive Officer"},
	{regexp.MustCompile(`(?i)\bengineering\s+manager\b`), "Engineering Manager"},
	{regexp.MustCompile(`(?i)\b(vp|vice\s+president)\s+of\s+engineering\b`), "VP of Engineering"},
	{regexp.MustCompile(`(?i)\b(principal|staff)\s+(software\s+)?engineer\b`), "Staff Engineer"},
	{regexp.MustCompile(`(?i)\btech(nical)?\s+lead\b`), "Tech Lead"},
	{regexp.MustCompile(`(?i)\bmachine\s+learning\s+engineer\b`), "Machine Learning Engineer"},
	{regexp.MustCompile(`(?i)\bdata\s+scientist\b`), "Data Scientist"},
	{regexp.MustCompile(`(?i)\bdata\s+engineer\b`), "Data Engineer"},
	{regexp.MustCompile(`(?i)\b(devops|site\s+reliability)\s+engineer\b`), "DevOps Engineer"},
	{regexp.MustCompile(`(?i)\bsecurity\s+engineer\b`), "Security Engineer"},
	{regexp.MustCompile(`(?i)\b(frontend|front[- ]end)\s+(developer|engineer)\b`), "Frontend Engineer"},
	{regexp.MustCompile(`(?i)\b(backend|back[- ]end)\s+(developer|engineer)\b`), "Backend Engineer"},
	{regexp.MustCompile(`(?i)\bfull[- ]?stack\s+(developer|engineer)\b`), "Full Stack Engineer"},
	{regexp.MustCompile(`(?i)\bmobile\s+(developer|engineer)\b`), "Mobile Engineer"},
	{regexp.MustCompile(`(?i)\bsoftware\s+(developer|engineer)\b`), "Software Engineer"},
	{regexp.MustCompile(`(?i)\bproduct\s+manager\b`), "Product Manager"},
	{regexp.MustCompile(`(?i)\bproject\s+manager\b`), "Project Manager"},
	{regexp.MustCompile(`(?i)\b(ux|ui|product)\s+designer\b`), "Product Designer"},
	{regexp.MustCompile(`(?i)\bqa\s+(engineer|analyst)\b`), "QA Engineer"},
	{regexp.MustCompile(`(?i)\b(web\s+)?developer\b`), "Developer"},
	{regexp.MustCompile(`(?i)\bconsultant\b`), "Consultant"},
	{regexp.MustCompile(`(?i)\bresearcher\b`), "Researcher"},
}

// InferRole 从自由文本推断角色标签。
// 仅在无法识别时返回空串，不做宽泛猜测；调用方只应在原值为空时使用结果。
func InferRole(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, p := range rolePatterns {
		if p.re.MatchString(text) {
			return p.role
		}
	}
	return ""
}

var (
	// "at XXX Conference"、"at XXX Summit" 等活动名形态
	eventAtRe = regexp.MustCompile(`(?i)\bat\s+((?:[A-Z][\w.&''-]*\s*)+(?:conference|summit|meetup|con|camp|days?|world|fest|forum|symposium|workshop))\b`)
	// 独立出现的 "XXXConf 2023" 形态
	eventConfRe = regexp.MustCompile(`\b([A-Z][\w]*(?:Conf|Con|Camp|Fest|Days))\b(?:\s+\d{4})?`)
)

// InferEventName 从演讲描述中推断活动名称，识别不出返回空串
func InferEventName(text string) string {
	if m := eventAtRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := eventConfRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var fieldOfStudyPatterns = []rolePattern{
	{regexp.MustCompile(`(?i)\bcomputer\s+science\b`), "Computer Science"},
	{regexp.MustCompile(`(?i)\bsoftware\s+engineering\b`), "Software Engineering"},
	{regexp.MustCompile(`(?i)\b(electrical|electronics?)\s+engineering\b`), "Electrical Engineering"},
	{regexp.MustCompile(`(?i)\bmechanical\s+engineering\b`), "Mechanical Engineering"},
	{regexp.MustCompile(`(?i)\bcivil\s+engineering\b`), "Civil Engineering"},
	{regexp.MustCompile(`(?i)\binformation\s+(technology|systems)\b`), "Information Technology"},
	{regexp.MustCompile(`(?i)\b(artificial\s+intelligence|machine\s+learning)\b`), "Artificial Intelligence"},
	{regexp.MustCompile(`(?i)\bdata\s+science\b`), "Data Science"},
	{regexp.MustCompile(`(?i)\bmathematics\b`), "Mathematics"},
	{regexp.MustCompile(`(?i)\bphysics\b`), "Physics"},
	{regexp.MustCompile(`(?i)\bbusiness\s+administration\b`), "Business Administration"},
	{regexp.MustCompile(`(?i)\beconomics\b`), "Economics"},
	{regexp.MustCompile(`(?i)\bfinance\b`), "Finance"},
	{regexp.MustCompile(`(?i)\bgraphic\s+design\b`), "Graphic Design"},
	{regexp.MustCompile(`(?i)\bpsychology\b`), "Psychology"},
	{regexp.MustCompile(`(?i)\bbiology\b`), "Biology"},
	{regexp.MustCompile(`(?i)\bchemistry\b`), "Chemistry"},
}

// InferFieldOfStudy 从学位/院校文本推断专业方向，识别不出返回空串
func InferFieldOfStudy(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, p := range fieldOfStudyPatterns {
		if p.re.MatchString(text) {
			return p.role
		}
	}
	return ""
}
