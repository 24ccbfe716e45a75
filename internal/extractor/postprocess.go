package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
)

// PostProcessorConfig 跨章节后处理的可调参数。
// 相似度与重合度阈值是经验值，按需在配置中覆盖。
type PostProcessorConfig struct {
	// AchievementSimilarity 成就去重的相似度阈值
	AchievementSimilarity float64 `yaml:"achievement_similarity"`
	// ListFieldOverlap 列表型字段（职责、亮点）的词重合度阈值
	ListFieldOverlap float64 `yaml:"list_field_overlap"`
	// ProseFieldOverlap 长描述字段的词重合度阈值
	ProseFieldOverlap float64 `yaml:"prose_field_overlap"`
	// OverlapWarnMonths 工作经历重叠超过该月数才告警
	OverlapWarnMonths int `yaml:"overlap_warn_months"`
	// 置信度三个子项的权重，和为1
	CompletenessWeight float64 `yaml:"completeness_weight"`
	CoverageWeight     float64 `yaml:"coverage_weight"`
	QualityWeight      float64 `yaml:"quality_weight"`
}

// DefaultPostProcessorConfig 返回默认参数
func DefaultPostProcessorConfig() PostProcessorConfig {
	return PostProcessorConfig{
		AchievementSimilarity: 0.85,
		ListFieldOverlap:      0.5,
		ProseFieldOverlap:     0.7,
		OverlapWarnMonths:     1,
		CompletenessWeight:    0.4,
		CoverageWeight:        0.3,
		QualityWeight:         0.3,
	}
}

func (c PostProcessorConfig) normalize() PostProcessorConfig {
	d := DefaultPostProcessorConfig()
	if c.AchievementSimilarity <= 0 || c.AchievementSimilarity > 1 {
		c.AchievementSimilarity = d.AchievementSimilarity
	}
	if c.ListFieldOverlap <= 0 || c.ListFieldOverlap > 1 {
		c.ListFieldOverlap = d.ListFieldOverlap
	}
	if c.ProseFieldOverlap <= 0 || c.ProseFieldOverlap > 1 {
		c.ProseFieldOverlap = d.ProseFieldOverlap
	}
	if c.OverlapWarnMonths <= 0 {
		c.OverlapWarnMonths = d.OverlapWarnMonths
	}
	sum := c.CompletenessWeight + c.CoverageWeight + c.QualityWeight
	if sum <= 0 {
		c.CompletenessWeight = d.CompletenessWeight
		c.CoverageWeight = d.CoverageWeight
		c.QualityWeight = d.QualityWeight
	}
	return c
}

// PostProcessor 在章节全部落位后对文档做整体精修。
// 步骤之间有依赖关系，顺序固定：
// 去重 -> 成就合并 -> 日期逻辑校验 -> 幻觉过滤 -> 置信度评分。
// 发现的所有问题都是建议性质，从不阻断文档返回。
type PostProcessor struct {
	cfg    PostProcessorConfig
	logger zerolog.Logger
}

// NewPostProcessor 创建后处理器
func NewPostProcessor(cfg PostProcessorConfig, logger zerolog.Logger) *PostProcessor {
	return &PostProcessor{
		cfg:    cfg.normalize(),
		logger: logger.With().Str("component", "postprocessor").Logger(),
	}
}

// Process 就地精修文档并返回发现的全部问题。
// sourceText 是原始简历文本，幻觉过滤与置信度评分都依赖它。
func (p *PostProcessor) Process(doc *types.Document, sourceText string) []types.ValidationIssue {
	var issues []types.ValidationIssue

	issues = append(issues, p.DedupCertificationsAndCourses(doc)...)
	issues = append(issues, p.MergeNearDuplicateAchievements(doc)...)
	issues = append(issues, p.ValidateDates(doc)...)
	issues = append(issues, p.FilterHallucinations(doc, sourceText)...)

	if len(issues) > 0 {
		p.logger.Info().Int("issues", len(issues)).Msg("后处理完成")
	}
	return issues
}

// --- 步骤1：认证与课程去重 ---

// DedupCertificationsAndCourses 删除与认证同名的课程条目，认证是更具体的归类。
// 同时清理各自章节内部的大小写不敏感重复。该操作是幂等的。
func (p *PostProcessor) DedupCertificationsAndCourses(doc *types.Document) []types.ValidationIssue {
	var issues []types.ValidationIssue

	certNames := map[string]bool{}
	if doc.Certifications != nil {
		kept := doc.Certifications.Items[:0]
		for _, cert := range doc.Certifications.Items {
			key := normalizeTitle(cert.Name)
			if key == "" || certNames[key] {
				continue
			}
			certNames[key] = true
			kept = append(kept, cert)
		}
		doc.Certifications.Items = kept
	}

	if doc.Courses != nil {
		seen := map[string]bool{}
		kept := doc.Courses.Items[:0]
		for _, course := range doc.Courses.Items {
			key := normalizeTitle(course.Title)
			if key == "" || seen[key] {
				continue
			}
			if certNames[key] {
				issues = append(issues, types.ValidationIssue{
					Kind:          types.IssueDuplicateMerged,
					Severity:      types.SeverityWarning,
					AffectedItems: []string{course.Title},
					Message:       "课程与同名认证重复，已从课程章节移除",
				})
				continue
			}
			seen[key] = true
			kept = append(kept, course)
		}
		doc.Courses.Items = kept
	}

	return issues
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// --- 步骤2：近似重复成就合并 ---

// achievementCandidate 参与去重比较的成就类文本
type achievementCandidate struct {
	text   string
	source string
	// index 仅对成就章节条目有效，其余来源为-1
	index int
}

// MergeNearDuplicateAchievements 跨章节收集成就类文本并合并近似重复项。
// 比较使用归一化后的词级最长公共子序列比率，数字指标完全一致时加权。
// 保留组内最长（信息量最大）的文本，并把所有贡献来源记入 Sources。
func (p *PostProcessor) MergeNearDuplicateAchievements(doc *types.Document) []types.ValidationIssue {
	candidates := collectAchievementCandidates(doc)
	if len(candidates) < 2 {
		return nil
	}

	// 贪心分组：每个候选项与已有组的代表比较，超阈值即入组
	var groups [][]int
	for i := range candidates {
		placed := false
		for g := range groups {
			rep := candidates[groups[g][0]]
			if p.achievementSimilarity(candidates[i].text, rep.text) >= p.cfg.AchievementSimilarity {
				groups[g] = append(groups[g], i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}

	var issues []types.ValidationIssue
	removeFromAchievements := map[int]bool{}
	mergedSources := map[int][]string{}
	mergedTexts := map[int]bool{}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		// 选最长文本作为保留项
		longest := group[0]
		for _, idx := range group[1:] {
			if len(candidates[idx].text) > len(candidates[longest].text) {
				longest = idx
			}
		}

		sources := map[string]bool{}
		var merged []string
		for _, idx := range group {
			sources[candidates[idx].source] = true
			merged = append(merged, candidates[idx].text)
			// 成就章节内的重复项被移除，唯一保留最长者
			if candidates[idx].index >= 0 && idx != longest {
				removeFromAchievements[candidates[idx].index] = true
			}
		}

		if candidates[longest].index >= 0 {
			var sourceList []string
			for s := range sources {
				sourceList = append(sourceList, s)
			}
			mergedSources[candidates[longest].index] = sourceList
		}
		if !mergedTexts[longest] {
			mergedTexts[longest] = true
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueDuplicateMerged,
				Severity:      types.SeverityWarning,
				AffectedItems: merged,
				Message:       fmt.Sprintf("合并了%d条近似重复的成就描述", len(group)),
			})
		}
	}

	if doc.Achievements != nil && (len(removeFromAchievements) > 0 || len(mergedSources) > 0) {
		kept := doc.Achievements.Items[:0]
		for i, item := range doc.Achievements.Items {
			if removeFromAchievements[i] {
				continue
			}
			if sources, ok := mergedSources[i]; ok {
				item.Sources = unionStrings(item.Sources, sources)
			}
			kept = append(kept, item)
		}
		doc.Achievements.Items = kept
	}

	return issues
}

func collectAchievementCandidates(doc *types.Document) []achievementCandidate {
	var candidates []achievementCandidate

	if doc.Achievements != nil {
		for i, item := range doc.Achievements.Items {
			candidates = append(candidates, achievementCandidate{
				text: item.Text, source: string(types.SectionAchievements), index: i,
			})
		}
	}
	if doc.Experience != nil {
		for _, item := range doc.Experience.Items {
			for _, r := range item.Responsibilities {
				candidates = append(candidates, achievementCandidate{
					text: r, source: string(types.SectionExperience), index: -1,
				})
			}
		}
	}
	if doc.Summary != nil {
		for _, h := range doc.Summary.Highlights {
			candidates = append(candidates, achievementCandidate{
				text: h, source: string(types.SectionSummary), index: -1,
			})
		}
	}
	if doc.Projects != nil {
		for _, item := range doc.Projects.Items {
			for _, o := range item.Outcomes {
				candidates = append(candidates, achievementCandidate{
					text: o, source: string(types.SectionProjects), index: -1,
				})
			}
		}
	}

	return candidates
}

// verbTenseSynonyms 动词时态归一化表，比较前把过去式折叠为原形
var verbTenseSynonyms = map[string]string{
	"led": "lead", "managed": "manage", "developed": "develop",
	"improved": "improve", "increased": "increase", "reduced": "reduce",
	"created": "create", "built": "build", "designed": "design",
	"delivered": "deliver", "launched": "launch", "implemented": "implement",
	"achieved": "achieve", "optimized": "optimize", "migrated": "migrate",
	"maintained": "maintain", "architected": "architect", "established": "establish",
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?%?`)

// achievementSimilarity 计算两条成就文本的相似度，取值 [0, 1]。
// 词级LCS比率为基底，双方数字指标完全一致时加0.1。
func (p *PostProcessor) achievementSimilarity(a, b string) float64 {
	wordsA := normalizeAchievementWords(a)
	wordsB := normalizeAchievementWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	lcs := wordLCS(wordsA, wordsB)
	score := float64(2*lcs) / float64(len(wordsA)+len(wordsB))

	numsA := numberRe.FindAllString(a, -1)
	numsB := numberRe.FindAllString(b, -1)
	if len(numsA) > 0 && stringSlicesEqual(numsA, numsB) {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

var punctRe = regexp.MustCompile(`[^\p{L}\p{N}%. ]+`)

func normalizeAchievementWords(s string) []string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	for i, w := range words {
		if base, ok := verbTenseSynonyms[w]; ok {
			words[i] = base
		}
	}
	return words
}

// wordLCS 词序列的最长公共子序列长度，滚动数组实现
func wordLCS(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// --- 步骤3：日期逻辑校验 ---

// certIndicatorKeywords 认证类关键词。教育条目命中即判定为误分类，
// 移入认证章节。
var certIndicatorKeywords = []string{
	"certified", "certification", "certificate",
	"aws certified", "pmp", "scrum master", "csm",
	"cisco", "comptia", "ccna", "cka", "oca", "ocp",
}

var fullDateRe = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)

// ValidateDates 校验经历/教育日期逻辑并迁移误分类的认证条目。
// 工作经历的时间重叠只告警不修正，兼职并行是合法情况。
func (p *PostProcessor) ValidateDates(doc *types.Document) []types.ValidationIssue {
	var issues []types.ValidationIssue

	if doc.Experience != nil {
		issues = append(issues, p.validateExperienceDates(doc.Experience)...)
	}
	if doc.Education != nil {
		issues = append(issues, p.validateEducationDates(doc)...)
	}

	return issues
}

func (p *PostProcessor) validateExperienceDates(section *types.ExperienceSection) []types.ValidationIssue {
	var issues []types.ValidationIssue

	type span struct {
		label string
		start *types.YearMonth
		end   *types.YearMonth
	}
	spans := make([]span, 0, len(section.Items))
	for _, item := range section.Items {
		label := item.Company
		if label == "" {
			label = item.Title
		}
		start := ParseYearMonth(item.StartDate)
		end := ParseYearMonth(item.EndDate)

		if start != nil && item.EndDate != "" && end != nil && toOrdinal(end) < toOrdinal(start) {
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueInvalidDateRange,
				Severity:      types.SeverityError,
				AffectedItems: []string{label},
				Message:       fmt.Sprintf("工作经历 %q 的结束时间早于开始时间", label),
			})
			continue
		}
		spans = append(spans, span{label: label, start: start, end: endOrNil(item.EndDate, end)})
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			overlap := OverlapMonths(spans[i].start, spans[i].end, spans[j].start, spans[j].end)
			if overlap > p.cfg.OverlapWarnMonths {
				issues = append(issues, types.ValidationIssue{
					Kind:          types.IssueDateOverlap,
					Severity:      types.SeverityWarning,
					AffectedItems: []string{spans[i].label, spans[j].label},
					Message:       fmt.Sprintf("工作经历 %q 与 %q 时间段重叠约%d个月", spans[i].label, spans[j].label, overlap),
					Suggestion:    "并行的兼职或顾问工作属正常情况，请人工确认",
				})
			}
		}
	}

	return issues
}

// endOrNil 结束日期为空或为"至今"哨兵词时返回nil，交给重叠计算按当前时间处理
func endOrNil(rawEnd string, parsed *types.YearMonth) *types.YearMonth {
	if strings.TrimSpace(rawEnd) == "" {
		return nil
	}
	return parsed
}

func (p *PostProcessor) validateEducationDates(doc *types.Document) []types.ValidationIssue {
	var issues []types.ValidationIssue
	section := doc.Education

	kept := section.Items[:0]
	for _, item := range section.Items {
		label := item.Degree
		if label == "" {
			label = item.Institution
		}

		start := ParseYearMonth(item.StartDate)
		end := ParseYearMonth(item.EndDate)
		if start != nil && end != nil && toOrdinal(end) < toOrdinal(start) {
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueInvalidDateRange,
				Severity:      types.SeverityError,
				AffectedItems: []string{label},
				Message:       fmt.Sprintf("教育经历 %q 的结束时间早于开始时间", label),
			})
		}

		// 起止同日的学位条目大概率是被误归类的认证
		if isSingleDay(item.StartDate, item.EndDate) {
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueSingleDayDegree,
				Severity:      types.SeverityWarning,
				AffectedItems: []string{label},
				Message:       fmt.Sprintf("教育经历 %q 的起止日期为同一天", label),
				Suggestion:    "单日获得的条目更可能是认证而非学位",
			})
		}

		if matchesCertIndicator(item.Degree) || matchesCertIndicator(item.Institution) {
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueMisclassifiedCertification,
				Severity:      types.SeverityWarning,
				AffectedItems: []string{label},
				Message:       fmt.Sprintf("教育条目 %q 匹配认证关键词，已移入认证章节", label),
			})
			moveToCertifications(doc, item)
			continue
		}

		kept = append(kept, item)
	}
	section.Items = kept

	return issues
}

func isSingleDay(start, end string) bool {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	return start != "" && start == end && fullDateRe.MatchString(start)
}

func matchesCertIndicator(text string) bool {
	lowered := strings.ToLower(text)
	if lowered == "" {
		return false
	}
	for _, kw := range certIndicatorKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// moveToCertifications 把误分类的教育条目转成认证条目。
// 同名认证已存在时直接丢弃，不产生重复。
func moveToCertifications(doc *types.Document, item types.EducationItem) {
	name := item.Degree
	if name == "" {
		name = item.Field
	}
	if name == "" {
		return
	}

	if doc.Certifications == nil {
		doc.Certifications = &types.CertificationsSection{}
	}
	key := normalizeTitle(name)
	for _, existing := range doc.Certifications.Items {
		if normalizeTitle(existing.Name) == key {
			return
		}
	}

	issueDate := item.EndDate
	if issueDate == "" {
		issueDate = item.StartDate
	}
	doc.Certifications.Items = append(doc.Certifications.Items, types.CertificationItem{
		Name:      name,
		Issuer:    item.Institution,
		IssueDate: issueDate,
	})
}

// --- 步骤4：幻觉过滤 ---

// marketingPhrases 营销式修饰语清单。低重合度字段同时命中清单时，
// 内容直接清空而不只是标记，这是捏造内容的最强信号。
var marketingPhrases = []string{
	"cutting-edge", "world-class", "best-in-class", "state-of-the-art",
	"demonstrating strong", "proven track record", "results-driven",
	"highly motivated", "dynamic team player", "passionate about",
	"synergy", "thought leader", "industry-leading", "award-winning",
}

// FilterHallucinations 检查自由文本字段是否真实出现在原文中。
// 短字段（归一化后不足10字符）要求精确子串匹配；
// 长字段按词重合度判定，低于阈值则标记，叠加营销短语则清空。
func (p *PostProcessor) FilterHallucinations(doc *types.Document, sourceText string) []types.ValidationIssue {
	if strings.TrimSpace(sourceText) == "" {
		return nil
	}

	checker := newSourceChecker(sourceText)
	var issues []types.ValidationIssue

	if doc.Experience != nil {
		for i := range doc.Experience.Items {
			item := &doc.Experience.Items[i]
			item.Responsibilities, issues = p.filterStringList(
				checker, item.Responsibilities, p.cfg.ListFieldOverlap,
				fmt.Sprintf("experience[%s].responsibilities", item.Company), issues)
			issues = p.flagUngroundedTechnologies(
				checker, item.Technologies,
				fmt.Sprintf("experience[%s].technologies", item.Company), issues)
		}
	}
	if doc.Summary != nil {
		doc.Summary.Highlights, issues = p.filterStringList(
			checker, doc.Summary.Highlights, p.cfg.ListFieldOverlap, "summary.highlights", issues)
	}
	if doc.Projects != nil {
		for i := range doc.Projects.Items {
			item := &doc.Projects.Items[i]
			item.Description, issues = p.filterProseField(
				checker, item.Description, p.cfg.ProseFieldOverlap,
				fmt.Sprintf("projects[%s].description", item.Name), issues)
			item.Outcomes, issues = p.filterStringList(
				checker, item.Outcomes, p.cfg.ListFieldOverlap,
				fmt.Sprintf("projects[%s].outcomes", item.Name), issues)
			issues = p.flagUngroundedTechnologies(
				checker, item.Technologies,
				fmt.Sprintf("projects[%s].technologies", item.Name), issues)
		}
	}
	if doc.Achievements != nil {
		for i := range doc.Achievements.Items {
			item := &doc.Achievements.Items[i]
			item.Context, issues = p.filterProseField(
				checker, item.Context, p.cfg.ProseFieldOverlap,
				fmt.Sprintf("achievements[%d].context", i), issues)
		}
	}
	if doc.Volunteer != nil {
		for i := range doc.Volunteer.Items {
			item := &doc.Volunteer.Items[i]
			item.Description, issues = p.filterProseField(
				checker, item.Description, p.cfg.ProseFieldOverlap,
				fmt.Sprintf("volunteer[%s].description", item.Organization), issues)
		}
	}

	return issues
}

// flagUngroundedTechnologies 检查技术名称是否出现在原文中。
// 技术名通常很短，统一按精确子串匹配；未命中的只标记不删除，
// 因为原文可能用了别名或缩写。
func (p *PostProcessor) flagUngroundedTechnologies(checker *sourceChecker, technologies []string, fieldName string, issues []types.ValidationIssue) []types.ValidationIssue {
	for _, tech := range technologies {
		normalized := normalizeForMatch(tech)
		if normalized == "" || strings.Contains(checker.normalizedSource, normalized) {
			continue
		}
		issues = append(issues, types.ValidationIssue{
			Kind:          types.IssueSuspiciousTechnology,
			Severity:      types.SeverityWarning,
			AffectedItems: []string{fieldName},
			Message:       fmt.Sprintf("字段 %s 中的技术 %q 未在原文中出现", fieldName, tech),
			Suggestion:    "确认该技术是否为模型推断出的别名或捏造项",
		})
	}
	return issues
}

// filterStringList 对列表字段逐项检查，命中清空条件的条目被移除
func (p *PostProcessor) filterStringList(checker *sourceChecker, items []string, threshold float64, fieldName string, issues []types.ValidationIssue) ([]string, []types.ValidationIssue) {
	kept := items[:0]
	for _, text := range items {
		verdict := checker.verdict(text, threshold)
		switch verdict {
		case verdictClear:
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueHallucination,
				Severity:      types.SeverityError,
				AffectedItems: []string{fieldName},
				Message:       fmt.Sprintf("字段 %s 包含原文中不存在的营销式描述，已清除: %q", fieldName, head(text, 60)),
			})
		case verdictFlag:
			issues = append(issues, types.ValidationIssue{
				Kind:          types.IssueHallucination,
				Severity:      types.SeverityWarning,
				AffectedItems: []string{fieldName},
				Message:       fmt.Sprintf("字段 %s 与原文重合度过低: %q", fieldName, head(text, 60)),
			})
			kept = append(kept, text)
		default:
			kept = append(kept, text)
		}
	}
	if len(kept) == 0 {
		return nil, issues
	}
	return kept, issues
}

// filterProseField 对单值描述字段检查，命中清空条件时置为空串
func (p *PostProcessor) filterProseField(checker *sourceChecker, text string, threshold float64, fieldName string, issues []types.ValidationIssue) (string, []types.ValidationIssue) {
	if text == "" {
		return text, issues
	}
	switch checker.verdict(text, threshold) {
	case verdictClear:
		issues = append(issues, types.ValidationIssue{
			Kind:          types.IssueHallucination,
			Severity:      types.SeverityError,
			AffectedItems: []string{fieldName},
			Message:       fmt.Sprintf("字段 %s 包含原文中不存在的营销式描述，已清除: %q", fieldName, head(text, 60)),
		})
		return "", issues
	case verdictFlag:
		issues = append(issues, types.ValidationIssue{
			Kind:          types.IssueHallucination,
			Severity:      types.SeverityWarning,
			AffectedItems: []string{fieldName},
			Message:       fmt.Sprintf("字段 %s 与原文重合度过低: %q", fieldName, head(text, 60)),
		})
	}
	return text, issues
}

type hallucinationVerdict int

const (
	verdictKeep hallucinationVerdict = iota
	verdictFlag
	verdictClear
)

// sourceChecker 预先索引原文词集，供逐字段检查复用
type sourceChecker struct {
	normalizedSource string
	sourceWords      map[string]bool
}

func newSourceChecker(sourceText string) *sourceChecker {
	normalized := normalizeForMatch(sourceText)
	words := map[string]bool{}
	for _, w := range strings.Fields(normalized) {
		words[w] = true
	}
	return &sourceChecker{normalizedSource: normalized, sourceWords: words}
}

func (c *sourceChecker) verdict(text string, threshold float64) hallucinationVerdict {
	normalized := normalizeForMatch(text)
	if normalized == "" {
		return verdictKeep
	}

	// 短字段要求精确子串匹配
	if len(normalized) < 10 {
		if strings.Contains(c.normalizedSource, normalized) {
			return verdictKeep
		}
		return verdictFlag
	}

	words := strings.Fields(normalized)
	found := 0
	for _, w := range words {
		if c.sourceWords[w] {
			found++
		}
	}
	overlap := float64(found) / float64(len(words))
	if overlap >= threshold {
		return verdictKeep
	}

	lowered := strings.ToLower(text)
	for _, phrase := range marketingPhrases {
		if strings.Contains(lowered, phrase) {
			return verdictClear
		}
	}
	return verdictFlag
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// --- 步骤5：置信度评分 ---

// ConfidenceScore 计算文档整体置信度，取值 [0, 1]。
// 三个子项：章节完整度、原文覆盖度、校验质量，按配置权重加权。
func (p *PostProcessor) ConfidenceScore(doc *types.Document, sourceText string, issues []types.ValidationIssue) float64 {
	completeness := float64(doc.SectionCount()) / float64(len(types.AllSectionKinds))

	coverage := 0.0
	sourceLen := len(strings.TrimSpace(sourceText))
	if sourceLen > 0 {
		extracted := extractedCharCount(doc.SectionMap())
		coverage = float64(extracted) / float64(sourceLen)
		if coverage > 1 {
			coverage = 1
		}
	}

	quality := 1 - float64(len(issues))/10
	if quality < 0 {
		quality = 0
	}

	weightSum := p.cfg.CompletenessWeight + p.cfg.CoverageWeight + p.cfg.QualityWeight
	score := (p.cfg.CompletenessWeight*completeness +
		p.cfg.CoverageWeight*coverage +
		p.cfg.QualityWeight*quality) / weightSum

	p.logger.Debug().
		Float64("completeness", completeness).
		Float64("coverage", coverage).
		Float64("quality", quality).
		Float64("score", score).
		Msg("置信度评分")
	return score
}

// extractedCharCount 递归统计结构中所有字符串值的总长度，
// 作为"提取出的内容量"的粗略估计
func extractedCharCount(value interface{}) int {
	switch v := value.(type) {
	case string:
		return len(v)
	case []interface{}:
		total := 0
		for _, item := range v {
			total += extractedCharCount(item)
		}
		return total
	case map[string]interface{}:
		total := 0
		for _, item := range v {
			total += extractedCharCount(item)
		}
		return total
	}
	return 0
}
