package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"portfolio-agent-go/internal/types"
)

// SchemaValidationError 章节载荷不符合目标schema时的错误
type SchemaValidationError struct {
	Kind   types.SectionKind
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("章节 %s schema校验失败: %s", e.Kind, e.Reason)
}

// decodeStrict 严格解码：未知字段、类型不匹配都视为schema错误。
// LLM响应中多出的字段往往意味着模型没有遵循schema，宁可丢弃整个章节。
func decodeStrict(kind types.SectionKind, raw json.RawMessage, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &SchemaValidationError{Kind: kind, Reason: err.Error()}
	}
	return nil
}

// --- LLM线上载荷结构（与提示词中的schema一一对应） ---

type contactPayload struct {
	Email    string              `json:"email"`
	Phone    string              `json:"phone"`
	Location *types.Location     `json:"location"`
	Website  string              `json:"website"`
	Links    []types.SocialLink  `json:"links"`
}

type summaryPayload struct {
	Text                string   `json:"text"`
	Highlights          []string `json:"highlights"`
	ExperienceYearsText string   `json:"experience_years_text"`
}

type experienceItemPayload struct {
	Company          string   `json:"company"`
	Title            string   `json:"title"`
	Location         string   `json:"location"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	Responsibilities []string `json:"responsibilities"`
	Technologies     []string `json:"technologies"`
}

type experiencePayload struct {
	Items []experienceItemPayload `json:"items"`
}

type projectItemPayload struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	URL          string   `json:"url"`
	Outcomes     []string `json:"outcomes"`
}

type projectsPayload struct {
	Items []projectItemPayload `json:"items"`
}

// ValidateSection 将解析出的JSON值解码、归一化并校验为类型化章节。
// 返回 (nil, nil) 表示该章节合法地不存在（模型输出了空对象）。
// 返回错误表示schema不符，章节应被丢弃并进入重试集合。
func ValidateSection(kind types.SectionKind, raw json.RawMessage) (interface{}, error) {
	if raw == nil {
		return nil, &SchemaValidationError{Kind: kind, Reason: "无可解析的JSON"}
	}
	// 空对象是"未找到内容"的约定信号
	if isEmptyJSON(raw) {
		return nil, nil
	}

	handler, ok := sectionRegistry[kind]
	if !ok {
		return nil, &SchemaValidationError{Kind: kind, Reason: "未注册的章节类型"}
	}
	return handler.decode(raw)
}

// isEmptyJSON 判断载荷是否为 {} 或 []
func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "{}" || s == "[]"
}

// --- 各章节的解码+归一化逻辑 ---

func decodeHero(raw json.RawMessage) (interface{}, error) {
	var payload types.HeroSection
	if err := decodeStrict(types.SectionHero, raw, &payload); err != nil {
		return nil, err
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Headline = strings.TrimSpace(payload.Headline)
	payload.Tagline = strings.TrimSpace(payload.Tagline)
	if payload.Name == "" && payload.Headline == "" && payload.Tagline == "" {
		return nil, nil
	}
	return &payload, nil
}

func decodeContact(raw json.RawMessage) (interface{}, error) {
	var payload contactPayload
	if err := decodeStrict(types.SectionContact, raw, &payload); err != nil {
		return nil, err
	}

	section := &types.ContactSection{
		Email:   strings.TrimSpace(payload.Email),
		Phone:   strings.TrimSpace(payload.Phone),
		Website: strings.TrimSpace(payload.Website),
		Links:   payload.Links,
	}

	if payload.Location != nil {
		// 模型常把整个原始地点串塞进city字段，带逗号时重新解析
		if payload.Location.State == "" && payload.Location.Country == "" && strings.Contains(payload.Location.City, ",") {
			section.Location = ParseLocation(payload.Location.City)
		} else {
			section.Location = NormalizeLocation(payload.Location)
		}
	}

	if section.Email == "" && section.Phone == "" && section.Website == "" &&
		section.Location == nil && len(section.Links) == 0 {
		return nil, nil
	}
	return section, nil
}

func decodeSummary(raw json.RawMessage) (interface{}, error) {
	var payload summaryPayload
	if err := decodeStrict(types.SectionSummary, raw, &payload); err != nil {
		return nil, err
	}

	section := &types.SummarySection{
		Text:       strings.TrimSpace(payload.Text),
		Highlights: pruneEmptyStrings(payload.Highlights),
	}
	if payload.ExperienceYearsText != "" {
		section.ExperienceYears = ParseYearSpan(payload.ExperienceYearsText)
	}

	if section.Text == "" && len(section.Highlights) == 0 {
		return nil, nil
	}
	return section, nil
}

func decodeExperience(raw json.RawMessage) (interface{}, error) {
	var payload experiencePayload
	if err := decodeStrict(types.SectionExperience, raw, &payload); err != nil {
		return nil, err
	}

	section := &types.ExperienceSection{}
	for _, item := range payload.Items {
		converted := types.ExperienceItem{
			Company:          strings.TrimSpace(item.Company),
			Title:            strings.TrimSpace(item.Title),
			StartDate:        strings.TrimSpace(item.StartDate),
			EndDate:          strings.TrimSpace(item.EndDate),
			Responsibilities: pruneEmptyStrings(item.Responsibilities),
			Technologies:     pruneEmptyStrings(item.Technologies),
		}
		if loc := strings.TrimSpace(item.Location); loc != "" {
			converted.Location = ParseLocation(loc)
		}
		// 职位缺失时用启发式补推，绝不覆盖已有值
		if converted.Title == "" {
			converted.Title = InferRole(strings.Join(converted.Responsibilities, " "))
		}
		if isEmptyExperienceItem(&converted) {
			continue
		}
		section.Items = append(section.Items, converted)
	}

	if len(section.Items) == 0 {
		return nil, nil
	}
	return section, nil
}

func isEmptyExperienceItem(item *types.ExperienceItem) bool {
	return item.Company == "" && item.Title == "" &&
		len(item.Responsibilities) == 0 && item.StartDate == "" && item.EndDate == ""
}

func decodeEducation(raw json.RawMessage) (interface{}, error) {
	var section types.EducationSection
	if err := decodeStrict(types.SectionEducation, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		item.Institution = strings.TrimSpace(item.Institution)
		item.Degree = strings.TrimSpace(item.Degree)
		item.Field = strings.TrimSpace(item.Field)
		if item.Institution == "" && item.Degree == "" {
			continue
		}
		// 专业方向缺失时从学位文本补推
		if item.Field == "" {
			item.Field = InferFieldOfStudy(item.Degree + " " + item.Institution)
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeSkills(raw json.RawMessage) (interface{}, error) {
	var section types.SkillsSection
	if err := decodeStrict(types.SectionSkills, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Groups[:0]
	for _, group := range section.Groups {
		group.Skills = pruneEmptyStrings(group.Skills)
		if len(group.Skills) == 0 {
			continue
		}
		kept = append(kept, group)
	}
	section.Groups = kept

	if len(section.Groups) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeProjects(raw json.RawMessage) (interface{}, error) {
	var payload projectsPayload
	if err := decodeStrict(types.SectionProjects, raw, &payload); err != nil {
		return nil, err
	}

	section := &types.ProjectsSection{}
	for _, item := range payload.Items {
		converted := types.ProjectItem{
			Name:         strings.TrimSpace(item.Name),
			Description:  strings.TrimSpace(item.Description),
			Technologies: pruneEmptyStrings(item.Technologies),
			URL:          strings.TrimSpace(item.URL),
			Outcomes:     pruneEmptyStrings(item.Outcomes),
		}
		if converted.Name == "" && converted.Description == "" {
			continue
		}
		if converted.URL != "" {
			converted.ViewMode = ClassifyURL(converted.URL)
		}
		section.Items = append(section.Items, converted)
	}

	if len(section.Items) == 0 {
		return nil, nil
	}
	return section, nil
}

func decodeCertifications(raw json.RawMessage) (interface{}, error) {
	var section types.CertificationsSection
	if err := decodeStrict(types.SectionCertifications, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeAchievements(raw json.RawMessage) (interface{}, error) {
	var section types.AchievementsSection
	if err := decodeStrict(types.SectionAchievements, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			continue
		}
		if len(item.Sources) == 0 {
			item.Sources = []string{string(types.SectionAchievements)}
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeVolunteer(raw json.RawMessage) (interface{}, error) {
	var section types.VolunteerSection
	if err := decodeStrict(types.SectionVolunteer, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Organization) == "" && strings.TrimSpace(item.Role) == "" {
			continue
		}
		if item.Role == "" {
			item.Role = InferRole(item.Description)
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeLanguages(raw json.RawMessage) (interface{}, error) {
	var section types.LanguagesSection
	if err := decodeStrict(types.SectionLanguages, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Language) == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeCourses(raw json.RawMessage) (interface{}, error) {
	var section types.CoursesSection
	if err := decodeStrict(types.SectionCourses, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeHobbies(raw json.RawMessage) (interface{}, error) {
	var section types.HobbiesSection
	if err := decodeStrict(types.SectionHobbies, raw, &section); err != nil {
		return nil, err
	}
	section.Items = pruneEmptyStrings(section.Items)
	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodePublications(raw json.RawMessage) (interface{}, error) {
	var section types.PublicationsSection
	if err := decodeStrict(types.SectionPublications, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeSpeaking(raw json.RawMessage) (interface{}, error) {
	var section types.SpeakingSection
	if err := decodeStrict(types.SectionSpeaking, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		item.Title = strings.TrimSpace(item.Title)
		if item.Title == "" && strings.TrimSpace(item.Event) == "" {
			continue
		}
		// 活动名缺失时从讲题文本补推
		if item.Event == "" {
			item.Event = InferEventName(item.Title)
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodePatents(raw json.RawMessage) (interface{}, error) {
	var section types.PatentsSection
	if err := decodeStrict(types.SectionPatents, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

func decodeMemberships(raw json.RawMessage) (interface{}, error) {
	var section types.MembershipsSection
	if err := decodeStrict(types.SectionMemberships, raw, &section); err != nil {
		return nil, err
	}

	kept := section.Items[:0]
	for _, item := range section.Items {
		if strings.TrimSpace(item.Organization) == "" {
			continue
		}
		kept = append(kept, item)
	}
	section.Items = kept

	if len(section.Items) == 0 {
		return nil, nil
	}
	return &section, nil
}

// pruneEmptyStrings 去掉空白字符串并修剪两端空白
func pruneEmptyStrings(items []string) []string {
	kept := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
