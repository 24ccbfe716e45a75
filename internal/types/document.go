package types

import "encoding/json"

// SectionKind 表示作品集文档的章节类型
type SectionKind string

const (
	// SectionHero 首屏信息章节（姓名、头衔、标语）
	SectionHero SectionKind = "hero"
	// SectionContact 联系方式章节
	SectionContact SectionKind = "contact"
	// SectionSummary 个人总结章节
	SectionSummary SectionKind = "summary"
	// SectionExperience 工作经历章节
	SectionExperience SectionKind = "experience"
	// SectionEducation 教育经历章节
	SectionEducation SectionKind = "education"
	// SectionSkills 技能章节
	SectionSkills SectionKind = "skills"
	// SectionProjects 项目经历章节
	SectionProjects SectionKind = "projects"
	// SectionCertifications 认证证书章节
	SectionCertifications SectionKind = "certifications"
	// SectionAchievements 个人成就章节
	SectionAchievements SectionKind = "achievements"
	// SectionVolunteer 志愿服务章节
	SectionVolunteer SectionKind = "volunteer"
	// SectionLanguages 语言能力章节
	SectionLanguages SectionKind = "languages"
	// SectionCourses 课程学习章节
	SectionCourses SectionKind = "courses"
	// SectionHobbies 兴趣爱好章节
	SectionHobbies SectionKind = "hobbies"
	// SectionPublications 出版物章节
	SectionPublications SectionKind = "publications"
	// SectionSpeaking 演讲活动章节
	SectionSpeaking SectionKind = "speaking"
	// SectionPatents 专利章节
	SectionPatents SectionKind = "patents"
	// SectionMemberships 协会会员章节
	SectionMemberships SectionKind = "memberships"
)

// AllSectionKinds 按固定顺序列出全部17种章节类型。
// 提取编排器以此为扇出清单；顺序只影响日志可读性，不影响结果。
var AllSectionKinds = []SectionKind{
	SectionHero, SectionContact, SectionSummary, SectionExperience,
	SectionEducation, SectionSkills, SectionProjects, SectionCertifications,
	SectionAchievements, SectionVolunteer, SectionLanguages, SectionCourses,
	SectionHobbies, SectionPublications, SectionSpeaking, SectionPatents,
	SectionMemberships,
}

// IsRecognizedKind 判断章节类型是否属于已识别的17种之一
func IsRecognizedKind(kind SectionKind) bool {
	for _, k := range AllSectionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Location 结构化的地点信息。Country 永远不会与 City 或 State 相同，
// 归一化器在冲突时会清空 Country 而不是输出错误值。
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// YearMonth 解析后的年月。月份未知时 Month 为 0。
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// SocialLink 社交/外部链接
type SocialLink struct {
	Label string `json:"label,omitempty"`
	URL   string `json:"url"`
}

// HeroSection 首屏章节
type HeroSection struct {
	Name     string `json:"name,omitempty"`
	Headline string `json:"headline,omitempty"`
	Tagline  string `json:"tagline,omitempty"`
}

// ContactSection 联系方式章节
type ContactSection struct {
	Email    string       `json:"email,omitempty"`
	Phone    string       `json:"phone,omitempty"`
	Location *Location    `json:"location,omitempty"`
	Website  string       `json:"website,omitempty"`
	Links    []SocialLink `json:"links,omitempty"`
}

// ExperienceYears 从自由文本解析出的经验年限，Qualifier 取值:
// exact / more_than / approximately
type ExperienceYears struct {
	Years     int    `json:"years"`
	Qualifier string `json:"qualifier,omitempty"`
}

// SummarySection 个人总结章节
type SummarySection struct {
	Text            string           `json:"text,omitempty"`
	Highlights      []string         `json:"highlights,omitempty"`
	ExperienceYears *ExperienceYears `json:"experience_years,omitempty"`
}

// ExperienceItem 单条工作经历
type ExperienceItem struct {
	Company          string    `json:"company,omitempty"`
	Title            string    `json:"title,omitempty"`
	Location         *Location `json:"location,omitempty"`
	StartDate        string    `json:"start_date,omitempty"`
	EndDate          string    `json:"end_date,omitempty"`
	Responsibilities []string  `json:"responsibilities,omitempty"`
	Technologies     []string  `json:"technologies,omitempty"`
}

// ExperienceSection 工作经历章节。条目保持提取顺序，不保证时间排序。
type ExperienceSection struct {
	Items []ExperienceItem `json:"items"`
}

// EducationItem 单条教育经历
type EducationItem struct {
	Institution string   `json:"institution,omitempty"`
	Degree      string   `json:"degree,omitempty"`
	Field       string   `json:"field,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	GPA         string   `json:"gpa,omitempty"`
	Honors      []string `json:"honors,omitempty"`
}

// EducationSection 教育经历章节。条目保持提取顺序。
type EducationSection struct {
	Items []EducationItem `json:"items"`
}

// SkillGroup 一组归类后的技能
type SkillGroup struct {
	Category string   `json:"category,omitempty"`
	Skills   []string `json:"skills"`
}

// SkillsSection 技能章节
type SkillsSection struct {
	Groups []SkillGroup `json:"groups"`
}

// ProjectItem 单个项目
type ProjectItem struct {
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	URL          string   `json:"url,omitempty"`
	// ViewMode 由URL分类器推导，用于下游模板渲染:
	// github/youtube/vimeo/image/tweet/pdf/video/website
	ViewMode string   `json:"view_mode,omitempty"`
	Outcomes []string `json:"outcomes,omitempty"`
}

// ProjectsSection 项目章节
type ProjectsSection struct {
	Items []ProjectItem `json:"items"`
}

// CertificationItem 单条认证
type CertificationItem struct {
	Name         string `json:"name,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
	IssueDate    string `json:"issue_date,omitempty"`
	ExpiryDate   string `json:"expiry_date,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
}

// CertificationsSection 认证章节
type CertificationsSection struct {
	Items []CertificationItem `json:"items"`
}

// AchievementItem 单条成就。Sources 记录合并去重时贡献过该条目的章节。
type AchievementItem struct {
	Text    string   `json:"text"`
	Context string   `json:"context,omitempty"`
	Date    string   `json:"date,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// AchievementsSection 成就章节
type AchievementsSection struct {
	Items []AchievementItem `json:"items"`
}

// VolunteerItem 单条志愿服务经历
type VolunteerItem struct {
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Description  string `json:"description,omitempty"`
}

// VolunteerSection 志愿服务章节
type VolunteerSection struct {
	Items []VolunteerItem `json:"items"`
}

// LanguageItem 语言及熟练度。Proficiency 保留简历原文，不换算等级。
type LanguageItem struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency,omitempty"`
}

// LanguagesSection 语言章节
type LanguagesSection struct {
	Items []LanguageItem `json:"items"`
}

// CourseItem 单条课程
type CourseItem struct {
	Title          string `json:"title"`
	Provider       string `json:"provider,omitempty"`
	CompletionDate string `json:"completion_date,omitempty"`
}

// CoursesSection 课程章节
type CoursesSection struct {
	Items []CourseItem `json:"items"`
}

// HobbiesSection 兴趣爱好章节
type HobbiesSection struct {
	Items []string `json:"items"`
}

// PublicationItem 单条出版物
type PublicationItem struct {
	Title   string   `json:"title"`
	Venue   string   `json:"venue,omitempty"`
	Date    string   `json:"date,omitempty"`
	URL     string   `json:"url,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

// PublicationsSection 出版物章节
type PublicationsSection struct {
	Items []PublicationItem `json:"items"`
}

// SpeakingItem 单条演讲活动
type SpeakingItem struct {
	Title string `json:"title,omitempty"`
	Event string `json:"event,omitempty"`
	Date  string `json:"date,omitempty"`
	URL   string `json:"url,omitempty"`
}

// SpeakingSection 演讲章节
type SpeakingSection struct {
	Items []SpeakingItem `json:"items"`
}

// PatentItem 单条专利
type PatentItem struct {
	Title  string `json:"title"`
	Number string `json:"number,omitempty"`
	Date   string `json:"date,omitempty"`
	Status string `json:"status,omitempty"`
}

// PatentsSection 专利章节
type PatentsSection struct {
	Items []PatentItem `json:"items"`
}

// MembershipItem 单条协会会员信息
type MembershipItem struct {
	Organization string `json:"organization"`
	Role         string `json:"role,omitempty"`
	Since        string `json:"since,omitempty"`
}

// MembershipsSection 协会会员章节
type MembershipsSection struct {
	Items []MembershipItem `json:"items"`
}

// Document 组装完成的作品集文档。缺失章节一律为 nil，
// 不会出现空占位结构；流水线完成后文档不再被修改。
type Document struct {
	Hero           *HeroSection           `json:"hero,omitempty"`
	Contact        *ContactSection        `json:"contact,omitempty"`
	Summary        *SummarySection        `json:"summary,omitempty"`
	Experience     *ExperienceSection     `json:"experience,omitempty"`
	Education      *EducationSection      `json:"education,omitempty"`
	Skills         *SkillsSection         `json:"skills,omitempty"`
	Projects       *ProjectsSection       `json:"projects,omitempty"`
	Certifications *CertificationsSection `json:"certifications,omitempty"`
	Achievements   *AchievementsSection   `json:"achievements,omitempty"`
	Volunteer      *VolunteerSection      `json:"volunteer,omitempty"`
	Languages      *LanguagesSection      `json:"languages,omitempty"`
	Courses        *CoursesSection        `json:"courses,omitempty"`
	Hobbies        *HobbiesSection        `json:"hobbies,omitempty"`
	Publications   *PublicationsSection   `json:"publications,omitempty"`
	Speaking       *SpeakingSection       `json:"speaking,omitempty"`
	Patents        *PatentsSection        `json:"patents,omitempty"`
	Memberships    *MembershipsSection    `json:"memberships,omitempty"`
}

// SectionCount 返回当前文档中非空章节的数量
func (d *Document) SectionCount() int {
	count := 0
	for _, kind := range AllSectionKinds {
		if d.HasSection(kind) {
			count++
		}
	}
	return count
}

// HasSection 判断指定章节是否存在（nil视为不存在）
func (d *Document) HasSection(kind SectionKind) bool {
	switch kind {
	case SectionHero:
		return d.Hero != nil
	case SectionContact:
		return d.Contact != nil
	case SectionSummary:
		return d.Summary != nil
	case SectionExperience:
		return d.Experience != nil
	case SectionEducation:
		return d.Education != nil
	case SectionSkills:
		return d.Skills != nil
	case SectionProjects:
		return d.Projects != nil
	case SectionCertifications:
		return d.Certifications != nil
	case SectionAchievements:
		return d.Achievements != nil
	case SectionVolunteer:
		return d.Volunteer != nil
	case SectionLanguages:
		return d.Languages != nil
	case SectionCourses:
		return d.Courses != nil
	case SectionHobbies:
		return d.Hobbies != nil
	case SectionPublications:
		return d.Publications != nil
	case SectionSpeaking:
		return d.Speaking != nil
	case SectionPatents:
		return d.Patents != nil
	case SectionMemberships:
		return d.Memberships != nil
	}
	return false
}

// SectionMap 将文档导出为 章节名->载荷 的嵌套键值结构，
// 供模板注入等下游协作方消费。缺失章节不出现在map中。
func (d *Document) SectionMap() map[string]interface{} {
	// 通过JSON序列化往返得到纯map结构，省去逐字段转换
	data, err := json.Marshal(d)
	if err != nil {
		return map[string]interface{}{}
	}
	result := make(map[string]interface{})
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]interface{}{}
	}
	return result
}
