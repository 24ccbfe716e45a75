package extractor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

func newTestPostProcessor() *PostProcessor {
	return NewPostProcessor(DefaultPostProcessorConfig(), zerolog.Nop())
}

func TestDedupCertificationsAndCourses(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Certifications: &types.CertificationsSection{Items: []types.CertificationItem{
			{Name: "AWS Certified Solutions Architect", Issuer: "Amazon"},
			{Name: "aws certified solutions architect"}, // 章节内重复
		}},
		Courses: &types.CoursesSection{Items: []types.CourseItem{
			{Title: "AWS Certified Solutions Architect"}, // 与认证同名，应移除
			{Title: "Distributed Systems", Provider: "MIT OCW"},
			{Title: "distributed systems"}, // 章节内重复
		}},
	}

	issues := pp.DedupCertificationsAndCourses(doc)

	// 认证优先，同名课程被移除
	require.Len(t, doc.Certifications.Items, 1)
	require.Len(t, doc.Courses.Items, 1)
	assert.Equal(t, "Distributed Systems", doc.Courses.Items[0].Title)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueDuplicateMerged, issues[0].Kind)
}

// 去重必须幂等：跑两遍与跑一遍结果一致
func TestDedupCertificationsAndCourses_Idempotent(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Certifications: &types.CertificationsSection{Items: []types.CertificationItem{
			{Name: "CKA"},
		}},
		Courses: &types.CoursesSection{Items: []types.CourseItem{
			{Title: "CKA"},
			{Title: "Kubernetes Basics"},
		}},
	}

	pp.DedupCertificationsAndCourses(doc)
	afterFirstCerts := append([]types.CertificationItem{}, doc.Certifications.Items...)
	afterFirstCourses := append([]types.CourseItem{}, doc.Courses.Items...)

	secondIssues := pp.DedupCertificationsAndCourses(doc)

	assert.Equal(t, afterFirstCerts, doc.Certifications.Items)
	assert.Equal(t, afterFirstCourses, doc.Courses.Items)
	assert.Empty(t, secondIssues, "第二遍不应再report任何移除")
}

func TestMergeNearDuplicateAchievements(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Achievements: &types.AchievementsSection{Items: []types.AchievementItem{
			{Text: "Increased revenue by 40% through new pricing", Sources: []string{"achievements"}},
			{Text: "increased revenue by 40% through new pricing strategy", Sources: []string{"achievements"}},
			{Text: "Won the 2022 internal hackathon", Sources: []string{"achievements"}},
		}},
	}

	issues := pp.MergeNearDuplicateAchievements(doc)

	// 近似重复合并为一条，保留更长的文本
	require.Len(t, doc.Achievements.Items, 2)
	assert.Equal(t, "increased revenue by 40% through new pricing strategy", doc.Achievements.Items[0].Text)
	assert.Equal(t, "Won the 2022 internal hackathon", doc.Achievements.Items[1].Text)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueDuplicateMerged, issues[0].Kind)
}

func TestMergeNearDuplicateAchievements_CrossSectionSources(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Achievements: &types.AchievementsSection{Items: []types.AchievementItem{
			{Text: "Reduced deploy time by 80% with a new CI pipeline", Sources: []string{"achievements"}},
		}},
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", Responsibilities: []string{
				"Reduced deploy time by 80% with new CI pipeline",
			}},
		}},
	}

	pp.MergeNearDuplicateAchievements(doc)

	// 成就条目的来源记录了贡献章节
	require.Len(t, doc.Achievements.Items, 1)
	assert.Contains(t, doc.Achievements.Items[0].Sources, "achievements")
	assert.Contains(t, doc.Achievements.Items[0].Sources, "experience")
	// 工作经历中的原始职责保持不动
	assert.Len(t, doc.Experience.Items[0].Responsibilities, 1)
}

func TestMergeNearDuplicateAchievements_DistinctKept(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Achievements: &types.AchievementsSection{Items: []types.AchievementItem{
			{Text: "Increased revenue by 40%"},
			{Text: "Hired and mentored six junior engineers"},
		}},
	}

	issues := pp.MergeNearDuplicateAchievements(doc)
	assert.Len(t, doc.Achievements.Items, 2)
	assert.Empty(t, issues)
}

func TestValidateDates_ExperienceOverlap(t *testing.T) {
	fixedNow(t, 2025, time.June)
	pp := newTestPostProcessor()
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", StartDate: "2020-01", EndDate: "2020-12"},
			{Company: "Beta", StartDate: "2020-06", EndDate: "present"},
		}},
	}

	issues := pp.ValidateDates(doc)

	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueDateOverlap, issues[0].Kind)
	assert.Equal(t, types.SeverityWarning, issues[0].Severity)
	assert.ElementsMatch(t, []string{"Acme", "Beta"}, issues[0].AffectedItems)
}

func TestValidateDates_AdjacentNoOverlap(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", StartDate: "2020-01", EndDate: "2020-12"},
			{Company: "Beta", StartDate: "2021-01", EndDate: "2021-12"},
		}},
	}

	assert.Empty(t, pp.ValidateDates(doc))
}

func TestValidateDates_EndBeforeStart(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", StartDate: "2022-06", EndDate: "2020-01"},
		}},
	}

	issues := pp.ValidateDates(doc)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueInvalidDateRange, issues[0].Kind)
	assert.Equal(t, types.SeverityError, issues[0].Severity)
}

// 起止同日的"学位"更可能是认证：标记single_day_degree并迁移到认证章节
func TestValidateDates_SingleDayDegreeMovedToCertifications(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Education: &types.EducationSection{Items: []types.EducationItem{
			{Institution: "MIT", Degree: "Certified Scrum Master", StartDate: "2015-03-01", EndDate: "2015-03-01"},
			{Institution: "Stanford", Degree: "B.S. in Computer Science", StartDate: "2010", EndDate: "2014"},
		}},
	}

	issues := pp.ValidateDates(doc)

	kinds := issueKinds(issues)
	assert.Contains(t, kinds, types.IssueSingleDayDegree)
	assert.Contains(t, kinds, types.IssueMisclassifiedCertification)

	// 误分类条目被迁移，正常学位保留
	require.Len(t, doc.Education.Items, 1)
	assert.Equal(t, "Stanford", doc.Education.Items[0].Institution)
	require.NotNil(t, doc.Certifications)
	require.Len(t, doc.Certifications.Items, 1)
	assert.Equal(t, "Certified Scrum Master", doc.Certifications.Items[0].Name)
	assert.Equal(t, "MIT", doc.Certifications.Items[0].Issuer)
	assert.Equal(t, "2015-03-01", doc.Certifications.Items[0].IssueDate)
}

func issueKinds(issues []types.ValidationIssue) []types.IssueKind {
	kinds := make([]types.IssueKind, len(issues))
	for i, issue := range issues {
		kinds[i] = issue.Kind
	}
	return kinds
}

const hallucinationSource = `Jane Doe
Senior Engineer at Acme Corp
Led migration of the billing system to Go, reducing infrastructure costs by 30%.
Built the internal deployment pipeline used by 12 teams.`

// 低重合度 + 营销短语 = 最强的捏造信号，字段内容被清空
func TestFilterHallucinations_MarketingPhraseCleared(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Projects: &types.ProjectsSection{Items: []types.ProjectItem{
			{Name: "pipeline", Description: "Delivered world-class leadership of transformative enterprise initiatives"},
		}},
	}

	issues := pp.FilterHallucinations(doc, hallucinationSource)

	assert.Empty(t, doc.Projects.Items[0].Description)
	require.NotEmpty(t, issues)
	assert.Equal(t, types.IssueHallucination, issues[0].Kind)
	assert.Equal(t, types.SeverityError, issues[0].Severity)
}

// 近乎原文引用的字段必须原样保留
func TestFilterHallucinations_VerbatimQuotePreserved(t *testing.T) {
	pp := newTestPostProcessor()
	text := "Led migration of the billing system to Go, reducing infrastructure costs by 30%."
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", Responsibilities: []string{text}},
		}},
	}

	issues := pp.FilterHallucinations(doc, hallucinationSource)

	require.Len(t, doc.Experience.Items[0].Responsibilities, 1)
	assert.Equal(t, text, doc.Experience.Items[0].Responsibilities[0])
	assert.Empty(t, issues)
}

// 低重合度但无营销短语：只标记，不清除
func TestFilterHallucinations_LowOverlapOnlyFlagged(t *testing.T) {
	pp := newTestPostProcessor()
	text := "Orchestrated quarterly stakeholder alignment ceremonies across divisions"
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", Responsibilities: []string{text}},
		}},
	}

	issues := pp.FilterHallucinations(doc, hallucinationSource)

	require.Len(t, doc.Experience.Items[0].Responsibilities, 1)
	require.Len(t, issues, 1)
	assert.Equal(t, types.SeverityWarning, issues[0].Severity)
}

func TestFilterHallucinations_ShortFieldExactSubstring(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Summary: &types.SummarySection{Highlights: []string{"Go", "Cobol"}},
	}

	issues := pp.FilterHallucinations(doc, hallucinationSource)

	// "go"在原文中出现，保留；"cobol"没有，标记
	assert.Contains(t, doc.Summary.Highlights, "Go")
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueHallucination, issues[0].Kind)
}

// 原文中不存在的技术名称被标记为可疑，但条目本身保留
func TestFilterHallucinations_UngroundedTechnologyFlagged(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{
		Experience: &types.ExperienceSection{Items: []types.ExperienceItem{
			{Company: "Acme", Technologies: []string{"Go", "Kubernetes"}},
		}},
		Projects: &types.ProjectsSection{Items: []types.ProjectItem{
			{Name: "pipeline", Technologies: []string{"Terraform"}},
		}},
	}

	issues := pp.FilterHallucinations(doc, hallucinationSource)

	// "go"在原文中出现；"kubernetes"和"terraform"没有
	assert.Equal(t, []string{"Go", "Kubernetes"}, doc.Experience.Items[0].Technologies)
	assert.Equal(t, []string{"Terraform"}, doc.Projects.Items[0].Technologies)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, types.IssueSuspiciousTechnology, issue.Kind)
		assert.Equal(t, types.SeverityWarning, issue.Severity)
	}
	assert.Equal(t, []string{"experience[Acme].technologies"}, issues[0].AffectedItems)
	assert.Equal(t, []string{"projects[pipeline].technologies"}, issues[1].AffectedItems)
}

func TestConfidenceScore(t *testing.T) {
	pp := newTestPostProcessor()

	full := &types.Document{
		Hero:    &types.HeroSection{Name: "Jane Doe", Headline: "Senior Engineer"},
		Summary: &types.SummarySection{Text: "Led migration of the billing system to Go."},
	}
	empty := &types.Document{}

	scoreFull := pp.ConfidenceScore(full, hallucinationSource, nil)
	scoreEmpty := pp.ConfidenceScore(empty, hallucinationSource, nil)

	assert.Greater(t, scoreFull, scoreEmpty)
	assert.GreaterOrEqual(t, scoreFull, 0.0)
	assert.LessOrEqual(t, scoreFull, 1.0)
}

func TestConfidenceScore_IssuesLowerQuality(t *testing.T) {
	pp := newTestPostProcessor()
	doc := &types.Document{Hero: &types.HeroSection{Name: "Jane"}}

	many := make([]types.ValidationIssue, 12)
	clean := pp.ConfidenceScore(doc, hallucinationSource, nil)
	noisy := pp.ConfidenceScore(doc, hallucinationSource, many)

	assert.Greater(t, clean, noisy)
}

func TestProcess_FullPipelineScenario(t *testing.T) {
	pp := newTestPostProcessor()
	source := "John Doe\nSenior Engineer\njohn@x.com\nExperience 2018-2023\nEducation: MIT, Certified Scrum Master, 2015-03-01 to 2015-03-01"
	doc := &types.Document{
		Education: &types.EducationSection{Items: []types.EducationItem{
			{Institution: "MIT", Degree: "Certified Scrum Master", StartDate: "2015-03-01", EndDate: "2015-03-01"},
		}},
	}

	issues := pp.Process(doc, source)
	finalDoc := NewAssembler(zerolog.Nop()).Finalize(doc)

	kinds := issueKinds(issues)
	assert.Contains(t, kinds, types.IssueSingleDayDegree)
	assert.Contains(t, kinds, types.IssueMisclassifiedCertification)

	// 教育章节被掏空后从最终文档剪除，认证章节接收迁移条目
	assert.False(t, finalDoc.HasSection(types.SectionEducation))
	require.True(t, finalDoc.HasSection(types.SectionCertifications))
	assert.Equal(t, "Certified Scrum Master", finalDoc.Certifications.Items[0].Name)
}
