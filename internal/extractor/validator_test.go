package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

func TestValidateSection_EmptyObjectMeansAbsent(t *testing.T) {
	// 空对象是"没有内容"的约定信号，不是错误
	for _, kind := range types.AllSectionKinds {
		section, err := ValidateSection(kind, json.RawMessage(`{}`))
		assert.NoError(t, err, "kind=%s", kind)
		assert.Nil(t, section, "kind=%s", kind)
	}
}

func TestValidateSection_NilPayloadIsError(t *testing.T) {
	_, err := ValidateSection(types.SectionHero, nil)
	require.Error(t, err)
	var schemaErr *SchemaValidationError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestValidateSection_UnknownFieldRejected(t *testing.T) {
	// 多出的未知字段说明模型没有遵循schema，整个章节丢弃
	raw := json.RawMessage(`{"name": "Jane", "unexpected_field": true}`)
	_, err := ValidateSection(types.SectionHero, raw)
	require.Error(t, err)

	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, types.SectionHero, schemaErr.Kind)
}

func TestValidateSection_WrongTypeRejected(t *testing.T) {
	raw := json.RawMessage(`{"items": "should be an array"}`)
	_, err := ValidateSection(types.SectionExperience, raw)
	assert.Error(t, err)
}

func TestValidateSection_Hero(t *testing.T) {
	raw := json.RawMessage(`{"name": "  Jane Doe ", "headline": "Senior Engineer"}`)
	section, err := ValidateSection(types.SectionHero, raw)
	require.NoError(t, err)

	hero, ok := section.(*types.HeroSection)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", hero.Name)
	assert.Equal(t, "Senior Engineer", hero.Headline)
}

func TestValidateSection_ContactLocationReparsed(t *testing.T) {
	// LLM把完整地点串塞进city字段时重新解析
	raw := json.RawMessage(`{"email": "jane@example.com", "location": {"city": "Seattle, WA"}}`)
	section, err := ValidateSection(types.SectionContact, raw)
	require.NoError(t, err)

	contact, ok := section.(*types.ContactSection)
	require.True(t, ok)
	require.NotNil(t, contact.Location)
	assert.Equal(t, "Seattle", contact.Location.City)
	assert.Equal(t, "Washington", contact.Location.State)
	assert.Equal(t, "United States", contact.Location.Country)
}

func TestValidateSection_SummaryParsesYearSpan(t *testing.T) {
	raw := json.RawMessage(`{"text": "Engineer with a decade of experience.", "experience_years_text": "10+ years"}`)
	section, err := ValidateSection(types.SectionSummary, raw)
	require.NoError(t, err)

	summary, ok := section.(*types.SummarySection)
	require.True(t, ok)
	require.NotNil(t, summary.ExperienceYears)
	assert.Equal(t, 10, summary.ExperienceYears.Years)
	assert.Equal(t, "more_than", summary.ExperienceYears.Qualifier)
}

func TestValidateSection_ExperienceNormalization(t *testing.T) {
	raw := json.RawMessage(`{"items": [
		{"company": "Acme", "location": "Austin, TX", "start_date": "2020-01", "end_date": "present",
		 "responsibilities": ["Led the backend engineer team", ""]}
	]}`)
	section, err := ValidateSection(types.SectionExperience, raw)
	require.NoError(t, err)

	exp, ok := section.(*types.ExperienceSection)
	require.True(t, ok)
	require.Len(t, exp.Items, 1)

	item := exp.Items[0]
	// 地点字符串被解析为结构化形式
	require.NotNil(t, item.Location)
	assert.Equal(t, "Austin", item.Location.City)
	assert.Equal(t, "Texas", item.Location.State)
	// 职位缺失时从职责文本补推
	assert.Equal(t, "Backend Engineer", item.Title)
	// 空白职责被剔除
	assert.Equal(t, []string{"Led the backend engineer team"}, item.Responsibilities)
}

func TestValidateSection_ExperienceTitleNeverOverwritten(t *testing.T) {
	raw := json.RawMessage(`{"items": [
		{"company": "Acme", "title": "Janitor", "responsibilities": ["Led the backend engineer team"]}
	]}`)
	section, err := ValidateSection(types.SectionExperience, raw)
	require.NoError(t, err)

	exp := section.(*types.ExperienceSection)
	assert.Equal(t, "Janitor", exp.Items[0].Title)
}

func TestValidateSection_EducationFieldInferred(t *testing.T) {
	raw := json.RawMessage(`{"items": [{"institution": "MIT", "degree": "B.S. in Computer Science"}]}`)
	section, err := ValidateSection(types.SectionEducation, raw)
	require.NoError(t, err)

	edu := section.(*types.EducationSection)
	require.Len(t, edu.Items, 1)
	assert.Equal(t, "Computer Science", edu.Items[0].Field)
}

func TestValidateSection_ProjectViewMode(t *testing.T) {
	raw := json.RawMessage(`{"items": [
		{"name": "cli-tool", "url": "https://github.com/jane/cli-tool"},
		{"name": "demo", "url": "https://example.com/demo.mp4"},
		{"name": "no-url"}
	]}`)
	section, err := ValidateSection(types.SectionProjects, raw)
	require.NoError(t, err)

	projects := section.(*types.ProjectsSection)
	require.Len(t, projects.Items, 3)
	assert.Equal(t, ViewModeGithub, projects.Items[0].ViewMode)
	assert.Equal(t, ViewModeVideo, projects.Items[1].ViewMode)
	assert.Empty(t, projects.Items[2].ViewMode)
}

func TestValidateSection_SpeakingEventInferred(t *testing.T) {
	raw := json.RawMessage(`{"items": [{"title": "Generics in practice at GopherCon 2023"}]}`)
	section, err := ValidateSection(types.SectionSpeaking, raw)
	require.NoError(t, err)

	speaking := section.(*types.SpeakingSection)
	require.Len(t, speaking.Items, 1)
	assert.Equal(t, "GopherCon", speaking.Items[0].Event)
}

func TestValidateSection_EmptyItemsDropped(t *testing.T) {
	// 全部条目为空时章节整体视为不存在
	raw := json.RawMessage(`{"items": [{"language": "  "}, {"language": ""}]}`)
	section, err := ValidateSection(types.SectionLanguages, raw)
	require.NoError(t, err)
	assert.Nil(t, section)
}

func TestAttachSection(t *testing.T) {
	doc := &types.Document{}
	AttachSection(doc, types.SectionHero, &types.HeroSection{Name: "Jane"})
	AttachSection(doc, types.SectionSkills, nil) // nil载荷不挂载

	assert.True(t, doc.HasSection(types.SectionHero))
	assert.False(t, doc.HasSection(types.SectionSkills))
	assert.Equal(t, 1, doc.SectionCount())
}
