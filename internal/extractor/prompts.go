package extractor

import (
	"fmt"
	"strings"

	"portfolio-agent-go/internal/types"
)

// PromptCatalog 负责构建每个章节的提取提示词。
// 结构为"共享契约前言 + 章节专属指令块 + 目标JSON schema"：
// 前言约定提取纪律（只提取明示内容、保留原文、宁null勿猜、只输出JSON），
// 专属块约定该章节的收录范围与跨章节排除规则——
// 同一个字段（如 "Python"）往往可归入多个章节，排除规则是防止下游重复的机制。
type PromptCatalog struct {
	preamble string
}

// NewPromptCatalog 创建提示词目录
func NewPromptCatalog() *PromptCatalog {
	return &PromptCatalog{preamble: sharedPreamble}
}

// BuildPrompt 为指定章节构建完整的 system prompt。
// 简历原文通过 user message 单独传递，不拼进 system prompt。
func (p *PromptCatalog) BuildPrompt(kind types.SectionKind) string {
	block, ok := sectionInstructions[kind]
	if !ok {
		// 注册表与指令表不同步属于编程错误，返回仅含前言的提示词兜底
		return p.preamble
	}
	schema := sectionSchemas[kind]

	var sb strings.Builder
	sb.WriteString(p.preamble)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("SECTION: %s\n\n", kind))
	sb.WriteString(block)
	sb.WriteString("\n\nOutput JSON schema (follow the exact field names and types):\n")
	sb.WriteString(schema)
	sb.WriteString("\n\nThe resume text follows in the next message. Analyze it now.")
	return sb.String()
}

// 共享契约前言。全部章节共用，对应提取纪律 (a)-(d)。
const sharedPreamble = `You are a resume section extractor. You will receive the full plain text of one resume and must extract exactly ONE section of it as structured JSON.

Strict rules, in priority order:
1. Extract ONLY content explicitly present in the resume text. Never infer, summarize, translate, or embellish. If the resume does not state it, it does not exist.
2. Preserve original wording, casing, punctuation and Unicode verbatim. Do not normalize spellings, do not convert units or scales.
3. When a value is ambiguous or missing, emit null (or omit the field). Never guess.
4. Output exactly one JSON object matching the schema below — no prose, no markdown fences, no explanations. If the resume contains nothing for this section, output an empty JSON object: {}`

// 各章节的专属指令块：收录范围、跨章节排除、字段提示
var sectionInstructions = map[types.SectionKind]string{
	types.SectionHero: `Extract the candidate's display identity: full name, professional headline (their current title or self-description, e.g. "Senior Backend Engineer"), and an optional short tagline if the resume opens with one.
Exclusions: do NOT place contact details (email/phone/links) here — those belong to the contact section. Do not invent a headline from job history; only use one the resume states about the person directly.`,

	types.SectionContact: `Extract contact channels: email, phone, location, personal website, and labeled links (GitHub, LinkedIn, portfolio, etc.).
Field hints: keep phone numbers exactly as written, including formatting. For location, copy the raw location string into the city field if no structure is apparent; downstream normalization will split it.
Exclusions: project-specific URLs belong to the projects section, publication URLs to publications.`,

	types.SectionSummary: `Extract the professional summary / objective / "about me" paragraph if present, plus any explicit bullet highlights attached to it, and any explicitly stated total years of experience as raw text (e.g. "10+ years").
Exclusions: do not assemble a summary from other sections — only an actual summary paragraph qualifies. Company-specific accomplishments belong to experience.`,

	types.SectionExperience: `Extract employment history: one item per position held. Capture company, title, location, start/end dates as raw strings exactly as written (e.g. "Jan 2020", "2020-03", "Present"), responsibility bullet points verbatim, and technologies ONLY when the resume explicitly lists them for that position.
Exclusions: internships labeled as education coursework belong to education; volunteer roles belong to volunteer; freelance projects without an employer belong to projects.
Order items as they appear in the resume.`,

	types.SectionEducation: `Extract formal education: one item per degree or study period. Capture institution, degree name verbatim, field of study, start/end dates as raw strings, GPA if stated, honors if stated.
Exclusions: professional certifications (e.g. "AWS Certified", "PMP") are NOT education even when listed under an education heading — skip them here; they belong to certifications. Online course completions belong to courses.
Order items as they appear in the resume.`,

	types.SectionSkills: `Extract technical and professional skills, grouped by the resume's own categories when present (e.g. "Languages: Go, Python" / "Tools: Docker"). If uncategorized, emit a single group with an empty category.
Exclusions: spoken/written human languages (English, Mandarin...) belong to the languages section, NOT here. Certification titles are not skills. Do not add skills that only appear inside job descriptions unless the resume has a dedicated skills list.`,

	types.SectionProjects: `Extract personal or professional projects the resume presents as distinct projects. Capture name, description verbatim, technologies listed for the project, a project URL if given, and explicit outcome statements (metrics, results).
Exclusions: regular job duties belong to experience. Publications with venues belong to publications.`,

	types.SectionCertifications: `Extract professional certifications and licenses: name verbatim, issuing organization, issue/expiry dates as raw strings, credential ID if stated.
Inclusions: industry certifications (AWS/GCP/Azure certs, PMP, CISSP, Scrum certifications, language proficiency certificates with issuing bodies).
Exclusions: generic online course completions without a certifying body belong to courses. Degrees belong to education.`,

	types.SectionAchievements: `Extract standalone achievements, awards, honors and recognitions: the achievement text verbatim, surrounding context (who awarded it, where), and the date as a raw string if given.
Exclusions: routine job responsibilities are not achievements. GPA/honors attached to a degree belong to education.`,

	types.SectionVolunteer: `Extract volunteer and community service engagements: organization, role, start/end dates as raw strings, description verbatim.
Exclusions: paid positions belong to experience even at nonprofits, if the resume presents them as employment.`,

	types.SectionLanguages: `Extract spoken/written human languages with proficiency labels.
Field hints: preserve the proficiency label VERBATIM ("native", "C1", "fluent", "conversational", "HSK 5"...). Never convert between scales, never rank.
Exclusions: programming languages belong to skills.`,

	types.SectionCourses: `Extract courses and trainings completed: title verbatim, provider (platform or institution), completion date as a raw string.
Exclusions: certified credentials with an issuing body belong to certifications. Degree programs belong to education.`,

	types.SectionHobbies: `Extract hobbies and personal interests as the resume lists them, verbatim, one string per item.
Exclusions: professional activities (open source, speaking) belong to their own sections when presented professionally.`,

	types.SectionPublications: `Extract publications: title verbatim, venue (journal/conference/blog), date as a raw string, URL, author list if given.
Exclusions: conference talks without a written artifact belong to speaking.`,

	types.SectionSpeaking: `Extract speaking engagements: talk title, event name, date as a raw string, URL to slides/recording if given.
Exclusions: written articles belong to publications. Internal company presentations only count if the resume explicitly lists them as engagements.`,

	types.SectionPatents: `Extract patents: title verbatim, patent number if stated, date as a raw string, status (granted/pending) only if explicitly stated.`,

	types.SectionMemberships: `Extract professional memberships and affiliations: organization, role held if any, membership start as a raw string.
Exclusions: employment belongs to experience; one-off conference attendance is not a membership.`,
}

// 各章节的目标JSON schema（提示词内嵌文本）
var sectionSchemas = map[types.SectionKind]string{
	types.SectionHero: `{
  "name": "string|null",
  "headline": "string|null",
  "tagline": "string|null"
}`,
	types.SectionContact: `{
  "email": "string|null",
  "phone": "string|null",
  "location": {"city": "string|null", "state": "string|null", "country": "string|null"},
  "website": "string|null",
  "links": [{"label": "string|null", "url": "string"}]
}`,
	types.SectionSummary: `{
  "text": "string|null",
  "highlights": ["string"],
  "experience_years_text": "string|null"
}`,
	types.SectionExperience: `{
  "items": [{
    "company": "string|null",
    "title": "string|null",
    "location": "string|null",
    "start_date": "string|null",
    "end_date": "string|null",
    "responsibilities": ["string"],
    "technologies": ["string"]
  }]
}`,
	types.SectionEducation: `{
  "items": [{
    "institution": "string|null",
    "degree": "string|null",
    "field": "string|null",
    "start_date": "string|null",
    "end_date": "string|null",
    "gpa": "string|null",
    "honors": ["string"]
  }]
}`,
	types.SectionSkills: `{
  "groups": [{"category": "string|null", "skills": ["string"]}]
}`,
	types.SectionProjects: `{
  "items": [{
    "name": "string|null",
    "description": "string|null",
    "technologies": ["string"],
    "url": "string|null",
    "outcomes": ["string"]
  }]
}`,
	types.SectionCertifications: `{
  "items": [{
    "name": "string",
    "issuer": "string|null",
    "issue_date": "string|null",
    "expiry_date": "string|null",
    "credential_id": "string|null"
  }]
}`,
	types.SectionAchievements: `{
  "items": [{"text": "string", "context": "string|null", "date": "string|null"}]
}`,
	types.SectionVolunteer: `{
  "items": [{
    "organization": "string|null",
    "role": "string|null",
    "start_date": "string|null",
    "end_date": "string|null",
    "description": "string|null"
  }]
}`,
	types.SectionLanguages: `{
  "items": [{"language": "string", "proficiency": "string|null"}]
}`,
	types.SectionCourses: `{
  "items": [{"title": "string", "provider": "string|null", "completion_date": "string|null"}]
}`,
	types.SectionHobbies: `{
  "items": ["string"]
}`,
	types.SectionPublications: `{
  "items": [{"title": "string", "venue": "string|null", "date": "string|null", "url": "string|null", "authors": ["string"]}]
}`,
	types.SectionSpeaking: `{
  "items": [{"title": "string|null", "event": "string|null", "date": "string|null", "url": "string|null"}]
}`,
	types.SectionPatents: `{
  "items": [{"title": "string", "number": "string|null", "date": "string|null", "status": "string|null"}]
}`,
	types.SectionMemberships: `{
  "items": [{"organization": "string", "role": "string|null", "since": "string|null"}]
}`,
}
