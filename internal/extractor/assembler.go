package extractor

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
)

// Assembler 最终定稿阶段：裁剪后处理中被掏空的章节，
// 并做一次结构自检。自检失败时退化为只保留能独立序列化的章节，
// 只要还有任何可用数据就绝不返回整体失败。
type Assembler struct {
	logger zerolog.Logger
}

// NewAssembler 创建装配器
func NewAssembler(logger zerolog.Logger) *Assembler {
	return &Assembler{logger: logger.With().Str("component", "assembler").Logger()}
}

// Finalize 返回定稿后的文档。传入文档不再被引用，可安全复用。
func (a *Assembler) Finalize(doc *types.Document) *types.Document {
	pruneEmptySections(doc)

	if _, err := json.Marshal(doc); err == nil {
		return doc
	}

	// 整体序列化失败时逐章节降级，保留能独立序列化的部分
	a.logger.Error().Msg("文档整体自检失败，降级为逐章节保留")
	fallback := &types.Document{}
	for _, kind := range types.AllSectionKinds {
		section := sectionOf(doc, kind)
		if section == nil {
			continue
		}
		if _, err := json.Marshal(section); err != nil {
			a.logger.Warn().Str("section", string(kind)).Err(err).Msg("章节自检失败，丢弃")
			continue
		}
		AttachSection(fallback, kind, section)
	}
	return fallback
}

// pruneEmptySections 把后处理后变空的章节置为nil。
// 缺失章节必须表现为"不存在"，不允许空占位结构。
func pruneEmptySections(doc *types.Document) {
	if doc.Hero != nil && doc.Hero.Name == "" && doc.Hero.Headline == "" && doc.Hero.Tagline == "" {
		doc.Hero = nil
	}
	if doc.Contact != nil {
		c := doc.Contact
		if c.Email == "" && c.Phone == "" && c.Website == "" && c.Location == nil && len(c.Links) == 0 {
			doc.Contact = nil
		}
	}
	if doc.Summary != nil && doc.Summary.Text == "" && len(doc.Summary.Highlights) == 0 && doc.Summary.ExperienceYears == nil {
		doc.Summary = nil
	}
	if doc.Experience != nil && len(doc.Experience.Items) == 0 {
		doc.Experience = nil
	}
	if doc.Education != nil && len(doc.Education.Items) == 0 {
		doc.Education = nil
	}
	if doc.Skills != nil && len(doc.Skills.Groups) == 0 {
		doc.Skills = nil
	}
	if doc.Projects != nil && len(doc.Projects.Items) == 0 {
		doc.Projects = nil
	}
	if doc.Certifications != nil && len(doc.Certifications.Items) == 0 {
		doc.Certifications = nil
	}
	if doc.Achievements != nil && len(doc.Achievements.Items) == 0 {
		doc.Achievements = nil
	}
	if doc.Volunteer != nil && len(doc.Volunteer.Items) == 0 {
		doc.Volunteer = nil
	}
	if doc.Languages != nil && len(doc.Languages.Items) == 0 {
		doc.Languages = nil
	}
	if doc.Courses != nil && len(doc.Courses.Items) == 0 {
		doc.Courses = nil
	}
	if doc.Hobbies != nil && len(doc.Hobbies.Items) == 0 {
		doc.Hobbies = nil
	}
	if doc.Publications != nil && len(doc.Publications.Items) == 0 {
		doc.Publications = nil
	}
	if doc.Speaking != nil && len(doc.Speaking.Items) == 0 {
		doc.Speaking = nil
	}
	if doc.Patents != nil && len(doc.Patents.Items) == 0 {
		doc.Patents = nil
	}
	if doc.Memberships != nil && len(doc.Memberships.Items) == 0 {
		doc.Memberships = nil
	}
}

// sectionOf 取出指定章节的载荷指针，不存在时返回nil
func sectionOf(doc *types.Document, kind types.SectionKind) interface{} {
	switch kind {
	case types.SectionHero:
		if doc.Hero != nil {
			return doc.Hero
		}
	case types.SectionContact:
		if doc.Contact != nil {
			return doc.Contact
		}
	case types.SectionSummary:
		if doc.Summary != nil {
			return doc.Summary
		}
	case types.SectionExperience:
		if doc.Experience != nil {
			return doc.Experience
		}
	case types.SectionEducation:
		if doc.Education != nil {
			return doc.Education
		}
	case types.SectionSkills:
		if doc.Skills != nil {
			return doc.Skills
		}
	case types.SectionProjects:
		if doc.Projects != nil {
			return doc.Projects
		}
	case types.SectionCertifications:
		if doc.Certifications != nil {
			return doc.Certifications
		}
	case types.SectionAchievements:
		if doc.Achievements != nil {
			return doc.Achievements
		}
	case types.SectionVolunteer:
		if doc.Volunteer != nil {
			return doc.Volunteer
		}
	case types.SectionLanguages:
		if doc.Languages != nil {
			return doc.Languages
		}
	case types.SectionCourses:
		if doc.Courses != nil {
			return doc.Courses
		}
	case types.SectionHobbies:
		if doc.Hobbies != nil {
			return doc.Hobbies
		}
	case types.SectionPublications:
		if doc.Publications != nil {
			return doc.Publications
		}
	case types.SectionSpeaking:
		if doc.Speaking != nil {
			return doc.Speaking
		}
	case types.SectionPatents:
		if doc.Patents != nil {
			return doc.Patents
		}
	case types.SectionMemberships:
		if doc.Memberships != nil {
			return doc.Memberships
		}
	}
	return nil
}
