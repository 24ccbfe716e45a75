package extractor

import (
	"encoding/json"

	"portfolio-agent-go/internal/types"
)

// sectionHandler 单个章节类型的处理入口。
// decode 负责严格解码+归一化，assign 负责把结果挂到文档上。
// 新增章节类型时只需在此注册，其余流水线不感知具体类型。
type sectionHandler struct {
	decode func(raw json.RawMessage) (interface{}, error)
	assign func(doc *types.Document, section interface{})
}

var sectionRegistry = map[types.SectionKind]sectionHandler{
	types.SectionHero: {
		decode: decodeHero,
		assign: func(doc *types.Document, s interface{}) { doc.Hero = s.(*types.HeroSection) },
	},
	types.SectionContact: {
		decode: decodeContact,
		assign: func(doc *types.Document, s interface{}) { doc.Contact = s.(*types.ContactSection) },
	},
	types.SectionSummary: {
		decode: decodeSummary,
		assign: func(doc *types.Document, s interface{}) { doc.Summary = s.(*types.SummarySection) },
	},
	types.SectionExperience: {
		decode: decodeExperience,
		assign: func(doc *types.Document, s interface{}) { doc.Experience = s.(*types.ExperienceSection) },
	},
	types.SectionEducation: {
		decode: decodeEducation,
		assign: func(doc *types.Document, s interface{}) { doc.Education = s.(*types.EducationSection) },
	},
	types.SectionSkills: {
		decode: decodeSkills,
		assign: func(doc *types.Document, s interface{}) { doc.Skills = s.(*types.SkillsSection) },
	},
	types.SectionProjects: {
		decode: decodeProjects,
		assign: func(doc *types.Document, s interface{}) { doc.Projects = s.(*types.ProjectsSection) },
	},
	types.SectionCertifications: {
		decode: decodeCertifications,
		assign: func(doc *types.Document, s interface{}) { doc.Certifications = s.(*types.CertificationsSection) },
	},
	types.SectionAchievements: {
		decode: decodeAchievements,
		assign: func(doc *types.Document, s interface{}) { doc.Achievements = s.(*types.AchievementsSection) },
	},
	types.SectionVolunteer: {
		decode: decodeVolunteer,
		assign: func(doc *types.Document, s interface{}) { doc.Volunteer = s.(*types.VolunteerSection) },
	},
	types.SectionLanguages: {
		decode: decodeLanguages,
		assign: func(doc *types.Document, s interface{}) { doc.Languages = s.(*types.LanguagesSection) },
	},
	types.SectionCourses: {
		decode: decodeCourses,
		assign: func(doc *types.Document, s interface{}) { doc.Courses = s.(*types.CoursesSection) },
	},
	types.SectionHobbies: {
		decode: decodeHobbies,
		assign: func(doc *types.Document, s interface{}) { doc.Hobbies = s.(*types.HobbiesSection) },
	},
	types.SectionPublications: {
		decode: decodePublications,
		assign: func(doc *types.Document, s interface{}) { doc.Publications = s.(*types.PublicationsSection) },
	},
	types.SectionSpeaking: {
		decode: decodeSpeaking,
		assign: func(doc *types.Document, s interface{}) { doc.Speaking = s.(*types.SpeakingSection) },
	},
	types.SectionPatents: {
		decode: decodePatents,
		assign: func(doc *types.Document, s interface{}) { doc.Patents = s.(*types.PatentsSection) },
	},
	types.SectionMemberships: {
		decode: decodeMemberships,
		assign: func(doc *types.Document, s interface{}) { doc.Memberships = s.(*types.MembershipsSection) },
	},
}

// AttachSection 把已校验的章节挂到文档上。section 为 nil 时不做任何事。
func AttachSection(doc *types.Document, kind types.SectionKind, section interface{}) {
	if section == nil {
		return
	}
	if handler, ok := sectionRegistry[kind]; ok {
		handler.assign(doc, section)
	}
}
