package portfolio

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

func TestGeneratorRender(t *testing.T) {
	gen := NewGenerator(zerolog.Nop())

	doc := &types.Document{
		Hero: &types.HeroSection{
			Name:     "张三",
			Headline: "高级后端工程师",
		},
		Summary: &types.SummarySection{
			Text: "十年分布式系统经验",
		},
		Skills: &types.SkillsSection{
			Groups: []types.SkillGroup{
				{Category: "语言", Skills: []string{"Go", "Python"}},
			},
		},
	}

	page, err := gen.Render(doc)
	require.NoError(t, err)

	html := string(page)
	// 标题来自hero的姓名
	assert.Contains(t, html, "<title>张三</title>")
	// 章节数据以JSON注入页面
	assert.Contains(t, html, `"headline":"高级后端工程师"`)
	assert.Contains(t, html, `"text":"十年分布式系统经验"`)
	// 占位符全部被替换
	assert.NotContains(t, html, placeholderTitle)
	assert.NotContains(t, html, placeholderData)
}

func TestGeneratorRenderNilDocument(t *testing.T) {
	gen := NewGenerator(zerolog.Nop())
	_, err := gen.Render(nil)
	assert.Error(t, err)
}

func TestGeneratorRenderDefaultTitle(t *testing.T) {
	gen := NewGenerator(zerolog.Nop())

	// 没有hero章节时使用默认标题
	page, err := gen.Render(&types.Document{
		Summary: &types.SummarySection{Text: "简介"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>作品集</title>")
}

func TestGeneratorRenderEscapesScriptClose(t *testing.T) {
	gen := NewGenerator(zerolog.Nop())

	// 文档内容包含</script>时不能破坏页面结构
	doc := &types.Document{
		Projects: &types.ProjectsSection{
			Items: []types.ProjectItem{
				{Name: "xss", Description: "</script><script>alert(1)</script>"},
			},
		},
	}
	page, err := gen.Render(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(page), `"description":"</script>`)
	assert.Contains(t, string(page), `<\/script>`)
}

func TestGeneratorWithCustomTemplate(t *testing.T) {
	tpl := "title={{PORTFOLIO_TITLE}} data={{PORTFOLIO_DATA}}"
	gen := NewGenerator(zerolog.Nop(), WithTemplate(tpl))

	page, err := gen.Render(&types.Document{
		Hero: &types.HeroSection{Name: "李四"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(page), "title=李四 data={"))
}
