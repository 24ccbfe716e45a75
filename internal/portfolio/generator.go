package portfolio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
)

// 占位符约定：模板中出现的标记会被生成器原样替换
const (
	placeholderTitle = "{{PORTFOLIO_TITLE}}"
	placeholderData  = "{{PORTFOLIO_DATA}}"
)

// defaultTemplate 内置的单页作品集模板。
// 结构化文档以JSON形式注入页面，渲染逻辑全部在前端脚本里，
// 生成器只负责字符串替换，保持足够薄。
const defaultTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{PORTFOLIO_TITLE}}</title>
<style>
body { font-family: -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; margin: 0; color: #1f2430; }
main { max-width: 860px; margin: 0 auto; padding: 2rem 1.25rem; }
section { margin-bottom: 2rem; }
h1 { font-size: 2rem; margin-bottom: 0.25rem; }
h2 { font-size: 1.2rem; border-bottom: 1px solid #e3e6ec; padding-bottom: 0.3rem; }
.tagline { color: #5b6472; }
ul { padding-left: 1.2rem; }
</style>
</head>
<body>
<main id="app"></main>
<script>
var PORTFOLIO_DATA = {{PORTFOLIO_DATA}};
(function () {
  var app = document.getElementById("app");
  function el(tag, text) {
    var node = document.createElement(tag);
    if (text) { node.textContent = text; }
    return node;
  }
  function addSection(title, build) {
    var sec = el("section");
    if (title) { sec.appendChild(el("h2", title)); }
    build(sec);
    app.appendChild(sec);
  }
  var hero = PORTFOLIO_DATA.hero || {};
  var head = el("section");
  head.appendChild(el("h1", hero.name || ""));
  if (hero.headline) { head.appendChild(el("p", hero.headline)); }
  if (hero.tagline) { var t = el("p", hero.tagline); t.className = "tagline"; head.appendChild(t); }
  app.appendChild(head);
  if (PORTFOLIO_DATA.summary && PORTFOLIO_DATA.summary.text) {
    addSection("简介", function (sec) { sec.appendChild(el("p", PORTFOLIO_DATA.summary.text)); });
  }
  function addItemList(key, title, format) {
    var section = PORTFOLIO_DATA[key];
    if (!section || !section.items || !section.items.length) { return; }
    addSection(title, function (sec) {
      var list = el("ul");
      section.items.forEach(function (item) { list.appendChild(el("li", format(item))); });
      sec.appendChild(list);
    });
  }
  addItemList("experience", "工作经历", function (i) {
    return [i.title, i.company, [i.start_date, i.end_date].filter(Boolean).join(" - ")].filter(Boolean).join(" · ");
  });
  addItemList("projects", "项目", function (i) {
    return [i.name, i.description].filter(Boolean).join(" — ");
  });
  addItemList("education", "教育经历", function (i) {
    return [i.institution, i.degree, i.field].filter(Boolean).join(" · ");
  });
  addItemList("certifications", "认证", function (i) {
    return [i.name, i.issuer].filter(Boolean).join(" · ");
  });
  addItemList("achievements", "成就", function (i) { return i.text; });
  addItemList("languages", "语言", function (i) {
    return [i.language, i.proficiency].filter(Boolean).join(" · ");
  });
  if (PORTFOLIO_DATA.skills && PORTFOLIO_DATA.skills.groups) {
    addSection("技能", function (sec) {
      var list = el("ul");
      PORTFOLIO_DATA.skills.groups.forEach(function (g) {
        var label = g.category ? g.category + ": " : "";
        list.appendChild(el("li", label + (g.skills || []).join(", ")));
      });
      sec.appendChild(list);
    });
  }
})();
</script>
</body>
</html>
`

// Generator 把结构化文档注入作品集模板
type Generator struct {
	template string
	logger   zerolog.Logger
}

// GeneratorOption 生成器配置选项
type GeneratorOption func(*Generator)

// WithTemplate 替换内置模板，模板需要包含数据占位符
func WithTemplate(tpl string) GeneratorOption {
	return func(g *Generator) {
		if tpl != "" {
			g.template = tpl
		}
	}
}

// NewGenerator 创建作品集生成器
func NewGenerator(logger zerolog.Logger, options ...GeneratorOption) *Generator {
	g := &Generator{
		template: defaultTemplate,
		logger:   logger.With().Str("component", "portfolio-generator").Logger(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Render 把文档的章节map序列化为JSON并替换进模板，返回完整的HTML页面
func (g *Generator) Render(doc *types.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档不能为空")
	}

	sectionMap := doc.SectionMap()
	dataJSON, err := json.Marshal(sectionMap)
	if err != nil {
		return nil, fmt.Errorf("序列化章节map失败: %w", err)
	}

	title := "作品集"
	if doc.Hero != nil && doc.Hero.Name != "" {
		title = doc.Hero.Name
	}

	// 防止JSON内容提前闭合script标签
	safeJSON := strings.ReplaceAll(string(dataJSON), "</", "<\\/")

	page := strings.NewReplacer(
		placeholderTitle, htmlEscape(title),
		placeholderData, safeJSON,
	).Replace(g.template)

	g.logger.Debug().
		Int("page_bytes", len(page)).
		Int("section_count", doc.SectionCount()).
		Msg("作品集页面渲染完成")

	return []byte(page), nil
}

// htmlEscape 转义标题中的HTML特殊字符
func htmlEscape(s string) string {
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	).Replace(s)
}
