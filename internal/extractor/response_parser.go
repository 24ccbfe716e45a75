package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 匹配 ```json ... ``` 代码块
var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*([\\[{].*?[\\]}])\\s*```")

// ParseResponse 从LLM的原始回复文本中恢复一个JSON值。
// 解析策略从廉价到昂贵依次尝试：
//  1. 直接解析（支持结构化输出的后端走此捷径）
//  2. 提取 markdown 代码块中的内容
//  3. 括号深度扫描，定位第一个配平的 {...} 或 [...]，
//     正确跳过字符串字面量内部的括号（跟踪引号与转义状态）
//
// 全部失败时返回 nil 表示"无数据"，而不是错误——
// 解析失败的章节应当优雅降级为缺失，不应中止整个文档。
func ParseResponse(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	// 捷径：整体就是合法JSON
	if candidate := validateJSON(trimmed); candidate != nil {
		return candidate
	}

	// 代码块提取
	if matches := jsonFenceRe.FindStringSubmatch(trimmed); len(matches) > 1 {
		if candidate := validateJSON(strings.TrimSpace(matches[1])); candidate != nil {
			return candidate
		}
	}

	// 括号深度扫描回退
	if fragment := scanBalanced(trimmed); fragment != "" {
		if candidate := validateJSON(fragment); candidate != nil {
			return candidate
		}
	}

	return nil
}

// validateJSON 校验文本是否为合法的JSON对象或数组，合法则原样返回
func validateJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	// 只接受对象或数组，裸标量（如LLM回复中的数字）没有章节意义
	if s[0] != '{' && s[0] != '[' {
		return nil
	}
	if !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

// scanBalanced 在文本中定位第一个配平的 {...} 或 [...] 子串。
// 字符串字面量内的括号不参与深度计数；反斜杠转义的引号不会结束字符串。
func scanBalanced(text string) string {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return ""
	}

	open := text[start]
	var close byte
	if open == '{' {
		close = '}'
	} else {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}

	return "" // 未配平（截断的JSON）
}
