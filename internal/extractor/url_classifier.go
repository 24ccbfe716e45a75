package extractor

import "strings"

// URL展示模式常量，供下游模板渲染选择视图
const (
	ViewModeGithub  = "github"
	ViewModeYoutube = "youtube"
	ViewModeVimeo   = "vimeo"
	ViewModeImage   = "image"
	ViewModeTweet   = "tweet"
	ViewModePDF     = "pdf"
	ViewModeVideo   = "video"
	ViewModeWebsite = "website"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp"}
var videoExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv"}

// ClassifyURL 根据URL字符串模式匹配出规范的展示模式。
// 纯函数，无网络请求；空串归类为 website。
func ClassifyURL(url string) string {
	u := strings.ToLower(strings.TrimSpace(url))
	if u == "" {
		return ViewModeWebsite
	}

	// 去掉查询串与锚点后再看扩展名
	pathOnly := u
	if i := strings.IndexAny(pathOnly, "?#"); i != -1 {
		pathOnly = pathOnly[:i]
	}

	switch {
	case strings.Contains(u, "github.com"):
		return ViewModeGithub
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return ViewModeYoutube
	case strings.Contains(u, "vimeo.com"):
		return ViewModeVimeo
	case strings.Contains(u, "twitter.com/") && strings.Contains(u, "/status/"),
		strings.Contains(u, "x.com/") && strings.Contains(u, "/status/"):
		return ViewModeTweet
	case strings.HasSuffix(pathOnly, ".pdf"):
		return ViewModePDF
	case hasAnySuffix(pathOnly, imageExtensions):
		return ViewModeImage
	case hasAnySuffix(pathOnly, videoExtensions):
		return ViewModeVideo
	}

	return ViewModeWebsite
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
