package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/user/repo", ViewModeGithub},
		{"https://www.youtube.com/watch?v=abc123", ViewModeYoutube},
		{"https://youtu.be/abc123", ViewModeYoutube},
		{"https://vimeo.com/12345", ViewModeVimeo},
		{"https://twitter.com/user/status/123456", ViewModeTweet},
		{"https://x.com/user/status/123456", ViewModeTweet},
		// 个人主页即使在twitter域名下也不算tweet
		{"https://twitter.com/user", ViewModeWebsite},
		{"https://example.com/paper.pdf", ViewModePDF},
		{"https://example.com/screenshot.png", ViewModeImage},
		{"https://example.com/demo.mp4", ViewModeVideo},
		// 查询串不影响扩展名判断
		{"https://example.com/image.jpg?size=large", ViewModeImage},
		{"https://example.com/doc.pdf#page=3", ViewModePDF},
		{"https://myportfolio.dev", ViewModeWebsite},
		{"", ViewModeWebsite},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyURL(tt.url), "url=%q", tt.url)
	}
}
