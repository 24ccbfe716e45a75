package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferRole(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Led the backend engineer team at Acme", "Backend Engineer"},
		{"Worked as a senior software engineer on billing", "Software Engineer"},
		{"Full-stack developer responsible for the web app", "Full Stack Engineer"},
		{"Promoted to engineering manager in 2021", "Engineering Manager"},
		{"CTO and co-founder", "Chief Technology Officer"},
		{"Acted as tech lead for the platform group", "Tech Lead"},
		{"Data scientist focusing on churn models", "Data Scientist"},
		{"DevOps engineer maintaining CI/CD", "DevOps Engineer"},
		{"UX designer for the mobile product", "Product Designer"},
		// 更特异的规则优先：principal engineer 不落到 software engineer
		{"Principal engineer on the storage team", "Staff Engineer"},
		// 识别不出时返回空串，绝不猜测
		{"Responsible for various tasks", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InferRole(tt.input), "input=%q", tt.input)
	}
}

func TestInferEventName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Spoke at GopherCon 2023 about generics", "GopherCon"},
		{"Keynote at KubeCon", "KubeCon"},
		{"Gave a talk about testing", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InferEventName(tt.input), "input=%q", tt.input)
	}
}

func TestInferFieldOfStudy(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"B.S. in Computer Science", "Computer Science"},
		{"Master of Software Engineering", "Software Engineering"},
		{"BSc Electrical Engineering, TU Munich", "Electrical Engineering"},
		{"MBA Business Administration", "Business Administration"},
		{"Bachelor of Arts", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InferFieldOfStudy(tt.input), "input=%q", tt.input)
	}
}
