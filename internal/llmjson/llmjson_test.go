package llmjson

import (
	"encoding/json"
	"testing"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"intent":"create"}`,
			want:    `{"intent":"create"}`,
		},
		{
			name:    "fenced with language tag",
			content: "Here you go:\n```json\n{\"intent\":\"update\"}\n```\nDone.",
			want:    `{"intent":"update"}`,
		},
		{
			name:    "fenced without language tag",
			content: "```\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "surrounded by prose",
			content: `Sure! The answer is {"summary":"login broken"} as requested.`,
			want:    `{"summary":"login broken"}`,
		},
		{
			name:    "trailing comma removed",
			content: `{"a":1,"b":2,}`,
			want:    `{"a":1,"b":2}`,
		},
		{
			name:    "no object present",
			content: "I cannot help with that.",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractObject(tt.content)
			if got != tt.want {
				t.Errorf("ExtractObject() = %q, want %q", got, tt.want)
			}
			if got != "" && !json.Valid([]byte(got)) {
				t.Errorf("extracted text is not valid JSON: %q", got)
			}
		})
	}
}

func TestExtractArray(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare array",
			content: `["a","b"]`,
			want:    `["a","b"]`,
		},
		{
			name:    "fenced array",
			content: "```json\n[\"matches summary\", \"same component\"]\n```",
			want:    `["matches summary", "same component"]`,
		},
		{
			name:    "array in prose with trailing comma",
			content: `The reasons are ["one", "two",] overall.`,
			want:    `["one", "two"]`,
		},
		{
			name:    "no array present",
			content: "nothing here",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractArray(tt.content)
			if got != tt.want {
				t.Errorf("ExtractArray() = %q, want %q", got, tt.want)
			}
			if got != "" && !json.Valid([]byte(got)) {
				t.Errorf("extracted text is not valid JSON: %q", got)
			}
		})
	}
}

func TestExtractObjectNested(t *testing.T) {
	content := `{"fields":{"summary":"x","labels":["a","b"]}}`
	got := ExtractObject(content)
	if got != content {
		t.Errorf("nested object mangled: %q", got)
	}
	var out struct {
		Fields struct {
			Summary string   `json:"summary"`
			Labels  []string `json:"labels"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields.Summary != "x" || len(out.Fields.Labels) != 2 {
		t.Errorf("unexpected decode %+v", out)
	}
}
