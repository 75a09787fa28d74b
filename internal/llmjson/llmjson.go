// Package llmjson extracts structured JSON from LLM responses, which
// routinely wrap the payload in prose or markdown fences.
package llmjson

import "regexp"

var (
	// fencedObject matches a JSON object inside ```json ... ``` fences.
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObject matches the outermost JSON object anywhere in the text.
	bareObject = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// fencedArray and bareArray are the array equivalents.
	fencedArray = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareArray   = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	// trailingComma matches a comma directly before } or ].
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractObject returns the first well-formed-looking JSON object from
// an LLM response, or "" when none is present. Markdown code fences and
// trailing commas are tolerated.
func ExtractObject(content string) string {
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		return clean(m[1])
	}
	if m := bareObject.FindString(content); m != "" {
		return clean(m)
	}
	return ""
}

// ExtractArray returns the first JSON array from an LLM response, or "".
func ExtractArray(content string) string {
	if m := fencedArray.FindStringSubmatch(content); len(m) > 1 {
		return clean(m[1])
	}
	if m := bareArray.FindString(content); m != "" {
		return clean(m)
	}
	return ""
}

func clean(raw string) string {
	return trailingComma.ReplaceAllString(raw, "$1")
}
