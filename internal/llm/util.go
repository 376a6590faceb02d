package llm

import (
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when a response contains no brace-delimited object.
var ErrNoJSONObject = errors.New("no JSON object found in model output")

// CleanJSONBlock strips a surrounding markdown code fence, with or without a
// language tag, from a model response.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		tag := text[:nl]
		if len(tag) < 20 && !strings.ContainsAny(tag, " {[") {
			text = text[nl+1:]
		}
	}
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// ExtractJSONObject returns the text from the first '{' to the last '}'.
// Models often add a preamble or a closing remark around the object.
func ExtractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return raw[start : end+1], nil
}
