package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	fenceRegex         = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseInto decodes the first JSON object in an LLM reply into T. Markdown
// fences and trailing prose are ignored and trailing commas are repaired.
func ParseInto[T any](raw string) (T, error) {
	var out T
	s := strings.TrimSpace(raw)
	if m := fenceRegex.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	idx := strings.IndexByte(s, '{')
	if idx == -1 {
		return out, ErrNoJSON
	}
	s = s[idx:]

	if err := json.NewDecoder(strings.NewReader(s)).Decode(&out); err == nil {
		return out, nil
	}
	var zero T
	out = zero
	repaired := trailingCommaRegex.ReplaceAllString(s, "$1")
	if err := json.NewDecoder(strings.NewReader(repaired)).Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}

// ParseJSON decodes the first JSON object in raw into a map.
func ParseJSON(raw string) (map[string]any, error) {
	m, err := ParseInto[map[string]any](raw)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoJSON
	}
	return m, nil
}

// ParseOr returns the parsed object, or {key: raw} when raw is not JSON.
func ParseOr(raw, key string) map[string]any {
	if m, err := ParseJSON(raw); err == nil {
		return m
	}
	return map[string]any{key: raw}
}
