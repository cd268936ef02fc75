// Package recovery extracts a JSON object from a model completion that may be
// wrapped in prose or markdown fences.
package recovery

import (
	"encoding/json"
	"strings"
)

// ErrorSummary is the error_summary of the fallback payload.
const ErrorSummary = "response was not valid JSON"

// Fallback payload keys.
const (
	KeyErrorSummary = "error_summary"
	KeyRawResponse  = "raw_response"
)

const (
	jsonFence  = "```json"
	closeFence = "```"
)

// Result is a recovered object. When Degraded is true, Value is the fallback
// payload holding the original text.
type Result struct {
	Value    map[string]interface{}
	Degraded bool
}

// Recover returns the first JSON object found by, in order: the ```json fenced
// block, the span from the first '{' to the last '}', and the whole trimmed
// text. It never fails; unparseable input yields the degraded fallback.
func Recover(raw string) Result {
	for _, candidate := range candidates(raw) {
		if v, ok := parseObject(candidate); ok {
			return Result{Value: v}
		}
	}

	return Result{
		Value: map[string]interface{}{
			KeyErrorSummary: ErrorSummary,
			KeyRawResponse:  raw,
		},
		Degraded: true,
	}
}

func candidates(raw string) []string {
	var out []string

	if start := strings.Index(raw, jsonFence); start >= 0 {
		body := raw[start+len(jsonFence):]
		if end := strings.Index(body, closeFence); end >= 0 {
			body = body[:end]
		}
		out = append(out, body)
	}

	if first := strings.Index(raw, "{"); first >= 0 {
		if last := strings.LastIndex(raw, "}"); last > first {
			out = append(out, raw[first:last+1])
		}
	}

	return append(out, strings.TrimSpace(raw))
}

func parseObject(s string) (map[string]interface{}, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// Into decodes a recovered object into a typed value.
func Into(value map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// IsFallback reports whether value is the degraded fallback payload.
func IsFallback(value map[string]interface{}) bool {
	summary, ok := value[KeyErrorSummary].(string)
	if !ok || summary != ErrorSummary {
		return false
	}
	_, ok = value[KeyRawResponse]
	return ok
}
