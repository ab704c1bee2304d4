package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// extractJSONObject pulls a JSON object out of a model answer. The answer
// may be wrapped in markdown code fences or surrounded by prose.
func extractJSONObject(content string) (gjson.Result, bool) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

// stringField returns the trimmed value at key if it is a JSON string.
func stringField(obj gjson.Result, key string) string {
	v := obj.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// positiveNumber accepts finite JSON numbers and numeric strings.
func positiveNumber(v gjson.Result) (float64, bool) {
	var n float64
	switch v.Type {
	case gjson.Number:
		n = v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	return n, n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n)
}

// contextNumber reads a positive finite number from an interaction context.
func contextNumber(ctx map[string]any, key string) (float64, bool) {
	var n float64
	switch v := ctx[key].(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	return n, n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n)
}

func contextString(ctx map[string]any, key string) string {
	s, _ := ctx[key].(string)
	return strings.TrimSpace(s)
}
