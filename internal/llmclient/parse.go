package llmclient

import (
	"encoding/json"
	"strings"
)

// ParsedResponse is the result of the three-stage JSON recovery (spec.md
// §4.6). Data is always a non-nil JSON object; Confidence is clamped to
// [0.0, 1.0].
type ParsedResponse struct {
	Data       map[string]any
	Confidence float64
}

var fencedBlockPrefixes = []string{"```json\r\n", "```json\n", "```\r\n", "```\n"}

// ParseLLMResponse is total — it never panics or returns an error — and
// always yields a JSON object, per spec.md §8's invariant on
// parse_llm_response.
func ParseLLMResponse(content string) ParsedResponse {
	// Stage 1: parse the whole content.
	if obj, ok := tryParseObject(content); ok {
		return withConfidence(obj, 0.8)
	}

	// Stage 2: scan for a fenced code block.
	if body, ok := extractFencedBlock(content); ok {
		if obj, ok := tryParseObject(body); ok {
			return withConfidence(obj, 0.7)
		}
	}

	// Stage 3: substring from first '{' to last '}'.
	if body, ok := extractBraceSpan(content); ok {
		if obj, ok := tryParseObject(body); ok {
			return withConfidence(obj, 0.6)
		}
	}

	// Stage 4: fallback.
	return ParsedResponse{
		Data: map[string]any{
			"raw_response": content,
			"parse_error":  "failed to parse LLM response as JSON",
		},
		Confidence: 0.3,
	}
}

// withConfidence reads an explicit "confidence" field from obj when
// present, otherwise falls back to def, then clamps to [0,1].
func withConfidence(obj map[string]any, def float64) ParsedResponse {
	conf := def
	if raw, ok := obj["confidence"]; ok {
		if f, ok := toFloat(raw); ok {
			conf = f
		}
	}
	return ParsedResponse{Data: obj, Confidence: clamp01(conf)}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// tryParseObject parses s as a single JSON object. It is strict: trailing
// non-whitespace content after the object (a common LLM failure mode, e.g.
// a stray sentence appended after the closing brace) is rejected rather
// than silently ignored.
func tryParseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if strings.TrimSpace(s[dec.InputOffset():]) != "" {
		return nil, false
	}
	return obj, true
}

func extractFencedBlock(content string) (string, bool) {
	for _, prefix := range fencedBlockPrefixes {
		idx := strings.Index(content, prefix)
		if idx < 0 {
			continue
		}
		rest := content[idx+len(prefix):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		return rest[:end], true
	}
	return "", false
}

func extractBraceSpan(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}
