package adapters

import (
	"encoding/json"
	"strings"
)

// StripFence removes a surrounding markdown code fence, with or without a
// language tag, from model output.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseObject decodes fenced or bare model output into a JSON object.
func parseObject(provider, text string) (map[string]any, error) {
	body := StripFence(text)
	if body == "" {
		return nil, &MalformedResponseError{Provider: provider, Reason: "empty content"}
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, &MalformedResponseError{Provider: provider, Reason: "content is not valid JSON", Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedResponseError{Provider: provider, Reason: "content is not a JSON object"}
	}
	return obj, nil
}
