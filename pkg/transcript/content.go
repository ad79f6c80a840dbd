package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Content is either plain text or a structured JSON value (a list of parts or
// an object) kept verbatim so backups round-trip losslessly.
type Content struct {
	text       string
	structured json.RawMessage
}

func Text(s string) Content { return Content{text: s} }

// Structured wraps a raw JSON value. Raw JSON strings collapse to Text.
func Structured(raw json.RawMessage) Content {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Text(s)
	}
	return Content{structured: compact(raw)}
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return json.RawMessage(buf.Bytes())
}

func (c Content) IsStructured() bool { return len(c.structured) > 0 }

// String is the one total normalization used for generation requests.
// Text is returned as-is. A part list yields the first textual part; an object
// yields its "content" field; anything else falls back to the raw JSON.
func (c Content) String() string {
	if !c.IsStructured() {
		return c.text
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(c.structured, &parts); err == nil {
		for _, part := range parts {
			if s, ok := partText(part); ok {
				return s
			}
		}
		return string(c.structured)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(c.structured, &obj); err == nil {
		if raw, ok := obj["content"]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
			return string(bytes.TrimSpace(raw))
		}
	}
	return strings.TrimSpace(string(c.structured))
}

func partText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var part struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &part); err == nil && part.Text != nil {
		return *part.Text, true
	}
	return "", false
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return c.structured, nil
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}
	if !json.Valid(trimmed) {
		return &json.SyntaxError{Offset: 0}
	}
	*c = Content{structured: compact(trimmed)}
	return nil
}
