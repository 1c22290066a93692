package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// ErrNoJSON is reported when a reply contains no usable JSON value.
var ErrNoJSON = errors.New("llm: no JSON value found in response")

// The functions in this file form the tolerant-decode boundary between free
// text replies and structured values. They never panic and never return an
// error to business logic: a reply either yields a value (ok == true) or it
// does not. Replies may carry markdown fences and commentary around the JSON.

// stripFences removes common markdown code block markers.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// balancedSpan returns the text from start (which must hold open) through the
// matching close delimiter, ignoring delimiters inside single- or double-quoted
// strings. It reports false when the span never closes.
func balancedSpan(text string, start int, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escape := false
	var quote byte

	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
			case quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// firstValid scans every open delimiter in text and returns the first balanced
// span that is well-formed JSON.
func firstValid(text string, open, close byte) (string, bool) {
	text = stripFences(text)
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		span, ok := balancedSpan(text, i, open, close)
		if ok && gjson.Valid(span) {
			return span, true
		}
	}
	return "", false
}

// ExtractJSONObject returns the outermost {...} starting at the first '{',
// whether or not it is valid JSON. Use it to feed a repair pass.
func ExtractJSONObject(text string) (string, bool) {
	text = stripFences(text)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	return balancedSpan(text, start, '{', '}')
}

// DecodeObject returns the first well-formed JSON object found in text.
func DecodeObject(text string) (gjson.Result, bool) {
	span, ok := firstValid(text, '{', '}')
	if !ok {
		return gjson.Result{}, false
	}
	return gjson.Parse(span), true
}

// DecodeArray returns the first well-formed JSON array found in text.
func DecodeArray(text string) (gjson.Result, bool) {
	span, ok := firstValid(text, '[', ']')
	if !ok {
		return gjson.Result{}, false
	}
	return gjson.Parse(span), true
}

// DecodeValue returns the first well-formed JSON object or array in text,
// preferring whichever kind opens first.
func DecodeValue(text string) (gjson.Result, bool) {
	stripped := stripFences(text)
	obj := strings.IndexByte(stripped, '{')
	arr := strings.IndexByte(stripped, '[')
	if arr >= 0 && (obj < 0 || arr < obj) {
		if res, ok := DecodeArray(stripped); ok {
			return res, true
		}
		return DecodeObject(stripped)
	}
	if res, ok := DecodeObject(stripped); ok {
		return res, true
	}
	return DecodeArray(stripped)
}

// DecodeObjectRepair behaves like DecodeObject but, when no well-formed object
// exists, runs a JSON repair pass over the first object-like span (or the
// unterminated tail starting at the first '{') before giving up.
func DecodeObjectRepair(text string) (gjson.Result, bool) {
	if res, ok := DecodeObject(text); ok {
		return res, true
	}

	candidate, ok := ExtractJSONObject(text)
	if !ok {
		stripped := stripFences(text)
		start := strings.IndexByte(stripped, '{')
		if start < 0 {
			return gjson.Result{}, false
		}
		candidate = stripped[start:]
	}

	repaired, err := repairJSON(candidate)
	if err != nil || !gjson.Valid(repaired) {
		return gjson.Result{}, false
	}
	res := gjson.Parse(repaired)
	if !res.IsObject() {
		return gjson.Result{}, false
	}
	return res, true
}

// repairJSON wraps the repair library and converts its panics into errors.
func repairJSON(s string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("llm: json repair panicked")
		}
	}()
	return jsonrepair.JSONRepair(s)
}

// Unmarshal decodes a gjson result into v.
func Unmarshal(res gjson.Result, v interface{}) error {
	if !res.Exists() {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(res.Raw), v)
}

// BoolOr returns the boolean at path, or def when the field is missing or is
// not a boolean-like value.
func BoolOr(res gjson.Result, path string, def bool) bool {
	v := res.Get(path)
	switch v.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return def
}
