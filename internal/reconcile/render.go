package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const indentWidth = 3

// renderJSON flattens a decoded JSON value into indented key:value text, three
// spaces per nesting level, preserving the order keys appear in the payload.
// Strings already textual are indented line by line; nested objects and arrays
// recurse one level deeper.
func renderJSON(raw json.RawMessage, level int) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out, err := renderNext(dec, level)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

func renderNext(dec *json.Decoder, level int) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return renderObject(dec, level)
		case '[':
			return renderArray(dec, level)
		default:
			return "", fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return indentLines(v, level), nil
	case json.Number:
		return indent(level) + v.String(), nil
	case bool:
		return indent(level) + fmt.Sprintf("%t", v), nil
	case nil:
		return indent(level) + "null", nil
	default:
		return indent(level) + fmt.Sprint(v), nil
	}
}

func renderObject(dec *json.Decoder, level int) (string, error) {
	var b strings.Builder
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", err
		}
		key, ok := keyTok.(string)
		if !ok {
			return "", fmt.Errorf("object key is not a string")
		}
		value, err := renderNext(dec, level+1)
		if err != nil {
			return "", err
		}
		b.WriteString(indent(level) + key + ":\n")
		b.WriteString(value + "\n")
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderArray(dec *json.Decoder, level int) (string, error) {
	var items []string
	for dec.More() {
		item, err := renderNext(dec, level+1)
		if err != nil {
			return "", err
		}
		items = append(items, item)
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return "", err
	}
	return strings.Join(items, "\n"), nil
}

// renderField returns a SOAP field verbatim when the payload is already a JSON
// string, and the flattened rendering otherwise.
func renderField(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return renderJSON(raw, 0)
}

func indent(level int) string {
	return strings.Repeat(" ", level*indentWidth)
}

func indentLines(s string, level int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent(level) + line
	}
	return strings.Join(lines, "\n")
}
