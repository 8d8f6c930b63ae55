package halcyon

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	sectionSeparator = "=="
	codeOpen         = "<?php"
	codeClose        = "?>"
)

// Document is the parsed form of a template file.
type Document struct {
	Settings map[string]Value
	Code     string
	Markup   string
}

// ParseSections splits raw into settings, code and markup.
//
//	one section:    markup
//	two sections:   settings == markup
//	three sections: settings == code == markup
//
// Only the first two separator lines split; later ones belong to the markup.
// Separators may end in "\r\n"; code and markup keep their line endings.
func ParseSections(raw []byte) (Document, error) {
	text := string(raw)
	lines := strings.Split(text, "\n")

	var seps []int
	for i, line := range lines {
		if isSeparator(line) {
			seps = append(seps, i)
			if len(seps) == 2 {
				break
			}
		}
	}

	doc := Document{Settings: map[string]Value{}}
	switch len(seps) {
	case 0:
		doc.Markup = text
		return doc, nil
	case 1:
		doc.Markup = strings.Join(lines[seps[0]+1:], "\n")
	case 2:
		doc.Code = unfenceCode(strings.Join(lines[seps[0]+1:seps[1]], "\n"))
		doc.Markup = strings.Join(lines[seps[1]+1:], "\n")
	}

	settings, err := parseSettings(normalizeLineEndings(strings.Join(lines[:seps[0]], "\n")))
	if err != nil {
		return Document{}, &MalformedDocumentError{Err: err}
	}
	doc.Settings = settings
	return doc, nil
}

// RenderSections is the inverse of ParseSections.
func RenderSections(doc Document) ([]byte, error) {
	code := strings.TrimSpace(doc.Code)
	for _, line := range strings.Split(code, "\n") {
		if isSeparator(line) {
			return nil, &MalformedDocumentError{Err: errors.New("code section contains a separator line")}
		}
	}

	settings, err := renderSettings(doc.Settings)
	if err != nil {
		return nil, err
	}

	markupHasSeparator := false
	for _, line := range strings.Split(doc.Markup, "\n") {
		if isSeparator(line) {
			markupHasSeparator = true
			break
		}
	}

	if settings == "" && code == "" && !markupHasSeparator {
		return []byte(doc.Markup), nil
	}

	var buf bytes.Buffer
	if settings != "" {
		buf.WriteString(settings)
		buf.WriteString("\n")
	}
	buf.WriteString(sectionSeparator + "\n")
	if code != "" || markupHasSeparator {
		if code != "" {
			buf.WriteString(codeOpen + "\n" + code + "\n" + codeClose + "\n")
		}
		buf.WriteString(sectionSeparator + "\n")
	}
	buf.WriteString(doc.Markup)
	return buf.Bytes(), nil
}

func isSeparator(line string) bool {
	return strings.TrimRight(line, " \t\r") == sectionSeparator
}

// normalizeLineEndings also drops a trailing "\r" left over from splitting a
// CRLF text on "\n".
func normalizeLineEndings(input string) string {
	return strings.TrimSuffix(strings.ReplaceAll(input, "\r\n", "\n"), "\r")
}

func unfenceCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, codeOpen)
	code = strings.TrimSuffix(code, codeClose)
	return strings.TrimSpace(code)
}

func parseSettings(block string) (map[string]Value, error) {
	if strings.TrimSpace(block) == "" {
		return map[string]Value{}, nil
	}
	var raw map[string]any
	if err := toml.Unmarshal([]byte(block), &raw); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("settings line %d column %d: %s", row, col, derr.Error())
		}
		return nil, fmt.Errorf("settings: %w", err)
	}
	settings, err := Values(raw)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return settings, nil
}

// renderSettings writes settings as TOML with double quoted strings. Scalars
// and lists come first, then one [table] per nested map, all in key order.
func renderSettings(settings map[string]Value) (string, error) {
	if len(settings) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := renderTable(&buf, nil, settings); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func renderTable(buf *bytes.Buffer, prefix []string, table map[string]Value) error {
	keys := sortedKeys(table)
	for _, k := range keys {
		v := table[k]
		if v.Kind() == KindMap || v.IsNull() {
			continue
		}
		s, err := renderInline(v)
		if err != nil {
			return fmt.Errorf("setting %s: %w", strings.Join(append(prefix, k), "."), err)
		}
		buf.WriteString(renderKey(k) + " = " + s + "\n")
	}
	for _, k := range keys {
		sub, ok := table[k].AsMap()
		if !ok {
			continue
		}
		path := append(append([]string{}, prefix...), k)
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		header := make([]string, len(path))
		for i, p := range path {
			header[i] = renderKey(p)
		}
		buf.WriteString("[" + strings.Join(header, ".") + "]\n")
		if err := renderTable(buf, path, sub); err != nil {
			return err
		}
	}
	return nil
}

func renderInline(v Value) (string, error) {
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		return quoteString(s), nil
	case KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10), nil
	case KindFloat:
		f, _ := v.AsFloat()
		return formatFloat(f), nil
	case KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), nil
	case KindList:
		items, _ := v.AsList()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item.IsNull() {
				return "", errors.New("lists cannot hold null values")
			}
			s, err := renderInline(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case KindMap:
		m, _ := v.AsMap()
		parts := make([]string, 0, len(m))
		for _, k := range sortedKeys(m) {
			if m[k].IsNull() {
				continue
			}
			s, err := renderInline(m[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, renderKey(k)+" = "+s)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", errors.New("null values cannot be stored")
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

func renderKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		bare := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if !bare {
			return quoteString(k)
		}
	}
	return k
}

// quoteString produces a TOML basic string.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
