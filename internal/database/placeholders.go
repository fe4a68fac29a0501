package database

import (
	"fmt"
	"strings"
)

// BindNamed rewrites :name placeholders to PostgreSQL $n parameters and
// returns the matching argument list. Each distinct name gets one position,
// assigned in order of first appearance. Text inside single-quoted literals,
// double-quoted identifiers and :: casts is left alone.
func BindNamed(template string, params map[string]interface{}) (string, []interface{}, error) {
	var sb strings.Builder
	sb.Grow(len(template))

	positions := make(map[string]int)
	var args []interface{}

	n := len(template)
	for i := 0; i < n; i++ {
		ch := template[i]

		switch {
		case ch == '\'' || ch == '"':
			end := closingQuote(template, i)
			sb.WriteString(template[i:end])
			i = end - 1

		case ch == ':' && i+1 < n && template[i+1] == ':':
			sb.WriteString("::")
			i++

		case ch == ':' && i+1 < n && isNameStart(template[i+1]):
			j := i + 1
			for j < n && isNameChar(template[j]) {
				j++
			}
			name := template[i+1 : j]
			pos, seen := positions[name]
			if !seen {
				value, ok := params[name]
				if !ok {
					return "", nil, fmt.Errorf("missing value for placeholder :%s", name)
				}
				args = append(args, value)
				pos = len(args)
				positions[name] = pos
			}
			fmt.Fprintf(&sb, "$%d", pos)
			i = j - 1

		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String(), args, nil
}

// closingQuote returns the index just past the quoted run starting at start.
// A doubled quote character is an escaped quote, not the end.
func closingQuote(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
