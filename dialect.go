package dbx

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder selects the positional parameter style of a backend.
//
// Common choices:
//   - PlaceholderQuestion → "?"          (MySQL, SQLite)
//   - PlaceholderDollar   → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP      → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

// Format renders the n-th placeholder (1-based).
func (p Placeholder) Format(n int) string {
	switch p {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(n)
	case PlaceholderColonNum:
		return ":" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// PlaceholderFor picks a Placeholder based on a driver name string.
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "lib/pq", "pg":
		return PlaceholderDollar
	case "sqlserver", "mssql":
		return PlaceholderAtP
	case "godror", "oracle", "goracle":
		return PlaceholderColonNum
	default:
		return PlaceholderQuestion
	}
}

// Dialect describes how the active backend wants statements rendered.
// The statement builder never hard-codes any of this; it always asks the
// adapter's Dialect.
type Dialect struct {
	// Placeholder is the positional parameter style.
	Placeholder Placeholder

	// Quote is the identifier quote character; 0 leaves identifiers bare.
	Quote byte

	// TextTimestamps is set by backends that store timestamps as RFC 3339
	// text columns rather than a native timestamp type. Reading such a
	// column back yields a Text value; the TextTime field hook converts it.
	TextTimestamps bool
}

// Ident quotes a column or table identifier in the dialect's style.
// Dotted names quote each segment separately.
func (d Dialect) Ident(name string) string {
	if d.Quote == 0 {
		return name
	}
	q := string(d.Quote)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Placeholders renders placeholders start..start+n-1 (1-based), for
// VALUES lists and SET clauses.
func (d Dialect) Placeholders(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder.Format(start + i)
	}
	return out
}

// Rewrite rewrites every bare '?' in query to the dialect's placeholder
// style, skipping quoted strings, quoted identifiers, line and block
// comments, and PostgreSQL $tag$…$tag$ blocks. Queries written for the
// fluent builder always use '?'.
func (d Dialect) Rewrite(query string) string {
	if d.Placeholder == PlaceholderQuestion {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	i, arg := 0, 1

	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'':
			j := skipQuoted(query, i+w, '\'')
			out = append(out, query[i:j]...)
			i = j
			continue
		case '"':
			j := skipQuoted(query, i+w, '"')
			out = append(out, query[i:j]...)
			i = j
			continue
		case '`':
			j := skipQuoted(query, i+w, '`')
			out = append(out, query[i:j]...)
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				j := skipLineComment(query, i+2)
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j := skipBlockComment(query, i+2)
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '$':
			if j, ok := skipDollarQuoted(query, i); ok {
				out = append(out, query[i:j]...)
				i = j
				continue
			}
		case '?':
			out = append(out, d.Placeholder.Format(arg)...)
			arg++
			i += w
			continue
		}
		out = append(out, query[i:i+w]...)
		i += w
	}
	return string(out)
}

// skipQuoted scans past a quoted region opened with q, honoring doubled
// quotes as escapes. An unterminated region runs to end of string; the
// backend will reject the statement itself.
// countPlaceholders counts the bare '?' markers in expr, skipping quoted
// regions, comments and dollar-quoted strings the way Rewrite does.
func countPlaceholders(expr string) int {
	n, i := 0, 0
	for i < len(expr) {
		switch expr[i] {
		case '\'':
			i = skipQuoted(expr, i+1, '\'')
		case '"':
			i = skipQuoted(expr, i+1, '"')
		case '`':
			i = skipQuoted(expr, i+1, '`')
		case '-':
			if strings.HasPrefix(expr[i:], "--") {
				i = skipLineComment(expr, i+2)
				continue
			}
			i++
		case '/':
			if strings.HasPrefix(expr[i:], "/*") {
				i = skipBlockComment(expr, i+2)
				continue
			}
			i++
		case '$':
			if j, ok := skipDollarQuoted(expr, i); ok {
				i = j
				continue
			}
			i++
		case '?':
			n++
			i++
		default:
			i++
		}
	}
	return n
}

func skipQuoted(s string, i int, q byte) int {
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) int {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(s)
}

// skipDollarQuoted handles $$…$$ and $tag$…$tag$ (PostgreSQL).
func skipDollarQuoted(s string, i int) (int, bool) {
	j := i + 1
	for j < len(s) && s[j] != '$' && isTagChar(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false
	}
	tag := s[i : j+1]
	k := j + 1
	idx := strings.Index(s[k:], tag)
	if idx < 0 {
		return len(s), true
	}
	return k + idx + len(tag), true
}

func isTagChar(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
