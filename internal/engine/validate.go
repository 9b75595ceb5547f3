package engine

import (
	"errors"
	"strings"
)

var (
	ErrEmptyQuery         = errors.New("query is required")
	ErrNotSelectQuery     = errors.New("only SELECT / CTE queries are allowed")
	ErrMultipleStatements = errors.New("only a single statement is allowed")
)

// ValidateSelect checks that raw is a single read-only statement and returns it trimmed,
// without trailing semicolons.
func ValidateSelect(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	query = strings.TrimSpace(strings.TrimRight(query, "; \t\r\n"))
	if query == "" {
		return "", ErrEmptyQuery
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", ErrNotSelectQuery
	}
	if hasStatementBreak(query) {
		return "", ErrMultipleStatements
	}
	return query, nil
}

// hasStatementBreak reports a ';' outside string literals, quoted identifiers and comments.
func hasStatementBreak(query string) bool {
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '\'' || c == '"':
			end := strings.IndexByte(query[i+1:], c)
			if end < 0 {
				return false
			}
			i += end + 1
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return false
			}
			i += end
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == ';':
			return true
		}
	}
	return false
}
