// Package placeholder rewrites metric placeholders in generated queries into their aggregate expressions.
//
// A placeholder is written f{name} or f{"name"}. Every placeholder must name a metric known to the
// Expander; a single unknown name rejects the whole query and nothing is substituted.
package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var pattern = regexp.MustCompile(`f\{\s*"?([^"}]+)"?\s*\}`)

// UnknownMetricError reports a placeholder that names no registered metric.
type UnknownMetricError struct {
	Name    string
	Atomic  []string
	Derived []string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric in placeholder: %q (valid metrics: atomic=[%s], derived=[%s])",
		e.Name, strings.Join(e.Atomic, ", "), strings.Join(e.Derived, ", "))
}

// Expander resolves placeholders against a fixed set of metrics. It is safe for concurrent use.
type Expander struct {
	atomic  map[string]bool
	derived map[string]string

	atomicNames  []string
	derivedNames []string
}

// New returns an Expander over the given atomic metric names and derived name -> formula map.
func New(atomic []string, derived map[string]string) *Expander {
	e := &Expander{
		atomic:      make(map[string]bool, len(atomic)),
		derived:     make(map[string]string, len(derived)),
		atomicNames: append([]string(nil), atomic...),
	}
	for _, name := range atomic {
		e.atomic[name] = true
	}
	for name, formula := range derived {
		e.derived[name] = formula
		e.derivedNames = append(e.derivedNames, name)
	}
	sort.Strings(e.derivedNames)
	return e
}

// Expand is a one-shot form of New(atomic, derived).Expand(query).
func Expand(query string, atomic []string, derived map[string]string) (string, error) {
	return New(atomic, derived).Expand(query)
}

// Expand replaces every placeholder in query with its aggregate expression in a single pass.
// Substituted text is never rescanned. On error the query is not modified.
func (e *Expander) Expand(query string) (string, error) {
	matches := pattern.FindAllStringSubmatchIndex(query, -1)
	if len(matches) == 0 {
		return query, nil
	}

	replacements := make([]string, len(matches))
	for i, m := range matches {
		name := strings.TrimSpace(query[m[2]:m[3]])
		expr, ok := e.resolve(name)
		if !ok {
			return "", &UnknownMetricError{
				Name:    name,
				Atomic:  append([]string(nil), e.atomicNames...),
				Derived: append([]string(nil), e.derivedNames...),
			}
		}
		replacements[i] = expr
	}

	var sb strings.Builder
	sb.Grow(len(query))
	last := 0
	for i, m := range matches {
		sb.WriteString(query[last:m[0]])
		sb.WriteString(replacements[i])
		last = m[1]
	}
	sb.WriteString(query[last:])
	return sb.String(), nil
}

// Placeholders returns the trimmed names of all placeholders in query, in order of appearance.
func Placeholders(query string) []string {
	matches := pattern.FindAllStringSubmatch(query, -1)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSpace(m[1])
	}
	return names
}

// resolve looks the name up as-is and then with whitespace runs collapsed.
// Derived metrics take precedence over atomic ones at each step.
func (e *Expander) resolve(name string) (string, bool) {
	if expr, ok := e.lookup(name); ok {
		return expr, true
	}
	norm := strings.Join(strings.Fields(name), " ")
	if norm == name {
		return "", false
	}
	return e.lookup(norm)
}

func (e *Expander) lookup(name string) (string, bool) {
	if formula, ok := e.derived[name]; ok {
		return "(" + formula + ")", true
	}
	if e.atomic[name] {
		return `SUM("` + name + `")`, true
	}
	return "", false
}
