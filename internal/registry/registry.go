// Package registry holds the catalog of dimensions and metrics a generated query may reference.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultYAML []byte

// Registry is the static catalog of allowed dimensions, atomic metrics and derived metrics.
// It is built once at startup and only read afterwards.
type Registry struct {
	dimensions []string
	atomic     []string
	derived    []DerivedMetric
	formulas   map[string]string
}

// DerivedMetric is a named metric computed by an aggregate formula over quoted column names.
type DerivedMetric struct {
	Name    string `yaml:"name" json:"name"`
	Formula string `yaml:"formula" json:"formula"`
}

type document struct {
	GroupDims []string        `yaml:"group_dims"`
	Atomic    []string        `yaml:"atomic"`
	Derived   []DerivedMetric `yaml:"derived"`
}

// Default returns the built-in HR metrics registry.
func Default() (*Registry, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for callers that cannot proceed without the built-in registry.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("registry: built-in catalog is invalid: %v", err))
	}
	return r
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a registry document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return New(doc.GroupDims, doc.Atomic, doc.Derived)
}

// New builds a registry from explicit lists.
func New(dimensions, atomic []string, derived []DerivedMetric) (*Registry, error) {
	r := &Registry{
		dimensions: trimAll(dimensions),
		atomic:     trimAll(atomic),
		derived:    make([]DerivedMetric, len(derived)),
		formulas:   make(map[string]string, len(derived)),
	}
	for i, d := range derived {
		r.derived[i] = DerivedMetric{
			Name:    strings.TrimSpace(d.Name),
			Formula: strings.TrimSpace(d.Formula),
		}
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	for _, d := range r.derived {
		r.formulas[d.Name] = d.Formula
	}
	return r, nil
}

func (r *Registry) validate() error {
	if len(r.dimensions) == 0 {
		return fmt.Errorf("registry has no dimensions")
	}
	if len(r.atomic) == 0 && len(r.derived) == 0 {
		return fmt.Errorf("registry has no metrics")
	}
	if err := checkNames("dimension", r.dimensions); err != nil {
		return err
	}
	if err := checkNames("atomic metric", r.atomic); err != nil {
		return err
	}
	names := make([]string, len(r.derived))
	for i, d := range r.derived {
		names[i] = d.Name
	}
	if err := checkNames("derived metric", names); err != nil {
		return err
	}
	for _, d := range r.derived {
		if d.Formula == "" {
			return fmt.Errorf("derived metric %q has an empty formula", d.Name)
		}
		// Expansion is single pass, so a formula may not refer to another placeholder.
		if strings.Contains(d.Formula, "f{") {
			return fmt.Errorf("derived metric %q formula contains a placeholder", d.Name)
		}
	}
	return nil
}

func checkNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("empty %s name", kind)
		}
		if strings.ContainsAny(n, "\"}") {
			return fmt.Errorf("%s %q contains a quote or closing brace", kind, n)
		}
		if seen[n] {
			return fmt.Errorf("duplicate %s %q", kind, n)
		}
		seen[n] = true
	}
	return nil
}

// Dimensions returns the allowed grouping/filter dimensions in catalog order.
func (r *Registry) Dimensions() []string {
	return append([]string(nil), r.dimensions...)
}

// Atomic returns the summable metric names in catalog order.
func (r *Registry) Atomic() []string {
	return append([]string(nil), r.atomic...)
}

// Derived returns the formula metrics in catalog order.
func (r *Registry) Derived() []DerivedMetric {
	return append([]DerivedMetric(nil), r.derived...)
}

// DerivedFormulas returns a fresh name -> formula map.
func (r *Registry) DerivedFormulas() map[string]string {
	out := make(map[string]string, len(r.formulas))
	for k, v := range r.formulas {
		out[k] = v
	}
	return out
}

// MetricNames lists every metric a placeholder may name, derived first.
func (r *Registry) MetricNames() []string {
	names := make([]string, 0, len(r.derived)+len(r.atomic))
	for _, d := range r.derived {
		names = append(names, d.Name)
	}
	return append(names, r.atomic...)
}

// KnowledgeBase is the catalog view sent to the query translator.
type KnowledgeBase struct {
	Atomic    []string          `json:"atomic"`
	Derived   map[string]string `json:"derived"`
	GroupDims []string          `json:"group_dims"`
}

// KnowledgeBase returns the translator-facing view of the registry.
func (r *Registry) KnowledgeBase() KnowledgeBase {
	return KnowledgeBase{
		Atomic:    r.Atomic(),
		Derived:   r.DerivedFormulas(),
		GroupDims: r.Dimensions(),
	}
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
