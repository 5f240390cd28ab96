// Package plugin loads declarative publisher plugins: the roots, pattern and
// aspect rules that describe how one publisher lays out its articles.
package plugin

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/aspect-iter/pkg/aspect"
	"github.com/eunmann/aspect-iter/pkg/htmlfilter"
	"github.com/eunmann/aspect-iter/pkg/metadata"
	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// Definition is a plugin as written in YAML.
//
//	name: example-journal
//	params: [base_url, year]
//	roots: ['"%s%d/", base_url, year']
//	pattern: ['^%s%d/[0-9]+\.(pdf|xml)$', base_url, year]
//	aspects:
//	  - detect: '/([0-9]+)\.pdf$'
//	    rewrite: '$1'
//	    roles: [full-text-pdf]
type Definition struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Params      []Param `yaml:"params,omitempty"`

	Roots           []TemplateValue `yaml:"roots"`
	Pattern         TemplateValue   `yaml:"pattern"`
	Exclude         TemplateValue   `yaml:"exclude,omitempty"`
	CaseInsensitive bool            `yaml:"case_insensitive,omitempty"`
	MatchTimeout    time.Duration   `yaml:"match_timeout,omitempty"`

	Aspects      []AspectDef                   `yaml:"aspects"`
	FullText     []aspect.Role                 `yaml:"full_text,omitempty"`
	DerivedRoles map[aspect.Role][]aspect.Role `yaml:"derived_roles,omitempty"`
	MetadataRole aspect.Role                   `yaml:"metadata_role,omitempty"`
	Collision    string                        `yaml:"collision,omitempty"`

	Metadata   *metadata.Config  `yaml:"metadata,omitempty"`
	HashFilter []htmlfilter.Rule `yaml:"hash_filter,omitempty"`
}

// Param declares a configuration parameter. In YAML it is either a bare
// name or a mapping with a default.
type Param struct {
	Name        string `yaml:"name"`
	Default     string `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// UnmarshalYAML accepts a scalar name or a mapping.
func (p *Param) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*p = Param{Name: n.Value}
		return nil
	}
	type plain Param
	var v plain
	if err := n.Decode(&v); err != nil {
		return err
	}
	*p = Param(v)
	return nil
}

// AspectDef is one aspect rule. Detect is a template expanded with the
// plugin parameters, regex-quoted.
type AspectDef struct {
	Detect     TemplateValue `yaml:"detect"`
	Rewrite    string        `yaml:"rewrite"`
	Substitute bool          `yaml:"substitute,omitempty"`
	Roles      []aspect.Role `yaml:"roles"`
}

// TemplateValue is a pattern.Template decodable from three YAML shapes:
//
//	root: '"%s%d/", base_url, year'        # compact string
//	root: ["%s%d/", base_url, year]        # format then parameter names
//	root: {format: "%s%d/", params: [base_url, year]}
type TemplateValue struct {
	pattern.Template
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TemplateValue) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		tmpl, err := pattern.ParseTemplate(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		t.Template = tmpl
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := n.Decode(&parts); err != nil {
			return err
		}
		if len(parts) == 0 {
			return fmt.Errorf("line %d: %w: empty template", n.Line, pattern.ErrBadTemplate)
		}
		t.Template = pattern.Template{Format: parts[0], Params: parts[1:]}
		return nil
	case yaml.MappingNode:
		var v struct {
			Format string   `yaml:"format"`
			Params []string `yaml:"params"`
		}
		if err := n.Decode(&v); err != nil {
			return err
		}
		t.Template = pattern.Template{Format: v.Format, Params: v.Params}
		return nil
	}
	return fmt.Errorf("line %d: template must be a string, list or mapping", n.Line)
}

// MarshalYAML writes the compact string form.
func (t TemplateValue) MarshalYAML() (any, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.String(), nil
}
