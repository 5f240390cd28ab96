package htmlfilter

import (
	"fmt"
	"time"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// Rule is the configuration form of one filter step.
//
//	- action: exclude
//	  tag: div
//	  attr: class
//	  value: advert
//	  match: contains
type Rule struct {
	// Action is "exclude" (default) or "include".
	Action string `yaml:"action,omitempty"`
	// Tag restricts the rule to one element name.
	Tag string `yaml:"tag,omitempty"`
	// Attr restricts the rule to elements carrying this attribute.
	Attr string `yaml:"attr,omitempty"`
	// Value is compared with the attribute according to Match.
	Value string `yaml:"value,omitempty"`
	// Match is "exact" (default), "contains", "prefix" or "regex".
	Match string `yaml:"match,omitempty"`
	// Comments selects comment nodes instead of elements.
	Comments bool `yaml:"comments,omitempty"`
}

// Predicate builds the node predicate the rule describes.
func (r Rule) Predicate() (Predicate, error) {
	if r.Comments {
		if r.Tag != "" || r.Attr != "" {
			return nil, fmt.Errorf("comments rule cannot name a tag or attribute")
		}
		return Comment(), nil
	}
	if r.Tag == "" && r.Attr == "" {
		return nil, fmt.Errorf("rule needs a tag, an attribute or comments")
	}

	var ps []Predicate
	if r.Tag != "" {
		ps = append(ps, Tag(r.Tag))
	}
	if r.Attr != "" {
		p, err := r.attrPredicate()
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	} else if r.Value != "" || r.Match != "" {
		return nil, fmt.Errorf("value and match need attr")
	}
	if len(ps) == 1 {
		return ps[0], nil
	}
	return And(ps...), nil
}

func (r Rule) attrPredicate() (Predicate, error) {
	switch r.Match {
	case "", "exact":
		return Attr(r.Attr, r.Value), nil
	case "contains":
		return AttrContains(r.Attr, r.Value), nil
	case "prefix":
		return AttrPrefix(r.Attr, r.Value), nil
	case "regex":
		re, err := pattern.CompileRegexp(r.Value, false, 50*time.Millisecond)
		if err != nil {
			return nil, err
		}
		return AttrRegex(r.Attr, re), nil
	}
	return nil, fmt.Errorf("unknown match %q", r.Match)
}

// Compile turns rules into a Filter. Include rules are combined with Or.
// Failures are *pattern.ConfigError naming the offending rule.
func Compile(rules []Rule) (*Filter, error) {
	f := &Filter{}
	var include []Predicate
	for i, r := range rules {
		field := fmt.Sprintf("hash_filter[%d]", i)
		p, err := r.Predicate()
		if err != nil {
			return nil, pattern.NewConfigError(field, err)
		}
		switch r.Action {
		case "", "exclude":
			f.Exclude = append(f.Exclude, p)
		case "include":
			include = append(include, p)
		default:
			return nil, pattern.Configf(field, "unknown action %q", r.Action)
		}
	}
	switch len(include) {
	case 0:
	case 1:
		f.Include = include[0]
	default:
		f.Include = Or(include...)
	}
	return f, nil
}
