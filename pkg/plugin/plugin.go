package plugin

import (
	"context"
	"fmt"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/article"
	"github.com/eunmann/aspect-iter/pkg/aspect"
	"github.com/eunmann/aspect-iter/pkg/htmlfilter"
	"github.com/eunmann/aspect-iter/pkg/metadata"
	"github.com/eunmann/aspect-iter/pkg/pattern"
	"github.com/eunmann/aspect-iter/pkg/source"
)

// Plugin is a Definition compiled against concrete parameter values. It is
// immutable and may drive any number of concurrent scans.
type Plugin struct {
	Name string
	// Params are the effective values, defaults included.
	Params  map[string]string
	Matcher *pattern.Matcher
	Table   *aspect.Table
	// Engine is the grouping configuration shared by every scan.
	Engine    article.Config
	Extractor metadata.Extractor
	// HashFilter is nil when the plugin declares no filter rules.
	HashFilter *htmlfilter.Filter
}

// Compile validates d and binds it to params. Every failure is a
// *pattern.ConfigError.
func Compile(d Definition, params map[string]string) (*Plugin, error) {
	if d.Name == "" {
		return nil, pattern.Configf("name", "plugin name is required")
	}
	values, err := effectiveParams(d.Params, params)
	if err != nil {
		return nil, err
	}

	p := &Plugin{Name: d.Name, Params: values}
	p.Matcher, err = pattern.Compile(pattern.Spec{
		Roots:           templates(d.Roots),
		Pattern:         d.Pattern.Template,
		Exclude:         d.Exclude.Template,
		CaseInsensitive: d.CaseInsensitive,
		MatchTimeout:    d.MatchTimeout,
	}, values)
	if err != nil {
		return nil, err
	}

	if p.Table, err = buildTable(d, values); err != nil {
		return nil, err
	}

	collision, err := article.ParseCollisionPolicy(d.Collision)
	if err != nil {
		return nil, pattern.NewConfigError("collision", err)
	}
	for i, role := range d.FullText {
		if role == "" {
			return nil, pattern.Configf(fmt.Sprintf("full_text[%d]", i), "empty role name")
		}
	}
	p.Engine = article.Config{
		Table:        p.Table,
		Matcher:      p.Matcher,
		FullText:     d.FullText,
		Derived:      d.DerivedRoles,
		MetadataRole: d.MetadataRole,
		Collision:    collision,
	}
	if err := p.Engine.Validate(); err != nil {
		return nil, err
	}

	var mc metadata.Config
	if d.Metadata != nil {
		mc = *d.Metadata
	}
	if p.Extractor, err = mc.NewExtractor(); err != nil {
		return nil, err
	}

	if len(d.HashFilter) > 0 {
		if p.HashFilter, err = htmlfilter.Compile(d.HashFilter); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func effectiveParams(declared []Param, given map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(given)+len(declared))
	for k, v := range given {
		values[k] = v
	}
	seen := make(map[string]bool, len(declared))
	for i, prm := range declared {
		field := fmt.Sprintf("params[%d]", i)
		if prm.Name == "" {
			return nil, pattern.Configf(field, "parameter name is required")
		}
		if seen[prm.Name] {
			return nil, pattern.Configf(field, "parameter %s declared twice", prm.Name)
		}
		seen[prm.Name] = true
		if _, ok := values[prm.Name]; ok {
			continue
		}
		if prm.Default == "" {
			return nil, pattern.NewConfigError(field, fmt.Errorf("%w: %s", pattern.ErrMissingParam, prm.Name))
		}
		values[prm.Name] = prm.Default
	}
	return values, nil
}

func templates(vs []TemplateValue) []pattern.Template {
	out := make([]pattern.Template, len(vs))
	for i, v := range vs {
		out[i] = v.Template
	}
	return out
}

func buildTable(d Definition, params map[string]string) (*aspect.Table, error) {
	if len(d.Aspects) == 0 {
		return nil, pattern.Configf("aspects", "at least one aspect rule is required")
	}
	t := aspect.NewTable(aspect.Options{
		CaseInsensitive: d.CaseInsensitive,
		MatchTimeout:    d.MatchTimeout,
	})
	for i, a := range d.Aspects {
		detect, err := a.Detect.Expand(params, true)
		if err != nil {
			return nil, pattern.NewConfigError(fmt.Sprintf("aspects[%d].detect", i), err)
		}
		err = t.Add(aspect.Rule{
			Detect:     detect,
			Rewrite:    a.Rewrite,
			Substitute: a.Substitute,
			Roles:      a.Roles,
		})
		if err != nil {
			return nil, err
		}
	}
	t.Freeze()
	return t, nil
}

// NewIterator starts a scan of store: every root is listed in turn and the
// identifiers feed a fresh grouping engine.
func (p *Plugin) NewIterator(ctx context.Context, store source.Store) (*article.Iterator, error) {
	roots := p.Matcher.Roots()
	log := logctx.FromContext(ctx)
	log.Debug().
		Strs("roots", roots).
		Int("aspects", p.Table.Len()).
		Msg("starting scan")
	return article.NewIterator(p.Engine, source.ListRoots(store, roots))
}
