package aspect

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

var (
	// ErrEmptyKey indicates a rewrite produced an empty group key.
	ErrEmptyKey = errors.New("rewrite produced an empty key")
	// ErrInvalidUTF8 indicates an identifier that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("identifier is not valid UTF-8")
	// ErrFrozen indicates AddAspect was called after the table was frozen.
	ErrFrozen = errors.New("aspect table is frozen")
)

// MalformedResourceError reports an identifier that could not be evaluated
// against the table. It is recoverable: callers skip the identifier.
type MalformedResourceError struct {
	ID  string
	Err error
}

func (e *MalformedResourceError) Error() string {
	return fmt.Sprintf("malformed resource %q: %v", e.ID, e.Err)
}

func (e *MalformedResourceError) Unwrap() error {
	return e.Err
}

// Rule recognises one aspect of an article.
type Rule struct {
	// Detect is the regular expression a resource identifier must contain a match for.
	Detect string
	// Rewrite builds the group key from the match using $n / ${name} references.
	Rewrite string
	// Substitute makes the key the identifier with its first match replaced by
	// Rewrite, instead of Rewrite alone.
	Substitute bool
	// Roles are assigned to every resource the rule recognises.
	Roles []Role

	re *regexp2.Regexp
	rw rewrite
}

// Aspect is the result of recognising a resource.
type Aspect struct {
	Key   string
	Roles []Role
	// Rule is the index of the rule that matched.
	Rule int
}

// Options control how detect patterns are compiled.
type Options struct {
	CaseInsensitive bool
	MatchTimeout    time.Duration
}

// Table is an ordered list of rules. Rules are tried in the order added and
// the first match wins. A Table must not be modified once scanning starts;
// after Freeze it is read-only and may be shared between engines.
type Table struct {
	opts   Options
	rules  []*Rule
	frozen bool
}

// NewTable creates an empty table.
func NewTable(opts Options) *Table {
	return &Table{opts: opts}
}

// AddAspect appends a rule. Failures are *pattern.ConfigError.
func (t *Table) AddAspect(detect, rewriteTmpl string, roles ...Role) error {
	return t.Add(Rule{Detect: detect, Rewrite: rewriteTmpl, Roles: roles})
}

// Add appends a fully specified rule. Failures are *pattern.ConfigError.
func (t *Table) Add(r Rule) error {
	field := fmt.Sprintf("aspects[%d]", len(t.rules))
	if t.frozen {
		return pattern.NewConfigError(field, ErrFrozen)
	}
	if len(r.Roles) == 0 {
		return pattern.Configf(field, "at least one role is required")
	}
	for _, role := range r.Roles {
		if role == "" {
			return pattern.Configf(field, "empty role name")
		}
	}
	if r.Detect == "" {
		return pattern.Configf(field+".detect", "detect pattern is required")
	}

	if r.Rewrite == "" && !r.Substitute {
		return pattern.Configf(field+".rewrite", "rewrite template is required")
	}

	re, err := pattern.CompileRegexp(r.Detect, t.opts.CaseInsensitive, t.opts.MatchTimeout)
	if err != nil {
		return pattern.NewConfigError(field+".detect", err)
	}
	rw, err := compileRewrite(r.Rewrite, re)
	if err != nil {
		return pattern.NewConfigError(field+".rewrite", fmt.Errorf("%w: %v", pattern.ErrBadTemplate, err))
	}

	rule := r
	rule.Roles = append([]Role(nil), r.Roles...)
	rule.re = re
	rule.rw = rw
	t.rules = append(t.rules, &rule)
	return nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() {
	t.frozen = true
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns copies of the configured rules in priority order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = Rule{
			Detect:     r.Detect,
			Rewrite:    r.Rewrite,
			Substitute: r.Substitute,
			Roles:      append([]Role(nil), r.Roles...),
		}
	}
	return out
}

// Derive recognises id. It returns ok=false when no rule matches, and a
// *MalformedResourceError when id cannot be evaluated. Derive is a pure
// function of id and safe for concurrent use.
func (t *Table) Derive(id string) (a Aspect, ok bool, err error) {
	if !utf8.ValidString(id) {
		return Aspect{}, false, &MalformedResourceError{ID: id, Err: ErrInvalidUTF8}
	}
	for i, r := range t.rules {
		m, err := r.re.FindStringMatch(id)
		if err != nil {
			return Aspect{}, false, &MalformedResourceError{ID: id, Err: err}
		}
		if m == nil {
			continue
		}

		key := r.rw.expand(m)
		if r.Substitute {
			key = id[:runeOffset(id, m.Index)] + key + id[runeOffset(id, m.Index+m.Length):]
		}
		if key == "" {
			return Aspect{}, false, &MalformedResourceError{ID: id, Err: ErrEmptyKey}
		}
		return Aspect{Key: key, Roles: append([]Role(nil), r.Roles...), Rule: i}, true, nil
	}
	return Aspect{}, false, nil
}

// runeOffset converts a rune index (as reported by regexp2) to a byte offset.
func runeOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}
