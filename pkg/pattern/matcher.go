package pattern

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single regular-expression evaluation.
const DefaultMatchTimeout = 100 * time.Millisecond

// Spec describes a matcher before parameter substitution.
type Spec struct {
	// Roots are URL-prefix templates; a candidate must start with one of them.
	Roots []Template
	// Pattern is a regular-expression template a candidate must contain a match for.
	Pattern Template
	// Exclude is an optional regular-expression template; matching candidates are rejected.
	Exclude Template
	// CaseInsensitive applies to both root prefixes and regular expressions.
	CaseInsensitive bool
	// MatchTimeout bounds each regex evaluation (DefaultMatchTimeout if zero).
	MatchTimeout time.Duration
}

// Matcher decides whether a resource identifier belongs to a scan.
// It is immutable and safe for concurrent use.
type Matcher struct {
	roots   []string
	pattern *regexp2.Regexp
	exclude *regexp2.Regexp
	fold    bool
}

// Compile expands spec with params and compiles it. Every failure is a *ConfigError.
func Compile(spec Spec, params map[string]string) (*Matcher, error) {
	if len(spec.Roots) == 0 {
		return nil, NewConfigError("roots", errors.New("at least one root template is required"))
	}
	if spec.Pattern.IsZero() {
		return nil, NewConfigError("pattern", errors.New("pattern template is required"))
	}

	m := &Matcher{fold: spec.CaseInsensitive}
	for i, rt := range spec.Roots {
		root, err := rt.Expand(params, false)
		if err != nil {
			return nil, NewConfigError(fmt.Sprintf("roots[%d]", i), err)
		}
		if root == "" {
			return nil, Configf(fmt.Sprintf("roots[%d]", i), "root expands to an empty string")
		}
		m.roots = append(m.roots, root)
	}

	var err error
	m.pattern, err = compileTemplate("pattern", spec.Pattern, params, spec.CaseInsensitive, spec.MatchTimeout)
	if err != nil {
		return nil, err
	}
	if !spec.Exclude.IsZero() {
		m.exclude, err = compileTemplate("exclude", spec.Exclude, params, spec.CaseInsensitive, spec.MatchTimeout)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func compileTemplate(field string, t Template, params map[string]string, fold bool, timeout time.Duration) (*regexp2.Regexp, error) {
	expr, err := t.Expand(params, true)
	if err != nil {
		return nil, NewConfigError(field, err)
	}
	re, err := CompileRegexp(expr, fold, timeout)
	if err != nil {
		return nil, NewConfigError(field, err)
	}
	return re, nil
}

// CompileRegexp compiles a Perl-style expression with the given options.
// The error wraps ErrBadRegexp.
func CompileRegexp(expr string, caseInsensitive bool, timeout time.Duration) (*regexp2.Regexp, error) {
	opts := regexp2.None
	if caseInsensitive {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadRegexp, expr, err)
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return re, nil
}

// Roots returns the expanded root prefixes.
func (m *Matcher) Roots() []string {
	out := make([]string, len(m.roots))
	copy(out, m.roots)
	return out
}

// UnderRoot reports whether id starts with one of the roots.
func (m *Matcher) UnderRoot(id string) bool {
	for _, root := range m.roots {
		if strings.HasPrefix(id, root) || (m.fold && hasPrefixFold(id, root)) {
			return true
		}
	}
	return false
}

// hasPrefixFold is strings.HasPrefix under simple Unicode case folding.
// Case variants may differ in encoded length, so it walks runes.
func hasPrefixFold(s, prefix string) bool {
	for _, pr := range prefix {
		if s == "" {
			return false
		}
		sr, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if sr != pr && !strings.EqualFold(string(sr), string(pr)) {
			return false
		}
	}
	return true
}

// Match reports whether id is under a root, matches the pattern and is not
// excluded. A non-nil error means the regex engine could not evaluate id.
func (m *Matcher) Match(id string) (bool, error) {
	if !m.UnderRoot(id) {
		return false, nil
	}
	ok, err := m.pattern.MatchString(id)
	if err != nil || !ok {
		return false, err
	}
	if m.exclude == nil {
		return true, nil
	}
	excluded, err := m.exclude.MatchString(id)
	if err != nil {
		return false, err
	}
	return !excluded, nil
}

// Matches is Match with evaluation errors treated as a non-match.
func (m *Matcher) Matches(id string) bool {
	ok, err := m.Match(id)
	return ok && err == nil
}
