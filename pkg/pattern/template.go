// Package pattern compiles parameterised root and pattern templates into
// matchers over resource identifiers.
package pattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// Template is a printf-style format plus the names of the configuration
// parameters that fill its verbs, in order. Only %s, %d and %% are accepted.
type Template struct {
	Format string
	Params []string
}

// IsZero reports whether the template is unset.
func (t Template) IsZero() bool {
	return t.Format == "" && len(t.Params) == 0
}

// String renders the template in its compact form: "format", p1, p2.
func (t Template) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	sb.WriteString(strings.ReplaceAll(t.Format, `"`, `\"`))
	sb.WriteByte('"')
	for _, p := range t.Params {
		sb.WriteString(", ")
		sb.WriteString(p)
	}
	return sb.String()
}

// ParseTemplate parses the compact template form
//
//	"%s%d/", base_url, year
//
// A string that does not start with a double quote is taken as a bare
// format with no parameters.
func ParseTemplate(s string) (Template, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Template{}, fmt.Errorf("%w: empty template", ErrBadTemplate)
	}
	if s[0] != '"' {
		return Template{Format: s}, nil
	}

	end := closingQuote(s)
	if end < 0 {
		return Template{}, fmt.Errorf("%w: unterminated format string in %q", ErrBadTemplate, s)
	}
	// Backslashes are kept verbatim so regex escapes survive; only \" is unescaped.
	t := Template{Format: strings.ReplaceAll(s[1:end], `\"`, `"`)}
	rest := strings.TrimSpace(s[end+1:])
	if rest == "" {
		return t, nil
	}
	if rest[0] != ',' {
		return Template{}, fmt.Errorf("%w: expected ',' after format in %q", ErrBadTemplate, s)
	}
	for _, name := range strings.Split(rest[1:], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			return Template{}, fmt.Errorf("%w: empty parameter name in %q", ErrBadTemplate, s)
		}
		t.Params = append(t.Params, name)
	}
	return t, nil
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// Expand substitutes params into the template. When quote is set, %s values
// are escaped so they match literally inside a regular expression.
func (t Template) Expand(params map[string]string, quote bool) (string, error) {
	var sb strings.Builder
	next := 0
	f := t.Format
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(f) {
			return "", fmt.Errorf("%w: trailing %% in %q", ErrBadTemplate, f)
		}
		i++
		verb := f[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		if verb != 's' && verb != 'd' {
			return "", fmt.Errorf("%w: unsupported verb %%%c in %q", ErrBadTemplate, verb, f)
		}
		if next >= len(t.Params) {
			return "", fmt.Errorf("%w: %q has more verbs than parameters", ErrBadTemplate, f)
		}
		name := t.Params[next]
		next++
		val, ok := params[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		if verb == 'd' {
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return "", fmt.Errorf("%w: parameter %s=%q is not an integer", ErrBadTemplate, name, val)
			}
			sb.WriteString(strconv.FormatInt(n, 10))
			continue
		}
		if quote {
			val = regexp2.Escape(val)
		}
		sb.WriteString(val)
	}
	if next != len(t.Params) {
		return "", fmt.Errorf("%w: %q has %d parameters but only %d verbs", ErrBadTemplate, f, len(t.Params), next)
	}
	return sb.String(), nil
}
