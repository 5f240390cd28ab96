package aspect

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// rewrite is a compiled replacement template. References follow
// java.util.regex.Matcher.appendReplacement: "$n" consumes digits greedily
// while the number still names a group, "${name}" names a group, and a
// backslash makes the next character literal.
type rewrite struct {
	segs []segment
}

type segment struct {
	lit   string
	group int // -1 for literal segments
}

func compileRewrite(tmpl string, re *regexp2.Regexp) (rewrite, error) {
	maxGroup := 0
	for _, n := range re.GetGroupNumbers() {
		if n > maxGroup {
			maxGroup = n
		}
	}

	var rw rewrite
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			rw.segs = append(rw.segs, segment{lit: lit.String(), group: -1})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '\\':
			i++
			if i >= len(tmpl) {
				return rewrite{}, fmt.Errorf("character to be escaped is missing in %q", tmpl)
			}
			lit.WriteByte(tmpl[i])
		case '$':
			i++
			if i >= len(tmpl) {
				return rewrite{}, fmt.Errorf("illegal group reference: group index is missing in %q", tmpl)
			}
			var ref int
			if tmpl[i] == '{' {
				end := strings.IndexByte(tmpl[i:], '}')
				if end < 0 {
					return rewrite{}, fmt.Errorf("named group reference is missing trailing '}' in %q", tmpl)
				}
				name := tmpl[i+1 : i+end]
				ref = re.GroupNumberFromName(name)
				if name == "" || ref < 0 {
					return rewrite{}, fmt.Errorf("no group with name {%s} in %q", name, tmpl)
				}
				i += end
			} else {
				if tmpl[i] < '0' || tmpl[i] > '9' {
					return rewrite{}, fmt.Errorf("illegal group reference in %q", tmpl)
				}
				ref = int(tmpl[i] - '0')
				if ref > maxGroup {
					return rewrite{}, fmt.Errorf("no group %d in %q", ref, tmpl)
				}
				for i+1 < len(tmpl) && tmpl[i+1] >= '0' && tmpl[i+1] <= '9' {
					next := ref*10 + int(tmpl[i+1]-'0')
					if next > maxGroup {
						break
					}
					ref = next
					i++
				}
			}
			flush()
			rw.segs = append(rw.segs, segment{group: ref})
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return rw, nil
}

// expand renders the template against m. Groups that did not participate in
// the match contribute nothing.
func (rw rewrite) expand(m *regexp2.Match) string {
	var sb strings.Builder
	for _, s := range rw.segs {
		if s.group < 0 {
			sb.WriteString(s.lit)
			continue
		}
		if g := m.GroupByNumber(s.group); g != nil && len(g.Captures) > 0 {
			sb.WriteString(g.String())
		}
	}
	return sb.String()
}
