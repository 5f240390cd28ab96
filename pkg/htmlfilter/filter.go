// Package htmlfilter removes or keeps parts of an HTML document before it is
// hashed or compared, so that volatile page furniture (ads, session links,
// navigation) does not make identical articles look different.
package htmlfilter

import (
	"fmt"
	"io"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/net/html"
)

// Predicate selects nodes.
type Predicate func(n *html.Node) bool

// Tag matches elements with the given tag name, case-insensitively.
func Tag(name string) Predicate {
	name = strings.ToLower(name)
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

// Attr matches elements whose attribute key equals value. An empty value
// matches any element carrying the attribute.
func Attr(key, value string) Predicate {
	return attrPredicate(key, func(v string) bool {
		return value == "" || v == value
	})
}

// AttrContains matches elements whose attribute key contains substr.
func AttrContains(key, substr string) Predicate {
	return attrPredicate(key, func(v string) bool {
		return strings.Contains(v, substr)
	})
}

// AttrPrefix matches elements whose attribute key starts with prefix.
func AttrPrefix(key, prefix string) Predicate {
	return attrPredicate(key, func(v string) bool {
		return strings.HasPrefix(v, prefix)
	})
}

// AttrRegex matches elements whose attribute key contains a match for re.
// A regex evaluation error counts as no match.
func AttrRegex(key string, re *regexp2.Regexp) Predicate {
	return attrPredicate(key, func(v string) bool {
		ok, err := re.MatchString(v)
		return err == nil && ok
	})
}

func attrPredicate(key string, test func(string) bool) Predicate {
	key = strings.ToLower(key)
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == key {
				return test(a.Val)
			}
		}
		return false
	}
}

// Comment matches comment nodes.
func Comment() Predicate {
	return func(n *html.Node) bool {
		return n.Type == html.CommentNode
	}
}

// Any matches every element.
func Any() Predicate {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode
	}
}

// And matches when every predicate matches.
func And(ps ...Predicate) Predicate {
	return func(n *html.Node) bool {
		for _, p := range ps {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

// Or matches when at least one predicate matches.
func Or(ps ...Predicate) Predicate {
	return func(n *html.Node) bool {
		for _, p := range ps {
			if p(n) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(n *html.Node) bool {
		return !p(n)
	}
}

// Exclude removes every node matching p, with its subtree, from doc.
func Exclude(doc *html.Node, p Predicate) {
	var next *html.Node
	for c := doc.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if p(c) {
			doc.RemoveChild(c)
			continue
		}
		Exclude(c, p)
	}
}

// Include returns a new document holding only the outermost nodes matching
// p, in document order. doc is left without them.
func Include(doc *html.Node, p Predicate) *html.Node {
	var matched []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if p(c) {
				matched = append(matched, c)
				continue
			}
			walk(c)
		}
	}
	walk(doc)

	out := &html.Node{Type: html.DocumentNode}
	for _, n := range matched {
		n.Parent.RemoveChild(n)
		out.AppendChild(n)
	}
	return out
}

// Filter is a reusable include/exclude pipeline. It is safe for concurrent
// use once built.
type Filter struct {
	// Include, when set, reduces the document to the subtrees it matches.
	Include Predicate
	// Exclude removes matching subtrees after Include is applied.
	Exclude []Predicate
}

// Apply parses r, filters it and renders the result to w.
func (f *Filter) Apply(r io.Reader, w io.Writer) error {
	doc, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	if f.Include != nil {
		doc = Include(doc, f.Include)
	}
	for _, p := range f.Exclude {
		Exclude(doc, p)
	}
	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
