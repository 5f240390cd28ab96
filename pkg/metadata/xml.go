package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// DefaultXMLPaths maps JATS element paths to field names.
var DefaultXMLPaths = map[string]string{
	"article/front/article-meta/title-group/article-title":          FieldTitle,
	"article/front/article-meta/contrib-group/contrib/name/surname": FieldAuthor,
	"article/front/journal-meta/journal-title-group/journal-title":  FieldJournalTitle,
	"article/front/journal-meta/journal-title":                      FieldJournalTitle,
	"article/front/journal-meta/issn":                               FieldISSN,
	"article/front/journal-meta/publisher/publisher-name":           FieldPublisher,
	"article/front/article-meta/article-id[@pub-id-type='doi']":     FieldDOI,
	"article/front/article-meta/pub-date/year":                      FieldDate,
	"article/front/article-meta/volume":                             FieldVolume,
	"article/front/article-meta/issue":                              FieldIssue,
	"article/front/article-meta/fpage":                              FieldStartPage,
	"article/front/article-meta/lpage":                              FieldEndPage,
	"article/front/article-meta/abstract":                           FieldAbstract,
	"article/front/article-meta/self-uri/@href":                     FieldURL,
}

// XMLExtractor collects the text of elements, or the value of attributes,
// found at fixed paths from the document root.
//
// A path is a slash-separated list of element local names. A step may carry
// one attribute condition, article-id[@pub-id-type='doi'], and the last step
// may be @name to select an attribute instead of text.
type XMLExtractor struct {
	paths []xmlPath
}

type xmlStep struct {
	name      string
	condKey   string
	condValue string
}

type xmlPath struct {
	steps []xmlStep
	attr  string
	field string
}

// NewXMLExtractor compiles paths; nil uses DefaultXMLPaths. Failures are
// *pattern.ConfigError.
func NewXMLExtractor(paths map[string]string) (*XMLExtractor, error) {
	if paths == nil {
		paths = DefaultXMLPaths
	}
	x := &XMLExtractor{}
	for p, field := range paths {
		xp, err := parseXMLPath(p)
		if err != nil {
			return nil, pattern.NewConfigError("metadata.fields", fmt.Errorf("path %q: %w", p, err))
		}
		xp.field = field
		x.paths = append(x.paths, xp)
	}
	return x, nil
}

func parseXMLPath(p string) (xmlPath, error) {
	var xp xmlPath
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "@") {
			if i != len(parts)-1 || len(part) == 1 {
				return xp, errors.New("attribute selector must be the last step")
			}
			xp.attr = part[1:]
			continue
		}
		step, err := parseXMLStep(part)
		if err != nil {
			return xp, err
		}
		xp.steps = append(xp.steps, step)
	}
	if len(xp.steps) == 0 {
		return xp, errors.New("path selects no element")
	}
	return xp, nil
}

func parseXMLStep(part string) (xmlStep, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if part == "" {
			return xmlStep{}, errors.New("empty step")
		}
		return xmlStep{name: part}, nil
	}
	if !strings.HasSuffix(part, "]") || open == 0 {
		return xmlStep{}, fmt.Errorf("malformed step %q", part)
	}
	cond := part[open+1 : len(part)-1]
	key, value, ok := strings.Cut(cond, "=")
	if !ok || !strings.HasPrefix(key, "@") || len(value) < 2 {
		return xmlStep{}, fmt.Errorf("malformed condition %q", cond)
	}
	q := value[0]
	if (q != '\'' && q != '"') || value[len(value)-1] != q {
		return xmlStep{}, fmt.Errorf("condition value must be quoted in %q", cond)
	}
	return xmlStep{name: part[:open], condKey: key[1:], condValue: value[1 : len(value)-1]}, nil
}

type xmlFrame struct {
	name  string
	attrs []xml.Attr
	// capture holds indexes of paths whose text this element feeds.
	capture []int
	text    strings.Builder
}

// Extract implements Extractor.
func (x *XMLExtractor) Extract(r io.Reader) (Fields, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	fields := make(Fields)
	var stack []*xmlFrame
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			f := &xmlFrame{name: t.Name.Local, attrs: t.Attr}
			stack = append(stack, f)
			for i, p := range x.paths {
				if !p.matches(stack) {
					continue
				}
				if p.attr != "" {
					fields.Add(p.field, attrValue(t.Attr, p.attr))
					continue
				}
				f.capture = append(f.capture, i)
			}
		case xml.CharData:
			for _, f := range stack {
				if len(f.capture) > 0 {
					f.text.Write(t)
				}
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(f.capture) == 0 {
				continue
			}
			text := strings.Join(strings.Fields(f.text.String()), " ")
			for _, i := range f.capture {
				fields.Add(x.paths[i].field, text)
			}
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoMetadata
	}
	return fields, nil
}

func (p xmlPath) matches(stack []*xmlFrame) bool {
	if len(stack) != len(p.steps) {
		return false
	}
	for i, s := range p.steps {
		f := stack[i]
		if f.name != s.name {
			return false
		}
		if s.condKey != "" && attrValue(f.attrs, s.condKey) != s.condValue {
			return false
		}
	}
	return true
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
