// Package metadata extracts bibliographic fields from an article's metadata
// resource (RIS citation, XML such as JATS, or an HTML landing page).
package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// Well-known field names produced by the default mappings.
const (
	FieldTitle        = "title"
	FieldAuthor       = "author"
	FieldJournalTitle = "journal.title"
	FieldDate         = "date"
	FieldVolume       = "volume"
	FieldIssue        = "issue"
	FieldStartPage    = "start_page"
	FieldEndPage      = "end_page"
	FieldDOI          = "doi"
	FieldISSN         = "issn"
	FieldPublisher    = "publisher"
	FieldAbstract     = "abstract"
	FieldURL          = "url"
)

// ErrNoMetadata is returned when a resource parses but yields no fields.
var ErrNoMetadata = errors.New("no metadata found")

// Fields holds extracted values. A field may repeat (several authors).
type Fields map[string][]string

// Add appends a value, ignoring empty ones.
func (f Fields) Add(name, value string) {
	if value == "" {
		return
	}
	f[name] = append(f[name], value)
}

// Get returns the first value of name, or "".
func (f Fields) Get(name string) string {
	if vs := f[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Names returns the field names, sorted.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Extractor parses one metadata resource.
type Extractor interface {
	Extract(r io.Reader) (Fields, error)
}

// Format names an extractor in configuration.
type Format string

const (
	FormatRIS  Format = "ris"
	FormatXML  Format = "xml"
	FormatHTML Format = "html"
	FormatAuto Format = "auto"
)

// Config selects and tunes an extractor.
type Config struct {
	// Format is ris, xml, html or auto (sniff the content). Default auto.
	Format Format `yaml:"format,omitempty"`
	// Fields maps source names (RIS tags, XML paths, meta names) to field
	// names. When set it replaces the format's default mapping.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// NewExtractor builds the configured extractor. Failures are
// *pattern.ConfigError.
func (c Config) NewExtractor() (Extractor, error) {
	switch c.Format {
	case FormatRIS:
		return &RISExtractor{Tags: c.Fields}, nil
	case FormatXML:
		return NewXMLExtractor(c.Fields)
	case FormatHTML:
		return &HTMLMetaExtractor{Names: c.Fields}, nil
	case FormatAuto, "":
		if len(c.Fields) > 0 {
			return nil, pattern.Configf("metadata.fields", "field mapping needs an explicit format")
		}
		return NewAutoExtractor(), nil
	}
	return nil, pattern.Configf("metadata.format", "unknown extractor %q", c.Format)
}

// AutoExtractor sniffs the start of the content and delegates to the
// matching default extractor.
type AutoExtractor struct {
	ris  *RISExtractor
	xml  *XMLExtractor
	html *HTMLMetaExtractor
}

// NewAutoExtractor creates an extractor using the default mappings.
func NewAutoExtractor() *AutoExtractor {
	x, _ := NewXMLExtractor(nil)
	return &AutoExtractor{ris: &RISExtractor{}, xml: x, html: &HTMLMetaExtractor{}}
}

// Extract implements Extractor.
func (a *AutoExtractor) Extract(r io.Reader) (Fields, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("sniff content: %w", err)
	}
	return a.pick(head).Extract(br)
}

func (a *AutoExtractor) pick(head []byte) Extractor {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	lower := bytes.ToLower(trimmed)
	switch {
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")):
		return a.html
	case bytes.HasPrefix(trimmed, []byte("<")):
		return a.xml
	default:
		return a.ris
	}
}
