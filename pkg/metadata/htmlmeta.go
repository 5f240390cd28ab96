package metadata

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// DefaultMetaNames maps <meta name=...> values (Highwire citation_* and
// Dublin Core) to field names. Names compare case-insensitively.
var DefaultMetaNames = map[string]string{
	"citation_title":            FieldTitle,
	"citation_author":           FieldAuthor,
	"citation_journal_title":    FieldJournalTitle,
	"citation_publication_date": FieldDate,
	"citation_date":             FieldDate,
	"citation_volume":           FieldVolume,
	"citation_issue":            FieldIssue,
	"citation_firstpage":        FieldStartPage,
	"citation_lastpage":         FieldEndPage,
	"citation_doi":              FieldDOI,
	"citation_issn":             FieldISSN,
	"citation_publisher":        FieldPublisher,
	"citation_abstract":         FieldAbstract,
	"citation_public_url":       FieldURL,
	"dc.title":                  FieldTitle,
	"dc.creator":                FieldAuthor,
	"dc.date":                   FieldDate,
	"dc.publisher":              FieldPublisher,
	"dc.description":            FieldAbstract,
}

// HTMLMetaExtractor reads <meta name="..." content="..."> tags of an HTML
// landing page.
type HTMLMetaExtractor struct {
	// Names maps meta names to field names; nil uses DefaultMetaNames.
	Names map[string]string
}

// Extract implements Extractor. Tokenising stops at </head> or <body>.
func (e *HTMLMetaExtractor) Extract(r io.Reader) (Fields, error) {
	names := make(map[string]string)
	src := e.Names
	if src == nil {
		src = DefaultMetaNames
	}
	for k, v := range src {
		names[strings.ToLower(k)] = v
	}

	fields := make(Fields)
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse html: %w", err)
			}
			return finish(fields)
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return finish(fields)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return finish(fields)
			case "meta":
				if !hasAttr {
					continue
				}
				key, content := metaAttrs(z)
				if field, ok := names[strings.ToLower(key)]; ok {
					fields.Add(field, strings.TrimSpace(content))
				}
			}
		}
	}
}

func metaAttrs(z *html.Tokenizer) (name, content string) {
	for {
		k, v, more := z.TagAttr()
		switch string(k) {
		case "name", "property":
			if name == "" {
				name = string(v)
			}
		case "content":
			content = string(v)
		}
		if !more {
			return name, content
		}
	}
}

func finish(fields Fields) (Fields, error) {
	if len(fields) == 0 {
		return nil, ErrNoMetadata
	}
	return fields, nil
}
