package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultRISTags maps RIS tags to field names.
var DefaultRISTags = map[string]string{
	"TI": FieldTitle,
	"T1": FieldTitle,
	"AU": FieldAuthor,
	"A1": FieldAuthor,
	"JO": FieldJournalTitle,
	"JF": FieldJournalTitle,
	"T2": FieldJournalTitle,
	"PY": FieldDate,
	"Y1": FieldDate,
	"DA": FieldDate,
	"VL": FieldVolume,
	"IS": FieldIssue,
	"SP": FieldStartPage,
	"EP": FieldEndPage,
	"DO": FieldDOI,
	"SN": FieldISSN,
	"PB": FieldPublisher,
	"AB": FieldAbstract,
	"N2": FieldAbstract,
	"UR": FieldURL,
}

// RISExtractor reads the first record of an RIS citation file.
type RISExtractor struct {
	// Tags maps RIS tags to field names; nil uses DefaultRISTags.
	Tags map[string]string
}

// Extract implements Extractor. Tags absent from the mapping are dropped.
// Lines that are not tagged continue the previous tag's value.
func (e *RISExtractor) Extract(r io.Reader) (Fields, error) {
	tags := e.Tags
	if tags == nil {
		tags = DefaultRISTags
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	fields := make(Fields)
	var (
		lastField string
		tagged    bool
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		tag, value, ok := splitRISLine(line)
		if !ok {
			if lastField != "" {
				vs := fields[lastField]
				vs[len(vs)-1] += " " + strings.TrimSpace(line)
			}
			continue
		}
		tagged = true
		if tag == "ER" {
			break
		}
		lastField = ""
		if name, ok := tags[tag]; ok && value != "" {
			fields.Add(name, value)
			lastField = name
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read RIS: %w", err)
	}
	if !tagged {
		return nil, fmt.Errorf("parse RIS: %w", ErrNoMetadata)
	}
	if len(fields) == 0 {
		return nil, ErrNoMetadata
	}
	return fields, nil
}

// splitRISLine parses "TY  - JOUR". The value may be absent ("ER  -").
func splitRISLine(line string) (tag, value string, ok bool) {
	line = strings.TrimPrefix(line, "\ufeff")
	if len(line) < 5 || line[2:5] != "  -" {
		return "", "", false
	}
	tag = line[:2]
	for i := 0; i < 2; i++ {
		c := tag[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return "", "", false
		}
	}
	return tag, strings.TrimSpace(line[5:]), true
}
