// Package export writes article records as JSON Lines or Parquet.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/aspect-iter/pkg/fileutil"
	"github.com/eunmann/aspect-iter/pkg/metadata"
)

// Row is the flat, serialisable form of one article record.
type Row struct {
	Scan      string   `json:"scan,omitempty" parquet:"scan"`
	Plugin    string   `json:"plugin" parquet:"plugin"`
	Key       string   `json:"key" parquet:"key"`
	FullText  string   `json:"full_text,omitempty" parquet:"full_text"`
	Metadata  string   `json:"metadata,omitempty" parquet:"metadata"`
	Members   []Member `json:"members" parquet:"members"`
	Resources []string `json:"resources" parquet:"resources"`
	Fields    []Field  `json:"fields,omitempty" parquet:"fields"`
}

// Member is one role of an article and the resource filling it.
type Member struct {
	Role     string `json:"role" parquet:"role"`
	Resource string `json:"resource" parquet:"resource"`
}

// Field is one extracted metadata field.
type Field struct {
	Name   string   `json:"name" parquet:"name"`
	Values []string `json:"values" parquet:"values"`
}

// NewRow flattens rec. Members and fields are sorted by name.
func NewRow(plugin, scanID string, rec metadata.Record) Row {
	g := rec.Group
	row := Row{
		Scan:      scanID,
		Plugin:    plugin,
		Key:       g.Key,
		FullText:  g.FullText,
		Metadata:  g.Metadata,
		Resources: append([]string(nil), g.Resources...),
	}
	for _, role := range g.Roles() {
		row.Members = append(row.Members, Member{Role: string(role), Resource: g.Members[role]})
	}
	for _, name := range rec.Fields.Names() {
		row.Fields = append(row.Fields, Field{Name: name, Values: rec.Fields[name]})
	}
	return row
}

// Writer consumes rows. Implementations are not safe for concurrent use
// unless stated.
type Writer interface {
	Write(row Row) error
	Close() error
}

// Aborter is a Writer whose output can be discarded instead of closed.
type Aborter interface {
	Abort() error
}

// JSONLWriter writes one JSON object per line.
type JSONLWriter struct {
	buf  *bufio.Writer
	enc  *json.Encoder
	file *fileutil.AtomicFile
}

// NewJSONLWriter writes to w. Close flushes but does not close w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{buf: buf, enc: enc}
}

// CreateJSONL writes to path. The file appears only once Close succeeds.
func CreateJSONL(path string) (*JSONLWriter, error) {
	f, err := fileutil.CreateAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}
	w := NewJSONLWriter(f)
	w.file = f
	return w, nil
}

// Write implements Writer.
func (w *JSONLWriter) Write(row Row) error {
	if err := w.enc.Encode(row); err != nil {
		return fmt.Errorf("encode row %s: %w", row.Key, err)
	}
	return nil
}

// Close implements Writer.
func (w *JSONLWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("flush jsonl: %w", err)
	}
	if w.file != nil {
		if err := w.file.Commit(); err != nil {
			return fmt.Errorf("commit jsonl file: %w", err)
		}
	}
	return nil
}

// Abort discards a file created by CreateJSONL. For other destinations it
// drops buffered rows.
func (w *JSONLWriter) Abort() error {
	w.buf.Reset(io.Discard)
	if w.file != nil {
		return w.file.Abort()
	}
	return nil
}

// ParquetWriter writes rows to a zstd-compressed Parquet file.
type ParquetWriter struct {
	pw   *parquet.GenericWriter[Row]
	file *fileutil.AtomicFile
}

// NewParquetWriter writes to w. Close finalises the file footer but does
// not close w.
func NewParquetWriter(w io.Writer) *ParquetWriter {
	return &ParquetWriter{
		pw: parquet.NewGenericWriter[Row](w, parquet.Compression(&parquet.Zstd)),
	}
}

// CreateParquet writes to path. The file appears only once Close succeeds.
func CreateParquet(path string) (*ParquetWriter, error) {
	f, err := fileutil.CreateAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	w := NewParquetWriter(f)
	w.file = f
	return w, nil
}

// Write implements Writer.
func (w *ParquetWriter) Write(row Row) error {
	if _, err := w.pw.Write([]Row{row}); err != nil {
		return fmt.Errorf("write parquet row %s: %w", row.Key, err)
	}
	return nil
}

// Close implements Writer.
func (w *ParquetWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if w.file != nil {
		if err := w.file.Commit(); err != nil {
			return fmt.Errorf("commit parquet file: %w", err)
		}
	}
	return nil
}

// Abort discards a file created by CreateParquet without writing the
// footer.
func (w *ParquetWriter) Abort() error {
	if w.file != nil {
		return w.file.Abort()
	}
	return nil
}

// MultiWriter fans rows out to several writers. It is safe for concurrent
// use.
type MultiWriter struct {
	mu      sync.Mutex
	writers []Writer
}

// Multi combines writers.
func Multi(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer. It stops at the first failing writer.
func (m *MultiWriter) Write(row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m *MultiWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Abort discards the output of writers that support it and closes the
// rest.
func (m *MultiWriter) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, w := range m.writers {
		var err error
		if a, ok := w.(Aborter); ok {
			err = a.Abort()
		} else {
			err = w.Close()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of writers.
func (m *MultiWriter) Len() int {
	return len(m.writers)
}

