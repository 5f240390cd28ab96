package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// InventoryFormat is the layout of an inventory (listing) file.
type InventoryFormat int

const (
	// InventoryAuto picks the format from the file extension.
	InventoryAuto InventoryFormat = iota
	// InventoryLines has one identifier per line.
	InventoryLines
	// InventoryCSV has the identifier in one CSV column.
	InventoryCSV
	// InventoryParquet has the identifier in one Parquet column.
	InventoryParquet
)

// DetectInventoryFormat infers the format from name, ignoring a trailing
// .gz or .zst compression suffix.
func DetectInventoryFormat(name string) InventoryFormat {
	lower := strings.ToLower(name)
	lower = strings.TrimSuffix(lower, ".gz")
	lower = strings.TrimSuffix(lower, ".zst")
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return InventoryCSV
	case strings.HasSuffix(lower, ".parquet"):
		return InventoryParquet
	default:
		return InventoryLines
	}
}

// InventoryStore lists the identifiers recorded in an inventory file, such
// as a crawl's URL list or an S3 Inventory export. The file is re-read on
// every List so each scan sees its current contents.
type InventoryStore struct {
	// Path is the inventory file; .gz and .zst files are decompressed.
	Path string
	// Format of the file; InventoryAuto detects it from Path.
	Format InventoryFormat
	// KeyColumn is the CSV column holding the identifier.
	KeyColumn int
	// KeyField is the Parquet column holding the identifier (default "key").
	KeyField string
	// Prefix is prepended to every recorded key.
	Prefix string
	// Content serves Open; without it Open returns ErrUnsupported.
	Content Store
}

// List returns the recorded identifiers starting with root.
func (s *InventoryStore) List(ctx context.Context, root string) (Lister, error) {
	format := s.Format
	if format == InventoryAuto {
		format = DetectInventoryFormat(s.Path)
	}

	var (
		kr  keyReader
		err error
	)
	if format == InventoryParquet {
		kr, err = openParquetFile(s.Path, s.KeyField)
	} else {
		kr, err = openTextInventory(s.Path, format, s.KeyColumn)
	}
	if err != nil {
		return nil, err
	}
	return &filterLister{inner: &keyLister{keys: kr, prefix: s.Prefix}, root: root}, nil
}

// Open delegates to Content.
func (s *InventoryStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.Content == nil {
		return nil, fmt.Errorf("open %s: %w", id, ErrUnsupported)
	}
	return s.Content.Open(ctx, id)
}

// keyReader is the common shape of the line, CSV and Parquet readers.
type keyReader interface {
	// Next returns the next key. Returns io.EOF when done.
	Next() (string, error)
	Close() error
}

// keyLister adapts a keyReader to Lister.
type keyLister struct {
	keys   keyReader
	prefix string
}

func (l *keyLister) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := l.keys.Next()
	if err != nil {
		return "", err
	}
	return l.prefix + key, nil
}

func (l *keyLister) Close() error {
	return l.keys.Close()
}

func openTextInventory(path string, format InventoryFormat, keyCol int) (keyReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory %s: %w", path, err)
	}
	r, closers, err := decompress(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if format == InventoryCSV {
		return newCSVKeyReader(r, keyCol, closers), nil
	}
	return newLineKeyReader(r, closers), nil
}

// decompress wraps r according to the compression suffix of name. The
// returned closers include r and must be closed in reverse order.
func decompress(r io.ReadCloser, name string) (io.Reader, []io.Closer, error) {
	closers := []io.Closer{r}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gzr, append(closers, gzr), nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr, append(closers, zstdCloser{zr}), nil
	default:
		return r, closers, nil
	}
}

type zstdCloser struct {
	d *zstd.Decoder
}

func (c zstdCloser) Close() error {
	c.d.Close()
	return nil
}

func closeAll(closers []io.Closer) error {
	var firstErr error
	// Close in reverse order (decompressor before underlying stream)
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lineKeyReader reads one key per line, skipping blank lines and # comments.
type lineKeyReader struct {
	sc      *bufio.Scanner
	closers []io.Closer
}

func newLineKeyReader(r io.Reader, closers []io.Closer) *lineKeyReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &lineKeyReader{sc: sc, closers: closers}
}

func (r *lineKeyReader) Next() (string, error) {
	for r.sc.Scan() {
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := r.sc.Err(); err != nil {
		return "", fmt.Errorf("read inventory line: %w", err)
	}
	return "", io.EOF
}

func (r *lineKeyReader) Close() error {
	return closeAll(r.closers)
}

// csvKeyReader reads keys from one column of a CSV stream.
type csvKeyReader struct {
	csvReader *csv.Reader
	keyCol    int
	closers   []io.Closer
}

func newCSVKeyReader(r io.Reader, keyCol int, closers []io.Closer) *csvKeyReader {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1 // Variable field count
	csvr.LazyQuotes = true    // Handle malformed quotes
	return &csvKeyReader{csvReader: csvr, keyCol: keyCol, closers: closers}
}

func (r *csvKeyReader) Next() (string, error) {
	for {
		fields, err := r.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("read CSV row: %w", err)
		}
		// Skip rows with insufficient columns and empty keys
		if len(fields) <= r.keyCol || fields[r.keyCol] == "" {
			continue
		}
		return fields[r.keyCol], nil
	}
}

func (r *csvKeyReader) Close() error {
	return closeAll(r.closers)
}
