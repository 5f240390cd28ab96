package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// DefaultParquetKeyField is the column read when no key field is configured.
const DefaultParquetKeyField = "key"

// parquetKeyReader streams one string column of a Parquet file, row group
// by row group.
type parquetKeyReader struct {
	file     *parquet.File
	osFile   *os.File
	tempFile bool
	keyCol   int

	// Row group iteration state
	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

func openParquetFile(path, keyField string) (keyReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat inventory %s: %w", path, err)
	}
	r, err := newParquetKeyReader(f, info.Size(), keyField, false)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// openParquetStream buffers r to a temporary file, since Parquet needs
// random access. The temporary file is removed on Close.
func openParquetStream(r io.ReadCloser, keyField string) (keyReader, error) {
	tempFile, err := os.CreateTemp("", "aspect-inventory-*.parquet")
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		tempFile.Close()
		os.Remove(tempFile.Name())
	}

	written, err := io.Copy(tempFile, r)
	r.Close()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("buffer parquet data: %w", err)
	}

	pr, err := newParquetKeyReader(tempFile, written, keyField, true)
	if err != nil {
		cleanup()
		return nil, err
	}
	return pr, nil
}

func newParquetKeyReader(f *os.File, size int64, keyField string, temp bool) (*parquetKeyReader, error) {
	file, err := parquet.OpenFile(f, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	if keyField == "" {
		keyField = DefaultParquetKeyField
	}

	keyCol := -1
	for i, field := range file.Schema().Fields() {
		if field.Name() == keyField {
			keyCol = i
			break
		}
	}
	if keyCol < 0 {
		return nil, fmt.Errorf("parquet schema missing %q column", keyField)
	}

	return &parquetKeyReader{
		file:         file,
		osFile:       f,
		tempFile:     temp,
		keyCol:       keyCol,
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 1024), // Buffer 1024 rows at a time
	}, nil
}

// Next returns the next non-empty key.
func (r *parquetKeyReader) Next() (string, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.rowBuf[r.bufIdx]
			r.bufIdx++
			if key := r.keyOf(row); key != "" {
				return key, nil
			}
			continue
		}

		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("read parquet rows: %w", err)
			}
			// Current row group exhausted
			r.currentRows.Close()
			r.currentRows = nil
		}

		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return "", io.EOF
		}
		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

func (r *parquetKeyReader) keyOf(row parquet.Row) string {
	for _, val := range row {
		if val.Column() == r.keyCol && !val.IsNull() {
			return val.String()
		}
	}
	return ""
}

// Close releases the row reader and the underlying file.
func (r *parquetKeyReader) Close() error {
	if r.currentRows != nil {
		r.currentRows.Close()
		r.currentRows = nil
	}
	err := r.osFile.Close()
	if r.tempFile {
		os.Remove(r.osFile.Name())
	}
	return err
}
