package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/aspect-iter/pkg/source"
)

// newS3Client is replaced in tests.
var newS3Client = func(ctx context.Context) (source.S3API, error) {
	c, err := source.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// sourceOptions describes the content store to scan.
type sourceOptions struct {
	spec           string
	urlPrefix      string
	keyColumn      int
	expandArchives bool
	content        string
}

func (o *sourceOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.spec, "source", "", "content store: dir:<path>, list:<file>, csv:<file>, parquet:<file>, s3://bucket/prefix or s3inv:<manifest uri>")
	f.StringVar(&o.urlPrefix, "url-prefix", "", "identifier prefix for dir, list and inventory sources")
	f.IntVar(&o.keyColumn, "key-column", 1, "CSV column holding the identifier")
	f.BoolVar(&o.expandArchives, "expand-archives", false, "list members of .zip files in dir sources")
	f.StringVar(&o.content, "content", "", "local mirror that serves content for list and inventory sources")
}

// open builds the store named by the --source spec.
func (o *sourceOptions) open(ctx context.Context) (source.Store, error) {
	if o.spec == "" {
		return nil, errors.New("--source is required")
	}

	if strings.HasPrefix(o.spec, "s3://") {
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return source.NewS3Store(client), nil
	}

	kind, arg, ok := strings.Cut(o.spec, ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("--source %q: want <kind>:<location>", o.spec)
	}

	var content source.Store
	if o.content != "" {
		content = source.NewDirStore(o.content, o.urlPrefix, o.expandArchives)
	}
	inventory := func(format source.InventoryFormat) *source.InventoryStore {
		return &source.InventoryStore{
			Path:      arg,
			Format:    format,
			KeyColumn: o.keyColumn,
			Prefix:    o.urlPrefix,
			Content:   content,
		}
	}

	switch kind {
	case "dir":
		return source.NewDirStore(arg, o.urlPrefix, o.expandArchives), nil
	case "list":
		return inventory(source.InventoryLines), nil
	case "csv":
		return inventory(source.InventoryCSV), nil
	case "parquet":
		return inventory(source.InventoryParquet), nil
	case "s3inv":
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return source.NewS3InventoryStore(client, arg), nil
	default:
		return nil, fmt.Errorf("--source %q: unknown kind %q", o.spec, kind)
	}
}
