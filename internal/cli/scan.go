package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/article"
	"github.com/eunmann/aspect-iter/pkg/catalog"
	"github.com/eunmann/aspect-iter/pkg/export"
	"github.com/eunmann/aspect-iter/pkg/logging"
	"github.com/eunmann/aspect-iter/pkg/metadata"
	"github.com/eunmann/aspect-iter/pkg/plugin"
	"github.com/eunmann/aspect-iter/pkg/source"
)

type scanOptions struct {
	plugins     pluginOptions
	source      sourceOptions
	extract     bool
	jsonl       string
	parquet     string
	db          string
	concurrency int
}

func newScanCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Group the resources of a content store into articles",
		Long: `Lists every root of each selected plugin, groups the in-scope resources
into articles and writes one record per article. With no output flags the
records are written to stdout as JSON Lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), &o, cmd.OutOrStdout())
		},
	}
	o.plugins.register(cmd)
	o.source.register(cmd)
	f := cmd.Flags()
	f.BoolVar(&o.extract, "extract", false, "extract metadata fields for every article")
	f.StringVar(&o.jsonl, "jsonl", "", "write records as JSON Lines to this file (- for stdout)")
	f.StringVar(&o.parquet, "parquet", "", "write records to this Parquet file")
	f.StringVar(&o.db, "db", "", "record scans in this SQLite catalog")
	f.IntVar(&o.concurrency, "concurrency", 4, "plugins scanned in parallel")
	return cmd
}

// scanner runs one plugin scan at a time against a shared store and sinks.
type scanner struct {
	store   source.Store
	out     *export.MultiWriter
	catalog *catalog.Catalog
	extract bool
}

func runScan(ctx context.Context, o *scanOptions, stdout io.Writer) (err error) {
	if o.concurrency < 1 {
		return fmt.Errorf("--concurrency must be positive, got %d", o.concurrency)
	}
	plugins, err := o.plugins.compile()
	if err != nil {
		return err
	}
	store, err := o.source.open(ctx)
	if err != nil {
		return err
	}

	s := &scanner{store: store, extract: o.extract}
	if s.out, err = o.openWriters(stdout); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.out.Abort()
			return
		}
		err = s.out.Close()
	}()

	if o.db != "" {
		s.catalog, err = catalog.Open(ctx, catalog.DefaultConfig(o.db))
		if err != nil {
			return err
		}
		defer s.catalog.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, p := range plugins {
		g.Go(func() error {
			if err := s.scan(ctx, p); err != nil {
				return fmt.Errorf("scan %s: %w", p.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *scanOptions) openWriters(stdout io.Writer) (*export.MultiWriter, error) {
	var writers []export.Writer

	switch o.jsonl {
	case "":
	case "-":
		writers = append(writers, export.NewJSONLWriter(stdout))
	default:
		w, err := export.CreateJSONL(o.jsonl)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if o.parquet != "" {
		w, err := export.CreateParquet(o.parquet)
		if err != nil {
			export.Multi(writers...).Abort()
			return nil, err
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 && o.db == "" {
		writers = append(writers, export.NewJSONLWriter(stdout))
	}
	return export.Multi(writers...), nil
}

func (s *scanner) scan(ctx context.Context, p *plugin.Plugin) (err error) {
	start := time.Now()
	scanID := ulid.Make().String()
	if s.catalog != nil {
		if scanID, err = s.catalog.BeginScan(ctx, p.Name, p.Params); err != nil {
			return err
		}
	}
	ctx = logctx.WithScan(logctx.WithPlugin(ctx, p.Name), scanID)
	log := logctx.FromContext(ctx)

	var it *article.Iterator
	if s.catalog != nil {
		defer func() {
			if err == nil {
				return
			}
			var stats article.Stats
			if it != nil {
				stats = it.Stats()
			}
			// The scan context may already be cancelled.
			if ferr := s.catalog.FailScan(context.WithoutCancel(ctx), scanID, stats, err); ferr != nil {
				log.Warn().Err(ferr).Msg("record failed scan")
			}
		}()
	}

	it, err = p.NewIterator(ctx, s.store)
	if err != nil {
		return err
	}

	var harvest *metadata.Harvester
	if s.extract {
		harvest = &metadata.Harvester{Opener: s.store, Extractor: p.Extractor}
	}
	var hs metadata.HarvestStats

	for {
		g, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		rec := metadata.Record{Group: g}
		if harvest != nil && g.Metadata != "" {
			hs.Requests++
			rec.Fields, err = harvest.Harvest(ctx, g)
			if err != nil {
				hs.Failed++
				log.Warn().Err(err).Str("key", g.Key).Str("resource_id", g.Metadata).Msg("metadata extraction failed")
			} else {
				hs.Extracted++
			}
		}

		if err := s.out.Write(export.NewRow(p.Name, scanID, rec)); err != nil {
			return err
		}
		if s.catalog != nil {
			if err := s.catalog.PutRecord(ctx, scanID, rec); err != nil {
				return err
			}
		}
	}

	stats := it.Stats()
	if s.catalog != nil {
		if err := s.catalog.FinishScan(ctx, scanID, stats); err != nil {
			return err
		}
	}

	ev := logging.ScanComplete(log, time.Since(start)).
		Count("seen", stats.Seen).
		Count("out_of_scope", stats.OutOfScope).
		Count("unrecognized", stats.Unrecognized).
		Count("malformed", stats.Malformed).
		Count("collisions", stats.Collisions).
		Count("groups", stats.Groups).
		Rate("seen", stats.Seen)
	if harvest != nil {
		ev.Count("metadata_requests", hs.Requests).
			Count("metadata_extracted", hs.Extracted).
			Count("metadata_failed", hs.Failed)
	}
	ev.Log("scan complete")
	return nil
}
