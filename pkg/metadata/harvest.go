package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/article"
	"github.com/eunmann/aspect-iter/pkg/logging"
)

// DefaultMaxBytes caps how much of a metadata resource is read.
const DefaultMaxBytes = 16 << 20

// Opener reads resource content by identifier. source.Store satisfies it.
type Opener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// RequestSource yields metadata requests until io.EOF. *article.Iterator
// satisfies it.
type RequestSource interface {
	NextRequest(ctx context.Context) (article.MetadataRequest, error)
}

// Record is one group together with the metadata extracted for it.
type Record struct {
	Group  *article.Group
	Fields Fields
}

// HarvestStats counts the outcome of a harvest.
type HarvestStats struct {
	Requests  int64
	Extracted int64
	Failed    int64
}

// Harvester extracts metadata for groups, reading content through Opener.
type Harvester struct {
	Opener    Opener
	Extractor Extractor
	// MaxBytes limits the bytes read per resource (DefaultMaxBytes if zero).
	MaxBytes int64
}

// Harvest extracts the fields of g's metadata resource. A group without one
// yields no fields and no error.
func (h *Harvester) Harvest(ctx context.Context, g *article.Group) (Fields, error) {
	if g.Metadata == "" {
		return nil, nil
	}
	rc, err := h.Opener.Open(ctx, g.Metadata)
	if err != nil {
		return nil, fmt.Errorf("open metadata %s: %w", g.Metadata, err)
	}
	defer rc.Close()

	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	fields, err := h.Extractor.Extract(io.LimitReader(rc, limit))
	if err != nil {
		return nil, fmt.Errorf("extract metadata %s: %w", g.Metadata, err)
	}
	return fields, nil
}

// Run drains src, extracting metadata for every request and passing each
// record to emit. Per-resource failures are logged and skipped; an error
// from src or emit stops the run.
func (h *Harvester) Run(ctx context.Context, src RequestSource, emit func(Record) error) (HarvestStats, error) {
	var stats HarvestStats
	log := logctx.FromContext(ctx)
	start := time.Now()

	for {
		req, err := src.NextRequest(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Requests++

		fields, err := h.Harvest(ctx, req.Group)
		if err != nil {
			stats.Failed++
			log.Warn().
				Str("key", req.Group.Key).
				Str("resource_id", req.ResourceID).
				Err(err).
				Msg("skipping metadata")
			continue
		}
		stats.Extracted++
		if err := emit(Record{Group: req.Group, Fields: fields}); err != nil {
			return stats, fmt.Errorf("emit record: %w", err)
		}
	}

	logging.HarvestComplete(log, time.Since(start)).
		Count("requests", stats.Requests).
		Count("extracted", stats.Extracted).
		Count("failed", stats.Failed).
		Log("metadata harvest complete")
	return stats, nil
}
