package article

import (
	"context"
	"fmt"
	"io"

	"github.com/eunmann/aspect-iter/internal/logctx"
)

// MetadataRequest asks a metadata extractor to parse one resource on behalf
// of a group.
type MetadataRequest struct {
	Group      *Group
	ResourceID string
}

// Iterator yields the groups of one scan. The scan runs on the first call to
// Next and buffers every group, since a group is only complete once the
// stream is exhausted. A stream that is also an io.Closer is closed when
// the scan ends; a close failure fails an otherwise successful scan. An Iterator is single-use: once it returns io.EOF it
// keeps doing so, and a fresh scan needs a fresh Iterator.
type Iterator struct {
	engine  *Engine
	stream  Stream
	groups  []*Group
	pos     int
	scanned bool
	err     error
}

// NewIterator creates an iterator over stream with its own engine.
func NewIterator(cfg Config, stream Stream) (*Iterator, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Iterator{engine: e, stream: stream}, nil
}

// Next returns the next group, or io.EOF when the scan is exhausted. A
// stream failure is returned once and then sticks.
func (it *Iterator) Next(ctx context.Context) (*Group, error) {
	if it.err != nil {
		return nil, it.err
	}
	if !it.scanned {
		groups, err := it.engine.Process(ctx, it.stream)
		if c, ok := it.stream.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				if err == nil {
					err = fmt.Errorf("close stream: %w", cerr)
				} else {
					log := logctx.FromContext(ctx)
					log.Warn().Err(cerr).Msg("close stream after failed scan")
				}
			}
		}
		if err != nil {
			it.err = err
			return nil, err
		}
		it.groups = groups
		it.scanned = true
	}
	if it.pos >= len(it.groups) {
		it.groups = nil
		return nil, io.EOF
	}
	g := it.groups[it.pos]
	it.groups[it.pos] = nil
	it.pos++
	return g, nil
}

// NextRequest returns a metadata request for the next group that has a
// metadata resource. Groups without one are passed over.
func (it *Iterator) NextRequest(ctx context.Context) (MetadataRequest, error) {
	for {
		g, err := it.Next(ctx)
		if err != nil {
			return MetadataRequest{}, err
		}
		if g.Metadata != "" {
			return MetadataRequest{Group: g, ResourceID: g.Metadata}, nil
		}
	}
}

// Stats returns the engine counters for this scan.
func (it *Iterator) Stats() Stats {
	return it.engine.Stats()
}
