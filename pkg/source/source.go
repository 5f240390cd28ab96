// Package source lists and opens stored resources. Each Store is a view of
// one content store: a local mirror, an object-key inventory, or an S3 bucket.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/aspect-iter/internal/logctx"
)

// ArchiveSeparator separates a container identifier from a member path:
// "http://host/issue.zip!/article/1.pdf" is member "article/1.pdf" of
// "http://host/issue.zip".
const ArchiveSeparator = "!/"

var (
	// ErrNotFound indicates the identifier names no stored resource.
	ErrNotFound = errors.New("resource not found")
	// ErrUnsupported indicates the store cannot perform the operation.
	ErrUnsupported = errors.New("operation not supported by store")
)

// Lister yields resource identifiers. Next returns io.EOF when done.
type Lister interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Store lists resources under a root scope and opens them for reading.
type Store interface {
	// List returns every identifier starting with root, in store order.
	List(ctx context.Context, root string) (Lister, error)
	// Open returns the content of one resource.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// SplitArchiveID splits "container!/member". ok is false when id does not
// name an archive member.
func SplitArchiveID(id string) (container, member string, ok bool) {
	i := strings.Index(id, ArchiveSeparator)
	if i < 0 {
		return id, "", false
	}
	return id[:i], id[i+len(ArchiveSeparator):], true
}

// JoinArchiveID builds the identifier of member inside container.
func JoinArchiveID(container, member string) string {
	return container + ArchiveSeparator + member
}

// SliceLister yields a fixed list of identifiers.
type SliceLister struct {
	ids []string
	pos int
}

// NewSliceLister returns a lister over ids.
func NewSliceLister(ids []string) *SliceLister {
	return &SliceLister{ids: ids}
}

// Next returns the next identifier.
func (l *SliceLister) Next(ctx context.Context) (string, error) {
	if l.pos >= len(l.ids) {
		return "", io.EOF
	}
	id := l.ids[l.pos]
	l.pos++
	return id, nil
}

// Close is a no-op.
func (l *SliceLister) Close() error {
	return nil
}

// filterLister drops identifiers that do not start with root.
type filterLister struct {
	inner Lister
	root  string
}

func (l *filterLister) Next(ctx context.Context) (string, error) {
	for {
		id, err := l.inner.Next(ctx)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(id, l.root) {
			return id, nil
		}
	}
}

func (l *filterLister) Close() error {
	return l.inner.Close()
}

// rootsLister lists several roots of one store in turn, opening each only
// when the previous one is exhausted.
type rootsLister struct {
	store   Store
	roots   []string
	current Lister
	next    int
}

// ListRoots returns a lister over every root of store, in order.
func ListRoots(store Store, roots []string) Lister {
	return &rootsLister{store: store, roots: roots}
}

func (l *rootsLister) Next(ctx context.Context) (string, error) {
	for {
		if l.current == nil {
			if l.next >= len(l.roots) {
				return "", io.EOF
			}
			root := l.roots[l.next]
			l.next++
			log := logctx.FromContext(logctx.WithRoot(ctx, root))
			log.Debug().Msg("listing root")
			lister, err := l.store.List(ctx, root)
			if err != nil {
				return "", fmt.Errorf("list %s: %w", root, err)
			}
			l.current = lister
		}

		id, err := l.current.Next(ctx)
		if errors.Is(err, io.EOF) {
			if cerr := l.current.Close(); cerr != nil {
				return "", fmt.Errorf("close lister: %w", cerr)
			}
			l.current = nil
			continue
		}
		return id, err
	}
}

func (l *rootsLister) Close() error {
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}
