package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DirStore is a local mirror of crawled content. The file at
// <Dir>/<rel> has identifier <Prefix><rel>, so a mirror laid out as
// host/path with Prefix "http://" yields the original URLs.
type DirStore struct {
	// Dir is the mirror's base directory.
	Dir string
	// Prefix is prepended to slash-separated relative paths to form identifiers.
	Prefix string
	// ExpandArchives lists the members of .zip files as "file.zip!/member".
	ExpandArchives bool
}

// NewDirStore creates a store over dir.
func NewDirStore(dir, prefix string, expandArchives bool) *DirStore {
	return &DirStore{Dir: dir, Prefix: prefix, ExpandArchives: expandArchives}
}

func (s *DirStore) pathFor(id string) (string, error) {
	if !strings.HasPrefix(id, s.Prefix) {
		return "", fmt.Errorf("%q is outside prefix %q: %w", id, s.Prefix, ErrNotFound)
	}
	rel := strings.TrimPrefix(id, s.Prefix)
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return s.Dir, nil
	}
	return filepath.Join(s.Dir, filepath.FromSlash(clean[1:])), nil
}

// List walks the directory containing root and yields identifiers starting
// with root, depth first in lexical order. A root with nothing stored under
// it yields an empty listing.
func (s *DirStore) List(ctx context.Context, root string) (Lister, error) {
	if !strings.HasPrefix(root, s.Prefix) && !strings.HasPrefix(s.Prefix, root) {
		return NewSliceLister(nil), nil
	}

	start := s.Prefix
	if len(root) > len(s.Prefix) {
		rel := strings.TrimPrefix(root, s.Prefix)
		if i := strings.LastIndexByte(rel, '/'); i >= 0 {
			start = s.Prefix + rel[:i+1]
		}
	}
	dir, err := s.pathFor(start)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSliceLister(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &dirWalker{store: s, dirs: []walkDir{{path: dir, id: strings.TrimSuffix(start, "/")}}}
	if start == s.Prefix {
		w.dirs[0].id = s.Prefix
	}
	return &filterLister{inner: w, root: root}, nil
}

type walkDir struct {
	path string
	id   string
}

// dirWalker is a lazy depth-first directory walk.
type dirWalker struct {
	store   *DirStore
	dirs    []walkDir // stack of directories still to read
	pending []string  // identifiers ready to be returned
}

func (w *dirWalker) Next(ctx context.Context) (string, error) {
	for len(w.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(w.dirs) == 0 {
			return "", io.EOF
		}
		d := w.dirs[len(w.dirs)-1]
		w.dirs = w.dirs[:len(w.dirs)-1]
		if err := w.readDir(d); err != nil {
			return "", err
		}
	}
	id := w.pending[0]
	w.pending = w.pending[1:]
	return id, nil
}

func (w *dirWalker) readDir(d walkDir) error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", d.path, err)
	}

	var subdirs []walkDir
	for _, e := range entries {
		id := joinID(d.id, e.Name())
		p := filepath.Join(d.path, e.Name())
		if e.IsDir() {
			subdirs = append(subdirs, walkDir{path: p, id: id})
			continue
		}
		w.pending = append(w.pending, id)
		if w.store.ExpandArchives && strings.EqualFold(path.Ext(e.Name()), ".zip") {
			members, err := zipMembers(p)
			if err != nil {
				return fmt.Errorf("list archive %s: %w", p, err)
			}
			for _, m := range members {
				w.pending = append(w.pending, JoinArchiveID(id, m))
			}
		}
	}
	// Push in reverse so the lexically first subdirectory is read next.
	for i := len(subdirs) - 1; i >= 0; i-- {
		w.dirs = append(w.dirs, subdirs[i])
	}
	return nil
}

func joinID(dirID, name string) string {
	if dirID == "" || strings.HasSuffix(dirID, "/") {
		return dirID + name
	}
	return dirID + "/" + name
}

func (w *dirWalker) Close() error {
	w.dirs = nil
	w.pending = nil
	return nil
}

func zipMembers(p string) ([]string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var members []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, f.Name)
	}
	return members, nil
}

// Open reads a stored file or, for "container!/member" identifiers, one
// member of a stored zip archive.
func (s *DirStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	container, member, isMember := SplitArchiveID(id)
	p, err := s.pathFor(container)
	if err != nil {
		return nil, err
	}

	if !isMember {
		f, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
		return f, nil
	}

	zr, err := zip.OpenReader(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", p, err)
	}
	for _, f := range zr.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("open member %s: %w", id, err)
		}
		return &memberReader{ReadCloser: rc, archive: zr}, nil
	}
	zr.Close()
	return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
}

// memberReader closes the archive along with the member stream.
type memberReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (r *memberReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.archive.Close(); err == nil {
		err = cerr
	}
	return err
}
