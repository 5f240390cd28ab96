package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/eunmann/aspect-iter/internal/logctx"
)

// drain reads every identifier from l and closes it.
func drain(t *testing.T, l Lister) []string {
	t.Helper()
	defer l.Close()
	var ids []string
	for {
		id, err := l.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return ids
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		ids = append(ids, id)
	}
}

func TestSplitArchiveID(t *testing.T) {
	tests := []struct {
		id            string
		wantContainer string
		wantMember    string
		wantOK        bool
	}{
		{"http://a/issue.zip!/1/article.pdf", "http://a/issue.zip", "1/article.pdf", true},
		{"http://a/1.pdf", "http://a/1.pdf", "", false},
		{"http://a/x.zip!/", "http://a/x.zip", "", true},
	}
	for _, tt := range tests {
		c, m, ok := SplitArchiveID(tt.id)
		if c != tt.wantContainer || m != tt.wantMember || ok != tt.wantOK {
			t.Errorf("SplitArchiveID(%q) = (%q, %q, %v)", tt.id, c, m, ok)
		}
		if ok && JoinArchiveID(c, m) != tt.id {
			t.Errorf("JoinArchiveID round trip failed for %q", tt.id)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("http://a/1.pdf", "http://b/2.pdf", "http://a/3.xml")
	s.Put("http://a/1.pdf", []byte("pdf"))

	got := drain(t, mustList(t, s, "http://a/"))
	if diff := cmp.Diff([]string{"http://a/1.pdf", "http://a/3.xml"}, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}

	rc, err := s.Open(context.Background(), "http://a/1.pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "pdf" {
		t.Errorf("content = %q", b)
	}

	if _, err := s.Open(context.Background(), "http://missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func mustList(t *testing.T, s Store, root string) Lister {
	t.Helper()
	l, err := s.List(context.Background(), root)
	if err != nil {
		t.Fatalf("List(%q): %v", root, err)
	}
	return l
}

func TestListRoots(t *testing.T) {
	s := NewMemoryStore("http://a/1", "http://b/1", "http://c/1", "http://a/2")
	got := drain(t, ListRoots(s, []string{"http://c/", "http://a/", "http://none/"}))
	if diff := cmp.Diff([]string{"http://c/1", "http://a/1", "http://a/2"}, got); diff != "" {
		t.Errorf("ListRoots (-want +got):\n%s", diff)
	}
}

func TestListRootsLogsEachRoot(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf))
	l := ListRoots(NewMemoryStore("http://a/1"), []string{"http://a/", "http://b/"})
	defer l.Close()
	for {
		if _, err := l.Next(ctx); err != nil {
			break
		}
	}
	for _, want := range []string{`"root":"http://a/"`, `"root":"http://b/"`, `"message":"listing root"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %s in output, got: %s", want, buf.String())
		}
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) List(ctx context.Context, root string) (Lister, error) {
	return nil, errors.New("unavailable")
}

func TestListRootsPropagatesErrors(t *testing.T) {
	l := ListRoots(&failingStore{}, []string{"http://a/"})
	if _, err := l.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want listing failure", err)
	}
}
