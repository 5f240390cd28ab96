package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"a/1.pdf", "a/1.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(members[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func newMirror(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "example.org/2020/12.pdf"), "pdf12")
	writeFile(t, filepath.Join(dir, "example.org/2020/12.xml"), "<xml/>")
	writeFile(t, filepath.Join(dir, "example.org/2020/sub/3.pdf"), "pdf3")
	writeFile(t, filepath.Join(dir, "example.org/2021/1.pdf"), "pdf1")
	writeFile(t, filepath.Join(dir, "other.org/x.html"), "x")
	writeZip(t, filepath.Join(dir, "example.org/2020/issue.zip"), map[string]string{
		"a/1.pdf": "zipped pdf",
		"a/1.xml": "zipped xml",
	})
	return dir
}

func TestDirStoreList(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", false)

	got := drain(t, mustList(t, s, "http://example.org/2020/"))
	want := []string{
		"http://example.org/2020/12.pdf",
		"http://example.org/2020/12.xml",
		"http://example.org/2020/issue.zip",
		"http://example.org/2020/sub/3.pdf",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

func TestDirStoreListPartialName(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", false)
	got := drain(t, mustList(t, s, "http://example.org/2020/12"))
	if diff := cmp.Diff([]string{"http://example.org/2020/12.pdf", "http://example.org/2020/12.xml"}, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

func TestDirStoreListWholeMirror(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", false)
	got := drain(t, mustList(t, s, "http://"))
	if len(got) != 6 {
		t.Errorf("got %d ids, want 6: %v", len(got), got)
	}
}

func TestDirStoreListMissingRoot(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", false)
	if got := drain(t, mustList(t, s, "http://nowhere.org/")); len(got) != 0 {
		t.Errorf("got %v, want nothing", got)
	}
	if got := drain(t, mustList(t, s, "ftp://example.org/")); len(got) != 0 {
		t.Errorf("got %v, want nothing", got)
	}
}

func TestDirStoreExpandArchives(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", true)
	got := drain(t, mustList(t, s, "http://example.org/2020/issue"))
	want := []string{
		"http://example.org/2020/issue.zip",
		"http://example.org/2020/issue.zip!/a/1.pdf",
		"http://example.org/2020/issue.zip!/a/1.xml",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

func TestDirStoreOpen(t *testing.T) {
	s := NewDirStore(newMirror(t), "http://", true)
	ctx := context.Background()

	tests := []struct {
		id   string
		want string
	}{
		{"http://example.org/2020/12.pdf", "pdf12"},
		{"http://example.org/2020/issue.zip!/a/1.xml", "zipped xml"},
	}
	for _, tt := range tests {
		rc, err := s.Open(ctx, tt.id)
		if err != nil {
			t.Fatalf("Open(%q): %v", tt.id, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("Open(%q) = %q, want %q", tt.id, b, tt.want)
		}
	}

	for _, id := range []string{
		"http://example.org/2020/missing.pdf",
		"http://example.org/2020/issue.zip!/a/missing.pdf",
		"ftp://example.org/2020/12.pdf",
	} {
		if _, err := s.Open(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDirStoreOpenRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "secret"), "s")
	mirror := filepath.Join(base, "mirror")
	writeFile(t, filepath.Join(mirror, "a.org/x"), "x")

	s := NewDirStore(mirror, "http://", false)
	if _, err := s.Open(context.Background(), "http://../secret"); err == nil {
		t.Error("expected path traversal to be contained")
	}
}
