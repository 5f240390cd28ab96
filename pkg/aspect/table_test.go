package aspect

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(Options{})
	if err := tbl.AddAspect(`/(\d+)\.pdf$`, "$1", RoleFullTextPDF); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddAspect(`/(\d+)\.xml$`, "$1", RoleArticleMetadata); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddAspect(`/(\d+)(?:_full)?\.html$`, "$1", RoleFullTextHTML, RoleAbstract); err != nil {
		t.Fatal(err)
	}
	tbl.Freeze()
	return tbl
}

func TestDerive(t *testing.T) {
	tbl := newTestTable(t)

	tests := []struct {
		id     string
		want   Aspect
		wantOK bool
	}{
		{id: "http://example.org/2020/12.pdf", want: Aspect{Key: "12", Roles: []Role{RoleFullTextPDF}, Rule: 0}, wantOK: true},
		{id: "http://example.org/2020/12.xml", want: Aspect{Key: "12", Roles: []Role{RoleArticleMetadata}, Rule: 1}, wantOK: true},
		{id: "http://example.org/2020/7_full.html", want: Aspect{Key: "7", Roles: []Role{RoleFullTextHTML, RoleAbstract}, Rule: 2}, wantOK: true},
		{id: "http://example.org/2020/index.html", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok, err := tbl.Derive(tt.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Derive mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeriveIdempotent(t *testing.T) {
	tbl := newTestTable(t)
	ids := []string{
		"http://example.org/2020/12.pdf",
		"http://example.org/2020/3.html",
		"http://example.org/2020/none",
	}
	for _, id := range ids {
		a1, ok1, err1 := tbl.Derive(id)
		a2, ok2, err2 := tbl.Derive(id)
		if ok1 != ok2 || (err1 == nil) != (err2 == nil) {
			t.Fatalf("Derive(%q) not idempotent: (%v,%v) vs (%v,%v)", id, ok1, err1, ok2, err2)
		}
		if diff := cmp.Diff(a1, a2); diff != "" {
			t.Errorf("Derive(%q) not idempotent:\n%s", id, diff)
		}
	}
}

func TestDeriveFirstMatchWins(t *testing.T) {
	tbl := NewTable(Options{})
	if err := tbl.AddAspect(`/(\d+)\.pdf$`, "$1", RoleFullTextPDF); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddAspect(`\.pdf$`, "other", RoleSupplementaryMaterials); err != nil {
		t.Fatal(err)
	}

	got, ok, err := tbl.Derive("http://a/5.pdf")
	if err != nil || !ok {
		t.Fatalf("Derive: ok=%v err=%v", ok, err)
	}
	if got.Key != "5" || got.Roles[0] != RoleFullTextPDF {
		t.Errorf("got %+v, want key 5 with full-text-pdf", got)
	}

	got, ok, _ = tbl.Derive("http://a/x.pdf")
	if !ok || got.Key != "other" || got.Rule != 1 {
		t.Errorf("got %+v, want fallthrough to rule 1", got)
	}
}

func TestDeriveSubstitute(t *testing.T) {
	tbl := NewTable(Options{})
	if err := tbl.Add(Rule{Detect: `/pdf/(\d+)$`, Rewrite: "/article/$1", Substitute: true, Roles: []Role{RoleFullTextPDF}}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Add(Rule{Detect: `/article/(\d+)$`, Rewrite: "/article/$1", Substitute: true, Roles: []Role{RoleFullTextHTML}}); err != nil {
		t.Fatal(err)
	}

	a, _, _ := tbl.Derive("http://j.example/vol1/pdf/42")
	b, _, _ := tbl.Derive("http://j.example/vol1/article/42")
	if a.Key != "http://j.example/vol1/article/42" || a.Key != b.Key {
		t.Errorf("keys = %q, %q; want both http://j.example/vol1/article/42", a.Key, b.Key)
	}
}

func TestDeriveSubstituteMultibyte(t *testing.T) {
	tbl := NewTable(Options{})
	if err := tbl.Add(Rule{Detect: `\.pdf$`, Rewrite: "", Substitute: true, Roles: []Role{RoleFullTextPDF}}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := tbl.Derive("http://a/é/ß.pdf")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.Key != "http://a/é/ß" {
		t.Errorf("Key = %q", got.Key)
	}
}

func TestDeriveCaseInsensitive(t *testing.T) {
	tbl := NewTable(Options{CaseInsensitive: true})
	if err := tbl.AddAspect(`/(\d+)\.pdf$`, "$1", RoleFullTextPDF); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := tbl.Derive("http://a/1.PDF"); !ok {
		t.Error("expected case-insensitive detection")
	}
}

func TestRewriteReferences(t *testing.T) {
	tests := []struct {
		name    string
		detect  string
		rewrite string
		id      string
		want    string
	}{
		{name: "greedy digits stop at group count", detect: `(\d)(\d)`, rewrite: "$10", id: "47", want: "40"},
		{name: "two digit group", detect: `(a)(b)(c)(d)(e)(f)(g)(h)(i)(j)`, rewrite: "$10-$1", id: "abcdefghij", want: "j-a"},
		{name: "named", detect: `(?<vol>\d+)/(?<page>\d+)`, rewrite: "${vol}:${page}", id: "x/12/34", want: "12:34"},
		{name: "escaped dollar", detect: `(\d+)`, rewrite: `\$$1`, id: "7", want: "$7"},
		{name: "whole match", detect: `\d+`, rewrite: "n$0", id: "a99", want: "n99"},
		{name: "non participating group", detect: `(x)?(\d+)`, rewrite: "[$1]$2", id: "5", want: "[]5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(Options{})
			if err := tbl.AddAspect(tt.detect, tt.rewrite, RoleAbstract); err != nil {
				t.Fatalf("AddAspect: %v", err)
			}
			got, ok, err := tbl.Derive(tt.id)
			if err != nil || !ok {
				t.Fatalf("Derive: ok=%v err=%v", ok, err)
			}
			if got.Key != tt.want {
				t.Errorf("Key = %q, want %q", got.Key, tt.want)
			}
		})
	}
}

func TestAddAspectConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		detect  string
		rewrite string
		roles   []Role
	}{
		{name: "no roles", detect: `x`, rewrite: "$0"},
		{name: "empty role", detect: `x`, rewrite: "$0", roles: []Role{""}},
		{name: "no detect", rewrite: "$0", roles: []Role{RoleAbstract}},
		{name: "no rewrite", detect: `/(\d+)\.pdf$`, roles: []Role{RoleFullTextPDF}},
		{name: "bad regex", detect: `(`, rewrite: "$0", roles: []Role{RoleAbstract}},
		{name: "missing group", detect: `(x)`, rewrite: "$2", roles: []Role{RoleAbstract}},
		{name: "dangling dollar", detect: `(x)`, rewrite: "a$", roles: []Role{RoleAbstract}},
		{name: "dangling backslash", detect: `(x)`, rewrite: `a\`, roles: []Role{RoleAbstract}},
		{name: "unknown name", detect: `(x)`, rewrite: "${nope}", roles: []Role{RoleAbstract}},
		{name: "unterminated name", detect: `(?<v>x)`, rewrite: "${v", roles: []Role{RoleAbstract}},
		{name: "illegal reference", detect: `(x)`, rewrite: "$a", roles: []Role{RoleAbstract}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(Options{})
			err := tbl.AddAspect(tt.detect, tt.rewrite, tt.roles...)
			if !errors.Is(err, pattern.ErrConfiguration) {
				t.Fatalf("err = %v, want configuration error", err)
			}
			if tbl.Len() != 0 {
				t.Errorf("Len = %d after failed add", tbl.Len())
			}
		})
	}
}

func TestAddAspectAfterFreeze(t *testing.T) {
	tbl := newTestTable(t)
	err := tbl.AddAspect(`x`, "$0", RoleAbstract)
	if !errors.Is(err, ErrFrozen) || !errors.Is(err, pattern.ErrConfiguration) {
		t.Errorf("err = %v, want ErrFrozen configuration error", err)
	}
}

func TestDeriveMalformed(t *testing.T) {
	tbl := newTestTable(t)
	_, ok, err := tbl.Derive("http://example.org/2020/\xff12.pdf")
	if ok {
		t.Fatal("malformed id should not be recognised")
	}
	var merr *MalformedResourceError
	if !errors.As(err, &merr) || !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want MalformedResourceError(ErrInvalidUTF8)", err)
	}

	slow := NewTable(Options{MatchTimeout: time.Millisecond})
	if err := slow.AddAspect(`^(a+)+$`, "$1", RoleAbstract); err != nil {
		t.Fatal(err)
	}
	if _, _, err := slow.Derive("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa!"); !errors.As(err, &merr) {
		t.Fatalf("err = %v, want MalformedResourceError from timeout", err)
	}
}

func TestDeriveEmptyKey(t *testing.T) {
	tbl := NewTable(Options{})
	if err := tbl.AddAspect(`/(\d*)\.pdf$`, "$1", RoleFullTextPDF); err != nil {
		t.Fatal(err)
	}
	_, _, err := tbl.Derive("http://a/.pdf")
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("err = %v, want ErrEmptyKey", err)
	}
}

func TestRulesReturnsCopies(t *testing.T) {
	tbl := newTestTable(t)
	rules := tbl.Rules()
	if len(rules) != 3 {
		t.Fatalf("len(Rules) = %d", len(rules))
	}
	rules[0].Roles[0] = "mutated"
	if tbl.Rules()[0].Roles[0] != RoleFullTextPDF {
		t.Error("Rules exposed internal state")
	}
}
