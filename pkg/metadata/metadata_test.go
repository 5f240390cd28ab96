package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/article"
	"github.com/eunmann/aspect-iter/pkg/pattern"
	"github.com/eunmann/aspect-iter/pkg/source"
)

const risDoc = "TY  - JOUR\r\n" +
	"TI  - Grouping resources\r\n" +
	"  into articles\r\n" +
	"AU  - Doe, Jane\r\n" +
	"AU  - Roe, Rick\r\n" +
	"JO  - Journal of Tests\r\n" +
	"PY  - 2020\r\n" +
	"VL  - 12\r\n" +
	"SP  - 1\r\n" +
	"EP  - 9\r\n" +
	"DO  - 10.1234/jot.2020.12\r\n" +
	"ZZ  - ignored\r\n" +
	"ER  - \r\n" +
	"TY  - JOUR\r\n" +
	"TI  - Second record\r\n"

const jatsDoc = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE article PUBLIC "-//NLM//DTD JATS (Z39.96) Journal Publishing DTD v1.1 20151215//EN" "JATS-journalpublishing1.dtd">
<article xmlns:xlink="http://www.w3.org/1999/xlink">
  <front>
    <journal-meta>
      <journal-title-group><journal-title>Journal of Tests</journal-title></journal-title-group>
      <issn pub-type="epub">1234-5678</issn>
    </journal-meta>
    <article-meta>
      <article-id pub-id-type="publisher-id">jot-12</article-id>
      <article-id pub-id-type="doi">10.1234/jot.2020.12</article-id>
      <title-group><article-title>Grouping <italic>resources</italic>
        into articles</article-title></title-group>
      <contrib-group>
        <contrib><name><surname>Doe</surname><given-names>Jane</given-names></name></contrib>
        <contrib><name><surname>Roe</surname><given-names>Rick</given-names></name></contrib>
      </contrib-group>
      <pub-date><year>2020</year></pub-date>
      <volume>12</volume>
      <self-uri xlink:href="http://example.org/12/1.pdf"/>
    </article-meta>
  </front>
  <body><p>Not metadata &nbsp; at all.</p></body>
</article>`

const htmlDoc = `<!DOCTYPE html>
<html><head>
<META NAME="citation_title" CONTENT=" Grouping resources ">
<meta name="citation_author" content="Doe, Jane">
<meta name="citation_author" content="Roe, Rick">
<meta property="DC.Date" content="2020">
<meta name="viewport" content="width=device-width">
</head><body>
<meta name="citation_volume" content="99">
</body></html>`

func TestRISExtractor(t *testing.T) {
	got, err := (&RISExtractor{}).Extract(strings.NewReader(risDoc))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := Fields{
		FieldTitle:        {"Grouping resources into articles"},
		FieldAuthor:       {"Doe, Jane", "Roe, Rick"},
		FieldJournalTitle: {"Journal of Tests"},
		FieldDate:         {"2020"},
		FieldVolume:       {"12"},
		FieldStartPage:    {"1"},
		FieldEndPage:      {"9"},
		FieldDOI:          {"10.1234/jot.2020.12"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract (-want +got):\n%s", diff)
	}
}

func TestRISExtractorCustomTags(t *testing.T) {
	got, err := (&RISExtractor{Tags: map[string]string{"ZZ": "custom"}}).Extract(strings.NewReader(risDoc))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if diff := cmp.Diff(Fields{"custom": {"ignored"}}, got); diff != "" {
		t.Errorf("Extract (-want +got):\n%s", diff)
	}
}

func TestRISExtractorNotRIS(t *testing.T) {
	_, err := (&RISExtractor{}).Extract(strings.NewReader("just some text\n"))
	if !errors.Is(err, ErrNoMetadata) {
		t.Errorf("err = %v, want ErrNoMetadata", err)
	}
}

func TestXMLExtractor(t *testing.T) {
	x, err := NewXMLExtractor(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := x.Extract(strings.NewReader(jatsDoc))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := Fields{
		FieldTitle:        {"Grouping resources into articles"},
		FieldAuthor:       {"Doe", "Roe"},
		FieldJournalTitle: {"Journal of Tests"},
		FieldISSN:         {"1234-5678"},
		FieldDOI:          {"10.1234/jot.2020.12"},
		FieldDate:         {"2020"},
		FieldVolume:       {"12"},
		FieldURL:          {"http://example.org/12/1.pdf"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract (-want +got):\n%s", diff)
	}
}

func TestXMLExtractorPathErrors(t *testing.T) {
	for _, p := range []string{
		"",
		"@id",
		"a/@id/b",
		"a/b[@type]",
		"a/b[@type=doi]",
		"a/[@type='x']",
		"a//b",
	} {
		_, err := NewXMLExtractor(map[string]string{p: "f"})
		var ce *pattern.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("path %q: err = %v, want *pattern.ConfigError", p, err)
		}
	}
}

func TestHTMLMetaExtractor(t *testing.T) {
	got, err := (&HTMLMetaExtractor{}).Extract(strings.NewReader(htmlDoc))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := Fields{
		FieldTitle:  {"Grouping resources"},
		FieldAuthor: {"Doe, Jane", "Roe, Rick"},
		FieldDate:   {"2020"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract (-want +got):\n%s", diff)
	}
}

func TestHTMLMetaExtractorEmpty(t *testing.T) {
	_, err := (&HTMLMetaExtractor{}).Extract(strings.NewReader("<html><body>x</body></html>"))
	if !errors.Is(err, ErrNoMetadata) {
		t.Errorf("err = %v, want ErrNoMetadata", err)
	}
}

func TestAutoExtractor(t *testing.T) {
	a := NewAutoExtractor()
	for name, doc := range map[string]string{"ris": risDoc, "xml": jatsDoc, "html": htmlDoc} {
		fields, err := a.Extract(strings.NewReader(doc))
		if err != nil {
			t.Errorf("%s: Extract failed: %v", name, err)
			continue
		}
		if !strings.HasPrefix(fields.Get(FieldTitle), "Grouping resources") {
			t.Errorf("%s: title = %q", name, fields.Get(FieldTitle))
		}
	}
}

func TestConfigNewExtractor(t *testing.T) {
	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{}, want: "*metadata.AutoExtractor"},
		{cfg: Config{Format: FormatRIS}, want: "*metadata.RISExtractor"},
		{cfg: Config{Format: FormatXML, Fields: map[string]string{"a/b": "x"}}, want: "*metadata.XMLExtractor"},
		{cfg: Config{Format: FormatHTML}, want: "*metadata.HTMLMetaExtractor"},
		{cfg: Config{Format: "bibtex"}, wantErr: true},
		{cfg: Config{Fields: map[string]string{"TI": "title"}}, wantErr: true},
	}
	for _, tt := range tests {
		e, err := tt.cfg.NewExtractor()
		if tt.wantErr {
			if !errors.Is(err, pattern.ErrConfiguration) {
				t.Errorf("%+v: err = %v, want configuration error", tt.cfg, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%+v: unexpected error %v", tt.cfg, err)
			continue
		}
		if got := typeName(e); got != tt.want {
			t.Errorf("%+v: extractor = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}

func typeName(e Extractor) string {
	switch e.(type) {
	case *AutoExtractor:
		return "*metadata.AutoExtractor"
	case *RISExtractor:
		return "*metadata.RISExtractor"
	case *XMLExtractor:
		return "*metadata.XMLExtractor"
	case *HTMLMetaExtractor:
		return "*metadata.HTMLMetaExtractor"
	}
	return "unknown"
}

type sliceRequests struct {
	reqs []article.MetadataRequest
	err  error
}

func (s *sliceRequests) NextRequest(ctx context.Context) (article.MetadataRequest, error) {
	if len(s.reqs) == 0 {
		if s.err != nil {
			return article.MetadataRequest{}, s.err
		}
		return article.MetadataRequest{}, io.EOF
	}
	r := s.reqs[0]
	s.reqs = s.reqs[1:]
	return r, nil
}

func request(key, id string) article.MetadataRequest {
	return article.MetadataRequest{Group: &article.Group{Key: key, Metadata: id}, ResourceID: id}
}

func TestHarvesterRun(t *testing.T) {
	store := source.NewMemoryStore()
	store.Put("http://a/1.ris", []byte(risDoc))
	store.Put("http://a/2.ris", []byte("garbage"))
	store.Put("http://a/4.html", []byte(htmlDoc))

	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf))

	h := &Harvester{Opener: store, Extractor: NewAutoExtractor()}
	src := &sliceRequests{reqs: []article.MetadataRequest{
		request("1", "http://a/1.ris"),
		request("2", "http://a/2.ris"),
		request("3", "http://a/3.ris"),
		request("4", "http://a/4.html"),
	}}

	var keys []string
	stats, err := h.Run(ctx, src, func(r Record) error {
		keys = append(keys, r.Group.Key)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "4"}, keys); diff != "" {
		t.Errorf("emitted keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(HarvestStats{Requests: 4, Extracted: 2, Failed: 2}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	logs := buf.String()
	for _, want := range []string{`"resource_id":"http://a/2.ris"`, `"resource_id":"http://a/3.ris"`, `"event":"harvest_completed"`} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s:\n%s", want, logs)
		}
	}
}

func TestHarvesterRunStopsOnErrors(t *testing.T) {
	store := source.NewMemoryStore()
	store.Put("http://a/1.ris", []byte(risDoc))
	h := &Harvester{Opener: store, Extractor: &RISExtractor{}}

	srcErr := errors.New("listing failed")
	_, err := h.Run(context.Background(), &sliceRequests{err: srcErr}, func(Record) error { return nil })
	if !errors.Is(err, srcErr) {
		t.Errorf("err = %v, want source error", err)
	}

	emitErr := errors.New("disk full")
	src := &sliceRequests{reqs: []article.MetadataRequest{request("1", "http://a/1.ris")}}
	_, err = h.Run(context.Background(), src, func(Record) error { return emitErr })
	if !errors.Is(err, emitErr) {
		t.Errorf("err = %v, want emit error", err)
	}
}

func TestHarvestLimitsBytes(t *testing.T) {
	store := source.NewMemoryStore()
	store.Put("http://a/1.ris", []byte(risDoc))
	h := &Harvester{Opener: store, Extractor: &RISExtractor{}, MaxBytes: 12}

	fields, err := h.Harvest(context.Background(), &article.Group{Metadata: "http://a/1.ris"})
	if err == nil {
		t.Fatalf("expected no fields from a truncated record, got %v", fields)
	}

	fields, err = h.Harvest(context.Background(), &article.Group{})
	if err != nil || fields != nil {
		t.Errorf("Harvest without metadata = %v, %v", fields, err)
	}
}
