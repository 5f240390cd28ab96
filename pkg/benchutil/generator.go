// Package benchutil generates synthetic crawl listings for benchmarks and
// tests: publisher-style URLs laid out as volume directories holding
// several resources per article, plus unrelated noise.
package benchutil

import (
	"fmt"
	"math/rand"
	"os"
	"testing"
)

// BenchmarkSeed is the default seed for reproducible listings.
const BenchmarkSeed = 42

// BenchmarkSizes are article counts for quick benchmark runs.
var BenchmarkSizes = []int{1000, 10000, 100000}

// ScalingSizes are larger article counts, used with ASPECT_ITER_LONG_BENCH=1.
var ScalingSizes = []int{250000, 500000, 1000000}

// SkipIfNoLongBench skips the benchmark unless ASPECT_ITER_LONG_BENCH is set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("ASPECT_ITER_LONG_BENCH") == "" {
		b.Skip("set ASPECT_ITER_LONG_BENCH=1 to run scaling benchmark")
	}
}

// GeneratorConfig configures listing generation.
type GeneratorConfig struct {
	// BaseURL prefixes every identifier.
	BaseURL string
	// Articles is the total number of articles, spread over Volumes.
	Articles int
	// Volumes is the number of volume directories (articles/<FirstYear+v>/).
	Volumes int
	// FirstYear names the first volume directory.
	FirstYear int
	// Suffixes are appended to "<dir>/<n>" to form each article's resources.
	Suffixes []string
	// NoiseRatio is the number of unrelated identifiers per article
	// (stylesheets, images, issue tables of contents).
	NoiseRatio float64
	// Shuffle emits identifiers in random order instead of per article.
	Shuffle bool
	// Seed for reproducible generation. 0 uses BenchmarkSeed.
	Seed int64
}

// DefaultConfig returns a journal-like layout of n articles with PDF and
// XML for each, 20% noise and shuffled order.
func DefaultConfig(n int) GeneratorConfig {
	return GeneratorConfig{
		BaseURL:    "http://example.org/",
		Articles:   n,
		Volumes:    10,
		FirstYear:  2010,
		Suffixes:   []string{".pdf", ".xml"},
		NoiseRatio: 0.2,
		Shuffle:    true,
		Seed:       BenchmarkSeed,
	}
}

// Generator produces synthetic listings.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a generator for cfg.
func NewGenerator(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = BenchmarkSeed
	}
	if cfg.Volumes < 1 {
		cfg.Volumes = 1
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// VolumeURL returns the directory of volume v.
func (g *Generator) VolumeURL(v int) string {
	return fmt.Sprintf("%sarticles/%d/", g.cfg.BaseURL, g.cfg.FirstYear+v)
}

// Generate returns the listing. Article numbers are unique across volumes,
// so the number of distinct article keys equals cfg.Articles.
func (g *Generator) Generate() []string {
	ids := make([]string, 0, g.cfg.Articles*len(g.cfg.Suffixes))
	for n := 0; n < g.cfg.Articles; n++ {
		dir := g.VolumeURL(n % g.cfg.Volumes)
		for _, s := range g.cfg.Suffixes {
			ids = append(ids, fmt.Sprintf("%s%d%s", dir, n, s))
		}
	}

	noise := int(float64(g.cfg.Articles) * g.cfg.NoiseRatio)
	for i := 0; i < noise; i++ {
		ids = append(ids, g.noiseID(i))
	}

	if g.cfg.Shuffle {
		g.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	return ids
}

func (g *Generator) noiseID(i int) string {
	switch g.rng.Intn(3) {
	case 0:
		return fmt.Sprintf("%sstatic/css/site-%d.css", g.cfg.BaseURL, i)
	case 1:
		return fmt.Sprintf("%simages/cover-%d.png", g.cfg.BaseURL, i)
	default:
		return fmt.Sprintf("%stoc-%d.html", g.VolumeURL(g.rng.Intn(g.cfg.Volumes)), i)
	}
}
