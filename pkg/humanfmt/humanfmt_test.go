package humanfmt

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "0ns"},
		{500 * time.Nanosecond, "500ns"},
		{500 * time.Microsecond, "500.0µs"},
		{45600 * time.Microsecond, "45.6ms"},
		{1230 * time.Millisecond, "1.23s"},
		{59 * time.Second, "59.00s"},
		{60 * time.Second, "1m"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h"},
		{8100 * time.Second, "2h15m"},
		{-time.Second, "-1s"},
	}

	for _, tt := range tests {
		if got := Duration(tt.input); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{1500000, "1.50M"},
		{1500000000, "1.50B"},
		{-100, "-100"},
	}

	for _, tt := range tests {
		if got := Count(tt.input); got != tt.want {
			t.Errorf("Count(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		n    int64
		d    time.Duration
		want string
	}{
		{0, time.Second, "0.0/s"},
		{500, time.Second, "500.0/s"},
		{3000, 2 * time.Second, "1.50K/s"},
		{2000000, time.Second, "2.00M/s"},
		{10, 0, "∞/s"},
	}

	for _, tt := range tests {
		if got := Rate(tt.n, tt.d); got != tt.want {
			t.Errorf("Rate(%d, %v) = %q, want %q", tt.n, tt.d, got, tt.want)
		}
	}
}

func BenchmarkDuration(b *testing.B) {
	durations := []time.Duration{
		100 * time.Microsecond,
		10 * time.Millisecond,
		1500 * time.Millisecond,
		90 * time.Second,
	}
	b.ResetTimer()
	for i := range b.N {
		_ = Duration(durations[i%len(durations)])
	}
}
