package logging

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/aspect-iter/pkg/humanfmt"
)

// CompletionEvent builds a consistent "something finished" log line.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	ints    []intField
	strs    []strField
	rates   []intField
}

type intField struct {
	key string
	val int64
}

type strField struct {
	key string
	val string
}

// NewCompletionEvent creates a completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.strs = append(ce.strs, strField{key, val})
	return ce
}

// Count adds a counter field.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.ints = append(ce.ints, intField{key, n})
	return ce
}

// Rate adds key_per_sec, n items over the event's elapsed time.
func (ce *CompletionEvent) Rate(key string, n int64) *CompletionEvent {
	ce.rates = append(ce.rates, intField{key, n})
	return ce
}

// Log emits the event at info level. Fields appear in the order added. In
// pretty mode large counters and rates also get a human-readable _h twin.
func (ce *CompletionEvent) Log(msg string) {
	e := ce.log.Info().
		Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())

	pretty := IsPrettyMode()
	if pretty {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for _, f := range ce.strs {
		e = e.Str(f.key, f.val)
	}
	for _, f := range ce.ints {
		e = e.Int64(f.key, f.val)
		if pretty && f.val >= 1000 {
			e = e.Str(f.key+"_h", humanfmt.Count(f.val))
		}
	}
	for _, f := range ce.rates {
		if secs := ce.elapsed.Seconds(); secs > 0 {
			e = e.Float64(f.key+"_per_sec", float64(f.val)/secs)
		}
		if pretty {
			e = e.Str(f.key+"_per_sec_h", humanfmt.Rate(f.val, ce.elapsed))
		}
	}
	e.Msg(msg)
}

// ScanComplete starts the completion event for one plugin scan.
func ScanComplete(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "scan_completed", "scan", elapsed)
}

// HarvestComplete starts the completion event for a metadata harvest.
func HarvestComplete(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "harvest_completed", "extract", elapsed)
}
