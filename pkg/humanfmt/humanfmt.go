// Package humanfmt renders counts, rates and durations for console logs.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

type unit struct {
	size   float64
	suffix string
}

// Decimal magnitudes for item counts, largest first.
var countUnits = []unit{
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// Count abbreviates an item count: "1.23M", "456.00K", "789".
func Count(n int64) string {
	if n < 0 {
		return strconv.FormatInt(n, 10)
	}
	return scaled(float64(n), "%.2f%s", strconv.FormatInt(n, 10))
}

// Rate formats n items over d as items per second: "1.50K/s".
func Rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "∞/s"
	}
	perSec := float64(n) / d.Seconds()
	return scaled(perSec, "%.2f%s/s", fmt.Sprintf("%.1f/s", perSec))
}

func scaled(v float64, format, small string) string {
	for _, u := range countUnits {
		if v >= u.size {
			return fmt.Sprintf(format, v/u.size, u.suffix)
		}
	}
	return small
}

// Duration formats d compactly: "1m30s", "1.23s", "45.6ms", "2h15m".
// Sub-second values keep one decimal, hours and minutes drop trailing zero
// components.
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		return twoPart(d/time.Hour, "h", (d%time.Hour)/time.Minute, "m")
	case d >= time.Minute:
		return twoPart(d/time.Minute, "m", (d%time.Minute)/time.Second, "s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func twoPart(major time.Duration, majorUnit string, minor time.Duration, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s%d%s", major, majorUnit, minor, minorUnit)
}
