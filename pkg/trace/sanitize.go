package trace

import (
	"sort"
	"time"

	"github.com/fieldtrack/agent/pkg/geo"
)

// secondsPerYear is the calendar approximation used for the timestamp
// floor: years counted from 1970 at a flat 365 days, no leap days. The
// floor is therefore a little earlier than the named calendar year, and
// cached traces were written against exactly this arithmetic.
const (
	secondsPerYear = 365 * 86400
	epochYear      = 1970
)

// Default sanitizer thresholds.
const (
	DefaultMinYear         = 2009
	DefaultJumpKmThreshold = 200.0
	DefaultMaxFutureSec    = 86400
	spikeWindowSec         = 60
)

// Options tune Sanitize. Zero-valued fields fall back to the defaults.
type Options struct {
	MinYear         int              // fixes dated before this year are dropped
	JumpKmThreshold float64          // displacement above this is suspect
	MaxFutureSec    int64            // tolerated clock skew into the future
	Now             func() time.Time // clock, defaults to time.Now
}

// DefaultOptions returns the sanitizer defaults.
func DefaultOptions() Options {
	return Options{
		MinYear:         DefaultMinYear,
		JumpKmThreshold: DefaultJumpKmThreshold,
		MaxFutureSec:    DefaultMaxFutureSec,
	}
}

func (o Options) withDefaults() Options {
	if o.MinYear == 0 {
		o.MinYear = DefaultMinYear
	}
	if o.JumpKmThreshold == 0 {
		o.JumpKmThreshold = DefaultJumpKmThreshold
	}
	if o.MaxFutureSec == 0 {
		o.MaxFutureSec = DefaultMaxFutureSec
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Sanitize produces the clean, chronologically ordered trace for a pool
// of candidate points. Points without a timestamp, dated before the
// minimum year or further in the future than the tolerated skew are
// dropped. The rest are stable-sorted by timestamp (ties keep their
// input order) and walked once: a candidate is rejected as a spike when
// it sits more than JumpKmThreshold away from the last accepted point
// with less than a minute elapsed. Rejection is final; later candidates
// are still compared against the last accepted point, so a run of
// equally wrong fixes can survive as a jump. The input slice is never
// modified.
func Sanitize(points []Point, opts Options) []Point {
	opts = opts.withDefaults()
	now := opts.Now().Unix()
	minTS := int64(opts.MinYear-epochYear) * secondsPerYear
	maxTS := now + opts.MaxFutureSec

	timed := make([]Point, 0, len(points))
	for _, p := range points {
		if p.TS == nil {
			continue
		}
		if *p.TS < minTS || *p.TS > maxTS {
			continue
		}
		timed = append(timed, p)
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return *timed[i].TS < *timed[j].TS
	})

	cleaned := make([]Point, 0, len(timed))
	for _, p := range timed {
		if len(cleaned) == 0 {
			cleaned = append(cleaned, p)
			continue
		}
		prev := cleaned[len(cleaned)-1]
		km := geo.DistanceKm(prev.Lat, prev.Lon, p.Lat, p.Lon)
		dt := *p.TS - *prev.TS
		if km > opts.JumpKmThreshold && dt < spikeWindowSec {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return cleaned
}
