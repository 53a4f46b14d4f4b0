package transfer

import (
	"time"

	"github.com/roomdrop/roomdrop/internal/utils"
)

// Percent is floor(done/total*100), held at 99 until the transfer is
// marked complete.
func Percent(done, total int64) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 99
	}
	return int(done * 100 / total)
}

// Tracker measures throughput for display.
type Tracker struct {
	start time.Time
	meter *utils.RateMeter
	bytes int64
}

// NewTracker starts a tracker now.
func NewTracker() *Tracker {
	return &Tracker{start: time.Now(), meter: utils.NewRateMeter()}
}

// Record adds n transferred bytes.
func (t *Tracker) Record(n int64) {
	t.bytes += n
	t.meter.Record(n)
}

// Speed returns the smoothed rate in bytes per second.
func (t *Tracker) Speed() float64 { return t.meter.Speed() }

// Duration returns the time since the tracker started.
func (t *Tracker) Duration() time.Duration { return time.Since(t.start) }

// Average returns total bytes over the whole duration.
func (t *Tracker) Average() float64 {
	d := t.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(t.bytes) / d
}
