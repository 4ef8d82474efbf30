// Package window implements the sliding verification window that turns
// noisy per-frame readings into confirmed violations. One Window per
// (camera, zone) pair; each is owned by a single camera pipeline, so no
// locking here.
package window

import (
	"time"

	"github.com/samber/lo"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// Settings are the debouncing tunables.
type Settings struct {
	// Duration is the trailing window length.
	Duration time.Duration
	// MinSamples is the minimum reading count before a verdict is possible.
	MinSamples int
	// Majority is the fraction of non-compliant readings required.
	Majority float64
	// MinSpan is the elapsed time the window must cover before confirming.
	// Kept below Duration to allow early confirmation.
	MinSpan time.Duration
}

// Confirmation is emitted exactly once per continuous incident.
type Confirmation struct {
	CameraID string
	ZoneID   string
	At       time.Time
	Missing  []models.PPEClass
}

// Window aggregates readings for one camera in one zone.
type Window struct {
	cameraID string
	zoneID   string
	settings Settings
	readings []models.FrameReading
}

func New(cameraID, zoneID string, settings Settings) *Window {
	return &Window{cameraID: cameraID, zoneID: zoneID, settings: settings}
}

// Len returns the number of readings currently held.
func (w *Window) Len() int { return len(w.readings) }

// Observe adds a reading, evicts anything older than the window duration and
// recomputes the verdict. It returns a Confirmation and true on the single
// transition to confirmed non-compliant; the window is cleared afterwards so
// the same continuous incident cannot confirm twice.
func (w *Window) Observe(reading models.FrameReading) (Confirmation, bool) {
	w.readings = append(w.readings, reading)
	w.evict(reading.Timestamp)

	violating := lo.Filter(w.readings, func(r models.FrameReading, _ int) bool {
		return !r.Compliant()
	})

	// A sustained compliant streak resets the incident baseline: keep only
	// the latest reading so an old flicker cannot combine with a future one.
	if len(violating) == 0 {
		if len(w.readings) >= w.settings.MinSamples {
			w.readings = w.readings[len(w.readings)-1:]
		}
		return Confirmation{}, false
	}

	if len(w.readings) < w.settings.MinSamples {
		return Confirmation{}, false
	}
	if w.span() < w.settings.MinSpan {
		return Confirmation{}, false
	}
	if float64(len(violating))/float64(len(w.readings)) < w.settings.Majority {
		return Confirmation{}, false
	}

	missing := lo.Uniq(lo.FlatMap(violating, func(r models.FrameReading, _ int) []models.PPEClass {
		return r.Missing
	}))

	conf := Confirmation{
		CameraID: w.cameraID,
		ZoneID:   w.zoneID,
		At:       reading.Timestamp,
		Missing:  missing,
	}
	w.readings = nil
	return conf, true
}

// evict drops readings older than the trailing window. Called with the
// newest timestamp so a stalled camera's stale readings age out on resume.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.settings.Duration)
	i := 0
	for ; i < len(w.readings); i++ {
		if !w.readings[i].Timestamp.Before(cutoff) {
			break
		}
	}
	w.readings = w.readings[i:]
}

func (w *Window) span() time.Duration {
	if len(w.readings) < 2 {
		return 0
	}
	return w.readings[len(w.readings)-1].Timestamp.Sub(w.readings[0].Timestamp)
}
