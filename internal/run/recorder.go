// Package run records GPS samples for run-like exercises and derives
// distance, duration, and pace from them.
package run

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pulsefit/sessiond/internal/models"
)

const earthRadiusKm = 6371.0

var (
	// ErrAlreadyTracking means Start was called while a recording is
	// active.
	ErrAlreadyTracking = errors.New("recorder already tracking")
	// ErrNotTracking means Stop or Append was called while idle.
	ErrNotTracking = errors.New("recorder not tracking")
)

// Subscription is a handle to an active position watch.
type Subscription interface {
	Clear()
}

// Watcher abstracts a geolocation provider. Watch delivers samples to
// onUpdate until the returned subscription is cleared; provider errors
// (permission denied, timeout, unavailable) go to onError and do not
// terminate the watch.
type Watcher interface {
	Watch(onUpdate func(models.RunSample), onError func(error)) (Subscription, error)
}

// Summary is the derived result of a recording, fed back into the
// session's cardio update path.
type Summary struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
	PaceMinPerKm    float64 `json:"pace_min_per_km"`
	Samples         int     `json:"samples"`
}

// Recorder is a two-state machine (idle <-> tracking) accumulating an
// append-only sample sequence. Distance only ever grows; pace is zero
// when distance is zero, never infinite.
type Recorder struct {
	log *slog.Logger

	mu         sync.Mutex
	tracking   bool
	sub        Subscription
	samples    []models.RunSample
	distanceKm float64
	startedAt  time.Time
	lastErr    error
}

// NewRecorder creates an idle recorder.
func NewRecorder(log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{log: log}
}

// Start transitions idle -> tracking. When a watcher is provided its
// samples feed Append; sample ingestion via Append works either way.
// Watch is called with no locks held, so providers that deliver the
// first sample synchronously from inside Watch are fine.
func (r *Recorder) Start(w Watcher) error {
	r.mu.Lock()
	if r.tracking {
		r.mu.Unlock()
		return ErrAlreadyTracking
	}
	r.tracking = true
	r.samples = nil
	r.distanceKm = 0
	r.lastErr = nil
	r.startedAt = time.Now()
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	sub, err := w.Watch(func(s models.RunSample) {
		if err := r.Append(s); err != nil {
			r.log.Warn("dropping sample for idle recorder")
		}
	}, r.noteError)
	if err != nil {
		// The recording continues without the watch; samples may
		// still arrive through Append.
		r.noteError(err)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tracking {
		// Stop or Cancel raced the watch setup; it must not outlive
		// the recording it was started for.
		sub.Clear()
		return nil
	}
	r.sub = sub
	return nil
}

// Append adds one sample and extends the cumulative distance by the
// great-circle distance from the previous sample. The increment is
// never negative, so distance is monotone.
func (r *Recorder) Append(s models.RunSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tracking {
		return ErrNotTracking
	}
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	if n := len(r.samples); n > 0 {
		r.distanceKm += Haversine(r.samples[n-1], s)
	}
	r.samples = append(r.samples, s)
	return nil
}

// Stop transitions tracking -> idle, clears the watch, and returns the
// final summary.
func (r *Recorder) Stop() (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tracking {
		return Summary{}, ErrNotTracking
	}
	r.tracking = false
	if r.sub != nil {
		r.sub.Clear()
		r.sub = nil
	}
	return r.summaryLocked(), nil
}

// Cancel clears any active watch without producing a summary. Safe to
// call on an idle recorder; used when the session closes.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracking = false
	if r.sub != nil {
		r.sub.Clear()
		r.sub = nil
	}
}

// Snapshot returns the live summary without stopping the recording.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// Tracking reports whether a recording is active.
func (r *Recorder) Tracking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracking
}

// LastError returns the most recent provider error, if any. Dismissible
// notice only; an error never stops a running recording.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Recorder) summaryLocked() Summary {
	sum := Summary{
		DistanceKm: r.distanceKm,
		Samples:    len(r.samples),
	}
	if !r.startedAt.IsZero() {
		sum.DurationMinutes = time.Since(r.startedAt).Minutes()
	}
	if sum.DistanceKm > 0 {
		sum.PaceMinPerKm = sum.DurationMinutes / sum.DistanceKm
	}
	return sum
}

func (r *Recorder) noteError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.log.Warn("location provider error", "error", err)
}

// Haversine returns the great-circle distance in kilometers between
// two samples.
func Haversine(a, b models.RunSample) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
