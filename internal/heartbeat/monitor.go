// Package heartbeat derives per-camera online/offline state from liveness
// pings. The periodic sweep is what catches cameras that go silent instead
// of disconnecting cleanly.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

type cameraState struct {
	state    models.CameraState
	lastSeen time.Time
}

// Monitor is the per-camera liveness state machine. A camera goes OFFLINE
// only after the timeout elapses with no signal, and back ONLINE on any
// fresh signal.
type Monitor struct {
	timeout time.Duration
	sweep   time.Duration
	log     *zap.SugaredLogger

	mu      sync.Mutex
	cameras map[string]*cameraState

	events chan models.CameraStatusChange
}

func New(timeout, sweep time.Duration, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		timeout: timeout,
		sweep:   sweep,
		log:     log,
		cameras: make(map[string]*cameraState),
		events:  make(chan models.CameraStatusChange, 64),
	}
}

// Track registers a camera. It starts ONLINE with the clock running; if no
// heartbeat arrives within the timeout the sweep marks it OFFLINE.
func (m *Monitor) Track(cameraID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[cameraID]; ok {
		return
	}
	m.cameras[cameraID] = &cameraState{state: models.CameraOnline, lastSeen: time.Now()}
}

// Forget drops a removed camera from the monitor.
func (m *Monitor) Forget(cameraID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cameras, cameraID)
}

// Signal records a heartbeat. An OFFLINE camera comes back ONLINE
// immediately, regardless of how long it was gone.
func (m *Monitor) Signal(cameraID string, ts time.Time) {
	m.mu.Lock()
	cam, ok := m.cameras[cameraID]
	if !ok {
		cam = &cameraState{state: models.CameraOffline}
		m.cameras[cameraID] = cam
	}
	if ts.After(cam.lastSeen) {
		cam.lastSeen = ts
	}
	wasOffline := cam.state == models.CameraOffline
	if wasOffline {
		cam.state = models.CameraOnline
	}
	m.mu.Unlock()

	if wasOffline {
		m.log.Infow("camera back online", "camera", cameraID)
		m.emit(models.CameraStatusChange{CameraID: cameraID, State: models.CameraOnline, At: ts})
	}
}

// Online reports whether the camera is currently ONLINE. Unknown cameras
// count as offline.
func (m *Monitor) Online(cameraID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cam, ok := m.cameras[cameraID]
	return ok && cam.state == models.CameraOnline
}

// LastSeen returns the camera's last recorded heartbeat time.
func (m *Monitor) LastSeen(cameraID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cam, ok := m.cameras[cameraID]
	if !ok {
		return time.Time{}, false
	}
	return cam.lastSeen, true
}

// Events delivers one status change per transition. Slow consumers drop
// events rather than stall the monitor.
func (m *Monitor) Events() <-chan models.CameraStatusChange {
	return m.events
}

// Run sweeps all tracked cameras until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("heartbeat monitor stopped")
			return
		case <-ticker.C:
			m.sweepOnce(time.Now())
		}
	}
}

func (m *Monitor) sweepOnce(now time.Time) {
	var changes []models.CameraStatusChange

	m.mu.Lock()
	for id, cam := range m.cameras {
		if cam.state == models.CameraOnline && now.Sub(cam.lastSeen) > m.timeout {
			cam.state = models.CameraOffline
			changes = append(changes, models.CameraStatusChange{
				CameraID: id,
				State:    models.CameraOffline,
				At:       now,
			})
		}
	}
	m.mu.Unlock()

	for _, change := range changes {
		m.log.Warnw("camera went offline", "camera", change.CameraID)
		m.emit(change)
	}
}

func (m *Monitor) emit(change models.CameraStatusChange) {
	select {
	case m.events <- change:
	default:
		m.log.Warnw("status event dropped, consumer too slow", "camera", change.CameraID)
	}
}
