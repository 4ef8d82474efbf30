package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

func newMonitor() *Monitor {
	return New(30*time.Second, time.Second, zap.NewNop().Sugar())
}

func TestTrackedCameraStartsOnline(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")
	assert.True(t, m.Online("cam-1"))
}

func TestUnknownCameraIsOffline(t *testing.T) {
	m := newMonitor()
	assert.False(t, m.Online("ghost"))
}

func TestTimeoutMarksCameraOffline(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")

	start := time.Now()
	m.Signal("cam-1", start)

	// 29s of silence: still online.
	m.sweepOnce(start.Add(29 * time.Second))
	assert.True(t, m.Online("cam-1"))

	// 31s of silence crosses the 30s timeout.
	m.sweepOnce(start.Add(31 * time.Second))
	assert.False(t, m.Online("cam-1"))

	select {
	case change := <-m.Events():
		assert.Equal(t, "cam-1", change.CameraID)
		assert.Equal(t, models.CameraOffline, change.State)
	default:
		t.Fatal("expected an offline status change event")
	}
}

func TestFreshSignalRevivesOfflineCamera(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")

	start := time.Now()
	m.Signal("cam-1", start)
	m.sweepOnce(start.Add(5 * time.Minute))
	require.False(t, m.Online("cam-1"))
	<-m.Events() // drain the offline event

	// Any fresh heartbeat flips it back, regardless of how long it was gone.
	m.Signal("cam-1", start.Add(6*time.Minute))
	assert.True(t, m.Online("cam-1"))

	select {
	case change := <-m.Events():
		assert.Equal(t, models.CameraOnline, change.State)
	default:
		t.Fatal("expected an online status change event")
	}
}

func TestSweepOnlyTransitionsOnce(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")

	start := time.Now()
	m.Signal("cam-1", start)
	m.sweepOnce(start.Add(time.Minute))
	m.sweepOnce(start.Add(2 * time.Minute))
	m.sweepOnce(start.Add(3 * time.Minute))

	events := 0
	for {
		select {
		case <-m.Events():
			events++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, events, "repeated sweeps must not re-emit the transition")
}

func TestStaleSignalDoesNotRewindLastSeen(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")

	now := time.Now()
	m.Signal("cam-1", now)
	m.Signal("cam-1", now.Add(-time.Minute)) // out-of-order ping

	seen, ok := m.LastSeen("cam-1")
	require.True(t, ok)
	assert.Equal(t, now.Unix(), seen.Unix())
}

func TestForgetDropsCamera(t *testing.T) {
	m := newMonitor()
	m.Track("cam-1")
	m.Forget("cam-1")
	assert.False(t, m.Online("cam-1"))
}
