package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
	"github.com/safesite-vision/ppe-sentinel/internal/window"
)

type fakeStore struct {
	mu         sync.Mutex
	violations map[string]*models.Violation
	workers    map[string]*models.Worker
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		violations: make(map[string]*models.Violation),
		workers: map[string]*models.Worker{
			"w-1": {ID: "w-1", Name: "Ali", Phone: "+60123456789", Active: true},
			"w-2": {ID: "w-2", Name: "Siti", Active: false},
		},
	}
}

func (f *fakeStore) CreateViolation(_ context.Context, v *models.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *v
	f.violations[v.ID] = &clone
	return nil
}

func (f *fakeStore) GetViolation(_ context.Context, id string) (*models.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.violations[id]; ok {
		clone := *v
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeStore) BindOffender(_ context.Context, violationID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.violations[violationID]
	if !ok || v.WorkerID != "" {
		return errors.New("already bound or missing")
	}
	v.WorkerID = workerID
	return nil
}

func (f *fakeStore) GetWorker(_ context.Context, id string) (*models.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[id]; ok {
		clone := *w
		return &clone, nil
	}
	return nil, nil
}

type fakeCapturer struct {
	ref string
	err error
}

func (f *fakeCapturer) Capture(_ context.Context, cameraID string, _ time.Time, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

type fakeRecognizer struct {
	workerID string
	err      error
}

func (f *fakeRecognizer) Identify(context.Context, string, time.Time, []byte) (string, error) {
	return f.workerID, f.err
}

func confirmation() window.Confirmation {
	return window.Confirmation{
		CameraID: "cam-1",
		ZoneID:   "z-1",
		At:       time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Missing:  []models.PPEClass{models.PPEHelmet},
	}
}

var highZone = models.Zone{ID: "z-1", Name: "Welding Bay", Risk: models.RiskHigh}

func newPipeline(store Store, evidence EvidenceCapturer, recognizer Recognizer) *Pipeline {
	return New(store, evidence, recognizer, 100*time.Millisecond, zap.NewNop().Sugar())
}

func TestProcessRecordsPendingViolation(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{ref: "violations/cam-1/1.jpg"}, nil)

	v, err := p.Process(context.Background(), confirmation(), highZone, []byte("jpeg"))
	require.NoError(t, err)

	assert.Equal(t, models.ViolationPendingOffender, v.Status)
	assert.Equal(t, models.RiskHigh, v.Risk)
	assert.Equal(t, []models.PPEClass{models.PPEHelmet}, v.Missing)
	assert.Equal(t, "violations/cam-1/1.jpg", v.SnapshotRef)
	assert.Empty(t, v.WorkerID)

	stored, err := store.GetViolation(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestProcessSurvivesEvidenceCaptureFailure(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{err: context.DeadlineExceeded}, nil)

	v, err := p.Process(context.Background(), confirmation(), highZone, []byte("jpeg"))
	require.NoError(t, err, "a capture timeout must not lose the violation")
	assert.Empty(t, v.SnapshotRef, "snapshot stays pending")

	stored, err := store.GetViolation(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestProcessAutoBindsRecognizedWorker(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{ref: "ref"}, &fakeRecognizer{workerID: "w-1"})

	v, err := p.Process(context.Background(), confirmation(), highZone, []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "w-1", v.WorkerID)
}

func TestProcessIgnoresUnknownRecognizedWorker(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{ref: "ref"}, &fakeRecognizer{workerID: "ghost"})

	v, err := p.Process(context.Background(), confirmation(), highZone, []byte("jpeg"))
	require.NoError(t, err)
	assert.Empty(t, v.WorkerID, "unknown worker id must leave the violation pending")
}

func TestResolveOffender(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{ref: "ref"}, nil)
	ctx := context.Background()

	v, err := p.Process(ctx, confirmation(), highZone, nil)
	require.NoError(t, err)

	resolved, err := p.ResolveOffender(ctx, v.ID, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", resolved.WorkerID)

	// Second binding attempt is an informational no-op.
	again, err := p.ResolveOffender(ctx, v.ID, "w-1")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, "w-1", again.WorkerID)
}

func TestResolveOffenderRejectsUnknownWorker(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeCapturer{ref: "ref"}, nil)
	ctx := context.Background()

	v, err := p.Process(ctx, confirmation(), highZone, nil)
	require.NoError(t, err)

	_, err = p.ResolveOffender(ctx, v.ID, "ghost")
	require.ErrorIs(t, err, ErrUnknownWorker)

	// Inactive workers cannot be bound either.
	_, err = p.ResolveOffender(ctx, v.ID, "w-2")
	require.ErrorIs(t, err, ErrUnknownWorker)
}

func TestResolveOffenderUnknownViolation(t *testing.T) {
	p := newPipeline(newFakeStore(), &fakeCapturer{ref: "ref"}, nil)

	_, err := p.ResolveOffender(context.Background(), "missing", "w-1")
	require.ErrorIs(t, err, ErrUnknownViolation)
}
