// Package pipeline turns confirmed window verdicts into durable violation
// records with an evidence reference and an offender binding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
	"github.com/safesite-vision/ppe-sentinel/internal/window"
)

var (
	// ErrAlreadyResolved means the violation already has an offender bound.
	// Callers treat it as an informational no-op, not a failure.
	ErrAlreadyResolved = errors.New("offender already resolved")
	// ErrUnknownWorker means the worker id is not in the registry or the
	// worker is inactive.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrUnknownViolation means no violation exists with the given id.
	ErrUnknownViolation = errors.New("unknown violation")
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	CreateViolation(ctx context.Context, v *models.Violation) error
	GetViolation(ctx context.Context, id string) (*models.Violation, error)
	BindOffender(ctx context.Context, violationID, workerID string) error
	GetWorker(ctx context.Context, id string) (*models.Worker, error)
}

// EvidenceCapturer stores a snapshot and returns an opaque reference.
type EvidenceCapturer interface {
	Capture(ctx context.Context, cameraID string, ts time.Time, frame []byte) (string, error)
}

// Recognizer is the optional automatic offender-identification collaborator.
// It returns an empty worker id when nobody could be identified.
type Recognizer interface {
	Identify(ctx context.Context, cameraID string, ts time.Time, frame []byte) (string, error)
}

type Pipeline struct {
	store          Store
	evidence       EvidenceCapturer
	recognizer     Recognizer // may be nil
	captureTimeout time.Duration
	log            *zap.SugaredLogger
}

func New(store Store, evidence EvidenceCapturer, recognizer Recognizer, captureTimeout time.Duration, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		store:          store,
		evidence:       evidence,
		recognizer:     recognizer,
		captureTimeout: captureTimeout,
		log:            log,
	}
}

// Process records a confirmed violation. Evidence capture runs under a
// bounded timeout; on failure the violation is still persisted with an empty
// snapshot reference so the incident is never lost.
func (p *Pipeline) Process(ctx context.Context, conf window.Confirmation, zone models.Zone, frame []byte) (*models.Violation, error) {
	now := time.Now().UTC()
	v := &models.Violation{
		ID:         uuid.NewString(),
		ZoneID:     zone.ID,
		CameraID:   conf.CameraID,
		OccurredAt: conf.At,
		Missing:    conf.Missing,
		Risk:       zone.Risk,
		Status:     models.ViolationPendingOffender,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	captureCtx, cancel := context.WithTimeout(ctx, p.captureTimeout)
	ref, err := p.evidence.Capture(captureCtx, conf.CameraID, conf.At, frame)
	cancel()
	if err != nil {
		p.log.Warnw("evidence capture failed, recording violation without snapshot",
			"camera", conf.CameraID, "error", err)
	} else {
		v.SnapshotRef = ref
	}

	if p.recognizer != nil {
		idCtx, cancel := context.WithTimeout(ctx, p.captureTimeout)
		workerID, err := p.recognizer.Identify(idCtx, conf.CameraID, conf.At, frame)
		cancel()
		switch {
		case err != nil:
			p.log.Warnw("offender recognition failed, leaving violation pending",
				"camera", conf.CameraID, "error", err)
		case workerID != "":
			if worker, err := p.store.GetWorker(ctx, workerID); err == nil && worker != nil && worker.Active {
				v.WorkerID = workerID
			} else {
				p.log.Warnw("recognizer returned unknown worker", "worker", workerID)
			}
		}
	}

	if err := p.store.CreateViolation(ctx, v); err != nil {
		return nil, fmt.Errorf("persist violation: %w", err)
	}

	p.log.Infow("violation recorded",
		"violation", v.ID, "camera", v.CameraID, "zone", v.ZoneID,
		"missing", v.Missing, "risk", v.Risk, "snapshot", v.SnapshotRef != "")
	return v, nil
}

// ResolveOffender binds a worker to a pending violation. Binding twice
// returns ErrAlreadyResolved and changes nothing, which keeps retries safe
// and upholds the one-worker-per-violation precondition for strikes.
func (p *Pipeline) ResolveOffender(ctx context.Context, violationID, workerID string) (*models.Violation, error) {
	v, err := p.store.GetViolation(ctx, violationID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownViolation, violationID)
	}
	if v.WorkerID != "" {
		return v, ErrAlreadyResolved
	}

	worker, err := p.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if worker == nil || !worker.Active {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}

	if err := p.store.BindOffender(ctx, violationID, workerID); err != nil {
		return nil, fmt.Errorf("bind offender: %w", err)
	}
	v.WorkerID = workerID
	v.UpdatedAt = time.Now().UTC()

	p.log.Infow("offender resolved", "violation", violationID, "worker", workerID)
	return v, nil
}
