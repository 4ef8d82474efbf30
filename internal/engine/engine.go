// Package engine wires frame streams to per-camera verification windows and
// fans confirmed violations into the strike engine. Each camera gets its own
// goroutine and owns its window exclusively; the only cross-camera contention
// is the per-worker critical section inside the strike engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/adapter"
	"github.com/safesite-vision/ppe-sentinel/internal/config"
	"github.com/safesite-vision/ppe-sentinel/internal/escalation"
	"github.com/safesite-vision/ppe-sentinel/internal/events"
	"github.com/safesite-vision/ppe-sentinel/internal/heartbeat"
	"github.com/safesite-vision/ppe-sentinel/internal/kafka"
	"github.com/safesite-vision/ppe-sentinel/internal/models"
	"github.com/safesite-vision/ppe-sentinel/internal/pipeline"
	"github.com/safesite-vision/ppe-sentinel/internal/strikes"
	"github.com/safesite-vision/ppe-sentinel/internal/window"
)

const feedBuffer = 64

// ErrUnknownCamera means a frame referenced a camera missing from the
// registry. The frame is discarded; the pipeline continues.
var ErrUnknownCamera = errors.New("unknown camera")

// Registry is the configuration data the engine reads at startup plus the
// camera-state writes driven by the heartbeat monitor.
type Registry interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	ListZones(ctx context.Context) ([]models.Zone, error)
	UpdateCameraState(ctx context.Context, cameraID string, state models.CameraState, at time.Time) error
	GetWorker(ctx context.Context, id string) (*models.Worker, error)
}

// Publisher is the outbound Kafka surface.
type Publisher interface {
	PublishStatusChange(change models.CameraStatusChange) error
	PublishEscalation(event models.EscalationEvent) error
}

// Broadcaster pushes events to presentation clients.
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

type feed struct {
	frames chan models.RawFrame
	cancel context.CancelFunc
}

type confirmationJob struct {
	conf  window.Confirmation
	frame []byte
}

type Engine struct {
	cfg      config.Engine
	registry Registry
	monitor  *heartbeat.Monitor
	pipeline *pipeline.Pipeline
	strikes  *strikes.Engine
	composer escalation.Composer
	producer Publisher
	hub      Broadcaster
	log      *zap.SugaredLogger

	cameras map[string]models.Camera
	zones   map[string]models.Zone

	mu    sync.Mutex
	feeds map[string]*feed

	confirmations chan confirmationJob
	wg            sync.WaitGroup
}

func New(
	cfg config.Engine,
	siteName string,
	registry Registry,
	monitor *heartbeat.Monitor,
	p *pipeline.Pipeline,
	s *strikes.Engine,
	producer Publisher,
	hub Broadcaster,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		monitor:  monitor,
		pipeline: p,
		strikes:  s,
		composer: escalation.Composer{SiteName: siteName, Multiple: cfg.EscalationMultiple},
		producer: producer,
		hub:      hub,
		log:      log,
		cameras:  make(map[string]models.Camera),
		zones:    make(map[string]models.Zone),
		feeds:    make(map[string]*feed),

		confirmations: make(chan confirmationJob, 16),
	}
}

// Start loads the registry and launches the dispatcher, the heartbeat sweep
// and the status forwarder. It returns once the background work is running.
func (e *Engine) Start(ctx context.Context) error {
	cameras, err := e.registry.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}
	zones, err := e.registry.ListZones(ctx)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}
	for _, z := range zones {
		e.zones[z.ID] = z
	}
	for _, c := range cameras {
		if _, ok := e.zones[c.ZoneID]; !ok {
			e.log.Warnw("camera references unknown zone, skipping", "camera", c.ID, "zone", c.ZoneID)
			continue
		}
		e.cameras[c.ID] = c
		e.monitor.Track(c.ID)
	}
	e.log.Infow("engine started", "cameras", len(e.cameras), "zones", len(e.zones))

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.monitor.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.forwardStatusChanges(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.dispatch(ctx)
	}()

	return nil
}

// Run consumes frame and heartbeat messages until the context is cancelled,
// then drains every camera pipeline.
func (e *Engine) Run(ctx context.Context, frames, heartbeats <-chan kafka.Message) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine shutting down")
			e.Shutdown()
			return nil

		case msg, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			var raw models.RawFrame
			if err := json.Unmarshal(msg.Value, &raw); err != nil {
				e.log.Errorw("invalid frame payload", "error", err)
				// Malformed messages are acknowledged; retrying cannot fix them.
				msg.Mark()
				continue
			}
			e.HandleFrame(ctx, raw)
			msg.Mark()

		case msg, ok := <-heartbeats:
			if !ok {
				heartbeats = nil
				continue
			}
			var hb models.Heartbeat
			if err := json.Unmarshal(msg.Value, &hb); err != nil {
				e.log.Errorw("invalid heartbeat payload", "error", err)
				msg.Mark()
				continue
			}
			e.HandleHeartbeat(hb)
			msg.Mark()
		}
	}
}

// HandleHeartbeat feeds one liveness ping to the monitor.
func (e *Engine) HandleHeartbeat(hb models.Heartbeat) {
	e.monitor.Signal(hb.CameraID, hb.Timestamp)
}

// HandleFrame routes a raw frame to its camera's pipeline. Frames from
// unknown or offline cameras are dropped; an offline camera's window simply
// stalls until heartbeats resume.
func (e *Engine) HandleFrame(ctx context.Context, raw models.RawFrame) {
	e.mu.Lock()
	cam, ok := e.cameras[raw.CameraID]
	e.mu.Unlock()
	if !ok {
		e.log.Debugw("frame from unregistered camera dropped", "camera", raw.CameraID)
		return
	}
	if !e.monitor.Online(cam.ID) {
		e.log.Debugw("frame from offline camera dropped", "camera", cam.ID)
		return
	}

	f := e.feedFor(ctx, cam)
	select {
	case f.frames <- raw:
	default:
		e.log.Warnw("camera feed full, frame dropped", "camera", cam.ID)
	}
}

func (e *Engine) feedFor(ctx context.Context, cam models.Camera) *feed {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.feeds[cam.ID]; ok {
		return f
	}

	camCtx, cancel := context.WithCancel(ctx)
	f := &feed{
		frames: make(chan models.RawFrame, feedBuffer),
		cancel: cancel,
	}
	e.feeds[cam.ID] = f

	zone := e.zones[cam.ZoneID]
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runCamera(camCtx, cam, zone, f.frames)
	}()

	return f
}

// runCamera owns one camera's verification window. It is the only goroutine
// touching that window, so the window needs no locking.
func (e *Engine) runCamera(ctx context.Context, cam models.Camera, zone models.Zone, frames <-chan models.RawFrame) {
	w := window.New(cam.ID, zone.ID, window.Settings{
		Duration:   e.cfg.Window(),
		MinSamples: e.cfg.MinSamples,
		Majority:   e.cfg.MajorityThreshold,
		MinSpan:    e.cfg.MinConfirmSpan(),
	})
	req := adapter.Requirements{
		Mandatory:     e.cfg.MandatoryFor(zone.Risk),
		MinConfidence: e.cfg.ConfidenceFor,
	}

	var lastImage []byte

	e.log.Infow("camera pipeline started", "camera", cam.ID, "zone", zone.ID, "risk", zone.Risk)
	for {
		select {
		case <-ctx.Done():
			e.log.Infow("camera pipeline stopped", "camera", cam.ID)
			return
		case raw := <-frames:
			if len(raw.Image) > 0 {
				lastImage = raw.Image
			}

			reading, err := adapter.Normalize(raw, req)
			if err != nil {
				e.log.Warnw("frame dropped", "camera", cam.ID, "error", err)
				continue
			}

			conf, confirmed := w.Observe(reading)
			if !confirmed {
				continue
			}

			select {
			case e.confirmations <- confirmationJob{conf: conf, frame: lastImage}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch serializes violation recording and strike issuance downstream of
// all camera pipelines.
func (e *Engine) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.confirmations:
			e.handleConfirmation(ctx, job)
		}
	}
}

func (e *Engine) handleConfirmation(ctx context.Context, job confirmationJob) {
	zone, ok := e.zones[job.conf.ZoneID]
	if !ok {
		e.log.Errorw("confirmation for unknown zone dropped", "zone", job.conf.ZoneID)
		return
	}

	v, err := e.pipeline.Process(ctx, job.conf, zone, job.frame)
	if err != nil {
		e.log.Errorw("violation processing failed", "camera", job.conf.CameraID, "error", err)
		return
	}
	e.hub.Broadcast(events.KindViolation, v)

	if v.WorkerID == "" {
		// Stays pending until an operator resolves the offender.
		return
	}
	if _, err := e.issueAndEscalate(ctx, v); err != nil {
		e.log.Errorw("strike issuance failed", "violation", v.ID, "error", err)
	}
}

// ResolveOffender binds a worker to a pending violation and issues the
// strike. Replays are safe end to end: re-binding reports AlreadyResolved
// and re-issuing reports DuplicateStrike, neither of which double-counts.
func (e *Engine) ResolveOffender(ctx context.Context, violationID, workerID string) (models.Strike, error) {
	v, err := e.pipeline.ResolveOffender(ctx, violationID, workerID)
	if err != nil && !errors.Is(err, pipeline.ErrAlreadyResolved) {
		return models.Strike{}, err
	}
	return e.issueAndEscalate(ctx, v)
}

func (e *Engine) issueAndEscalate(ctx context.Context, v *models.Violation) (models.Strike, error) {
	strike, err := e.strikes.Issue(ctx, v.ID, v.WorkerID)
	if err != nil {
		if errors.Is(err, strikes.ErrDuplicateStrike) {
			e.log.Infow("strike already issued", "violation", v.ID, "sequence", strike.Sequence)
			return strike, nil
		}
		return models.Strike{}, err
	}

	worker, err := e.registry.GetWorker(ctx, v.WorkerID)
	if err != nil || worker == nil {
		return strike, fmt.Errorf("load worker %s: %w", v.WorkerID, err)
	}

	msg := e.composer.Compose(strike, *v, *worker, e.zones[v.ZoneID])
	event := models.EscalationEvent{
		StrikeID:    strike.ID,
		WorkerID:    strike.WorkerID,
		ViolationID: strike.ViolationID,
		Sequence:    strike.Sequence,
		Message:     msg,
	}
	if err := e.producer.PublishEscalation(event); err != nil {
		e.log.Errorw("escalation publish failed", "strike", strike.ID, "error", err)
	}
	e.hub.Broadcast(events.KindStrike, event)

	return strike, nil
}

func (e *Engine) forwardStatusChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-e.monitor.Events():
			if err := e.registry.UpdateCameraState(ctx, change.CameraID, change.State, change.At); err != nil {
				e.log.Errorw("camera state persist failed", "camera", change.CameraID, "error", err)
			}
			if err := e.producer.PublishStatusChange(change); err != nil {
				e.log.Errorw("status publish failed", "camera", change.CameraID, "error", err)
			}
			e.hub.Broadcast(events.KindCameraStatus, change)
		}
	}
}

// RemoveCamera tears down one camera's pipeline, discarding its in-flight
// window without touching other cameras or the strike counters.
func (e *Engine) RemoveCamera(cameraID string) {
	e.mu.Lock()
	f, ok := e.feeds[cameraID]
	if ok {
		delete(e.feeds, cameraID)
	}
	delete(e.cameras, cameraID)
	e.mu.Unlock()

	if ok {
		f.cancel()
	}
	e.monitor.Forget(cameraID)
	e.log.Infow("camera removed", "camera", cameraID)
}

// Shutdown cancels all camera pipelines and waits for background work.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for id, f := range e.feeds {
		f.cancel()
		delete(e.feeds, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
}
