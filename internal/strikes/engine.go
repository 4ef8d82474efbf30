// Package strikes implements idempotent strike accounting. All mutation of a
// worker's strike count is serialized through that worker's critical
// section, so two violations landing concurrently from different cameras can
// never read the same pre-increment count.
package strikes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// ErrDuplicateStrike means the violation already carries a strike. Safe to
// receive on retry after a crash between persistence and acknowledgment.
var ErrDuplicateStrike = errors.New("violation already struck")

// Store is the persistence surface for strikes. CreateStrike must enforce a
// unique violation id (the database keeps a unique index on it).
type Store interface {
	GetStrikeByViolation(ctx context.Context, violationID string) (*models.Strike, error)
	CreateStrike(ctx context.Context, s *models.Strike) error
	UpdateWorkerStrikeCount(ctx context.Context, workerID string, count int) error
	MarkViolationStruck(ctx context.Context, violationID string) error
	WorkerStrikeCounts(ctx context.Context) (map[string]int, error)
}

type Engine struct {
	store Store
	log   *zap.SugaredLogger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	counts map[string]int
}

func New(store Store, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:  store,
		log:    log,
		locks:  make(map[string]*sync.Mutex),
		counts: make(map[string]int),
	}
}

// Rehydrate reloads per-worker counts from persisted strikes. Must run
// before Issue after a restart; in-memory state is fully reconstructible.
func (e *Engine) Rehydrate(ctx context.Context) error {
	counts, err := e.store.WorkerStrikeCounts(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate strike counts: %w", err)
	}

	e.mu.Lock()
	e.counts = counts
	e.mu.Unlock()

	e.log.Infow("strike counts rehydrated", "workers", len(counts))
	return nil
}

// Count returns the worker's current strike count.
func (e *Engine) Count(workerID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[workerID]
}

// Issue creates the single strike for a violation. The new sequence number
// is assigned inside the worker's critical section and is what downstream
// escalation uses, so there is no separate read-then-write of the count.
func (e *Engine) Issue(ctx context.Context, violationID, workerID string) (models.Strike, error) {
	lock := e.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetStrikeByViolation(ctx, violationID)
	if err != nil {
		return models.Strike{}, fmt.Errorf("check existing strike: %w", err)
	}
	if existing != nil {
		// A replay after a partial failure: make sure the in-memory count
		// has caught up with what was persisted.
		e.mu.Lock()
		if existing.Sequence > e.counts[workerID] {
			e.counts[workerID] = existing.Sequence
		}
		e.mu.Unlock()
		return *existing, ErrDuplicateStrike
	}

	e.mu.Lock()
	seq := e.counts[workerID] + 1
	e.mu.Unlock()

	strike := models.Strike{
		ID:          uuid.NewString(),
		WorkerID:    workerID,
		ViolationID: violationID,
		Sequence:    seq,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.CreateStrike(ctx, &strike); err != nil {
		return models.Strike{}, fmt.Errorf("persist strike: %w", err)
	}
	if err := e.store.UpdateWorkerStrikeCount(ctx, workerID, seq); err != nil {
		return models.Strike{}, fmt.Errorf("update worker count: %w", err)
	}
	if err := e.store.MarkViolationStruck(ctx, violationID); err != nil {
		return models.Strike{}, fmt.Errorf("mark violation struck: %w", err)
	}

	e.mu.Lock()
	e.counts[workerID] = seq
	e.mu.Unlock()

	e.log.Infow("strike issued", "worker", workerID, "violation", violationID, "sequence", seq)
	return strike, nil
}

func (e *Engine) workerLock(workerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[workerID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[workerID] = lock
	}
	return lock
}
