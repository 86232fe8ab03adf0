package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vorpalengineering/paylink-go/types"
)

var (
	ErrNotFound           = errors.New("payment request not found")
	ErrDuplicateReference = errors.New("duplicate payment request reference")
	ErrIllegalTransition  = errors.New("illegal state transition")
)

// Backend is the persistence layer behind the store. Implementations do not
// enforce the state machine; the Store is the single writer and all guards
// live there.
type Backend interface {
	Insert(req *types.PaymentRequest) error
	Get(reference string) (*types.PaymentRequest, error)
	Update(req *types.PaymentRequest) error
	ListPendingBefore(deadline time.Time) ([]string, error)
	List(merchantID string, status types.Status, limit int) ([]*types.PaymentRequest, error)
	// Supersede persists the successor and the updated predecessor as one
	// atomic write: either both land or neither does.
	Supersede(predecessor, successor *types.PaymentRequest) error
}

// Store is the authoritative holder of payment request state. All
// transitions go through it; it serializes writes per reference while
// leaving distinct references fully concurrent.
type Store struct {
	backend Backend
	locks   sync.Map // reference -> *sync.Mutex
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) lockFor(reference string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(reference, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create persists a new request. The record must be in state Pending.
func (s *Store) Create(req *types.PaymentRequest) error {
	if req.Status != types.StatusPending {
		return fmt.Errorf("%w: new requests must be Pending, got %s", ErrIllegalTransition, req.Status)
	}

	mu := s.lockFor(req.Reference)
	mu.Lock()
	defer mu.Unlock()

	return s.backend.Insert(req.Clone())
}

// Get returns a read-only snapshot of the request.
func (s *Store) Get(reference string) (*types.PaymentRequest, error) {
	return s.backend.Get(reference)
}

// List returns read-only snapshots filtered by merchant and/or status.
func (s *Store) List(merchantID string, status types.Status, limit int) ([]*types.PaymentRequest, error) {
	return s.backend.List(merchantID, status, limit)
}

// ListPendingBefore returns references of Pending requests whose deadline
// has passed. Used by the expiry sweep.
func (s *Store) ListPendingBefore(deadline time.Time) ([]string, error) {
	return s.backend.ListPendingBefore(deadline)
}

// MarkExpired requests the Pending -> Expired transition. Returns the
// updated record, or (nil, nil) when the record is already Expired: the
// expiry sweep is idempotent and re-running it is not an error.
func (s *Store) MarkExpired(reference string, now time.Time) (*types.PaymentRequest, error) {
	mu := s.lockFor(reference)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.backend.Get(reference)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case types.StatusExpired:
		return nil, nil
	case types.StatusPending:
		// Guard: deadline must actually have passed.
		if now.Before(req.ExpiresAt) {
			return nil, fmt.Errorf("%w: %s does not expire until %s", ErrIllegalTransition, reference, req.ExpiresAt.Format(time.RFC3339))
		}
	default:
		return nil, fmt.Errorf("%w: cannot expire %s from %s", ErrIllegalTransition, reference, req.Status)
	}

	req.Status = types.StatusExpired
	if err := s.backend.Update(req); err != nil {
		return nil, err
	}
	return req, nil
}

// MarkSettled requests the Pending -> Settled transition, recording the
// verified settlement. Settled is terminal.
func (s *Store) MarkSettled(reference string, settlement *types.Settlement) (*types.PaymentRequest, error) {
	mu := s.lockFor(reference)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.backend.Get(reference)
	if err != nil {
		return nil, err
	}

	if req.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: cannot settle %s from %s", ErrIllegalTransition, reference, req.Status)
	}

	st := *settlement
	req.Status = types.StatusSettled
	req.Settlement = &st
	if err := s.backend.Update(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Supersede requests the Expired -> Superseded transition, inserting the
// successor and linking the predecessor to it under the predecessor's lock.
// Concurrent regenerations of the same reference have exactly one winner.
func (s *Store) Supersede(reference string, successor *types.PaymentRequest) (*types.PaymentRequest, error) {
	if successor.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: successor must be Pending, got %s", ErrIllegalTransition, successor.Status)
	}

	mu := s.lockFor(reference)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.backend.Get(reference)
	if err != nil {
		return nil, err
	}

	if req.Status != types.StatusExpired {
		return nil, fmt.Errorf("%w: cannot supersede %s from %s", ErrIllegalTransition, reference, req.Status)
	}

	req.Status = types.StatusSuperseded
	req.SupersededBy = successor.Reference
	if err := s.backend.Supersede(req, successor.Clone()); err != nil {
		return nil, err
	}
	return req, nil
}
