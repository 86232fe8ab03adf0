package store

import (
	"sort"
	"sync"
	"time"

	"github.com/vorpalengineering/paylink-go/types"
)

// MemoryBackend keeps all records in process memory. Used in tests and for
// development runs without a database file.
type MemoryBackend struct {
	mu       sync.RWMutex
	requests map[string]*types.PaymentRequest
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		requests: make(map[string]*types.PaymentRequest),
	}
}

func (m *MemoryBackend) Insert(req *types.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[req.Reference]; exists {
		return ErrDuplicateReference
	}
	m.requests[req.Reference] = req.Clone()
	return nil
}

func (m *MemoryBackend) Get(reference string) (*types.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, exists := m.requests[reference]
	if !exists {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (m *MemoryBackend) Update(req *types.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[req.Reference]; !exists {
		return ErrNotFound
	}
	m.requests[req.Reference] = req.Clone()
	return nil
}

func (m *MemoryBackend) Supersede(predecessor, successor *types.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check both writes before applying either.
	if _, exists := m.requests[predecessor.Reference]; !exists {
		return ErrNotFound
	}
	if _, exists := m.requests[successor.Reference]; exists {
		return ErrDuplicateReference
	}

	m.requests[successor.Reference] = successor.Clone()
	m.requests[predecessor.Reference] = predecessor.Clone()
	return nil
}

func (m *MemoryBackend) ListPendingBefore(deadline time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs []string
	for ref, req := range m.requests {
		if req.Status == types.StatusPending && !req.ExpiresAt.After(deadline) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs, nil
}

func (m *MemoryBackend) List(merchantID string, status types.Status, limit int) ([]*types.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.PaymentRequest
	for _, req := range m.requests {
		if merchantID != "" && req.MerchantID != merchantID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req.Clone())
	}

	// Newest first, matching the sqlite backend's ORDER BY.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
