package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/storage"
)

// SummaryStore is an in-memory implementation of storage.SummaryStore.
type SummaryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionSummary // keyed by operation_id
}

// NewSummaryStore creates a new in-memory summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{
		data: make(map[string]*domain.ExecutionSummary),
	}
}

// Compile-time interface check.
var _ storage.SummaryStore = (*SummaryStore)(nil)

// SaveSummary stores a copy of s. Returns ErrDuplicateKey if operation_id exists.
func (s *SummaryStore) SaveSummary(_ context.Context, sum *domain.ExecutionSummary) error {
	if err := storage.ValidateSummary(sum); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sum.OperationID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[sum.OperationID] = copySummary(sum, true)
	return nil
}

// GetSummary retrieves a summary with its outcomes. Returns ErrNotFound if not exists.
func (s *SummaryStore) GetSummary(_ context.Context, operationID string) (*domain.ExecutionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.data[operationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySummary(sum, true), nil
}

// ListSummaries returns summaries started at or after since, newest first.
func (s *SummaryStore) ListSummaries(_ context.Context, since time.Time, limit int) ([]*domain.ExecutionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionSummary
	for _, sum := range s.data {
		if sum.StartedAt.Before(since) {
			continue
		}
		result = append(result, copySummary(sum, false))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].OperationID < result[j].OperationID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetOutcomes retrieves the outcomes of an operation ordered by wallet index.
func (s *SummaryStore) GetOutcomes(_ context.Context, operationID string) ([]domain.TransactionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.data[operationID]
	if !ok {
		return nil, nil
	}
	return copySummary(sum, true).Outcomes, nil
}

func copySummary(sum *domain.ExecutionSummary, withOutcomes bool) *domain.ExecutionSummary {
	c := *sum
	c.Outcomes = nil
	if withOutcomes && len(sum.Outcomes) > 0 {
		c.Outcomes = append([]domain.TransactionOutcome(nil), sum.Outcomes...)
		sort.Slice(c.Outcomes, func(i, j int) bool {
			return c.Outcomes[i].WalletIndex < c.Outcomes[j].WalletIndex
		})
	}
	return &c
}
