package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rudder/internal/store"
)

// MemStore keeps records in process memory. Tuning trials run their
// sessions against it so throwaway backtests never touch disk.
type MemStore struct {
	mu        sync.RWMutex
	bots      map[string]store.BotRecord
	orders    map[string]store.OrderRecord // keyed uid|bot_uid
	portfolio map[string]store.PortfolioRecord
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		bots:      make(map[string]store.BotRecord),
		orders:    make(map[string]store.OrderRecord),
		portfolio: make(map[string]store.PortfolioRecord),
	}
}

func (s *MemStore) Update(ctx context.Context, endpoint store.Endpoint, record any) error {
	return s.Put(ctx, endpoint, []any{record})
}

func (s *MemStore) Put(_ context.Context, endpoint store.Endpoint, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		switch endpoint {
		case store.EndpointBots:
			rec, ok := r.(store.BotRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			s.bots[rec.UID] = rec
		case store.EndpointOrders:
			rec, ok := r.(store.OrderRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			s.orders[rec.UID+"|"+rec.BotUID] = rec
		case store.EndpointPortfolio:
			rec, ok := r.(store.PortfolioRecord)
			if !ok {
				return fmt.Errorf("endpoint %s: unexpected record type %T", endpoint, r)
			}
			s.portfolio[rec.BotUID+"|"+rec.DT.UTC().String()] = rec
		default:
			return fmt.Errorf("unknown endpoint %q", endpoint)
		}
	}
	return nil
}

func (s *MemStore) GetBot(_ context.Context, uid string) (store.BotRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bots[uid]
	return rec, ok, nil
}

func (s *MemStore) ListBots(_ context.Context, limit int) ([]store.BotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.BotRecord, 0, len(s.bots))
	for _, rec := range s.bots {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DTStart.After(out[j].DTStart) })
	return truncate(out, limit), nil
}

func (s *MemStore) ListOrders(_ context.Context, botUID string, limit int) ([]store.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.OrderRecord, 0)
	for _, rec := range s.orders {
		if rec.BotUID == botUID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DTOpen.Before(out[j].DTOpen) })
	return truncate(out, limit), nil
}

func (s *MemStore) ListPortfolio(_ context.Context, botUID string, limit int) ([]store.PortfolioRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.PortfolioRecord, 0)
	for _, rec := range s.portfolio {
		if rec.BotUID == botUID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DT.Before(out[j].DT) })
	return truncate(out, limit), nil
}

func (s *MemStore) Close() error { return nil }

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
