package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

var (
	// ErrNotFound is returned when no record exists for a request ID.
	ErrNotFound = errors.New("payment record not found")

	// ErrDuplicate is returned on appending a request ID that already has a
	// record. Exactly one record exists per request.
	ErrDuplicate = errors.New("payment record already exists")
)

// Ledger is an append-only record of every payment attempt, with secondary
// indices by payer and by recipient kept consistent on every write. Records
// are never deleted; historical entries back audit and statistics.
type Ledger struct {
	mu          sync.RWMutex
	store       Store
	records     map[string]*types.PaymentRecord
	byPayer     map[string][]string // payer address -> request IDs
	byRecipient map[string][]string // recipient address -> request IDs
}

// New creates a ledger over the given store, loading any records the store
// already holds and rebuilding the indices.
func New(ctx context.Context, store Store) (*Ledger, error) {
	l := &Ledger{
		store:       store,
		records:     make(map[string]*types.PaymentRecord),
		byPayer:     make(map[string][]string),
		byRecipient: make(map[string][]string),
	}

	existing, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ledger records: %w", err)
	}
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].InitiatedAt.Before(existing[j].InitiatedAt)
	})
	for _, rec := range existing {
		l.records[rec.RequestID] = rec
		l.index(rec)
	}

	return l, nil
}

// Append inserts the record for a newly accepted payment. Fails with
// ErrDuplicate if a record already exists for the request ID.
func (l *Ledger) Append(ctx context.Context, record *types.PaymentRecord) error {
	l.mu.Lock()
	if _, exists := l.records[record.RequestID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, record.RequestID)
	}
	clone := record.Clone()
	l.records[record.RequestID] = clone
	l.index(clone)
	l.mu.Unlock()

	return l.store.Put(ctx, record.RequestID, record)
}

// Update replaces the stored record after a state transition. The record's
// state may only move forward; a regressing update is rejected.
func (l *Ledger) Update(ctx context.Context, record *types.PaymentRecord) error {
	l.mu.Lock()
	current, exists := l.records[record.RequestID]
	if !exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, record.RequestID)
	}
	if current.State != record.State && !current.State.CanTransitionTo(record.State) {
		l.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s for %s", current.State, record.State, record.RequestID)
	}
	l.records[record.RequestID] = record.Clone()
	l.mu.Unlock()

	return l.store.Put(ctx, record.RequestID, record)
}

// Get returns the record for a request ID, or ErrNotFound.
func (l *Ledger) Get(requestID string) (*types.PaymentRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return rec.Clone(), nil
}

// ByPayer returns up to limit records for the payer address, most recent
// first by initiation time.
func (l *Ledger) ByPayer(address string, limit int) []*types.PaymentRecord {
	return l.byIndex(l.byPayer, address, limit)
}

// ByRecipient returns up to limit records for the recipient address, most
// recent first by initiation time.
func (l *Ledger) ByRecipient(address string, limit int) []*types.PaymentRecord {
	return l.byIndex(l.byRecipient, address, limit)
}

func (l *Ledger) byIndex(index map[string][]string, address string, limit int) []*types.PaymentRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := index[address]
	out := make([]*types.PaymentRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := l.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InitiatedAt.After(out[j].InitiatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Window bounds a statistics query by initiation time, inclusive on both
// ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// RouteCount is one (source, destination) route and how many payments took
// it.
type RouteCount struct {
	Source      string
	Destination string
	Count       int
}

// Stats aggregates payment activity over a time window.
type Stats struct {
	TotalPayments     int
	TotalVolume       decimal.Decimal
	CrossNetworkCount int
	SameNetworkCount  int
	AverageRelayFee   decimal.Decimal
	TopRoutes         []RouteCount
}

// Stats filters records by initiation time within the window and aggregates
// in a single pass. TopRoutes carries at most the five busiest routes,
// busiest first.
func (l *Ledger) Stats(window Window) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{TotalVolume: decimal.Zero, AverageRelayFee: decimal.Zero}
	routes := make(map[[2]string]int)
	relayFeeSum := decimal.Zero

	for _, rec := range l.records {
		if !window.Contains(rec.InitiatedAt) {
			continue
		}
		stats.TotalPayments++
		stats.TotalVolume = stats.TotalVolume.Add(rec.RequestedAmount)
		if rec.SourceNetworkID == rec.DestinationNetworkID {
			stats.SameNetworkCount++
		} else {
			stats.CrossNetworkCount++
			relayFeeSum = relayFeeSum.Add(rec.RelayFee)
		}
		routes[[2]string{rec.SourceNetworkID, rec.DestinationNetworkID}]++
	}

	if stats.CrossNetworkCount > 0 {
		stats.AverageRelayFee = relayFeeSum.Div(decimal.NewFromInt(int64(stats.CrossNetworkCount)))
	}

	top := make([]RouteCount, 0, len(routes))
	for route, count := range routes {
		top = append(top, RouteCount{Source: route[0], Destination: route[1], Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		// Stable tiebreak so equal counts order deterministically.
		if top[i].Source != top[j].Source {
			return top[i].Source < top[j].Source
		}
		return top[i].Destination < top[j].Destination
	})
	if len(top) > 5 {
		top = top[:5]
	}
	stats.TopRoutes = top

	return stats
}

// index must be called with l.mu held for writing.
func (l *Ledger) index(rec *types.PaymentRecord) {
	l.byPayer[rec.PayerAddress] = append(l.byPayer[rec.PayerAddress], rec.RequestID)
	l.byRecipient[rec.RecipientAddress] = append(l.byRecipient[rec.RecipientAddress], rec.RequestID)
}
