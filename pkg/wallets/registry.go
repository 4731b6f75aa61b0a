package wallets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/logger"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

var (
	// ErrNoSignerAvailable means no signer capability is registered for the
	// requested (family, kind) pair.
	ErrNoSignerAvailable = errors.New("no signer available")

	// ErrNotConnected means the requested wallet has no live connection.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrBalanceUnavailable means the chain query failed; the cached balance
	// is left untouched.
	ErrBalanceUnavailable = errors.New("balance unavailable")
)

// Connection is one live binding between a signing capability and an address
// on a network family. At most one connection per (family, kind) pair is live
// at a time.
type Connection struct {
	NetworkFamily   types.NetworkFamily
	WalletKind      string
	Address         string
	NetworkID       string
	TokenBalance    decimal.Decimal
	LastRefreshedAt time.Time
}

type connKey struct {
	family types.NetworkFamily
	kind   string
}

// Registry tracks connected wallets and their cached balances. Safe for
// concurrent use; balance writes replace the cached value atomically per
// connection.
type Registry struct {
	mu          sync.RWMutex
	adapters    *chains.Registry
	signers     map[connKey]chains.Signer
	connections map[connKey]*Connection
	order       []connKey // registration order, drives Best's tie-breaking
	log         logger.Logger
}

// NewRegistry creates a wallet registry over the given family adapters.
func NewRegistry(adapters *chains.Registry, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Noop{}
	}
	return &Registry{
		adapters:    adapters,
		signers:     make(map[connKey]chains.Signer),
		connections: make(map[connKey]*Connection),
		log:         log,
	}
}

// RegisterSigner makes a signer capability available for (family, kind).
// Registering again for the same pair replaces the previous capability.
func (r *Registry) RegisterSigner(family types.NetworkFamily, kind string, signer chains.Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[connKey{family, kind}] = signer
}

// Connect delegates to the external signer to obtain an address and records
// the live connection. A connect while already connected replaces the
// existing connection in place, keeping its preference-order slot.
func (r *Registry) Connect(ctx context.Context, family types.NetworkFamily, kind string) (Connection, error) {
	r.mu.RLock()
	signer, ok := r.signers[connKey{family, kind}]
	r.mu.RUnlock()
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s/%s", ErrNoSignerAvailable, family, kind)
	}

	account, err := signer.Connect(ctx)
	if err != nil {
		if errors.Is(err, chains.ErrConnectionDenied) {
			return Connection{}, err
		}
		return Connection{}, fmt.Errorf("signer connect failed for %s/%s: %w", family, kind, err)
	}
	if account.Address == "" {
		// The signer reported zero addresses: treat as not connected.
		r.remove(family, kind)
		return Connection{}, fmt.Errorf("%w: signer returned no address", ErrNotConnected)
	}

	conn := &Connection{
		NetworkFamily: family,
		WalletKind:    kind,
		Address:       account.Address,
		NetworkID:     account.NetworkID,
	}

	r.mu.Lock()
	key := connKey{family, kind}
	if _, exists := r.connections[key]; !exists {
		r.order = append(r.order, key)
	}
	r.connections[key] = conn
	r.mu.Unlock()

	r.log.Info("wallet connected", map[string]any{
		"family":  string(family),
		"kind":    kind,
		"address": account.Address,
		"network": account.NetworkID,
	})

	// Best-effort initial balance fetch; the connection is live either way.
	if _, err := r.RefreshBalance(ctx, family, kind); err != nil {
		r.log.Warn("initial balance refresh failed", map[string]any{
			"family": string(family),
			"kind":   kind,
			"error":  err.Error(),
		})
	}

	return r.snapshot(key), nil
}

// Disconnect removes the connection for (family, kind). Idempotent: a
// disconnect of a wallet that is not connected is a no-op.
func (r *Registry) Disconnect(ctx context.Context, family types.NetworkFamily, kind string) {
	r.mu.RLock()
	signer, hasSigner := r.signers[connKey{family, kind}]
	_, connected := r.connections[connKey{family, kind}]
	r.mu.RUnlock()

	if !connected {
		return
	}
	if hasSigner {
		if err := signer.Disconnect(ctx); err != nil {
			r.log.Warn("signer disconnect failed", map[string]any{
				"family": string(family),
				"kind":   kind,
				"error":  err.Error(),
			})
		}
	}
	r.remove(family, kind)
}

// RefreshBalance queries the chain for the wallet's current balance and
// replaces the cached value. On failure the previous cached balance is
// returned untouched alongside ErrBalanceUnavailable; a balance is never
// silently zeroed.
func (r *Registry) RefreshBalance(ctx context.Context, family types.NetworkFamily, kind string) (decimal.Decimal, error) {
	key := connKey{family, kind}

	r.mu.RLock()
	conn, ok := r.connections[key]
	if !ok {
		r.mu.RUnlock()
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrNotConnected, family, kind)
	}
	address, networkID, cached := conn.Address, conn.NetworkID, conn.TokenBalance
	r.mu.RUnlock()

	adapter, err := r.adapters.Get(family)
	if err != nil {
		return cached, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	balance, err := adapter.Query().GetBalance(ctx, address, networkID)
	if err != nil {
		return cached, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	r.mu.Lock()
	if conn, ok := r.connections[key]; ok {
		conn.TokenBalance = balance
		conn.LastRefreshedAt = time.Now()
	}
	r.mu.Unlock()

	return balance, nil
}

// SetNetwork records a network change notification from the external signer.
// The cached balance is kept; it refers to the old network until the next
// refresh, which LastRefreshedAt makes visible to callers.
func (r *Registry) SetNetwork(family types.NetworkFamily, kind, networkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[connKey{family, kind}]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotConnected, family, kind)
	}
	conn.NetworkID = networkID
	return nil
}

// ListConnected returns a snapshot of all live connections in registration
// order. Safe to call concurrently with refreshes.
func (r *Registry) ListConnected() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.order))
	for _, key := range r.order {
		if conn, ok := r.connections[key]; ok {
			out = append(out, *conn)
		}
	}
	return out
}

// Get returns the live connection for (family, kind), if any.
func (r *Registry) Get(family types.NetworkFamily, kind string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connKey{family, kind}]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// FindByAddress returns the connection holding the given address on the given
// network, using the family's address comparison rules.
func (r *Registry) FindByAddress(address, networkID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.order {
		conn, ok := r.connections[key]
		if !ok || conn.NetworkID != networkID {
			continue
		}
		adapter, err := r.adapters.Get(conn.NetworkFamily)
		if err != nil {
			continue
		}
		if adapter.Addresses().AddressesEqual(conn.Address, address) {
			return *conn, true
		}
	}
	return Connection{}, false
}

// Best selects, among connected wallets whose cached balance covers
// minimumCost, the first by stable preference order: the preferred kind
// first, then registration order. Returns false when no candidate affords
// the cost.
func (r *Registry) Best(minimumCost decimal.Decimal, preferredKind string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferredKind != "" {
		for _, key := range r.order {
			if key.kind != preferredKind {
				continue
			}
			if conn, ok := r.connections[key]; ok && conn.TokenBalance.GreaterThanOrEqual(minimumCost) {
				return *conn, true
			}
		}
	}
	for _, key := range r.order {
		if conn, ok := r.connections[key]; ok && conn.TokenBalance.GreaterThanOrEqual(minimumCost) {
			return *conn, true
		}
	}
	return Connection{}, false
}

// Signer returns the signer capability backing (family, kind).
func (r *Registry) Signer(family types.NetworkFamily, kind string) (chains.Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	signer, ok := r.signers[connKey{family, kind}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSignerAvailable, family, kind)
	}
	return signer, nil
}

func (r *Registry) remove(family types.NetworkFamily, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := connKey{family, kind}
	delete(r.connections, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) snapshot(key connKey) Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.connections[key]; ok {
		return *conn
	}
	return Connection{}
}
