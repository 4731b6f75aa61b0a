package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/ledger"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/routing"
	"github.com/petrkrulis2022/cubepay/pkg/types"
	"github.com/petrkrulis2022/cubepay/pkg/wallets"
)

const (
	testPayer     = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
	testWallet    = "metamask"
)

type harness struct {
	cap    *chains.FakeCapability
	exec   *Executor
	ledger *ledger.Ledger
	states []types.PaymentState
	mu     sync.Mutex
}

func (h *harness) observedStates() []types.PaymentState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.PaymentState(nil), h.states...)
}

// newHarness wires an executor over deterministic fakes. mutate runs before
// the wallet connects, so balance and failure knobs are in effect for the
// initial refresh.
func newHarness(t *testing.T, mutate func(*chains.FakeCapability, *Config)) *harness {
	t.Helper()
	ctx := context.Background()

	capability := &chains.FakeCapability{
		Account: chains.Account{
			Address:   testPayer,
			NetworkID: constants.NetworkEthereumSepolia,
		},
		Balance: decimal.NewFromInt(100),
		Fee:     decimal.RequireFromString("2.5"),
	}

	adapters := chains.NewRegistry()
	adapters.Register(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: capability})

	netReg, err := networks.NewRegistry(networks.DefaultCatalog())
	require.NoError(t, err)

	led, err := ledger.New(ctx, ledger.NewMemoryStore())
	require.NoError(t, err)

	h := &harness{cap: capability, ledger: led}

	cfg := Config{
		Networks: netReg,
		Adapters: adapters,
		Relay:    capability,
		Ledger:   led,
		OnStatus: func(rec *types.PaymentRecord) {
			h.mu.Lock()
			h.states = append(h.states, rec.State)
			h.mu.Unlock()
		},
	}
	if mutate != nil {
		mutate(capability, &cfg)
	}

	walletReg := wallets.NewRegistry(adapters, nil)
	walletReg.RegisterSigner(types.FamilyEVM, testWallet, capability)
	_, err = walletReg.Connect(ctx, types.FamilyEVM, testWallet)
	require.NoError(t, err)

	estimator := routing.NewFeeEstimator(netReg, capability, nil, nil)
	cfg.Wallets = walletReg
	cfg.Planner = routing.NewPlanner(netReg, estimator)

	h.exec = New(cfg)
	return h
}

// failingStore flips into a failure mode so persist errors are observable.
type failingStore struct {
	*ledger.MemoryStore
	failPuts bool
}

func (s *failingStore) Put(ctx context.Context, requestID string, record *types.PaymentRecord) error {
	if s.failPuts {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Put(ctx, requestID, record)
}

func request(id, source, destination string, amount int64) types.PaymentRequest {
	return types.PaymentRequest{
		RequestID:            id,
		SourceNetworkID:      source,
		DestinationNetworkID: destination,
		PayerAddress:         testPayer,
		RecipientAddress:     testRecipient,
		RequestedAmount:      decimal.NewFromInt(amount),
	}
}

func TestSameNetworkCompletes(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.exec.Execute(context.Background(), request("same-1", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err)
	assert.Equal(t, types.StateSameNetworkSubmitted, rec.State)
	assert.NotEmpty(t, rec.SourceTxRef)

	h.exec.Wait()

	final, err := h.ledger.Get("same-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, final.State)
	assert.Empty(t, final.RelayMessageRef, "same-network payments never touch the relay")
	assert.Empty(t, final.DestinationTxRef)
	assert.True(t, final.RelayFee.IsZero())
	assert.True(t, final.TotalCost.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, 0, h.cap.SendCalls)
}

func TestCrossNetworkCompletes(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.exec.Execute(context.Background(), request("cross-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.NoError(t, err)
	assert.Equal(t, types.StateCrossNetworkSubmitted, rec.State)

	h.exec.Wait()

	final, err := h.ledger.Get("cross-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, final.State)
	assert.NotEmpty(t, final.SourceTxRef)
	assert.NotEmpty(t, final.RelayMessageRef)
	assert.NotEmpty(t, final.DestinationTxRef)
	assert.True(t, final.RelayFee.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, final.TotalCost.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 1, h.cap.SendCalls)

	assert.Equal(t, []types.PaymentState{
		types.StateCrossNetworkSubmitted,
		types.StateRelayAccepted,
		types.StateRelayDelivered,
		types.StateCompleted,
	}, h.observedStates())
}

func TestStateTimestampsMonotonic(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.exec.Execute(context.Background(), request("mono-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.NoError(t, err)
	h.exec.Wait()

	final, err := h.ledger.Get("mono-1")
	require.NoError(t, err)
	assert.False(t, final.StateChangedAt.Before(final.InitiatedAt))
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.Before(final.InitiatedAt))
}

func TestInsufficientFundsFailsFast(t *testing.T) {
	h := newHarness(t, func(c *chains.FakeCapability, _ *Config) {
		c.Balance = decimal.NewFromInt(1)
	})

	_, err := h.exec.Execute(context.Background(), request("poor-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Fail-fast rejections leave no trace in the ledger.
	_, err = h.ledger.Get("poor-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, 0, h.cap.SendCalls)
}

func TestValidationRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.PaymentRequest)
		wantErr error
	}{
		{
			name:    "zero amount",
			mutate:  func(r *types.PaymentRequest) { r.RequestedAmount = decimal.Zero },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			mutate:  func(r *types.PaymentRequest) { r.RequestedAmount = decimal.NewFromInt(-5) },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown source",
			mutate:  func(r *types.PaymentRequest) { r.SourceNetworkID = "999999" },
			wantErr: ErrUnknownNetwork,
		},
		{
			name:    "unknown destination",
			mutate:  func(r *types.PaymentRequest) { r.DestinationNetworkID = "999999" },
			wantErr: ErrUnknownNetwork,
		},
		{
			name:    "unconnected payer",
			mutate:  func(r *types.PaymentRequest) { r.PayerAddress = "0x9999999999999999999999999999999999999999" },
			wantErr: ErrUnconnectedPayer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)

			req := request("reject-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10)
			tt.mutate(&req)

			_, err := h.exec.Execute(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)

			_, err = h.ledger.Get("reject-1")
			assert.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

func TestRouteInfeasibleRejected(t *testing.T) {
	h := newHarness(t, nil)

	// Solana Devnet is in the catalog but carries no relay lanes.
	_, err := h.exec.Execute(context.Background(), request("nolane-1", constants.NetworkEthereumSepolia, constants.NetworkSolanaDevnet, 10))
	require.ErrorIs(t, err, ErrRouteInfeasible)
	assert.Contains(t, err.Error(), types.ReasonNoRelayLane)
}

func TestSignerRejectionRecordsFailure(t *testing.T) {
	h := newHarness(t, func(c *chains.FakeCapability, _ *Config) {
		c.RejectSign = true
	})

	rec, err := h.exec.Execute(context.Background(), request("reject-sign", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err, "a rejection after acceptance lands in the record, not the error")
	assert.Equal(t, types.StateFailed, rec.State)
	assert.Contains(t, rec.ErrorDetail, types.ReasonSignerRejected)
	assert.Empty(t, rec.SourceTxRef)

	final, err := h.ledger.Get("reject-sign")
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, final.State)
}

func TestUndeliverableAfterAcceptance(t *testing.T) {
	h := newHarness(t, func(c *chains.FakeCapability, _ *Config) {
		c.Undeliverable = true
	})

	_, err := h.exec.Execute(context.Background(), request("undeliv-1", constants.NetworkEthereumSepolia, constants.NetworkBaseSepolia, 10))
	require.NoError(t, err)
	h.exec.Wait()

	final, err := h.ledger.Get("undeliv-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, final.State)
	assert.Contains(t, final.ErrorDetail, types.ReasonRelayUndeliverable)
	// The source leg already settled; only the destination leg is absent.
	assert.NotEmpty(t, final.SourceTxRef)
	assert.NotEmpty(t, final.RelayMessageRef)
	assert.Empty(t, final.DestinationTxRef)
}

func TestTimeoutFailsPendingDelivery(t *testing.T) {
	h := newHarness(t, func(c *chains.FakeCapability, cfg *Config) {
		c.PendingPolls = 1000
		cfg.Timeout = 100 * time.Millisecond
	})

	_, err := h.exec.Execute(context.Background(), request("slow-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.NoError(t, err)
	h.exec.Wait()

	final, err := h.ledger.Get("slow-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, final.State)
	assert.Contains(t, final.ErrorDetail, types.ReasonTimeout)
}

func TestIdempotentResubmission(t *testing.T) {
	h := newHarness(t, func(c *chains.FakeCapability, cfg *Config) {
		c.PendingPolls = 1000
		cfg.Timeout = 500 * time.Millisecond
	})
	ctx := context.Background()

	first, err := h.exec.Execute(ctx, request("idem-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.NoError(t, err)

	// Resubmitting while in flight returns the existing record and triggers
	// no second broadcast.
	again, err := h.exec.Execute(ctx, request("idem-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, again.RequestID)
	assert.Equal(t, first.SourceTxRef, again.SourceTxRef)

	h.exec.Wait()
	assert.Equal(t, 1, h.cap.SendCalls)
}

func TestResubmitAfterTerminal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.exec.Execute(ctx, request("done-1", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err)
	h.exec.Wait()

	rec, err := h.exec.Execute(ctx, request("done-1", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	require.NotNil(t, rec)
	assert.Equal(t, types.StateCompleted, rec.State)
}

func TestCrossNetworkRejectedWithoutRelay(t *testing.T) {
	h := newHarness(t, func(_ *chains.FakeCapability, cfg *Config) {
		cfg.Relay = nil
	})

	_, err := h.exec.Execute(context.Background(), request("norelay-1", constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
	require.ErrorIs(t, err, ErrRelayUnavailable)

	// Rejected before record creation, so nothing broadcasts and nothing
	// can be left stuck in a submitted state.
	_, err = h.ledger.Get("norelay-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	h.exec.Wait()
	assert.Equal(t, 0, h.cap.SendCalls)
}

func TestSameNetworkAllowedWithoutRelay(t *testing.T) {
	h := newHarness(t, func(_ *chains.FakeCapability, cfg *Config) {
		cfg.Relay = nil
	})

	_, err := h.exec.Execute(context.Background(), request("norelay-2", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err)
	h.exec.Wait()

	final, err := h.ledger.Get("norelay-2")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, final.State)
}

func TestFailedPersistRestoresRecord(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: ledger.NewMemoryStore()}
	led, err := ledger.New(ctx, store)
	require.NoError(t, err)

	e := New(Config{Ledger: led})

	initiated := time.Now().Add(-time.Minute)
	rec := &types.PaymentRecord{
		RequestID:      "persist-1",
		State:          types.StateSameNetworkSubmitted,
		SourceTxRef:    "0xsource",
		InitiatedAt:    initiated,
		StateChangedAt: initiated,
	}
	require.NoError(t, led.Append(ctx, rec))

	store.failPuts = true
	err = e.transitionLocked(ctx, rec, types.StateCompleted, func(r *types.PaymentRecord) {
		r.DestinationTxRef = "0xdest"
	})
	require.Error(t, err)

	// The in-memory handle carries no trace of the unpersisted transition.
	assert.Equal(t, types.StateSameNetworkSubmitted, rec.State)
	assert.Nil(t, rec.CompletedAt)
	assert.Empty(t, rec.DestinationTxRef)
	assert.True(t, rec.StateChangedAt.Equal(initiated))
}

func TestTerminalStateReleasesLock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.exec.Execute(ctx, request("lock-1", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err)
	h.exec.Wait()

	_, held := h.exec.locks.Load("lock-1")
	assert.False(t, held, "terminal records must not retain a lock entry")

	// Resubmission recreates the entry only transiently.
	_, err = h.exec.Execute(ctx, request("lock-1", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	_, held = h.exec.locks.Load("lock-1")
	assert.False(t, held)
}

func TestConcurrentDistinctRequests(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := []string{"par-1", "par-2", "par-3", "par-4", "par-5"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.exec.Execute(ctx, request(id, constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, 10))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	h.exec.Wait()

	for _, id := range ids {
		final, err := h.ledger.Get(id)
		require.NoError(t, err)
		assert.Equal(t, types.StateCompleted, final.State)
	}
	assert.Equal(t, len(ids), h.cap.SendCalls)
}

func TestGeneratesRequestID(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.exec.Execute(context.Background(), request("", constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, 10))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RequestID)

	h.exec.Wait()
	_, err = h.ledger.Get(rec.RequestID)
	assert.NoError(t, err)
}
