package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/executor"
	"github.com/petrkrulis2022/cubepay/pkg/ledger"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

const (
	enginePayer     = "0x1111111111111111111111111111111111111111"
	engineRecipient = "0x2222222222222222222222222222222222222222"
)

func newCapability() *chains.FakeCapability {
	return &chains.FakeCapability{
		Account: chains.Account{
			Address:   enginePayer,
			NetworkID: constants.NetworkEthereumSepolia,
		},
		Balance: decimal.NewFromInt(100),
		Fee:     decimal.RequireFromString("1.5"),
	}
}

func TestEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	capability := newCapability()

	eng, err := New(ctx,
		WithAdapter(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: capability}),
		WithRelay(capability),
	)
	require.NoError(t, err)

	eng.Wallets().RegisterSigner(types.FamilyEVM, "metamask", capability)
	_, err = eng.Wallets().Connect(ctx, types.FamilyEVM, "metamask")
	require.NoError(t, err)

	estimate := eng.Estimate(ctx, constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, decimal.NewFromInt(10))
	require.True(t, estimate.Feasible)
	assert.False(t, estimate.IsSameNetwork)
	assert.True(t, estimate.RelayFee.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, estimate.TotalCost.Equal(decimal.RequireFromString("11.5")))

	rec, err := eng.Execute(ctx, types.PaymentRequest{
		RequestID:            "e2e-1",
		SourceNetworkID:      constants.NetworkEthereumSepolia,
		DestinationNetworkID: constants.NetworkAvalancheFuji,
		PayerAddress:         enginePayer,
		RecipientAddress:     engineRecipient,
		RequestedAmount:      decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateCrossNetworkSubmitted, rec.State)

	eng.Wait()

	final, err := eng.Ledger().Get("e2e-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, final.State)
	assert.NotEmpty(t, final.DestinationTxRef)

	history := eng.Ledger().ByPayer(enginePayer, 10)
	require.Len(t, history, 1)
	assert.Equal(t, "e2e-1", history[0].RequestID)
}

func TestEngineDefaultsWithoutRelay(t *testing.T) {
	ctx := context.Background()

	// No relay configured: cross-network fees come from the fallback table.
	eng, err := New(ctx,
		WithAdapter(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: newCapability()}),
	)
	require.NoError(t, err)

	estimate := eng.Estimate(ctx, constants.NetworkEthereumSepolia, constants.NetworkBaseSepolia, decimal.NewFromInt(10))
	require.True(t, estimate.Feasible)
	assert.True(t, estimate.IsFallback)
	assert.True(t, estimate.RelayFee.Equal(decimal.RequireFromString(constants.FallbackRelayFee)))
}

func TestEngineWithoutRelayRejectsCrossNetwork(t *testing.T) {
	ctx := context.Background()
	capability := newCapability()

	eng, err := New(ctx,
		WithAdapter(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: capability}),
	)
	require.NoError(t, err)

	eng.Wallets().RegisterSigner(types.FamilyEVM, "metamask", capability)
	_, err = eng.Wallets().Connect(ctx, types.FamilyEVM, "metamask")
	require.NoError(t, err)

	// The route still prices with the fallback fee, but execution must be
	// refused before anything broadcasts: without a relay the engine could
	// never drive the payment to a terminal state.
	estimate := eng.Estimate(ctx, constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, decimal.NewFromInt(10))
	require.True(t, estimate.Feasible)
	assert.True(t, estimate.IsFallback)

	_, err = eng.Execute(ctx, types.PaymentRequest{
		RequestID:            "norelay-1",
		SourceNetworkID:      constants.NetworkEthereumSepolia,
		DestinationNetworkID: constants.NetworkAvalancheFuji,
		PayerAddress:         enginePayer,
		RecipientAddress:     engineRecipient,
		RequestedAmount:      decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, executor.ErrRelayUnavailable)

	_, err = eng.Ledger().Get("norelay-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	eng.Wait()
}

func TestEngineSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	capability := newCapability()

	store, err := ledger.NewFileStore(path)
	require.NoError(t, err)

	eng, err := New(ctx,
		WithAdapter(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: capability}),
		WithRelay(capability),
		WithStore(store),
	)
	require.NoError(t, err)

	eng.Wallets().RegisterSigner(types.FamilyEVM, "metamask", capability)
	_, err = eng.Wallets().Connect(ctx, types.FamilyEVM, "metamask")
	require.NoError(t, err)

	_, err = eng.Execute(ctx, types.PaymentRequest{
		RequestID:            "restart-1",
		SourceNetworkID:      constants.NetworkEthereumSepolia,
		DestinationNetworkID: constants.NetworkEthereumSepolia,
		PayerAddress:         enginePayer,
		RecipientAddress:     engineRecipient,
		RequestedAmount:      decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	eng.Wait()

	reloadedStore, err := ledger.NewFileStore(path)
	require.NoError(t, err)
	restarted, err := New(ctx, WithStore(reloadedStore))
	require.NoError(t, err)

	rec, err := restarted.Ledger().Get("restart-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, rec.State)

	// A completed payment stays finalized across restarts.
	_, err = restarted.Execute(ctx, types.PaymentRequest{
		RequestID:            "restart-1",
		SourceNetworkID:      constants.NetworkEthereumSepolia,
		DestinationNetworkID: constants.NetworkEthereumSepolia,
		PayerAddress:         enginePayer,
		RecipientAddress:     engineRecipient,
		RequestedAmount:      decimal.NewFromInt(5),
	})
	assert.Error(t, err)
}

func TestEngineStatusCallback(t *testing.T) {
	ctx := context.Background()
	capability := newCapability()

	var seen []types.PaymentState
	done := make(chan struct{})

	eng, err := New(ctx,
		WithAdapter(&chains.FakeAdapter{Fam: types.FamilyEVM, Capability: capability}),
		WithRelay(capability),
		WithStatusCallback(func(rec *types.PaymentRecord) {
			seen = append(seen, rec.State)
			if rec.State.Terminal() {
				close(done)
			}
		}),
	)
	require.NoError(t, err)

	eng.Wallets().RegisterSigner(types.FamilyEVM, "metamask", capability)
	_, err = eng.Wallets().Connect(ctx, types.FamilyEVM, "metamask")
	require.NoError(t, err)

	_, err = eng.Execute(ctx, types.PaymentRequest{
		RequestID:            "cb-1",
		SourceNetworkID:      constants.NetworkEthereumSepolia,
		DestinationNetworkID: constants.NetworkEthereumSepolia,
		PayerAddress:         enginePayer,
		RecipientAddress:     engineRecipient,
		RequestedAmount:      decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	eng.Wait()
	<-done

	assert.Equal(t, []types.PaymentState{
		types.StateSameNetworkSubmitted,
		types.StateCompleted,
	}, seen)
}
