package routing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// countingEstimator records invocations so tests can assert the planner
// short-circuits before asking for a quote.
type countingEstimator struct {
	calls    int
	estimate types.RouteEstimate
}

func (c *countingEstimator) EstimateCrossNetworkFee(_ context.Context, _, _ string, _ decimal.Decimal) types.RouteEstimate {
	c.calls++
	return c.estimate
}

func newPlanner(t *testing.T, estimator CrossNetworkEstimator) *Planner {
	t.Helper()
	reg, err := networks.NewRegistry(networks.DefaultCatalog())
	require.NoError(t, err)
	return NewPlanner(reg, estimator)
}

func TestPlanSameNetworkNeverCarriesRelayFee(t *testing.T) {
	estimator := &countingEstimator{}
	planner := newPlanner(t, estimator)

	amount := decimal.NewFromFloat(10.0)
	est := planner.Plan(context.Background(), constants.NetworkEthereumSepolia, constants.NetworkEthereumSepolia, amount)

	assert.True(t, est.Feasible)
	assert.True(t, est.IsSameNetwork)
	assert.True(t, est.RelayFee.IsZero())
	assert.True(t, est.TotalCost.Equal(amount))
	assert.Equal(t, constants.DeliveryWindowSameNetwork, est.EstimatedDeliveryWindow)
	assert.Zero(t, estimator.calls)
}

func TestPlanSameNetworkFeasibleForEveryCatalogEntry(t *testing.T) {
	estimator := &countingEstimator{}
	reg, err := networks.NewRegistry(networks.DefaultCatalog())
	require.NoError(t, err)
	planner := NewPlanner(reg, estimator)

	for _, id := range reg.NetworkIDs() {
		est := planner.Plan(context.Background(), id, id, decimal.NewFromInt(1))
		assert.True(t, est.Feasible, "plan(%s, %s) should be feasible", id, id)
		assert.True(t, est.IsSameNetwork)
	}
}

func TestPlanUnknownNetwork(t *testing.T) {
	estimator := &countingEstimator{}
	planner := newPlanner(t, estimator)

	est := planner.Plan(context.Background(), "999999", constants.NetworkEthereumSepolia, decimal.NewFromInt(1))
	assert.False(t, est.Feasible)
	assert.Equal(t, types.ReasonUnknownNetwork, est.InfeasibilityReason)

	est = planner.Plan(context.Background(), constants.NetworkEthereumSepolia, "999999", decimal.NewFromInt(1))
	assert.False(t, est.Feasible)
	assert.Equal(t, types.ReasonUnknownNetwork, est.InfeasibilityReason)

	assert.Zero(t, estimator.calls)
}

func TestPlanNoLaneSkipsEstimator(t *testing.T) {
	estimator := &countingEstimator{}
	planner := newPlanner(t, estimator)

	// Solana Devnet has no relay lanes in the default catalog.
	est := planner.Plan(context.Background(), constants.NetworkSolanaDevnet, constants.NetworkEthereumSepolia, decimal.NewFromInt(1))

	assert.False(t, est.Feasible)
	assert.Equal(t, types.ReasonNoRelayLane, est.InfeasibilityReason)
	assert.Zero(t, estimator.calls, "fee estimator must not be invoked when no lane exists")
}

func TestPlanCrossNetworkDelegatesToEstimator(t *testing.T) {
	amount := decimal.NewFromFloat(10.0)
	fee := decimal.NewFromFloat(2.5)
	estimator := &countingEstimator{
		estimate: types.RouteEstimate{
			Feasible:                true,
			RelayFee:                fee,
			TotalCost:               amount.Add(fee),
			EstimatedDeliveryWindow: constants.DeliveryWindowCrossNetwork,
		},
	}
	planner := newPlanner(t, estimator)

	est := planner.Plan(context.Background(), constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, amount)

	assert.True(t, est.Feasible)
	assert.False(t, est.IsSameNetwork)
	assert.True(t, est.RelayFee.Equal(fee))
	assert.True(t, est.TotalCost.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, constants.DeliveryWindowCrossNetwork, est.EstimatedDeliveryWindow)
	assert.Equal(t, 1, estimator.calls)
}

func TestPlanPropagatesEstimatorInfeasibility(t *testing.T) {
	estimator := &countingEstimator{estimate: types.Infeasible(types.ReasonFeeDataUnavailable)}
	planner := newPlanner(t, estimator)

	est := planner.Plan(context.Background(), constants.NetworkEthereumSepolia, constants.NetworkAvalancheFuji, decimal.NewFromInt(1))
	assert.False(t, est.Feasible)
	assert.Equal(t, types.ReasonFeeDataUnavailable, est.InfeasibilityReason)
}
