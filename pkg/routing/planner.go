package routing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// Planner decides whether a payment settles directly or must be relayed, and
// prices the route. Cheap registry checks run before any external fee lookup
// so invalid requests never cost a network round-trip.
type Planner struct {
	networks  *networks.Registry
	estimator CrossNetworkEstimator
}

// NewPlanner creates a route planner over the network catalog and a
// cross-network estimator.
func NewPlanner(reg *networks.Registry, estimator CrossNetworkEstimator) *Planner {
	return &Planner{networks: reg, estimator: estimator}
}

// Plan resolves a route from source to destination for the given amount.
// Infeasibility is a normal outcome carried on the estimate, never an error.
func (p *Planner) Plan(ctx context.Context, source, destination string, amount decimal.Decimal) types.RouteEstimate {
	if _, err := p.networks.Describe(source); err != nil {
		return types.Infeasible(types.ReasonUnknownNetwork)
	}
	if _, err := p.networks.Describe(destination); err != nil {
		return types.Infeasible(types.ReasonUnknownNetwork)
	}

	if source == destination {
		return types.RouteEstimate{
			Feasible:                true,
			IsSameNetwork:           true,
			RelayFee:                decimal.Zero,
			TotalCost:               amount,
			EstimatedDeliveryWindow: constants.DeliveryWindowSameNetwork,
		}
	}

	if !p.networks.CanReach(source, destination) {
		return types.Infeasible(types.ReasonNoRelayLane)
	}

	return p.estimator.EstimateCrossNetworkFee(ctx, source, destination, amount)
}
