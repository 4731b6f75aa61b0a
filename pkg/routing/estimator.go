package routing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/logger"
	"github.com/petrkrulis2022/cubepay/pkg/metrics"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// CrossNetworkEstimator prices a cross-network route. Extracted as an
// interface so the planner can be exercised against a counting stub.
type CrossNetworkEstimator interface {
	EstimateCrossNetworkFee(ctx context.Context, source, destination string, amount decimal.Decimal) types.RouteEstimate
}

// FeeEstimator quotes relay fees through the external relay capability,
// falling back to a flat conservative fee when no live quote exists.
type FeeEstimator struct {
	networks *networks.Registry
	relay    chains.Relay
	log      logger.Logger
	metrics  metrics.Recorder
}

// NewFeeEstimator creates a fee estimator. relay may be nil, in which case
// every estimate is fallback-priced.
func NewFeeEstimator(reg *networks.Registry, relay chains.Relay, log logger.Logger, rec metrics.Recorder) *FeeEstimator {
	if log == nil {
		log = logger.Noop{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &FeeEstimator{networks: reg, relay: relay, log: log, metrics: rec}
}

var _ CrossNetworkEstimator = (*FeeEstimator)(nil)

// EstimateCrossNetworkFee implements CrossNetworkEstimator. The quote is
// scoped to the specific lane between the two networks; the estimate is
// always recomputed because fee data is time-sensitive.
func (e *FeeEstimator) EstimateCrossNetworkFee(ctx context.Context, source, destination string, amount decimal.Decimal) types.RouteEstimate {
	labels := map[string]string{"source": source, "destination": destination}
	start := time.Now()
	defer func() {
		e.metrics.ObserveLatency("quote_fee", time.Since(start), labels)
	}()

	if _, ok := e.networks.LaneFor(source, destination); !ok {
		return types.Infeasible(types.ReasonNoRelayLane)
	}

	if e.relay != nil {
		quoteCtx, cancel := context.WithTimeout(ctx, constants.RelayQuoteTimeout)
		fee, err := e.relay.QuoteFee(quoteCtx, source, destination, amount)
		cancel()
		if err == nil {
			return crossEstimate(amount, fee, false)
		}
		if !errors.Is(err, chains.ErrQuoteUnavailable) {
			e.log.Warn("relay quote failed, using fallback fee", map[string]any{
				"source":      source,
				"destination": destination,
				"error":       err.Error(),
			})
		}
	}

	// No live quote. A flat fallback is only safe when the destination's fee
	// token is known; otherwise the number would be meaningless.
	dst, err := e.networks.Describe(destination)
	if err != nil || dst.FeeTokenSymbol == "" {
		return types.Infeasible(types.ReasonFeeDataUnavailable)
	}

	e.metrics.IncCounter("fallback_quote", labels)
	return crossEstimate(amount, decimal.RequireFromString(constants.FallbackRelayFee), true)
}

func crossEstimate(amount, fee decimal.Decimal, fallback bool) types.RouteEstimate {
	return types.RouteEstimate{
		Feasible:                true,
		IsSameNetwork:           false,
		RelayFee:                fee,
		TotalCost:               amount.Add(fee),
		EstimatedDeliveryWindow: constants.DeliveryWindowCrossNetwork,
		IsFallback:              fallback,
	}
}
