package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/executor"
	"github.com/petrkrulis2022/cubepay/pkg/ledger"
	"github.com/petrkrulis2022/cubepay/pkg/logger"
	"github.com/petrkrulis2022/cubepay/pkg/metrics"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/routing"
	"github.com/petrkrulis2022/cubepay/pkg/types"
	"github.com/petrkrulis2022/cubepay/pkg/wallets"
)

// Engine is one explicit instance of the payment orchestration core: the
// network catalog, wallet registry, route planner, payment executor and
// ledger, constructed once per process and passed to callers. No ambient
// global state, so concurrent instances are fine.
type Engine struct {
	networks *networks.Registry
	wallets  *wallets.Registry
	adapters *chains.Registry
	planner  *routing.Planner
	executor *executor.Executor
	ledger   *ledger.Ledger

	// construction-time settings
	catalog  []networks.Descriptor
	relay    chains.Relay
	store    ledger.Store
	log      logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	onStatus executor.StatusCallback
}

// New builds an engine. Without options it uses the built-in testnet
// catalog, an in-memory ledger store, no relay and no registered family
// adapters. Without a relay, cross-network routes still estimate (fallback
// priced) but cross-network execution is rejected at admission.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		adapters: chains.NewRegistry(),
		catalog:  networks.DefaultCatalog(),
		store:    ledger.NewMemoryStore(),
		log:      logger.Noop{},
		metrics:  metrics.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}

	reg, err := networks.NewRegistry(e.catalog)
	if err != nil {
		return nil, err
	}
	e.networks = reg

	led, err := ledger.New(ctx, e.store)
	if err != nil {
		return nil, err
	}
	e.ledger = led

	e.wallets = wallets.NewRegistry(e.adapters, e.log)

	estimator := routing.NewFeeEstimator(e.networks, e.relay, e.log, e.metrics)
	e.planner = routing.NewPlanner(e.networks, estimator)

	e.executor = executor.New(executor.Config{
		Networks: e.networks,
		Wallets:  e.wallets,
		Adapters: e.adapters,
		Planner:  e.planner,
		Relay:    e.relay,
		Ledger:   e.ledger,
		Logger:   e.log,
		Metrics:  e.metrics,
		Timeout:  e.timeout,
		OnStatus: e.onStatus,
	})

	return e, nil
}

// Networks exposes the network catalog.
func (e *Engine) Networks() *networks.Registry { return e.networks }

// Wallets exposes the wallet registry.
func (e *Engine) Wallets() *wallets.Registry { return e.wallets }

// Ledger exposes the payment ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Estimate plans and prices a route. Infeasibility is carried on the
// estimate, not returned as an error.
func (e *Engine) Estimate(ctx context.Context, source, destination string, amount decimal.Decimal) types.RouteEstimate {
	return e.planner.Plan(ctx, source, destination, amount)
}

// Execute drives a payment request through the settlement lifecycle. See
// executor.Executor.Execute for the idempotency contract.
func (e *Engine) Execute(ctx context.Context, req types.PaymentRequest) (*types.PaymentRecord, error) {
	return e.executor.Execute(ctx, req)
}

// Wait blocks until all in-flight payments have reached a terminal state.
func (e *Engine) Wait() {
	e.executor.Wait()
}
