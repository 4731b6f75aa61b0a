package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/ledger"
	"github.com/petrkrulis2022/cubepay/pkg/logger"
	"github.com/petrkrulis2022/cubepay/pkg/metrics"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
	"github.com/petrkrulis2022/cubepay/pkg/routing"
	"github.com/petrkrulis2022/cubepay/pkg/types"
	"github.com/petrkrulis2022/cubepay/pkg/wallets"
)

var (
	// ErrInvalidAmount rejects non-positive requested amounts.
	ErrInvalidAmount = errors.New("requested amount must be positive")

	// ErrUnknownNetwork rejects requests naming networks outside the catalog.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrUnconnectedPayer rejects requests whose payer address is not backed
	// by a live wallet connection on the source network.
	ErrUnconnectedPayer = errors.New("payer address is not a connected wallet")

	// ErrInvalidAddress rejects malformed payer or recipient addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrRouteInfeasible rejects requests whose route cannot be planned.
	ErrRouteInfeasible = errors.New("route infeasible")

	// ErrRelayUnavailable rejects cross-network requests when no relay
	// capability is configured; estimates still work, execution cannot.
	ErrRelayUnavailable = errors.New("no relay capability configured")

	// ErrInsufficientFunds rejects requests the selected wallet cannot cover.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyFinalized is returned when a request ID is resubmitted after
	// its record reached a terminal state.
	ErrAlreadyFinalized = errors.New("payment already finalized")
)

// StatusCallback observes every state transition of a payment record. The
// record passed in is a private copy.
type StatusCallback func(record *types.PaymentRecord)

// Executor drives a payment request through its settlement lifecycle:
// validate, route, select a wallet, sign and broadcast through the external
// capability, then advance the state machine to a terminal outcome.
type Executor struct {
	networks *networks.Registry
	wallets  *wallets.Registry
	adapters *chains.Registry
	planner  *routing.Planner
	relay    chains.Relay
	ledger   *ledger.Ledger
	log      logger.Logger
	metrics  metrics.Recorder
	validate *validator.Validate

	timeout  time.Duration
	onStatus StatusCallback

	// locks serializes transitions per request ID: never two transitions for
	// the same payment in flight concurrently.
	locks sync.Map // requestID -> *sync.Mutex

	wg sync.WaitGroup
}

// Config wires the executor's collaborators.
type Config struct {
	Networks *networks.Registry
	Wallets  *wallets.Registry
	Adapters *chains.Registry
	Planner  *routing.Planner
	Relay    chains.Relay
	Ledger   *ledger.Ledger

	Logger  logger.Logger
	Metrics metrics.Recorder

	// Timeout bounds the time from acceptance to a terminal state. When it
	// elapses, the record fails with reason Timeout. Zero means
	// constants.DefaultExecuteTimeout.
	Timeout time.Duration

	// OnStatus, when set, is invoked after every state transition.
	OnStatus StatusCallback
}

// New creates a payment executor.
func New(cfg Config) *Executor {
	log := cfg.Logger
	if log == nil {
		log = logger.Noop{}
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultExecuteTimeout
	}
	return &Executor{
		networks: cfg.Networks,
		wallets:  cfg.Wallets,
		adapters: cfg.Adapters,
		planner:  cfg.Planner,
		relay:    cfg.Relay,
		ledger:   cfg.Ledger,
		log:      log,
		metrics:  rec,
		validate: validator.New(),
		timeout:  timeout,
		onStatus: cfg.OnStatus,
	}
}

// Execute accepts a payment request and returns its record as a synchronous
// handle. On return the record is in a submitted state (or already Failed if
// broadcast was rejected); the terminal state is reached asynchronously and
// is observable via the ledger or the status callback.
//
// Resubmitting a request ID while its record is non-terminal returns the
// existing record; resubmitting after a terminal state returns
// ErrAlreadyFinalized.
func (e *Executor) Execute(ctx context.Context, req types.PaymentRequest) (*types.PaymentRecord, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	lock := e.lockFor(req.RequestID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := e.ledger.Get(req.RequestID); err == nil {
		if existing.State.Terminal() {
			e.locks.Delete(req.RequestID)
			return existing, fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, req.RequestID, existing.State)
		}
		return existing, nil
	}

	route, conn, err := e.admit(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &types.PaymentRecord{
		RequestID:            req.RequestID,
		State:                types.StateCreated,
		SourceNetworkID:      req.SourceNetworkID,
		DestinationNetworkID: req.DestinationNetworkID,
		PayerAddress:         req.PayerAddress,
		RecipientAddress:     req.RecipientAddress,
		RequestedAmount:      req.RequestedAmount,
		RelayFee:             route.RelayFee,
		TotalCost:            route.TotalCost,
		InitiatedAt:          now,
		StateChangedAt:       now,
	}
	if err := e.ledger.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("recording payment %s: %w", req.RequestID, err)
	}

	e.log.Info("payment accepted", map[string]any{
		"requestId":   req.RequestID,
		"source":      req.SourceNetworkID,
		"destination": req.DestinationNetworkID,
		"amount":      req.RequestedAmount.String(),
		"totalCost":   route.TotalCost.String(),
		"sameNetwork": route.IsSameNetwork,
		"fallbackFee": route.IsFallback,
	})

	// From here on every problem lands in a terminal Failed record; the
	// accepted request always leaves a queryable trace.
	e.submit(ctx, record, req, route, conn)
	return record.Clone(), nil
}

// admit runs the fail-fast validation that precedes record creation:
// well-formed request, known networks, valid addresses, connected payer,
// feasible route, affordable wallet.
func (e *Executor) admit(ctx context.Context, req types.PaymentRequest) (types.RouteEstimate, wallets.Connection, error) {
	var none wallets.Connection

	if err := e.validate.Struct(req); err != nil {
		return types.RouteEstimate{}, none, fmt.Errorf("invalid payment request: %w", err)
	}
	if !req.RequestedAmount.IsPositive() {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: got %s", ErrInvalidAmount, req.RequestedAmount)
	}

	src, err := e.networks.Describe(req.SourceNetworkID)
	if err != nil {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: source %s", ErrUnknownNetwork, req.SourceNetworkID)
	}
	dst, err := e.networks.Describe(req.DestinationNetworkID)
	if err != nil {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: destination %s", ErrUnknownNetwork, req.DestinationNetworkID)
	}

	if err := e.checkAddress(src.Family, req.PayerAddress); err != nil {
		return types.RouteEstimate{}, none, fmt.Errorf("payer: %w", err)
	}
	if err := e.checkAddress(dst.Family, req.RecipientAddress); err != nil {
		return types.RouteEstimate{}, none, fmt.Errorf("recipient: %w", err)
	}

	conn, ok := e.wallets.FindByAddress(req.PayerAddress, req.SourceNetworkID)
	if !ok {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: %s on %s", ErrUnconnectedPayer, req.PayerAddress, req.SourceNetworkID)
	}

	route := e.planner.Plan(ctx, req.SourceNetworkID, req.DestinationNetworkID, req.RequestedAmount)
	if !route.Feasible {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: %s", ErrRouteInfeasible, route.InfeasibilityReason)
	}
	if !route.IsSameNetwork && e.relay == nil {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: cross-network route %s -> %s",
			ErrRelayUnavailable, req.SourceNetworkID, req.DestinationNetworkID)
	}

	// Refresh is best effort: a stale cache is acceptable here, the final
	// arbiter is the broadcast itself.
	if fresh, err := e.wallets.RefreshBalance(ctx, conn.NetworkFamily, conn.WalletKind); err == nil {
		conn.TokenBalance = fresh
	}
	if conn.TokenBalance.LessThan(route.TotalCost) {
		return types.RouteEstimate{}, none, fmt.Errorf("%w: balance %s < total cost %s",
			ErrInsufficientFunds, conn.TokenBalance, route.TotalCost)
	}

	return route, conn, nil
}

func (e *Executor) checkAddress(family types.NetworkFamily, address string) error {
	adapter, err := e.adapters.Get(family)
	if err != nil {
		// No adapter registered for the family: nothing to validate against.
		return nil
	}
	if !adapter.Addresses().IsValidAddress(address) {
		return fmt.Errorf("%w: %q for family %s", ErrInvalidAddress, address, family)
	}
	return nil
}

// Wait blocks until all in-flight payments have reached a terminal state.
// Intended for tests and orderly shutdown.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) lockFor(requestID string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(requestID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
