package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/types"
	"github.com/petrkrulis2022/cubepay/pkg/wallets"
)

// submit signs and broadcasts on the source network, moves the record into
// its submitted state, and hands the rest of the lifecycle to an async
// driver. Called with the request's lock held.
func (e *Executor) submit(ctx context.Context, rec *types.PaymentRecord, req types.PaymentRequest, route types.RouteEstimate, conn wallets.Connection) {
	signer, err := e.wallets.Signer(conn.NetworkFamily, conn.WalletKind)
	if err != nil {
		e.failLocked(ctx, rec, types.ReasonSignerRejected, err.Error())
		return
	}

	intent := chains.TxIntent{
		NetworkID: req.SourceNetworkID,
		From:      req.PayerAddress,
		To:        req.RecipientAddress,
		Amount:    req.RequestedAmount,
		Metadata:  req.Metadata,
	}

	var lane types.Lane
	if !route.IsSameNetwork {
		lane, _ = e.networks.LaneFor(req.SourceNetworkID, req.DestinationNetworkID)
		intent.RelayRouter = lane.Router
		intent.LaneSelector = lane.Selector
		// Cross-network submissions carry the relay fee on the source side.
		intent.Amount = route.TotalCost
	}

	txRef, err := signer.SignAndBroadcast(ctx, intent)
	if err != nil {
		reason := types.ReasonBroadcastRejected
		if strings.Contains(strings.ToLower(err.Error()), "reject") {
			reason = types.ReasonSignerRejected
		}
		if strings.Contains(strings.ToLower(err.Error()), "insufficient") {
			reason = types.ReasonInsufficientFunds
		}
		e.failLocked(ctx, rec, reason, err.Error())
		return
	}

	next := types.StateSameNetworkSubmitted
	if !route.IsSameNetwork {
		next = types.StateCrossNetworkSubmitted
	}
	if err := e.transitionLocked(ctx, rec, next, func(r *types.PaymentRecord) {
		r.SourceTxRef = txRef
	}); err != nil {
		e.failLocked(ctx, rec, types.ReasonBroadcastRejected, err.Error())
		return
	}

	e.wg.Add(1)
	go e.drive(rec, conn, lane, route.IsSameNetwork)
}

// drive advances a submitted payment to a terminal state. It runs detached
// from the caller's context: broadcast actions are not revocable, so the
// lifecycle is bounded by the executor's own timeout instead.
func (e *Executor) drive(rec *types.PaymentRecord, conn wallets.Connection, lane types.Lane, sameNetwork bool) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	start := time.Now()
	labels := map[string]string{"source": rec.SourceNetworkID, "destination": rec.DestinationNetworkID}
	defer func() {
		e.metrics.ObserveLatency("execute", time.Since(start), labels)
	}()

	if sameNetwork {
		e.driveSameNetwork(ctx, rec, conn)
	} else {
		e.driveCrossNetwork(ctx, rec, lane)
	}

	final, err := e.ledger.Get(rec.RequestID)
	if err != nil {
		return
	}
	switch final.State {
	case types.StateCompleted:
		e.metrics.IncCounter("payment_completed", labels)
	case types.StateFailed:
		e.metrics.IncCounter("payment_failed", labels)
	}
}

// driveSameNetwork waits for the source broadcast to confirm.
func (e *Executor) driveSameNetwork(ctx context.Context, rec *types.PaymentRecord, conn wallets.Connection) {
	adapter, err := e.adapters.Get(conn.NetworkFamily)
	if err != nil {
		e.fail(ctx, rec, types.ReasonBroadcastRejected, err.Error())
		return
	}

	for {
		status, err := adapter.Query().GetTransactionStatus(ctx, rec.SourceTxRef, rec.SourceNetworkID)
		if err == nil {
			switch status {
			case chains.TxConfirmed:
				e.complete(ctx, rec)
				return
			case chains.TxFailed:
				e.fail(ctx, rec, types.ReasonBroadcastRejected, "source transaction reverted")
				return
			}
		}

		if !e.sleep(ctx, rec) {
			return
		}
	}
}

// driveCrossNetwork sends the relay message and polls delivery.
func (e *Executor) driveCrossNetwork(ctx context.Context, rec *types.PaymentRecord, lane types.Lane) {
	payload := chains.RelayPayload{
		Sender:    rec.PayerAddress,
		Recipient: rec.RecipientAddress,
		Amount:    rec.RequestedAmount,
	}

	msgRef, err := e.relay.SendMessage(ctx, lane, payload)
	if err != nil {
		if ctx.Err() != nil {
			e.fail(ctx, rec, types.ReasonTimeout, "relay did not accept the message in time")
			return
		}
		e.fail(ctx, rec, types.ReasonRelayUndeliverable, err.Error())
		return
	}

	if err := e.transition(ctx, rec, types.StateRelayAccepted, func(r *types.PaymentRecord) {
		r.RelayMessageRef = msgRef
	}); err != nil {
		return
	}

	for {
		result, err := e.relay.PollDelivery(ctx, msgRef)
		if err == nil {
			switch result.Status {
			case chains.DeliveryDelivered:
				if err := e.transition(ctx, rec, types.StateRelayDelivered, func(r *types.PaymentRecord) {
					r.DestinationTxRef = result.DestinationTxRef
				}); err != nil {
					return
				}
				e.complete(ctx, rec)
				return
			case chains.DeliveryUndeliverable:
				e.fail(ctx, rec, types.ReasonRelayUndeliverable, "relay reported the message undeliverable")
				return
			}
		}

		if !e.sleep(ctx, rec) {
			return
		}
	}
}

// sleep waits one poll interval; on timeout it fails the record and reports
// false.
func (e *Executor) sleep(ctx context.Context, rec *types.PaymentRecord) bool {
	select {
	case <-ctx.Done():
		e.fail(ctx, rec, types.ReasonTimeout, "no terminal state within the execution timeout")
		return false
	case <-time.After(constants.RelayPollInterval):
		return true
	}
}

func (e *Executor) complete(ctx context.Context, rec *types.PaymentRecord) {
	_ = e.transition(ctx, rec, types.StateCompleted, nil)
}

// transition acquires the request's lock and applies one forward step.
func (e *Executor) transition(ctx context.Context, rec *types.PaymentRecord, next types.PaymentState, mutate func(*types.PaymentRecord)) error {
	lock := e.lockFor(rec.RequestID)
	lock.Lock()
	defer lock.Unlock()
	return e.transitionLocked(ctx, rec, next, mutate)
}

// transitionLocked applies one forward step of the state machine and writes
// the updated record through the ledger. Called with the request's lock held.
func (e *Executor) transitionLocked(ctx context.Context, rec *types.PaymentRecord, next types.PaymentState, mutate func(*types.PaymentRecord)) error {
	if !rec.State.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition %s -> %s for %s", rec.State, next, rec.RequestID)
	}

	snapshot := rec.Clone()

	now := time.Now()
	if now.Before(rec.StateChangedAt) {
		now = rec.StateChangedAt
	}

	rec.State = next
	rec.StateChangedAt = now
	if mutate != nil {
		mutate(rec)
	}
	if next == types.StateCompleted {
		completed := now
		rec.CompletedAt = &completed
	}

	// The ledger write must not be lost to a cancelled caller context.
	if err := e.ledger.Update(context.WithoutCancel(ctx), rec); err != nil {
		*rec = *snapshot
		return fmt.Errorf("persisting transition for %s: %w", rec.RequestID, err)
	}

	// Terminal records accept no further transitions, so their lock entry
	// can go; a resubmission recreates it and sees the terminal state.
	if next.Terminal() {
		e.locks.Delete(rec.RequestID)
	}

	e.log.Info("payment state changed", map[string]any{
		"requestId": rec.RequestID,
		"from":      string(snapshot.State),
		"to":        string(next),
	})

	if e.onStatus != nil {
		e.onStatus(rec.Clone())
	}
	return nil
}

// fail moves the record to Failed with a reason code and detail. A no-op when
// the record is already terminal.
func (e *Executor) fail(ctx context.Context, rec *types.PaymentRecord, reason, detail string) {
	lock := e.lockFor(rec.RequestID)
	lock.Lock()
	defer lock.Unlock()
	e.failLocked(ctx, rec, reason, detail)
}

func (e *Executor) failLocked(ctx context.Context, rec *types.PaymentRecord, reason, detail string) {
	if rec.State.Terminal() {
		return
	}
	err := e.transitionLocked(ctx, rec, types.StateFailed, func(r *types.PaymentRecord) {
		r.ErrorDetail = reason + ": " + detail
	})
	if err != nil {
		e.log.Error("failed to record payment failure", map[string]any{
			"requestId": rec.RequestID,
			"reason":    reason,
			"error":     err.Error(),
		})
		return
	}
	e.log.Warn("payment failed", map[string]any{
		"requestId": rec.RequestID,
		"reason":    reason,
		"detail":    detail,
	})
}
