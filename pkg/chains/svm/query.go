package svm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
)

// Query implements chains.ChainQuery for cluster-based chains.
type Query struct {
	endpoints map[string][]string // networkID -> RPC endpoints
}

// NewQuery creates an SVM chain query client over the given per-network
// endpoint sets.
func NewQuery(endpoints map[string][]string) *Query {
	return &Query{endpoints: endpoints}
}

var _ chains.ChainQuery = (*Query)(nil)

// GetBalance implements chains.ChainQuery. Balances are returned in whole
// native-token units.
func (q *Query) GetBalance(ctx context.Context, address, networkID string) (decimal.Decimal, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid SVM address %s: %w", address, err)
	}

	var balance decimal.Decimal
	err = q.withEndpoints(ctx, networkID, constants.BalanceQueryTimeout, func(callCtx context.Context, client *rpc.Client) error {
		out, err := client.GetBalance(callCtx, pubkey, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		balance = decimal.New(int64(out.Value), -constants.LamportDecimals)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// GetTransactionStatus implements chains.ChainQuery. An unknown signature is
// reported as pending; the cluster may simply not have seen it yet.
func (q *Query) GetTransactionStatus(ctx context.Context, txRef, networkID string) (chains.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return chains.TxPending, fmt.Errorf("invalid SVM transaction signature %s: %w", txRef, err)
	}

	status := chains.TxPending
	err = q.withEndpoints(ctx, networkID, constants.ReceiptQueryTimeout, func(callCtx context.Context, client *rpc.Client) error {
		out, err := client.GetSignatureStatuses(callCtx, true, sig)
		if err != nil {
			return err
		}
		if len(out.Value) == 0 || out.Value[0] == nil {
			status = chains.TxPending
			return nil
		}
		st := out.Value[0]
		switch {
		case st.Err != nil:
			status = chains.TxFailed
		case st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
			st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed:
			status = chains.TxConfirmed
		default:
			status = chains.TxPending
		}
		return nil
	})
	if err != nil {
		return chains.TxPending, err
	}
	return status, nil
}

// withEndpoints cycles through the network's RPC endpoints with a random
// start position for load balancing, returning after the first success.
func (q *Query) withEndpoints(ctx context.Context, networkID string, timeout time.Duration, call func(context.Context, *rpc.Client) error) error {
	endpoints := q.endpoints[networkID]
	if len(endpoints) == 0 {
		return fmt.Errorf("no RPC endpoints configured for network %s", networkID)
	}

	startIdx := rand.Intn(len(endpoints))
	var lastErr error

	for i := 0; i < len(endpoints); i++ {
		if i > 0 {
			delay := time.Duration(i*constants.DelayBetweenRPCCalls) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		endpoint := endpoints[(startIdx+i)%len(endpoints)]
		client := rpc.New(endpoint)

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := call(callCtx, client)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all RPC endpoints failed for network %s: %w", networkID, lastErr)
}
