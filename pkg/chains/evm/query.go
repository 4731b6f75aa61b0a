package evm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
)

// Query implements chains.ChainQuery for account-based chains over JSON-RPC.
type Query struct {
	endpoints map[string][]string // networkID -> RPC endpoints
}

// NewQuery creates an EVM chain query client over the given per-network
// endpoint sets.
func NewQuery(endpoints map[string][]string) *Query {
	return &Query{endpoints: endpoints}
}

var _ chains.ChainQuery = (*Query)(nil)

// GetBalance implements chains.ChainQuery. Balances are returned in whole
// native-token units.
func (q *Query) GetBalance(ctx context.Context, address, networkID string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid EVM address: %s", address)
	}

	var wei decimal.Decimal
	err := q.withEndpoints(ctx, networkID, constants.BalanceQueryTimeout, func(callCtx context.Context, client *ethclient.Client) error {
		raw, err := client.BalanceAt(callCtx, common.HexToAddress(address), nil)
		if err != nil {
			return err
		}
		wei = decimal.NewFromBigInt(raw, -constants.EtherDecimals)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return wei, nil
}

// GetTransactionStatus implements chains.ChainQuery. A missing receipt means
// the transaction is still pending.
func (q *Query) GetTransactionStatus(ctx context.Context, txRef, networkID string) (chains.TxStatus, error) {
	status := chains.TxPending
	err := q.withEndpoints(ctx, networkID, constants.ReceiptQueryTimeout, func(callCtx context.Context, client *ethclient.Client) error {
		receipt, err := client.TransactionReceipt(callCtx, common.HexToHash(txRef))
		if errors.Is(err, ethereum.NotFound) {
			status = chains.TxPending
			return nil
		}
		if err != nil {
			return err
		}
		if receipt.Status == 1 {
			status = chains.TxConfirmed
		} else {
			status = chains.TxFailed
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
func (q *Query) withEndpoints(ctx context.Context, networkID string, timeout time.Duration, call func(context.Context, *ethclient.Client) error) error {
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

		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = call(callCtx, client)
		client.Close()
		cancel()

		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all RPC endpoints failed for network %s: %w", networkID, lastErr)
}
