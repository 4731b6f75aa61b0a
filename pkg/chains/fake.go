package chains

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// FakeCapability implements Signer, ChainQuery and Relay deterministically.
// References are content hashes of their inputs, so tests get stable values
// without touching a network. Knobs flip individual failure modes.
type FakeCapability struct {
	mu sync.Mutex

	Account    Account
	Balance    decimal.Decimal
	BalanceErr error
	Fee        decimal.Decimal

	DenyConnect   bool // Connect returns ErrConnectionDenied
	RejectSign    bool // SignAndBroadcast fails before broadcast
	QuoteErr      error
	Undeliverable bool // delivery polls resolve to undeliverable
	PendingPolls  int  // polls that report pending before a terminal status

	QuoteFeeCalls int
	SendCalls     int

	polls map[string]int
}

var _ Signer = (*FakeCapability)(nil)
var _ ChainQuery = (*FakeCapability)(nil)
var _ Relay = (*FakeCapability)(nil)

func (f *FakeCapability) Connect(_ context.Context) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DenyConnect {
		return Account{}, ErrConnectionDenied
	}
	return f.Account, nil
}

func (f *FakeCapability) Disconnect(_ context.Context) error {
	return nil
}

func (f *FakeCapability) SignAndBroadcast(_ context.Context, intent TxIntent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RejectSign {
		return "", errors.New("user rejected signing request")
	}
	return fakeRef("tx:" + intent.NetworkID + intent.From + intent.To + intent.Amount.String()), nil
}

func (f *FakeCapability) GetBalance(_ context.Context, _, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return decimal.Zero, f.BalanceErr
	}
	return f.Balance, nil
}

func (f *FakeCapability) GetTransactionStatus(_ context.Context, _, _ string) (TxStatus, error) {
	return TxConfirmed, nil
}

func (f *FakeCapability) QuoteFee(_ context.Context, source, destination string, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QuoteFeeCalls++
	if f.QuoteErr != nil {
		return decimal.Zero, f.QuoteErr
	}
	return f.Fee, nil
}

func (f *FakeCapability) SendMessage(_ context.Context, lane types.Lane, payload RelayPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SendCalls++
	return fakeRef("msg:" + lane.Router + payload.Sender + payload.Recipient + payload.Amount.String()), nil
}

func (f *FakeCapability) PollDelivery(_ context.Context, messageRef string) (DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.polls == nil {
		f.polls = make(map[string]int)
	}
	f.polls[messageRef]++
	if f.polls[messageRef] <= f.PendingPolls {
		return DeliveryResult{Status: DeliveryPending}, nil
	}
	if f.Undeliverable {
		return DeliveryResult{Status: DeliveryUndeliverable}, nil
	}
	return DeliveryResult{
		Status:           DeliveryDelivered,
		DestinationTxRef: fakeRef("dst:" + messageRef),
	}, nil
}

func fakeRef(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}

// FakeAdapter exposes a FakeCapability as a family adapter.
type FakeAdapter struct {
	Fam        types.NetworkFamily
	Capability *FakeCapability
}

var _ FamilyAdapter = (*FakeAdapter)(nil)

func (a *FakeAdapter) Family() types.NetworkFamily {
	return a.Fam
}

func (a *FakeAdapter) Query() ChainQuery {
	return a.Capability
}

func (a *FakeAdapter) Addresses() AddressScheme {
	return fakeScheme{}
}

// fakeScheme accepts any non-empty address and compares exactly.
type fakeScheme struct{}

func (fakeScheme) IsValidAddress(addr string) bool {
	return addr != ""
}

func (fakeScheme) AddressesEqual(addr1, addr2 string) bool {
	return addr1 == addr2
}
