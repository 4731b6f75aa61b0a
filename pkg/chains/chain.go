package chains

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// The engine consumes these capabilities and never implements them: signing
// and broadcast belong to external wallets, balance and receipt lookups to
// chain RPC, and cross-network messaging to the relay protocol.

// ErrConnectionDenied is returned by Signer.Connect when the user or the
// external signer rejects the connection.
var ErrConnectionDenied = errors.New("wallet connection denied")

// ErrQuoteUnavailable is returned by Relay.QuoteFee when no live quote exists
// for the requested lane.
var ErrQuoteUnavailable = errors.New("relay fee quote unavailable")

// Account is the result of a successful signer connection.
type Account struct {
	Address   string
	NetworkID string
}

// TxIntent describes a transfer for the signer to sign and broadcast. Relay
// fields are populated only for cross-network submissions.
type TxIntent struct {
	NetworkID string
	From      string
	To        string
	Amount    decimal.Decimal

	RelayRouter  string
	LaneSelector uint64

	Metadata map[string]string
}

// Signer is one external signing capability (one implementation per wallet
// kind).
type Signer interface {
	// Connect obtains the signer's active account, prompting the user where
	// the underlying wallet requires it.
	Connect(ctx context.Context) (Account, error)

	// Disconnect releases the session. Idempotent.
	Disconnect(ctx context.Context) error

	// SignAndBroadcast signs the intent and broadcasts it on the intent's
	// network, returning the source transaction reference.
	SignAndBroadcast(ctx context.Context, intent TxIntent) (string, error)
}

// TxStatus is the chain-reported status of a broadcast transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// ChainQuery handles read-only chain RPC operations.
type ChainQuery interface {
	// GetBalance returns the native-token balance of address on networkID.
	GetBalance(ctx context.Context, address, networkID string) (decimal.Decimal, error)

	// GetTransactionStatus reports whether a broadcast transaction has been
	// confirmed on networkID.
	GetTransactionStatus(ctx context.Context, txRef, networkID string) (TxStatus, error)
}

// DeliveryStatus is the relay protocol's view of a cross-network message.
type DeliveryStatus string

const (
	DeliveryPending       DeliveryStatus = "pending"
	DeliveryDelivered     DeliveryStatus = "delivered"
	DeliveryUndeliverable DeliveryStatus = "undeliverable"
)

// DeliveryResult carries the poll outcome; DestinationTxRef is set once the
// relayed funds land, when the protocol surfaces it.
type DeliveryResult struct {
	Status           DeliveryStatus
	DestinationTxRef string
}

// RelayPayload is the value-transfer instruction carried across a lane.
type RelayPayload struct {
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	Metadata  map[string]string
}

// Relay is the cross-network messaging capability.
type Relay interface {
	// QuoteFee prices the lane between two networks for the given amount.
	// Returns ErrQuoteUnavailable when the lane has no live quote.
	QuoteFee(ctx context.Context, sourceNetworkID, destinationNetworkID string, amount decimal.Decimal) (decimal.Decimal, error)

	// SendMessage submits the payload on the given lane and returns the relay
	// message reference.
	SendMessage(ctx context.Context, lane types.Lane, payload RelayPayload) (string, error)

	// PollDelivery reports the delivery status of a previously sent message.
	PollDelivery(ctx context.Context, messageRef string) (DeliveryResult, error)
}

// AddressScheme validates and compares addresses using family-specific rules.
type AddressScheme interface {
	// IsValidAddress reports whether addr is well-formed for this family.
	IsValidAddress(addr string) bool

	// AddressesEqual compares two addresses
	// For EVM: case-insensitive (due to EIP-55 checksumming)
	// For SVM: case-sensitive (base58 encoding)
	AddressesEqual(addr1, addr2 string) bool
}

// FamilyAdapter bundles the per-family capabilities the engine wires at
// startup.
type FamilyAdapter interface {
	// Family returns the network family this adapter serves.
	Family() types.NetworkFamily

	// Query returns the chain RPC client for this family.
	Query() ChainQuery

	// Addresses returns the address scheme for this family.
	Addresses() AddressScheme
}
