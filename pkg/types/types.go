package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkFamily classifies a network by its addressing and signing model.
type NetworkFamily string

const (
	FamilyEVM NetworkFamily = "evm" // account-based chains, hex addresses
	FamilySVM NetworkFamily = "svm" // cluster-based chains, base58 addresses
)

// Lane is a registered, directed path between two networks over which the
// relay protocol is known to operate. Router is the relay entry contract on
// the source network; Selector addresses the destination on the relay's own
// addressing plane.
type Lane struct {
	Router   string `json:"router"`
	Selector uint64 `json:"selector"`
}

// PaymentState is one node of the settlement lifecycle.
type PaymentState string

const (
	StateCreated               PaymentState = "created"
	StateSameNetworkSubmitted  PaymentState = "same_network_submitted"
	StateCrossNetworkSubmitted PaymentState = "cross_network_submitted"
	StateRelayAccepted         PaymentState = "relay_accepted"
	StateRelayDelivered        PaymentState = "relay_delivered"
	StateCompleted             PaymentState = "completed"
	StateFailed                PaymentState = "failed"
)

// stateTransitions is the full forward transition graph. Failed is reachable
// from every non-terminal state and is handled in CanTransitionTo directly.
var stateTransitions = map[PaymentState][]PaymentState{
	StateCreated:               {StateSameNetworkSubmitted, StateCrossNetworkSubmitted},
	StateSameNetworkSubmitted:  {StateCompleted},
	StateCrossNetworkSubmitted: {StateRelayAccepted},
	StateRelayAccepted:         {StateRelayDelivered},
	StateRelayDelivered:        {StateCompleted},
}

// Terminal reports whether no further transitions are valid from s.
func (s PaymentState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is a valid forward step.
func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, candidate := range stateTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Reason codes carried on infeasible estimates and failed payment records.
const (
	ReasonUnknownNetwork     = "UnknownNetwork"
	ReasonNoRelayLane        = "NoRelayLane"
	ReasonFeeDataUnavailable = "FeeDataUnavailable"
	ReasonInsufficientFunds  = "InsufficientFunds"
	ReasonSignerRejected     = "SignerRejected"
	ReasonBroadcastRejected  = "BroadcastRejected"
	ReasonRelayUndeliverable = "RelayUndeliverable"
	ReasonTimeout            = "Timeout"
)

// PaymentRequest is an intent to pay a fee from one wallet to one recipient
// address on a (possibly different) network.
type PaymentRequest struct {
	// RequestID is the caller-supplied idempotency key; the engine generates
	// one when it is empty.
	RequestID            string            `json:"requestId"`
	SourceNetworkID      string            `json:"sourceNetworkId" validate:"required"`
	DestinationNetworkID string            `json:"destinationNetworkId" validate:"required"`
	PayerAddress         string            `json:"payerAddress" validate:"required"`
	RecipientAddress     string            `json:"recipientAddress" validate:"required"`
	RequestedAmount      decimal.Decimal   `json:"requestedAmount"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// RouteEstimate is the priced, time-bounded outcome of route planning.
// Never persisted: fee data is time-sensitive, so estimates are recomputed
// per request.
type RouteEstimate struct {
	Feasible                bool            `json:"feasible"`
	InfeasibilityReason     string          `json:"infeasibilityReason,omitempty"`
	IsSameNetwork           bool            `json:"isSameNetwork"`
	RelayFee                decimal.Decimal `json:"relayFee"`
	TotalCost               decimal.Decimal `json:"totalCost"`
	EstimatedDeliveryWindow string          `json:"estimatedDeliveryWindow,omitempty"`

	// IsFallback marks the relay fee as a conservative default rather than a
	// live lane quote, so downstream code and logs can tell approximate from
	// authoritative pricing.
	IsFallback bool `json:"isFallback,omitempty"`
}

// Infeasible builds an infeasible estimate carrying a reason code.
func Infeasible(reason string) RouteEstimate {
	return RouteEstimate{Feasible: false, InfeasibilityReason: reason}
}

// PaymentRecord is the durable ledger entry for one executed (or attempted)
// payment. Exactly one record exists per RequestID; State only ever moves
// forward through the transition graph.
type PaymentRecord struct {
	RequestID            string          `json:"requestId"`
	State                PaymentState    `json:"state"`
	SourceNetworkID      string          `json:"sourceNetworkId"`
	DestinationNetworkID string          `json:"destinationNetworkId"`
	PayerAddress         string          `json:"payerAddress"`
	RecipientAddress     string          `json:"recipientAddress"`
	RequestedAmount      decimal.Decimal `json:"requestedAmount"`
	RelayFee             decimal.Decimal `json:"relayFee"`
	TotalCost            decimal.Decimal `json:"totalCost"`

	SourceTxRef      string `json:"sourceTxRef,omitempty"`
	RelayMessageRef  string `json:"relayMessageRef,omitempty"`
	DestinationTxRef string `json:"destinationTxRef,omitempty"`
	ErrorDetail      string `json:"errorDetail,omitempty"`

	InitiatedAt    time.Time  `json:"initiatedAt"`
	StateChangedAt time.Time  `json:"stateChangedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep enough copy for handing records across goroutine
// boundaries without sharing mutable state.
func (r *PaymentRecord) Clone() *PaymentRecord {
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
