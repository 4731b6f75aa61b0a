package constants

import "time"

const (
	DelayBetweenRPCCalls  = 200              // delay in milliseconds between RPC calls
	BalanceQueryTimeout   = 5 * time.Second  // timeout for balance lookups
	ReceiptQueryTimeout   = 2 * time.Second  // timeout for transaction receipt lookups
	RelayQuoteTimeout     = 10 * time.Second // timeout for relay fee quotes
	RelayClientTimeout    = 30 * time.Second // overall timeout for relay HTTP calls
	TLSHandshakeTimeout   = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout = 20 * time.Second // timeout for response header
	RelayPollInterval     = 3 * time.Second  // interval between relay delivery polls
	DefaultExecuteTimeout = 20 * time.Minute // default bound on reaching a terminal state
	MaxRetries            = 10               // maximum number of retries for RPC calls
	MaxResponseBodySize   = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
)

const (
	EtherDecimals   = 18
	LamportDecimals = 9
)

// Network identifiers. Account-based networks use their decimal chain ID,
// cluster-based networks use a cluster name.
const (
	NetworkEthereumSepolia = "11155111"
	NetworkAvalancheFuji   = "43113"
	NetworkBaseSepolia     = "84532"
	NetworkArbitrumSepolia = "421614"
	NetworkSolanaDevnet    = "solana-devnet"
)

// Relay router contracts, one per account-based network that supports
// cross-network messaging.
const (
	RelayRouterEthereumSepolia = "0x0BF3dE8c5D3e8A2B34D2BEeB17ABfCeBaf363A59"
	RelayRouterAvalancheFuji   = "0xF694E193200268f9a4868e4Aa017A0118C9a8177"
	RelayRouterBaseSepolia     = "0xD3b06cEbF099CE7DA4AcCf578aaebFDBd6e88a93"
	RelayRouterArbitrumSepolia = "0x2a9C5afB0d0e4BAb2BCdaE109f4905Ab0cCaA2A2"
)

// Relay lane selectors identify a destination network on the relay protocol's
// own addressing plane.
const (
	LaneSelectorEthereumSepolia = uint64(16015286601757825753)
	LaneSelectorAvalancheFuji   = uint64(14767482510784806043)
	LaneSelectorBaseSepolia     = uint64(10344971235874465080)
	LaneSelectorArbitrumSepolia = uint64(3478487238524512106)
)

// NetworkToLaneSelector maps a network to its relay lane selector.
var NetworkToLaneSelector = map[string]uint64{
	NetworkEthereumSepolia: LaneSelectorEthereumSepolia,
	NetworkAvalancheFuji:   LaneSelectorAvalancheFuji,
	NetworkBaseSepolia:     LaneSelectorBaseSepolia,
	NetworkArbitrumSepolia: LaneSelectorArbitrumSepolia,
}

// Delivery window buckets surfaced on route estimates. Coarse on purpose:
// finality is bounded by the underlying networks, not by this engine.
const (
	DeliveryWindowSameNetwork  = "1-2 minutes"
	DeliveryWindowCrossNetwork = "5-15 minutes"
)

// FallbackRelayFee is the flat fee used when no live lane quote is available.
// Estimates priced with it are flagged as fallback.
const FallbackRelayFee = "2.5"
