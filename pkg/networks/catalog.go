package networks

import (
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// DefaultCatalog is the built-in testnet catalog. The relay protocol operates
// lanes between the account-based testnets; the Solana devnet is reachable
// for same-network settlement only.
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		{
			NetworkID:      constants.NetworkEthereumSepolia,
			DisplayName:    "Ethereum Sepolia",
			Family:         types.FamilyEVM,
			FeeTokenSymbol: "ETH",
			RelaySupported: true,
			Lanes: evmLanes(constants.RelayRouterEthereumSepolia,
				constants.NetworkAvalancheFuji,
				constants.NetworkBaseSepolia,
				constants.NetworkArbitrumSepolia),
		},
		{
			NetworkID:      constants.NetworkAvalancheFuji,
			DisplayName:    "Avalanche Fuji",
			Family:         types.FamilyEVM,
			FeeTokenSymbol: "AVAX",
			RelaySupported: true,
			Lanes: evmLanes(constants.RelayRouterAvalancheFuji,
				constants.NetworkEthereumSepolia,
				constants.NetworkBaseSepolia),
		},
		{
			NetworkID:      constants.NetworkBaseSepolia,
			DisplayName:    "Base Sepolia",
			Family:         types.FamilyEVM,
			FeeTokenSymbol: "ETH",
			RelaySupported: true,
			Lanes: evmLanes(constants.RelayRouterBaseSepolia,
				constants.NetworkEthereumSepolia,
				constants.NetworkAvalancheFuji,
				constants.NetworkArbitrumSepolia),
		},
		{
			NetworkID:      constants.NetworkArbitrumSepolia,
			DisplayName:    "Arbitrum Sepolia",
			Family:         types.FamilyEVM,
			FeeTokenSymbol: "ETH",
			RelaySupported: true,
			Lanes: evmLanes(constants.RelayRouterArbitrumSepolia,
				constants.NetworkEthereumSepolia,
				constants.NetworkBaseSepolia),
		},
		{
			NetworkID:      constants.NetworkSolanaDevnet,
			DisplayName:    "Solana Devnet",
			Family:         types.FamilySVM,
			FeeTokenSymbol: "SOL",
			RelaySupported: false,
		},
	}
}

// evmLanes builds the lane map for an account-based network: one lane per
// destination, all through the network's relay router.
func evmLanes(router string, destinations ...string) map[string]types.Lane {
	lanes := make(map[string]types.Lane, len(destinations))
	for _, dest := range destinations {
		lanes[dest] = types.Lane{
			Router:   router,
			Selector: constants.NetworkToLaneSelector[dest],
		}
	}
	return lanes
}
