package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
)

// AddressScheme implements chains.AddressScheme for hex-addressed chains.
type AddressScheme struct{}

var _ chains.AddressScheme = AddressScheme{}

func (AddressScheme) IsValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// AddressesEqual compares case-insensitively: the same address may appear
// with or without EIP-55 checksum casing.
func (AddressScheme) AddressesEqual(addr1, addr2 string) bool {
	return strings.EqualFold(addr1, addr2)
}
