package svm

import (
	"github.com/gagliardetto/solana-go"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
)

// AddressScheme implements chains.AddressScheme for base58-addressed chains.
type AddressScheme struct{}

var _ chains.AddressScheme = AddressScheme{}

func (AddressScheme) IsValidAddress(addr string) bool {
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

// AddressesEqual compares exactly: base58 is case-sensitive.
func (AddressScheme) AddressesEqual(addr1, addr2 string) bool {
	return addr1 == addr2
}
