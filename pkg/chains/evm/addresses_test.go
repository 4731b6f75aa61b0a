package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	scheme := AddressScheme{}

	assert.True(t, scheme.IsValidAddress("0x1111111111111111111111111111111111111111"))
	assert.True(t, scheme.IsValidAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"))
	assert.False(t, scheme.IsValidAddress(""))
	assert.False(t, scheme.IsValidAddress("0x123"))
	assert.False(t, scheme.IsValidAddress("not-an-address"))
	assert.False(t, scheme.IsValidAddress("4Nd1mYQiLyRq9xnCCGkwG6a3fgTMkniUC8Qc2sq5eS8y"))
}

func TestAddressesEqualIgnoresChecksumCasing(t *testing.T) {
	scheme := AddressScheme{}

	assert.True(t, scheme.AddressesEqual(
		"0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"0xdac17f958d2ee523a2206206994597c13d831ec7",
	))
	assert.False(t, scheme.AddressesEqual(
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	))
}
