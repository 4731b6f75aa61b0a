package svm

import (
	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// Adapter bundles the SVM capabilities behind chains.FamilyAdapter.
type Adapter struct {
	query *Query
}

// NewAdapter creates the SVM family adapter over the given per-network RPC
// endpoint sets.
func NewAdapter(endpoints map[string][]string) *Adapter {
	return &Adapter{query: NewQuery(endpoints)}
}

var _ chains.FamilyAdapter = (*Adapter)(nil)

func (a *Adapter) Family() types.NetworkFamily {
	return types.FamilySVM
}

func (a *Adapter) Query() chains.ChainQuery {
	return a.query
}

func (a *Adapter) Addresses() chains.AddressScheme {
	return AddressScheme{}
}
