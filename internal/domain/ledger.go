package domain

import (
	"math/big"
	"sort"
)

// Contribution is the atomic unit produced by one extractor for one owner.
// Amount is always in the reference asset's smallest indivisible unit.
type Contribution struct {
	Owner  string
	Amount *big.Int
	Source Source
}

// HolderEntry accumulates all contributions attributed to one owner.
// Total always equals the sum of Contributions; contribution order is
// append order and serves audit only.
type HolderEntry struct {
	Owner         string
	Total         *big.Int
	Contributions []Contribution
}

// HolderLedger maps owners to their accumulated entries. It is owned
// exclusively by the aggregation fold for the duration of a run.
type HolderLedger struct {
	entries map[string]*HolderEntry
}

// NewHolderLedger creates an empty ledger.
func NewHolderLedger() *HolderLedger {
	return &HolderLedger{entries: make(map[string]*HolderEntry)}
}

// Add appends a contribution and adds its amount to the owner's total.
// Addition is exact; amounts are copied so callers may reuse their big.Ints.
func (l *HolderLedger) Add(owner string, amount *big.Int, source Source) {
	entry, ok := l.entries[owner]
	if !ok {
		entry = &HolderEntry{Owner: owner, Total: new(big.Int)}
		l.entries[owner] = entry
	}
	amt := new(big.Int).Set(amount)
	entry.Total.Add(entry.Total, amt)
	entry.Contributions = append(entry.Contributions, Contribution{
		Owner:  owner,
		Amount: amt,
		Source: source,
	})
}

// Entry returns the entry for owner, or nil.
func (l *HolderLedger) Entry(owner string) *HolderEntry {
	return l.entries[owner]
}

// Len returns the number of distinct owners.
func (l *HolderLedger) Len() int {
	return len(l.entries)
}

// Owners returns all owners in lexical order.
func (l *HolderLedger) Owners() []string {
	owners := make([]string, 0, len(l.entries))
	for owner := range l.entries {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// TotalSplit sums all contribution amounts, split into the portion held by
// addresses in vaults and the portion held by everyone else.
func (l *HolderLedger) TotalSplit(vaults map[string]struct{}) (nonVault, vault *big.Int) {
	nonVault = new(big.Int)
	vault = new(big.Int)
	for owner, entry := range l.entries {
		if _, ok := vaults[owner]; ok {
			vault.Add(vault, entry.Total)
		} else {
			nonVault.Add(nonVault, entry.Total)
		}
	}
	return nonVault, vault
}
