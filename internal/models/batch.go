package models

import "strings"

// AddressBatch is one generation's ordered set of addresses to resolve together.
// It is never mutated after being issued; a newer batch supersedes it.
type AddressBatch struct {
	Generation uint64   // Generation is the monotonic id of this batch.
	Addresses  []string // Addresses keeps the caller's order, blanks and duplicates included.
}

// NewAddressBatch copies addresses so later changes to the caller's slice do not leak into the batch.
func NewAddressBatch(generation uint64, addresses []string) AddressBatch {
	cp := make([]string, len(addresses))
	copy(cp, addresses)

	return AddressBatch{Generation: generation, Addresses: cp}
}

// Pending returns the number of addresses that will produce an outcome.
func (b AddressBatch) Pending() int {
	count := 0
	for _, addr := range b.Addresses {
		if strings.TrimSpace(addr) != "" {
			count++
		}
	}

	return count
}
