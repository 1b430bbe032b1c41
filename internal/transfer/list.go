package transfer

// listReassembler accumulates an ordered catalog listing from a
// LIST_START / LIST_ENTRY* / LIST_END frame sequence. Entry count is
// bounded only by memory.
//
// The session owns exactly one listReassembler while the listing transfer
// is in flight and discards it when the transfer ends or is superseded.
type listReassembler struct {
	entries Catalog
}

// newListReassembler starts a fresh accumulation with an empty sequence.
// Starting over mid-accumulation is expressed by the session replacing
// its reassembler, which discards any prior partial listing.
func newListReassembler() *listReassembler {
	return &listReassembler{entries: Catalog{}}
}

// add appends one entry, preserving arrival order.
func (r *listReassembler) add(e CatalogEntry) {
	r.entries = append(r.entries, e)
}

// finish returns the completed listing.
func (r *listReassembler) finish() Catalog {
	return r.entries
}

// len reports how many entries have accumulated so far.
func (r *listReassembler) len() int {
	return len(r.entries)
}
