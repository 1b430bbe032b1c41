package transfer

// CatalogEntry is one item of the companion's catalog listing. Immutable
// once constructed.
type CatalogEntry struct {
	ID    string
	Title string
}

// Catalog is an ordered catalog listing; insertion order is arrival order
// is display order.
type Catalog []CatalogEntry
