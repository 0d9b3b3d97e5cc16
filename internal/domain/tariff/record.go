package tariff

// Record is one usable tariff row headed for the records table. Rows
// that never make it this far end up in quarantine instead.
type Record struct {
	Barcode    string
	Price      float64
	SourceFile string
}

// ChunkResult counts what one flush did to the records table.
type ChunkResult struct {
	Created int64
	Updated int64
	Skipped int64
	Errors  int64
}

// QuarantinedRow is a rejected source row kept for inspection.
type QuarantinedRow struct {
	RowNumber int64
	Barcode   string
	Reason    string
	RawLine   string
}
