package mirror

// RebuildReport summarizes one mirror rebuild so callers and tests can
// assert on ingestion completeness without scraping logs.
type RebuildReport struct {
	// StatementsExecuted counts statements the mirror ran successfully
	// after rewriting.
	StatementsExecuted int

	// StatementsSkipped counts statements dropped by the compatibility
	// filter plus statements that failed after rewriting.
	StatementsSkipped int

	// BlocksLoaded counts bulk-load blocks materialized into the mirror.
	BlocksLoaded int

	// BlocksSkipped counts bulk-load blocks abandoned wholesale, for
	// example when the target table does not exist.
	BlocksSkipped int

	// RowsLoaded is the total row count inserted across all blocks.
	RowsLoaded int64

	// RowsSkipped counts rows dropped for a column-count mismatch.
	RowsSkipped int64

	// TablesLoaded lists the normalized names of tables that received
	// bulk-loaded data, in dump order.
	TablesLoaded []string
}
