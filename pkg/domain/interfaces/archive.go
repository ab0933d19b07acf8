package interfaces

import "context"

// Archive stores month sheet snapshots outside the ledger
type Archive interface {
	// WriteCSV stores rows under object and returns its location
	WriteCSV(ctx context.Context, object string, rows [][]string) (string, error)
}
