package interfaces

import (
	"context"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// Ledger is the spreadsheet capability the clock state machine writes to.
// Ranges use A1 notation with a quoted sheet name.
type Ledger interface {
	AppendRow(ctx context.Context, doc model.Document, sheet string, row []string) error
	UpdateRange(ctx context.Context, doc model.Document, cellRange string, values [][]string) error
	// ReadRange returns model.ErrSheetNotFound when the sheet does not exist
	ReadRange(ctx context.Context, doc model.Document, cellRange string) ([][]string, error)
	EnsureMonthlySheetExists(ctx context.Context, doc model.Document, monthKey string) error
	CreateSpreadsheet(ctx context.Context, title string) (model.Document, error)
}
