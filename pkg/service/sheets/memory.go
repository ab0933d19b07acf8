package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// Operation names a ledger call for failure injection and call counting
type Operation string

const (
	OpAppend Operation = "append"
	OpUpdate Operation = "update"
	OpRead   Operation = "read"
	OpEnsure Operation = "ensure"
	OpCreate Operation = "create"
)

type injectedFailure struct {
	err         error
	remaining   int
	afterCommit bool
}

// Memory is an in-process ledger used by tests and --ledger-backend memory
type Memory struct {
	mu       sync.Mutex
	docs     map[string]map[string][][]string
	failures map[Operation]*injectedFailure
	calls    map[Operation]int
}

var _ interfaces.Ledger = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]map[string][][]string),
		failures: make(map[Operation]*injectedFailure),
		calls:    make(map[Operation]int),
	}
}

// FailNext makes the next count calls of op return err without effect
func (m *Memory) FailNext(op Operation, count int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &injectedFailure{err: err, remaining: count}
}

// FailAfterCommit makes the next count calls of op apply their change and
// then return err, as a response lost after the backend committed.
func (m *Memory) FailAfterCommit(op Operation, count int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &injectedFailure{err: err, remaining: count, afterCommit: true}
}

// Calls returns how many times op was invoked
func (m *Memory) Calls(op Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Rows returns a copy of a sheet including the header
func (m *Memory) Rows(documentID, sheet string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.docs[documentID][sheet])
}

// AddDocument registers an empty spreadsheet
func (m *Memory) AddDocument(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		m.docs[documentID] = make(map[string][][]string)
	}
}

// SetRows replaces a sheet's content
func (m *Memory) SetRows(documentID, sheet string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		m.docs[documentID] = make(map[string][][]string)
	}
	m.docs[documentID][sheet] = copyRows(rows)
}

// begin counts the call and returns an injected failure, if any, with a flag
// telling whether the change must still be applied
func (m *Memory) begin(op Operation) (bool, error) {
	m.calls[op]++
	f, ok := m.failures[op]
	if !ok || f.remaining <= 0 {
		return true, nil
	}
	f.remaining--
	return f.afterCommit, f.err
}

func (m *Memory) sheet(documentID, sheet string) ([][]string, error) {
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, goerr.Wrap(model.ErrConfigurationMissing, "document not found", goerr.V(model.DocumentIDKey, documentID))
	}
	rows, ok := doc[sheet]
	if !ok {
		return nil, goerr.Wrap(model.ErrSheetNotFound, "sheet not found", goerr.V(model.DocumentIDKey, documentID), goerr.V(model.SheetKey, sheet))
	}
	return rows, nil
}

func (m *Memory) AppendRow(ctx context.Context, doc model.Document, sheet string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apply, injected := m.begin(OpAppend)
	if !apply {
		return injected
	}

	rows, err := m.sheet(doc.ID, sheet)
	if err != nil {
		return err
	}
	last := len(rows)
	for last > 0 && isEmptyRow(rows[last-1]) {
		last--
	}
	m.docs[doc.ID][sheet] = append(rows[:last], append([]string(nil), row...))
	return injected
}

func (m *Memory) UpdateRange(ctx context.Context, doc model.Document, cellRange string, values [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apply, injected := m.begin(OpUpdate)
	if !apply {
		return injected
	}

	r, err := parseRange(cellRange)
	if err != nil {
		return err
	}
	rows, err := m.sheet(doc.ID, r.sheet)
	if err != nil {
		return err
	}

	startRow := max(r.row1, 1)
	for i, vals := range values {
		idx := startRow - 1 + i
		for len(rows) <= idx {
			rows = append(rows, nil)
		}
		for j, v := range vals {
			col := r.col1 + j
			for len(rows[idx]) <= col {
				rows[idx] = append(rows[idx], "")
			}
			rows[idx][col] = v
		}
	}
	m.docs[doc.ID][r.sheet] = rows
	return injected
}

func (m *Memory) ReadRange(ctx context.Context, doc model.Document, cellRange string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.begin(OpRead); err != nil {
		return nil, err
	}

	r, err := parseRange(cellRange)
	if err != nil {
		return nil, err
	}
	rows, err := m.sheet(doc.ID, r.sheet)
	if err != nil {
		return nil, err
	}

	startRow := max(r.row1, 1)
	endRow := len(rows)
	if r.row2 > 0 && r.row2 < endRow {
		endRow = r.row2
	}

	var out [][]string
	for i := startRow - 1; i < endRow; i++ {
		var cells []string
		for c := r.col1; c <= r.col2 && c < len(rows[i]); c++ {
			cells = append(cells, rows[i][c])
		}
		out = append(out, trimRow(cells))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *Memory) EnsureMonthlySheetExists(ctx context.Context, doc model.Document, monthKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apply, injected := m.begin(OpEnsure)
	if !apply {
		return injected
	}

	book, ok := m.docs[doc.ID]
	if !ok {
		return goerr.Wrap(model.ErrConfigurationMissing, "document not found", goerr.V(model.DocumentIDKey, doc.ID))
	}
	if _, ok := book[monthKey]; !ok {
		book[monthKey] = [][]string{append([]string(nil), model.LedgerHeader...)}
	}
	return injected
}

func (m *Memory) CreateSpreadsheet(ctx context.Context, title string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.begin(OpCreate); err != nil {
		return model.Document{}, err
	}

	id := uuid.NewString()
	m.docs[id] = make(map[string][][]string)
	return model.Document{ID: id, URL: model.SpreadsheetURL(id)}, nil
}

type a1Range struct {
	sheet      string
	col1, col2 int // 0-based, inclusive
	row1, row2 int // 1-based, 0 means unbounded
}

// parseRange understands the subset of A1 notation the ledger uses:
// 'sheet'!A:H, 'sheet'!C5:E5, 'sheet'!E5 and a bare sheet name.
func parseRange(s string) (a1Range, error) {
	sheet, cells, ok := strings.Cut(s, "!")
	r := a1Range{sheet: strings.Trim(sheet, "'"), col2: 25}
	if !ok || cells == "" {
		return r, nil
	}

	first, second, hasSecond := strings.Cut(cells, ":")
	c1, r1, err := parseCell(first)
	if err != nil {
		return r, goerr.Wrap(err, "invalid range", goerr.V(model.RangeKey, s))
	}
	c2, r2 := c1, r1
	if hasSecond {
		if c2, r2, err = parseCell(second); err != nil {
			return r, goerr.Wrap(err, "invalid range", goerr.V(model.RangeKey, s))
		}
	}
	r.col1, r.row1, r.col2, r.row2 = c1, r1, c2, r2
	return r, nil
}

func parseCell(s string) (int, int, error) {
	i := 0
	col := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if col == 0 {
		return 0, 0, fmt.Errorf("missing column in %q", s)
	}
	row := 0
	if i < len(s) {
		n, err := strconv.Atoi(s[i:])
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid row in %q", s)
		}
		row = n
	}
	return col - 1, row, nil
}

func isEmptyRow(row []string) bool {
	return len(trimRow(row)) == 0
}

func trimRow(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
