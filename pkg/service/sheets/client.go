package sheets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultTimeout bounds every Sheets API call
const DefaultTimeout = 10 * time.Second

// Client is the Google Sheets ledger. Services are cached per credential and
// rebuilt once when a call reports expired credentials.
type Client struct {
	timeout     time.Duration
	defaultOpts []option.ClientOption

	mu       sync.Mutex
	services map[string]*sheets.Service
	group    singleflight.Group

	knownSheets sync.Map
}

var _ interfaces.Ledger = &Client{}

type Option func(*Client)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientOptions adds options used when an organization has no
// credentials of its own, such as a service account key file
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.defaultOpts = append(c.defaultOpts, opts...)
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		timeout:  DefaultTimeout,
		services: make(map[string]*sheets.Service),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func credentialKey(creds model.Credentials) string {
	if creds == "" {
		return "default"
	}
	sum := sha256.Sum256([]byte(creds))
	return hex.EncodeToString(sum[:])
}

func (c *Client) service(ctx context.Context, creds model.Credentials) (*sheets.Service, error) {
	key := credentialKey(creds)

	c.mu.Lock()
	svc, ok := c.services[key]
	c.mu.Unlock()
	if ok {
		return svc, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
		if creds != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, c.defaultOpts...)
		}

		// The service outlives the request that created it
		svc, err := sheets.NewService(context.WithoutCancel(ctx), opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create sheets service")
		}

		c.mu.Lock()
		c.services[key] = svc
		c.mu.Unlock()
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sheets.Service), nil
}

func (c *Client) forget(creds model.Credentials) {
	c.mu.Lock()
	delete(c.services, credentialKey(creds))
	c.mu.Unlock()
}

// do runs fn with a bounded context and retries once with a fresh service
// when credentials expired. The retry is not counted as a command attempt.
func (c *Client) do(ctx context.Context, doc model.Document, op string, fn func(ctx context.Context, svc *sheets.Service) error) error {
	svc, err := c.service(ctx, doc.Credentials)
	if err != nil {
		return err
	}

	err = c.invoke(ctx, svc, fn)
	if isCredentialExpired(err) {
		logging.From(ctx).Info("sheets credentials expired, rebuilding client",
			"op", op,
			"document_id", doc.ID,
		)
		c.forget(doc.Credentials)
		if svc, err = c.service(ctx, doc.Credentials); err != nil {
			return err
		}
		err = c.invoke(ctx, svc, fn)
	}

	return classify(err, op, doc)
}

func (c *Client) invoke(ctx context.Context, svc *sheets.Service, fn func(ctx context.Context, svc *sheets.Service) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(ctx, svc)
}

func isCredentialExpired(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	return false
}

func classify(err error, op string, doc model.Document) error {
	if err == nil {
		return nil
	}

	values := []goerr.Option{goerr.V("op", op), goerr.V(model.DocumentIDKey, doc.ID)}

	if errors.Is(err, context.DeadlineExceeded) {
		return goerr.Wrap(model.ErrBackendUnavailable, fmt.Sprintf("%s timed out: %v", op, err), values...)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return goerr.Wrap(model.ErrBackendUnavailable, fmt.Sprintf("%s: %v", op, err), values...)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		values = append(values, goerr.V("status", apiErr.Code))
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return goerr.Wrap(model.ErrBackendUnavailable, fmt.Sprintf("%s: %v", op, err), values...)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range"):
			return goerr.Wrap(model.ErrSheetNotFound, fmt.Sprintf("%s: %s", op, apiErr.Message), values...)
		case apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound:
			return goerr.Wrap(model.ErrConfigurationMissing, fmt.Sprintf("ledger document is not accessible: %s", apiErr.Message), values...)
		}
	}

	return goerr.Wrap(err, op+" failed", values...)
}

func sheetKey(doc model.Document, monthKey string) string {
	return doc.ID + "/" + monthKey
}

func (c *Client) AppendRow(ctx context.Context, doc model.Document, sheet string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]any{toCells(row)}}
	return c.do(ctx, doc, "append row", func(ctx context.Context, svc *sheets.Service) error {
		_, err := svc.Spreadsheets.Values.Append(doc.ID, fmt.Sprintf("'%s'!A1", sheet), vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
}

func (c *Client) UpdateRange(ctx context.Context, doc model.Document, cellRange string, values [][]string) error {
	vr := &sheets.ValueRange{}
	for _, row := range values {
		vr.Values = append(vr.Values, toCells(row))
	}
	return c.do(ctx, doc, "update range", func(ctx context.Context, svc *sheets.Service) error {
		_, err := svc.Spreadsheets.Values.Update(doc.ID, cellRange, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

func (c *Client) ReadRange(ctx context.Context, doc model.Document, cellRange string) ([][]string, error) {
	var rows [][]string
	err := c.do(ctx, doc, "read range", func(ctx context.Context, svc *sheets.Service) error {
		resp, err := svc.Spreadsheets.Values.Get(doc.ID, cellRange).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		rows = make([][]string, 0, len(resp.Values))
		for _, row := range resp.Values {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprint(v)
			}
			rows = append(rows, cells)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) EnsureMonthlySheetExists(ctx context.Context, doc model.Document, monthKey string) error {
	if _, ok := c.knownSheets.Load(sheetKey(doc, monthKey)); ok {
		return nil
	}

	var exists bool
	err := c.do(ctx, doc, "get spreadsheet", func(ctx context.Context, svc *sheets.Service) error {
		ss, err := svc.Spreadsheets.Get(doc.ID).Fields("sheets.properties.title").Context(ctx).Do()
		if err != nil {
			return err
		}
		for _, sh := range ss.Sheets {
			if sh.Properties != nil && sh.Properties.Title == monthKey {
				exists = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !exists {
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: monthKey}}},
			},
		}
		err := c.do(ctx, doc, "add sheet", func(ctx context.Context, svc *sheets.Service) error {
			_, err := svc.Spreadsheets.BatchUpdate(doc.ID, req).Context(ctx).Do()
			return err
		})
		if err != nil && !isAlreadyExists(err) {
			return err
		}

		if err := c.UpdateRange(ctx, doc, model.HeaderRange(monthKey), [][]string{model.LedgerHeader}); err != nil {
			return err
		}
		logging.From(ctx).Info("created month sheet", "document_id", doc.ID, "sheet", monthKey)
	}

	c.knownSheets.Store(sheetKey(doc, monthKey), struct{}{})
	return nil
}

// isAlreadyExists detects another writer adding the same sheet first
func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "already exists")
}

func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (model.Document, error) {
	var doc model.Document
	err := c.do(ctx, model.Document{}, "create spreadsheet", func(ctx context.Context, svc *sheets.Service) error {
		ss, err := svc.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: title, TimeZone: "Asia/Tokyo"},
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		doc = model.Document{ID: ss.SpreadsheetId, URL: ss.SpreadsheetUrl}
		return nil
	})
	if err != nil {
		return model.Document{}, err
	}
	return doc, nil
}

func toCells(row []string) []any {
	cells := make([]any, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
