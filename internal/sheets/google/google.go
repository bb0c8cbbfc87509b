// Package google reads and appends transactions on a Google Sheets tab using
// the Sheets API v4 and a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

// DefaultSheetName is used when no tab name is configured.
const DefaultSheetName = "Transacciones"

// DefaultHeader is the column order used when the tab has no header row.
var DefaultHeader = []string{"Fecha", "Descripción", "Comercio", "Monto", "Categoría", "Cuenta", "Tipo"}

// MerchantKeys are the labels of the merchant column, which only exists on
// the write side.
var MerchantKeys = []string{"Comercio", "comercio", "Merchant", "merchant"}

// Ensure interface conformance
var _ ports.ReadWriter = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu     sync.Mutex
	header []string
}

type Credentials struct {
	JSON []byte
	File string
}

// Load returns the service account key, reading File when JSON is empty.
func (c Credentials) Load() ([]byte, error) {
	if len(c.JSON) > 0 {
		return c.JSON, nil
	}
	file := strings.TrimSpace(c.File)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// New creates a client authenticated with a service account.
func New(ctx context.Context, spreadsheetID, sheetName string, creds Credentials) (*Client, error) {
	key, err := creds.Load()
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(key),
		"scope", gsheet.SpreadsheetsScope)
	return NewWithOptions(ctx, spreadsheetID, sheetName,
		goption.WithCredentialsJSON(key),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates a client with explicit API options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// Fetch implements ports.RecordReader. The first row is the header; its
// labels become the keys of every record.
func (c *Client) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	rng := quoteSheet(c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, transportError("fetch", err)
	}
	if len(resp.Values) == 0 {
		return []core.RawRecord{}, nil
	}

	header := toStrings(resp.Values[0])
	c.mu.Lock()
	c.header = header
	c.mu.Unlock()

	records := RowsToRecords(header, resp.Values[1:])
	slog.DebugContext(ctx, "Fetched sheet rows", "sheet", c.sheetName, "count", len(records))
	return records, nil
}

// Submit implements ports.RecordWriter by appending one row laid out in the
// tab's header order.
func (c *Client) Submit(ctx context.Context, p core.Payload) error {
	header, err := c.headerRow(ctx)
	if err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{PayloadRow(header, p)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteSheet(c.sheetName)+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return transportError("submit", err)
	}
	return nil
}

func (c *Client) headerRow(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	header := c.header
	c.mu.Unlock()
	if len(header) > 0 {
		return header, nil
	}

	rng := quoteSheet(c.sheetName) + "!1:1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, transportError("submit", fmt.Errorf("read header %s: %w", rng, err))
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return DefaultHeader, nil
	}
	header = toStrings(resp.Values[0])
	c.mu.Lock()
	c.header = header
	c.mu.Unlock()
	return header, nil
}

// RowsToRecords keys every row by the header labels. Blank rows are skipped,
// short rows leave trailing columns absent, and numeric cells under a date
// column are read as spreadsheet serial dates.
func RowsToRecords(header []string, rows [][]any) []core.RawRecord {
	out := make([]core.RawRecord, 0, len(rows))
	for _, row := range rows {
		rec := core.RawRecord{}
		for i, label := range header {
			if label == "" || i >= len(row) {
				continue
			}
			v := row[i]
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			if serial, ok := v.(float64); ok && isAlias(label, core.DateKeys) {
				v = SerialToDate(serial).String()
			}
			rec[label] = v
		}
		if len(rec) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// PayloadRow lays p out in header order. Columns that match no known field
// are left empty.
func PayloadRow(header []string, p core.Payload) []any {
	row := make([]any, len(header))
	for i, label := range header {
		switch {
		case isAlias(label, core.DateKeys):
			row[i] = p.Date
		case isAlias(label, MerchantKeys):
			row[i] = p.Merchant
		case isAlias(label, core.DescriptionKeys):
			row[i] = p.Description
		case isAlias(label, core.AmountKeys):
			row[i] = p.Amount.String()
		case isAlias(label, core.CategoryKeys):
			row[i] = p.Category
		case isAlias(label, core.AccountKeys):
			row[i] = p.Account
		case isAlias(label, core.KindKeys):
			row[i] = p.Kind
		default:
			row[i] = ""
		}
	}
	return row
}

var serialEpoch = civil.Date{Year: 1899, Month: 12, Day: 30}

// SerialToDate converts a Sheets serial day number to a date. The fractional
// part is the time of day and is dropped.
func SerialToDate(serial float64) civil.Date {
	return serialEpoch.AddDays(int(serial))
}

func isAlias(label string, keys []string) bool {
	label = strings.TrimSpace(label)
	for _, k := range keys {
		if label == k {
			return true
		}
	}
	return false
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// quoteSheet wraps a tab name in single quotes for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func transportError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ports.TransportError{Op: op, StatusCode: gerr.Code, Err: err}
	}
	return &ports.TransportError{Op: op, Err: err}
}
