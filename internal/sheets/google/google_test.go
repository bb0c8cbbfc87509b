package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(), "sheet-id", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewWithOptionsRequiresSpreadsheet(t *testing.T) {
	_, err := NewWithOptions(context.Background(), "  ", "x", goption.WithoutAuthentication())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCredentialsLoad(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := (Credentials{}).Load(); err == nil {
		t.Fatalf("expected missing credentials error")
	}
	got, err := Credentials{JSON: []byte(`{"type":"service_account"}`)}.Load()
	if err != nil || !strings.Contains(string(got), "service_account") {
		t.Fatalf("inline json: %s %v", got, err)
	}
	if _, err := (Credentials{File: "/does/not/exist.json"}).Load(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestRowsToRecords(t *testing.T) {
	header := []string{"Fecha", "Descripción", "Monto", "Categoría", "", "Tipo"}
	rows := [][]any{
		{45258.0, "Uber", -5.5, "Transporte", "ignored", "Gasto"},
		{},
		{"", " "},
		{"2023-11-28", "Sueldo", 1500.0},
	}
	recs := RowsToRecords(header, rows)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(recs), recs)
	}
	if recs[0]["Fecha"] != "2023-11-28" {
		t.Fatalf("serial date not converted: %#v", recs[0]["Fecha"])
	}
	if _, ok := recs[0][""]; ok {
		t.Fatalf("unlabelled column must be dropped")
	}
	if _, ok := recs[1]["Tipo"]; ok {
		t.Fatalf("short row must not invent columns")
	}

	today := civil.Date{Year: 2024, Month: 1, Day: 1}
	uber := core.Normalize(recs[0], today)
	if !uber.Amount.Equal(decimal.RequireFromString("-5.5")) || uber.Kind != core.Expense {
		t.Fatalf("unexpected normalized row %+v", uber)
	}
	pay := core.Normalize(recs[1], today)
	if pay.Kind != core.Income || pay.Category != core.DefaultCategory {
		t.Fatalf("unexpected normalized row %+v", pay)
	}
}

func TestSerialToDate(t *testing.T) {
	cases := map[float64]civil.Date{
		1:        {Year: 1899, Month: 12, Day: 31},
		45258:    {Year: 2023, Month: 11, Day: 28},
		45258.75: {Year: 2023, Month: 11, Day: 28},
		45292:    {Year: 2024, Month: 1, Day: 1},
	}
	for in, want := range cases {
		if got := SerialToDate(in); got != want {
			t.Fatalf("%v: got %s, want %s", in, got, want)
		}
	}
}

func TestPayloadRowFollowsHeader(t *testing.T) {
	tx := core.NewTransaction(civil.Date{Year: 2023, Month: 11, Day: 28}, "Test", decimal.NewFromInt(20), "Prueba", "", core.Expense)
	header := []string{"Tipo", "Monto", "Notas", "Fecha", "Comercio", "Descripcion", "Cuenta", "Categoria"}
	got := PayloadRow(header, tx.Payload())
	want := []any{"Gasto", "-20", "", "2023-11-28", "Test", "Test", "Principal", "Prueba"}
	if len(got) != len(want) {
		t.Fatalf("row length: got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %s: got %#v, want %#v", header[i], got[i], want[i])
		}
	}
}

func TestFetchReadsHeaderKeyedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("valueRenderOption") != "UNFORMATTED_VALUE" {
			t.Errorf("missing render option: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"range":"Transacciones!A1:E3","majorDimension":"ROWS","values":[
			["Fecha","Descripción","Monto","Categoría","Tipo"],
			[45258,"Uber",-5.5,"Transporte","Gasto"],
			[45258,"Sueldo",1500,"Salario","Ingreso"]]}`)
	})

	recs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 2 || recs[1]["Descripción"] != "Sueldo" {
		t.Fatalf("unexpected records: %v", recs)
	}
}

func TestFetchEmptySheet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"range":"Transacciones!A1:Z1000","majorDimension":"ROWS"}`)
	})
	recs, err := c.Fetch(context.Background())
	if err != nil || recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty non-nil result, got %v %v", recs, err)
	}
}

func TestFetchAPIErrorIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"The caller does not have permission"}}`)
	})
	_, err := c.Fetch(context.Background())
	var te *ports.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusForbidden {
		t.Fatalf("expected transport error with 403, got %v", err)
	}
	if !errors.Is(err, ports.ErrTransport) {
		t.Fatalf("expected ErrTransport match")
	}
}

func TestSubmitAppendsRowInHeaderOrder(t *testing.T) {
	var appended struct {
		Values [][]any `json:"values"`
	}
	var appendQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `{"values":[["Fecha","Monto","Tipo"]]}`)
		case http.MethodPost:
			if !strings.HasSuffix(r.URL.Path, ":append") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			appendQuery = r.URL.RawQuery
			if err := json.NewDecoder(r.Body).Decode(&appended); err != nil {
				t.Errorf("decode body: %v", err)
			}
			io.WriteString(w, `{"spreadsheetId":"sheet-id"}`)
		}
	})

	tx := core.NewTransaction(civil.Date{Year: 2024, Month: 2, Day: 3}, "Venta", decimal.RequireFromString("12.30"), "", "", core.Income)
	if err := c.Submit(context.Background(), tx.Payload()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(appendQuery, "valueInputOption=USER_ENTERED") {
		t.Fatalf("missing input option: %s", appendQuery)
	}
	if len(appended.Values) != 1 {
		t.Fatalf("expected one row, got %v", appended.Values)
	}
	row := appended.Values[0]
	if len(row) != 3 || row[0] != "2024-02-03" || row[1] != "12.3" || row[2] != "Ingreso" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestSubmitWithoutHeaderUsesDefaultLayout(t *testing.T) {
	var appended struct {
		Values [][]any `json:"values"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			io.WriteString(w, `{}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&appended)
		io.WriteString(w, `{}`)
	})
	tx := core.NewTransaction(civil.Date{Year: 2024, Month: 2, Day: 3}, "Cafe", decimal.NewFromInt(2), "Comida", "Tarjeta", core.Expense)
	if err := c.Submit(context.Background(), tx.Payload()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(appended.Values) != 1 || len(appended.Values[0]) != len(DefaultHeader) {
		t.Fatalf("unexpected row %v", appended.Values)
	}
	if appended.Values[0][5] != "Tarjeta" || appended.Values[0][6] != "Gasto" {
		t.Fatalf("unexpected row %v", appended.Values[0])
	}
}
