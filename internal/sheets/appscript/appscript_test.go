package appscript

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestIsConfigured(t *testing.T) {
	cases := map[string]bool{
		"":                                   false,
		"   ":                                false,
		"[PEGAR_TU_URL_DE_APPS_SCRIPT_AQUI]": false,
		"https://script.google.com/macros/s/abc/exec": true,
	}
	for in, want := range cases {
		if got := IsConfigured(in); got != want {
			t.Fatalf("%q: got %v, want %v", in, got, want)
		}
	}
	if _, err := New("[PEGAR_TU_URL]"); err == nil {
		t.Fatalf("expected error for placeholder endpoint")
	}
}

func TestFetchTextPlainArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, `[{"Fecha":"2023-11-28","Descripción":"Uber","Monto":-5.50,"Categoría":"Transporte","Tipo":"Gasto"},
			{"Fecha":"2023-11-28","Descripcion":"Sueldo","Monto":1500,"Categoria":"Salario","Tipo":"Ingreso"}]`)
	})

	recs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if n, ok := recs[0]["Monto"].(json.Number); !ok || n.String() != "-5.50" {
		t.Fatalf("amount should stay a json.Number, got %#v", recs[0]["Monto"])
	}

	today := civil.Date{Year: 2024, Month: 1, Day: 1}
	tx := core.Normalize(recs[1], today)
	if tx.Kind != core.Income || !tx.Amount.Equal(decimal.NewFromInt(1500)) || tx.Category != "Salario" {
		t.Fatalf("unexpected normalized record: %+v", tx)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	_, err := c.Fetch(context.Background())
	var te *ports.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError || te.Op != "fetch" {
		t.Fatalf("expected transport error with status, got %v", err)
	}
}

func TestFetchMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>Sign in</html>")
	})
	_, err := c.Fetch(context.Background())
	var me *ports.MalformedResponseError
	if !errors.As(err, &me) || me.Body != "<html>Sign in</html>" {
		t.Fatalf("expected malformed response error with body, got %v", err)
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.Fetch(context.Background())
	if !errors.Is(err, ports.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDecodeRecords(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		count int
		ok    bool
	}{
		{"array", `[{"a":1},{"b":2}]`, 2, true},
		{"empty array", `[]`, 0, true},
		{"bom and spaces", "\xef\xbb\xbf  [{\"a\":1}]  ", 1, true},
		{"wrapped", `{"data":[{"a":1}]}`, 1, true},
		{"null entries skipped", `[null,{"a":1}]`, 1, true},
		{"object without data", `{"status":"ok"}`, 0, false},
		{"scalar entries", `[1,2]`, 0, false},
		{"string", `"hello"`, 0, false},
		{"trailing", `[] []`, 0, false},
		{"empty", ``, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := DecodeRecords([]byte(tc.body))
			if tc.ok {
				if err != nil || len(recs) != tc.count {
					t.Fatalf("got %d records, err=%v", len(recs), err)
				}
				return
			}
			if !errors.Is(err, ports.ErrMalformedResponse) {
				t.Fatalf("expected malformed error, got %v", err)
			}
		})
	}
}

func TestSubmitSendsTextPlainJSON(t *testing.T) {
	var gotType string
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"result":"success"}`)
	})

	tx := core.NewTransaction(civil.Date{Year: 2023, Month: 11, Day: 28}, "Test", decimal.RequireFromString("10.50"), "Prueba", "Principal", core.Expense)
	if err := c.Submit(context.Background(), tx.Payload()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotType != "text/plain;charset=utf-8" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	want := map[string]any{
		"Fecha": "2023-11-28", "Descripción": "Test", "Comercio": "Test",
		"Monto": -10.5, "Categoría": "Prueba", "Cuenta": "Principal", "Tipo": "Gasto",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s: got %#v, want %#v", k, got[k], v)
		}
	}
}

func TestSubmitRejectsErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := c.Submit(context.Background(), core.Payload{Kind: "Gasto"})
	var te *ports.TransportError
	if !errors.As(err, &te) || te.Op != "submit" || te.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected submit transport error with status 500, got %v", err)
	}
}

func TestSubmitFollowsRedirect(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/echo" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>ok</html>"))
			return
		}
		http.Redirect(w, r, srv.URL+"/echo", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/exec")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(context.Background(), core.Payload{Kind: "Gasto"}); err != nil {
		t.Fatalf("redirected submit should succeed, got %v", err)
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	err := c.Submit(context.Background(), core.Payload{})
	var te *ports.TransportError
	if !errors.As(err, &te) || te.Op != "submit" {
		t.Fatalf("expected submit transport error, got %v", err)
	}
}
