package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

func testPayload() core.Payload {
	return core.NewTransaction(civil.Date{Year: 2023, Month: 11, Day: 28}, "Test desde Go",
		decimal.RequireFromString("10.50"), "Prueba", "", core.Expense).Payload()
}

func TestProbePostsTextPlainJSON(t *testing.T) {
	var gotType string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"result":"success","row":12}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := probe(context.Background(), srv.Client(), srv.URL, testPayload(), &out); err != nil {
		t.Fatalf("probe: %v", err)
	}

	if gotType != "text/plain;charset=utf-8" {
		t.Errorf("content type = %q", gotType)
	}
	if got["Descripción"] != "Test desde Go" || got["Monto"] != -10.5 || got["Tipo"] != "Gasto" || got["Cuenta"] != "Principal" {
		t.Errorf("unexpected payload %v", got)
	}
	for _, want := range []string{"Status: 200", `Response text: {"result":"success","row":12}`, `"row": 12`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestProbeNonJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>denied</html>"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := probe(context.Background(), srv.Client(), srv.URL, testPayload(), &out); err != nil {
		t.Fatalf("a non-2xx reply is reported, not an error: %v", err)
	}
	if !strings.Contains(out.String(), "Status: 403") || !strings.Contains(out.String(), "Response is not JSON") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestProbeNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if err := probe(context.Background(), http.DefaultClient, url, testPayload(), io.Discard); err == nil {
		t.Fatal("expected error for closed server")
	}
}
