// Command finanzas-probe checks an Apps Script endpoint by posting one test
// transaction the same way the sync client does and printing the raw reply.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/civil"

	"finanzas/internal/cli"
	"finanzas/internal/config"
	"finanzas/internal/core"
	"finanzas/internal/log"
	"finanzas/internal/sheets/appscript"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentProbe)

	endpoint := flag.String("endpoint", cfg.Endpoint, "Apps Script web app URL (defaults to FINANZAS_ENDPOINT)")
	amount := flag.String("amount", "10.50", "amount of the test transaction")
	kind := flag.String("kind", string(core.Expense), "Gasto or Ingreso")
	description := flag.String("description", "Test desde finanzas-probe", "description of the test transaction")
	read := flag.Bool("read", false, "also GET the sheet and report how many records it returns")
	timeout := flag.Duration("timeout", cfg.SyncTimeout, "request timeout")
	flag.Parse()

	if !appscript.IsConfigured(*endpoint) {
		logger.Error("Endpoint not configured", "endpoint", *endpoint)
		os.Exit(2)
	}

	amt, err := core.ParseAmount(*amount)
	if err != nil {
		logger.Error("Invalid amount", "amount", *amount, log.FieldError, err)
		os.Exit(2)
	}
	k, ok := core.ParseKind(*kind)
	if !ok {
		logger.Error("Invalid kind", "kind", *kind)
		os.Exit(2)
	}
	tx := core.NewTransaction(civil.DateOf(time.Now()), *description, amt, "Prueba", "", k)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpClient := &http.Client{Timeout: *timeout}
	if err := probe(ctx, httpClient, *endpoint, tx.Payload(), os.Stdout); err != nil {
		logger.Error("Probe failed", log.FieldError, err)
		os.Exit(1)
	}

	if *read {
		c, err := appscript.New(*endpoint, appscript.WithHTTPClient(httpClient))
		if err != nil {
			logger.Error("Read check failed", log.FieldError, err)
			os.Exit(1)
		}
		records, err := c.Fetch(ctx)
		if err != nil {
			logger.Error("Read check failed", log.FieldError, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "Records: %d\n", len(records))
		if len(records) > 0 {
			t := core.Normalize(records[0], core.Today())
			fmt.Fprintf(os.Stdout, "First record: %s %s %s %s\n", t.Date, t.Description, core.FormatAmount(t.Amount), t.Kind)
		}
	}
}

// probe posts p as text/plain JSON and writes the status, the raw body and,
// when the body is JSON, its decoded form.
func probe(ctx context.Context, client *http.Client, endpoint string, p core.Payload, out io.Writer) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	fmt.Fprintf(out, "Testing POST to: %s\n", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Fprintf(out, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(out, "Response text: %s\n", text)

	var decoded any
	if err := json.Unmarshal(text, &decoded); err != nil {
		fmt.Fprintln(out, "Response is not JSON")
		return nil
	}
	pretty, _ := json.MarshalIndent(decoded, "", "  ")
	fmt.Fprintf(out, "Response JSON: %s\n", pretty)
	return nil
}
