// spendctl is a terminal client for a running spendscan server: it lists the
// receipt collection, renders monthly summaries, uploads images for scanning,
// deletes receipts and downloads XLSX exports.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/avasquez/spendscan/internal/receipt"
	"github.com/avasquez/spendscan/internal/summary"
)

const usage = `usage: spendctl [flags] <command>

commands:
  list           print all receipts, newest first
  summary        print the monthly category breakdown
  scan FILE      upload a receipt image for extraction
  delete ID      delete a receipt by id
  export FILE    download the collection as an XLSX workbook
`

func main() {
	fs := ff.NewFlagSet("spendctl")
	var (
		addr     = fs.StringLong("addr", "http://localhost:8080", "spendscan server address")
		month    = fs.StringLong("month", "", "Summary month in YYYY-MM form (default: current month)")
		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPENDCTL"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := fs.GetArgs()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	c := &client{
		addr:     *addr,
		authUser: *authUser,
		authPass: *authPass,
		http:     &http.Client{Timeout: 60 * time.Second},
	}

	var err error
	switch args[0] {
	case "list":
		err = c.list()
	case "summary":
		err = c.summary(*month)
	case "scan":
		if len(args) < 2 {
			err = fmt.Errorf("scan requires a file argument")
		} else {
			err = c.scan(args[1])
		}
	case "delete":
		if len(args) < 2 {
			err = fmt.Errorf("delete requires an id argument")
		} else {
			err = c.delete(args[1])
		}
	case "export":
		if len(args) < 2 {
			err = fmt.Errorf("export requires an output file argument")
		} else {
			err = c.export(args[1])
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	addr     string
	authUser string
	authPass string
	http     *http.Client
}

func (c *client) do(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.addr+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.authUser != "" || c.authPass != "" {
		req.SetBasicAuth(c.authUser, c.authPass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	return resp, nil
}

func (c *client) list() error {
	resp, err := c.do(http.MethodGet, "/api/receipts", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var receipts []receipt.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipts); err != nil {
		return fmt.Errorf("decoding receipts: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Date", "Vendor", "Category", "Total", "Tax", "ID"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	var total float64
	for _, r := range receipts {
		t.AppendRow(table.Row{
			r.Date,
			r.VendorName,
			r.Category,
			fmt.Sprintf("%.2f", r.TotalAmount),
			fmt.Sprintf("%.2f", r.Tax),
			r.ID,
		})
		total += r.TotalAmount
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d receipts", len(receipts)), "", fmt.Sprintf("%.2f", total), "", ""})
	t.Render()
	return nil
}

func (c *client) summary(month string) error {
	path := "/api/summary"
	if month != "" {
		path += "?month=" + month
	}
	resp, err := c.do(http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var aggregate summary.MonthlyAggregate
	if err := json.NewDecoder(resp.Body).Decode(&aggregate); err != nil {
		return fmt.Errorf("decoding summary: %w", err)
	}

	fmt.Printf("%s expenses\n", aggregate.Month)
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Category", "Amount", "%"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for _, cat := range aggregate.Categories {
		t.AppendRow(table.Row{
			cat.Name,
			fmt.Sprintf("%.2f", cat.Amount),
			fmt.Sprintf("%.1f", cat.PercentageOfTotal),
		})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%.2f", aggregate.Total), ""})
	t.Render()
	return nil
}

func (c *client) scan(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := c.do(http.MethodPost, "/api/receipts", &body, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rec receipt.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return fmt.Errorf("decoding receipt: %w", err)
	}
	fmt.Printf("saved %s: %s %s %.2f (%s)\n", rec.ID, rec.Date, rec.VendorName, rec.TotalAmount, rec.Category)
	return nil
}

func (c *client) delete(id string) error {
	resp, err := c.do(http.MethodDelete, "/api/receipts/"+id, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	fmt.Printf("deleted %s\n", id)
	return nil
}

func (c *client) export(path string) error {
	resp, err := c.do(http.MethodGet, "/api/export", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
