package orchestrator

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tealeg/xlsx"
)

// MetadataPuller pulls audit-log and linker snapshots from the daemon's
// HTTP surface and persists them as Excel files.
type MetadataPuller struct {
	Client     *http.Client
	BaseURL    string
	AppdataDir string
}

// auditLogTargets maps each audit log id to its destination file name.
var auditLogTargets = map[string]string{
	"metadata":      "metadata.xlsx",
	"deid_metadata": "deid_metadata.xlsx",
}

func (p *MetadataPuller) httpClient() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// PullAuditLogs pulls each named audit log via GET
// /<auditLogId>?export&csv&suppress and writes it as an Excel file. Each
// pull is best-effort: an HTTP error is logged and the remaining pulls
// still run.
func (p *MetadataPuller) PullAuditLogs() {
	for id, filename := range auditLogTargets {
		if err := p.pullOne(id, filename); err != nil {
			fmt.Fprintf(os.Stderr, "orchestrator: metadata pull %s: %v\n", id, err)
		}
	}
}

func (p *MetadataPuller) pullOne(auditLogID, filename string) error {
	u := fmt.Sprintf("%s/%s?export&csv&suppress", p.BaseURL, auditLogID)
	resp, err := p.httpClient().Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return writeCSVAsXLSX(body, filepath.Join(p.AppdataDir, filename))
}

// PullLinker pulls the linker table via POST /idmap and writes it to
// linker.xlsx.
func (p *MetadataPuller) PullLinker() {
	form := url.Values{"p": {"0"}, "s": {"5"}, "keytype": {"trialAN"}, "keys": {""}, "format": {"csv"}}
	resp, err := p.httpClient().PostForm(p.BaseURL+"/idmap", form)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: linker pull: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "orchestrator: linker pull: unexpected status %d\n", resp.StatusCode)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: linker pull: read body: %v\n", err)
		return
	}
	if err := writeCSVAsXLSX(body, filepath.Join(p.AppdataDir, "linker.xlsx")); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: linker pull: write xlsx: %v\n", err)
	}
}

// writeCSVAsXLSX converts a CSV payload into a single-sheet xlsx workbook.
func writeCSVAsXLSX(csvData []byte, destPath string) error {
	r := csv.NewReader(strings.NewReader(string(csvData)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("parse csv snapshot: %w", err)
	}

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Sheet1")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, cell := range rec {
			row.AddCell().SetString(cell)
		}
	}
	return wb.Save(destPath)
}
