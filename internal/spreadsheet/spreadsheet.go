// Package spreadsheet reads the tabular input (.csv or .xlsx), classifies
// each row into a query mode, and writes the per-mode failed_queries.csv
// output. CSV is handled with the standard library's encoding/csv; .xlsx
// is handled with tealeg/xlsx.
package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	"github.com/ppiankov/icore/internal/dicomtag"
)

// Mode identifies how a Row's study is looked up.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeAccession
	ModeMRNDate
)

// Row is one input record, carrying raw cell values keyed by header name.
type Row struct {
	Index  int
	Values map[string]string
}

// ColumnHints names the columns that carry accession number, MRN, and
// study date.
type ColumnHints struct {
	AccCol  string
	MRNCol  string
	DateCol string
}

// Spreadsheet is a loaded input table plus the column hints used to
// classify rows.
type Spreadsheet struct {
	Hints   ColumnHints
	Headers []string
	Rows    []Row
}

// Mode classifies row r: accession mode wins if the accession column is
// non-empty; otherwise MRN+date mode applies if both the MRN column is
// non-empty and the date column parses. Anything else is ModeInvalid.
func (s *Spreadsheet) Mode(r Row) Mode {
	if s.Hints.AccCol != "" && strings.TrimSpace(r.Values[s.Hints.AccCol]) != "" {
		return ModeAccession
	}
	if s.Hints.MRNCol != "" && strings.TrimSpace(r.Values[s.Hints.MRNCol]) != "" {
		if _, err := ParseDate(r.Values[s.Hints.DateCol]); err == nil {
			return ModeMRNDate
		}
	}
	return ModeInvalid
}

// ValidateModes fails fast if any row is ModeInvalid: a row that satisfies
// neither mode must fail the job with a configuration error before any
// PACS contact.
func (s *Spreadsheet) ValidateModes() error {
	for _, r := range s.Rows {
		if s.Mode(r) == ModeInvalid {
			return fmt.Errorf("row %d: neither accession nor MRN+date mode is satisfiable (need non-empty %q, or non-empty %q with a parseable date in %q)",
				r.Index, s.Hints.AccCol, s.Hints.MRNCol, s.Hints.DateCol)
		}
	}
	return nil
}

// Accession returns the accession-number cell value for row r.
func (s *Spreadsheet) Accession(r Row) string {
	return strings.TrimSpace(r.Values[s.Hints.AccCol])
}

// MRN returns the MRN cell value for row r.
func (s *Spreadsheet) MRN(r Row) string {
	return strings.TrimSpace(r.Values[s.Hints.MRNCol])
}

// Date returns the parsed study date cell for row r.
func (s *Spreadsheet) Date(r Row) (time.Time, error) {
	return ParseDate(r.Values[s.Hints.DateCol])
}

// ParseDate accepts the handful of date layouts this spreadsheet ingestion
// code is expected to see in practice: ISO (YYYY-MM-DD), DICOM wire format
// (YYYYMMDD), and US slash format.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	layouts := []string{"2006-01-02", "20060102", "01/02/2006", "1/2/2006"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, lastErr)
}

// Load reads a .csv or .xlsx input file, selected by extension.
func Load(path string, hints ColumnHints) (*Spreadsheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path, hints)
	case ".xlsx":
		return loadXLSX(path, hints)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet extension %q", filepath.Ext(path))
	}
}

func loadCSV(path string, hints ColumnHints) (*Spreadsheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return &Spreadsheet{Hints: hints}, nil
	}

	headers := records[0]
	sheet := &Spreadsheet{Hints: hints, Headers: headers}
	for i, rec := range records[1:] {
		values := make(map[string]string, len(headers))
		for c, h := range headers {
			if c < len(rec) {
				values[h] = rec[c]
			}
		}
		sheet.Rows = append(sheet.Rows, Row{Index: i, Values: values})
	}
	return sheet, nil
}

func loadXLSX(path string, hints ColumnHints) (*Spreadsheet, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	if len(wb.Sheets) == 0 {
		return &Spreadsheet{Hints: hints}, nil
	}
	sh := wb.Sheets[0]
	if len(sh.Rows) == 0 {
		return &Spreadsheet{Hints: hints}, nil
	}

	var headers []string
	for _, cell := range sh.Rows[0].Cells {
		headers = append(headers, cell.String())
	}

	sheet := &Spreadsheet{Hints: hints, Headers: headers}
	for i, row := range sh.Rows[1:] {
		values := make(map[string]string, len(headers))
		for c, cell := range row.Cells {
			if c < len(headers) {
				values[headers[c]] = cell.String()
			}
		}
		sheet.Rows = append(sheet.Rows, Row{Index: i, Values: values})
	}
	return sheet, nil
}

// MappingTable is the parsed mapping-spreadsheet: a set of
// <TagName>/New-<TagName> column pairs used to synthesize a LookupTable
// for the anonymizer script.
type MappingTable struct {
	Pairs []MappingPair
}

// MappingPair is one <TagName>/New-<TagName> column pair with its row values.
type MappingPair struct {
	TagName     string
	Originals   []string
	Replacements []string
}

// LoadMappingTable loads a mapping spreadsheet and validates that every
// original-value column name is a recognized DICOM keyword and has a
// matching "New-<TagName>" column.
func LoadMappingTable(path string) (*MappingTable, error) {
	sheet, err := Load(path, ColumnHints{})
	if err != nil {
		return nil, err
	}

	newPrefix := "New-"
	tagCols := map[string]bool{}
	newCols := map[string]bool{}
	for _, h := range sheet.Headers {
		if strings.HasPrefix(h, newPrefix) {
			newCols[strings.TrimPrefix(h, newPrefix)] = true
		} else {
			tagCols[h] = true
		}
	}

	mt := &MappingTable{}
	for tag := range tagCols {
		if !newCols[tag] {
			return nil, fmt.Errorf("mapping spreadsheet column %q has no matching %q column", tag, newPrefix+tag)
		}
		if _, ok := dicomtag.Lookup(tag); !ok {
			return nil, fmt.Errorf("mapping spreadsheet column %q is not a recognized DICOM keyword", tag)
		}

		pair := MappingPair{TagName: tag}
		for _, r := range sheet.Rows {
			pair.Originals = append(pair.Originals, formatMappingValue(r.Values[tag]))
			pair.Replacements = append(pair.Replacements, formatMappingValue(r.Values[newPrefix+tag]))
		}
		mt.Pairs = append(mt.Pairs, pair)
	}
	return mt, nil
}

// formatMappingValue formats a cell value: values that parse as a date
// are rendered YYYYMMDD; everything else is passed through verbatim.
func formatMappingValue(v string) string {
	if t, err := ParseDate(v); err == nil {
		return t.Format("20060102")
	}
	return strings.TrimSpace(v)
}

// FailedQueryRow is one row of the appdata/failed_queries.csv output.
type FailedQueryRow struct {
	RowIndex int
	Mode     Mode
	Accession string
	MRN       string
	Date      string
	Reason    string
}

const failureReason = "Failed to find images"

// WriteFailedQueries writes appdata/failed_queries.csv with columns chosen
// by mode. When rows span multiple modes, the combined accession+MRN
// layout is used.
func WriteFailedQueries(path string, rows []FailedQueryRow) error {
	if len(rows) == 0 {
		return nil
	}

	hasAcc, hasMRN := false, false
	for _, r := range rows {
		if r.Mode == ModeAccession {
			hasAcc = true
		}
		if r.Mode == ModeMRNDate {
			hasMRN = true
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	switch {
	case hasAcc && !hasMRN:
		if err := w.Write([]string{"Accession Number", "Failure Reason"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := w.Write([]string{r.Accession, failureReason}); err != nil {
				return err
			}
		}
	case hasMRN && !hasAcc:
		if err := w.Write([]string{"MRN", "Date", "Failure Reason"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := w.Write([]string{r.MRN, r.Date, failureReason}); err != nil {
				return err
			}
		}
	default:
		if err := w.Write([]string{"Accession Number", "MRN", "Failure Reason"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := w.Write([]string{r.Accession, r.MRN, failureReason}); err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatInt renders n in decimal, for writing a numeric value into a CSV
// cell.
func FormatInt(n int) string { return strconv.Itoa(n) }
