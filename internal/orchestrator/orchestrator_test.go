package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/icore/internal/config"
	"github.com/ppiankov/icore/internal/spreadsheet"
)

func TestDedupSorted(t *testing.T) {
	got := dedupSorted([]int{3, 1, 1, 2, 3, 0})
	want := []int{0, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestJobDescriptorsCoverAllFiveModules(t *testing.T) {
	wantNames := map[string]bool{
		"query-only": false, "de-identify-local": false, "de-identify-PACS": false,
		"de-identify+export": false, "single-click combined": false,
	}
	for _, d := range jobDescriptors {
		if _, ok := wantNames[d.Name]; ok {
			wantNames[d.Name] = true
		}
	}
	for name, seen := range wantNames {
		if !seen {
			t.Errorf("expected a job descriptor named %q", name)
		}
	}
}

func TestReadLocalHeadersSkipsUnparseableFilesAndWritesCSV(t *testing.T) {
	inputDir := t.TempDir()
	appdataDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(inputDir, "not-really-dicom.dcm"), []byte("not dicom bytes"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "ignored.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	j := &Job{Cfg: &config.Config{InputPath: inputDir, AppdataDir: appdataDir}}
	if err := j.readLocalHeaders(); err != nil {
		t.Fatalf("readLocalHeaders: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(appdataDir, "local_headers.csv"))
	if err != nil {
		t.Fatalf("read local_headers.csv: %v", err)
	}
	if got := string(data); got == "" {
		t.Fatal("expected a header row to be written even with no parseable files")
	}
}

func TestAppendLocalHeaderRowErrorsOnUnreadableFile(t *testing.T) {
	appdataDir := t.TempDir()
	j := &Job{Cfg: &config.Config{AppdataDir: appdataDir}}

	if err := j.appendLocalHeaderRow("/no/such/file.dcm", []string{"AccessionNumber"}); err == nil {
		t.Fatal("expected an error reading an unparseable/missing file")
	}
}

func TestRunTextDeidScrubsEveryCellAndWritesCSV(t *testing.T) {
	appdataDir := t.TempDir()
	sheet := &spreadsheet.Spreadsheet{
		Headers: []string{"Notes"},
		Rows: []spreadsheet.Row{
			{Index: 0, Values: map[string]string{"Notes": "patient John Doe, MRN 123"}},
		},
	}

	var gotWhitelist, gotBlacklist []string
	scrub := func(text string, whitelist, blacklist []string) string {
		gotWhitelist, gotBlacklist = whitelist, blacklist
		return strings.ReplaceAll(text, "John Doe", "[REDACTED]")
	}

	j := &Job{
		Cfg: &config.Config{
			AppdataDir:    appdataDir,
			TextRedaction: config.TextRedaction{Whitelist: []string{"MRN"}, Blacklist: []string{"John Doe"}},
		},
		TextDeid: scrub,
	}

	if err := j.runTextDeid(sheet); err != nil {
		t.Fatalf("runTextDeid: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(appdataDir, "text_deidentified.csv"))
	if err != nil {
		t.Fatalf("read text_deidentified.csv: %v", err)
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Fatalf("expected redacted text in output, got %q", string(data))
	}
	if strings.Contains(string(data), "John Doe") {
		t.Fatalf("expected original PII to be absent from output, got %q", string(data))
	}
	if len(gotWhitelist) != 1 || gotWhitelist[0] != "MRN" {
		t.Fatalf("expected whitelist to be passed through, got %v", gotWhitelist)
	}
	if len(gotBlacklist) != 1 || gotBlacklist[0] != "John Doe" {
		t.Fatalf("expected blacklist to be passed through, got %v", gotBlacklist)
	}
}
