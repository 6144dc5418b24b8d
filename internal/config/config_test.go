package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidateValidConfig(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "input")
	if err := os.Mkdir(inputDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	content := `
module: imageqr
input_path: ` + inputDir + `
appdata_dir: ` + filepath.Join(dir, "appdata") + `
date_window: 2
application_aet: ICORE
column_hints:
  accession_column: AccessionNumber
pacs:
  - host: pacs1.example.org
    port: 104
    aet: PACS1
`
	path := writeConfig(t, dir, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.PacsConfigurations()) != 1 {
		t.Fatalf("expected 1 PACS entry, got %d", len(cfg.PacsConfigurations()))
	}
}

func TestValidateRejectsUnknownModule(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Module = "not-a-real-module"
	cfg.InputPath = dir
	cfg.AppdataDir = dir
	cfg.ColumnHints.AccessionColumn = "Acc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of unknown module")
	}
}

func TestValidateRejectsOutOfBoundsDateWindow(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Module = ModuleImageDeid
	cfg.InputPath = dir
	cfg.AppdataDir = dir
	cfg.ColumnHints.AccessionColumn = "Acc"
	cfg.DateWindow = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of date_window=11")
	}
}

func TestValidateRejectsEmptyPACSForPACSModule(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Module = ModuleImageQR
	cfg.InputPath = dir
	cfg.AppdataDir = dir
	cfg.ColumnHints.AccessionColumn = "Acc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of empty PACS list for a PACS-mode module")
	}
}

func TestValidateRejectsMissingInputPath(t *testing.T) {
	cfg := Default()
	cfg.Module = ModuleImageDeid
	cfg.InputPath = "/nonexistent/path/xyz"
	cfg.AppdataDir = "/tmp"
	cfg.ColumnHints.AccessionColumn = "Acc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of a missing input_path")
	}
}

func TestValidateRejectsMissingColumnHints(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Module = ModuleImageDeid
	cfg.InputPath = dir
	cfg.AppdataDir = dir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection when neither accession nor MRN+date column hints are set")
	}
}
