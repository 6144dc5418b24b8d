// Package config loads and validates the structured job configuration:
// unmarshal onto a defaulted struct, fail fast with a single-line
// diagnostic on any invalid field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/icore/internal/filter"
	"github.com/ppiankov/icore/internal/finder"
)

// Module is one of the job types.
type Module string

const (
	ModuleImageQR            Module = "imageqr"
	ModuleImageDeid          Module = "imagedeid"
	ModuleImageDeidExport    Module = "imagedeidexport"
	ModuleSingleClickIcore   Module = "singleclickicore"
	ModuleHeaderExtraction   Module = "headerextraction"
	ModuleTextDeid           Module = "textdeid"
)

var validModules = map[Module]bool{
	ModuleImageQR: true, ModuleImageDeid: true, ModuleImageDeidExport: true,
	ModuleSingleClickIcore: true, ModuleHeaderExtraction: true, ModuleTextDeid: true,
}

// AnonymizationLists are the three tag-name lists that drive anonymizer
// script synthesis: kept verbatim, date-shifted, or randomized.
type AnonymizationLists struct {
	Keep      []string `yaml:"keep"`
	DateShift []string `yaml:"dateshift"`
	Randomize []string `yaml:"randomize"`
}

// Toggles are the bulk-remove toggles for overlays, curves, private
// groups, and unspecified elements.
type Toggles struct {
	RemoveOverlays            bool `yaml:"remove_overlays"`
	RemoveCurves              bool `yaml:"remove_curves"`
	RemovePrivateGroups       bool `yaml:"remove_private_groups"`
	RemoveUnspecifiedElements bool `yaml:"remove_unspecified_elements"`
}

// TextRedaction carries the whitelist/blacklist term lists passed to the
// text-redaction collaborator.
type TextRedaction struct {
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
}

// ColumnHints names the spreadsheet columns for accession/MRN/date.
type ColumnHints struct {
	AccessionColumn string `yaml:"accession_column"`
	MRNColumn       string `yaml:"mrn_column"`
	DateColumn      string `yaml:"date_column"`
}

// PacsEntry is one configured PACS.
type PacsEntry struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	AET  string `yaml:"aet"`
}

// Config is the structured job configuration loaded from YAML.
type Config struct {
	Module           Module              `yaml:"module"`
	PACS             []PacsEntry         `yaml:"pacs"`
	ApplicationAET   string              `yaml:"application_aet"`
	InputPath        string              `yaml:"input_path"`
	AppdataDir       string              `yaml:"appdata_dir"`
	ColumnHints      ColumnHints         `yaml:"column_hints"`
	DateWindow       int                 `yaml:"date_window"`
	Anonymization    AnonymizationLists  `yaml:"anonymization"`
	DateShiftDays    int                 `yaml:"date_shift_days"`
	FilterString     string              `yaml:"filter"`
	AnonymizerXML    string              `yaml:"anonymizer_xml"`
	LookupTableText  string              `yaml:"lookup_table"`
	MappingSheetPath string              `yaml:"mapping_spreadsheet_path"`
	Toggles          Toggles             `yaml:"toggles"`
	TextRedaction    TextRedaction       `yaml:"text_redaction"`
}

// Default returns a Config with the only defaultable field set: an empty
// date window (a valid single-day window).
func Default() *Config {
	return &Config{DateWindow: 0}
}

// Load reads and parses a YAML config file. A missing job config is
// fatal — "absent input directory" is one of several fail-fast
// configuration errors, and an absent config file is the same class of
// problem — so Load never substitutes defaults for a missing file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fails fast on an unknown module, absent input directory,
// out-of-range date window, missing column hints, or a filter string that
// does not parse, with a single-line diagnostic. Date-window integer-ness
// is enforced by its int type when the YAML is decoded.
func (c *Config) Validate() error {
	if !validModules[c.Module] {
		return fmt.Errorf("unknown module %q", c.Module)
	}
	if c.InputPath == "" {
		return fmt.Errorf("input_path is required")
	}
	if _, err := os.Stat(c.InputPath); err != nil {
		return fmt.Errorf("input_path %q does not exist: %w", c.InputPath, err)
	}
	if c.AppdataDir == "" {
		return fmt.Errorf("appdata_dir is required")
	}
	if c.DateWindow < 0 || c.DateWindow > 10 {
		return fmt.Errorf("date_window must be in [0, 10], got %d", c.DateWindow)
	}

	pacsModules := map[Module]bool{ModuleImageQR: true, ModuleImageDeidExport: true, ModuleSingleClickIcore: true}
	if pacsModules[c.Module] && len(c.PACS) == 0 {
		return fmt.Errorf("module %q requires at least one configured PACS", c.Module)
	}
	if c.ColumnHints.AccessionColumn == "" && (c.ColumnHints.MRNColumn == "" || c.ColumnHints.DateColumn == "") {
		return fmt.Errorf("column_hints must name an accession column or both an MRN and a date column")
	}
	if c.FilterString != "" {
		if _, err := filter.Parse(c.FilterString); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	return nil
}

// PacsConfigurations converts the YAML-friendly PACS entries into
// finder.PacsConfiguration values, in declaration order (the order this
// list iterates determines first-discovered-wins assignment).
func (c *Config) PacsConfigurations() []finder.PacsConfiguration {
	out := make([]finder.PacsConfiguration, 0, len(c.PACS))
	for _, p := range c.PACS {
		out = append(out, finder.PacsConfiguration{Host: p.Host, Port: p.Port, AET: p.AET})
	}
	return out
}
