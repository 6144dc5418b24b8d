// Package anonscript synthesizes the AnonymizerScript XML document and its
// LookupTable companion. XML emission goes through the standard library's
// encoding/xml marshaling rather than hand-assembling strings.
package anonscript

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/icore/internal/dicomtag"
	"github.com/ppiankov/icore/internal/spreadsheet"
)

// Params are the header <p> parameters.
type Params struct {
	DateInc     int
	Notice1     string
	Notice2     string
	ProfileName string
	ProjectName string
	SiteName    string
	SiteID      string
	TrialName   string
	Subject     string
	UIDRoot     string
}

// Toggles are the bulk-remove directives.
type Toggles struct {
	RemoveOverlays          bool
	RemoveCurves            bool
	RemovePrivateGroups     bool
	RemoveUnspecifiedElements bool
}

// Script is the synthesis input: three tag-name lists, the parameters, and
// the bulk-remove toggles.
type Script struct {
	Keep       []string
	DateShift  []string
	Randomize  []string
	Params     Params
	Toggles    Toggles
	LookupText string // pre-rendered LookupTable text, or "" if none
}

// xmlDoc mirrors the emitted structure for marshaling.
type xmlDoc struct {
	XMLName xml.Name    `xml:"script"`
	Params  []xmlParam  `xml:"p"`
	Entries []xmlEntry  `xml:"e"`
	Removes []xmlRemove `xml:"r"`
}

type xmlParam struct {
	Name  string `xml:"n,attr"`
	Value string `xml:",chardata"`
}

type xmlEntry struct {
	Tag    string `xml:"t,attr"`
	Name   string `xml:"n,attr"`
	Action string `xml:",chardata"`
}

type xmlRemove struct {
	What string `xml:"what,attr"`
}

// hashDispatch implements the per-tag hash-method dispatch table.
var hashDispatch = map[string]string{
	"AccessionNumber":        "@hash(this,16)",
	"PatientID":              "@hash(this,10)",
	"PatientName":            "@hashname(this,6,2)",
	"ClinicalTrialSubjectID": "@hashptid(@SITEID,PatientID)",
}

// actionFor returns the emitted action for tag name in kind ("keep",
// "dateshift", "randomize").
func actionFor(name, kind string) string {
	switch kind {
	case "keep":
		return "@keep()"
	case "dateshift":
		return "@incrementdate(this,@DATEINC)"
	case "randomize":
		if action, ok := hashDispatch[name]; ok {
			return action
		}
		if dicomtag.IsUID(name) {
			return "@hashuid(@UIDROOT,this)"
		}
		return "@hash(this)"
	default:
		return "@keep()"
	}
}

// Render synthesizes the AnonymizerScript XML for s. Tags unrecognized by
// the DICOM dictionary are skipped with no error: a free-text tag name
// supplied by a caller that does not match a known keyword simply cannot
// be resolved to its hex code and is dropped from the emitted script.
func Render(s Script) (string, error) {
	kindByTag := make(map[string]string)
	for _, t := range s.Keep {
		kindByTag[t] = "keep"
	}
	for _, t := range s.DateShift {
		kindByTag[t] = "dateshift"
	}
	for _, t := range s.Randomize {
		kindByTag[t] = "randomize"
	}

	names := make([]string, 0, len(kindByTag))
	for name := range kindByTag {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := xmlDoc{
		Params: []xmlParam{
			{Name: "DATEINC", Value: fmt.Sprintf("%d", s.Params.DateInc)},
			{Name: "NOTICE1", Value: s.Params.Notice1},
			{Name: "NOTICE2", Value: s.Params.Notice2},
			{Name: "PROFILENAME", Value: s.Params.ProfileName},
			{Name: "PROJECTNAME", Value: s.Params.ProjectName},
			{Name: "SITENAME", Value: s.Params.SiteName},
			{Name: "SITEID", Value: s.Params.SiteID},
			{Name: "TRIALNAME", Value: s.Params.TrialName},
			{Name: "SUBJECT", Value: s.Params.Subject},
			{Name: "UIDROOT", Value: s.Params.UIDRoot},
		},
	}

	for _, name := range names {
		tag, ok := dicomtag.Lookup(name)
		if !ok {
			continue
		}
		doc.Entries = append(doc.Entries, xmlEntry{
			Tag:    tag.Hex(),
			Name:   name,
			Action: actionFor(name, kindByTag[name]),
		})
	}

	if s.Toggles.RemoveCurves {
		doc.Removes = append(doc.Removes, xmlRemove{What: "curves"})
	}
	if s.Toggles.RemoveOverlays {
		doc.Removes = append(doc.Removes, xmlRemove{What: "overlays"})
	}
	if s.Toggles.RemovePrivateGroups {
		doc.Removes = append(doc.Removes, xmlRemove{What: "privategroups"})
	}
	if s.Toggles.RemoveUnspecifiedElements {
		doc.Removes = append(doc.Removes, xmlRemove{What: "unspecifiedelements"})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal anonymizer script: %w", err)
	}
	return xml.Header + string(out), nil
}

// BuildLookupTable renders the LookupTable text from a mapping spreadsheet:
// for each pair (Col, New-Col), emit a block Col/<original> = <replacement>
// for each row.
func BuildLookupTable(mt *spreadsheet.MappingTable) string {
	var b strings.Builder
	for _, pair := range mt.Pairs {
		for i, orig := range pair.Originals {
			if orig == "" {
				continue
			}
			fmt.Fprintf(&b, "%s/%s = %s\n", pair.TagName, orig, pair.Replacements[i])
		}
	}
	return b.String()
}

// ResolveLookupTable implements the explicit-lookup-table precedence rule:
// an explicit table always wins over a mapping spreadsheet, which is
// ignored entirely when both are supplied.
func ResolveLookupTable(explicit string, mappingTable *spreadsheet.MappingTable) string {
	if explicit != "" {
		return explicit
	}
	if mappingTable != nil {
		return BuildLookupTable(mappingTable)
	}
	return ""
}
