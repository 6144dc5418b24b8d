// Package dicomtag provides the static DICOM keyword dictionary used by the
// filter grammar, anonymizer script synthesis, and mapping-spreadsheet
// validation. It does not implement DICOM wire protocol; it only maps
// standard keywords to their (group, element) tag numbers.
package dicomtag

import "fmt"

// Tag is a DICOM (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

// Hex returns the 8-hex-digit form used by AnonymizerScript <e t="..."> attributes,
// e.g. (0008,0050) -> "00080050".
func (t Tag) Hex() string {
	return fmt.Sprintf("%04x%04x", t.Group, t.Element)
}

// dictionary covers the keywords the anonymizer hash-dispatch table, filter
// grammar, and mapping spreadsheets commonly reference. Not exhaustive of
// the full DICOM standard dictionary.
var dictionary = map[string]Tag{
	"AccessionNumber":         {0x0008, 0x0050},
	"InstitutionName":         {0x0008, 0x0080},
	"ReferringPhysicianName":  {0x0008, 0x0090},
	"StudyDescription":        {0x0008, 0x1030},
	"SeriesDescription":       {0x0008, 0x103e},
	"PerformingPhysicianName": {0x0008, 0x1050},
	"Modality":                {0x0008, 0x0060},
	"StudyDate":               {0x0008, 0x0020},
	"SeriesDate":              {0x0008, 0x0021},
	"AcquisitionDate":         {0x0008, 0x0022},
	"ContentDate":             {0x0008, 0x0023},
	"StudyTime":               {0x0008, 0x0030},
	"PatientName":             {0x0010, 0x0010},
	"PatientID":               {0x0010, 0x0020},
	"PatientBirthDate":        {0x0010, 0x0030},
	"PatientSex":              {0x0010, 0x0040},
	"PatientAge":              {0x0010, 0x1010},
	"OtherPatientIDs":         {0x0010, 0x1000},
	"StudyInstanceUID":        {0x0020, 0x000d},
	"SeriesInstanceUID":       {0x0020, 0x000e},
	"SOPInstanceUID":          {0x0008, 0x0018},
	"SOPClassUID":             {0x0008, 0x0016},
	"FrameOfReferenceUID":     {0x0020, 0x0052},
	"ClinicalTrialSubjectID":  {0x0012, 0x0040},
	"ClinicalTrialProtocolID": {0x0012, 0x0020},
	"DeviceSerialNumber":      {0x0018, 0x1000},
	"StationName":             {0x0008, 0x1010},
	"InstitutionalDepartmentName": {0x0008, 0x1040},
	"OperatorsName":           {0x0008, 0x1070},
}

// Lookup returns the tag for a DICOM keyword and whether it was recognized.
func Lookup(name string) (Tag, bool) {
	t, ok := dictionary[name]
	return t, ok
}

// IsUID reports whether a keyword names a UID-bearing tag, used by the
// anonymizer hash-method dispatch table to default UID tags to hashuid().
func IsUID(name string) bool {
	switch name {
	case "StudyInstanceUID", "SeriesInstanceUID", "SOPInstanceUID", "SOPClassUID", "FrameOfReferenceUID":
		return true
	default:
		return false
	}
}

// Names returns all recognized keywords, sorted by the caller if needed.
func Names() []string {
	names := make([]string, 0, len(dictionary))
	for k := range dictionary {
		names = append(names, k)
	}
	return names
}
