package dicomfile

import (
	"testing"

	"github.com/ppiankov/icore/internal/dicomtag"
)

func TestReadHeaderTagsMissingFileErrors(t *testing.T) {
	_, err := ReadHeaderTags("/nonexistent/path.dcm", []string{"PatientID"})
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestReadHeaderTagsSkipsUnrecognizedKeyword(t *testing.T) {
	// A keyword absent from the dictionary must not panic or otherwise abort
	// the scan; it is just omitted from the result. Exercised indirectly via
	// ReadHeaderTags's dictionary lookup, since constructing a valid on-disk
	// DICOM fixture is out of scope for this package's unit tests.
	if _, ok := dicomtag.Lookup("NotARealKeyword"); ok {
		t.Fatal("expected unrecognized keyword to be absent from the dictionary")
	}
}
