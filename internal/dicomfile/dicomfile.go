// Package dicomfile reads header tag values directly out of local DICOM
// files, for the de-identify-local job type, which never issues a PACS
// query: its input rows name files already present on disk. Parsing uses
// github.com/suyashkumar/dicom.
package dicomfile

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ppiankov/icore/internal/dicomtag"
)

// ReadHeaderTags parses path and returns the string value of every
// requested keyword found in its header. Unrecognized keywords and tags
// absent from the file are silently omitted, since header extraction runs
// over arbitrary real-world files that rarely carry every optional tag.
func ReadHeaderTags(path string, keywords []string) (map[string]string, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom file %s: %w", path, err)
	}

	out := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		t, ok := dicomtag.Lookup(kw)
		if !ok {
			continue
		}
		elem, err := ds.FindElementByTag(tag.Tag{Group: t.Group, Element: t.Element})
		if err != nil {
			continue
		}
		out[kw] = stringValue(elem)
	}
	return out, nil
}

func stringValue(elem *dicom.Element) string {
	if elem == nil || elem.Value == nil {
		return ""
	}
	if vals, ok := elem.Value.GetValue().([]string); ok && len(vals) > 0 {
		return vals[0]
	}
	return fmt.Sprintf("%v", elem.Value.GetValue())
}
