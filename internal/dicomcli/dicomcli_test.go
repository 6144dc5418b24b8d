package dicomcli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFindTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "find.xml")
	content := `<responses type="C-FIND">
  <data-set>
    <element name="AccessionNumber">ACC001</element>
    <element name="StudyInstanceUID">1.2.3</element>
  </data-set>
  <data-set>
    <element name="AccessionNumber">ACC002</element>
    <element name="StudyInstanceUID">1.2.4</element>
  </data-set>
</responses>`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	results, err := parseFindTranscript(path)
	if err != nil {
		t.Fatalf("parseFindTranscript: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0]["AccessionNumber"] != "ACC001" || results[0]["StudyInstanceUID"] != "1.2.3" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1]["AccessionNumber"] != "ACC002" {
		t.Errorf("unexpected second result: %+v", results[1])
	}
}

func TestParseFindTranscriptMissingFile(t *testing.T) {
	if _, err := parseFindTranscript("/nonexistent/path.xml"); err == nil {
		t.Fatal("expected ParseError for missing transcript")
	} else if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParseFindTranscriptMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xml")
	if err := os.WriteFile(path, []byte("<responses><data-set><element name=\"X\">"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := parseFindTranscript(path); err == nil {
		t.Fatal("expected ParseError for malformed XML")
	}
}

func TestParseRetrieveStderrSuccess(t *testing.T) {
	stderr := "some preamble\nReceived Final Move Response (Success)\nSub-Operations Complete: 10, Failed: 0, Warning: 0\n"
	r := parseRetrieveStderr(stderr)
	if !r.Success {
		t.Fatal("expected success")
	}
	if r.NumCompleted != 10 || r.NumFailed != 0 || r.NumWarning != 0 {
		t.Errorf("unexpected counts: %+v", r)
	}
}

func TestParseRetrieveStderrFailure(t *testing.T) {
	stderr := "connection refused\n"
	r := parseRetrieveStderr(stderr)
	if r.Success {
		t.Fatal("expected failure when no summary line present")
	}
	if r.Message == "" {
		t.Fatal("expected diagnostic message")
	}
}

func TestParseRetrieveStderrPartialFailure(t *testing.T) {
	stderr := "Sub-Operations Complete: 8, Failed: 2, Warning: 0\n"
	r := parseRetrieveStderr(stderr)
	if r.Success {
		t.Fatal("expected failure: no Final Move Response (Success) line present")
	}
	if r.NumFailed != 2 {
		t.Errorf("expected NumFailed=2, got %d", r.NumFailed)
	}
}

func TestFixedSequenceBackOffOrder(t *testing.T) {
	bo := newFixedSequenceBackOff()
	want := []int64{4, 16, 32}
	for _, w := range want {
		d := bo.NextBackOff()
		if d.Seconds() != float64(w) {
			t.Errorf("expected %ds, got %v", w, d)
		}
	}
}

func TestRetryFindStudiesStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := retryFindStudies(func(attempt int) ([]map[string]string, error) {
		calls++
		return nil, errNotRetryable{}
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

type errNotRetryable struct{}

func (errNotRetryable) Error() string { return "not retryable" }

func TestRetryFindStudiesSucceedsOnFirstTry(t *testing.T) {
	calls := 0
	results, err := retryFindStudies(func(attempt int) ([]map[string]string, error) {
		calls++
		return []map[string]string{{"a": "b"}}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}
