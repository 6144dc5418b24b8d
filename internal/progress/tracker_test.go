package progress

import (
	"os"
	"testing"
)

func TestMarkRowQueriedThenDownloadedCompletesRow(t *testing.T) {
	tr := New()
	tr.SetTotalRows(1)
	tr.MarkRowQueried(0, "1.2.3")
	tr.MarkRowQueried(0, "1.2.4")

	if tr.GetCompletedRows()[0] {
		t.Fatal("row must not be complete before any study downloads")
	}

	tr.MarkStudyDownloaded("1.2.3", 10)
	if tr.GetCompletedRows()[0] {
		t.Fatal("row must not be complete with only one of two studies downloaded")
	}

	tr.MarkStudyDownloaded("1.2.4", 5)
	if !tr.GetCompletedRows()[0] {
		t.Fatal("row must be complete once every study_uid is downloaded")
	}

	pending := tr.GetPendingRows(1)
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows, got %v", pending)
	}
}

func TestMarkStudyDownloadedWithoutQueryIsNoop(t *testing.T) {
	tr := New()
	tr.MarkStudyDownloaded("unknown-uid", 3)
	if tr.IsStudyDownloaded("unknown-uid") {
		t.Fatal("an unqueried study must not be marked downloaded")
	}
}

func TestGetPendingRowsComplement(t *testing.T) {
	tr := New()
	tr.SetTotalRows(3)
	tr.MarkRowQueried(1, "1.2.3")
	tr.MarkStudyDownloaded("1.2.3", 1)

	pending := tr.GetPendingRows(3)
	if pending[1] {
		t.Fatal("row 1 was completed and must not be pending")
	}
	if !pending[0] || !pending[2] {
		t.Fatalf("rows 0 and 2 were never touched and must be pending, got %v", pending)
	}
}

func TestGetStats(t *testing.T) {
	tr := New()
	tr.MarkRowQueried(0, "a")
	tr.MarkStudyDownloaded("a", 7)
	tr.MarkRowQueried(1, "b")

	stats := tr.GetStats()
	if stats.RowsCompleted != 1 {
		t.Errorf("expected 1 completed row, got %d", stats.RowsCompleted)
	}
	if stats.StudiesDownloaded != 1 {
		t.Errorf("expected 1 downloaded study, got %d", stats.StudiesDownloaded)
	}
	if stats.FilesDownloaded != 7 {
		t.Errorf("expected 7 files downloaded, got %d", stats.FilesDownloaded)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tr := New()
	tr.SetTotalRows(2)
	tr.MarkRowQueried(0, "1.2.3")
	tr.MarkStudyDownloaded("1.2.3", 4)
	tr.MarkRowQueried(1, "1.2.4")

	if err := tr.SaveProgress(dir); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	loaded := LoadProgress(dir)
	if !loaded.GetCompletedRows()[0] {
		t.Fatal("row 0 should survive the round trip as completed")
	}
	if loaded.GetCompletedRows()[1] {
		t.Fatal("row 1 should survive the round trip as not completed")
	}
	if !loaded.IsStudyDownloaded("1.2.3") {
		t.Fatal("study 1.2.3 should survive the round trip as downloaded")
	}
	stats := loaded.GetStats()
	if stats.FilesDownloaded != 4 {
		t.Fatalf("expected 4 files downloaded after reload, got %d", stats.FilesDownloaded)
	}
}

func TestRunIDPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	tr := New()
	if tr.RunID() == "" {
		t.Fatal("New() must assign a non-empty run ID")
	}
	if err := tr.SaveProgress(dir); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	loaded := LoadProgress(dir)
	if loaded.RunID() != tr.RunID() {
		t.Fatalf("run ID must survive reload: got %q, want %q", loaded.RunID(), tr.RunID())
	}
}

func TestLoadProgressMissingFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	tr := LoadProgress(dir)
	if len(tr.GetCompletedRows()) != 0 {
		t.Fatal("a fresh tracker from a missing file must have no completed rows")
	}
}

func TestLoadProgressMalformedFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/" + progressFileName
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("write garbage file: %v", err)
	}
	tr := LoadProgress(dir)
	if len(tr.GetCompletedRows()) != 0 {
		t.Fatal("a malformed progress file must downgrade to a fresh tracker, not fail the run")
	}
}
