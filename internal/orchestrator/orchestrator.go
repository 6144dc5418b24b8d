// Package orchestrator composes the Query Planner, Multi-PACS Finder,
// Pipeline Supervisor, and Metadata Emitters into the five concrete job
// types. Jobs are data-driven: a Stage enum sequence with per-stage
// configuration, rather than a job-type inheritance hierarchy.
package orchestrator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ppiankov/icore/internal/config"
	"github.com/ppiankov/icore/internal/dicomcli"
	"github.com/ppiankov/icore/internal/dicomfile"
	"github.com/ppiankov/icore/internal/finder"
	"github.com/ppiankov/icore/internal/pipeline"
	"github.com/ppiankov/icore/internal/progress"
	"github.com/ppiankov/icore/internal/queryplan"
	"github.com/ppiankov/icore/internal/spreadsheet"
	"github.com/ppiankov/icore/internal/watch"
)

// Stage names one step of a job descriptor's composition.
type Stage string

const (
	StagePlan              Stage = "plan"
	StageFind              Stage = "find"
	StageRetrieve          Stage = "retrieve"
	StagePipelineSupervise Stage = "pipeline-supervise"
	StageMetadataEmit      Stage = "metadata-emit"
	StageExport            Stage = "export"
	StageTextDeid          Stage = "text-deid"
	StageLocalHeaderRead   Stage = "local-header-read"
)

// JobDescriptor composes the stages one job type runs, in order.
type JobDescriptor struct {
	Name   string
	Stages []Stage
}

// jobDescriptors is the data-driven table of the five concrete job types.
var jobDescriptors = map[config.Module]JobDescriptor{
	config.ModuleImageQR: {
		Name:   "query-only",
		Stages: []Stage{StagePlan, StageFind, StageRetrieve, StagePipelineSupervise, StageMetadataEmit},
	},
	config.ModuleHeaderExtraction: {
		Name:   "de-identify-local",
		Stages: []Stage{StageLocalHeaderRead, StagePipelineSupervise, StageMetadataEmit},
	},
	config.ModuleImageDeid: {
		Name:   "de-identify-PACS",
		Stages: []Stage{StagePlan, StageFind, StagePipelineSupervise, StageRetrieve, StageMetadataEmit},
	},
	config.ModuleImageDeidExport: {
		Name:   "de-identify+export",
		Stages: []Stage{StagePlan, StageFind, StagePipelineSupervise, StageRetrieve, StageMetadataEmit, StageExport},
	},
	config.ModuleSingleClickIcore: {
		Name:   "single-click combined",
		Stages: []Stage{StagePlan, StageFind, StagePipelineSupervise, StageRetrieve, StageMetadataEmit, StageExport, StageTextDeid},
	},
}

// snapshotInterval is the periodic metadata pull cadence.
const snapshotInterval = 5 * time.Second

// Uploader is the opaque cloud-upload collaborator: the orchestrator calls
// it after export-eligible stages and never inspects what it does.
type Uploader func(outputTree string) error

// TextDeidentifier is the opaque text-redaction collaborator:
// `scrub(text, whitelist, blacklist) → text`.
type TextDeidentifier func(text string, whitelist, blacklist []string) string

// Job holds everything one orchestrator run needs.
type Job struct {
	Cfg          *config.Config
	Supervisor   *pipeline.Supervisor
	NewFindClient  func(finder.PacsConfiguration) finder.FindClient
	NewRetrieveClient func(finder.PacsConfiguration) finder.RetrieveClient
	Puller       *MetadataPuller
	Uploader     Uploader
	TextDeid     TextDeidentifier
	ReturnTags   []string
}

// Result summarizes one job run for the caller (e.g. the CLI layer).
type Result struct {
	RunID             string
	RowsCompleted     int
	StudiesDownloaded int
	FailedQueryRows   []int
}

// Run executes job's stage sequence and returns exit-code-relevant
// results. A failure to start the pipeline daemon or a spreadsheet
// validation error is fatal; individual PACS/retrieval/quarantine
// failures are partial and do not fail the run.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	descriptor, ok := jobDescriptors[j.Cfg.Module]
	if !ok {
		return nil, fmt.Errorf("no job descriptor registered for module %q", j.Cfg.Module)
	}

	sheet, err := spreadsheet.Load(j.Cfg.InputPath, spreadsheet.ColumnHints{
		AccCol: j.Cfg.ColumnHints.AccessionColumn, MRNCol: j.Cfg.ColumnHints.MRNColumn, DateCol: j.Cfg.ColumnHints.DateColumn,
	})
	if err != nil {
		return nil, fmt.Errorf("fatal: load input spreadsheet: %w", err)
	}
	if err := sheet.ValidateModes(); err != nil {
		return nil, fmt.Errorf("fatal: %w", err)
	}

	tracker := progress.LoadProgress(j.Cfg.AppdataDir)
	tracker.SetTotalRows(len(sheet.Rows))

	result := &Result{}
	var plans []queryplan.Plan
	var discovered map[string]finder.Discovery

	for _, stage := range descriptor.Stages {
		switch stage {
		case StagePlan:
			plans, err = queryplan.BuildPlans(sheet, j.Cfg.DateWindow)
			if err != nil {
				return nil, fmt.Errorf("fatal: %w", err)
			}
		case StageFind:
			findResult := finder.Find(ctx, j.Cfg.AppdataDir, j.Cfg.PacsConfigurations(), plans, j.NewFindClient, j.ReturnTags)
			discovered = findResult.StudyPACSMap
			result.FailedQueryRows = append(result.FailedQueryRows, findResult.FailureIndex...)
			for uid, d := range discovered {
				tracker.MarkRowQueried(d.QueryIndex, uid)
			}
		case StagePipelineSupervise:
			if err := j.Supervisor.Start(ctx); err != nil {
				return nil, fmt.Errorf("fatal: start pipeline daemon: %w", err)
			}
			defer func() {
				if err := j.Supervisor.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "orchestrator: pipeline stop: %v\n", err)
				}
			}()
			if j.Cfg.Module == config.ModuleHeaderExtraction {
				watchCtx, stopWatch := context.WithCancel(ctx)
				defer stopWatch()
				go j.watchLocalHeaders(watchCtx)
			}
		case StageRetrieve:
			destAET := j.Cfg.ApplicationAET
			failures := finder.Retrieve(ctx, discovered, finder.RetrieveModeMove, destAET, j.NewRetrieveClient, func(uid string, filesCount int) {
				tracker.MarkStudyDownloaded(uid, filesCount)
			})
			result.FailedQueryRows = append(result.FailedQueryRows, failures...)
		case StageLocalHeaderRead:
			if err := j.readLocalHeaders(); err != nil {
				fmt.Fprintf(os.Stderr, "orchestrator: local header read: %v\n", err)
			}
		case StageMetadataEmit:
			j.runMetadataLoop(ctx)
		case StageExport:
			if j.Uploader != nil {
				if err := j.Uploader(j.Cfg.AppdataDir); err != nil {
					fmt.Fprintf(os.Stderr, "orchestrator: export upload failed: %v\n", err)
				}
			}
		case StageTextDeid:
			if j.TextDeid != nil {
				if err := j.runTextDeid(sheet); err != nil {
					fmt.Fprintf(os.Stderr, "orchestrator: text de-identification: %v\n", err)
				}
			}
			if j.Uploader != nil {
				if err := j.Uploader(j.Cfg.AppdataDir); err != nil {
					fmt.Fprintf(os.Stderr, "orchestrator: export upload failed: %v\n", err)
				}
			}
		}
	}

	if err := tracker.SaveProgress(j.Cfg.AppdataDir); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: save progress: %v\n", err)
	}

	result.RunID = tracker.RunID()
	stats := tracker.GetStats()
	result.RowsCompleted = stats.RowsCompleted
	result.StudiesDownloaded = stats.StudiesDownloaded

	result.FailedQueryRows = dedupSorted(result.FailedQueryRows)
	if len(result.FailedQueryRows) > 0 {
		if err := writeFailedQueries(j.Cfg.AppdataDir, sheet, result.FailedQueryRows); err != nil {
			fmt.Fprintf(os.Stderr, "orchestrator: write failed_queries.csv: %v\n", err)
		}
	}

	return result, nil
}

// readLocalHeaders implements the de-identify-local job's input path:
// unlike every other job type, it never queries a PACS, so the header
// values the Metadata Emitters log come straight off the files already
// sitting in Cfg.InputPath. Extracted values are written to
// local_headers.csv so the audit trail names what each file carried
// before the pipeline daemon de-identified it.
func (j *Job) readLocalHeaders() error {
	var records [][]string
	header := []string{"file", "AccessionNumber", "PatientID", "StudyDate", "StudyInstanceUID"}
	keywords := header[1:]

	walkErr := filepath.WalkDir(j.Cfg.InputPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".dcm" {
			return nil
		}
		tags, err := dicomfile.ReadHeaderTags(path, keywords)
		if err != nil {
			fmt.Fprintf(os.Stderr, "orchestrator: read header %s: %v\n", path, err)
			return nil
		}
		row := []string{path}
		for _, kw := range keywords {
			row = append(row, tags[kw])
		}
		records = append(records, row)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk input path: %w", walkErr)
	}

	f, err := os.Create(filepath.Join(j.Cfg.AppdataDir, "local_headers.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// watchLocalHeaders keeps local_headers.csv current for the duration of the
// pipeline-supervise stage: the de-identify-local module's input tree can
// receive files after readLocalHeaders' initial walk already completed, so
// each newly-dropped file is appended as it lands rather than only at job
// start. Falls back to polling if the input path can't be watched natively
// (e.g. it's an NFS mount fsnotify can't subscribe to).
func (j *Job) watchLocalHeaders(ctx context.Context) {
	keywords := []string{"AccessionNumber", "PatientID", "StudyDate", "StudyInstanceUID"}
	handler := func(path string) {
		if err := j.appendLocalHeaderRow(path, keywords); err != nil {
			fmt.Fprintf(os.Stderr, "orchestrator: watch header read %s: %v\n", path, err)
		}
	}

	w := watch.NewInboxWatcher(j.Cfg.InputPath, handler)
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: inbox watch unavailable (%v), falling back to polling\n", err)
		pw := watch.NewPollWatcher(j.Cfg.InputPath, handler, 0)
		_ = pw.Run(ctx)
	}
}

// appendLocalHeaderRow reads one file's header tags and appends the row to
// the already-created local_headers.csv.
func (j *Job) appendLocalHeaderRow(path string, keywords []string) error {
	tags, err := dicomfile.ReadHeaderTags(path, keywords)
	if err != nil {
		return err
	}
	row := []string{path}
	for _, kw := range keywords {
		row = append(row, tags[kw])
	}

	f, err := os.OpenFile(filepath.Join(j.Cfg.AppdataDir, "local_headers.csv"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// runTextDeid passes every cell of the input spreadsheet through the
// text-redaction collaborator and writes the result to
// text_deidentified.csv, so the single-click combined job's second export
// pass has a redacted spreadsheet to ship alongside the de-identified
// DICOM tree.
func (j *Job) runTextDeid(sheet *spreadsheet.Spreadsheet) error {
	f, err := os.Create(filepath.Join(j.Cfg.AppdataDir, "text_deidentified.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(sheet.Headers); err != nil {
		return err
	}
	for _, row := range sheet.Rows {
		rec := make([]string, len(sheet.Headers))
		for i, h := range sheet.Headers {
			rec[i] = j.TextDeid(row.Values[h], j.Cfg.TextRedaction.Whitelist, j.Cfg.TextRedaction.Blacklist)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// runMetadataLoop runs the periodic metadata snapshot loop: every 5s while
// the pipeline runs, pull audit/linker tables; a final pull is issued
// after is_complete(). Each pull is non-blocking best-effort.
func (j *Job) runMetadataLoop(ctx context.Context) {
	if j.Puller == nil {
		return
	}
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.Puller.PullAuditLogs()
			j.Puller.PullLinker()
			return
		case <-ticker.C:
			j.Puller.PullAuditLogs()
			j.Puller.PullLinker()
			if j.Supervisor.IsComplete() {
				j.Puller.PullAuditLogs()
				j.Puller.PullLinker()
				return
			}
		}
	}
}

func dedupSorted(in []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func writeFailedQueries(appdataDir string, sheet *spreadsheet.Spreadsheet, rowIdx []int) error {
	var rows []spreadsheet.FailedQueryRow
	for _, idx := range rowIdx {
		if idx < 0 || idx >= len(sheet.Rows) {
			continue
		}
		row := sheet.Rows[idx]
		mode := sheet.Mode(row)
		fq := spreadsheet.FailedQueryRow{RowIndex: idx, Mode: mode}
		switch mode {
		case spreadsheet.ModeAccession:
			fq.Accession = sheet.Accession(row)
		case spreadsheet.ModeMRNDate:
			fq.MRN = sheet.MRN(row)
			if d, err := sheet.Date(row); err == nil {
				fq.Date = d.Format("20060102")
			}
		}
		rows = append(rows, fq)
	}
	return spreadsheet.WriteFailedQueries(filepath.Join(appdataDir, "failed_queries.csv"), rows)
}

// EchoPreflight runs an echoscu check against every configured PACS before
// the job's main work begins. Not a stage in jobDescriptors, since it gates
// job start rather than participating in it.
func EchoPreflight(ctx context.Context, bin dicomcli.Binaries, callingAET string, pacsList []finder.PacsConfiguration) error {
	for _, p := range pacsList {
		client := &dicomcli.Client{Bin: bin, Host: p.Host, Port: p.Port, CallingAET: callingAET, CalledAET: p.AET}
		ok, msg := client.EchoPacs(ctx)
		if !ok {
			return fmt.Errorf("echo_pacs failed for %s:%d (%s): %s", p.Host, p.Port, p.AET, msg)
		}
	}
	return nil
}
