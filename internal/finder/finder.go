// Package finder implements the Multi-PACS Finder: it queries every
// configured PACS in declaration order and keeps the first-discovered
// (PACS, query-index) assignment per study UID.
package finder

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/icore/internal/dicomcli"
	"github.com/ppiankov/icore/internal/queryplan"
)

// PacsConfiguration is the immutable (host, port, aet) of one PACS.
type PacsConfiguration struct {
	Host string
	Port int
	AET  string
}

// Discovery is the (pacs, query_index) first-discovery assignment for one
// study UID.
type Discovery struct {
	PACS       PacsConfiguration
	QueryIndex int
}

// Result is the output of a Find pass: the study_uid→(pacs, query_index)
// map and the accumulated failure index.
type Result struct {
	StudyPACSMap map[string]Discovery
	FailureIndex []int
}

// ClientFactory builds a dicomcli.Client bound to one PACS. Injected so
// tests can substitute a fake client without spawning subprocesses.
type ClientFactory func(pacs PacsConfiguration) FindClient

// FindClient is the subset of *dicomcli.Client this package depends on,
// gated behind an interface so a future native DICOM stack can be
// substituted without touching the orchestrator.
type FindClient interface {
	FindStudies(ctx context.Context, scratchDir string, queryParams map[string]string, returnTags []string) ([]map[string]string, error)
}

// Find iterates every PACS in declaration order; for each PACS, every plan
// in declaration order; merges first-discovered-wins; a query returning
// zero results logs a warning and is not a failure by itself; queries that
// exhaust retries add their query index to the failure index. After every
// PACS has been queried, each plan whose row was discovered on no PACS is
// added to the failure index as well.
func Find(ctx context.Context, scratchDir string, pacsList []PacsConfiguration, plans []queryplan.Plan, newClient ClientFactory, returnTags []string) Result {
	res := Result{StudyPACSMap: make(map[string]Discovery)}
	failureSeen := make(map[int]bool)

	for _, pacs := range pacsList {
		client := newClient(pacs)
		for _, plan := range plans {
			studies, err := client.FindStudies(ctx, scratchDir, plan.Params, returnTags)
			if err != nil {
				if !failureSeen[plan.RowIndex] {
					failureSeen[plan.RowIndex] = true
					res.FailureIndex = append(res.FailureIndex, plan.RowIndex)
				}
				continue
			}
			if len(studies) == 0 {
				fmt.Fprintf(os.Stderr, "finder: warning: query index %d returned zero results from %s:%d\n", plan.RowIndex, pacs.Host, pacs.Port)
				continue
			}
			for _, study := range studies {
				uid := study["StudyInstanceUID"]
				if uid == "" {
					continue
				}
				if _, exists := res.StudyPACSMap[uid]; exists {
					continue // first-discovered wins
				}
				res.StudyPACSMap[uid] = Discovery{PACS: pacs, QueryIndex: plan.RowIndex}
			}
		}
	}

	discoveredRows := make(map[int]bool, len(res.StudyPACSMap))
	for _, d := range res.StudyPACSMap {
		discoveredRows[d.QueryIndex] = true
	}
	for _, plan := range plans {
		if !discoveredRows[plan.RowIndex] && !failureSeen[plan.RowIndex] {
			failureSeen[plan.RowIndex] = true
			res.FailureIndex = append(res.FailureIndex, plan.RowIndex)
		}
	}
	return res
}

// RetrieveClient is the subset of *dicomcli.Client used by the retrieval
// step, behind the same subprocess-substitution seam as FindClient.
type RetrieveClient interface {
	MoveStudy(ctx context.Context, destinationAET, studyUID string) (dicomcli.RetrieveResult, error)
	GetStudy(ctx context.Context, studyUID string) (dicomcli.RetrieveResult, error)
}

// RetrieveMode selects between C-MOVE (push to a destination AET) and
// C-GET (caller-initiated pull).
type RetrieveMode int

const (
	RetrieveModeMove RetrieveMode = iota
	RetrieveModeGet
)

// Retrieve iterates the discovered-study map and calls MoveStudy or
// GetStudy per UID. Failing retrievals add their originating query index
// to the failure index (duplicates collapsed).
func Retrieve(ctx context.Context, discoveries map[string]Discovery, mode RetrieveMode, destinationAET string, newClient func(PacsConfiguration) RetrieveClient, onDownloaded func(uid string, filesCount int)) []int {
	failureSeen := make(map[int]bool)
	var failureIndex []int

	for uid, d := range discoveries {
		client := newClient(d.PACS)
		var result dicomcli.RetrieveResult
		var err error
		switch mode {
		case RetrieveModeMove:
			result, err = client.MoveStudy(ctx, destinationAET, uid)
		default:
			result, err = client.GetStudy(ctx, uid)
		}

		if err != nil || !result.Success {
			if !failureSeen[d.QueryIndex] {
				failureSeen[d.QueryIndex] = true
				failureIndex = append(failureIndex, d.QueryIndex)
			}
			continue
		}
		if onDownloaded != nil {
			onDownloaded(uid, result.NumCompleted)
		}
	}
	return failureIndex
}
