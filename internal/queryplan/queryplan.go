// Package queryplan converts a spreadsheet row into DICOM query parameters
// and the equivalent row-derived filter expression, built on the filter
// grammar in internal/filter and the row classification in
// internal/spreadsheet.
package queryplan

import (
	"fmt"
	"time"

	"github.com/ppiankov/icore/internal/filter"
	"github.com/ppiankov/icore/internal/spreadsheet"
)

const dateLayout = "20060102"

// MaxDateWindowDays is the upper bound on date_window_days; violations
// raise before querying.
const MaxDateWindowDays = 10

// QueryParams is an unordered set of (DICOM-tag-name, value) pairs.
type QueryParams map[string]string

// Plan is the per-row output of the planner: the query parameters to send
// to find_studies, and the row-derived filter expression to fold into the
// pipeline's filter.
type Plan struct {
	RowIndex int
	Mode     spreadsheet.Mode
	Params   QueryParams
	Filter   filter.Expr
}

// ValidateDateWindow enforces the [0,10] bound.
func ValidateDateWindow(days int) error {
	if days < 0 || days > MaxDateWindowDays {
		return fmt.Errorf("date_window_days must be in [0, %d], got %d", MaxDateWindowDays, days)
	}
	return nil
}

// BuildPlans builds one Plan per row of sheet. It checks dateWindowDays
// with ValidateDateWindow first, and returns an error for any row whose
// mode is invalid (callers are expected to have already called
// sheet.ValidateModes()).
func BuildPlans(sheet *spreadsheet.Spreadsheet, dateWindowDays int) ([]Plan, error) {
	if err := ValidateDateWindow(dateWindowDays); err != nil {
		return nil, err
	}

	plans := make([]Plan, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		switch sheet.Mode(row) {
		case spreadsheet.ModeAccession:
			acc := sheet.Accession(row)
			plans = append(plans, Plan{
				RowIndex: row.Index,
				Mode:     spreadsheet.ModeAccession,
				Params:   QueryParams{"AccessionNumber": acc},
				Filter:   &filter.Comparison{Item: "AccessionNumber", Method: filter.MethodContains, Value: acc},
			})
		case spreadsheet.ModeMRNDate:
			mrn := sheet.MRN(row)
			date, err := sheet.Date(row)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", row.Index, err)
			}
			plans = append(plans, mrnDatePlan(row.Index, mrn, date, dateWindowDays))
		default:
			return nil, fmt.Errorf("row %d: neither accession nor MRN+date mode is satisfiable", row.Index)
		}
	}
	return plans, nil
}

// mrnDatePlan builds the MRN+date mode query: the DICOM query uses an
// exact StudyDate range (start = date-W, end = date+W), while the
// equivalent row-derived filter inflates the comparison bounds by one day
// on each side (strict isGreaterThan/isLessThan against the day just
// outside the window). This asymmetry between the query and its filter
// expression is deliberate, not a bug.
func mrnDatePlan(rowIndex int, mrn string, date time.Time, windowDays int) Plan {
	window := time.Duration(windowDays) * 24 * time.Hour
	start := date.Add(-window)
	end := date.Add(window)

	boundBefore := start.Add(-24 * time.Hour).Format(dateLayout)
	boundAfter := end.Add(24 * time.Hour).Format(dateLayout)

	params := QueryParams{
		"PatientID": mrn,
		"StudyDate": fmt.Sprintf("%s-%s", start.Format(dateLayout), end.Format(dateLayout)),
	}

	f := &filter.And{Terms: []filter.Expr{
		&filter.Comparison{Item: "PatientID", Method: filter.MethodContains, Value: mrn},
		&filter.Comparison{Item: "StudyDate", Method: filter.MethodIsGreaterThan, Value: boundBefore},
		&filter.Comparison{Item: "StudyDate", Method: filter.MethodIsLessThan, Value: boundAfter},
	}}

	return Plan{RowIndex: rowIndex, Mode: spreadsheet.ModeMRNDate, Params: params, Filter: f}
}

// CombinedFilter ORs every row-derived filter together.
func CombinedFilter(plans []Plan) filter.Expr {
	exprs := make([]filter.Expr, 0, len(plans))
	for _, p := range plans {
		exprs = append(exprs, p.Filter)
	}
	return filter.OrAll(exprs)
}
