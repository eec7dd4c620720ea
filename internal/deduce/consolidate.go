package deduce

import (
	"log"

	"github.com/quackphp/quack/internal/evidence"
	"golang.org/x/sync/errgroup"
)

// SiteReport is the consolidated outcome for one call site, including the
// diagnostics that are not published in the result entry
type SiteReport struct {
	Entry   evidence.ResultEntry
	Verdict Verdict
	// AllowedAll is kept for audit, see Deduction.AllowedAll
	AllowedAll []string
	// Available is the available-class set the site was reduced against
	Available []string
	Err       error
}

// Consolidator reduces every call site of a project against its available classes
type Consolidator struct {
	workers int
}

// NewConsolidator creates a consolidator running up to workers reductions at once
func NewConsolidator(workers int) *Consolidator {
	if workers < 1 {
		workers = 1
	}
	return &Consolidator{workers: workers}
}

// Consolidate produces one result entry per call site, in input order.
// Only structural violations are returned as an error; failures of a single
// site leave its entry undetermined.
func Consolidate(sites []evidence.CallSite, records []evidence.AvailableClassRecord) ([]evidence.ResultEntry, error) {
	reports, err := NewConsolidator(1).Run(sites, records)
	if err != nil {
		return nil, err
	}
	return Entries(reports), nil
}

// Run validates every site against the available-class records and then
// reduces them. The returned reports follow the order of sites.
func (c *Consolidator) Run(sites []evidence.CallSite, records []evidence.AvailableClassRecord) ([]SiteReport, error) {
	byFile := make(map[string][]int, len(records))
	for i, record := range records {
		byFile[record.Filename] = append(byFile[record.Filename], i)
	}

	available := make([][]string, len(sites))
	for i, site := range sites {
		record, err := lookupRecord(site, records, byFile)
		if err != nil {
			return nil, err
		}
		available[i] = record.AvailClasses
	}

	reports := make([]SiteReport, len(sites))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i := range sites {
		g.Go(func() error {
			reports[i] = reduceSite(sites[i], available[i])
			return nil
		})
	}
	_ = g.Wait()

	return reports, nil
}

func lookupRecord(site evidence.CallSite, records []evidence.AvailableClassRecord, byFile map[string][]int) (evidence.AvailableClassRecord, error) {
	matches := byFile[site.Filename]
	switch {
	case len(matches) == 0:
		return evidence.AvailableClassRecord{}, &PreconditionError{Filename: site.Filename, LineNumber: site.LineNumber, Err: ErrNoAvailableClasses}
	case len(matches) > 1:
		return evidence.AvailableClassRecord{}, &PreconditionError{Filename: site.Filename, LineNumber: site.LineNumber, Err: ErrDuplicateAvailableClasses}
	}

	record := records[matches[0]]
	if !record.CoversLine(site.LineNumber) {
		return evidence.AvailableClassRecord{}, &PreconditionError{Filename: site.Filename, LineNumber: site.LineNumber, Err: ErrLineNotCovered}
	}

	return record, nil
}

func reduceSite(site evidence.CallSite, available []string) SiteReport {
	log.Printf("Working on: %s", site)

	report := SiteReport{
		Entry:     evidence.NewUndeterminedEntry(site.Filename, site.LineNumber),
		Available: available,
	}

	deduction := Reduce(available, site.Conditions)
	report.Verdict = deduction.Verdict
	report.Err = deduction.Err()

	switch deduction.Verdict {
	case Deduced:
		log.Printf("%s: all types collected from evidence: %v, allowed classes: %v", site, deduction.AllTypes, deduction.AllowedStrict)
		report.Entry.AllowedTypes = deduction.AllTypes
		report.Entry.AllowedClasses = deduction.AllowedStrict
		report.AllowedAll = deduction.AllowedAll
	case Leaked:
		log.Printf("Project analysis for [%s]:[%d] resulted in a leak, it has to be resolved by the leak policy", site.Filename, site.LineNumber)
	default:
		log.Printf("%s: %v", site, report.Err)
	}

	return report
}

// Entries extracts the published result entries from reports
func Entries(reports []SiteReport) []evidence.ResultEntry {
	entries := make([]evidence.ResultEntry, len(reports))
	for i, report := range reports {
		entries[i] = report.Entry
	}
	return entries
}
