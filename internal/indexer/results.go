package indexer

import (
	"fmt"
	"log"
	"path/filepath"
	"slices"

	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
)

const resultsDBName = "results.db"

// SiteRecord is what the result index keeps per call site: the published
// entry plus the diagnostics of the run that produced it
type SiteRecord struct {
	Entry      evidence.ResultEntry `msgpack:"entry" json:"entry"`
	Verdict    string               `msgpack:"verdict" json:"verdict"`
	AllowedAll []string             `msgpack:"allowedAll" json:"allowedAll"`
	Error      string               `msgpack:"error,omitempty" json:"error,omitempty"`
	RunID      string               `msgpack:"runId" json:"runId"`
}

// ResultIndex persists consolidated call sites so that results of earlier
// runs can be queried per file
type ResultIndex struct {
	data *DataIndexer[SiteRecord]
}

// NewResultIndex opens the result index inside cacheDir, wiping the
// directory first if it was written with another IndexVersion
func NewResultIndex(cacheDir string) (*ResultIndex, error) {
	cleared, err := CheckAndMigrateCache(cacheDir)
	if err != nil {
		return nil, err
	}
	if cleared {
		log.Printf("Result index in %s was reset to version %d", cacheDir, IndexVersion)
	}

	data, err := NewDataIndexer[SiteRecord](filepath.Join(cacheDir, resultsDBName))
	if err != nil {
		return nil, fmt.Errorf("failed to open result index: %w", err)
	}

	return &ResultIndex{data: data}, nil
}

// Store replaces the content of the index with one run. entries are the
// published entries of reports, index for index; sites of files that the run
// no longer reports are dropped.
func (r *ResultIndex) Store(runID string, reports []deduce.SiteReport, entries []evidence.ResultEntry) error {
	if len(reports) != len(entries) {
		return fmt.Errorf("got %d reports but %d entries", len(reports), len(entries))
	}

	items := make(map[string]map[string]SiteRecord)
	for i, report := range reports {
		record := SiteRecord{
			Entry:      entries[i],
			Verdict:    report.Verdict.String(),
			AllowedAll: report.AllowedAll,
			RunID:      runID,
		}
		if report.Err != nil {
			record.Error = report.Err.Error()
		}

		filename := record.Entry.Filename
		if items[filename] == nil {
			items[filename] = make(map[string]SiteRecord)
		}
		items[filename][record.Entry.Key()] = record
	}

	return r.data.ReplaceAllItems(items)
}

// Site returns the stored record of a single call site, or nil if there is none
func (r *ResultIndex) Site(filename string, line int) (*SiteRecord, error) {
	records, err := r.data.GetValues(evidence.SiteKey(filename, line))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// SitesForFile returns the stored records of filename ordered by line
func (r *ResultIndex) SitesForFile(filename string) ([]SiteRecord, error) {
	records, err := r.data.GetValuesByPath(filename)
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// AllSites returns every stored record ordered by filename and line
func (r *ResultIndex) AllSites() ([]SiteRecord, error) {
	records, err := r.data.GetAllValues()
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// Files returns the files with stored results
func (r *ResultIndex) Files() ([]string, error) {
	return r.data.GetAllFilePaths()
}

// Forget drops all stored sites of the given files
func (r *ResultIndex) Forget(filenames []string) error {
	return r.data.BatchDeleteByFilePaths(filenames)
}

func (r *ResultIndex) Clear() error {
	return r.data.Clear()
}

func (r *ResultIndex) Close() error {
	return r.data.Close()
}

func sortRecords(records []SiteRecord) {
	slices.SortStableFunc(records, func(a, b SiteRecord) int {
		return evidence.CompareEntries(a.Entry, b.Entry)
	})
}
