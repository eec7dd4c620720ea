package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadCallSites reads the evidence file written by the type-inference analysis
func LoadCallSites(path string) ([]CallSite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}

	return ParseCallSites(data)
}

// ParseCallSites decodes a JSON array of call sites
func ParseCallSites(data []byte) ([]CallSite, error) {
	var sites []CallSite
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("failed to parse evidence: %w", err)
	}

	return sites, nil
}

// LoadAvailableClasses reads the available-class file written by the include resolver
func LoadAvailableClasses(path string) ([]AvailableClassRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read available classes file: %w", err)
	}

	return ParseAvailableClasses(data)
}

// ParseAvailableClasses decodes a JSON array of available-class records
func ParseAvailableClasses(data []byte) ([]AvailableClassRecord, error) {
	var records []AvailableClassRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse available classes: %w", err)
	}

	return records, nil
}

// NormalizeFilenames rewrites record filenames to slash-separated paths
// relative to projectRoot, so they line up with the filenames reported in the
// evidence. Filenames that are already relative, or that live outside the
// project, are left alone.
func NormalizeFilenames(records []AvailableClassRecord, projectRoot string) []AvailableClassRecord {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		absRoot = projectRoot
	}

	normalized := make([]AvailableClassRecord, len(records))
	for i, record := range records {
		normalized[i] = record
		if !filepath.IsAbs(record.Filename) {
			normalized[i].Filename = filepath.ToSlash(record.Filename)
			continue
		}

		rel, err := filepath.Rel(absRoot, record.Filename)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		normalized[i].Filename = filepath.ToSlash(rel)
	}

	return normalized
}
