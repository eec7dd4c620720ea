package evidence

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// CondType tags what kind of inference produced an observation
type CondType string

const (
	CondDuck  CondType = "Duck"
	CondExact CondType = "Exact"
)

// Reason tags where an observation came from. Only two reasons change the
// deduction; every other value is passed through untouched.
type Reason string

const (
	// ReasonHasToString marks an object that was only seen being stringified
	ReasonHasToString Reason = "HasToString"
	// ReasonDynamicCall marks an object passed to a call target that cannot be resolved
	ReasonDynamicCall Reason = "DynamicCall"
)

// Observation is one fact about how a deserialized value is used
type Observation struct {
	CondType CondType `json:"condType"`
	Type     string   `json:"type"`
	Reason   Reason   `json:"reason"`
}

// IsTyped reports whether the observation carries type information
func (o Observation) IsTyped() bool {
	return o.CondType == CondDuck || o.CondType == CondExact
}

// CallSite is a single unserialize() call together with the evidence collected for it
type CallSite struct {
	Filename   string        `json:"filename"`
	LineNumber int           `json:"lineNumber"`
	Conditions []Observation `json:"conditions"`
}

func (c CallSite) String() string {
	return fmt.Sprintf("File[%s],Line[%d]", c.Filename, c.LineNumber)
}

// Key identifies a call site within a project
func (c CallSite) Key() string {
	return SiteKey(c.Filename, c.LineNumber)
}

// SiteKey builds the "file:line" key used to address a call site
func SiteKey(filename string, line int) string {
	return fmt.Sprintf("%s:%d", filename, line)
}

// AvailableClassRecord lists the classes reachable from a file at the given lines
type AvailableClassRecord struct {
	Filename     string   `json:"filename"`
	LineNumbers  []int    `json:"line_numbers"`
	AvailClasses []string `json:"avail_classes"`
}

// CoversLine reports whether line is part of the record's resolved lines
func (r AvailableClassRecord) CoversLine(line int) bool {
	return slices.Contains(r.LineNumbers, line)
}

// ResultEntry is the published outcome for one call site. A nil slice means
// the value could not be determined; an empty slice means it is known to be empty.
type ResultEntry struct {
	Filename       string   `json:"filename" msgpack:"filename"`
	LineNumber     int      `json:"lineNumber" msgpack:"lineNumber"`
	AllowedTypes   []string `json:"allowedTypes" msgpack:"allowedTypes"`
	AllowedClasses []string `json:"allowedClasses" msgpack:"allowedClasses"`
}

// NewUndeterminedEntry returns an entry with both result fields unset
func NewUndeterminedEntry(filename string, line int) ResultEntry {
	return ResultEntry{Filename: filename, LineNumber: line}
}

// Determined reports whether the entry carries a deduction
func (e ResultEntry) Determined() bool {
	return e.AllowedTypes != nil && e.AllowedClasses != nil
}

// Key identifies the call site the entry belongs to
func (e ResultEntry) Key() string {
	return SiteKey(e.Filename, e.LineNumber)
}

// CompareEntries orders entries by filename, then line number
func CompareEntries(a, b ResultEntry) int {
	if c := strings.Compare(a.Filename, b.Filename); c != 0 {
		return c
	}
	return cmp.Compare(a.LineNumber, b.LineNumber)
}

// SortEntries orders entries by filename, then line number
func SortEntries(entries []ResultEntry) {
	slices.SortStableFunc(entries, CompareEntries)
}
