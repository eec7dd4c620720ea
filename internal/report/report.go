package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

const (
	ResultsFileName     = "results.json"
	RuntimeInfoFileName = "runtime_info.json"
	FixedAvailFileName  = "availclass_fixed.json"
)

// Summary counts the verdicts of a consolidated batch
type Summary struct {
	Total        int `json:"total"`
	Deduced      int `json:"deduced"`
	Leaked       int `json:"leaked"`
	Inconsistent int `json:"inconsistent"`
}

// Summarize counts the verdicts in reports
func Summarize(reports []deduce.SiteReport) Summary {
	summary := Summary{Total: len(reports)}
	for _, report := range reports {
		switch report.Verdict {
		case deduce.Deduced:
			summary.Deduced++
		case deduce.Leaked:
			summary.Leaked++
		case deduce.Inconsistent:
			summary.Inconsistent++
		}
	}
	return summary
}

// WriteJSON marshals v to path, pretty printed when requested
func WriteJSON(path string, v any, indent bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if indent {
		data = pretty.Pretty(data)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteResults writes the final artifact. An empty batch is written as [].
func WriteResults(path string, entries []evidence.ResultEntry, indent bool) error {
	if entries == nil {
		entries = []evidence.ResultEntry{}
	}
	return WriteJSON(path, entries, indent)
}

// Timing is the elapsed time of one named step
type Timing struct {
	Name    string
	Elapsed time.Duration
}

// RuntimeInfo renders runtime_info.json: the run id, the elapsed time of
// every step keyed by step name, and the verdict counts
func RuntimeInfo(runID string, started time.Time, timings []Timing, summary Summary) ([]byte, error) {
	info := []byte(`{}`)

	var err error
	if info, err = sjson.SetBytes(info, "run_id", runID); err != nil {
		return nil, err
	}
	if info, err = sjson.SetBytes(info, "started_at", started.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	// keep the object even when no step ran
	if info, err = sjson.SetRawBytes(info, "timings", []byte(`{}`)); err != nil {
		return nil, err
	}
	for _, timing := range timings {
		info, err = sjson.SetBytes(info, "timings."+escapePath(timing.Name), Elapsed(timing.Elapsed))
		if err != nil {
			return nil, fmt.Errorf("failed to set timing %s: %w", timing.Name, err)
		}
	}
	if info, err = sjson.SetBytes(info, "sites", summary); err != nil {
		return nil, err
	}

	return pretty.Pretty(info), nil
}

// WriteRuntimeInfo writes RuntimeInfo to path
func WriteRuntimeInfo(path, runID string, started time.Time, timings []Timing, summary Summary) error {
	data, err := RuntimeInfo(runID, started, timings, summary)
	if err != nil {
		return fmt.Errorf("failed to build runtime info: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Elapsed formats d as HH:MM:SS.ss
func Elapsed(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%02d:%02d:%05.2f", hours, minutes, seconds)
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, ":", `\:`)

// escapePath escapes the characters sjson treats as path syntax
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
