package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/quackphp/quack/internal/deduce"
	"github.com/quackphp/quack/internal/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testReports() []deduce.SiteReport {
	return []deduce.SiteReport{
		{
			Entry:      evidence.ResultEntry{Filename: "a.php", LineNumber: 3, AllowedTypes: []string{"A"}, AllowedClasses: []string{"A"}},
			Verdict:    deduce.Deduced,
			AllowedAll: []string{"A"},
		},
		{
			Entry:     evidence.NewUndeterminedEntry("a.php", 8),
			Verdict:   deduce.Leaked,
			Err:       deduce.ErrLeak,
			Available: []string{"A", "B"},
		},
		{
			Entry:   evidence.NewUndeterminedEntry("b.php", 2),
			Verdict: deduce.Inconsistent,
			Err:     &deduce.InconsistentEvidenceError{Conflict: []string{"B"}},
		},
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{Total: 3, Deduced: 1, Leaked: 1, Inconsistent: 1}, Summarize(testReports()))
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00.00", Elapsed(0))
	assert.Equal(t, "00:00:01.50", Elapsed(1500*time.Millisecond))
	assert.Equal(t, "01:02:03.25", Elapsed(time.Hour+2*time.Minute+3250*time.Millisecond))
}

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, ResultsFileName)
	require.NoError(t, WriteResults(path, deduce.Entries(testReports()), false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"filename":"a.php","lineNumber":3,"allowedTypes":["A"],"allowedClasses":["A"]},
		{"filename":"a.php","lineNumber":8,"allowedTypes":null,"allowedClasses":null},
		{"filename":"b.php","lineNumber":2,"allowedTypes":null,"allowedClasses":null}
	]`, string(data))

	require.NoError(t, WriteResults(path, nil, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestWriteResults_Pretty(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultsFileName)
	require.NoError(t, WriteResults(path, deduce.Entries(testReports()[:1]), true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n", "pretty output is indented")
}

func TestRuntimeInfo(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	timings := []Timing{
		{Name: "Joern-Parse (graph creation)", Elapsed: 90 * time.Second},
		{Name: "analyze.sc", Elapsed: 2 * time.Second},
	}

	data, err := RuntimeInfo("run-1", started, timings, Summarize(testReports()))
	require.NoError(t, err)

	parsed := gjson.ParseBytes(data)
	assert.Equal(t, "run-1", parsed.Get("run_id").String())
	assert.Equal(t, "2024-05-01T10:00:00Z", parsed.Get("started_at").String())
	assert.Equal(t, "00:01:30.00", parsed.Get(`timings.Joern-Parse (graph creation)`).String())
	assert.Equal(t, "00:00:02.00", parsed.Get(`timings.analyze\.sc`).String())
	assert.Equal(t, int64(3), parsed.Get("sites.total").Int())
	assert.Equal(t, int64(1), parsed.Get("sites.leaked").Int())

	empty, err := RuntimeInfo("run-2", started, nil, Summary{})
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(empty, "timings").IsObject())
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	PrintSummary(&buf, testReports())

	out := buf.String()
	assert.Contains(t, out, "3 call sites consolidated")
	assert.Contains(t, out, "[leak] a.php:8")
	assert.Contains(t, out, "[inconsistent] b.php:2")
	assert.NotContains(t, out, "a.php:3")
}

func TestPrintAudit(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	reports := testReports()

	var buf bytes.Buffer
	PrintAudit(&buf, reports[0])
	assert.Contains(t, buf.String(), "a.php:3 deduced")
	assert.Contains(t, buf.String(), `with toString:  ["A"]`)

	buf.Reset()
	PrintAudit(&buf, reports[1])
	assert.Contains(t, buf.String(), `available:      ["A" "B"]`)

	buf.Reset()
	PrintAudit(&buf, reports[2])
	assert.Contains(t, buf.String(), "inconsistent")
}
