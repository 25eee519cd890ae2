package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplate = `title: Weekly usage
grid: {rows: 1, cols: 2}
layouts:
  - data: sessions
    figures:
      - type: table
        title: By OS
        aggregation: [{name: by_os}]
        params: {total: true}
      - type: md
        data: "Generated from **sessions**."
`

const testResponse = `{"hits": {"total": {"value": 30}},
 "aggregations": {"by_os": {"buckets": [{"key": "linux", "doc_count": 20}, {"key": "windows", "doc_count": 10}]}}}`

// setupWorkspace writes a template and its data into a temp dir and points
// the configuration at it.
func setupWorkspace(t *testing.T) (dir, tplPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("PULSE_REPORTS_DATA_DIR", dir)
	t.Setenv("PULSE_REPORTS_LOG_LEVEL", "error")
	t.Setenv("PULSE_REPORTS_METRICS_ADDR", "")

	tplPath = filepath.Join(dir, "weekly.yaml")
	require.NoError(t, os.WriteFile(tplPath, []byte(testTemplate), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte(testResponse), 0o600))
	return dir, tplPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	defer func() {
		Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2024-01-01"
	GitCommit = "abcdef"
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "Pulse Reports 1.2.3")
	assert.Contains(t, output, "Built: 2024-01-01")
	assert.Contains(t, output, "Commit: abcdef")

	BuildTime = "unknown"
	GitCommit = "unknown"
	output, err = execute(t, "version")
	require.NoError(t, err)
	assert.NotContains(t, output, "Built:")
	assert.NotContains(t, output, "Commit:")
}

func TestRenderCmd_WritesPDF(t *testing.T) {
	dir, tplPath := setupWorkspace(t)

	_, err := execute(t, "render", tplPath)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "weekly.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), e.Name())
	}
}

func TestRenderCmd_ExportCSV(t *testing.T) {
	dir, tplPath := setupWorkspace(t)
	out := filepath.Join(dir, "exports", "weekly.csv")

	_, err := execute(t, "render", "--csv", "--out", out, tplPath)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, records, []string{"linux", "20"})
	assert.Contains(t, records, []string{"windows", "10"})
}

func TestRenderCmd_DataErrorLeavesNoOutput(t *testing.T) {
	dir, tplPath := setupWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "sessions.json")))

	_, err := execute(t, "render", tplPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly.yaml")

	_, statErr := os.Stat(filepath.Join(dir, "weekly.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenderCmd_BatchRequiresFileOutput(t *testing.T) {
	_, tplPath := setupWorkspace(t)

	_, err := execute(t, "render", "--out", "-", tplPath, tplPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single template")
}

func TestRenderCmd_Batch(t *testing.T) {
	dir, tplPath := setupWorkspace(t)
	second := filepath.Join(dir, "copy.yaml")
	require.NoError(t, os.WriteFile(second, []byte(testTemplate), 0o600))
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "render", "--out", outDir, tplPath, second)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "weekly.pdf"))
	assert.FileExists(t, filepath.Join(outDir, "copy.pdf"))
}

func TestValidateCmd(t *testing.T) {
	dir, tplPath := setupWorkspace(t)
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"grid": {"rows": 1, "cols": 1}, "layouts": [{"figures": [{"type": "sankey"}]}]}`), 0o600))

	output, err := execute(t, "validate", tplPath)
	require.NoError(t, err)
	assert.Contains(t, output, "OK   "+tplPath+" (1 layouts, 2 figures, grid 1x2)")

	output, err = execute(t, "validate", tplPath, bad)
	require.Error(t, err)
	assert.Contains(t, output, "FAIL "+bad)
	assert.Contains(t, err.Error(), "1 of 2 templates invalid")
}

func TestValidateCmd_DefaultGrid(t *testing.T) {
	dir, _ := setupWorkspace(t)
	t.Setenv("PULSE_REPORTS_GRID", "3x1")
	path := filepath.Join(dir, "nogrid.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[layouts]]
[[layouts.figures]]
type = "md"
data = "hello"
`), 0o600))

	output, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, output, "grid 3x1")
}

func TestConfigShowCmd(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("PULSE_REPORTS_PAGE_SIZE", "letter")

	output, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "pageSize: Letter")
	assert.Contains(t, output, "- PAGE_SIZE")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("reports", "weekly.pdf"), outputPath(filepath.Join("reports", "weekly.yaml"), "", ".pdf", false))
	assert.Equal(t, "custom.pdf", outputPath("weekly.yaml", "custom.pdf", ".pdf", false))
	assert.Equal(t, filepath.Join("out", "weekly.csv"), outputPath("weekly.yaml", "out", ".csv", true))
	assert.Equal(t, "-", outputPath("weekly.yaml", "-", ".pdf", false))
}
