package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/piwi3910/StowPlan/internal/model"
	"github.com/piwi3910/StowPlan/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) model.AppConfig {
	t.Helper()
	cfg := model.DefaultAppConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "stowplan.db")
	return cfg
}

func writeRequest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "request.json")
	req := model.PlacementRequest{
		Items: []model.Item{
			{ID: "I1", Name: "Water", Width: 10, Depth: 10, Height: 10, Priority: 90, PreferredZone: model.StringPtr("Galley")},
			{ID: "I2", Name: "Tools", Width: 20, Depth: 10, Height: 5, Priority: 40},
		},
		Containers: []model.Container{
			{ID: "C1", Zone: "Galley", Width: 50, Depth: 50, Height: 50},
		},
	}
	require.NoError(t, project.SaveRequest(path, req))
	return path
}

func TestRun_PlaceThenExport(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequest(t, dir)
	outPath := filepath.Join(dir, "result.json")
	var stdout bytes.Buffer

	require.NoError(t, run(testConfig(t), "place", []string{"-in", reqPath, "-out", outPath, "-archive", dir}, &stdout))
	assert.Contains(t, stdout.String(), "Placed 2 items")

	result, err := project.LoadOutput(outPath)
	require.NoError(t, err)
	assert.True(t, result.Success)

	archives, err := filepath.Glob(filepath.Join(dir, "job-*.json"))
	require.NoError(t, err)
	assert.Len(t, archives, 1)

	for _, format := range []string{"pdf", "labels", "xlsx", "dxf"} {
		stdout.Reset()
		require.NoError(t, run(testConfig(t), "export", []string{"-in", outPath, "-request", reqPath, "-format", format}, &stdout), format)

		written := strings.TrimSpace(strings.TrimPrefix(stdout.String(), "Wrote "))
		info, err := os.Stat(written)
		require.NoError(t, err, format)
		assert.NotZero(t, info.Size(), format)
	}
}

func TestRun_PlaceToStdout(t *testing.T) {
	reqPath := writeRequest(t, t.TempDir())
	var stdout bytes.Buffer

	require.NoError(t, run(testConfig(t), "place", []string{"-in", reqPath}, &stdout))
	assert.Contains(t, stdout.String(), `"success": true`)
}

func TestRun_Compare(t *testing.T) {
	reqPath := writeRequest(t, t.TempDir())
	var stdout bytes.Buffer

	require.NoError(t, run(testConfig(t), "compare", []string{"-in", reqPath}, &stdout))
	assert.Contains(t, stdout.String(), "Current Settings")
	assert.Contains(t, stdout.String(), "No Rearrangement")
}

func TestRun_QueueRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	reqPath := writeRequest(t, t.TempDir())
	var stdout bytes.Buffer

	require.NoError(t, run(cfg, "migrate", nil, &stdout))
	assert.Contains(t, stdout.String(), "version 1")

	stdout.Reset()
	require.NoError(t, run(cfg, "enqueue", []string{"-in", reqPath}, &stdout))
	jobID := strings.TrimSpace(stdout.String())
	require.NotEmpty(t, jobID)

	require.NoError(t, run(cfg, "worker", []string{"-once"}, &stdout))

	stdout.Reset()
	require.NoError(t, run(cfg, "status", []string{"-job", jobID}, &stdout))
	assert.Contains(t, stdout.String(), "COMPLETED")
	assert.Contains(t, stdout.String(), `"itemId": "I1"`)
}

func TestRun_Import(t *testing.T) {
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "manifest.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Items"))
	require.NoError(t, f.SetSheetRow("Items", "A1", &[]interface{}{"itemId", "name", "width", "depth", "height"}))
	require.NoError(t, f.SetSheetRow("Items", "A2", &[]interface{}{"N1", "Spares", 5, 5, 5}))
	require.NoError(t, f.SaveAs(xlsxPath))
	require.NoError(t, f.Close())

	reqPath := writeRequest(t, dir)
	var stdout bytes.Buffer
	require.NoError(t, run(testConfig(t), "import", []string{"-in", xlsxPath, "-out", reqPath}, &stdout))

	req, err := project.LoadRequest(reqPath)
	require.NoError(t, err)
	assert.Len(t, req.Items, 3, "imported item merged into existing request")
	assert.Len(t, req.Containers, 1)
}

func TestRun_Config(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(testConfig(t), "config", nil, &stdout))
	assert.Contains(t, stdout.String(), "grid_divisions: 25")
}

func TestRun_Errors(t *testing.T) {
	cfg := testConfig(t)
	var stdout bytes.Buffer

	assert.Error(t, run(cfg, "bogus", nil, &stdout))
	assert.Error(t, run(cfg, "place", nil, &stdout))
	assert.Error(t, run(cfg, "export", []string{"-in", "missing.json"}, &stdout))
	assert.Error(t, run(cfg, "worker", []string{"-workers", "0"}, &stdout))
}

func TestExportPath(t *testing.T) {
	assert.Equal(t, "out/result.pdf", exportPath("out/result.json", "pdf"))
	assert.Equal(t, "out/result-labels.pdf", exportPath("out/result.json", "labels"))
}
