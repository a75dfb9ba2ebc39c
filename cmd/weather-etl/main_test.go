package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// Only one test may build an app: metrics register with the default registry.
func TestImportWritesCSV(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CSV_PATH", filepath.Join(dir, "weather.csv"))
	t.Setenv("FILTER_STATE_DIR", filepath.Join(dir, "state"))
	t.Setenv("LOG_LEVEL", "error")

	fixture := filepath.Join("..", "..", "internal", "adapter", "openmeteo", "testdata", "forecast_unixtime.json")
	out, err := execute(t, "import", "--file", fixture, "--sink", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "2 daily summaries")

	data, err := os.ReadFile(filepath.Join(dir, "weather.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)
	assert.FileExists(t, filepath.Join(dir, "state", "csv.bloom"))
}

func TestUnknownSinkFlag(t *testing.T) {
	_, err := execute(t, "import", "--file", "x.json", "--sink", "parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown sink "parquet"`)
}

func TestPostgresSinkNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PROPERTIES_FILE", "")
	_, err := execute(t, "import", "--file", "x.json", "--sink", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestRunRejectsInvalidCoordinates(t *testing.T) {
	_, err := execute(t, "run", "--lat", "95", "--lon", "0", "--sink", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Latitude")
}

func TestRunRejectsBadDate(t *testing.T) {
	_, err := execute(t, "run", "--lat", "52.5", "--lon", "13.4", "--start-date", "15/07/2025", "--sink", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start-date")
}
