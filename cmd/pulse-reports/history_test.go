package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcourtman/pulse-reports/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCmd_RecordsHistory(t *testing.T) {
	dir, tplPath := setupWorkspace(t)

	_, err := execute(t, "render", "--id", "ok-render", tplPath)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "sessions.json")))
	_, err = execute(t, "render", "--id", "bad-render", tplPath)
	require.Error(t, err)

	store, err := history.Open(context.Background(), history.DefaultConfig(dir))
	require.NoError(t, err)
	defer store.Close()

	records, err := store.List(context.Background(), history.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	bad, ok := records[0], records[1]
	assert.Equal(t, "bad-render", bad.RenderID)
	assert.Equal(t, history.OutcomeError, bad.Outcome)
	assert.Equal(t, "data", bad.ErrorType)
	assert.Contains(t, bad.Error, "sessions")

	assert.Equal(t, "ok-render", ok.RenderID)
	assert.Equal(t, history.OutcomeSuccess, ok.Outcome)
	assert.Equal(t, history.KindPDF, ok.Kind)
	assert.Equal(t, 1, ok.Pages)
	assert.Equal(t, 2, ok.Figures)
	assert.Positive(t, ok.Bytes)
	assert.Equal(t, filepath.Join(dir, "weekly.pdf"), ok.Output)
	assert.Equal(t, tplPath, ok.Template)
}

func TestRenderCmd_NoHistory(t *testing.T) {
	dir, tplPath := setupWorkspace(t)

	_, err := execute(t, "render", "--no-history", tplPath)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "history.db"))
}

func TestRenderCmd_HistoryOff(t *testing.T) {
	dir, tplPath := setupWorkspace(t)
	t.Setenv("PULSE_REPORTS_HISTORY_DB", "off")

	_, err := execute(t, "render", tplPath)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "history.db"))

	_, err = execute(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestHistoryCmd(t *testing.T) {
	dir, tplPath := setupWorkspace(t)

	output, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, output, "No renders recorded")

	_, err = execute(t, "render", "--id", "first", tplPath)
	require.NoError(t, err)
	_, err = execute(t, "render", "--csv", "--id", "second", tplPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "sessions.json")))
	_, err = execute(t, "render", "--id", "third", tplPath)
	require.Error(t, err)

	output, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, output, "RENDER ID")
	assert.Contains(t, output, "first")
	assert.Contains(t, output, "second")
	assert.Contains(t, output, "error (data)")
	assert.Contains(t, output, "csv")

	output, err = execute(t, "history", "--failed")
	require.NoError(t, err)
	assert.Contains(t, output, "third")
	assert.NotContains(t, output, "first")

	output, err = execute(t, "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "third")
	assert.NotContains(t, output, "second")

	output, err = execute(t, "history", "--template", filepath.Join(dir, "other.yaml"))
	require.NoError(t, err)
	assert.Contains(t, output, "No renders recorded")

	output, err = execute(t, "history", "--stats")
	require.NoError(t, err)
	assert.Contains(t, output, "Renders:  3 (1 failed)")

	_, err = execute(t, "history", "--since", "soon")
	assert.Error(t, err)
}

func TestHistoryPruneCmd(t *testing.T) {
	dir, _ := setupWorkspace(t)

	store, err := history.Open(context.Background(), history.Config{DBPath: filepath.Join(dir, "history.db")})
	require.NoError(t, err)
	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		_, err := store.Add(context.Background(), history.Record{
			RenderID:  age.String(),
			Template:  "t.yaml",
			Outcome:   history.OutcomeSuccess,
			StartedAt: time.Now().Add(-age),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	output, err := execute(t, "history", "prune", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, output, "Deleted 2 renders older than 24h0m0s")

	_, err = execute(t, "history", "prune", "--older-than", "0s")
	assert.Error(t, err)
}
