package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/meterz"
)

// writeLog drives a small instrumented execution and writes its log to dir.
func writeLog(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	budget := meterz.NewBudget(200_000)
	budget.SetQueryCost(100)
	sink := meterz.NewWriterSink(f, 0)
	meter := meterz.New(budget, sink)

	_ = meter.Measure("transfer", func() error {
		_ = meter.Measure("load accounts", func() error {
			return budget.Consume(1200)
		})
		meterz.Logf(sink, "Program log: moving funds")
		return budget.Consume(300)
	})
	require.NoError(t, sink.Err())
	return path
}

func writeCalibrationLog(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "calibrate.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	budget := meterz.NewBudget(1_000_000)
	budget.SetQueryCost(100)
	_, err = meterz.Calibrate(meterz.New(budget, meterz.NewWriterSink(f, 0)), 8)
	require.NoError(t, err)
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestRun_Usage(t *testing.T) {
	_, stderr, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Commands:")
}

func TestRun_UnknownCommand(t *testing.T) {
	_, _, err := execute(t, "explode")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_Version(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}

func TestRun_ReportTable(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "tx.log")

	stdout, _, err := execute(t, "report", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "SITE")
	assert.Contains(t, stdout, "transfer/load accounts")
	assert.Contains(t, stdout, "tx.log")
}

func TestRun_ReportJSON(t *testing.T) {
	dir := t.TempDir()
	a := writeLog(t, dir, "a.log")
	b := writeLog(t, dir, "b.log")

	stdout, _, err := execute(t, "report", "-format", "json", "-overhead", "100", a, b)
	require.NoError(t, err)

	var decoded struct {
		Traces   int    `json:"traces"`
		Overhead uint64 `json:"overhead"`
		Sites    []meterz.Site
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	assert.Equal(t, 2, decoded.Traces)
	assert.Equal(t, uint64(100), decoded.Overhead)

	load, ok := findSite(decoded.Sites, "load accounts")
	require.True(t, ok)
	assert.Equal(t, 2, load.Count)
	// 1200 of work plus the 100-unit counter read, less the overhead.
	assert.Equal(t, uint64(1200), load.MinNet)
}

func TestRun_ReportPartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "good.log")
	bad := filepath.Join(dir, "bad.log")
	require.NoError(t, os.WriteFile(bad, []byte("x {\nProgram consumption: 10 units remaining\n"), 0o600))

	stdout, stderr, err := execute(t, "report", good, bad)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "transfer", "report still printed for the good file")
	assert.Contains(t, stderr, "reconstruction failed")
	assert.Contains(t, stderr, "bad.log")
}

func TestRun_ReportAllFailed(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.log")
	require.NoError(t, os.WriteFile(bad, []byte("Program consumption: 10 units remaining\nx }\n"), 0o600))

	_, _, err := execute(t, "report", bad)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestRun_ReportRequiresFiles(t *testing.T) {
	_, _, err := execute(t, "report")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_ReportBadFormat(t *testing.T) {
	path := writeLog(t, t.TempDir(), "tx.log")
	_, _, err := execute(t, "report", "-format", "xml", path)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_Calibrate(t *testing.T) {
	path := writeCalibrationLog(t, t.TempDir())

	stdout, _, err := execute(t, "calibrate", path)
	require.NoError(t, err)
	assert.Equal(t, "100\n", stdout)
}

func TestRun_CalibrateWrongLabel(t *testing.T) {
	path := writeCalibrationLog(t, t.TempDir())

	_, _, err := execute(t, "calibrate", "-label", "nothing", path)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "nothing")
}

func TestRun_IngestAndSites(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "costs.db")
	a := writeLog(t, dir, "a.log")
	b := writeLog(t, dir, "b.log")

	stdout, _, err := execute(t, "ingest", "-db", db, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log", "b.log"}, strings.Fields(stdout))

	stdout, _, err = execute(t, "sites", "-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "load accounts")
	assert.Contains(t, stdout, "2,600")
}

func TestRun_IngestSameBaseName(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "costs.db")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0o755))
	first := writeLog(t, filepath.Join(dir, "a"), "run.log")
	second := writeLog(t, filepath.Join(dir, "b"), "run.log")

	stdout, _, err := execute(t, "ingest", "-db", db, first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Clean(first), filepath.Clean(second)}, strings.Fields(stdout))
}

func TestExecutionIDs(t *testing.T) {
	ids := executionIDs([]string{"a/run.log", "b/./run.log", "c/other.log", "c/other.log"})
	assert.Equal(t, []string{"a/run.log", "b/run.log", "c/other.log", "c/other.log#2"}, ids)

	assert.Equal(t, []string{"x.log", "y.log"}, executionIDs([]string{"logs/x.log", "y.log"}))
}

func TestRun_IngestRequiresDB(t *testing.T) {
	t.Setenv("METERZ_DB", "")
	path := writeLog(t, t.TempDir(), "tx.log")

	_, _, err := execute(t, "ingest", path)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_Profile(t *testing.T) {
	dir := t.TempDir()
	profiles := filepath.Join(dir, "meterz.hcl")
	require.NoError(t, os.WriteFile(profiles, []byte("profile \"mainnet\" {\n  overhead = 250\n}\n"), 0o600))
	path := writeLog(t, dir, "tx.log")

	stdout, _, err := execute(t, "report", "-format", "json", "-profiles", profiles, "-profile", "mainnet", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"overhead": 250`)

	// An explicit flag wins over the profile.
	stdout, _, err = execute(t, "report", "-format", "json", "-profiles", profiles, "-profile", "mainnet", "-overhead", "7", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"overhead": 7`)
}

func TestRun_LineLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "tx.log")

	_, stderr, err := execute(t, "report", "-line-limit", "10", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "lines exceed the channel limit")

	// The flag wins over a profile's limit.
	profiles := filepath.Join(dir, "meterz.hcl")
	require.NoError(t, os.WriteFile(profiles, []byte("profile \"tight\" {\n  overhead = 0\n  line_limit = 10\n}\n"), 0o600))
	_, stderr, err = execute(t, "report", "-profiles", profiles, "-profile", "tight", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "lines exceed the channel limit")

	_, stderr, err = execute(t, "report", "-profiles", profiles, "-profile", "tight", "-line-limit", "0", path)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "lines exceed the channel limit")
}

func TestRun_UnknownProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "tx.log")

	_, _, err := execute(t, "report", "-profiles", filepath.Join(dir, "none.hcl"), "-profile", "mainnet", path)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_InvalidEnv(t *testing.T) {
	t.Setenv("METERZ_WORKERS", "lots")

	_, _, err := execute(t, "version")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func findSite(sites []meterz.Site, label string) (meterz.Site, bool) {
	for _, s := range sites {
		if s.Label == label {
			return s, true
		}
	}
	return meterz.Site{}, false
}
