package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-process-pool/core"
)

const sampleJobFile = `
name: ci
max_simultaneous: 2
interval: 50ms
tags:
  team: build
  stage: verify
jobs:
  - name: lint
    command: sh
    args: [-c, "exit 0"]
    priority: 2
    tags: [type=check, fast]
  - command: sh
    args: [-c, "echo hi"]
    env: [GREETING=hi]
groups:
  - name: tests
    priority: 1.5
    tags: {type: test}
    jobs:
      - name: unit
        command: sh
        args: [-c, "exit 0"]
      - name: slow
        command: sh
        args: [-c, "exit 0"]
        priority: 0.5
`

// TestLoadSettingsFrom verifies environment parsing with the prefix
// Given: An environment with every PROCESS_POOL_ variable set
// When: Settings are loaded from it
// Then: Every field is set from its variable
func TestLoadSettingsFrom(t *testing.T) {
	// Arrange
	environ := map[string]string{
		"PROCESS_POOL_MAX_SIMULTANEOUS": "4",
		"PROCESS_POOL_RUN_INSTANTLY":    "true",
		"PROCESS_POOL_INTERVAL":         "250ms",
		"PROCESS_POOL_LOG_LEVEL":        "DEBUG",
		"PROCESS_POOL_HISTORY_SIZE":     "10",
		"MAX_SIMULTANEOUS":              "99",
	}

	// Act
	s, err := LoadSettingsFrom(environ)

	// Assert
	require.NoError(t, err)
	want := PoolSettings{
		MaxSimultaneous: 4,
		RunInstantly:    true,
		Interval:        250 * time.Millisecond,
		LogLevel:        "DEBUG",
		HistorySize:     10,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	level, err := s.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)
}

// TestLoadSettingsFrom_Defaults verifies the defaults match DefaultSettings
func TestLoadSettingsFrom_Defaults(t *testing.T) {
	s, err := LoadSettingsFrom(map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

// TestLoadSettingsFrom_Invalid verifies bad values are reported
func TestLoadSettingsFrom_Invalid(t *testing.T) {
	_, err := LoadSettingsFrom(map[string]string{"PROCESS_POOL_MAX_SIMULTANEOUS": "many"})
	assert.Error(t, err)

	_, err = LoadSettingsFrom(map[string]string{
		"PROCESS_POOL_MAX_SIMULTANEOUS": "-1",
		"PROCESS_POOL_LOG_LEVEL":        "loud",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max simultaneous must not be negative")
	assert.Contains(t, err.Error(), `unknown log level "loud"`)
}

// TestParseJobFile verifies decoding of a complete job file
func TestParseJobFile(t *testing.T) {
	// Act
	f, err := ParseJobFile([]byte(sampleJobFile))

	// Assert
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	assert.Equal(t, "ci", f.Name)
	require.NotNil(t, f.MaxSimultaneous)
	assert.Equal(t, 2, *f.MaxSimultaneous)
	require.NotNil(t, f.Interval)
	assert.Equal(t, 50*time.Millisecond, *f.Interval)
	assert.Equal(t, TagList{core.T("team", "build"), core.T("stage", "verify")}, f.Tags)
	assert.Equal(t, TagList{core.T("type", "check"), core.T("", "fast")}, f.Jobs[0].Tags)
	assert.Equal(t, 4, f.Count())
	assert.Equal(t, "sh -c echo hi", f.Jobs[1].displayName())
}

// TestParseJobFile_Errors verifies malformed files are refused
func TestParseJobFile_Errors(t *testing.T) {
	_, err := ParseJobFile([]byte("  \n"))
	assert.Error(t, err)

	_, err = ParseJobFile([]byte("jobs:\n  - command: sh\n    unknown: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = ParseJobFile([]byte("tags: 3\njobs: []\n"))
	assert.Error(t, err)
}

// TestJobFile_Validate verifies every problem is reported at once
func TestJobFile_Validate(t *testing.T) {
	f, err := ParseJobFile([]byte(`
max_simultaneous: -1
jobs:
  - name: missing
groups:
  - name: inner
    jobs:
      - command: sh
        env: [NOVALUE]
`))
	require.NoError(t, err)

	err = f.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_simultaneous must not be negative")
	assert.Contains(t, err.Error(), "pool.jobs[0]: command is required")
	assert.Contains(t, err.Error(), `pool.inner.jobs[0]: env entry "NOVALUE" is not KEY=VALUE`)

	empty, err := ParseJobFile([]byte("name: empty\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, empty.Validate(), "no jobs defined")
}

// TestJobFile_Settings verifies file settings override the environment
func TestJobFile_Settings(t *testing.T) {
	f, err := ParseJobFile([]byte(sampleJobFile))
	require.NoError(t, err)

	s := f.Settings(DefaultSettings())

	assert.Equal(t, 2, s.MaxSimultaneous)
	assert.Equal(t, 50*time.Millisecond, s.Interval)
	assert.False(t, s.RunInstantly)
}

// TestJobFile_Build verifies the pool tree built from a file
// Given: The sample job file
// When: It is built into a pool
// Then: All four jobs are flattened into the root with their priorities and tags
func TestJobFile_Build(t *testing.T) {
	// Arrange
	f, err := ParseJobFile([]byte(sampleJobFile))
	require.NoError(t, err)
	settings := f.Settings(DefaultSettings())

	// Act
	pool, err := f.Build(settings, nil, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ci", pool.Name())
	assert.Equal(t, 2, pool.MaxSimultaneous())
	assert.Equal(t, "team=build stage=verify", pool.Tags().String())

	runs := pool.All()
	require.Len(t, runs, 4)
	names := make([]string, len(runs))
	priorities := make([]float64, len(runs))
	for i, r := range runs {
		names[i] = core.RunName(r)
		priorities[i] = r.Priority()
	}
	assert.Equal(t, []string{"lint", "sh -c echo hi", "unit", "slow"}, names)
	assert.Equal(t, []float64{2, 1, 1.5, 0.5}, priorities)
	assert.Equal(t, "type=check fast", runs[0].Tags().String())

	echo := runs[1].(*core.ProcessRun).Process()
	assert.Contains(t, echo.Env, "GREETING=hi")
	assert.Empty(t, runs[0].(*core.ProcessRun).Process().Env)
}

// TestJobFile_BuildAndRun verifies a built pool runs its commands
func TestJobFile_BuildAndRun(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	f, err := ParseJobFile([]byte(sampleJobFile))
	require.NoError(t, err)
	pool, err := f.Build(f.Settings(DefaultSettings()), nil, nil)
	require.NoError(t, err)

	ok := pool.Run(5 * time.Millisecond)

	assert.True(t, ok, "errors: %v", pool.Errors())
	assert.Len(t, pool.Finished(), 4)
}

// TestLoadJobFile verifies reading from disk
func TestLoadJobFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleJobFile), 0o644))

	f, err := LoadJobFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Count())

	_, err = LoadJobFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("jobs:\n  - name: x\n"), 0o644))
	_, err = LoadJobFile(bad)
	assert.ErrorContains(t, err, "command is required")
}

// TestJobFile_BuildGroupPriority verifies group priorities, including an explicit 0
func TestJobFile_BuildGroupPriority(t *testing.T) {
	f, err := ParseJobFile([]byte(`
groups:
  - name: zero
    priority: 0
    jobs:
      - command: sh
  - name: inherited
    jobs:
      - command: sh
`))
	require.NoError(t, err)

	pool, err := f.Build(DefaultSettings(), nil, nil)

	require.NoError(t, err)
	runs := pool.All()
	require.Len(t, runs, 2)
	assert.Zero(t, runs[0].Priority(), "jobs default to the group priority")
	assert.Equal(t, core.DefaultPriority, runs[1].Priority())
}
