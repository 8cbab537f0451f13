package core

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return exec.Command(path, "-c", script)
}

// pollUntilDone polls run until it reports finished or the deadline passes.
func pollUntilDone(t *testing.T, run Run) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for run.Poll() {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestProcessRun_Success verifies a process that exits 0
// Given: A shell command printing two lines
// When: The run is started and polled to completion
// Then: It is successful, its output is captured, and the last line is the last message
func TestProcessRun_Success(t *testing.T) {
	// Arrange
	run := NewProcessRun(shell(t, "echo first; echo second"), WithTags(T("", "echo")))
	seen := recordKinds(t, run, EventStarted, EventSuccessful, EventFailed, EventCompleted)

	// Act
	run.Start()
	assert.True(t, run.HasStarted())
	pollUntilDone(t, run)

	// Assert
	assert.Equal(t, []EventKind{EventStarted, EventSuccessful, EventCompleted}, *seen)
	assert.True(t, run.IsSuccessful())
	assert.False(t, run.IsRunning())
	assert.Empty(t, run.Errors())
	assert.Equal(t, "first\nsecond\n", run.Stdout())
	assert.Equal(t, "second", run.LastMessage())
	assert.Equal(t, "stdout", run.LastMessageType())
	assert.Positive(t, run.Duration())
	assert.False(t, run.Poll(), "Poll after completion")
}

// TestProcessRun_Failure verifies a non-zero exit is captured as ProcessFailedError
func TestProcessRun_Failure(t *testing.T) {
	// Arrange
	run := NewProcessRun(shell(t, "echo bad >&2; exit 3"))
	seen := recordKinds(t, run, EventSuccessful, EventFailed, EventCompleted)

	// Act
	run.Start()
	pollUntilDone(t, run)

	// Assert
	assert.Equal(t, []EventKind{EventFailed, EventCompleted}, *seen)
	assert.False(t, run.IsSuccessful())
	require.Len(t, run.Errors(), 1)
	var pfe *ProcessFailedError
	require.ErrorAs(t, run.Errors()[0], &pfe)
	assert.Equal(t, 3, pfe.ExitCode)
	assert.Equal(t, "bad\n", pfe.Stderr)
	assert.Equal(t, "bad", run.LastMessage())
	assert.Equal(t, "stderr", run.LastMessageType())
}

// TestProcessRun_StartFailure verifies a command that cannot be launched fails inside Start
func TestProcessRun_StartFailure(t *testing.T) {
	// Arrange
	run := NewProcessRun(exec.Command("/nonexistent/definitely-not-here"))
	seen := recordKinds(t, run, EventStarted, EventFailed, EventCompleted)

	// Act
	run.Start()

	// Assert
	assert.Equal(t, []EventKind{EventStarted, EventFailed, EventCompleted}, *seen)
	assert.False(t, run.IsRunning())
	assert.False(t, run.Poll())
	require.Len(t, run.Errors(), 1)
	var pfe *ProcessFailedError
	require.ErrorAs(t, run.Errors()[0], &pfe)
	assert.Equal(t, -1, pfe.ExitCode)
}

// TestProcessRun_UpdatedOnPoll verifies updated fires while the process runs
func TestProcessRun_UpdatedOnPoll(t *testing.T) {
	// Arrange
	run := NewProcessRun(shell(t, "sleep 0.2"), WithUpdateOnOutput(false))
	updates := 0
	require.NoError(t, run.AddListener(EventUpdated, func(Event) { updates++ }))

	// Act
	run.Start()
	running := run.Poll()
	pollUntilDone(t, run)

	// Assert
	assert.True(t, running)
	assert.GreaterOrEqual(t, updates, 1)
}

// TestProcessRun_NotStarted verifies polling before start does nothing
func TestProcessRun_NotStarted(t *testing.T) {
	run := NewProcessRun(exec.Command("true"))

	assert.False(t, run.Poll())
	assert.False(t, run.HasStarted())
	assert.Zero(t, run.Duration())
	assert.Equal(t, exec.Command("true").String(), run.Name())
}
