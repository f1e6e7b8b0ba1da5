package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exportgraph/internal/resolve"
)

const exportsConfig = "testdata/exports.yaml"

var desktopLines = []string{
	`link message d1 reply_to=- sender=a1 thread=t1 {"text":"lunch?","ts":"2024-03-01T12:00:00.250Z"}`,
	`link message d2 reply_to=d1 sender=a2 thread=t1 {"text":"sure","ts":"2024-03-01T12:01:00Z"}`,
	`error missing_reference desktop: missing reference "sender" (record d3)`,
}

// testCommand returns a command wired to in-memory output.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	return cmd, &stdout, &stderr
}

func mergeOptions(format string) *MergeOptions {
	return &MergeOptions{
		RootOptions: &RootOptions{Format: format},
		Config:      exportsConfig,
		IDGenerator: resolve.NewFixedGenerator("run-1", "pass-1"),
	}
}

// writeConfig writes a config into a temp dir whose only source is the
// desktop fixture.
func writeConfig(t *testing.T, schemaPath string) string {
	t.Helper()
	desktop, err := filepath.Abs("testdata/desktop.json")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "exports.yaml")
	cfg := "schema: " + schemaPath + "\nsources:\n  - name: desktop\n    type: json\n    path: " + desktop + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestMerge_Text(t *testing.T) {
	cmd, stdout, stderr := testCommand()

	err := runMerge(cmd, mergeOptions("text"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, desktopLines, lines)
	assert.Contains(t, stderr.String(), "Run run-1: 2 merged, 0 duplicates, 1 errors")
}

func TestMerge_JSON(t *testing.T) {
	cmd, stdout, _ := testCommand()

	err := runMerge(cmd, mergeOptions("json"))
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   MergeReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Nil(t, resp.Data.Stored)

	results := resp.Data.Results
	require.Len(t, results, 3)
	assert.Equal(t, "link", results[0].Type)
	assert.Equal(t, "d1", results[0].ID)
	assert.Nil(t, results[0].Refs["reply_to"])
	assert.Equal(t, &RefView{Kind: "person", ID: "a1"}, results[0].Refs["sender"])
	assert.Equal(t, &RefView{Kind: "message", ID: "d1"}, results[1].Refs["reply_to"])

	assert.Equal(t, "error", results[2].Type)
	assert.Equal(t, "missing_reference", results[2].Kind)
	assert.Equal(t, "desktop", results[2].Source)
	assert.Equal(t, "d3", results[2].RecordID)
	assert.Equal(t, "2024-03-01T12:02:00Z", results[2].Time)

	sum := resp.Data.Summary
	assert.Equal(t, "run-1", sum.RunID)
	require.Len(t, sum.Sources, 1)
	assert.Equal(t, "pass-1", sum.Sources[0].PassID)
	assert.Equal(t, 2, sum.Merge.Emitted)
	assert.Equal(t, 1, sum.Merge.Errors)
}

func TestMerge_Strict(t *testing.T) {
	cmd, stdout, stderr := testCommand()
	opts := mergeOptions("text")
	opts.Strict = true

	err := runMerge(cmd, opts)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr.String(), "Error [E010]: 1 errors in merged stream")

	// Results are still printed.
	assert.Contains(t, stdout.String(), "record d3")
}

func TestMerge_MissingConfig(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := mergeOptions("text")
	opts.Config = "testdata/nope.yaml"

	err := runMerge(cmd, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout.String(), "Error [E002]")
}

func TestMerge_MissingSchema(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := mergeOptions("json")
	opts.Config = writeConfig(t, "missing.cue")

	err := runMerge(cmd, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
}

func TestMerge_OutThenRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "merged.db")

	cmd, _, stderr := testCommand()
	opts := mergeOptions("text")
	opts.Out = db
	require.NoError(t, runMerge(cmd, opts))
	assert.Contains(t, stderr.String(), "Stored 2 results and 1 errors in "+db)

	cmd, stdout, _ := testCommand()
	runsOpts := &RunsOptions{RootOptions: &RootOptions{Format: "text"}, Database: db}
	require.NoError(t, runRuns(cmd, runsOpts))
	assert.Contains(t, stdout.String(), "RUN")
	assert.Contains(t, stdout.String(), "run-1")

	cmd, stdout, _ = testCommand()
	runsOpts.Run = "run-1"
	require.NoError(t, runRuns(cmd, runsOpts))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "1 link message d1 "), lines[0])
	assert.Contains(t, lines[1], `"reply_to":{"id":"d1","kind":"message"}`)
	assert.Equal(t, `3 error missing_reference desktop: missing reference "sender" (record d3)`, lines[2])
}

func TestMerge_DuplicateRunIDFailsStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "merged.db")

	cmd, _, _ := testCommand()
	opts := mergeOptions("text")
	opts.Out = db
	require.NoError(t, runMerge(cmd, opts))

	cmd, stdout, _ := testCommand()
	opts = mergeOptions("text")
	opts.Out = db
	err := runMerge(cmd, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout.String(), "Error [E005]")
}

func TestRuns_UnknownRun(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := &RunsOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    filepath.Join(t.TempDir(), "empty.db"),
		Run:         "nope",
	}

	err := runRuns(cmd, opts)
	require.Error(t, err)
	assert.Contains(t, stdout.String(), `run "nope" not found`)
}

func TestRuns_Empty(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := &RunsOptions{
		RootOptions: &RootOptions{Format: "json"},
		Database:    filepath.Join(t.TempDir(), "empty.db"),
	}

	require.NoError(t, runRuns(cmd, opts))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}

func TestValidate_Valid(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := &ValidateOptions{RootOptions: &RootOptions{Format: "text"}, Config: exportsConfig}

	require.NoError(t, runValidate(cmd, opts))
	assert.Contains(t, stdout.String(), "is valid: 1 sources, 2 entity kinds, 1 link kinds")
}

func TestValidate_JSON(t *testing.T) {
	cmd, stdout, _ := testCommand()
	opts := &ValidateOptions{RootOptions: &RootOptions{Format: "json"}, Config: exportsConfig}

	require.NoError(t, runValidate(cmd, opts))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, ValidationReport{
		Sources:   []string{"desktop"},
		Entities:  []string{"person", "thread"},
		LinkKinds: []string{"message"},
	}, resp.Data)
}

func TestValidate_SchemaError(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(schemaPath, []byte("entity: person: {}\n"), 0o644))

	cmd, stdout, _ := testCommand()
	opts := &ValidateOptions{RootOptions: &RootOptions{Format: "json"}, Config: writeConfig(t, schemaPath)}

	err := runValidate(cmd, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "at least one link kind is required")
}

func TestValidate_ConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: chat.cue\nsources: []\n"), 0o644))

	cmd, stdout, _ := testCommand()
	opts := &ValidateOptions{RootOptions: &RootOptions{Format: "text"}, Config: path}

	err := runValidate(cmd, opts)
	require.Error(t, err)
	assert.Contains(t, stdout.String(), "Error [E002]")
	assert.Contains(t, stdout.String(), "sources list is required")
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--format", "xml", "validate", "--config", exportsConfig})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommand_Validate(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"validate", "--config", exportsConfig})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "is valid")
}

func TestRootCommand_MergeRequiresConfig(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"merge"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "config" not set`)
}
