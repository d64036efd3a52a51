package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-roster/internal/projection"
	"github.com/stacklok/toolhive-roster/internal/roster"
	"github.com/stacklok/toolhive-roster/internal/store"
)

// run executes one thv-roster invocation against file and returns stdout
func run(t *testing.T, file, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--registry-file", file, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func loadRoster(t *testing.T, file string) *roster.Registry {
	t.Helper()
	reg, err := store.NewFileStore(file).Load(t.Context())
	require.NoError(t, err)
	return reg
}

func TestConnectDisconnectSync(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)

	out, err := run(t, file, "", "connect", "A", "--name", "Alice", "--family", "7")
	require.NoError(t, err)
	assert.Equal(t, "changed\n", out)

	out, err = run(t, file, "", "connect", "A")
	require.NoError(t, err)
	assert.Equal(t, "unchanged\n", out)

	_, err = run(t, file, "", "sync", "B", "A")
	require.NoError(t, err)
	reg := loadRoster(t, file)
	assert.Equal(t, []string{"A", "B"}, reg.IDs)
	assert.Equal(t, []string{"Alice", "B"}, reg.Names)
	assert.Equal(t, []string{"A", "B"}, reg.Active)

	_, err = run(t, file, "", "disconnect", "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, loadRoster(t, file).Active)
}

func TestConnectRejectsBlankID(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)

	_, err := run(t, file, "", "connect", "  ")
	require.ErrorIs(t, err, roster.ErrEmptyID)

	_, statErr := os.Stat(file)
	assert.True(t, os.IsNotExist(statErr), "a rejected id must not create the roster file")
}

func TestSyncFromStdin(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)

	_, err := run(t, file, "C\nA  B\n", "sync", "--stdin")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, loadRoster(t, file).Active)

	_, err = run(t, file, "", "sync")
	require.NoError(t, err)
	reg := loadRoster(t, file)
	assert.Empty(t, reg.Active)
	assert.Equal(t, []string{"C", "A", "B"}, reg.IDs)
}

func TestList(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)
	require.NoError(t, store.NewFileStore(file).Save(t.Context(), &roster.Registry{
		IDs:       []string{"A", "B", "C"},
		Names:     []string{"Alice", "Bob", "Carol"},
		FamilyIDs: []string{"7", "", "3"},
		Active:    []string{"A"},
	}))

	out, err := run(t, file, "", "list", "--format", "json")
	require.NoError(t, err)
	var rows []projection.Row
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.True(t, rows[0].Active)

	out, err = run(t, file, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Carol")
	assert.Contains(t, out, "1 of 3 connected")
	assert.Less(t, strings.Index(out, "Alice"), strings.Index(out, "Carol"))

	out, err = run(t, file, "", "list", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "familyIds"`)

	_, err = run(t, file, "", "list", "--format", "xml")
	require.Error(t, err)
}

func TestListEmptyRoster(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)

	out, err := run(t, file, "", "list", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestIngest(t *testing.T) {
	file := filepath.Join(t.TempDir(), store.DefaultFileName)
	stream := strings.Join([]string{
		`{"type":"connect","id":"A","displayName":"Alice","familyId":"7"}`,
		`not json`,
		`{"type":"connect","id":"B"}`,
		`{"type":"bogus","id":"X"}`,
		`{"type":"disconnect","id":"A"}`,
		`{"type":"snapshot","ids":["B","D"]}`,
	}, "\n")

	_, err := run(t, file, stream, "ingest")
	require.NoError(t, err)

	reg := loadRoster(t, file)
	assert.Equal(t, []string{"A", "B", "D"}, reg.IDs)
	assert.Equal(t, []string{"Alice", "B", "D"}, reg.Names)
	assert.Equal(t, []string{"B", "D"}, reg.Active)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, store.DefaultFileName)
	eventsFile := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(eventsFile, []byte(`{"type":"connect","id":"A"}`+"\n"), 0600))

	_, err := run(t, file, "", "ingest", eventsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, loadRoster(t, file).Active)

	_, err = run(t, file, "", "ingest", filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "roster.yaml")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("registryFile: "+file+"\nlog:\n  level: error\n"), 0600))

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "connect", "A"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "key: ids")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "thv-roster "))

	out, err = run(t, "", "", "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
}

func TestOpenEvents(t *testing.T) {
	name, input, closeInput, err := openEvents("-")
	require.NoError(t, err)
	assert.Equal(t, "stdin", name)
	assert.Equal(t, os.Stdin, input)
	closeInput()

	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0600))
	name, _, closeInput, err = openEvents(path)
	require.NoError(t, err)
	assert.Equal(t, path, name)
	closeInput()

	_, _, _, err = openEvents(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(strings.NewReader("A B")))

	f, err := os.CreateTemp(t.TempDir(), "ids")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}
