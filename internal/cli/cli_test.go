package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cli.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "livestorage", cmd.Use)

	for _, name := range []string{"get", "set", "rm", "dump"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, tempDB(t), "--format", "xml", "dump")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSetGetRemove(t *testing.T) {
	db := tempDB(t)

	_, err := run(t, db, "set", "sync", "display", `{"theme":"dark","size":12}`)
	require.NoError(t, err)
	_, err = run(t, db, "set", "local", "greeting", "hello")
	require.NoError(t, err)

	out, err := run(t, db, "get", "sync", "display")
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark","size":12}`, out)

	out, err = run(t, db, "get", "local", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = run(t, db, "rm", "local", "greeting")
	require.NoError(t, err)

	_, err = run(t, db, "get", "local", "greeting")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestManagedRequiresAdmin(t *testing.T) {
	db := tempDB(t)

	_, err := run(t, db, "set", "managed", "policy", "strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "--admin")

	_, err = run(t, db, "set", "--admin", "managed", "policy", "strict")
	require.NoError(t, err)

	out, err := run(t, db, "get", "managed", "policy")
	require.NoError(t, err)
	assert.Equal(t, "strict\n", out)
}

func TestUnknownArea(t *testing.T) {
	_, err := run(t, tempDB(t), "get", "session", "k")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDumpFormats(t *testing.T) {
	db := tempDB(t)
	_, err := run(t, db, "set", "sync", "b", "2")
	require.NoError(t, err)
	_, err = run(t, db, "set", "sync", "a", `"one"`)
	require.NoError(t, err)
	_, err = run(t, db, "set", "local", "c", "true")
	require.NoError(t, err)

	out, err := run(t, db, "dump")
	require.NoError(t, err)
	assert.Equal(t, "local/c = true\nsync/a = \"one\"\nsync/b = 2\n", out)

	out, err = run(t, db, "--format", "yaml", "dump", "--area", "sync")
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, map[string]map[string]any{"sync": {"a": "one", "b": 2}}, decoded)

	out, err = run(t, db, "--format", "json", "dump", "--area", "local")
	require.NoError(t, err)
	assert.JSONEq(t, `{"local":{"c":true}}`, out)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, float64(3), parseValue("3"))
	assert.Equal(t, "plain text", parseValue("plain text"))
	assert.Equal(t, map[string]any{"a": true}, parseValue(`{"a":true}`))
}
