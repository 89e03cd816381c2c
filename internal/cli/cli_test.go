package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/tally/internal/command"
)

const validJournal = `2020-12-17 * Valid transaction
    Assets:Testing  $1000
    Equity
`

const wantBalance = "               $1000  Assets:Testing\n" +
	"              $-1000  Equity\n" +
	"--------------------\n" +
	"                   0\n"

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LEDGER_FILE", "")
	t.Setenv("TALLY_BRIDGE_ADDR", "")

	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.ledger")
	require.NoError(t, os.WriteFile(path, []byte(validJournal), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "tally version "+version)
	})

	t.Run("subcommands registered", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "bridge", "run", "commands"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestRunCommand(t *testing.T) {
	path := writeJournal(t)

	out, err := execute(t, "run", "-f", path, "balance")
	require.NoError(t, err)
	assert.Equal(t, wantBalance, out)

	out, err = execute(t, "run", "--", "-f", path, "bal")
	require.NoError(t, err)
	assert.Equal(t, wantBalance, out)

	_, err = execute(t, "run", "-f", path, "nonexistent-command")
	assert.ErrorIs(t, err, command.ErrUnknownCommand)
}

func TestRunCommandHelp(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Run one report line")
}

func TestCommandsCommand(t *testing.T) {
	out, err := execute(t, "commands")
	require.NoError(t, err)
	assert.Contains(t, out, "balance")
	assert.Contains(t, out, "bal, b")
	assert.Contains(t, out, "register")
}

func TestBridgeCommandRequiresAddress(t *testing.T) {
	_, err := execute(t, "bridge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bridge address")
}
