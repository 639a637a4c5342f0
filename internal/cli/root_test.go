package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "litequery", cmd.Use)
	assert.Contains(t, cmd.Long, "stage-three")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"define", "drop", "exec", "find", "test", "validate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"db", "models", "case-insensitive", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestFindCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	findCmd, _, err := cmd.Find([]string{"find"})
	require.NoError(t, err)

	limitFlag := findCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "100", limitFlag.DefValue)

	whereFlag := findCmd.Flags().Lookup("where")
	require.NotNil(t, whereFlag)
	assert.Equal(t, "w", whereFlag.Shorthand)

	for _, name := range []string{"skip", "sort", "select"} {
		assert.NotNil(t, findCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	env := newEnv(t)
	_, _, err := env.run(t, "--format", "invalid", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFileSuppliesPaths(t *testing.T) {
	env := newEnv(t)
	db := filepath.Join(env.dir, "from-config.db")
	env.write(t, ".litequery.yaml", "database: "+db+"\nmodels: "+env.models+"\n")

	out, _, err := env.exec(t, "define", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "defined user")
	assert.FileExists(t, db)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	env := newEnv(t)
	env.write(t, ".litequery.yaml", "database: "+filepath.Join(env.dir, "ignored.db")+"\nmodels: /nowhere\n")

	_, _, err := env.run(t, "define")
	require.NoError(t, err)
	assert.FileExists(t, env.db)
	assert.NoFileExists(t, filepath.Join(env.dir, "ignored.db"))
}

func TestMalformedConfigFile(t *testing.T) {
	env := newEnv(t)
	env.write(t, ".litequery.yaml", "database: [unterminated\n")

	_, _, err := env.run(t, "define")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
