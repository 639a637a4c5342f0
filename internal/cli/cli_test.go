package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/litequery/internal/config"
)

const testModels = `models:
  - identity: user
    tableName: users
    attributes:
      - {name: id, type: number, autoIncrement: true}
      - {name: name, required: true}
      - {name: email, unique: true}
      - {name: age, type: number}
`

// cliEnv is a temp directory holding a models file and a database path.
type cliEnv struct {
	dir    string
	db     string
	models string
	stdin  string
}

func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := &cliEnv{
		dir:    dir,
		db:     filepath.Join(dir, "test.db"),
		models: filepath.Join(dir, "models.yaml"),
	}
	e.write(t, "models.yaml", testModels)
	return e
}

func (e *cliEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command with args followed by the env's database
// and models flags.
func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return e.exec(t, append(args, "--no-color", "--db", e.db, "--models", e.models)...)
}

// exec executes the root command with args only; config comes from the
// env's directory.
func (e *cliEnv) exec(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(config.WithWorkDir(e.dir), config.WithHome(e.dir))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(e.stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
