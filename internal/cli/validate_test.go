package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfiguredModels(t *testing.T) {
	env := newEnv(t)

	out, _, err := env.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "user (table users, 4 attributes)")
	assert.Contains(t, out, "✓ 1 model(s) valid")
}

func TestValidateCUEDirectoryJSON(t *testing.T) {
	env := newEnv(t)

	out, _, err := env.run(t, "validate", "../schema/testdata/cue", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Models, 2)
	assert.Equal(t, ModelSummary{Identity: "pet", Table: "pets", PrimaryKey: "id", Attributes: 3}, resp.Data.Models[0])
	assert.Equal(t, "user", resp.Data.Models[1].Identity)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantExit int
		wantCode string
	}{
		{
			name:     "missing identity",
			file:     "bad.yaml",
			content:  "models:\n  - attributes: [{name: id}]\n",
			wantExit: ExitFailure,
			wantCode: "E010",
		},
		{
			name:     "unknown field",
			file:     "typo.yaml",
			content:  "models:\n  - identity: a\n    atributes: []\n",
			wantExit: ExitFailure,
			wantCode: "E006",
		},
		{
			name:     "cue syntax",
			file:     "broken.cue",
			content:  "package models\nmodel: {\n",
			wantExit: ExitFailure,
			wantCode: "E006",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			path := env.write(t, tt.file, tt.content)

			out, _, err := env.run(t, "validate", path, "--format", "json")
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestValidateMissingPath(t *testing.T) {
	env := newEnv(t)

	out, _, err := env.run(t, "validate", filepath.Join(env.dir, "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E005")
}
