package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_CreatesDatabase(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database "+dbPath+" at schema version")
	assert.FileExists(t, dbPath)
}

func TestMigrate_IsRepeatable(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "--format", "json", "migrate")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   MigrateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, dbPath, resp.Data.Path)
	assert.Positive(t, resp.Data.SchemaVersion)
}

func TestMigrate_UnopenableDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agencyops.yaml")
	dbPath := filepath.Join(dir, "missing", "agencyops.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+dbPath+"\n"), 0644))

	_, err := execute(t, "--config", cfgPath, "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}
