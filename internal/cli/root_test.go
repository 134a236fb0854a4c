package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapgrid "+Version)
	assert.Contains(t, out, "build date:")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := `id: expenses
table: expenses
key_columns: [id]
columns:
  - name: id
    type: integer
    key: true
  - name: amount
    type: decimal
    editable: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expenses.yaml"), []byte(manifest), 0o644))

	out, err := runCommand(t, "validate", "--sheets-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 sheet manifests valid")
}

func TestValidateCommandRejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: bad\ntable: bad\ncolumns: []\n"), 0o644))

	_, err := runCommand(t, "validate", "--sheets-dir", dir)
	require.Error(t, err)
}
