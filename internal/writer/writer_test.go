package writer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/errs"
)

func TestWriteFreshFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "artifact.json")

	res, err := Write(path, []byte(`{"x":1}`+"\n"))
	require.NoError(t, err)
	assert.Equal(t, Wrote, res.Action)
	assert.Equal(t, 8, res.BytesWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`+"\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not remain after a successful write")
}

func TestWriteIdenticalBytesIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	body := []byte(`{"x":1}` + "\n")

	_, err := Write(path, body)
	require.NoError(t, err)

	res, err := Write(path, body)
	require.NoError(t, err)
	assert.Equal(t, SkipIdentical, res.Action)
	assert.Equal(t, 0, res.BytesWritten)
}

func TestWriteDifferentBytesIsRefused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")

	_, err := Write(path, []byte(`{"x":1}`+"\n"))
	require.NoError(t, err)

	_, err = Write(path, []byte(`{"x":2}`+"\n"))
	require.Error(t, err)
	var coreErr *errs.Error
	require.True(t, errors.As(err, &coreErr))
	assert.Equal(t, errs.AttemptedRewrite, coreErr.Kind)
	assert.Equal(t, 4, coreErr.Kind.ExitCode())
}

func TestWriteRefusesNonRegularTarget(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "adir")
	require.NoError(t, os.Mkdir(sub, 0o755))

	_, err := Write(sub, []byte("x"))
	require.Error(t, err)
}
