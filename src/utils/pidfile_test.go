package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "rentalinsight.pid")

	require.NoError(t, WritePidFile(path))
	pid, err := ReadPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, RemovePidFile(path))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// 文件已不存在时不报错
	assert.NoError(t, RemovePidFile(path))
}

func TestPidFileForeignProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0644))

	require.NoError(t, RemovePidFile(path))
	_, err := os.Stat(path)
	assert.NoError(t, err, "其他进程的pid文件保留")
}

func TestReadPidFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	_, err := ReadPidFile(path)
	assert.ErrorContains(t, err, "内容无效")

	_, err = ReadPidFile(filepath.Join(t.TempDir(), "missing.pid"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
