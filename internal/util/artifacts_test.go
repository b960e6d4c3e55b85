package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONOnceKeepsFirstWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "entry.json")

	created, err := WriteJSONOnce(path, map[string]int{"v": 1})
	require.NoError(t, err)
	require.True(t, created)

	created, err = WriteJSONOnce(path, map[string]int{"v": 2})
	require.NoError(t, err)
	require.False(t, created)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, 1, got["v"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestWriteJSONAtomicOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"v": 1}))
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"v": 2}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"v": 2`)
}

func TestWriteJSONLinesAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, WriteJSONLinesAtomic(path, []string{"a", "b"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "\"a\"\n\"b\"\n", string(b))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SA2_130", "TdocsByAgenda.htm")
	require.NoError(t, WriteFileAtomic(path, []byte("old")))
	require.NoError(t, WriteFileAtomic(path, []byte("new")))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(b))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
