package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openMemory(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, src := range []string{"1+2", "console.log('hi'); 5", "null"} {
		require.NoError(t, s.Record(&Entry{
			SessionID: "tab-1",
			Source:    src,
			Result:    "r" + src,
			Kind:      "value",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.Record(&Entry{SessionID: "tab-2", Source: "x", Result: "Error: x", Kind: "exception"}))

	got, err := s.Recent("tab-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "null", got[0].Source)
	assert.Equal(t, "console.log('hi'); 5", got[1].Source)
	assert.NotZero(t, got[0].ID)

	all, err := s.Recent("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_RecordRequiresSession(t *testing.T) {
	s := openMemory(t)
	assert.Error(t, s.Record(&Entry{Source: "1"}))
}

func TestStore_Purge(t *testing.T) {
	s := openMemory(t)

	require.NoError(t, s.Record(&Entry{SessionID: "a", Source: "1", Result: "1", Kind: "value"}))
	require.NoError(t, s.Record(&Entry{SessionID: "a", Source: "2", Result: "2", Kind: "value"}))
	require.NoError(t, s.Record(&Entry{SessionID: "b", Source: "3", Result: "3", Kind: "value"}))

	n, err := s.Purge("a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Recent("", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].SessionID)
}

func TestStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(&Entry{SessionID: "cli", Source: "40+2", Result: "42", Kind: "value"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent("cli", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].Result)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
