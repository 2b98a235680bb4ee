package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestReadAbsentCollectionIsEmpty(t *testing.T) {
	store := newTestStore(t)

	records := []record{}
	require.NoError(t, store.Read("teams", &records))
	assert.Empty(t, records)
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := []record{{ID: "a", Value: 1}, {ID: "b", Value: 2}}
	require.NoError(t, store.Write("teams", in))

	out := []record{}
	require.NoError(t, store.Read("teams", &out))
	assert.Equal(t, in, out)
}

func TestWriteOverwritesWholeCollection(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("teams", []record{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, store.Write("teams", []record{{ID: "c"}}))

	out := []record{}
	require.NoError(t, store.Read("teams", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestReadCorruptCollectionIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "teams.json"), []byte("{not json"), 0o644))

	records := []record{}
	require.NoError(t, store.Read("teams", &records))
	assert.Empty(t, records)
}

func TestMutateSerializesWriters(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Write("counters", []record{{ID: "c", Value: 0}}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Mutate("counters", func() error {
				records := []record{}
				if err := store.Read("counters", &records); err != nil {
					return err
				}
				records[0].Value++
				return store.Write("counters", records)
			})
		}()
	}
	wg.Wait()

	out := []record{}
	require.NoError(t, store.Read("counters", &out))
	require.Len(t, out, 1)
	assert.Equal(t, 50, out[0].Value)
}
