package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/population"
)

var _ population.Recorder = (*Journal)(nil)

func TestWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "test")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Write(Record{Kind: "a"}))
	require.NoError(t, w.Write(Record{Kind: "b"}))
	first := w.Path(now)

	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Write(Record{Kind: "c"}))
	second := w.Path(now)
	require.NoError(t, w.Close())

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(dir, "test-2026-03-01-10.jsonl.zst"), first)

	got, err := ReadFile(first)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Kind)
	assert.Equal(t, "b", got[1].Kind)

	got, err = ReadFile(second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Kind)
}

func TestWriter_CloseWithoutWrite(t *testing.T) {
	w := NewWriter(t.TempDir(), "test")
	assert.NoError(t, w.Close())
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl.zst"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJournal_Events(t *testing.T) {
	w := NewWriter(t.TempDir(), "population")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	j := newJournal(w, 0, w.now)
	j.start()

	e := population.SpawnedEntity{
		ID:        uuid.New(),
		Candidate: "rock",
		Zone:      "beach",
		Pos:       mgl64.Vec3{1, 2, 3},
	}
	j.Spawned(e)
	j.Skipped(population.SkipAtTarget)
	j.PassCompleted(population.PassStats{Skip: population.SkipAtTarget})
	j.PassCompleted(population.PassStats{Spawned: 1, Live: 1, Duration: 2 * time.Millisecond})
	j.Evicted(e)
	j.Pruned(e)
	require.NoError(t, j.Close())

	got, err := ReadFile(j.w.Path(now))
	require.NoError(t, err)
	require.Len(t, got, 4)

	kinds := make([]string, len(got))
	for i, r := range got {
		kinds[i] = r.Kind
	}
	assert.Equal(t, []string{KindSpawned, KindPass, KindEvicted, KindPruned}, kinds)

	assert.Equal(t, e.ID.String(), got[0].ID)
	assert.Equal(t, "beach", got[0].Zone)
	require.NotNil(t, got[0].Pos)
	assert.Equal(t, [3]float64{1, 2, 3}, *got[0].Pos)

	require.NotNil(t, got[1].Pass)
	assert.Equal(t, 1, got[1].Pass.Spawned)
	assert.InDelta(t, 2.0, got[1].Pass.Duration, 1e-9)
}

func TestJournal_FullQueueDropsWithoutBlocking(t *testing.T) {
	w := NewWriter(t.TempDir(), "population")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	j := newJournal(w, 2, w.now)

	e := population.SpawnedEntity{ID: uuid.New(), Candidate: "rock"}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 5 {
			j.Spawned(e)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder blocked on a full journal queue")
	}
	assert.Equal(t, uint64(3), j.Dropped())

	j.start()
	require.NoError(t, j.Close())

	got, err := ReadFile(w.Path(now))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestJournal_WriteAfterClose(t *testing.T) {
	j := New(t.TempDir(), 4)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.NotPanics(t, func() { j.Evicted(population.SpawnedEntity{ID: uuid.New()}) })
	assert.Equal(t, uint64(1), j.Dropped())
}

func TestWriter_FlushMakesRecordsReadable(t *testing.T) {
	w := NewWriter(t.TempDir(), "test")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Flush())
	require.NoError(t, w.Write(Record{Kind: "a"}))
	require.NoError(t, w.Flush())

	got, err := ReadFile(w.Path(now))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Kind)
	require.NoError(t, w.Close())
}
