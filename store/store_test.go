package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodqueue/task"
)

type storeUnderTest interface {
	task.Store
	Close() error
}

func backends(t *testing.T) map[string]func(t *testing.T) storeUnderTest {
	return map[string]func(t *testing.T) storeUnderTest{
		"memory": func(t *testing.T) storeUnderTest {
			return NewMemory()
		},
		"bitcask": func(t *testing.T) storeUnderTest {
			s, err := OpenBitcask(filepath.Join(t.TempDir(), "tasks.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func newTask(playlist string, xtreamID int64, status task.Status) *task.DownloadTask {
	return &task.DownloadTask{
		PlaylistID:  playlist,
		XtreamID:    xtreamID,
		ContentType: task.ContentVOD,
		Title:       "Movie",
		URL:         "http://example.com/movie.mp4",
		FileName:    "Movie.mp4",
		Directory:   "/tmp",
		Status:      status,
		Headers:     &task.Headers{UserAgent: "test-agent"},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			id, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusQueued))
			require.NoError(t, err)
			assert.Equal(t, int64(1), id)

			id2, err := s.CreateOrUpdate(newTask("p1", 43, task.StatusQueued))
			require.NoError(t, err)
			assert.Equal(t, int64(2), id2)

			got, err := s.Get(id)
			require.NoError(t, err)
			assert.Equal(t, int64(42), got.XtreamID)
			assert.Equal(t, task.StatusQueued, got.Status)
			assert.Equal(t, "test-agent", got.Headers.UserAgent)
			assert.Nil(t, got.TotalBytes)
			assert.False(t, got.CreatedAt.IsZero())

			_, err = s.Get(99)
			assert.ErrorIs(t, err, task.ErrNotFound)
		})
	}
}

func TestStore_UpdateExistingRecord(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			id, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusFailed))
			require.NoError(t, err)

			got, err := s.Get(id)
			require.NoError(t, err)
			got.Status = task.StatusQueued
			sameID, err := s.CreateOrUpdate(got)
			require.NoError(t, err)
			assert.Equal(t, id, sameID)

			_, err = s.CreateOrUpdate(&task.DownloadTask{ID: 77})
			assert.ErrorIs(t, err, task.ErrNotFound)

			total := int64(1000)
			updated, err := s.Update(id, func(t *task.DownloadTask) {
				t.BytesDownloaded = 500
				t.TotalBytes = &total
			})
			require.NoError(t, err)
			assert.Equal(t, int64(500), updated.BytesDownloaded)
			require.NotNil(t, updated.TotalBytes)
			assert.Equal(t, int64(1000), *updated.TotalBytes)
			assert.Equal(t, task.StatusQueued, updated.Status)

			_, err = s.Update(99, func(t *task.DownloadTask) {})
			assert.ErrorIs(t, err, task.ErrNotFound)
		})
	}
}

func TestStore_ReturnedTasksAreCopies(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			id, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusQueued))
			require.NoError(t, err)

			got, err := s.Get(id)
			require.NoError(t, err)
			got.Status = task.StatusCompleted
			got.Headers.UserAgent = "changed"

			again, err := s.Get(id)
			require.NoError(t, err)
			assert.Equal(t, task.StatusQueued, again.Status)
			assert.Equal(t, "test-agent", again.Headers.UserAgent)
		})
	}
}

func TestStore_FindByDedupKey(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			_, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusQueued))
			require.NoError(t, err)
			ep := newTask("p1", 42, task.StatusQueued)
			ep.ContentType = task.ContentEpisode
			epID, err := s.CreateOrUpdate(ep)
			require.NoError(t, err)

			got, err := s.FindByDedupKey(task.DedupKey{PlaylistID: "p1", XtreamID: 42, ContentType: task.ContentEpisode})
			require.NoError(t, err)
			assert.Equal(t, epID, got.ID)

			_, err = s.FindByDedupKey(task.DedupKey{PlaylistID: "p2", XtreamID: 42, ContentType: task.ContentVOD})
			assert.ErrorIs(t, err, task.ErrNotFound)
		})
	}
}

func TestStore_ListInCreationOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			for i := int64(1); i <= 12; i++ {
				playlist := "p1"
				if i%3 == 0 {
					playlist = "p2"
				}
				_, err := s.CreateOrUpdate(newTask(playlist, i, task.StatusQueued))
				require.NoError(t, err)
			}

			all, err := s.List("")
			require.NoError(t, err)
			require.Len(t, all, 12)
			for i, tk := range all {
				assert.Equal(t, int64(i+1), tk.ID)
			}

			p2, err := s.List("p2")
			require.NoError(t, err)
			require.Len(t, p2, 4)
			assert.Equal(t, []int64{3, 6, 9, 12}, ids(p2))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			id, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusQueued))
			require.NoError(t, err)

			require.NoError(t, s.Delete(id))
			_, err = s.Get(id)
			assert.ErrorIs(t, err, task.ErrNotFound)
			assert.ErrorIs(t, s.Delete(id), task.ErrNotFound)
		})
	}
}

func TestStore_DeleteMany(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			statuses := []task.Status{
				task.StatusCompleted, task.StatusFailed, task.StatusCanceled,
				task.StatusQueued, task.StatusDownloading,
			}
			for i, st := range statuses {
				_, err := s.CreateOrUpdate(newTask("p1", int64(i+1), st))
				require.NoError(t, err)
			}
			_, err := s.CreateOrUpdate(newTask("p2", 100, task.StatusCompleted))
			require.NoError(t, err)

			n, err := s.DeleteMany(task.TerminalStatuses, "p1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			rest, err := s.List("")
			require.NoError(t, err)
			assert.Equal(t, []int64{4, 5, 6}, ids(rest))

			n, err = s.DeleteMany(task.TerminalStatuses, "")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBitcask_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	s, err := OpenBitcask(path)
	require.NoError(t, err)
	id, err := s.CreateOrUpdate(newTask("p1", 42, task.StatusDownloading))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenBitcask(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDownloading, got.Status)

	next, err := reopened.CreateOrUpdate(newTask("p1", 43, task.StatusQueued))
	require.NoError(t, err)
	assert.Equal(t, id+1, next, "id sequence must continue after reopen")
}

func TestGzipHelpers(t *testing.T) {
	plain := []byte(`{"id":1}`)
	assert.Equal(t, plain, mustDecompress(t, plain), "plain values pass through")

	compressed, err := compressGzip(plain, 9)
	require.NoError(t, err)
	assert.Equal(t, plain, mustDecompress(t, compressed))
}

func mustDecompress(t *testing.T, b []byte) []byte {
	t.Helper()
	out, err := decompressIfGzipped(b)
	require.NoError(t, err)
	return out
}

func ids(tasks []*task.DownloadTask) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
