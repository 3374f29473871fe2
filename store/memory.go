package store

import (
	"sort"
	"sync"
	"time"

	"vodqueue/task"
)

var _ task.Store = (*Memory)(nil)

// Memory is a process-local task.Store. Records do not survive a restart;
// it backs tests and headless embedding.
type Memory struct {
	mu    sync.RWMutex
	tasks map[int64]*task.DownloadTask
	seq   int64
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[int64]*task.DownloadTask),
		now:   time.Now,
	}
}

func (s *Memory) CreateOrUpdate(t *task.DownloadTask) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := t.Clone()
	if c.ID == 0 {
		s.seq++
		c.ID = s.seq
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	} else if _, ok := s.tasks[c.ID]; !ok {
		return 0, task.ErrNotFound
	}
	c.UpdatedAt = now
	s.tasks[c.ID] = c
	return c.ID, nil
}

func (s *Memory) FindByDedupKey(key task.DedupKey) (*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Key() == key {
			return t.Clone(), nil
		}
	}
	return nil, task.ErrNotFound
}

func (s *Memory) Update(id int64, mutate func(*task.DownloadTask)) (*task.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	c := cur.Clone()
	if mutate != nil {
		mutate(c)
	}
	c.ID = id
	c.UpdatedAt = s.now()
	s.tasks[id] = c
	return c.Clone(), nil
}

func (s *Memory) List(playlistID string) ([]*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*task.DownloadTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if playlistID == "" || t.PlaylistID == playlistID {
			out = append(out, t.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Memory) Get(id int64) (*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Memory) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return task.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Memory) DeleteMany(statuses []task.Status, playlistID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.tasks {
		if matches(t, statuses, playlistID) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *Memory) Close() error {
	return nil
}

func matches(t *task.DownloadTask, statuses []task.Status, playlistID string) bool {
	if playlistID != "" && t.PlaylistID != playlistID {
		return false
	}
	for _, st := range statuses {
		if t.Status == st {
			return true
		}
	}
	return false
}

// sortByID orders tasks by creation; ids are assigned monotonically.
func sortByID(tasks []*task.DownloadTask) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
}
