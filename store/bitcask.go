package store

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"vodqueue/task"
)

var _ task.Store = (*Bitcask)(nil)

var (
	taskPrefix = []byte("task/")
	seqKey     = []byte("meta/seq")
)

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// Bitcask is the durable task.Store. Records are gzip-compressed JSON under
// task/<id>; the id sequence lives under meta/seq. Writes are synced before
// they return.
type Bitcask struct {
	db  *bitcask.Bitcask
	mu  sync.RWMutex
	seq int64
	now func() time.Time
}

// OpenBitcask opens or creates the database directory at path.
func OpenBitcask(path string) (*Bitcask, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path, bitcask.WithSync(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}

	s := &Bitcask{db: db, now: time.Now}
	raw, err := db.Get(seqKey)
	switch {
	case err == nil:
		s.seq, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("corrupt id sequence %q: %w", raw, err)
		}
	case errors.Is(err, bitcask.ErrKeyNotFound):
	default:
		db.Close()
		return nil, fmt.Errorf("error reading id sequence: %w", err)
	}

	log.Infof("Task database opened at %s", path)
	return s, nil
}

func (s *Bitcask) Close() error {
	log.Info("Closing task database...")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Bitcask) CreateOrUpdate(t *task.DownloadTask) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := t.Clone()
	if c.ID == 0 {
		next := s.seq + 1
		if err := s.db.Put(seqKey, []byte(strconv.FormatInt(next, 10))); err != nil {
			return 0, fmt.Errorf("error advancing id sequence: %w", err)
		}
		s.seq = next
		c.ID = next
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	} else if !s.db.Has(taskKey(c.ID)) {
		return 0, task.ErrNotFound
	}
	c.UpdatedAt = now

	if err := s.put(c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *Bitcask) FindByDedupKey(key task.DedupKey) (*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.scan()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Key() == key {
			return t, nil
		}
	}
	return nil, task.ErrNotFound
}

func (s *Bitcask) Update(id int64, mutate func(*task.DownloadTask)) (*task.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(t)
	}
	t.ID = id
	t.UpdatedAt = s.now()
	if err := s.put(t); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *Bitcask) List(playlistID string) ([]*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.scan()
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if playlistID == "" || t.PlaylistID == playlistID {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Bitcask) Get(id int64) (*task.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *Bitcask) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey(id)
	if !s.db.Has(key) {
		return task.ErrNotFound
	}
	if err := s.db.Delete(key); err != nil {
		return fmt.Errorf("error deleting task %d: %w", id, err)
	}
	return nil
}

func (s *Bitcask) DeleteMany(statuses []task.Status, playlistID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.scan()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if !matches(t, statuses, playlistID) {
			continue
		}
		if err := s.db.Delete(taskKey(t.ID)); err != nil {
			return n, fmt.Errorf("error deleting task %d: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}

func (s *Bitcask) get(id int64) (*task.DownloadTask, error) {
	raw, err := s.db.Get(taskKey(id))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, task.ErrNotFound
		}
		return nil, fmt.Errorf("error getting task %d: %w", id, err)
	}
	return decodeTask(raw)
}

func (s *Bitcask) put(t *task.DownloadTask) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("error marshalling task %d: %w", t.ID, err)
	}
	compressed, err := compressGzip(data, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing task %d: %w", t.ID, err)
	}
	if err := s.db.Put(taskKey(t.ID), compressed); err != nil {
		return fmt.Errorf("error putting task %d: %w", t.ID, err)
	}
	return nil
}

// scan loads every task record. Keys are collected first so no lookups run
// inside bitcask's own iteration lock.
func (s *Bitcask) scan() ([]*task.DownloadTask, error) {
	var keys [][]byte
	err := s.db.Scan(taskPrefix, func(key []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning tasks: %w", err)
	}

	tasks := make([]*task.DownloadTask, 0, len(keys))
	for _, key := range keys {
		raw, err := s.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Scan: error getting value for key %s", key)
			continue
		}
		t, err := decodeTask(raw)
		if err != nil {
			log.WithError(err).Warnf("Scan: skipping undecodable record %s", key)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func taskKey(id int64) []byte {
	return append(append([]byte(nil), taskPrefix...), strconv.FormatInt(id, 10)...)
}

func decodeTask(raw []byte) (*task.DownloadTask, error) {
	data, err := decompressIfGzipped(raw)
	if err != nil {
		return nil, err
	}
	var t task.DownloadTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("error unmarshalling task: %w", err)
	}
	return &t, nil
}

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("error creating gzip reader: %w", err)
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		return nil, fmt.Errorf("error decompressing value: %w", err)
	}
	return decompressed, nil
}

// compressGzip compresses the value using gzip with the specified compression level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	// Close must be called to flush buffers.
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
