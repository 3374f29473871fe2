package task

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "path/filepath"
    "sync"
    "sync/atomic"

    "github.com/lithammer/shortuuid/v4"
    log "github.com/sirupsen/logrus"

    "vodqueue/config"
    "vodqueue/download"
)

// EnqueueRequest is everything a caller supplies to queue one download.
type EnqueueRequest struct {
    PlaylistID        string      `json:"playlistId"`
    XtreamID          int64       `json:"xtreamId"`
    ContentType       ContentType `json:"contentType"`
    Title             string      `json:"title"`
    URL               string      `json:"url"`
    PosterURL         string      `json:"posterUrl,omitempty"`
    DownloadDirectory string      `json:"downloadDirectory"`
    Headers           *Headers    `json:"headers,omitempty"`
    SeriesXtreamID    *int64      `json:"seriesXtreamId,omitempty"`
    SeasonNumber      *int        `json:"seasonNumber,omitempty"`
    EpisodeNumber     *int        `json:"episodeNumber,omitempty"`
}

func (r *EnqueueRequest) Validate() error {
    switch {
    case r.PlaylistID == "":
        return &ValidationError{Field: "playlistId", Reason: "required"}
    case r.XtreamID <= 0:
        return &ValidationError{Field: "xtreamId", Reason: "must be positive"}
    case r.ContentType != ContentVOD && r.ContentType != ContentEpisode:
        return &ValidationError{Field: "contentType", Reason: fmt.Sprintf("unsupported %q", r.ContentType)}
    case r.Title == "":
        return &ValidationError{Field: "title", Reason: "required"}
    case r.DownloadDirectory == "":
        return &ValidationError{Field: "downloadDirectory", Reason: "required"}
    }

    u, err := url.Parse(r.URL)
    if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        return &ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
    }
    return nil
}

// apply copies the request onto t, keeping identity and timestamps.
func (r *EnqueueRequest) apply(t *DownloadTask) {
    t.PlaylistID = r.PlaylistID
    t.XtreamID = r.XtreamID
    t.ContentType = r.ContentType
    t.Title = r.Title
    t.URL = r.URL
    t.PosterURL = r.PosterURL
    t.Directory = r.DownloadDirectory
    t.Headers = r.Headers
    t.SeriesXtreamID = r.SeriesXtreamID
    t.SeasonNumber = r.SeasonNumber
    t.EpisodeNumber = r.EpisodeNumber

    if r.ContentType == ContentEpisode {
        t.FileName = download.FileName(r.Title, r.URL, r.SeasonNumber, r.EpisodeNumber)
    } else {
        t.FileName = download.FileName(r.Title, r.URL, nil, nil)
    }
    t.reset()
}

// queueEntry is the in-memory half of a task. It is never persisted.
type queueEntry struct {
    id        int64
    url       string
    fileName  string
    directory string
    headers   *Headers

    // Set only while the entry holds the active slot.
    session         string
    cancel          context.CancelFunc
    cancelRequested bool
    interrupted     bool
    removed         bool
}

func newEntry(t *DownloadTask) *queueEntry {
    return &queueEntry{
        id:        t.ID,
        url:       t.URL,
        fileName:  t.FileName,
        directory: t.Directory,
        headers:   t.Headers,
    }
}

// Manager serializes downloads through a single active slot. The store is
// authoritative: every control operation writes through to it before the
// in-memory queue changes.
type Manager struct {
    cfg      *config.Config
    store    Store
    executor download.Executor
    events   *Broadcaster

    mu        sync.Mutex
    queue     []*queueEntry
    active    *queueEntry
    accepting bool
    recovered bool
    wg        sync.WaitGroup

    stopped  chan struct{}
    stopOnce sync.Once
}

func NewManager(cfg *config.Config, store Store, executor download.Executor) (*Manager, error) {
    if store == nil {
        return nil, errors.New("task store is required")
    }
    if executor == nil {
        return nil, errors.New("download executor is required")
    }
    return &Manager{
        cfg:      cfg,
        store:    store,
        executor: executor,
        events:   NewBroadcaster(),
        stopped:  make(chan struct{}),
    }, nil
}

// Start runs recovery and opens the manager for work. Canceling ctx has the
// same effect as Shutdown without the wait.
func (m *Manager) Start(ctx context.Context) error {
    n, err := m.RunRecovery()
    if err != nil {
        return fmt.Errorf("recover downloads: %w", err)
    }

    m.mu.Lock()
    m.accepting = true
    m.mu.Unlock()

    log.Infof("Download manager started. %d interrupted download(s) marked as failed.", n)
    go func() {
        select {
        case <-ctx.Done():
            m.interrupt()
        case <-m.stopped:
        }
    }()
    return nil
}

// Shutdown stops accepting work and interrupts the active transfer, which is
// recorded as failed. Queued tasks are left for the next recovery.
func (m *Manager) Shutdown(ctx context.Context) error {
    m.interrupt()
    m.stopOnce.Do(func() { close(m.stopped) })

    done := make(chan struct{})
    go func() {
        m.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
        log.Info("Download manager stopped.")
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (m *Manager) interrupt() {
    m.mu.Lock()
    defer m.mu.Unlock()

    m.accepting = false
    if e := m.active; e != nil && !e.cancelRequested {
        e.cancelRequested = true
        e.interrupted = true
        e.cancel()
        log.Infof("Interrupting download %d for shutdown.", e.id)
    }
}

// Subscribe returns a channel of change signals. See Broadcaster.
func (m *Manager) Subscribe() (<-chan Signal, func()) {
    return m.events.Subscribe()
}

// RunRecovery marks every task left queued or downloading by a previous
// process as failed. Only the first call does anything.
func (m *Manager) RunRecovery() (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()

    if m.recovered {
        return 0, nil
    }

    tasks, err := m.store.List("")
    if err != nil {
        return 0, err
    }

    n := 0
    for _, t := range tasks {
        if t.Status != StatusQueued && t.Status != StatusDownloading {
            continue
        }
        _, err := m.store.Update(t.ID, func(t *DownloadTask) {
            t.Status = StatusFailed
            t.ErrorMessage = ErrInterrupted.Error()
        })
        if err != nil && !errors.Is(err, ErrNotFound) {
            return n, err
        }
        log.WithField("task", t.ID).Info("Marked interrupted download as failed.")
        n++
    }

    m.recovered = true
    if n > 0 {
        m.events.Publish(Signal{Reason: ReasonRecovered})
    }
    return n, nil
}

// Enqueue persists a new or reused task and queues it. A duplicate of a task
// that is still queued or downloading returns the existing id together with
// ErrDuplicateInProgress.
func (m *Manager) Enqueue(req EnqueueRequest) (int64, error) {
    if err := req.Validate(); err != nil {
        return 0, err
    }

    m.mu.Lock()
    defer m.mu.Unlock()

    if !m.accepting {
        return 0, ErrNotStarted
    }

    existing, err := m.store.FindByDedupKey(DedupKey{
        PlaylistID:  req.PlaylistID,
        XtreamID:    req.XtreamID,
        ContentType: req.ContentType,
    })
    var t *DownloadTask
    switch {
    case err == nil && !existing.Status.IsTerminal():
        return existing.ID, ErrDuplicateInProgress
    case err == nil:
        t = existing
    case errors.Is(err, ErrNotFound):
        t = &DownloadTask{}
    default:
        return 0, err
    }

    req.apply(t)
    if err := m.claimPathLocked(t); err != nil {
        return 0, err
    }
    id, err := m.store.CreateOrUpdate(t)
    if err != nil {
        return 0, err
    }
    t.ID = id

    m.queue = append(m.queue, newEntry(t))
    log.Infof("Download %d submitted to queue.", id)
    m.events.Publish(Signal{TaskID: id, Reason: ReasonEnqueued})
    m.drainLocked()
    return id, nil
}

// Cancel stops a task. A queued task is canceled at once; for the running
// task the executor is signaled and the canceled status is recorded when its
// terminal event arrives.
func (m *Manager) Cancel(id int64) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    if !m.accepting {
        return ErrNotStarted
    }

    if e := m.active; e != nil && e.id == id && !e.removed {
        if !e.cancelRequested {
            e.cancelRequested = true
            e.cancel()
            log.Infof("Cancellation signal sent to running download %d.", id)
        }
        return nil
    }

    t, err := m.store.Get(id)
    if err != nil {
        return err
    }
    if t.Status.IsTerminal() {
        return notApplicable(id, t.Status)
    }

    // Queued, or a stale non-terminal record with no entry.
    if _, err := m.store.Update(id, func(t *DownloadTask) {
        t.Status = StatusCanceled
    }); err != nil {
        return err
    }
    m.dropLocked(id)
    log.Infof("Download %d marked as canceled in queue.", id)
    m.events.Publish(Signal{TaskID: id, Reason: ReasonCanceled})
    return nil
}

// Retry re-queues a failed, canceled or completed task. An empty directory
// keeps the stored one.
func (m *Manager) Retry(id int64, directory string) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    if !m.accepting {
        return ErrNotStarted
    }

    t, err := m.store.Get(id)
    if err != nil {
        return err
    }
    if !t.Status.IsTerminal() {
        return notApplicable(id, t.Status)
    }

    if directory != "" {
        t.Directory = directory
    }
    if err := m.claimPathLocked(t); err != nil {
        return err
    }

    t, err = m.store.Update(id, func(cur *DownloadTask) {
        cur.Directory = t.Directory
        cur.FileName = t.FileName
        cur.reset()
    })
    if err != nil {
        return err
    }

    m.queue = append(m.queue, newEntry(t))
    log.Infof("Download %d re-queued.", id)
    m.events.Publish(Signal{TaskID: id, Reason: ReasonRetried})
    m.drainLocked()
    return nil
}

// Remove cancels the task if it is running, drops it from the queue and
// deletes its record.
func (m *Manager) Remove(id int64) error {
    m.mu.Lock()
    defer m.mu.Unlock()

    if !m.accepting {
        return ErrNotStarted
    }

    if e := m.active; e != nil && e.id == id && !e.removed {
        e.removed = true
        if !e.cancelRequested {
            e.cancelRequested = true
            e.cancel()
        }
    }
    m.dropLocked(id)

    if err := m.store.Delete(id); err != nil {
        return err
    }
    log.Infof("Download %d removed.", id)
    m.events.Publish(Signal{TaskID: id, Reason: ReasonRemoved})
    return nil
}

// ClearCompleted deletes every terminal task, optionally within one playlist.
func (m *Manager) ClearCompleted(playlistID string) (int, error) {
    n, err := m.store.DeleteMany(TerminalStatuses, playlistID)
    if err != nil {
        return n, err
    }
    if n > 0 {
        log.Infof("Cleared %d finished download(s).", n)
        m.events.Publish(Signal{Reason: ReasonCleared})
    }
    return n, nil
}

func (m *Manager) List(playlistID string) ([]*DownloadTask, error) {
    return m.store.List(playlistID)
}

func (m *Manager) Get(id int64) (*DownloadTask, error) {
    return m.store.Get(id)
}

// claimPathLocked gives t a destination no other task record points at. On a
// clash the name gets the xtreamId as a suffix, then a counter.
func (m *Manager) claimPathLocked(t *DownloadTask) error {
    tasks, err := m.store.List("")
    if err != nil {
        return err
    }
    taken := make(map[string]bool, len(tasks))
    for _, other := range tasks {
        if other.ID != t.ID {
            taken[other.Path()] = true
        }
    }

    base := t.FileName
    for n := 1; taken[t.Path()]; n++ {
        suffix := fmt.Sprintf("[%d]", t.XtreamID)
        if n > 1 {
            suffix = fmt.Sprintf("[%d-%d]", t.XtreamID, n)
        }
        t.FileName = download.WithSuffix(base, suffix)
    }
    return nil
}

func (m *Manager) dropLocked(id int64) {
    for i, e := range m.queue {
        if e.id == id {
            m.queue = append(m.queue[:i], m.queue[i+1:]...)
            return
        }
    }
}

// drainLocked starts the head of the queue if the slot is free.
func (m *Manager) drainLocked() {
    for m.accepting && m.active == nil && len(m.queue) > 0 {
        e := m.queue[0]
        m.queue = m.queue[1:]

        _, err := m.store.Update(e.id, func(t *DownloadTask) {
            t.Status = StatusDownloading
            t.BytesDownloaded = 0
            t.TotalBytes = nil
            t.ErrorMessage = ""
        })
        if errors.Is(err, ErrNotFound) {
            continue
        }
        if err != nil {
            log.WithError(err).Errorf("Failed to start download %d.", e.id)
            msg := fmt.Sprintf("failed to start download: %v", err)
            if _, ferr := m.store.Update(e.id, func(t *DownloadTask) {
                t.Status = StatusFailed
                t.ErrorMessage = msg
            }); ferr != nil && !errors.Is(ferr, ErrNotFound) {
                // Keep the entry at the head; the next drain tries again.
                log.WithError(ferr).Errorf("Failed to record start failure for download %d.", e.id)
                m.queue = append([]*queueEntry{e}, m.queue...)
                return
            }
            m.events.Publish(Signal{TaskID: e.id, Reason: ReasonFailed})
            continue
        }

        ctx, cancel := context.WithCancel(context.Background())
        e.cancel = cancel
        e.session = shortuuid.New()
        m.active = e

        log.WithField("session", e.session).Infof("Processing download %d", e.id)
        m.events.Publish(Signal{TaskID: e.id, Reason: ReasonStarted})

        m.wg.Add(1)
        go m.run(ctx, e)
    }
}

// run drives one transfer. The executor's events are throttled and then
// handled in order by handleEvent.
func (m *Manager) run(ctx context.Context, e *queueEntry) {
    defer m.wg.Done()
    defer e.cancel()

    var settled atomic.Bool
    throttle := download.NewThrottle(m.cfg.ProgressInterval, func(ev download.Event) {
        if download.IsTerminal(ev) {
            settled.Store(true)
        }
        m.handleEvent(e, ev)
    })

    m.executor.Run(ctx, download.Request{
        Session: e.session,
        URL:     e.url,
        Path:    filepath.Join(e.directory, e.fileName),
        Header:  e.headers.HTTPHeader(),
    }, throttle.Emit)

    if !settled.Load() {
        throttle.Emit(download.Failed{Err: errors.New("executor stopped without a result")})
    }
}

// handleEvent is the single place executor events turn into state.
func (m *Manager) handleEvent(e *queueEntry, ev download.Event) {
    switch ev := ev.(type) {
    case download.Started:
        log.WithField("session", e.session).Debugf("Transfer for download %d started.", e.id)
    case download.Progress:
        m.recordProgress(e, ev)
    case download.Completed:
        m.settle(e, ReasonCompleted, func(t *DownloadTask) {
            size := ev.Size
            t.Status = StatusCompleted
            t.BytesDownloaded = size
            t.TotalBytes = &size
            t.ErrorMessage = ""
        })
    case download.Canceled:
        m.settle(e, ReasonCanceled, nil)
    case download.Failed:
        msg := "download failed"
        if ev.Err != nil {
            msg = ev.Err.Error()
        }
        m.settle(e, ReasonFailed, func(t *DownloadTask) {
            t.Status = StatusFailed
            t.ErrorMessage = msg
        })
    default:
        log.Errorf("Unhandled executor event %T for download %d.", ev, e.id)
    }
}

func (m *Manager) recordProgress(e *queueEntry, p download.Progress) {
    _, err := m.store.Update(e.id, func(t *DownloadTask) {
        if t.Status != StatusDownloading {
            return
        }
        t.BytesDownloaded = p.BytesTransferred
        if p.TotalBytes >= 0 {
            total := p.TotalBytes
            t.TotalBytes = &total
        }
        if t.TotalBytes != nil && *t.TotalBytes < t.BytesDownloaded {
            total := t.BytesDownloaded
            t.TotalBytes = &total
        }
    })
    if err != nil {
        if !errors.Is(err, ErrNotFound) {
            log.WithError(err).Warnf("Failed to record progress for download %d.", e.id)
        }
        return
    }
    m.events.Publish(Signal{TaskID: e.id, Reason: ReasonProgress})
}

// settle records the terminal state, frees the slot and starts the next entry.
// A record deleted by Remove in the meantime is left alone.
func (m *Manager) settle(e *queueEntry, reason string, mutate func(*DownloadTask)) {
    m.mu.Lock()
    defer m.mu.Unlock()

    if reason == ReasonCanceled {
        if e.interrupted {
            reason = ReasonFailed
            mutate = func(t *DownloadTask) {
                t.Status = StatusFailed
                t.ErrorMessage = ErrInterrupted.Error()
            }
        } else {
            mutate = func(t *DownloadTask) {
                t.Status = StatusCanceled
            }
        }
    }

    _, err := m.store.Update(e.id, mutate)
    switch {
    case errors.Is(err, ErrNotFound):
        log.Debugf("Download %d was removed before it settled.", e.id)
    case err != nil:
        log.WithError(err).Errorf("Failed to record %s for download %d.", reason, e.id)
    default:
        log.WithField("session", e.session).Infof("Download %d %s.", e.id, reason)
    }

    if m.active == e {
        m.active = nil
    }
    m.events.Publish(Signal{TaskID: e.id, Reason: reason})
    m.drainLocked()
}
