package task

import (
    "net/http"
    "path/filepath"
    "time"
)

type Status string

const (
    StatusQueued      Status = "queued"
    StatusDownloading Status = "downloading"
    StatusCompleted   Status = "completed"
    StatusFailed      Status = "failed"
    StatusCanceled    Status = "canceled"
)

// IsTerminal reports whether no further automatic transition leaves s.
func (s Status) IsTerminal() bool {
    return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// TerminalStatuses is the filter used by ClearCompleted.
var TerminalStatuses = []Status{StatusCompleted, StatusFailed, StatusCanceled}

type ContentType string

const (
    ContentVOD     ContentType = "vod"
    ContentEpisode ContentType = "episode"
)

// Headers is the transfer context forwarded to the remote server.
type Headers struct {
    UserAgent string `json:"userAgent,omitempty"`
    Referer   string `json:"referer,omitempty"`
    Origin    string `json:"origin,omitempty"`
}

func (h *Headers) HTTPHeader() http.Header {
    header := http.Header{}
    if h == nil {
        return header
    }
    if h.UserAgent != "" {
        header.Set("User-Agent", h.UserAgent)
    }
    if h.Referer != "" {
        header.Set("Referer", h.Referer)
    }
    if h.Origin != "" {
        header.Set("Origin", h.Origin)
    }
    return header
}

// DedupKey identifies one logical downloadable item.
type DedupKey struct {
    PlaylistID  string
    XtreamID    int64
    ContentType ContentType
}

type DownloadTask struct {
    ID              int64       `json:"id"`
    PlaylistID      string      `json:"playlistId"`
    XtreamID        int64       `json:"xtreamId"`
    ContentType     ContentType `json:"contentType"`
    Title           string      `json:"title"`
    URL             string      `json:"url"`
    FileName        string      `json:"fileName"`
    Directory       string      `json:"directory"`
    PosterURL       string      `json:"posterUrl,omitempty"`
    Headers         *Headers    `json:"headers,omitempty"`
    Status          Status      `json:"status"`
    BytesDownloaded int64       `json:"bytesDownloaded"`
    TotalBytes      *int64      `json:"totalBytes"`
    ErrorMessage    string      `json:"errorMessage,omitempty"`
    SeriesXtreamID  *int64      `json:"seriesXtreamId,omitempty"`
    SeasonNumber    *int        `json:"seasonNumber,omitempty"`
    EpisodeNumber   *int        `json:"episodeNumber,omitempty"`
    CreatedAt       time.Time   `json:"createdAt"`
    UpdatedAt       time.Time   `json:"updatedAt"`
}

func (t *DownloadTask) Key() DedupKey {
    return DedupKey{PlaylistID: t.PlaylistID, XtreamID: t.XtreamID, ContentType: t.ContentType}
}

// Path is the destination the executor writes to.
func (t *DownloadTask) Path() string {
    return filepath.Join(t.Directory, t.FileName)
}

// Clone returns a deep copy so stores never hand out shared state.
func (t *DownloadTask) Clone() *DownloadTask {
    if t == nil {
        return nil
    }
    c := *t
    if t.Headers != nil {
        h := *t.Headers
        c.Headers = &h
    }
    c.TotalBytes = clonePtr(t.TotalBytes)
    c.SeriesXtreamID = clonePtr(t.SeriesXtreamID)
    c.SeasonNumber = clonePtr(t.SeasonNumber)
    c.EpisodeNumber = clonePtr(t.EpisodeNumber)
    return &c
}

// reset clears the transfer fields before the task re-enters the queue.
func (t *DownloadTask) reset() {
    t.Status = StatusQueued
    t.BytesDownloaded = 0
    t.TotalBytes = nil
    t.ErrorMessage = ""
}

func clonePtr[T any](p *T) *T {
    if p == nil {
        return nil
    }
    v := *p
    return &v
}
