package api

import (
    "errors"
    "fmt"
    "io"
    "net/http"
    "os"
    "strconv"
    "strings"

    "github.com/gin-gonic/gin"
    log "github.com/sirupsen/logrus"

    "vodqueue/config"
    "vodqueue/task"
)

type Handler struct {
    manager *task.Manager
    cfg     *config.Config
}

func NewHandler(tm *task.Manager, cfg *config.Config) *Handler {
    return &Handler{
        manager: tm,
        cfg:     cfg,
    }
}

// downloadView is a task as the API returns it.
type downloadView struct {
    *task.DownloadTask
    FileURL string `json:"fileUrl,omitempty"`
}

type retryRequest struct {
    DownloadDirectory string `json:"downloadDirectory"`
}

// handleEnqueue queues a new download. A duplicate of an in-progress download
// answers 409 with the existing id.
func (h *Handler) handleEnqueue(c *gin.Context) {
    var req task.EnqueueRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
        return
    }
    if req.DownloadDirectory == "" {
        req.DownloadDirectory = h.cfg.DownloadDir
    }

    id, err := h.manager.Enqueue(req)
    if errors.Is(err, task.ErrDuplicateInProgress) {
        c.JSON(http.StatusConflict, gin.H{"success": false, "id": id, "error": "Download already in progress"})
        return
    }
    if err != nil {
        h.writeError(c, err)
        return
    }

    c.JSON(http.StatusAccepted, gin.H{"success": true, "id": id})
}

// handleListDownloads lists tasks, optionally for one playlist.
func (h *Handler) handleListDownloads(c *gin.Context) {
    tasks, err := h.manager.List(c.Query("playlistId"))
    if err != nil {
        h.writeError(c, err)
        return
    }

    views := make([]downloadView, 0, len(tasks))
    for _, t := range tasks {
        views = append(views, h.view(c, t))
    }
    c.JSON(http.StatusOK, views)
}

// handleGetDownload returns one task, or null when it does not exist.
func (h *Handler) handleGetDownload(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    t, err := h.manager.Get(id)
    if errors.Is(err, task.ErrNotFound) {
        c.JSON(http.StatusNotFound, nil)
        return
    }
    if err != nil {
        h.writeError(c, err)
        return
    }
    c.JSON(http.StatusOK, h.view(c, t))
}

func (h *Handler) handleCancel(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }
    if err := h.manager.Cancel(id); err != nil {
        h.writeError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleRetry re-queues a finished task. The body is optional.
func (h *Handler) handleRetry(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    var req retryRequest
    if c.Request.Body != nil && c.Request.ContentLength != 0 {
        if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
            c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
            return
        }
    }

    if err := h.manager.Retry(id, req.DownloadDirectory); err != nil {
        h.writeError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) handleRemove(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }
    if err := h.manager.Remove(id); err != nil {
        h.writeError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) handleClearCompleted(c *gin.Context) {
    n, err := h.manager.ClearCompleted(c.Query("playlistId"))
    if err != nil {
        h.writeError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"success": true, "removed": n})
}

// handleGetFile serves the file of a completed task.
func (h *Handler) handleGetFile(c *gin.Context) {
    id, ok := parseID(c)
    if !ok {
        return
    }

    t, err := h.manager.Get(id)
    if err != nil {
        h.writeError(c, err)
        return
    }
    if t.Status != task.StatusCompleted {
        c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("download %d is %s", id, t.Status)})
        return
    }

    path := t.Path()
    if _, err := os.Stat(path); err != nil {
        c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "file not found on disk"})
        return
    }
    c.FileAttachment(path, t.FileName)
}

// handleEvents streams change signals as server-sent events until the client
// goes away. Clients re-query the downloads list on each event.
func (h *Handler) handleEvents(c *gin.Context) {
    signals, unsubscribe := h.manager.Subscribe()
    defer unsubscribe()

    c.Header("Content-Type", "text/event-stream")
    c.Header("Cache-Control", "no-cache")
    c.Header("Connection", "keep-alive")
    c.Status(http.StatusOK)
    c.Writer.WriteHeaderNow()
    c.Writer.Flush()

    ctx := c.Request.Context()
    c.Stream(func(w io.Writer) bool {
        select {
        case s, ok := <-signals:
            if !ok {
                return false
            }
            c.SSEvent("change", s)
            return true
        case <-ctx.Done():
            return false
        }
    })
}

// buildFileURL constructs the full URL for a completed task's file.
func (h *Handler) buildFileURL(c *gin.Context, t *task.DownloadTask) string {
    if t.Status != task.StatusCompleted {
        return ""
    }

    baseURL := h.cfg.BaseURL
    if baseURL == "" {
        scheme := "http"
        if c.Request.TLS != nil {
            scheme = "https"
        }
        baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
    }
    baseURL = strings.TrimSuffix(baseURL, "/")

    return fmt.Sprintf("%s/api/v1/files/%d", baseURL, t.ID)
}

func (h *Handler) view(c *gin.Context, t *task.DownloadTask) downloadView {
    return downloadView{DownloadTask: t, FileURL: h.buildFileURL(c, t)}
}

// writeError maps manager errors onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
    var verr *task.ValidationError
    status := http.StatusInternalServerError
    switch {
    case errors.As(err, &verr):
        status = http.StatusBadRequest
    case errors.Is(err, task.ErrNotFound):
        status = http.StatusNotFound
    case errors.Is(err, task.ErrNotApplicable), errors.Is(err, task.ErrDuplicateInProgress):
        status = http.StatusConflict
    case errors.Is(err, task.ErrNotStarted):
        status = http.StatusServiceUnavailable
    default:
        log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
    }
    c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func parseID(c *gin.Context) (int64, bool) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("invalid download id %q", c.Param("id"))})
        return 0, false
    }
    return id, true
}
