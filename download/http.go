package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	log "github.com/sirupsen/logrus"

	"vodqueue/config"
)

// HTTPExecutor streams a URL to a local file with plain GET requests.
type HTTPExecutor struct {
	client      *http.Client
	userAgent   string
	minFreeDisk int64
}

func NewHTTPExecutor(cfg *config.Config) *HTTPExecutor {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// No overall timeout: a stalled transfer is resolved by Cancel.
	transport.ResponseHeaderTimeout = cfg.ResponseTimeout

	return &HTTPExecutor{
		client:      &http.Client{Transport: transport},
		userAgent:   cfg.UserAgent,
		minFreeDisk: cfg.MinFreeDisk,
	}
}

// Run implements Executor.
func (x *HTTPExecutor) Run(ctx context.Context, req Request, emit func(Event)) {
	logger := log.WithFields(log.Fields{"session": req.Session, "path": req.Path})

	size, created, err := x.transfer(ctx, req, emit)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil {
		logger.Infof("Download completed (%d bytes)", size)
		emit(Completed{Path: req.Path, Size: size})
		return
	}

	if created {
		removePartial(logger, req.Path)
	}
	if ctx.Err() != nil {
		logger.Info("Download canceled")
		emit(Canceled{})
		return
	}
	logger.WithError(err).Warn("Download failed")
	emit(Failed{Err: err})
}

// transfer reports whether it created the destination file so the caller
// never removes a file it did not write.
func (x *HTTPExecutor) transfer(ctx context.Context, req Request, emit func(Event)) (int64, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, false, &TransferError{Op: "create request", Err: err}
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	if httpReq.Header.Get("User-Agent") == "" && x.userAgent != "" {
		httpReq.Header.Set("User-Agent", x.userAgent)
	}

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return 0, false, &TransferError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return 0, false, &TransferError{Op: "request", Err: err}
	}

	dir := filepath.Dir(req.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, false, &TransferError{Op: "create directory", Err: err}
	}
	if err := x.checkDisk(dir, resp.ContentLength); err != nil {
		return 0, false, &TransferError{Op: "check disk", Err: err}
	}

	out, err := os.Create(req.Path)
	if err != nil {
		return 0, false, &TransferError{Op: "create file", Err: err}
	}

	emit(Started{})

	counter := &progressWriter{w: out, total: resp.ContentLength, emit: emit}
	_, copyErr := io.Copy(counter, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return counter.written, true, &TransferError{Op: "write", Err: copyErr}
	}
	if closeErr != nil {
		return counter.written, true, &TransferError{Op: "close file", Err: closeErr}
	}
	if resp.ContentLength >= 0 && counter.written != resp.ContentLength {
		err := fmt.Errorf("short body: got %d of %d bytes", counter.written, resp.ContentLength)
		return counter.written, true, &TransferError{Op: "write", Err: err}
	}
	return counter.written, true, nil
}

// checkDisk verifies the destination keeps at least minFreeDisk bytes free
// after the transfer. A failing disk check is logged and ignored.
func (x *HTTPExecutor) checkDisk(dir string, contentLength int64) error {
	if x.minFreeDisk <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		log.WithError(err).Warnf("Could not get disk usage for %s", dir)
		return nil
	}

	required := uint64(x.minFreeDisk)
	if contentLength > 0 {
		required += uint64(contentLength)
	}
	if usage.Free < required {
		return fmt.Errorf("%w: available %d, required %d", ErrInsufficientDisk, usage.Free, required)
	}
	return nil
}

func removePartial(logger *log.Entry, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warn("Failed to remove partial file")
	}
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	emit    func(Event)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.written += int64(n)
		p.emit(Progress{BytesTransferred: p.written, TotalBytes: p.total})
	}
	return n, err
}
