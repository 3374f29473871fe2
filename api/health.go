package api

import (
    "net/http"

    "github.com/c2h5oh/datasize"
    "github.com/gin-gonic/gin"
    "github.com/shirou/gopsutil/v3/disk"
    "github.com/shirou/gopsutil/v3/mem"
    log "github.com/sirupsen/logrus"
)

// handleHealth reports liveness plus free space in the download directory and
// available memory. Failed lookups are logged and the field left out.
func (h *Handler) handleHealth(c *gin.Context) {
    resp := gin.H{"status": "ok"}

    if usage, err := disk.Usage(h.cfg.DownloadDir); err != nil {
        log.WithError(err).Debugf("Could not get disk usage for %s", h.cfg.DownloadDir)
    } else {
        resp["freeDisk"] = datasize.ByteSize(usage.Free).HumanReadable()
    }

    if vm, err := mem.VirtualMemory(); err != nil {
        log.WithError(err).Debug("Could not get memory usage")
    } else {
        resp["availableMemory"] = datasize.ByteSize(vm.Available).HumanReadable()
    }

    c.JSON(http.StatusOK, resp)
}
