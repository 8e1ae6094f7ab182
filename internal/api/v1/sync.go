package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sabriotcore-code/rei-api/internal/store"
)

// TriggerSync 软触发（遵守变化检查）
// GET /api/sync
func (h *Handler) TriggerSync(c *gin.Context) {
	h.runSync(c, false)
}

// ForceSync 强制同步
// GET /api/sync/force
func (h *Handler) ForceSync(c *gin.Context) {
	h.runSync(c, true)
}

func (h *Handler) runSync(c *gin.Context, force bool) {
	if h.sync == nil {
		syncDisabled(c)
		return
	}
	out := h.sync.RunSync(c.Request.Context(), force)
	status := http.StatusOK
	if !out.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, out)
}

// GetSyncStatus 同步状态
// GET /api/sync/status
func (h *Handler) GetSyncStatus(c *gin.Context) {
	if h.sync == nil {
		syncDisabled(c)
		return
	}
	c.JSON(http.StatusOK, h.sync.Status())
}

// GetSyncHistory 同步台账
// GET /api/sync/history?limit=50
func (h *Handler) GetSyncHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync history unavailable"})
		return
	}
	limit := store.DefaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.history.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

func syncDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync disabled"})
}
