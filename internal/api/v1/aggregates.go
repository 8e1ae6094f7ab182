package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sabriotcore-code/rei-api/internal/aggregate"
	"github.com/sabriotcore-code/rei-api/internal/exporter"
)

// GetAggregates 当前汇总，从未预热时返回 503
// GET /api/aggregates
func (h *Handler) GetAggregates(c *gin.Context) {
	res := h.cache.Get(c.Request.Context())
	if !res.Ready {
		notReady(c, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type facetResponse struct {
	Facet           string  `json:"facet"`
	Value           any     `json:"value"`
	Stale           bool    `json:"stale"`
	CacheAgeSeconds float64 `json:"cacheAgeSeconds"`
}

// GetAggregateFacet 单个汇总维度
// GET /api/aggregates/:facet
func (h *Handler) GetAggregateFacet(c *gin.Context) {
	facet := c.Param("facet")
	res := h.cache.Get(c.Request.Context())
	if !res.Ready {
		notReady(c, res)
		return
	}

	var value any
	switch facet {
	case "totals":
		value = res.Aggregates.Totals()
	case "byStatus":
		value = res.Aggregates.ByStatus
	case "byCity":
		value = res.Aggregates.ByCity
	case "byEntity":
		value = res.Aggregates.ByEntity
	case "missingColumns":
		value = res.Aggregates.MissingColumns
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown facet: " + facet})
		return
	}

	c.JSON(http.StatusOK, facetResponse{
		Facet:           facet,
		Value:           value,
		Stale:           res.Stale,
		CacheAgeSeconds: res.CacheAgeSeconds,
	})
}

// RefreshAggregates 强制刷新
// POST /api/aggregates/refresh
func (h *Handler) RefreshAggregates(c *gin.Context) {
	if err := h.cache.ForceRefresh(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  h.cache.Peek(),
	})
}

// ExportAggregates 导出汇总工作簿
// GET /api/aggregates/export
func (h *Handler) ExportAggregates(c *gin.Context) {
	snap, err := h.cache.Snapshot(c.Request.Context())
	if err != nil {
		if errors.Is(err, aggregate.ErrNotReady) {
			notReady(c, h.cache.Peek())
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	file, err := exporter.Export(snap.Aggregates, snap.RefreshedAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed: " + err.Error()})
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", exporter.ContentDisposition(snap.RefreshedAt))
	c.Header("Content-Type", exporter.ContentType)
	if err := file.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func notReady(c *gin.Context, res aggregate.Result) {
	body := gin.H{"ready": false, "error": aggregate.ErrNotReady.Error()}
	if res.LastError != "" {
		body["lastError"] = res.LastError
	}
	c.JSON(http.StatusServiceUnavailable, body)
}
