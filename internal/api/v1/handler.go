package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sabriotcore-code/rei-api/internal/actions"
	"github.com/sabriotcore-code/rei-api/internal/aggregate"
	"github.com/sabriotcore-code/rei-api/internal/prodsync"
	"github.com/sabriotcore-code/rei-api/internal/store"
)

// Version 服务版本
const Version = "1.0.0"

// AggregateCache 聚合缓存
type AggregateCache interface {
	Get(ctx context.Context) aggregate.Result
	Peek() aggregate.Result
	Snapshot(ctx context.Context) (*aggregate.Snapshot, error)
	ForceRefresh(ctx context.Context) error
	TTL() time.Duration
}

// SyncRunner 生产同步
type SyncRunner interface {
	RunSync(ctx context.Context, force bool) *prodsync.Outcome
	Status() prodsync.Status
}

// SyncHistory 同步台账
type SyncHistory interface {
	ListSyncRuns(ctx context.Context, limit int) ([]store.SyncRun, error)
}

// Handler V1 API 处理器
type Handler struct {
	actions *actions.Service
	cache   AggregateCache
	sync    SyncRunner  // 为 nil 表示同步未启用
	history SyncHistory // 为 nil 表示无台账
	now     func() time.Time
}

// NewHandler 创建 V1 API 处理器
func NewHandler(svc *actions.Service, cache AggregateCache, sync SyncRunner, history SyncHistory) *Handler {
	return &Handler{
		actions: svc,
		cache:   cache,
		sync:    sync,
		history: history,
		now:     time.Now,
	}
}

// RegisterActionRoutes 注册根路径：健康检查与动作协议
func (h *Handler) RegisterActionRoutes(router *gin.RouterGroup) {
	router.GET("/", h.Health)
	router.POST("/", h.Dispatch)
}

// RegisterRoutes 注册 /api 控制面路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 运维状态
	router.GET("/status", h.GetStatus)

	// 聚合
	router.GET("/aggregates", h.GetAggregates)
	router.GET("/aggregates/export", h.ExportAggregates)
	router.GET("/aggregates/:facet", h.GetAggregateFacet)
	router.POST("/aggregates/refresh", h.RefreshAggregates)

	// 生产同步
	router.GET("/sync", h.TriggerSync)
	router.GET("/sync/force", h.ForceSync)
	router.GET("/sync/status", h.GetSyncStatus)
	router.GET("/sync/history", h.GetSyncHistory)
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}

// Health 健康检查
// GET /
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   actions.ServiceName,
		"version":   Version,
		"actions":   h.actions.Actions(),
		"timestamp": h.timestamp(),
	})
}

// Dispatch 动作协议
// POST / {"action": "...", ...}
func (h *Handler) Dispatch(c *gin.Context) {
	start := h.now()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read request body"})
		return
	}

	result, err := h.actions.Handle(c.Request.Context(), body)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, gin.H{
			"success":   false,
			"error":     publicMessage(err),
			"timestamp": h.timestamp(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      result,
		"timestamp": h.timestamp(),
		"duration":  h.now().Sub(start).Milliseconds(),
	})
}

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, actions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, aggregate.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage 去掉哨兵错误前缀，保留面向调用方的描述
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{actions.ErrInvalidRequest, actions.ErrNotFound} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}

type cacheStatus struct {
	Ready           bool       `json:"ready"`
	Stale           bool       `json:"stale"`
	CacheAgeSeconds float64    `json:"cacheAgeSeconds"`
	TTLSeconds      float64    `json:"ttlSeconds"`
	RefreshedAt     *time.Time `json:"refreshedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

type statusResponse struct {
	Service     string           `json:"service"`
	Version     string           `json:"version"`
	Cache       cacheStatus      `json:"cache"`
	SyncEnabled bool             `json:"syncEnabled"`
	Sync        *prodsync.Status `json:"sync,omitempty"`
	Timestamp   string           `json:"timestamp"`
}

// GetStatus 运维状态；数据源不可用时也能返回
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	res := h.cache.Peek()
	resp := statusResponse{
		Service: actions.ServiceName,
		Version: Version,
		Cache: cacheStatus{
			Ready:           res.Ready,
			Stale:           res.Stale,
			CacheAgeSeconds: res.CacheAgeSeconds,
			TTLSeconds:      h.cache.TTL().Seconds(),
			RefreshedAt:     res.RefreshedAt,
			LastError:       res.LastError,
		},
		SyncEnabled: h.sync != nil,
		Timestamp:   h.timestamp(),
	}
	if h.sync != nil {
		st := h.sync.Status()
		resp.Sync = &st
	}
	c.JSON(http.StatusOK, resp)
}
