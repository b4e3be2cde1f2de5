package handler

import (
	"errors"
	"strconv"

	"crawlsync/internal/crawler"
	"crawlsync/internal/repository"
	"crawlsync/internal/service"
	"crawlsync/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ingestService *service.IngestService
	feedService   *service.FeedService
	adminService  *service.AdminService
}

func NewHandler(ingest *service.IngestService, feeds *service.FeedService, admin *service.AdminService) *Handler {
	return &Handler{
		ingestService: ingest,
		feedService:   feeds,
		adminService:  admin,
	}
}

// ============================================================
// 资源相关接口
// ============================================================

type URLRequest struct {
	URL string `json:"url" binding:"required"`
}

// IngestURL 抓取单个页面并入库
// POST /api/v1/resources/ingest
func (h *Handler) IngestURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	res, err := h.ingestService.Ingest(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// GetResource GET /api/v1/resources/:id
func (h *Handler) GetResource(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	res, err := h.adminService.GetResource(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteResource 管理员删除，经 outbox 同步到索引
// DELETE /api/v1/resources/:id
func (h *Handler) DeleteResource(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	res, err := h.adminService.DeleteResource(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// CrawlFeed POST /api/v1/feeds/crawl
func (h *Handler) CrawlFeed(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	summary, err := h.feedService.CrawlFeed(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

// ============================================================
// outbox 运维接口
// ============================================================

// OutboxStatus GET /api/v1/outbox/status
func (h *Handler) OutboxStatus(c *gin.Context) {
	counts, err := h.adminService.Status(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, counts)
}

// ListFailed GET /api/v1/outbox/failed?limit=100
func (h *Handler) ListFailed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.adminService.ListFailed(c.Request.Context(), limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"events": events,
		"total":  len(events),
	})
}

// GetEvent GET /api/v1/outbox/events/:seq
func (h *Handler) GetEvent(c *gin.Context) {
	seq, ok := int64Param(c, "seq")
	if !ok {
		return
	}
	ev, err := h.adminService.GetEvent(c.Request.Context(), seq)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, ev)
}

// ReplayEvent POST /api/v1/outbox/events/:seq/replay
func (h *Handler) ReplayEvent(c *gin.Context) {
	seq, ok := int64Param(c, "seq")
	if !ok {
		return
	}
	if err := h.adminService.Replay(c.Request.Context(), seq); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"sequence_id": seq})
}

// ReplayAllFailed POST /api/v1/outbox/replay-failed
func (h *Handler) ReplayAllFailed(c *gin.Context) {
	n, err := h.adminService.ReplayAllFailed(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"replayed": n})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// writeError 业务错误映射为响应码
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var crawlErr *service.CrawlError
	switch {
	case errors.Is(err, crawler.ErrInvalidURL):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrCrawlInProgress):
		response.BusinessError(c, response.CodeCrawlInProgress, err.Error())
	case errors.Is(err, repository.ErrResourceNotFound):
		response.BusinessError(c, response.CodeResourceNotFound, err.Error())
	case errors.Is(err, repository.ErrResourceDeleted):
		response.BusinessError(c, response.CodeResourceDeleted, err.Error())
	case errors.Is(err, repository.ErrEventNotFound):
		response.BusinessError(c, response.CodeEventNotFound, err.Error())
	case errors.Is(err, repository.ErrEventNotReplayable):
		response.BusinessError(c, response.CodeEventNotReplayable, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		response.Error(c, response.CodeConflict, err.Error())
	case errors.As(err, &crawlErr) && crawlErr.Kind == service.FetchFailed:
		response.BusinessError(c, response.CodeFetchFailed, err.Error())
	case errors.As(err, &crawlErr) && crawlErr.Kind == service.TransactionFailed:
		response.BusinessError(c, response.CodeTransactionFailed, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}
