package notification

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-feed/internal/middleware"
	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/presenter"
	"github.com/jwalitptl/booking-feed/internal/repository"
	"github.com/jwalitptl/booking-feed/internal/service/notification"
	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
	"github.com/jwalitptl/booking-feed/pkg/httputil"
	"github.com/jwalitptl/booking-feed/pkg/logger"
)

const HeaderStaffID = "X-Staff-ID"

type Handler struct {
	service  notification.Service
	history  repository.NotificationRepository
	renderer *presenter.Renderer
	scope    string
	logger   *logger.Logger
}

func NewHandler(
	service notification.Service,
	history repository.NotificationRepository,
	renderer *presenter.Renderer,
	scope string,
	l *logger.Logger,
) *Handler {
	if renderer == nil {
		renderer = presenter.NewRenderer(nil)
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{
		service:  service,
		history:  history,
		renderer: renderer,
		scope:    scope,
		logger:   l,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	notifications.Use(middleware.Cache(middleware.LiveCacheConfig()))
	{
		notifications.GET("", h.List)
		notifications.GET("/dropdown", h.Dropdown)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.GET("/status", h.Status)
		notifications.POST("/:id/ack", h.Acknowledge)
	}

	if h.history != nil {
		r.GET("/history", middleware.Cache(middleware.HistoryCacheConfig()), h.History)
	}
}

// List serves the page view over the live log.
func (h *Handler) List(c *gin.Context) {
	var filter presenter.PageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}

	items, total := presenter.Page(h.service.Notifications(), filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = len(items)
	}
	httputil.RespondWithPagination(c, h.render(c.Request.Context(), items), limit, filter.Offset, total)
}

type dropdownQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

type DropdownResponse struct {
	Items       []presenter.View `json:"items"`
	UnreadCount int              `json:"unreadCount"`
	Connected   bool             `json:"connected"`
}

func (h *Handler) Dropdown(c *gin.Context) {
	var q dropdownQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}

	items := presenter.Dropdown(h.service.Notifications(), q.Limit)
	httputil.RespondWithSuccess(c, DropdownResponse{
		Items:       h.render(c.Request.Context(), items),
		UnreadCount: h.service.UnreadCount(),
		Connected:   h.service.IsConnected(),
	})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{"unreadCount": h.service.UnreadCount()})
}

func (h *Handler) Status(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.service.Status())
}

type ackBody struct {
	StaffID string `json:"staffId"`
}

// Acknowledge takes the staff member from the body, then the X-Staff-ID
// header. With neither, the service falls back to its configured staff.
func (h *Handler) Acknowledge(c *gin.Context) {
	var body ackBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
			return
		}
	}
	staffID := body.StaffID
	if staffID == "" {
		staffID = c.GetHeader(HeaderStaffID)
	}

	id := c.Param("id")
	result, err := h.service.Acknowledge(c.Request.Context(), id, staffID)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			// The request may still land; the client can retry safely.
			err = apperrors.AckFailed(id, err)
		}
		c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

type historyQuery struct {
	Since    string                 `form:"since"`
	Type     model.NotificationType `form:"type" binding:"omitempty,oneof=created cancelled modified"`
	Unread   *bool                  `form:"unread"`
	Page     int                    `form:"page" binding:"omitempty,min=1"`
	PageSize int                    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type HistoryResponse struct {
	Items    []presenter.View `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
}

// History proxies the backend's paginated history for the page view.
func (h *Handler) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}

	filter := model.ListFilter{
		Pagination: model.Pagination{Page: q.Page, PageSize: q.PageSize},
		Scope:      h.scope,
		Type:       q.Type,
		Unread:     q.Unread,
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}
	if q.Since != "" {
		since, err := time.Parse(time.RFC3339Nano, q.Since)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("since must be an RFC 3339 timestamp", err))
			return
		}
		filter.Since = &since
	}

	page, err := h.history.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, HistoryResponse{
		Items:    h.render(c.Request.Context(), page.Items),
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
	})
}

func (h *Handler) render(ctx context.Context, items []model.Notification) []presenter.View {
	return presenter.Isolate(items,
		func(n model.Notification) (presenter.View, error) {
			return h.renderer.Render(ctx, n)
		},
		func(n model.Notification, err error) {
			h.logger.WithContext(ctx).Warn("Skipping notification that failed to render",
				"notification_id", n.ID,
				"error", err.Error(),
			)
		},
	)
}
