package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pixelmuse/pixelmuse_go_server/internal/api/middleware"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/response"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// ChangeSubscription 升降级（preview_only 时只做试算）
// POST /api/v1/billing/change
func (h *PlanHandler) ChangeSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ChangeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	if req.PreviewOnly {
		preview, err := h.planService.PreviewChange(userID, req.NewPriceID)
		if err != nil {
			h.writeChangeError(c, err)
			return
		}
		response.Success(c, preview)
		return
	}

	result, err := h.planService.CommitChange(userID, req.NewPriceID, c.GetHeader("X-Idempotency-Key"))
	if err != nil {
		h.writeChangeError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *PlanHandler) writeChangeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownPrice):
		response.ParamError(c, "未知的价格")
	case errors.Is(err, service.ErrSamePlan):
		response.ConflictError(c, "已经是当前套餐", nil)
	case errors.Is(err, service.ErrNoActiveSubscription):
		response.NotFoundError(c, "当前没有生效中的订阅")
	case errors.Is(err, service.ErrSubscriptionIncomplete):
		response.ConflictError(c, "订阅尚未完成支付，无法变更", nil)
	default:
		response.UpstreamError(c, "订阅变更失败")
	}
}
