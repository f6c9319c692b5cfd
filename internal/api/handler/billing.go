package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pixelmuse/pixelmuse_go_server/internal/api/middleware"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/response"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

type BillingHandler struct {
	checkoutService *service.CheckoutService
	accountService  *service.AccountService
}

func NewBillingHandler(checkoutService *service.CheckoutService, accountService *service.AccountService) *BillingHandler {
	return &BillingHandler{
		checkoutService: checkoutService,
		accountService:  accountService,
	}
}

// CreateCheckout 创建订阅 checkout 会话
// POST /api/v1/billing/checkout
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.checkoutService.CreateSubscriptionCheckout(userID, req.Email, req.Plan, c.GetHeader("X-Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPlan):
			response.ParamError(c, "未知的订阅套餐")
		case errors.Is(err, service.ErrAlreadySubscribed):
			// 附带当前套餐，前端引导去升降级而不是重复订阅
			info, infoErr := h.accountService.GetPlan(userID)
			if infoErr != nil {
				info = nil
			}
			response.ConflictError(c, "已有生效中的订阅", info)
		case errors.Is(err, service.ErrCheckoutInFlight):
			response.ConflictError(c, "结账进行中，请稍后再试", nil)
		default:
			response.ServerError(c, "创建结账会话失败")
		}
		return
	}

	response.Success(c, result)
}

// BuyCredits 创建积分包 checkout 会话
// POST /api/v1/billing/buy-credits
func (h *BillingHandler) BuyCredits(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.BuyCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.checkoutService.CreateCreditPackCheckout(userID, req.Email, req.PackType, c.GetHeader("X-Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPack):
			response.ParamError(c, "未知的积分包")
		case errors.Is(err, service.ErrCreditsRemaining):
			info, infoErr := h.accountService.GetPlan(userID)
			if infoErr != nil {
				info = nil
			}
			response.ConflictError(c, "积分尚未用完", info)
		default:
			response.ServerError(c, "创建结账会话失败")
		}
		return
	}

	response.Success(c, result)
}

// CancelSubscription 取消订阅
// POST /api/v1/billing/cancel
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.checkoutService.CancelSubscription(userID, req.Immediate)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSubscription) {
			response.NotFoundError(c, "当前没有生效中的订阅")
			return
		}
		response.ServerError(c, "取消订阅失败")
		return
	}

	response.Success(c, result)
}

// GetPlan 当前套餐与余额
// GET /api/v1/billing/plan
func (h *BillingHandler) GetPlan(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.accountService.GetPlan(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}

// ListLedger 积分流水
// GET /api/v1/billing/ledger?limit=50
func (h *BillingHandler) ListLedger(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.accountService.ListLedger(userID, limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, entries)
}
