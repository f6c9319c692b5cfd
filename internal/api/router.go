package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/api/handler"
	"github.com/pixelmuse/pixelmuse_go_server/internal/api/middleware"
)

type Router struct {
	billingHandler    *handler.BillingHandler
	planHandler       *handler.PlanHandler
	webhookHandler    *handler.WebhookHandler
	generationHandler *handler.GenerationHandler
	websocketHandler  *handler.WebSocketHandler
	cfg               *config.Config
}

func NewRouter(
	billingHandler *handler.BillingHandler,
	planHandler *handler.PlanHandler,
	webhookHandler *handler.WebhookHandler,
	generationHandler *handler.GenerationHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		billingHandler:    billingHandler,
		planHandler:       planHandler,
		webhookHandler:    webhookHandler,
		generationHandler: generationHandler,
		websocketHandler:  websocketHandler,
		cfg:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - Stripe webhook（签名即认证）
		api.POST("/webhooks/stripe", r.webhookHandler.Handle)

		// 公开接口 - 生成服务商回调
		api.POST("/callbacks/music", r.generationHandler.MusicCallback)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 账单
			billing := authenticated.Group("/billing")
			{
				billing.POST("/checkout", r.billingHandler.CreateCheckout)
				billing.POST("/buy-credits", r.billingHandler.BuyCredits)
				billing.POST("/cancel", r.billingHandler.CancelSubscription)
				billing.POST("/change", r.planHandler.ChangeSubscription)
				billing.GET("/plan", r.billingHandler.GetPlan)
				billing.GET("/ledger", r.billingHandler.ListLedger)
			}

			// 生成任务
			generations := authenticated.Group("/generations")
			{
				generations.POST("/text-video", r.generationHandler.CreateTextVideo)
				generations.POST("/image-video", r.generationHandler.CreateImageVideo)
				generations.POST("/sora-video", r.generationHandler.CreateSoraVideo)
				generations.POST("/image", r.generationHandler.CreateImage)
				generations.POST("/music", r.generationHandler.CreateMusic)
				generations.GET("/music/:id", r.generationHandler.PollMusic)
				generations.GET("/tasks/:id", r.generationHandler.TaskStatus)
			}
		}
	}

	return engine
}
