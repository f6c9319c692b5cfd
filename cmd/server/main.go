package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/api"
	"github.com/pixelmuse/pixelmuse_go_server/internal/api/handler"
	"github.com/pixelmuse/pixelmuse_go_server/internal/database"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/provider"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/pubsub"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/recon"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/taskcache"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/ws"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// 初始化 Repository
	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	eventRepo := repository.NewEventRepository(db)
	refundRepo := repository.NewPendingRefundRepository(db)

	// 初始化外部客户端
	gateway := payment.NewStripeGateway(&cfg.Stripe)
	providerClient := provider.NewClient(&cfg.Provider)
	taskCache := taskcache.NewCache(rdb, time.Duration(cfg.Provider.ResultTTLHours)*time.Hour)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 初始化 Service
	ledgerService := service.NewLedgerService(db, refundRepo)
	webhookService := service.NewWebhookService(accountRepo, eventRepo, ledgerService, gateway, cfg)
	planService := service.NewPlanService(accountRepo, gateway, cfg)
	checkoutService := service.NewCheckoutService(accountRepo, gateway, cfg)
	accountService := service.NewAccountService(accountRepo, ledgerRepo)
	generationService := service.NewGenerationService(ledgerService, providerClient, taskCache, publisher)

	// 退款补偿巡检
	sweeper := recon.NewSweeper(refundRepo, ledgerService,
		time.Duration(cfg.Recon.IntervalMinutes)*time.Minute, cfg.Recon.MaxAttempts)
	sweeper.Start()
	defer sweeper.Stop()

	// 订阅任务完成事件，推给任务所属用户的 WebSocket 连接
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.TaskMessage) {
			if msg.UserID == "" {
				return
			}
			if err := wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg}); err != nil {
				log.Printf("ws push for task %s failed: %v", msg.TaskID, err)
			}
		})
		if err != nil && err != context.Canceled {
			log.Printf("pubsub subscriber stopped: %v", err)
		}
	}()

	// 初始化 Handler
	billingHandler := handler.NewBillingHandler(checkoutService, accountService)
	planHandler := handler.NewPlanHandler(planService)
	webhookHandler := handler.NewWebhookHandler(gateway, webhookService)
	generationHandler := handler.NewGenerationHandler(generationService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		billingHandler,
		planHandler,
		webhookHandler,
		generationHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
