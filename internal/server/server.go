package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/KeyT9999/keyt-shop-backend/internal/config"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/ratelimit"
	"github.com/KeyT9999/keyt-shop-backend/internal/reconcile"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	reconcileSvc    *reconcile.Service
	orderLimiter    *ratelimit.OrderCreateLimiter
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	Log *zap.Logger

	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ReconcileSvc    *reconcile.Service
	OrderLimiter    *ratelimit.OrderCreateLimiter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		reconcileSvc:    p.ReconcileSvc,
		orderLimiter:    p.OrderLimiter,
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Orders --------
	api.POST("/orders", s.OrderCreateRateLimit(), s.CreateOrder)
	api.GET("/orders/:id", s.GetOrder)

	// -------- Payments --------
	api.POST("/payos/create-payment", s.CreatePayment)
	api.GET("/payos/payment-info/:id", s.GetPaymentInfo)
	api.GET("/payos/order-by-code/:code", s.GetOrderByCode)

	// -------- Gateway webhook --------
	api.POST("/payos/webhook", s.HandlePayOSWebhook)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.ListSubscriptionsByEmail)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(s.AdminRequired())

	admin.GET("/orders", s.ListOrders)
	admin.GET("/orders/:id", s.GetOrderAdmin)
	admin.POST("/orders/:id/confirm", s.ConfirmOrder)
	admin.POST("/orders/:id/process", s.ProcessOrder)
	admin.POST("/orders/:id/complete", s.CompleteOrder)
	admin.POST("/orders/:id/cancel", s.CancelOrder)
}
