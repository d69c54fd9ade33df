// Package api exposes the exchanger over HTTP.
package api

import (
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/identities"
	"github.com/rubex-exchange/rubex/internal/orders"
	"github.com/rubex-exchange/rubex/internal/partner"
	"github.com/rubex-exchange/rubex/internal/quote"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/internal/requisites"
)

// currencySymbolPattern covers asset tickers and fiat rail names like
// T-BANK.
var currencySymbolPattern = regexp.MustCompile(`^[A-Z0-9-]{2,10}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("currency_symbol", func(fl validator.FieldLevel) bool {
			return currencySymbolPattern.MatchString(fl.Field().String())
		})
	}
}

// Server represents the API server.
type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	identities  *identities.Service
	quotes      *quote.Service
	orders      *orders.Service
	partners    *partner.Service
	requisites  *requisites.Service
	commissions *commission.Service
	rateStore   *rates.Store
	rateLimiter gin.HandlerFunc
}

// NewServer creates a new API server with injected services.
func NewServer(
	logger *zap.Logger,
	identitiesSvc *identities.Service,
	quotesSvc *quote.Service,
	ordersSvc *orders.Service,
	partnersSvc *partner.Service,
	requisitesSvc *requisites.Service,
	commissionsSvc *commission.Service,
	rateStore *rates.Store,
) *Server {
	server := &Server{
		logger:      logger,
		identities:  identitiesSvc,
		quotes:      quotesSvc,
		orders:      ordersSvc,
		partners:    partnersSvc,
		requisites:  requisitesSvc,
		commissions: commissionsSvc,
		rateStore:   rateStore,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("rubex-api"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 100 requests per minute per IP
	store := memory.NewStore()
	rate, _ := limiter.NewRateFromFormatted("100-M")
	server.rateLimiter = ginlimiter.NewMiddleware(limiter.New(store, rate))

	server.router = router
	server.registerRoutes()
	return server
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal gin engine for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)

		rates := public.Group("/rates", s.rateLimiter)
		{
			rates.GET("", s.getRates)
			rates.POST("/quote", s.createQuote)
		}

		// Order submission stays open to anonymous visitors; a valid
		// token attaches ownership.
		public.POST("/orders", s.rateLimiter, s.optionalAuthMiddleware(), s.submitOrder)
		public.GET("/orders/:orderId", s.rateLimiter, s.getOrder)

		auth := public.Group("/auth", s.rateLimiter)
		{
			auth.POST("/register", s.register)
			auth.POST("/login", s.login)
			auth.POST("/2fa/verify", s.verify2FA)
		}
	}

	protected := s.router.Group("/api/v1")
	protected.Use(s.authMiddleware())
	{
		user := protected.Group("/user")
		{
			user.GET("/profile", s.getProfile)
			user.PATCH("/notifications", s.updateNotifications)
			user.GET("/orders", s.listUserOrders)

			twoFA := user.Group("/2fa")
			{
				twoFA.POST("/enable", s.enable2FA)
				twoFA.POST("/activate", s.activate2FA)
				twoFA.POST("/disable", s.disable2FA)
			}
		}

		partnerGroup := protected.Group("/partner")
		{
			partnerGroup.GET("/info", s.getPartnerStats)
			partnerGroup.POST("/withdrawals", s.createWithdrawal)
			partnerGroup.GET("/withdrawals", s.listWithdrawals)
		}

		requisiteGroup := protected.Group("/requisites")
		{
			requisiteGroup.GET("", s.listRequisites)
			requisiteGroup.POST("", s.createRequisite)
			requisiteGroup.PATCH("/:id", s.updateRequisite)
			requisiteGroup.DELETE("/:id", s.deleteRequisite)
		}
	}

	admin := s.router.Group("/api/v1/admin")
	admin.Use(s.authMiddleware(), s.adminMiddleware())
	{
		admin.GET("/orders", s.listOrders)
		admin.PATCH("/orders/:orderId/status", s.transitionOrderStatus)
		admin.GET("/withdrawals", s.listAllWithdrawals)
		admin.PATCH("/withdrawals/:withdrawalId/status", s.transitionWithdrawalStatus)
		admin.GET("/commissions", s.getCommissions)
		admin.PATCH("/commissions", s.updateCommissions)
	}
}
